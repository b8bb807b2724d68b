package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Dev-Corgi/Calobite/internal/domain"
	"github.com/Dev-Corgi/Calobite/internal/query"
	"github.com/Dev-Corgi/Calobite/internal/repository"
	"github.com/Dev-Corgi/Calobite/pkg/database"
	apperrors "github.com/Dev-Corgi/Calobite/pkg/errors"
)

// DB is the subset of pgxpool.Pool the repository needs. It is also
// satisfied by pgxmock, which keeps the repository testable without a
// running database.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// productColumns is the canonical column list, in scan order.
const productColumns = `code, product_name, brands, quantity, packaging, categories, labels,
	stores, countries, ingredients_text, traces, serving_size, serving_quantity,
	nutriscore_score, nutriscore_grade, ecoscore_score, ecoscore_grade, nova_group,
	image_url, image_small_url, categories_tags, labels_tags, brands_tags, countries_tags,
	nutriments, view_count, created_t, last_modified_t`

// energyGate excludes rows that carry no energy value at all. Such rows
// cannot be normalized into kcal and are treated as absent on single-product
// lookups, brand listings and the top-viewed list.
const energyGate = `(nutriments->>'energy-kcal_100g' IS NOT NULL
	OR nutriments->>'energy_100g' IS NOT NULL
	OR nutriments->>'energy-kj_100g' IS NOT NULL)`

// sortColumns whitelists plain columns allowed in ORDER BY. Nutriment keys
// are handled separately via a bound JSONB lookup.
var sortColumns = map[string]string{
	"code":             "code",
	"product_name":     "product_name",
	"brands":           "brands",
	"created_t":        "created_t",
	"last_modified_t":  "last_modified_t",
	"view_count":       "view_count",
	"nutriscore_score": "nutriscore_score",
	"nutriscore_grade": "nutriscore_grade",
	"ecoscore_score":   "ecoscore_score",
	"ecoscore_grade":   "ecoscore_grade",
	"nova_group":       "nova_group",
	"serving_quantity": "serving_quantity",
}

var comparisonOps = map[query.Op]string{
	query.OpGt: ">",
	query.OpLt: "<",
	query.OpEq: "=",
}

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	db DB
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByCode retrieves a product by barcode. Rows without energy data are
// filtered out and reported as not found.
func (r *ProductRepository) GetByCode(ctx context.Context, code string) (*domain.Product, error) {
	stmt := fmt.Sprintf(`
		SELECT %s
		FROM products
		WHERE code = $1 AND %s`, productColumns, energyGate)

	ctx, end := database.TraceQuery(ctx, "products.get_by_code", stmt)
	p, err := r.scanProduct(ctx, stmt, code)
	end(err)
	return p, err
}

// Search returns products matching the compiled query plus the total match
// count. Search results are not energy-gated; callers normalize what can be
// normalized and pass the rest through.
func (r *ProductRepository) Search(ctx context.Context, q *query.Query) ([]domain.Product, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
		orderBy    = "code"
	)

	if q.SearchTerms != "" {
		conditions = append(conditions, fmt.Sprintf("search_vector @@ websearch_to_tsquery('simple', $%d)", argIndex))
		// Relevance ordering reuses the same bound term.
		orderBy = fmt.Sprintf("ts_rank(search_vector, websearch_to_tsquery('simple', $%d)) DESC, code", argIndex)
		args = append(args, q.SearchTerms)
		argIndex++
	}

	for _, t := range q.Tags {
		if !query.IsTagColumn(t.Field) {
			continue
		}
		op := "@>" // every tag present
		if t.MatchAny {
			op = "&&" // any tag present
		}
		conditions = append(conditions, fmt.Sprintf("%s %s $%d::text[]", t.Field, op, argIndex))
		args = append(args, t.Tags)
		argIndex++
	}

	for _, n := range q.Nutrients {
		op, ok := comparisonOps[n.Op]
		if !ok {
			continue
		}
		// The nutriment key is bound, never interpolated.
		conditions = append(conditions, fmt.Sprintf("(nutriments->>$%d)::numeric %s $%d", argIndex, op, argIndex+1))
		args = append(args, n.Field, n.Value)
		argIndex += 2
	}

	if q.Sort != nil && q.SearchTerms == "" {
		if expr, sortArg, ok := sortExpression(q.Sort.Field, argIndex); ok {
			dir := "ASC"
			if q.Sort.Descending {
				dir = "DESC"
			}
			orderBy = fmt.Sprintf("%s %s, code", expr, dir)
			if sortArg != nil {
				args = append(args, sortArg)
				argIndex++
			}
		}
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// count(*) OVER() yields the total match count in a single query.
	stmt := fmt.Sprintf(`
		SELECT %s,
			   count(*) OVER() AS total_count
		FROM products
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		productColumns, whereClause, orderBy, argIndex, argIndex+1,
	)
	args = append(args, q.Pagination.Limit(), q.Pagination.Offset())

	ctx, end := database.TraceQuery(ctx, "products.search", stmt)
	products, total, err := r.scanProducts(ctx, stmt, true, args...)
	end(err)
	return products, total, err
}

// sortExpression maps a requested sort field to a safe ORDER BY expression.
// Plain columns come from a whitelist; per-100g and per-serving nutriment
// keys sort on a bound JSONB lookup. Anything else is ignored.
func sortExpression(field string, argIndex int) (expr string, arg any, ok bool) {
	if col, found := sortColumns[field]; found {
		return col, nil, true
	}
	if strings.HasSuffix(field, "_100g") || strings.HasSuffix(field, "_serving") {
		return fmt.Sprintf("(nutriments->>$%d)::numeric", argIndex), field, true
	}
	return "", nil, false
}

// brandColumns is the compact projection served by the brand listing. It
// carries just enough for a related-products widget.
const brandColumns = "code, product_name, image_small_url, brands, nutriments"

// ListByBrand returns up to limit energy-gated products whose brands field
// contains the given name, in the compact brand projection. A non-empty
// excludeCode drops that barcode from the result.
func (r *ProductRepository) ListByBrand(ctx context.Context, brand, excludeCode string, limit int) ([]domain.Product, error) {
	conditions := []string{"brands ILIKE $1", energyGate}
	args := []any{"%" + brand + "%"}
	argIndex := 2

	if excludeCode != "" {
		conditions = append(conditions, fmt.Sprintf("code <> $%d", argIndex))
		args = append(args, excludeCode)
		argIndex++
	}

	stmt := fmt.Sprintf(`
		SELECT %s
		FROM products
		WHERE %s
		ORDER BY code
		LIMIT $%d`, brandColumns, strings.Join(conditions, " AND "), argIndex)
	args = append(args, limit)

	ctx, end := database.TraceQuery(ctx, "products.list_by_brand", stmt)
	products, err := r.scanBrandProducts(ctx, stmt, args...)
	end(err)
	return products, err
}

// scanBrandProducts scans rows of the compact brand projection.
func (r *ProductRepository) scanBrandProducts(ctx context.Context, stmt string, args ...any) ([]domain.Product, error) {
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query brand products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var (
			p              domain.Product
			nutrimentsJSON []byte
		)
		if err := rows.Scan(&p.Code, &p.ProductName, &p.ImageSmallURL, &p.Brands, &nutrimentsJSON); err != nil {
			return nil, fmt.Errorf("scan brand product: %w", err)
		}
		if err := unmarshalNutriments(nutrimentsJSON, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate brand products: %w", err)
	}

	return products, nil
}

// TopViewed reads the most viewed products from the top_10_products view.
func (r *ProductRepository) TopViewed(ctx context.Context) ([]domain.Product, error) {
	stmt := fmt.Sprintf(`
		SELECT %s
		FROM top_10_products`, productColumns)

	ctx, end := database.TraceQuery(ctx, "products.top_viewed", stmt)
	products, _, err := r.scanProducts(ctx, stmt, false)
	end(err)
	return products, err
}

// Create inserts a new product. A duplicate barcode maps to ErrAlreadyExists.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	nutrimentsJSON, err := marshalNutriments(p.Nutriments)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	createdT, lastModifiedT := now, now
	if p.CreatedT != nil {
		createdT = *p.CreatedT
	}
	if p.LastModifiedT != nil {
		lastModifiedT = *p.LastModifiedT
	}

	stmt := fmt.Sprintf(`
		INSERT INTO products (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
				$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`,
		productColumns)

	ctx, end := database.TraceQuery(ctx, "products.create", stmt)
	_, err = r.db.Exec(ctx, stmt,
		p.Code,
		p.ProductName,
		p.Brands,
		p.Quantity,
		p.Packaging,
		p.Categories,
		p.Labels,
		p.Stores,
		p.Countries,
		p.IngredientsText,
		p.Traces,
		p.ServingSize,
		p.ServingQuantity,
		p.NutriscoreScore,
		p.NutriscoreGrade,
		p.EcoscoreScore,
		p.EcoscoreGrade,
		p.NovaGroup,
		p.ImageURL,
		p.ImageSmallURL,
		p.CategoriesTags,
		p.LabelsTags,
		p.BrandsTags,
		p.CountriesTags,
		nutrimentsJSON,
		int64(0),
		createdT,
		lastModifiedT,
	)
	end(err)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "code", p.Code)
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

// IncrementViewCount bumps the view counter via a stored function so the
// increment stays atomic under concurrent reads.
func (r *ProductRepository) IncrementViewCount(ctx context.Context, code string) error {
	stmt := `SELECT increment_product_view_count($1)`

	ctx, end := database.TraceQuery(ctx, "products.increment_view_count", stmt)
	_, err := r.db.Exec(ctx, stmt, code)
	end(err)
	if err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}
	return nil
}

// scanProduct executes a query expected to return a single product row.
func (r *ProductRepository) scanProduct(ctx context.Context, stmt string, args ...any) (*domain.Product, error) {
	var (
		p              domain.Product
		nutrimentsJSON []byte
	)

	if err := r.db.QueryRow(ctx, stmt, args...).Scan(productDest(&p, &nutrimentsJSON)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}

	if err := unmarshalNutriments(nutrimentsJSON, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

// scanProducts executes a query returning product rows. When withCount is
// set every row is expected to carry a trailing total_count column.
func (r *ProductRepository) scanProducts(ctx context.Context, stmt string, withCount bool, args ...any) ([]domain.Product, int, error) {
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var (
		products   []domain.Product
		totalCount int
	)

	for rows.Next() {
		var (
			p              domain.Product
			nutrimentsJSON []byte
		)

		dest := productDest(&p, &nutrimentsJSON)
		if withCount {
			dest = append(dest, &totalCount)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}

		if err := unmarshalNutriments(nutrimentsJSON, &p); err != nil {
			return nil, 0, err
		}

		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	if products == nil {
		products = []domain.Product{}
	}

	return products, totalCount, nil
}

// productDest builds the scan destination slice matching productColumns.
func productDest(p *domain.Product, nutrimentsJSON *[]byte) []any {
	return []any{
		&p.Code,
		&p.ProductName,
		&p.Brands,
		&p.Quantity,
		&p.Packaging,
		&p.Categories,
		&p.Labels,
		&p.Stores,
		&p.Countries,
		&p.IngredientsText,
		&p.Traces,
		&p.ServingSize,
		&p.ServingQuantity,
		&p.NutriscoreScore,
		&p.NutriscoreGrade,
		&p.EcoscoreScore,
		&p.EcoscoreGrade,
		&p.NovaGroup,
		&p.ImageURL,
		&p.ImageSmallURL,
		&p.CategoriesTags,
		&p.LabelsTags,
		&p.BrandsTags,
		&p.CountriesTags,
		nutrimentsJSON,
		&p.ViewCount,
		&p.CreatedT,
		&p.LastModifiedT,
	}
}

func marshalNutriments(n domain.Nutriments) ([]byte, error) {
	if n == nil {
		n = domain.Nutriments{}
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal nutriments: %w", err)
	}
	return raw, nil
}

func unmarshalNutriments(raw []byte, p *domain.Product) error {
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, &p.Nutriments); err != nil {
		return fmt.Errorf("unmarshal nutriments for %s: %w", p.Code, err)
	}
	return nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
