// Package query compiles raw HTTP query parameters into a backend-agnostic
// set of filter predicates. Keys are classified deterministically by shape:
// a closed set of builtin parameters, the `*_tags` tag-filter convention,
// and the `_(gt|lt|eq)` numeric-comparison convention. Anything else is
// reserved and dropped, never guessed at.
package query

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Dev-Corgi/Calobite/pkg/pagination"
)

// Op is a numeric comparison operator.
type Op string

const (
	OpGt Op = "gt"
	OpLt Op = "lt"
	OpEq Op = "eq"
)

// TagPredicate filters on a tag-array column. MatchAny selects OR semantics
// (value contained a `|`); otherwise the record must carry every tag.
type TagPredicate struct {
	Field    string
	Tags     []string
	MatchAny bool
}

// NutrientPredicate is a numeric comparison against one nutriment sub-field.
type NutrientPredicate struct {
	Field string
	Op    Op
	Value float64
}

// Sort is an explicit result ordering. It is ignored while free-text search
// is active, where relevance ranking wins.
type Sort struct {
	Field      string
	Descending bool
}

// DroppedParam records a query parameter the compiler refused to interpret,
// so the handler can log it. Dropping is always per-filter; it never fails
// the whole request.
type DroppedParam struct {
	Key    string
	Value  string
	Reason string
}

// Query is the compiled, request-scoped filter set. Distinct predicates
// always combine with logical AND.
type Query struct {
	SearchTerms string
	Tags        []TagPredicate
	Nutrients   []NutrientPredicate
	Sort        *Sort
	Fields      []string
	Pagination  pagination.Params
	Dropped     []DroppedParam
}

// builtinParams are interpreted directly rather than classified as filters.
var builtinParams = map[string]struct{}{
	"search_terms": {},
	"page":         {},
	"page_size":    {},
	"sort_by":      {},
	"fields":       {},
}

// tagColumns is the closed set of tag-array fields that may be filtered.
// Unknown `*_tags` keys are dropped rather than passed to the datastore.
var tagColumns = map[string]struct{}{
	"categories_tags": {},
	"labels_tags":     {},
	"brands_tags":     {},
	"countries_tags":  {},
}

// IsTagColumn reports whether field is a filterable tag-array column.
func IsTagColumn(field string) bool {
	_, ok := tagColumns[field]
	return ok
}

var (
	comparisonRe = regexp.MustCompile(`^(.+)_(gt|lt|eq)$`)

	// nutrientFieldRe bounds the characters a nutriment key may contain.
	// The key is always bound as a query parameter, never interpolated,
	// but garbage keys are still rejected up front.
	nutrientFieldRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

	sortFieldRe = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

// lastValue implements the documented repeated-key policy: when a key is
// supplied more than once, the last occurrence wins.
func lastValue(vs []string) string {
	return vs[len(vs)-1]
}

// Parse compiles raw query parameters into a Query. It never fails: invalid
// input falls back to defaults (pagination), is dropped and reported
// (filters, sort), or is ignored (reserved keys).
func Parse(values url.Values) *Query {
	q := &Query{
		SearchTerms: strings.TrimSpace(lastOrEmpty(values, "search_terms")),
		Pagination:  pagination.FromValues(values),
	}

	if raw := lastOrEmpty(values, "fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				q.Fields = append(q.Fields, f)
			}
		}
	}

	q.parseSort(values)

	for key, vs := range values {
		if _, ok := builtinParams[key]; ok {
			continue
		}
		value := lastValue(vs)

		switch {
		case strings.HasSuffix(key, "_tags"):
			q.parseTagFilter(key, value)
		case comparisonRe.MatchString(key):
			q.parseNutrientFilter(key, value)
		default:
			// Reserved key: not a recognized filter shape. Never guessed
			// to be a tag or numeric filter.
			q.drop(key, value, "unrecognized parameter")
		}
	}

	return q
}

func lastOrEmpty(values url.Values, key string) string {
	vs := values[key]
	if len(vs) == 0 {
		return ""
	}
	return lastValue(vs)
}

func (q *Query) parseSort(values url.Values) {
	raw := lastOrEmpty(values, "sort_by")
	if raw == "" {
		return
	}

	if q.SearchTerms != "" {
		// Relevance ranking takes precedence over manual sort.
		q.drop("sort_by", raw, "ignored while search_terms is active")
		return
	}

	field, descending := raw, false
	if strings.HasPrefix(raw, "-") {
		field, descending = raw[1:], true
	}

	if !sortFieldRe.MatchString(field) {
		q.drop("sort_by", raw, "invalid sort field")
		return
	}

	q.Sort = &Sort{Field: field, Descending: descending}
}

func (q *Query) parseTagFilter(key, value string) {
	if !IsTagColumn(key) {
		q.drop(key, value, "unknown tag field")
		return
	}

	var (
		tags     []string
		matchAny bool
	)
	if strings.Contains(value, "|") {
		tags = splitClean(value, "|")
		matchAny = true
	} else {
		tags = splitClean(value, ",")
	}

	if len(tags) == 0 {
		q.drop(key, value, "empty tag list")
		return
	}

	q.Tags = append(q.Tags, TagPredicate{Field: key, Tags: tags, MatchAny: matchAny})
}

func (q *Query) parseNutrientFilter(key, value string) {
	m := comparisonRe.FindStringSubmatch(key)
	field, op := m[1], Op(m[2])

	if !nutrientFieldRe.MatchString(field) {
		q.drop(key, value, "invalid nutrient field")
		return
	}

	operand, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		// Documented contract: a malformed operand drops the filter, it
		// does not fail the request.
		q.drop(key, value, "malformed numeric operand")
		return
	}

	q.Nutrients = append(q.Nutrients, NutrientPredicate{Field: field, Op: op, Value: operand})
}

func (q *Query) drop(key, value, reason string) {
	q.Dropped = append(q.Dropped, DroppedParam{Key: key, Value: value, Reason: reason})
}

func splitClean(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
