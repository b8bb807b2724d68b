package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Nutriment keys used across the service. The nutriments map is open-ended;
// these are the keys the service itself interprets.
const (
	NutrientEnergyKcal = "energy-kcal_100g"
	NutrientEnergy     = "energy_100g" // upstream convention: kJ
	NutrientEnergyKJ   = "energy-kj_100g"
	NutrientCarbs      = "carbohydrates_100g"
	NutrientProteins   = "proteins_100g"
	NutrientFat        = "fat_100g"
)

// KJPerKcal is the physical conversion constant between kilojoules and
// kilocalories: kcal = kJ / 4.184.
const KJPerKcal = 4.184

// Nutriments maps nutrient keys (e.g. "sugars_100g") to numeric or textual
// values. Any key may be absent.
type Nutriments map[string]any

// Product is a row of the food database, keyed by its barcode. All fields
// except the code are optional; JSON names follow the upstream food-data
// conventions.
type Product struct {
	Code            string     `json:"code"`
	ProductName     *string    `json:"product_name,omitempty"`
	Brands          *string    `json:"brands,omitempty"`
	Quantity        *string    `json:"quantity,omitempty"`
	Packaging       *string    `json:"packaging,omitempty"`
	Categories      *string    `json:"categories,omitempty"`
	Labels          *string    `json:"labels,omitempty"`
	Stores          *string    `json:"stores,omitempty"`
	Countries       *string    `json:"countries,omitempty"`
	IngredientsText *string    `json:"ingredients_text,omitempty"`
	Traces          *string    `json:"traces,omitempty"`
	ServingSize     *string    `json:"serving_size,omitempty"`
	ServingQuantity *float64   `json:"serving_quantity,omitempty"`
	NutriscoreScore *float64   `json:"nutriscore_score,omitempty"`
	NutriscoreGrade *string    `json:"nutriscore_grade,omitempty"`
	EcoscoreScore   *float64   `json:"ecoscore_score,omitempty"`
	EcoscoreGrade   *string    `json:"ecoscore_grade,omitempty"`
	NovaGroup       *float64   `json:"nova_group,omitempty"`
	ImageURL        *string    `json:"image_url,omitempty"`
	ImageSmallURL   *string    `json:"image_small_url,omitempty"`
	CategoriesTags  []string   `json:"categories_tags,omitempty"`
	LabelsTags      []string   `json:"labels_tags,omitempty"`
	BrandsTags      []string   `json:"brands_tags,omitempty"`
	CountriesTags   []string   `json:"countries_tags,omitempty"`
	Nutriments      Nutriments `json:"nutriments,omitempty"`
	CreatedT        *time.Time `json:"created_t,omitempty"`
	LastModifiedT   *time.Time `json:"last_modified_t,omitempty"`
	ViewCount       *int64     `json:"view_count,omitempty"`
}

// numberValue reports v as a float64 when it holds a numeric value. JSONB
// round-trips deliver float64; scans may deliver integer types.
func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// NormalizeNutriments returns a copy of n where "energy-kcal_100g" is a
// number whenever it can be derived. When the kcal value is already numeric
// the input map is returned as is; when it is derivable from "energy_100g"
// or "energy-kj_100g" (both kJ) a copy is returned with
// kcal = kJ / 4.184. A nil map stays nil. Never synthesizes zero.
func NormalizeNutriments(n Nutriments) Nutriments {
	if n == nil {
		return nil
	}

	if _, ok := numberValue(n[NutrientEnergyKcal]); ok {
		return n
	}

	kj, ok := numberValue(n[NutrientEnergy])
	if !ok {
		kj, ok = numberValue(n[NutrientEnergyKJ])
	}
	if !ok {
		return n
	}

	out := make(Nutriments, len(n)+1)
	for k, v := range n {
		out[k] = v
	}
	out[NutrientEnergyKcal] = kj / KJPerKcal
	return out
}

// Normalized returns a copy of the product with normalized nutriments. The
// receiver is never mutated; a product without a nutriments map is returned
// unchanged.
func (p *Product) Normalized() *Product {
	if p == nil || p.Nutriments == nil {
		return p
	}
	out := *p
	out.Nutriments = NormalizeNutriments(p.Nutriments)
	return &out
}

// Project reduces the product to the requested JSON fields. A nil or empty
// field list returns the full product as a map. Unknown field names are
// simply absent from the result.
func (p *Product) Project(fields []string) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal product %s: %w", p.Code, err)
	}

	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, fmt.Errorf("unmarshal product %s: %w", p.Code, err)
	}

	if len(fields) == 0 {
		return full, nil
	}

	projected := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := full[f]; ok {
			projected[f] = v
		}
	}
	return projected, nil
}

// Macro is one slice of the macro-nutrient breakdown.
type Macro struct {
	Name    string  `json:"name"`
	Grams   float64 `json:"grams"`
	Percent int     `json:"percent"`
}

// MacroRatio computes the carbohydrate/protein/fat split per 100g for the
// nutrition pie chart. Missing values count as zero; a zero total yields
// zero percentages rather than NaN.
func (n Nutriments) MacroRatio() []Macro {
	carbs, _ := numberValue(n[NutrientCarbs])
	protein, _ := numberValue(n[NutrientProteins])
	fat, _ := numberValue(n[NutrientFat])

	total := carbs + protein + fat
	pct := func(v float64) int {
		if total <= 0 {
			return 0
		}
		return int(v/total*100 + 0.5)
	}

	return []Macro{
		{Name: "carbohydrates", Grams: carbs, Percent: pct(carbs)},
		{Name: "proteins", Grams: protein, Percent: pct(protein)},
		{Name: "fat", Grams: fat, Percent: pct(fat)},
	}
}
