package models

import (
	"errors"
	"fmt"
)

// CategoryMoonOre is the buyback category of moon ores, priced from their ingredients.
const CategoryMoonOre = "MOON_ORE"

// ItemWithQuantity pairs a type with an amount.
type ItemWithQuantity struct {
	TypeID   int64 `json:"type_id" mapstructure:"type_id"`
	Quantity int64 `json:"quantity" mapstructure:"quantity"`
}

// TypeIngredients is a reprocessing recipe: QuantityToReprocess units of TypeID
// yield the listed ingredients.
type TypeIngredients struct {
	TypeID              int64              `json:"type_id" mapstructure:"type_id"`
	QuantityToReprocess int64              `json:"quantity_to_reprocess" mapstructure:"quantity_to_reprocess"`
	Ingredients         []ItemWithQuantity `json:"ingredients" mapstructure:"ingredients"`
}

// IngredientTypeIDs returns the distinct ingredient type ids in recipe order.
func (t *TypeIngredients) IngredientTypeIDs() []int64 {
	seen := make(map[int64]bool, len(t.Ingredients))
	ids := make([]int64, 0, len(t.Ingredients))
	for _, in := range t.Ingredients {
		if seen[in.TypeID] {
			continue
		}
		seen[in.TypeID] = true
		ids = append(ids, in.TypeID)
	}
	return ids
}

// Validate checks recipe constraints.
func (t *TypeIngredients) Validate() error {
	if t.TypeID <= 0 {
		return errors.New("recipe type ID must be positive")
	}
	if t.QuantityToReprocess <= 0 {
		return fmt.Errorf("recipe %d: quantity to reprocess must be positive", t.TypeID)
	}
	if len(t.Ingredients) == 0 {
		return fmt.Errorf("recipe %d: must list at least one ingredient", t.TypeID)
	}
	for _, in := range t.Ingredients {
		if in.TypeID <= 0 || in.Quantity <= 0 {
			return fmt.Errorf("recipe %d: ingredient type and quantity must be positive", t.TypeID)
		}
	}
	return nil
}

// TypeBuybackRate is the fraction of market price paid for a type.
type TypeBuybackRate struct {
	TypeID   int64   `json:"type_id" mapstructure:"type_id"`
	TypeName string  `json:"type_name" mapstructure:"type_name"`
	Category string  `json:"category" mapstructure:"category"`
	Rate     float64 `json:"rate" mapstructure:"rate"`
}

// Validate checks rate constraints.
func (r *TypeBuybackRate) Validate() error {
	if r.TypeID <= 0 {
		return errors.New("rate type ID must be positive")
	}
	if r.Category == "" {
		return fmt.Errorf("rate %d: category must not be empty", r.TypeID)
	}
	if r.Rate < 0 {
		return fmt.Errorf("rate %d: rate must not be negative", r.TypeID)
	}
	return nil
}

// AppraisalItem is one priced line of an appraisal.
type AppraisalItem struct {
	TypeID       int64
	TypeName     string
	Quantity     int64
	JitaBuyPrice float64
	Rate         float64
}

// BuybackValue is unit price times quantity times rate.
func (i AppraisalItem) BuybackValue() float64 {
	return i.JitaBuyPrice * float64(i.Quantity) * i.Rate
}

// Appraisal is the result of one pricing request.
type Appraisal struct {
	ID    string
	Items []AppraisalItem
}

// PricesByName maps type name to Jita buy price per unit.
func (a *Appraisal) PricesByName() map[string]float64 {
	out := make(map[string]float64, len(a.Items))
	for _, it := range a.Items {
		out[it.TypeName] = it.JitaBuyPrice
	}
	return out
}

// PricesByTypeID maps type id to Jita buy price per unit.
func (a *Appraisal) PricesByTypeID() map[int64]float64 {
	out := make(map[int64]float64, len(a.Items))
	for _, it := range a.Items {
		out[it.TypeID] = it.JitaBuyPrice
	}
	return out
}
