package config

import (
	"fmt"

	"github.com/rewired-gh/buybackd/internal/models"
	"github.com/spf13/viper"
)

// Reference is the static reference data: reprocessing recipes and the
// initial buyback rates.
type Reference struct {
	TypeIngredients []models.TypeIngredients `mapstructure:"type_ingredients"`
	BuybackRates    []models.TypeBuybackRate `mapstructure:"buyback_rates"`
}

// LoadReference reads and validates a reference data file.
func LoadReference(path string) (*Reference, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read reference file: %w", err)
	}

	var ref Reference
	if err := v.Unmarshal(&ref); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reference file: %w", err)
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return &ref, nil
}

// Validate checks every recipe and rate, and rejects duplicate type ids.
func (r *Reference) Validate() error {
	recipes := make(map[int64]bool, len(r.TypeIngredients))
	for i := range r.TypeIngredients {
		t := &r.TypeIngredients[i]
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid type_ingredients entry: %w", err)
		}
		if recipes[t.TypeID] {
			return fmt.Errorf("duplicate recipe for type %d", t.TypeID)
		}
		recipes[t.TypeID] = true
	}

	rates := make(map[int64]bool, len(r.BuybackRates))
	for i := range r.BuybackRates {
		rate := &r.BuybackRates[i]
		if err := rate.Validate(); err != nil {
			return fmt.Errorf("invalid buyback_rates entry: %w", err)
		}
		if rates[rate.TypeID] {
			return fmt.Errorf("duplicate buyback rate for type %d", rate.TypeID)
		}
		rates[rate.TypeID] = true
	}
	return nil
}
