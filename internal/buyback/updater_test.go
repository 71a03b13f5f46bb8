package buyback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/rewired-gh/buybackd/internal/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeRate(t *testing.T) {
	recipe := &models.TypeIngredients{
		TypeID:              45490,
		QuantityToReprocess: 1,
		Ingredients:         []models.ItemWithQuantity{{TypeID: 1, Quantity: 2}, {TypeID: 2, Quantity: 1}},
	}
	prices := map[int64]float64{1: 10, 2: 5}
	rates := map[int64]float64{1: 0.9}

	got, err := ComputeRate(recipe, prices, rates, 100, 0.9, 0.8)
	if err != nil {
		t.Fatalf("ComputeRate() error = %v", err)
	}
	// (2*10*0.9 + 1*5*0.9) / (100*1) * 0.8
	if want := 22.5 / 100 * 0.8; !almostEqual(got, want) {
		t.Errorf("ComputeRate() = %v, want %v", got, want)
	}
}

func TestComputeRate_UsesIngredientRate(t *testing.T) {
	recipe := &models.TypeIngredients{
		TypeID:              45490,
		QuantityToReprocess: 100,
		Ingredients:         []models.ItemWithQuantity{{TypeID: 16634, Quantity: 65}},
	}
	got, err := ComputeRate(recipe, map[int64]float64{16634: 200}, map[int64]float64{16634: 0.5}, 100, 0.9, 1)
	if err != nil {
		t.Fatalf("ComputeRate() error = %v", err)
	}
	if want := 65 * 200 * 0.5 / (100 * 100.0); !almostEqual(got, want) {
		t.Errorf("ComputeRate() = %v, want %v", got, want)
	}
}

func TestComputeRate_Errors(t *testing.T) {
	recipe := &models.TypeIngredients{
		TypeID:              45490,
		QuantityToReprocess: 100,
		Ingredients:         []models.ItemWithQuantity{{TypeID: 1, Quantity: 2}},
	}
	tests := []struct {
		name     string
		prices   map[int64]float64
		orePrice float64
		want     error
	}{
		{"zero ore price", map[int64]float64{1: 10}, 0, ErrZeroOreValue},
		{"tiny ore price", map[int64]float64{1: 10}, 1e-12, ErrZeroOreValue},
		{"missing ingredient", map[int64]float64{}, 100, ErrMissingPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeRate(recipe, tt.prices, nil, tt.orePrice, 0.9, 1)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

type fakeStore struct {
	rates    map[int64]models.TypeBuybackRate
	recipes  map[int64]*models.TypeIngredients
	upserted []models.TypeBuybackRate
}

func (f *fakeStore) RatesByCategory(_ context.Context, category string) ([]models.TypeBuybackRate, error) {
	var out []models.TypeBuybackRate
	for _, id := range []int64{100, 200, 300, 400} {
		if r, ok := f.rates[id]; ok && r.Category == category {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) RatesByTypeIDs(_ context.Context, ids []int64) (map[int64]float64, error) {
	out := map[int64]float64{}
	for _, id := range ids {
		if r, ok := f.rates[id]; ok {
			out[id] = r.Rate
		}
	}
	return out, nil
}

func (f *fakeStore) IngredientsByTypeIDs(_ context.Context, ids []int64) (map[int64]*models.TypeIngredients, error) {
	out := map[int64]*models.TypeIngredients{}
	for _, id := range ids {
		if r, ok := f.recipes[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertRate(_ context.Context, r *models.TypeBuybackRate) error {
	f.upserted = append(f.upserted, *r)
	f.rates[r.TypeID] = *r
	return nil
}

type fakeTypes struct{}

func (fakeTypes) TypeName(_ context.Context, id int64) (string, error) {
	return fmt.Sprintf("Type %d", id), nil
}

type fakePricer struct {
	prices    map[int64]float64
	failFor   map[string]bool
	requested map[string]int
}

func (f *fakePricer) PriceByTypeNames(_ context.Context, names []string) (*models.Appraisal, error) {
	a := &models.Appraisal{}
	for _, n := range names {
		f.requested[n]++
		if f.failFor[n] {
			return nil, errors.New("appraisal request failed: status \"502 Bad Gateway\"")
		}
		var id int64
		if _, err := fmt.Sscanf(n, "Type %d", &id); err != nil {
			return nil, err
		}
		if p, ok := f.prices[id]; ok {
			a.Items = append(a.Items, models.AppraisalItem{TypeID: id, TypeName: n, Quantity: 1, JitaBuyPrice: p})
		}
	}
	return a, nil
}

func newFixture() (*fakeStore, *fakePricer) {
	store := &fakeStore{
		rates: map[int64]models.TypeBuybackRate{
			100: {TypeID: 100, TypeName: "Zeolites", Category: models.CategoryMoonOre, Rate: 0.5},
			200: {TypeID: 200, TypeName: "Sylvite", Category: models.CategoryMoonOre, Rate: 0.5},
			300: {TypeID: 300, TypeName: "Bitumens", Category: models.CategoryMoonOre, Rate: 0.5},
			400: {TypeID: 400, TypeName: "Coesite", Category: models.CategoryMoonOre, Rate: 0.5},
			1:   {TypeID: 1, Category: "MOON_GOO", Rate: 0.9},
		},
		recipes: map[int64]*models.TypeIngredients{
			100: {TypeID: 100, QuantityToReprocess: 1, Ingredients: []models.ItemWithQuantity{{TypeID: 1, Quantity: 2}, {TypeID: 2, Quantity: 1}}},
			200: {TypeID: 200, QuantityToReprocess: 1, Ingredients: []models.ItemWithQuantity{{TypeID: 1, Quantity: 4}}},
			300: {TypeID: 300, QuantityToReprocess: 1, Ingredients: []models.ItemWithQuantity{{TypeID: 3, Quantity: 1}}},
		},
	}
	pricer := &fakePricer{
		prices:    map[int64]float64{1: 10, 2: 5, 3: 7, 100: 100, 200: 80, 300: 0},
		failFor:   map[string]bool{},
		requested: map[string]int{},
	}
	return store, pricer
}

func TestUpdate(t *testing.T) {
	store, pricer := newFixture()
	u := New(Config{MoonGooRate: 0.8, FallbackIngredientRate: 0.9}, store, fakeTypes{}, pricer, nil)

	res, err := u.Update(context.Background())
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	// 300 prices at zero and is skipped, 400 has no recipe.
	if res.Updated != 2 || res.Skipped != 1 || res.NoRecipe != 1 {
		t.Errorf("Result = %+v", res)
	}
	if got, want := store.rates[100].Rate, 22.5/100*0.8; !almostEqual(got, want) {
		t.Errorf("rate 100 = %v, want %v", got, want)
	}
	if got, want := store.rates[200].Rate, 4*10*0.9/80*0.8; !almostEqual(got, want) {
		t.Errorf("rate 200 = %v, want %v", got, want)
	}
	if store.rates[300].Rate != 0.5 {
		t.Errorf("zero-priced ore rate changed to %v", store.rates[300].Rate)
	}
	if pricer.requested["Type 1"] != 1 {
		t.Errorf("shared ingredient appraised %d times, want 1", pricer.requested["Type 1"])
	}
}

func TestUpdate_AppraisalFailureSkipsEntry(t *testing.T) {
	store, pricer := newFixture()
	pricer.failFor["Type 100"] = true
	u := New(Config{MoonGooRate: 1, FallbackIngredientRate: 0.9}, store, fakeTypes{}, pricer, nil)

	res, err := u.Update(context.Background())
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if store.rates[100].Rate != 0.5 {
		t.Error("failed entry must keep its rate")
	}
	if !almostEqual(store.rates[200].Rate, 4*10*0.9/80) {
		t.Errorf("next entry not processed: %v", store.rates[200].Rate)
	}
	if res.Updated != 1 || res.Skipped != 2 {
		t.Errorf("Result = %+v", res)
	}
}

func TestUpdate_PriceCacheResetEachRun(t *testing.T) {
	store, pricer := newFixture()
	u := New(Config{MoonGooRate: 1, FallbackIngredientRate: 0.9}, store, fakeTypes{}, pricer, nil)

	if _, err := u.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	pricer.prices[1] = 20
	if _, err := u.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if pricer.requested["Type 1"] != 2 {
		t.Errorf("ingredient appraised %d times over two runs, want 2", pricer.requested["Type 1"])
	}
	if !almostEqual(store.rates[200].Rate, 4*20*0.9/80) {
		t.Errorf("second run used stale price: %v", store.rates[200].Rate)
	}
}
