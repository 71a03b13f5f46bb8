// Package buyback recomputes buyback rates of moon ores from the market value
// of what they reprocess into.
package buyback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rewired-gh/buybackd/internal/logger"
	"github.com/rewired-gh/buybackd/internal/metrics"
	"github.com/rewired-gh/buybackd/internal/models"
)

// minOreValue is the smallest ore value accepted as a rate denominator.
const minOreValue = 1e-9

var (
	// ErrAlreadyRunning is returned when an update is started while another is in progress.
	ErrAlreadyRunning = errors.New("rate update already running")
	// ErrZeroOreValue means the ore priced at zero, so no rate can be derived.
	ErrZeroOreValue = errors.New("ore value is zero")
	// ErrMissingPrice means a needed type was absent from the appraisal.
	ErrMissingPrice = errors.New("missing price")
)

// Store reads and writes rates and recipes.
type Store interface {
	RatesByCategory(ctx context.Context, category string) ([]models.TypeBuybackRate, error)
	RatesByTypeIDs(ctx context.Context, typeIDs []int64) (map[int64]float64, error)
	IngredientsByTypeIDs(ctx context.Context, typeIDs []int64) (map[int64]*models.TypeIngredients, error)
	UpsertRate(ctx context.Context, rate *models.TypeBuybackRate) error
}

// TypeNamer returns display names of item types.
type TypeNamer interface {
	TypeName(ctx context.Context, typeID int64) (string, error)
}

// Pricer appraises item types by name.
type Pricer interface {
	PriceByTypeNames(ctx context.Context, names []string) (*models.Appraisal, error)
}

// Config holds updater settings.
type Config struct {
	Category               string
	MoonGooRate            float64
	FallbackIngredientRate float64
}

// Result summarizes one update run.
type Result struct {
	Updated  int
	Skipped  int
	NoRecipe int
}

// Updater recomputes moon ore rates. At most one update runs at a time.
type Updater struct {
	cfg     Config
	store   Store
	types   TypeNamer
	pricer  Pricer
	metrics *metrics.Registry

	running sync.Mutex
}

// New creates a rate updater.
func New(cfg Config, store Store, types TypeNamer, pricer Pricer, m *metrics.Registry) *Updater {
	if cfg.Category == "" {
		cfg.Category = models.CategoryMoonOre
	}
	return &Updater{cfg: cfg, store: store, types: types, pricer: pricer, metrics: m}
}

// Update recomputes every rate of the configured category that has a recipe.
// A failure to price one entry skips that entry; an error is returned only
// when the rates or recipes cannot be loaded.
func (u *Updater) Update(ctx context.Context) (Result, error) {
	if !u.running.TryLock() {
		return Result{}, ErrAlreadyRunning
	}
	defer u.running.Unlock()

	start := time.Now()
	var res Result

	rates, err := u.store.RatesByCategory(ctx, u.cfg.Category)
	if err != nil {
		return res, fmt.Errorf("failed to load %s rates: %w", u.cfg.Category, err)
	}
	ids := make([]int64, len(rates))
	for i, r := range rates {
		ids[i] = r.TypeID
	}
	recipes, err := u.store.IngredientsByTypeIDs(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("failed to load recipes: %w", err)
	}
	logger.Info("Updating %d %s rates (%d with recipes)", len(rates), u.cfg.Category, len(recipes))

	// Prices are cached for this run only.
	prices := newPriceCache(u.types, u.pricer)

	for i := range rates {
		rate := rates[i]
		recipe, ok := recipes[rate.TypeID]
		if !ok {
			logger.Debug("No recipe for %s %d", rate.TypeName, rate.TypeID)
			res.NoRecipe++
			continue
		}
		newRate, err := u.rateFor(ctx, prices, recipe)
		if err != nil {
			logger.Error("Failed to update rate for %s %d: %v", rate.TypeName, rate.TypeID, err)
			u.metrics.RateSkipped()
			res.Skipped++
			continue
		}
		old := rate.Rate
		rate.Rate = newRate
		if err := u.store.UpsertRate(ctx, &rate); err != nil {
			logger.Error("Failed to store rate for %s %d: %v", rate.TypeName, rate.TypeID, err)
			u.metrics.RateSkipped()
			res.Skipped++
			continue
		}
		logger.Info("Rate for %s %d: %.4f -> %.4f", rate.TypeName, rate.TypeID, old, newRate)
		u.metrics.RateUpdated()
		res.Updated++
	}

	logger.Info("Rate update complete: %d updated, %d skipped, %d without recipe in %s",
		res.Updated, res.Skipped, res.NoRecipe, time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (u *Updater) rateFor(ctx context.Context, prices *priceCache, recipe *models.TypeIngredients) (float64, error) {
	ingredientIDs := recipe.IngredientTypeIDs()
	ingredientPrices, err := prices.get(ctx, ingredientIDs)
	if err != nil {
		return 0, err
	}
	ingredientRates, err := u.store.RatesByTypeIDs(ctx, ingredientIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load ingredient rates: %w", err)
	}
	orePrices, err := prices.get(ctx, []int64{recipe.TypeID})
	if err != nil {
		return 0, err
	}
	orePrice, ok := orePrices[recipe.TypeID]
	if !ok {
		return 0, fmt.Errorf("%w: ore %d", ErrMissingPrice, recipe.TypeID)
	}
	return ComputeRate(recipe, ingredientPrices, ingredientRates, orePrice, u.cfg.FallbackIngredientRate, u.cfg.MoonGooRate)
}

// ComputeRate derives an ore's buyback rate:
//
//	Σ quantity × price × (ingredient rate or fallback)
//	-------------------------------------------------- × moonGooRate
//	       orePrice × QuantityToReprocess
func ComputeRate(recipe *models.TypeIngredients, ingredientPrices, ingredientRates map[int64]float64,
	orePrice, fallbackRate, moonGooRate float64) (float64, error) {
	var ingredientValue float64
	for _, in := range recipe.Ingredients {
		price, ok := ingredientPrices[in.TypeID]
		if !ok {
			return 0, fmt.Errorf("%w: ingredient %d", ErrMissingPrice, in.TypeID)
		}
		rate, ok := ingredientRates[in.TypeID]
		if !ok {
			rate = fallbackRate
		}
		ingredientValue += float64(in.Quantity) * price * rate
	}

	oreValue := orePrice * float64(recipe.QuantityToReprocess)
	if oreValue <= minOreValue {
		return 0, fmt.Errorf("%w: type %d priced at %g", ErrZeroOreValue, recipe.TypeID, orePrice)
	}
	return ingredientValue / oreValue * moonGooRate, nil
}

// priceCache prices types by id and remembers every price it has seen.
type priceCache struct {
	types  TypeNamer
	pricer Pricer
	prices map[int64]float64
}

func newPriceCache(types TypeNamer, pricer Pricer) *priceCache {
	return &priceCache{types: types, pricer: pricer, prices: make(map[int64]float64)}
}

// get returns the known prices of ids, appraising only ids not seen before.
func (c *priceCache) get(ctx context.Context, ids []int64) (map[int64]float64, error) {
	out := make(map[int64]float64, len(ids))
	var names []string
	for _, id := range ids {
		if p, ok := c.prices[id]; ok {
			out[id] = p
			continue
		}
		name, err := c.types.TypeName(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to name type %d: %w", id, err)
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return out, nil
	}

	logger.Debug("Appraising %d types", len(names))
	appraisal, err := c.pricer.PriceByTypeNames(ctx, names)
	if err != nil {
		return nil, err
	}
	for id, p := range appraisal.PricesByTypeID() {
		c.prices[id] = p
		out[id] = p
	}
	return out, nil
}
