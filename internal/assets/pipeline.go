// Package assets refreshes the stored corporation inventory: it pages the
// inventory from the game API, names the location and type of every item,
// prices every distinct type and replaces the stored set in one step.
package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/buybackd/internal/esi"
	"github.com/rewired-gh/buybackd/internal/location"
	"github.com/rewired-gh/buybackd/internal/logger"
	"github.com/rewired-gh/buybackd/internal/metrics"
	"github.com/rewired-gh/buybackd/internal/models"
)

var (
	// ErrCredential aborts a refresh when no access token can be obtained.
	ErrCredential = errors.New("credential failure")
	// ErrAppraisal aborts a refresh when any pricing batch fails.
	ErrAppraisal = errors.New("appraisal failure")
	// ErrNoAssets aborts a refresh when the inventory is empty or no asset
	// survives location and type resolution.
	ErrNoAssets = errors.New("inventory returned no assets")
	// ErrAlreadyRunning is returned when a refresh is started while another is in progress.
	ErrAlreadyRunning = errors.New("asset refresh already running")
)

// Inventory pages the corporation inventory.
type Inventory interface {
	ListAssets(ctx context.Context, accessToken string, page int) ([]models.Asset, error)
}

// TypeLookup returns reference data of item types.
type TypeLookup interface {
	TypeInfo(ctx context.Context, typeID int64) (models.TypeInfo, error)
}

// Pricer appraises item types by name.
type Pricer interface {
	PriceByTypeNames(ctx context.Context, names []string) (*models.Appraisal, error)
}

// Store persists the enriched inventory.
type Store interface {
	ReplaceAssets(ctx context.Context, assets []models.Asset) error
}

// Config holds pipeline settings.
type Config struct {
	PageSize  int
	BatchSize int
	Ranges    location.Ranges
}

// Pipeline runs asset refresh cycles. At most one cycle runs at a time.
type Pipeline struct {
	cfg       Config
	tokens    location.TokenSource
	inventory Inventory
	lookup    location.Lookup
	types     TypeLookup
	pricer    Pricer
	store     Store
	metrics   *metrics.Registry

	running sync.Mutex
	now     func() time.Time
}

// New creates a refresh pipeline.
func New(cfg Config, tokens location.TokenSource, inventory Inventory, lookup location.Lookup,
	types TypeLookup, pricer Pricer, store Store, m *metrics.Registry) *Pipeline {
	if cfg.PageSize <= 0 {
		cfg.PageSize = esi.PageSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Pipeline{
		cfg:       cfg,
		tokens:    tokens,
		inventory: inventory,
		lookup:    lookup,
		types:     types,
		pricer:    pricer,
		store:     store,
		metrics:   m,
		now:       time.Now,
	}
}

// Refresh runs one full cycle. Stored assets are replaced only when every step
// succeeds; on any returned error the store is unchanged.
func (p *Pipeline) Refresh(ctx context.Context) error {
	if !p.running.TryLock() {
		return ErrAlreadyRunning
	}
	defer p.running.Unlock()

	start := p.now()
	logger.Info("Refreshing assets")

	token, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredential, err)
	}

	raw, err := p.collect(ctx, token)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return ErrNoAssets
	}
	logger.Info("Collected %d assets", len(raw))

	located := p.locate(ctx, raw)
	typed := p.describe(ctx, located)
	if len(typed) == 0 {
		return fmt.Errorf("%w: none of %d assets could be located and typed", ErrNoAssets, len(raw))
	}

	prices, err := p.price(ctx, typed)
	if err != nil {
		return err
	}

	snapshotID := uuid.New().String()
	updatedAt := p.now()
	for i := range typed {
		price, ok := prices[typed[i].TypeName]
		if !ok {
			logger.Warn("No price for %s, storing it at zero", typed[i].TypeName)
		}
		typed[i].Price = price
		typed[i].SnapshotID = snapshotID
		typed[i].UpdatedAt = updatedAt
	}

	if err := p.store.ReplaceAssets(ctx, typed); err != nil {
		return fmt.Errorf("failed to store assets: %w", err)
	}
	p.metrics.SetAssetsStored(len(typed))
	logger.Info("Asset refresh complete: stored %d of %d assets as snapshot %s in %s",
		len(typed), len(raw), snapshotID, p.now().Sub(start).Round(time.Millisecond))
	return nil
}

// collect pages the inventory until a short page or a missing page.
func (p *Pipeline) collect(ctx context.Context, token string) ([]models.Asset, error) {
	var all []models.Asset
	for page := 1; ; page++ {
		entries, err := p.inventory.ListAssets(ctx, token, page)
		if errors.Is(err, esi.ErrNoPage) {
			logger.Debug("Inventory page %d does not exist", page)
			return all, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list assets: %w", err)
		}
		all = append(all, entries...)
		logger.Debug("Inventory page %d returned %d entries", page, len(entries))
		if len(entries) < p.cfg.PageSize {
			return all, nil
		}
	}
}

// locate names the outermost location of each asset and drops the unresolved ones.
func (p *Pipeline) locate(ctx context.Context, raw []models.Asset) []models.Asset {
	hierarchy := location.BuildHierarchy(raw)
	logger.Debug("Built location hierarchy with %d entries for %d assets", hierarchy.Len(), len(raw))

	resolver := location.NewResolver(p.lookup, p.tokens, p.cfg.Ranges, p.metrics)
	kept := make([]models.Asset, 0, len(raw))
	for _, a := range raw {
		a.LocationName = resolver.Resolve(ctx, hierarchy.Root(a.LocationID))
		if a.LocationName == models.Unresolved {
			logger.Debug("Could not resolve location for asset %d", a.ItemID)
			continue
		}
		kept = append(kept, a)
	}

	st := resolver.Stats()
	logger.Info("Resolved locations for %d of %d assets (%d locations cached, %d unresolved)",
		len(kept), len(raw), st.Cached, st.Unresolved)
	return kept
}

// describe sets type name and unit volume, dropping assets of unknown types.
func (p *Pipeline) describe(ctx context.Context, assets []models.Asset) []models.Asset {
	kept := assets[:0]
	for _, a := range assets {
		info, err := p.types.TypeInfo(ctx, a.TypeID)
		if err != nil || info.Name == "" {
			logger.Warn("Could not resolve type %d of asset %d: %v", a.TypeID, a.ItemID, err)
			continue
		}
		a.TypeName = info.Name
		a.Volume = info.Volume
		kept = append(kept, a)
	}
	return kept
}

// price appraises the distinct type names in batches. Any failed batch fails
// the whole call.
func (p *Pipeline) price(ctx context.Context, assets []models.Asset) (map[string]float64, error) {
	names := distinctTypeNames(assets)
	logger.Info("Appraising %d item types", len(names))

	prices := make(map[string]float64, len(names))
	for start := 0; start < len(names); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(names))
		appraisal, err := p.pricer.PriceByTypeNames(ctx, names[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", ErrAppraisal, start, end, err)
		}
		for name, price := range appraisal.PricesByName() {
			prices[name] = price
		}
	}
	return prices, nil
}

func distinctTypeNames(assets []models.Asset) []string {
	seen := make(map[string]bool)
	var names []string
	for _, a := range assets {
		if seen[a.TypeName] {
			continue
		}
		seen[a.TypeName] = true
		names = append(names, a.TypeName)
	}
	return names
}
