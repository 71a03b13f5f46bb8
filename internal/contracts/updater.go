// Package contracts values finished contracts from their appraisal links,
// split into ore and everything else.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rewired-gh/buybackd/internal/appraisal"
	"github.com/rewired-gh/buybackd/internal/logger"
	"github.com/rewired-gh/buybackd/internal/metrics"
	"github.com/rewired-gh/buybackd/internal/models"
)

// ErrAlreadyRunning is returned when a run is started while another is in progress.
var ErrAlreadyRunning = errors.New("contract valuation already running")

// Store reads and writes contracts.
type Store interface {
	PendingContracts(ctx context.Context, status string, limit int) ([]*models.Contract, error)
	SaveContract(ctx context.Context, c *models.Contract) error
}

// Appraiser re-reads appraisals from their links.
type Appraiser interface {
	PriceByReference(ctx context.Context, link string) (*models.Appraisal, error)
}

// Config holds updater settings.
type Config struct {
	Status     string
	BatchLimit int
	OreTypeIDs []int64
}

// Result summarizes one run.
type Result struct {
	Valued  int
	Cleared int
	Failed  int
}

// Updater values pending contracts. At most one run is active at a time.
type Updater struct {
	cfg       Config
	oreIDs    map[int64]bool
	store     Store
	appraiser Appraiser
	metrics   *metrics.Registry

	running sync.Mutex
}

// New creates a contract updater. An empty OreTypeIDs uses DefaultOreTypeIDs.
func New(cfg Config, store Store, appraiser Appraiser, m *metrics.Registry) *Updater {
	if cfg.Status == "" {
		cfg.Status = models.ContractStatusFinished
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 50
	}
	if len(cfg.OreTypeIDs) == 0 {
		cfg.OreTypeIDs = DefaultOreTypeIDs()
	}
	oreIDs := make(map[int64]bool, len(cfg.OreTypeIDs))
	for _, id := range cfg.OreTypeIDs {
		oreIDs[id] = true
	}
	return &Updater{cfg: cfg, oreIDs: oreIDs, store: store, appraiser: appraiser, metrics: m}
}

// LoadOrePrices values up to BatchLimit pending contracts. Failures of single
// contracts are logged and counted; an error is returned only when the
// pending contracts cannot be loaded.
func (u *Updater) LoadOrePrices(ctx context.Context) (Result, error) {
	if !u.running.TryLock() {
		return Result{}, ErrAlreadyRunning
	}
	defer u.running.Unlock()

	start := time.Now()
	var res Result

	pending, err := u.store.PendingContracts(ctx, u.cfg.Status, u.cfg.BatchLimit)
	if err != nil {
		return res, fmt.Errorf("failed to load pending contracts: %w", err)
	}
	logger.Info("Valuing %d contracts", len(pending))

	for _, c := range pending {
		if c.Valued() {
			logger.Debug("Contract %d is already valued, skipping", c.ID)
			continue
		}
		switch u.value(ctx, c) {
		case outcomeValued:
			res.Valued++
		case outcomeCleared:
			res.Cleared++
		default:
			res.Failed++
		}
	}

	logger.Info("Contract valuation complete: %d valued, %d cleared, %d failed in %s",
		res.Valued, res.Cleared, res.Failed, time.Since(start).Round(time.Millisecond))
	return res, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeValued
	outcomeCleared
)

func (u *Updater) value(ctx context.Context, c *models.Contract) outcome {
	a, err := u.appraiser.PriceByReference(ctx, c.AppraisalLink)
	if err != nil {
		logger.Error("Failed to load appraisal %s of contract %d: %v", c.AppraisalLink, c.ID, err)
		if !appraisal.IsNotFound(err) {
			u.metrics.ContractValued("failed")
			return outcomeFailed
		}
		c.AppraisalLink = ""
		if err := u.store.SaveContract(ctx, c); err != nil {
			logger.Error("Failed to clear appraisal link of contract %d: %v", c.ID, err)
			u.metrics.ContractValued("failed")
			return outcomeFailed
		}
		u.metrics.ContractValued("cleared")
		return outcomeCleared
	}

	ore, other := Valuate(a.Items, u.oreIDs)
	c.OreValue = &ore
	c.OtherValue = &other
	if err := u.store.SaveContract(ctx, c); err != nil {
		logger.Error("Failed to save contract %d: %v", c.ID, err)
		u.metrics.ContractValued("failed")
		return outcomeFailed
	}
	logger.Info("Valued contract %d: ore %.2f, other %.2f", c.ID, ore, other)
	u.metrics.ContractValued("valued")
	return outcomeValued
}

// Valuate sums price × quantity × rate of the items, split by membership in oreIDs.
func Valuate(items []models.AppraisalItem, oreIDs map[int64]bool) (ore, other float64) {
	for _, it := range items {
		if oreIDs[it.TypeID] {
			ore += it.BuybackValue()
		} else {
			other += it.BuybackValue()
		}
	}
	return ore, other
}

// DefaultOreTypeIDs returns the type ids of the minerals and compressed ores
// counted as ore.
func DefaultOreTypeIDs() []int64 {
	ids := []int64{34, 35, 36, 37, 38, 39, 40, 11399, 28367, 28368}
	for id := int64(28385); id <= 28444; id++ {
		ids = append(ids, id)
	}
	for id := int64(28448); id <= 28505; id++ {
		ids = append(ids, id)
	}
	return ids
}
