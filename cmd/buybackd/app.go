package main

import (
	"context"
	"fmt"

	"github.com/rewired-gh/buybackd/internal/appraisal"
	"github.com/rewired-gh/buybackd/internal/assets"
	"github.com/rewired-gh/buybackd/internal/buyback"
	"github.com/rewired-gh/buybackd/internal/config"
	"github.com/rewired-gh/buybackd/internal/contracts"
	"github.com/rewired-gh/buybackd/internal/esi"
	"github.com/rewired-gh/buybackd/internal/location"
	"github.com/rewired-gh/buybackd/internal/logger"
	"github.com/rewired-gh/buybackd/internal/metrics"
	"github.com/rewired-gh/buybackd/internal/storage"
)

// app holds the wired services shared by all commands.
type app struct {
	cfg       *config.Config
	store     *storage.Storage
	metrics   *metrics.Registry
	assets    *assets.Pipeline
	rates     *buyback.Updater
	contracts *contracts.Updater
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	m := metrics.NewRegistry()
	if n, err := store.CountAssets(context.Background()); err != nil {
		logger.Warn("Failed to count stored assets: %v", err)
	} else {
		m.SetAssetsStored(n)
	}

	esiCfg := esi.ClientConfig{
		Timeout:    cfg.ESI.Timeout,
		MaxRetries: cfg.ESI.MaxRetries,
		RetryWait:  cfg.ESI.RetryWait,
		UserAgent:  cfg.ESI.UserAgent,
	}
	tokens := esi.NewTokenSource(cfg.ESI.LoginURL, cfg.ESI.ClientID, cfg.ESI.ClientSecret, cfg.ESI.RefreshToken, esiCfg)
	api := esi.NewClient(cfg.ESI.BaseURL, cfg.ESI.CorporationID, esiCfg)

	pricer := appraisal.NewClient(appraisal.Config{
		BaseURL:     cfg.Appraisal.BaseURL,
		Market:      cfg.Appraisal.Market,
		Timeout:     cfg.Appraisal.Timeout,
		MaxRetries:  cfg.Appraisal.MaxRetries,
		RetryWait:   cfg.Appraisal.RetryWait,
		DefaultRate: cfg.Appraisal.DefaultRate,
	}, store, m)

	ranges := location.Ranges{
		Space:            location.Range{Min: cfg.Location.Space.Min, Max: cfg.Location.Space.Max},
		Station:          location.Range{Min: cfg.Location.Station.Min, Max: cfg.Location.Station.Max},
		Office:           location.Range{Min: cfg.Location.Office.Min, Max: cfg.Location.Office.Max},
		OfficeSplit:      cfg.Location.OfficeSplit,
		OfficeLowOffset:  cfg.Location.OfficeLowOffset,
		OfficeHighOffset: cfg.Location.OfficeHighOffset,
	}

	return &app{
		cfg:     cfg,
		store:   store,
		metrics: m,
		assets: assets.New(assets.Config{
			PageSize:  esi.PageSize,
			BatchSize: cfg.Appraisal.BatchSize,
			Ranges:    ranges,
		}, tokens, api, api, api, pricer, store, m),
		rates: buyback.New(buyback.Config{
			Category:               cfg.Buyback.MoonOreCategory,
			MoonGooRate:            cfg.Buyback.MoonGooRate,
			FallbackIngredientRate: cfg.Buyback.FallbackIngredientRate,
		}, store, api, pricer, m),
		contracts: contracts.New(contracts.Config{
			Status:     cfg.Contracts.Status,
			BatchLimit: cfg.Contracts.BatchLimit,
			OreTypeIDs: cfg.Contracts.OreTypeIDs,
		}, store, pricer, m),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}

// refreshAssets, updateRates and updateContracts adapt the services to scheduler jobs.

func (a *app) refreshAssets(ctx context.Context) error {
	return a.assets.Refresh(ctx)
}

func (a *app) updateRates(ctx context.Context) error {
	_, err := a.rates.Update(ctx)
	return err
}

func (a *app) updateContracts(ctx context.Context) error {
	_, err := a.contracts.LoadOrePrices(ctx)
	return err
}

// seedReference stores the recipes and the seed rates of types that have no rate yet.
func (a *app) seedReference(ctx context.Context) error {
	if a.cfg.Reference.File == "" {
		logger.Debug("No reference file configured")
		return nil
	}
	ref, err := config.LoadReference(a.cfg.Reference.File)
	if err != nil {
		return err
	}
	if err := a.store.ReplaceIngredients(ctx, ref.TypeIngredients); err != nil {
		return err
	}
	inserted := 0
	for i := range ref.BuybackRates {
		ok, err := a.store.InsertRateIfMissing(ctx, &ref.BuybackRates[i])
		if err != nil {
			return err
		}
		if ok {
			inserted++
		}
	}
	logger.Info("Seeded %d recipes and %d of %d buyback rates from %s",
		len(ref.TypeIngredients), inserted, len(ref.BuybackRates), a.cfg.Reference.File)
	return nil
}
