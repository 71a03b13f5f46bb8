package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewired-gh/buybackd/internal/config"
	"github.com/rewired-gh/buybackd/internal/logger"
	"github.com/rewired-gh/buybackd/internal/models"
	"github.com/rewired-gh/buybackd/internal/report"
	"github.com/rewired-gh/buybackd/internal/scheduler"
	"github.com/rewired-gh/buybackd/internal/status"
	"github.com/rewired-gh/buybackd/internal/telegram"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "buybackd",
	Short:         "Corporation asset enrichment and buyback pricing",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// Secrets may come from a .env file next to the binary.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
	rootCmd.AddCommand(serveCmd, refreshAssetsCmd, updateRatesCmd, updateContractsCmd,
		exportAssetsCmd, seedReferenceCmd, addContractCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

// loadApp loads and validates the configuration and wires the services.
func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", configPath)

	return newApp(cfg)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled jobs and the status server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		cfg := a.cfg

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := a.seedReference(ctx); err != nil {
			return fmt.Errorf("failed to seed reference data: %w", err)
		}

		var notifier scheduler.Notifier
		var telegramClient *telegram.Client
		if cfg.Telegram.Enabled {
			telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
			if err != nil {
				return fmt.Errorf("failed to initialize Telegram client: %w", err)
			}
			notifier = telegramClient
			logger.Info("Telegram client initialized successfully")
		} else {
			logger.Debug("Telegram notifications disabled")
		}

		sched := scheduler.New(notifier, a.metrics)
		jobs := []struct {
			name string
			spec string
			fn   scheduler.JobFunc
		}{
			{"assets", cfg.Scheduler.Assets, a.refreshAssets},
			{"rates", cfg.Scheduler.Rates, a.updateRates},
			{"contracts", cfg.Scheduler.Contracts, a.updateContracts},
		}
		for _, j := range jobs {
			if err := sched.Add(j.name, j.spec, j.fn); err != nil {
				return err
			}
		}

		if telegramClient != nil {
			telegramClient.ListenForCommands(ctx, sched)
		}

		var srv *status.Server
		if cfg.Status.Enabled {
			srv = status.NewServer(cfg.Status.ListenAddr, status.NewRouter(sched, a.store, a.metrics.Handler()))
			srv.Start()
		}

		sched.Start()
		if cfg.Scheduler.RunOnStart {
			logger.Debug("Running all jobs once on start")
			for _, j := range jobs {
				if err := sched.RunNow(j.name); err != nil {
					logger.Warn("Failed to start job %s: %v", j.name, err)
				}
			}
		}
		logger.Info("Service started (assets: %s, rates: %s, contracts: %s)",
			cfg.Scheduler.Assets, cfg.Scheduler.Rates, cfg.Scheduler.Contracts)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")

		cancel()
		sched.Stop()
		if srv != nil {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to stop status server: %v", err)
			}
		}
		logger.Info("Service stopped")
		return nil
	},
}

var refreshAssetsCmd = &cobra.Command{
	Use:   "refresh-assets",
	Short: "Run one asset refresh cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.refreshAssets(cmd.Context())
	},
}

var updateRatesCmd = &cobra.Command{
	Use:   "update-rates",
	Short: "Recompute moon ore buyback rates once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		res, err := a.rates.Update(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("updated %d, skipped %d, without recipe %d\n", res.Updated, res.Skipped, res.NoRecipe)
		return nil
	},
}

var updateContractsCmd = &cobra.Command{
	Use:   "update-contracts",
	Short: "Value pending contracts once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		res, err := a.contracts.LoadOrePrices(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("valued %d, cleared %d, failed %d\n", res.Valued, res.Cleared, res.Failed)
		return nil
	},
}

var exportOut string

var exportAssetsCmd = &cobra.Command{
	Use:   "export-assets",
	Short: "Write the stored inventory to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.store.ListAssets(cmd.Context())
		if err != nil {
			return err
		}
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		if err := report.ExportXLSX(f, list); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.Info("Exported %d assets to %s", len(list), exportOut)
		return nil
	},
}

var seedReferenceCmd = &cobra.Command{
	Use:   "seed-reference",
	Short: "Load recipes and seed buyback rates from the reference file",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if a.cfg.Reference.File == "" {
			return fmt.Errorf("reference.file is not configured")
		}
		return a.seedReference(cmd.Context())
	},
}

var (
	contractStatus string
	contractPrice  float64
)

var addContractCmd = &cobra.Command{
	Use:   "add-contract <id> <appraisal-link>",
	Short: "Register a contract for valuation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid contract id %q: %w", args[0], err)
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		inserted, err := a.store.InsertContractIfMissing(cmd.Context(), &models.Contract{
			ID:            id,
			Status:        contractStatus,
			AppraisalLink: args[1],
			Price:         contractPrice,
			IssuedAt:      time.Now(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("contract %d is already registered", id)
		}
		logger.Info("Registered contract %d", id)
		return nil
	},
}

func init() {
	exportAssetsCmd.Flags().StringVarP(&exportOut, "out", "o", "assets.xlsx", "Output file")
	addContractCmd.Flags().StringVar(&contractStatus, "status", models.ContractStatusFinished, "Contract status")
	addContractCmd.Flags().Float64Var(&contractPrice, "price", 0, "Contract price")
}
