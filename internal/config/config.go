// Package config loads and validates buybackd configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	ESI       ESIConfig       `mapstructure:"esi"`
	Appraisal AppraisalConfig `mapstructure:"appraisal"`
	Location  LocationConfig  `mapstructure:"location"`
	Buyback   BuybackConfig   `mapstructure:"buyback"`
	Contracts ContractsConfig `mapstructure:"contracts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Status    StatusConfig    `mapstructure:"status"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ESIConfig holds game API and SSO configuration
type ESIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	LoginURL      string        `mapstructure:"login_url"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	RefreshToken  string        `mapstructure:"refresh_token"`
	CorporationID int64         `mapstructure:"corporation_id"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryWait     time.Duration `mapstructure:"retry_wait"`
}

// AppraisalConfig holds appraisal service configuration
type AppraisalConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Market      string        `mapstructure:"market"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryWait   time.Duration `mapstructure:"retry_wait"`
	BatchSize   int           `mapstructure:"batch_size"`
	DefaultRate float64       `mapstructure:"default_rate"`
}

// RangeConfig is an inclusive id range.
type RangeConfig struct {
	Min int64 `mapstructure:"min"`
	Max int64 `mapstructure:"max"`
}

// LocationConfig holds the location id classification table
type LocationConfig struct {
	Space   RangeConfig `mapstructure:"space"`
	Station RangeConfig `mapstructure:"station"`
	Office  RangeConfig `mapstructure:"office"`
	// Office ids below OfficeSplit are shifted by OfficeLowOffset, the rest by OfficeHighOffset.
	OfficeSplit      int64 `mapstructure:"office_split"`
	OfficeLowOffset  int64 `mapstructure:"office_low_offset"`
	OfficeHighOffset int64 `mapstructure:"office_high_offset"`
}

// BuybackConfig holds the buyback rate updater configuration
type BuybackConfig struct {
	MoonGooRate            float64 `mapstructure:"moon_goo_rate"`
	FallbackIngredientRate float64 `mapstructure:"fallback_ingredient_rate"`
	MoonOreCategory        string  `mapstructure:"moon_ore_category"`
}

// ContractsConfig holds the contract valuation configuration
type ContractsConfig struct {
	BatchLimit int     `mapstructure:"batch_limit"`
	Status     string  `mapstructure:"status"`
	OreTypeIDs []int64 `mapstructure:"ore_type_ids"`
}

// SchedulerConfig holds cron specs for the periodic jobs
type SchedulerConfig struct {
	Assets     string `mapstructure:"assets"`
	Rates      string `mapstructure:"rates"`
	Contracts  string `mapstructure:"contracts"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// ReferenceConfig points at the recipe and seed rate file
type ReferenceConfig struct {
	File string `mapstructure:"file"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StatusConfig holds the health and metrics endpoint configuration
type StatusConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var envKeyReplacer = strings.NewReplacer(".", "_")

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// BUYBACK_ESI_REFRESH_TOKEN overrides esi.refresh_token
	v.SetEnvPrefix("BUYBACK")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("esi.base_url", "https://esi.evetech.net/latest")
	v.SetDefault("esi.login_url", "https://login.eveonline.com/v2/oauth/token")
	v.SetDefault("esi.client_id", "")
	v.SetDefault("esi.client_secret", "")
	v.SetDefault("esi.refresh_token", "")
	v.SetDefault("esi.corporation_id", 0)
	v.SetDefault("esi.user_agent", "buybackd")
	v.SetDefault("esi.timeout", "30s")
	v.SetDefault("esi.max_retries", 3)
	v.SetDefault("esi.retry_wait", "1s")

	v.SetDefault("appraisal.base_url", "https://evepraisal.com")
	v.SetDefault("appraisal.market", "jita")
	v.SetDefault("appraisal.timeout", "30s")
	v.SetDefault("appraisal.max_retries", 3)
	v.SetDefault("appraisal.retry_wait", "1s")
	v.SetDefault("appraisal.batch_size", 100)
	v.SetDefault("appraisal.default_rate", 0.9)

	v.SetDefault("location.space.min", 30000000)
	v.SetDefault("location.space.max", 32000000)
	v.SetDefault("location.station.min", 60000000)
	v.SetDefault("location.station.max", 65999999)
	v.SetDefault("location.office.min", 66000000)
	v.SetDefault("location.office.max", 68000000)
	v.SetDefault("location.office_split", 67000000)
	v.SetDefault("location.office_low_offset", 6000001)
	v.SetDefault("location.office_high_offset", 6000000)

	v.SetDefault("buyback.moon_goo_rate", 0.0) // required
	v.SetDefault("buyback.fallback_ingredient_rate", 0.9)
	v.SetDefault("buyback.moon_ore_category", "MOON_ORE")

	v.SetDefault("contracts.batch_limit", 50)
	v.SetDefault("contracts.status", "finished")

	v.SetDefault("scheduler.assets", "@every 1h")
	v.SetDefault("scheduler.rates", "@every 2h")
	v.SetDefault("scheduler.contracts", "@every 2m")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("storage.db_path", "")

	v.SetDefault("reference.file", "")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("status.enabled", true)
	v.SetDefault("status.listen_addr", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.ESI.BaseURL == "" {
		return fmt.Errorf("esi.base_url is required")
	}
	if c.ESI.LoginURL == "" {
		return fmt.Errorf("esi.login_url is required")
	}
	if c.ESI.ClientID == "" || c.ESI.ClientSecret == "" {
		return fmt.Errorf("esi.client_id and esi.client_secret are required")
	}
	if c.ESI.RefreshToken == "" {
		return fmt.Errorf("esi.refresh_token is required")
	}
	if c.ESI.CorporationID <= 0 {
		return fmt.Errorf("esi.corporation_id must be positive")
	}
	if c.ESI.MaxRetries < 0 {
		return fmt.Errorf("esi.max_retries must not be negative")
	}

	if c.Appraisal.BaseURL == "" {
		return fmt.Errorf("appraisal.base_url is required")
	}
	if c.Appraisal.BatchSize < 1 || c.Appraisal.BatchSize > 100 {
		return fmt.Errorf("appraisal.batch_size must be between 1 and 100")
	}
	if !inUnitInterval(c.Appraisal.DefaultRate) {
		return fmt.Errorf("appraisal.default_rate must be in (0, 1]")
	}

	if err := c.Location.validate(); err != nil {
		return err
	}

	if !inUnitInterval(c.Buyback.MoonGooRate) {
		return fmt.Errorf("buyback.moon_goo_rate must be in (0, 1]")
	}
	if !inUnitInterval(c.Buyback.FallbackIngredientRate) {
		return fmt.Errorf("buyback.fallback_ingredient_rate must be in (0, 1]")
	}
	if c.Buyback.MoonOreCategory == "" {
		return fmt.Errorf("buyback.moon_ore_category is required")
	}

	if c.Contracts.BatchLimit < 1 {
		return fmt.Errorf("contracts.batch_limit must be at least 1")
	}
	if c.Contracts.Status == "" {
		return fmt.Errorf("contracts.status is required")
	}

	for name, spec := range map[string]string{
		"scheduler.assets":    c.Scheduler.Assets,
		"scheduler.rates":     c.Scheduler.Rates,
		"scheduler.contracts": c.Scheduler.Contracts,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s is not a valid schedule: %w", name, err)
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Status.Enabled && c.Status.ListenAddr == "" {
		return fmt.Errorf("status.listen_addr is required when status is enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

func (l LocationConfig) validate() error {
	ranges := []struct {
		name string
		r    RangeConfig
	}{
		{"location.space", l.Space},
		{"location.station", l.Station},
		{"location.office", l.Office},
	}
	for i, a := range ranges {
		if a.r.Min <= 0 || a.r.Min > a.r.Max {
			return fmt.Errorf("%s must satisfy 0 < min <= max", a.name)
		}
		for _, b := range ranges[i+1:] {
			if a.r.Min <= b.r.Max && b.r.Min <= a.r.Max {
				return fmt.Errorf("%s overlaps %s", a.name, b.name)
			}
		}
	}
	if l.OfficeSplit < l.Office.Min || l.OfficeSplit > l.Office.Max {
		return fmt.Errorf("location.office_split must lie within location.office")
	}
	if l.OfficeLowOffset < 0 || l.OfficeHighOffset < 0 {
		return fmt.Errorf("location office offsets must not be negative")
	}
	return nil
}

func inUnitInterval(f float64) bool {
	return f > 0 && f <= 1
}
