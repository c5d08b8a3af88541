package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/onyx-report/onyx-cli/internal/cost"
	"github.com/onyx-report/onyx-cli/internal/fci"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	FCI        fci.Bands        `yaml:"fci" mapstructure:"fci"`
	Costs      cost.Rates       `yaml:"costs" mapstructure:"costs"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Reports    ReportsConfig    `yaml:"reports" mapstructure:"reports"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	APITokens          []string `yaml:"api_tokens" mapstructure:"api_tokens"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit          float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst          int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures portfolio alerting.
type MonitoringConfig struct {
	Enabled                bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	Cron                   string  `yaml:"cron" mapstructure:"cron"`
	CriticalBuildingsMax   int     `yaml:"critical_buildings_max" mapstructure:"critical_buildings_max"`
	ImmediateCostThreshold float64 `yaml:"immediate_cost_threshold" mapstructure:"immediate_cost_threshold"`
	StaleDraftDays         int     `yaml:"stale_draft_days" mapstructure:"stale_draft_days"`
	StaleDraftsMax         int     `yaml:"stale_drafts_max" mapstructure:"stale_drafts_max"`
}

// ReportsConfig configures report regeneration.
type ReportsConfig struct {
	RefreshCron string `yaml:"refresh_cron" mapstructure:"refresh_cron"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ONYX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "onyx.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.api_tokens", []string{})
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.request_timeout_secs", 30)

	bands := fci.DefaultBands()
	v.SetDefault("fci.good", bands.Good)
	v.SetDefault("fci.fair", bands.Fair)
	v.SetDefault("fci.poor", bands.Poor)

	rates := cost.DefaultRates()
	v.SetDefault("costs.unrated_repair", rates.UnratedRepair)
	v.SetDefault("costs.fallback_cost_per_sqft", rates.FallbackCostPerSqft)

	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.cron", "0 */6 * * *")
	v.SetDefault("monitoring.critical_buildings_max", 0)
	v.SetDefault("monitoring.immediate_cost_threshold", 1_000_000.0)
	v.SetDefault("monitoring.stale_draft_days", 30)
	v.SetDefault("monitoring.stale_drafts_max", 10)
	v.SetDefault("reports.refresh_cron", "")
	v.SetDefault("reports.concurrency", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
