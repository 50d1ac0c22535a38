// Package config loads application configuration and initializes logging.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Model      ModelConfig      `yaml:"model" mapstructure:"model"`
	Features   FeaturesConfig   `yaml:"features" mapstructure:"features"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the database backend. Driver "none" disables
// prediction history and source caching.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ModelConfig points at the exported regression model.
type ModelConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	ColumnsPath string `yaml:"columns_path" mapstructure:"columns_path"`
}

// FeaturesConfig tunes feature assembly.
type FeaturesConfig struct {
	Defaults       map[string]float64 `yaml:"defaults" mapstructure:"defaults"`
	DistanceMetric string             `yaml:"distance_metric" mapstructure:"distance_metric"`
}

// SourcesConfig holds per-source settings.
type SourcesConfig struct {
	Nearest    NearestConfig    `yaml:"nearest" mapstructure:"nearest"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Elevation  ElevationConfig  `yaml:"elevation" mapstructure:"elevation"`
	Rainfall   RainfallConfig   `yaml:"rainfall" mapstructure:"rainfall"`
	Population PopulationConfig `yaml:"population" mapstructure:"population"`
}

// NearestConfig selects the backend for nearest-feature distances.
// Backend is one of "overpass", "shapefile", "postgis".
type NearestConfig struct {
	Backend    string            `yaml:"backend" mapstructure:"backend"`
	Shapefiles map[string]string `yaml:"shapefiles" mapstructure:"shapefiles"`
	Table      string            `yaml:"table" mapstructure:"table"`
}

// OverpassConfig holds Overpass API settings.
type OverpassConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Country     string  `yaml:"country" mapstructure:"country"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ElevationConfig holds Open-Elevation settings.
type ElevationConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RainfallConfig holds NASA POWER settings.
type RainfallConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Parameter   string  `yaml:"parameter" mapstructure:"parameter"`
	Community   string  `yaml:"community" mapstructure:"community"`
	Scale       float64 `yaml:"scale" mapstructure:"scale"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PopulationConfig selects the population density raster.
// Backend is one of "ascii", "postgis".
type PopulationConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`
	RasterPath string `yaml:"raster_path" mapstructure:"raster_path"`
	Table      string `yaml:"table" mapstructure:"table"`
}

// ResilienceConfig configures retry and circuit breaking for external sources.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// CacheConfig sets source cache lifetimes.
type CacheConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	OverpassTTLHours int  `yaml:"overpass_ttl_hours" mapstructure:"overpass_ttl_hours"`
	PointTTLHours    int  `yaml:"point_ttl_hours" mapstructure:"point_ttl_hours"`
}

// BatchConfig configures the batch command.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HMPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.request_timeout_secs", 90)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "hmpi.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("model.path", "model/hmpi_predictor_model.json")
	v.SetDefault("features.distance_metric", "planar")
	v.SetDefault("sources.nearest.backend", "overpass")
	v.SetDefault("sources.nearest.table", "features.feature_points")
	v.SetDefault("sources.overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("sources.overpass.country", "IN")
	v.SetDefault("sources.overpass.timeout_secs", 15)
	v.SetDefault("sources.overpass.rate_limit", 2)
	v.SetDefault("sources.elevation.base_url", "https://api.open-elevation.com/api/v1/lookup")
	v.SetDefault("sources.elevation.timeout_secs", 10)
	v.SetDefault("sources.elevation.rate_limit", 5)
	v.SetDefault("sources.rainfall.base_url", "https://power.larc.nasa.gov/api/temporal/climatology/point")
	v.SetDefault("sources.rainfall.parameter", "PRECTOTCORR")
	v.SetDefault("sources.rainfall.community", "AG")
	v.SetDefault("sources.rainfall.scale", 365.0)
	v.SetDefault("sources.rainfall.timeout_secs", 15)
	v.SetDefault("sources.rainfall.rate_limit", 5)
	v.SetDefault("sources.population.backend", "ascii")
	v.SetDefault("sources.population.raster_path", "data/worldpop_density.asc")
	v.SetDefault("sources.population.table", "features.population_density")
	v.SetDefault("resilience.max_attempts", 1)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 5000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 60)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.overpass_ttl_hours", 24*7)
	v.SetDefault("cache.point_ttl_hours", 24*30)
	v.SetDefault("batch.concurrency", 4)
}

// Validate checks the settings a command mode depends on. Mode is one of
// "serve", "predict" or "batch".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "batch":
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
			errs = append(errs, "batch.concurrency must be between 1 and 64")
		}
	case "predict":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Model.Path == "" {
		errs = append(errs, "model.path is required")
	}

	switch c.Store.Driver {
	case "sqlite", "none":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, "store.driver must be one of sqlite, postgres, none")
	}

	switch c.Features.DistanceMetric {
	case "planar", "haversine":
	default:
		errs = append(errs, "features.distance_metric must be planar or haversine")
	}

	switch c.Sources.Nearest.Backend {
	case "overpass", "shapefile":
	case "postgis":
		if c.Store.Driver != "postgres" {
			errs = append(errs, "sources.nearest.backend postgis requires store.driver postgres")
		}
	default:
		errs = append(errs, "sources.nearest.backend must be one of overpass, shapefile, postgis")
	}

	switch c.Sources.Population.Backend {
	case "ascii":
	case "postgis":
		if c.Store.Driver != "postgres" {
			errs = append(errs, "sources.population.backend postgis requires store.driver postgres")
		}
	default:
		errs = append(errs, "sources.population.backend must be ascii or postgis")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
