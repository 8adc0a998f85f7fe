// Package config provides environment-sourced configuration for the
// weatherlake pipeline. Configuration is loaded once per invocation: defaults
// first, then an optional YAML baseline file, then environment variables.
// Missing required settings are aggregated into a single error so that one
// invocation surfaces every configuration problem at once.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	storageConfig "github.com/tigerroll/weatherlake/internal/storage/config"
	"github.com/tigerroll/weatherlake/internal/support/util/exception"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
)

const moduleName = "config"

// HourPolicy selects which hour a scheduled (parameterless) invocation targets.
type HourPolicy string

const (
	// HourPolicyCurrent targets the current hour in the configured offset.
	HourPolicyCurrent HourPolicy = "current"
	// HourPolicyPrevious targets the previous hour in the configured offset.
	HourPolicyPrevious HourPolicy = "previous"
)

// Config is the root structure for the pipeline configuration.
type Config struct {
	// APIKey is the weather provider API key.
	APIKey string `yaml:"api_key"`
	// BaseURL is the weather provider base URL, without a trailing slash.
	BaseURL string `yaml:"base_url"`
	// RawDataBucket is the bucket holding raw observation JSON objects.
	RawDataBucket string `yaml:"raw_data_bucket"`
	// ProcessedDataBucket is the bucket holding the processed parquet dataset.
	ProcessedDataBucket string `yaml:"processed_data_bucket"`
	// Cities is the configured city list; immutable for the process lifetime.
	Cities []string `yaml:"cities"`
	// MaxBackfillEvents caps the number of (date, hour) jobs per invocation.
	MaxBackfillEvents int `yaml:"max_backfill_events"`
	// MaxLookbackDays bounds how many recent unprocessed dates the transform planner schedules.
	MaxLookbackDays int `yaml:"max_lookback_days"`
	// DefaultHourPolicy selects the target hour for parameterless invocations.
	DefaultHourPolicy HourPolicy `yaml:"default_hour_policy"`
	// TZOffsetMinutes is the fixed offset applied when deriving the scheduled job time.
	TZOffsetMinutes int `yaml:"tz_offset_minutes"`
	// LogLevel controls log verbosity ("DEBUG".."FATAL").
	LogLevel string `yaml:"log_level"`
	// Storage configures the object-storage backend shared by both buckets.
	Storage storageConfig.StorageConfig `yaml:"storage"`
}

// NewConfig returns a Config populated with default values.
func NewConfig() *Config {
	return &Config{
		BaseURL:           "http://api.weatherapi.com/v1",
		MaxBackfillEvents: 24,
		MaxLookbackDays:   7,
		DefaultHourPolicy: HourPolicyCurrent,
		TZOffsetMinutes:   330,
		LogLevel:          "INFO",
		Storage: storageConfig.StorageConfig{
			Type: "gcs",
		},
	}
}

// Load loads the pipeline configuration.
// Order of precedence, lowest to highest: built-in defaults, the YAML file
// named by CONFIG_FILE (if any), environment variables. A .env file is loaded
// first when present so that local runs behave like deployed ones.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, exception.NewPipelineError(moduleName, fmt.Sprintf("failed to read config file '%s'", path), err, false, false)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, exception.NewPipelineError(moduleName, fmt.Sprintf("failed to unmarshal config file '%s'", path), err, false, false)
		}
	}

	loadFromEnv(cfg)

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

// loadFromEnv overrides configuration fields from environment variables.
func loadFromEnv(cfg *Config) {
	setString(&cfg.APIKey, "WEATHER_API_KEY")
	setString(&cfg.BaseURL, "BASE_URL")
	setString(&cfg.RawDataBucket, "RAW_DATA_BUCKET")
	setString(&cfg.ProcessedDataBucket, "PROCESSED_DATA_BUCKET")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.CredentialsFile, "STORAGE_CREDENTIALS_FILE")
	setString(&cfg.Storage.BaseDir, "LOCAL_STORAGE_BASE_DIR")
	setInt(&cfg.MaxBackfillEvents, "MAX_BACKFILL_EVENTS")
	setInt(&cfg.MaxLookbackDays, "MAX_LOOKBACK_DAYS")
	setInt(&cfg.TZOffsetMinutes, "TZ_OFFSET_MINUTES")

	if v := os.Getenv("DEFAULT_HOUR_POLICY"); v != "" {
		cfg.DefaultHourPolicy = HourPolicy(strings.ToLower(v))
	}
	if v := os.Getenv("CITIES"); v != "" {
		cfg.Cities = parseCities(v)
	}
}

// parseCities splits a comma-separated city list, trimming whitespace and
// dropping empty entries.
func parseCities(citiesString string) []string {
	var cities []string
	for _, city := range strings.Split(citiesString, ",") {
		city = strings.TrimSpace(city)
		if city != "" {
			cities = append(cities, city)
		}
	}
	return cities
}

// ValidateIngest checks that every setting the ingestion job requires is
// present. All missing settings are reported in one aggregated error.
func (c *Config) ValidateIngest() error {
	var result *multierror.Error

	if c.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("WEATHER_API_KEY environment variable is required"))
	}
	if c.RawDataBucket == "" {
		result = multierror.Append(result, fmt.Errorf("RAW_DATA_BUCKET environment variable is required"))
	}
	if len(c.Cities) == 0 {
		result = multierror.Append(result, fmt.Errorf("CITIES environment variable is required and must contain at least one city"))
	}
	result = multierror.Append(result, c.validateCommon())

	if err := result.ErrorOrNil(); err != nil {
		return exception.NewPipelineError(moduleName, "configuration errors", err, false, false)
	}
	return nil
}

// ValidateTransform checks that every setting the transform job requires is
// present. All missing settings are reported in one aggregated error.
func (c *Config) ValidateTransform() error {
	var result *multierror.Error

	if c.RawDataBucket == "" {
		result = multierror.Append(result, fmt.Errorf("RAW_DATA_BUCKET environment variable is required"))
	}
	if c.ProcessedDataBucket == "" {
		result = multierror.Append(result, fmt.Errorf("PROCESSED_DATA_BUCKET environment variable is required"))
	}
	if c.MaxLookbackDays <= 0 {
		result = multierror.Append(result, fmt.Errorf("MAX_LOOKBACK_DAYS must be a positive integer"))
	}
	result = multierror.Append(result, c.validateCommon())

	if err := result.ErrorOrNil(); err != nil {
		return exception.NewPipelineError(moduleName, "configuration errors", err, false, false)
	}
	return nil
}

// validateCommon checks the settings shared by both jobs.
func (c *Config) validateCommon() *multierror.Error {
	var result *multierror.Error

	switch c.DefaultHourPolicy {
	case HourPolicyCurrent, HourPolicyPrevious:
	default:
		result = multierror.Append(result, fmt.Errorf("DEFAULT_HOUR_POLICY must be 'current' or 'previous', got '%s'", c.DefaultHourPolicy))
	}
	switch c.Storage.Type {
	case "gcs":
	case "local":
		if c.Storage.BaseDir == "" {
			result = multierror.Append(result, fmt.Errorf("LOCAL_STORAGE_BASE_DIR is required when STORAGE_TYPE is 'local'"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("STORAGE_TYPE must be 'gcs' or 'local', got '%s'", c.Storage.Type))
	}
	if c.MaxBackfillEvents <= 0 {
		result = multierror.Append(result, fmt.Errorf("MAX_BACKFILL_EVENTS must be a positive integer"))
	}

	return result
}

func setString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setInt(target *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warnf("Environment variable %s has a non-integer value '%s'; keeping %d.", key, v, *target)
		return
	}
	*target = n
}
