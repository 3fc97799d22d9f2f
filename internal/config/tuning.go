package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stride-data/activity.report/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and runtime inspection.
type TuningConfig struct {
	// Pipeline params
	WindowSize        *int    `json:"window_size,omitempty"`
	InferenceInterval *string `json:"inference_interval,omitempty"` // duration string like "800ms"
	NotReadyInterval  *string `json:"not_ready_interval,omitempty"` // duration string like "2s"
	AssetDir          *string `json:"asset_dir,omitempty"`

	// Sampling params
	SampleRateHz *int    `json:"sample_rate_hz,omitempty"`
	Units        *string `json:"units,omitempty"`

	// Capture params
	RecordRaw    *bool `json:"record_raw,omitempty"`
	RawBatchSize *int  `json:"raw_batch_size,omitempty"`

	// Publish params
	MQTTTopicPrefix    *string `json:"mqtt_topic_prefix,omitempty"`
	RedisKeyPrefix     *string `json:"redis_key_prefix,omitempty"`
	RedisResultTTL     *string `json:"redis_result_ttl,omitempty"` // duration string like "10m"
	ResultHistoryLimit *int    `json:"result_history_limit,omitempty"`

	// Live hub params
	LiveSampleEvery *int `json:"live_sample_every,omitempty"`
}

// Helper functions to create pointers
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.WindowSize != nil {
		if *c.WindowSize < 1 {
			return fmt.Errorf("window_size must be at least 1, got %d", *c.WindowSize)
		}
	}

	// Validate InferenceInterval can be parsed if set
	if c.InferenceInterval != nil && *c.InferenceInterval != "" {
		if _, err := time.ParseDuration(*c.InferenceInterval); err != nil {
			return fmt.Errorf("invalid inference_interval '%s': %w", *c.InferenceInterval, err)
		}
	}

	// Validate NotReadyInterval can be parsed if set
	if c.NotReadyInterval != nil && *c.NotReadyInterval != "" {
		if _, err := time.ParseDuration(*c.NotReadyInterval); err != nil {
			return fmt.Errorf("invalid not_ready_interval '%s': %w", *c.NotReadyInterval, err)
		}
	}

	if c.SampleRateHz != nil {
		if *c.SampleRateHz < 1 || *c.SampleRateHz > 1000 {
			return fmt.Errorf("sample_rate_hz must be between 1 and 1000, got %d", *c.SampleRateHz)
		}
	}

	if c.Units != nil && *c.Units != "" {
		if !units.IsValid(*c.Units) {
			return fmt.Errorf("invalid units %q: valid units are %s", *c.Units, units.GetValidUnitsString())
		}
	}

	if c.RawBatchSize != nil {
		if *c.RawBatchSize < 1 {
			return fmt.Errorf("raw_batch_size must be at least 1, got %d", *c.RawBatchSize)
		}
	}

	if c.RedisResultTTL != nil && *c.RedisResultTTL != "" {
		if _, err := time.ParseDuration(*c.RedisResultTTL); err != nil {
			return fmt.Errorf("invalid redis_result_ttl '%s': %w", *c.RedisResultTTL, err)
		}
	}

	if c.ResultHistoryLimit != nil {
		if *c.ResultHistoryLimit < 1 {
			return fmt.Errorf("result_history_limit must be at least 1, got %d", *c.ResultHistoryLimit)
		}
	}

	if c.LiveSampleEvery != nil {
		if *c.LiveSampleEvery < 1 {
			return fmt.Errorf("live_sample_every must be at least 1, got %d", *c.LiveSampleEvery)
		}
	}

	return nil
}

// GetWindowSize returns the window_size value or the default.
func (c *TuningConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 200 // default
	}
	return *c.WindowSize
}

// GetInferenceInterval parses and returns the InferenceInterval as a time.Duration.
func (c *TuningConfig) GetInferenceInterval() time.Duration {
	if c.InferenceInterval == nil || *c.InferenceInterval == "" {
		return 800 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.InferenceInterval)
	if err != nil {
		return 800 * time.Millisecond // default on parse error
	}
	return d
}

// GetNotReadyInterval parses and returns the NotReadyInterval as a time.Duration.
func (c *TuningConfig) GetNotReadyInterval() time.Duration {
	if c.NotReadyInterval == nil || *c.NotReadyInterval == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.NotReadyInterval)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}

// GetAssetDir returns the asset_dir value or the default.
func (c *TuningConfig) GetAssetDir() string {
	if c.AssetDir == nil || *c.AssetDir == "" {
		return "assets" // default
	}
	return *c.AssetDir
}

// GetSampleRateHz returns the sample_rate_hz value or the default.
func (c *TuningConfig) GetSampleRateHz() int {
	if c.SampleRateHz == nil {
		return 50 // default
	}
	return *c.SampleRateHz
}

// GetUnits returns the units value or the default.
func (c *TuningConfig) GetUnits() string {
	if c.Units == nil || *c.Units == "" {
		return units.MPS2 // default
	}
	return *c.Units
}

// GetRecordRaw returns the record_raw value or the default.
func (c *TuningConfig) GetRecordRaw() bool {
	if c.RecordRaw == nil {
		return true // default: raw samples are persisted
	}
	return *c.RecordRaw
}

// GetRawBatchSize returns the raw_batch_size value or the default.
func (c *TuningConfig) GetRawBatchSize() int {
	if c.RawBatchSize == nil {
		return 250
	}
	return *c.RawBatchSize
}

// GetMQTTTopicPrefix returns the mqtt_topic_prefix value or the default.
func (c *TuningConfig) GetMQTTTopicPrefix() string {
	if c.MQTTTopicPrefix == nil || *c.MQTTTopicPrefix == "" {
		return "har"
	}
	return *c.MQTTTopicPrefix
}

// GetRedisKeyPrefix returns the redis_key_prefix value or the default.
func (c *TuningConfig) GetRedisKeyPrefix() string {
	if c.RedisKeyPrefix == nil || *c.RedisKeyPrefix == "" {
		return "har"
	}
	return *c.RedisKeyPrefix
}

// GetRedisResultTTL parses and returns the RedisResultTTL as a time.Duration.
func (c *TuningConfig) GetRedisResultTTL() time.Duration {
	if c.RedisResultTTL == nil || *c.RedisResultTTL == "" {
		return 10 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.RedisResultTTL)
	if err != nil {
		return 10 * time.Minute // default on parse error
	}
	return d
}

// GetResultHistoryLimit returns the result_history_limit value or the default.
func (c *TuningConfig) GetResultHistoryLimit() int {
	if c.ResultHistoryLimit == nil {
		return 100
	}
	return *c.ResultHistoryLimit
}

// GetLiveSampleEvery returns the live_sample_every value or the default.
func (c *TuningConfig) GetLiveSampleEvery() int {
	if c.LiveSampleEvery == nil {
		return 5 // forward every 5th raw sample to live clients
	}
	return *c.LiveSampleEvery
}
