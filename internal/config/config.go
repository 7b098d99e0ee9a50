// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for vpexport.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.vpexport/config.toml
//   - ~/.vpexport/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete vpexport configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Export pipeline behaviour
	Export ExportConfig `toml:"export" json:"export"`

	// Sub-resource loading during capture
	Capture CaptureConfig `toml:"capture" json:"capture"`

	// Archive layout
	Archive ArchiveConfig `toml:"archive" json:"archive"`

	// Where and how archives are handed to the user
	Delivery DeliveryConfig `toml:"delivery" json:"delivery"`

	// Dataset store
	Storage StorageConfig `toml:"storage" json:"storage"`

	Log     LogConfig     `toml:"log" json:"log"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`

	// Server configures the HTTP trigger started by "vpexport serve".
	Server ServerConfig `toml:"server" json:"server"`
}

// ExportConfig contains orchestrator settings.
type ExportConfig struct {
	// Quality is the JPEG quality in [0,1]. 1.0 favours archival fidelity.
	Quality float64 `toml:"quality" json:"quality"`
	// Fields lists the metadata.json fields to write. PatientName and
	// StudyDate are always written.
	Fields []string `toml:"fields" json:"fields"`
	// Sentinel replaces absent attributes (e.g. "N/A" or "Unknown").
	Sentinel string `toml:"sentinel" json:"sentinel"`
	// ConcurrentMetadata resolves metadata while the capture runs.
	ConcurrentMetadata bool `toml:"concurrent_metadata" json:"concurrent_metadata"`
}

// CaptureConfig contains surface capture settings.
type CaptureConfig struct {
	// FetchTimeoutSecs bounds a single sub-resource fetch.
	FetchTimeoutSecs int `toml:"fetch_timeout_secs" json:"fetch_timeout_secs"`
	// FetchRate is the sustained sub-resource fetch rate per second.
	FetchRate float64 `toml:"fetch_rate" json:"fetch_rate"`
	// FetchBurst is the number of fetches allowed back to back.
	FetchBurst int `toml:"fetch_burst" json:"fetch_burst"`
	// MaxConcurrentFetches caps parallel sub-resource fetches per capture.
	MaxConcurrentFetches int `toml:"max_concurrent_fetches" json:"max_concurrent_fetches"`
}

// FetchTimeout returns the per-fetch timeout as a duration.
func (c CaptureConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// ArchiveConfig contains packaging settings.
type ArchiveConfig struct {
	// CompressMetadata deflates metadata.json. The JPEG entry is always stored.
	CompressMetadata bool `toml:"compress_metadata" json:"compress_metadata"`
}

// DeliveryConfig contains delivery settings.
type DeliveryConfig struct {
	// OutputDir receives delivered archives. "~" is expanded.
	OutputDir string `toml:"output_dir" json:"output_dir"`
	// SanitizeFilenames restricts archive names to a filesystem-safe set.
	SanitizeFilenames bool `toml:"sanitize_filenames" json:"sanitize_filenames"`
	// OpenAfterExport reveals the archive with the OS default handler.
	OpenAfterExport bool `toml:"open_after_export" json:"open_after_export"`
}

// StorageConfig contains dataset store settings.
type StorageConfig struct {
	// DatabasePath is the sqlite dataset database. "~" is expanded.
	DatabasePath string `toml:"database_path" json:"database_path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level"`
}

// MetricsConfig contains metrics export settings.
type MetricsConfig struct {
	// Textfile, when set, receives prometheus metrics in text format after
	// each CLI run (node_exporter textfile collector).
	Textfile string `toml:"textfile" json:"textfile"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address. Loopback by default.
	Addr string `toml:"addr" json:"addr"`
	// Token, when set, is required as a bearer token on every request.
	Token string `toml:"token" json:"-"`
	// RequestsPerMinute limits each client address.
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`
	// AllowedIPs restricts clients to these addresses or CIDR ranges.
	AllowedIPs []string `toml:"allowed_ips" json:"allowed_ips"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	fields := make([]string, 0, len(model.AllFields))
	for _, f := range model.AllFields {
		fields = append(fields, string(f))
	}

	return &Config{
		Version: "1.0.0",

		Export: ExportConfig{
			Quality:            1.0,
			Fields:             fields,
			Sentinel:           model.SentinelNA,
			ConcurrentMetadata: true,
		},

		Capture: CaptureConfig{
			FetchTimeoutSecs:     30,
			FetchRate:            20,
			FetchBurst:           8,
			MaxConcurrentFetches: 4,
		},

		Archive: ArchiveConfig{
			CompressMetadata: true,
		},

		Delivery: DeliveryConfig{
			OutputDir:         "~/Downloads",
			SanitizeFilenames: true,
			OpenAfterExport:   false,
		},

		Storage: StorageConfig{
			DatabasePath: "~/.vpexport/datasets.db",
		},

		Log: LogConfig{
			Level: "info",
		},

		Server: ServerConfig{
			Addr:              "127.0.0.1:8787",
			RequestsPerMinute: 60,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the vpexport configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".vpexport"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			cfg, err := LoadFromPath(tomlPath)
			if err == nil {
				return cfg, nil
			}
			loadErr = err
		}
	}

	if loadErr == nil {
		if jsonPath, err := ConfigPathJSON(); err == nil {
			if _, statErr := os.Stat(jsonPath); statErr == nil {
				cfg, err := LoadFromPath(jsonPath)
				if err == nil {
					return cfg, nil
				}
				loadErr = err
			}
		}
	}

	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}

	// Defaults are usable; the load error is informational
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Keys missing from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies env overrides, fills blanks and validates.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# vpexport configuration file\n")
	b.WriteString("# Generated by vpexport - edit with care\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Export.Quality < 0 || c.Export.Quality > 1 {
		errs = append(errs, ValidationError{
			Field:   "export.quality",
			Message: fmt.Sprintf("quality %.2f out of range, must be between 0.0 and 1.0", c.Export.Quality),
		})
	}

	for _, name := range c.Export.Fields {
		if _, err := model.ParseField(name); err != nil {
			errs = append(errs, ValidationError{Field: "export.fields", Message: err.Error()})
		}
	}

	if strings.TrimSpace(c.Export.Sentinel) == "" {
		errs = append(errs, ValidationError{Field: "export.sentinel", Message: "sentinel cannot be empty"})
	}

	if c.Capture.FetchTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "capture.fetch_timeout_secs", Message: "cannot be negative"})
	}
	if c.Capture.FetchRate < 0 {
		errs = append(errs, ValidationError{Field: "capture.fetch_rate", Message: "cannot be negative"})
	}
	if c.Capture.FetchBurst < 1 {
		errs = append(errs, ValidationError{Field: "capture.fetch_burst", Message: "must be at least 1"})
	}
	if c.Capture.MaxConcurrentFetches < 1 {
		errs = append(errs, ValidationError{Field: "capture.max_concurrent_fetches", Message: "must be at least 1"})
	}

	if strings.TrimSpace(c.Delivery.OutputDir) == "" {
		errs = append(errs, ValidationError{Field: "delivery.output_dir", Message: "output directory cannot be empty"})
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{Field: "log.level", Message: err.Error()})
	}

	if c.Server.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "server.requests_per_minute", Message: "cannot be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero-value fields with defaults. Booleans are left
// alone because false is a valid explicit choice.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if len(c.Export.Fields) == 0 {
		c.Export.Fields = defaults.Export.Fields
	}
	if c.Export.Sentinel == "" {
		c.Export.Sentinel = defaults.Export.Sentinel
	}
	if c.Capture.FetchTimeoutSecs == 0 {
		c.Capture.FetchTimeoutSecs = defaults.Capture.FetchTimeoutSecs
	}
	if c.Capture.FetchBurst == 0 {
		c.Capture.FetchBurst = defaults.Capture.FetchBurst
	}
	if c.Capture.MaxConcurrentFetches == 0 {
		c.Capture.MaxConcurrentFetches = defaults.Capture.MaxConcurrentFetches
	}
	if c.Delivery.OutputDir == "" {
		c.Delivery.OutputDir = defaults.Delivery.OutputDir
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = defaults.Storage.DatabasePath
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.RequestsPerMinute == 0 {
		c.Server.RequestsPerMinute = defaults.Server.RequestsPerMinute
	}
}

// MetadataFields returns the configured fields as typed values, always
// including the required ones.
func (c *Config) MetadataFields() []model.Field {
	enabled := make(map[model.Field]bool, len(c.Export.Fields))
	for _, f := range model.RequiredFields {
		enabled[f] = true
	}
	for _, name := range c.Export.Fields {
		if f, err := model.ParseField(name); err == nil {
			enabled[f] = true
		}
	}

	fields := make([]model.Field, 0, len(enabled))
	for _, f := range model.AllFields {
		if enabled[f] {
			fields = append(fields, f)
		}
	}
	return fields
}

// ParseLevel maps a configured level name onto a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid level '%s', must be one of: debug, info, warn, error", name)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - VPEXPORT_OUTPUT_DIR: overrides delivery.output_dir
//   - VPEXPORT_QUALITY: overrides export.quality
//   - VPEXPORT_DATABASE: overrides storage.database_path
//   - VPEXPORT_LOG_LEVEL: overrides log.level
//   - VPEXPORT_SANITIZE: set to "0" or "false" to keep raw filenames
//   - VPEXPORT_SERVER_TOKEN: overrides server.token
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("VPEXPORT_OUTPUT_DIR"); dir != "" {
		c.Delivery.OutputDir = dir
	}

	if q := os.Getenv("VPEXPORT_QUALITY"); q != "" {
		// Unparseable values are ignored; Validate catches out-of-range ones
		if v, err := strconv.ParseFloat(q, 64); err == nil {
			c.Export.Quality = v
		}
	}

	if db := os.Getenv("VPEXPORT_DATABASE"); db != "" {
		c.Storage.DatabasePath = db
	}

	if level := os.Getenv("VPEXPORT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}

	if sanitize := os.Getenv("VPEXPORT_SANITIZE"); sanitize != "" {
		if v, ok := util.ParseBool(sanitize); ok {
			c.Delivery.SanitizeFilenames = v
		}
	}

	if token := os.Getenv("VPEXPORT_SERVER_TOKEN"); token != "" {
		c.Server.Token = token
	}
}
