package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Load] when the file leaves a value unset.
const (
	DefaultListenAddr     = ":8080"
	DefaultLanguage       = "ja-JP"
	DefaultThresholdKm    = 0.1
	DefaultTimeoutSeconds = 10
	DefaultMaxAgeMinutes  = 5
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset values in place.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = BackendSQLite
	}
	if cfg.Registry.Backend == BackendSQLite && cfg.Registry.Path == "" {
		cfg.Registry.Path = "agrivoice.db"
	}
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = DefaultLanguage
	}
	if cfg.Location.ThresholdKm == 0 {
		cfg.Location.ThresholdKm = DefaultThresholdKm
	}
	if cfg.Location.RequestTimeoutSeconds == 0 {
		cfg.Location.RequestTimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Location.MaxAgeMinutes == 0 {
		cfg.Location.MaxAgeMinutes = DefaultMaxAgeMinutes
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !cfg.Registry.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("registry.backend %q is invalid; valid values: memory, sqlite, postgres", cfg.Registry.Backend))
	}
	if cfg.Registry.Backend == BackendPostgres && cfg.Registry.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("registry.postgres_dsn is required when registry.backend is postgres"))
	}
	if cfg.Registry.Backend == BackendSQLite && cfg.Registry.Path == "" {
		errs = append(errs, fmt.Errorf("registry.path is required when registry.backend is sqlite"))
	}

	if cfg.Location.ThresholdKm < 0 {
		errs = append(errs, fmt.Errorf("location.threshold_km %.3f must not be negative", cfg.Location.ThresholdKm))
	}
	if cfg.Location.RequestTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("location.request_timeout_seconds %d must not be negative", cfg.Location.RequestTimeoutSeconds))
	}
	if cfg.Location.MaxAgeMinutes < 0 {
		errs = append(errs, fmt.Errorf("location.max_age_minutes %d must not be negative", cfg.Location.MaxAgeMinutes))
	}
	if cfg.Location.StaticLat < -90 || cfg.Location.StaticLat > 90 {
		errs = append(errs, fmt.Errorf("location.static_lat %.6f out of range [-90, 90]", cfg.Location.StaticLat))
	}
	if cfg.Location.StaticLng < -180 || cfg.Location.StaticLng > 180 {
		errs = append(errs, fmt.Errorf("location.static_lng %.6f out of range [-180, 180]", cfg.Location.StaticLng))
	}

	return errors.Join(errs...)
}
