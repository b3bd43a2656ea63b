// Package config loads the flighttrack configuration from a JSON or YAML
// file, applies environment overrides and validates the result.
//
// Secrets (the map access token) are read from the environment only and are
// never written back by Save.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unklstewy/flighttrack/pkg/gateway"
	"github.com/unklstewy/flighttrack/pkg/render"
)

// Environment variables read by applyEnvironmentOverrides.
const (
	EnvBackendURL = "FLIGHTTRACK_BACKEND_URL"
	EnvMapToken   = "FLIGHTTRACK_MAP_TOKEN"
	EnvPort       = "FLIGHTTRACK_PORT"
	EnvLogLevel   = "FLIGHTTRACK_LOG_LEVEL"

	// EnvMapTokenLegacy is the variable name older deployments used
	EnvMapTokenLegacy = "MAP_API"
)

// Config represents the complete application configuration.
type Config struct {
	Backend BackendConfig `json:"backend" yaml:"backend"`
	Map     MapConfig     `json:"map" yaml:"map"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	UI      UIConfig      `json:"ui" yaml:"ui"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// BackendConfig contains the tracking backend connection settings.
type BackendConfig struct {
	// BaseURL is the API root, e.g. "https://flight-tracking-backend.vercel.app/api"
	BaseURL string `json:"base_url" yaml:"base_url"`

	// TimeoutSeconds bounds each HTTP request (default: 10)
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// RequestsPerSecond limits the client request rate (default: 10)
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// ReadRetries is the number of retries for GET requests (default: 2)
	ReadRetries int `json:"read_retries" yaml:"read_retries"`

	// WriteRetries is the number of retries for mutations (default: 0)
	// Ingest is not idempotent; only raise this if the backend deduplicates.
	WriteRetries int `json:"write_retries" yaml:"write_retries"`

	// RetryInitialDelayMs is the first backoff delay in milliseconds (default: 500)
	RetryInitialDelayMs int `json:"retry_initial_delay_ms" yaml:"retry_initial_delay_ms"`
}

// MapConfig contains map rendering settings.
type MapConfig struct {
	// AccessToken for the map tile provider. Environment only.
	AccessToken string `json:"-" yaml:"-"`

	// Style is the map style URL handed to web clients
	Style string `json:"style" yaml:"style"`

	// ViewportPadding grows the fitted bounds by this fraction on each side
	ViewportPadding float64 `json:"viewport_padding" yaml:"viewport_padding"`

	// VectorMinutes is the length of the heading vector drawn ahead of the
	// current position, in minutes of flight (0 disables it)
	VectorMinutes float64 `json:"vector_minutes" yaml:"vector_minutes"`
}

// ServerConfig contains HTTP server configuration for the map server.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port" yaml:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host" yaml:"host"`

	// AllowedOrigins for CORS (default: all)
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// RefreshIntervalMs is how often the TUI redraws (default: 1000)
	RefreshIntervalMs int `json:"refresh_interval_ms" yaml:"refresh_interval_ms"`

	// GridWidth and GridHeight size the terminal map canvas in cells
	GridWidth  int `json:"grid_width" yaml:"grid_width"`
	GridHeight int `json:"grid_height" yaml:"grid_height"`

	// Interpolate makes time queries in the TUI estimate positions between
	// samples instead of snapping to the preceding one
	Interpolate bool `json:"interpolate" yaml:"interpolate"`
}

// LoggingConfig configures the slog logger used by library packages.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string `json:"level" yaml:"level"`

	// Format is "text" or "json" (default: text)
	Format string `json:"format" yaml:"format"`
}

// isYAML reports whether path should be read and written as YAML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads configuration from a JSON or YAML file, chosen by extension.
// If the file doesn't exist, returns the default configuration. Fields
// missing from the file keep their defaults. Environment overrides are
// applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	return cfg, nil
}

// Save writes the configuration to a JSON or YAML file, chosen by extension.
// The map access token is never written.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:             gateway.DefaultBaseURL,
			TimeoutSeconds:      10,
			RequestsPerSecond:   gateway.DefaultRequestsPerSecond,
			ReadRetries:         2,
			WriteRetries:        0,
			RetryInitialDelayMs: 500,
		},
		Map: MapConfig{
			Style:           "mapbox://styles/mapbox/streets-v11",
			ViewportPadding: 0.1,
			VectorMinutes:   1.0,
		},
		Server: ServerConfig{
			Port:           "8080",
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		UI: UIConfig{
			RefreshIntervalMs: 1000,
			GridWidth:         72,
			GridHeight:        22,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// The map token is only ever read from here.
func (c *Config) applyEnvironmentOverrides() {
	if u := os.Getenv(EnvBackendURL); u != "" {
		c.Backend.BaseURL = u
	}
	if token := os.Getenv(EnvMapTokenLegacy); token != "" {
		c.Map.AccessToken = token
	}
	if token := os.Getenv(EnvMapToken); token != "" {
		c.Map.AccessToken = token
	}
	if port := os.Getenv(EnvPort); port != "" {
		c.Server.Port = port
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for values the client cannot work with.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url: %q is not an http(s) URL", c.Backend.BaseURL))
	}
	if c.Backend.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("backend.timeout_seconds: must be positive, got %d", c.Backend.TimeoutSeconds))
	}
	if c.Backend.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("backend.requests_per_second: must be positive, got %g", c.Backend.RequestsPerSecond))
	}
	if c.Backend.ReadRetries < 0 || c.Backend.WriteRetries < 0 {
		errs = append(errs, errors.New("backend retries: must not be negative"))
	}
	if c.Map.ViewportPadding < 0 || c.Map.ViewportPadding >= 1 {
		errs = append(errs, fmt.Errorf("map.viewport_padding: must be in [0, 1), got %g", c.Map.ViewportPadding))
	}
	if c.Map.VectorMinutes < 0 {
		errs = append(errs, fmt.Errorf("map.vector_minutes: must not be negative, got %g", c.Map.VectorMinutes))
	}
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %q is not a valid port", c.Server.Port))
	}
	if c.UI.GridWidth < 10 || c.UI.GridHeight < 5 {
		errs = append(errs, fmt.Errorf("ui grid: %dx%d is too small", c.UI.GridWidth, c.UI.GridHeight))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Gateway converts the backend settings into a gateway client config.
func (b BackendConfig) Gateway() gateway.Config {
	read := gateway.DefaultRetryConfig()
	read.MaxRetries = b.ReadRetries
	write := gateway.DefaultRetryConfig()
	write.MaxRetries = b.WriteRetries
	if b.RetryInitialDelayMs > 0 {
		read.InitialDelay = time.Duration(b.RetryInitialDelayMs) * time.Millisecond
		write.InitialDelay = read.InitialDelay
	}

	return gateway.Config{
		BaseURL:           b.BaseURL,
		Timeout:           time.Duration(b.TimeoutSeconds) * time.Second,
		RequestsPerSecond: b.RequestsPerSecond,
		ReadRetry:         read,
		WriteRetry:        write,
	}
}

// RenderOptions returns the scene construction options.
func (m MapConfig) RenderOptions() render.Options {
	o := render.DefaultOptions()
	o.Padding = m.ViewportPadding
	o.VectorMinutes = m.VectorMinutes
	return o
}

// Binding returns the settings a web map binding needs.
func (m MapConfig) Binding() render.MapConfig {
	return render.MapConfig{AccessToken: m.AccessToken, Style: m.Style}
}

// RefreshInterval returns the TUI redraw interval.
func (u UIConfig) RefreshInterval() time.Duration {
	if u.RefreshIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(u.RefreshIntervalMs) * time.Millisecond
}

// Addr returns the listen address of the map server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Logger builds the slog logger described by the logging settings.
func (l LoggingConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SlogLevel returns the configured level, or info when it is unset or invalid.
func (l LoggingConfig) SlogLevel() slog.Level {
	level, err := parseLevel(l.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: unknown level %q", s)
	}
	return level, nil
}
