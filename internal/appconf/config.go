// Package appconf loads and validates the application configuration.
package appconf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultFetchTimeout    = 10 * time.Second
	DefaultRateLimit       = 100
	DefaultPort            = 4000
)

// DatasourceConfig describes one static schedule source.
type DatasourceConfig struct {
	Name        string            `yaml:"name" json:"name" validate:"required,excludesall=/\\."`
	ExtractFrom string            `yaml:"extract_from" json:"extract_from" validate:"required,oneof=zip url"`
	URL         string            `yaml:"url" json:"url" validate:"required_if=ExtractFrom url"`
	StripShapes bool              `yaml:"strip_shapes" json:"strip_shapes"`
	Headers     map[string]string `yaml:"headers" json:"headers"`
}

// RealtimeTarget is one route/trip/stop combination watched on a realtime feed.
type RealtimeTarget struct {
	Name               string            `yaml:"name" json:"name" validate:"required,excludesall=/\\."`
	Datasource         string            `yaml:"datasource" json:"datasource"`
	TripUpdateURL      string            `yaml:"trip_update_url" json:"trip_update_url" validate:"required,url"`
	VehiclePositionURL string            `yaml:"vehicle_position_url" json:"vehicle_position_url" validate:"omitempty,url"`
	AlertsURL          string            `yaml:"alerts_url" json:"alerts_url" validate:"omitempty,url"`
	APIKey             string            `yaml:"api_key" json:"api_key"`
	XAPIKey            string            `yaml:"x_api_key" json:"x_api_key"`
	Headers            map[string]string `yaml:"headers" json:"headers"`
	RouteID            string            `yaml:"route_id" json:"route_id" validate:"required_without=TripID"`
	TripID             string            `yaml:"trip_id" json:"trip_id"`
	Direction          string            `yaml:"direction" json:"direction"`
	StopID             string            `yaml:"stop_id" json:"stop_id" validate:"required"`
	DestinationStopID  string            `yaml:"destination_stop_id" json:"destination_stop_id"`
	RouteDelimiter     string            `yaml:"route_delimiter" json:"route_delimiter"`
	Relative           bool              `yaml:"relative" json:"relative"`
	RefreshInterval    time.Duration     `yaml:"refresh_interval" json:"refresh_interval" validate:"min=0"`
	FetchTimeout       time.Duration     `yaml:"fetch_timeout" json:"fetch_timeout" validate:"min=0"`
}

// RequestHeaders returns the HTTP headers sent with every feed request.
func (t RealtimeTarget) RequestHeaders() map[string]string {
	headers := make(map[string]string, len(t.Headers)+1)
	for k, v := range t.Headers {
		headers[k] = v
	}
	if t.APIKey != "" {
		headers["Authorization"] = t.APIKey
	} else if t.XAPIKey != "" {
		headers["x-api-key"] = t.XAPIKey
	}
	return headers
}

// Config is the top level application configuration.
type Config struct {
	Port        int                `yaml:"port" json:"port" validate:"min=1,max=65535"`
	Env         Environment        `yaml:"env" json:"env"`
	ApiKeys     []string           `yaml:"api_keys" json:"api_keys"`
	Verbose     bool               `yaml:"verbose" json:"verbose"`
	RateLimit   int                `yaml:"rate_limit" json:"rate_limit" validate:"min=0"`
	DataDir     string             `yaml:"data_dir" json:"data_dir"`
	OutputDir   string             `yaml:"output_dir" json:"output_dir"`
	Timezone    string             `yaml:"timezone" json:"timezone"`
	Datasources []DatasourceConfig `yaml:"datasources" json:"datasources" validate:"dive"`
	Realtime    []RealtimeTarget   `yaml:"realtime" json:"realtime" validate:"dive"`
}

// Default returns a configuration usable for local development.
func Default() Config {
	return Config{
		Port:      DefaultPort,
		Env:       Development,
		RateLimit: DefaultRateLimit,
		DataDir:   "gtfs2",
		OutputDir: "www/gtfs2",
	}
}

// LoadFromFile reads a YAML (or JSON) configuration file on top of Default().
func LoadFromFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyEnv overlays environment variables, loading an optional .env file first.
func ApplyEnv(cfg *Config) error {
	_ = godotenv.Load()

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Env = ParseEnvironment(v)
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		cfg.ApiKeys = SplitList(v)
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("TZ_NAME"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT %q: %w", v, err)
		}
		cfg.RateLimit = limit
	}
	return nil
}

// Validate checks struct constraints and cross references between sections.
func (cfg Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	names := make(map[string]bool, len(cfg.Datasources))
	for _, ds := range cfg.Datasources {
		if names[ds.Name] {
			return fmt.Errorf("invalid configuration: duplicate datasource %q", ds.Name)
		}
		names[ds.Name] = true
	}

	seen := make(map[string]bool, len(cfg.Realtime))
	for _, target := range cfg.Realtime {
		if seen[target.Name] {
			return fmt.Errorf("invalid configuration: duplicate realtime target %q", target.Name)
		}
		seen[target.Name] = true
		if target.Datasource != "" && !names[target.Datasource] {
			return fmt.Errorf("invalid configuration: realtime target %q references unknown datasource %q", target.Name, target.Datasource)
		}
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: timezone %q: %w", cfg.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone. An empty zone resolves to UTC
// and reports unset=true so the caller can warn about it.
func (cfg Config) Location() (loc *time.Location, unset bool, err error) {
	if strings.TrimSpace(cfg.Timezone) == "" {
		return time.UTC, true, nil
	}
	loc, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, false, fmt.Errorf("unknown timezone %q: %w", cfg.Timezone, err)
	}
	return loc, false, nil
}

// ApplyDefaults fills realtime target defaults left unset.
func (cfg *Config) ApplyDefaults() {
	for i := range cfg.Realtime {
		if cfg.Realtime[i].RefreshInterval == 0 {
			cfg.Realtime[i].RefreshInterval = DefaultRefreshInterval
		}
		if cfg.Realtime[i].FetchTimeout == 0 {
			cfg.Realtime[i].FetchTimeout = DefaultFetchTimeout
		}
		if cfg.Realtime[i].Direction == "" {
			cfg.Realtime[i].Direction = "0"
		}
	}
}

// SplitList splits a comma separated value, trimming blanks.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
