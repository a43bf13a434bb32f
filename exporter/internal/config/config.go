package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPath           = "/app/config/fishnet_config.yaml"
	DefaultPort           = 9101
	DefaultScrapeInterval = 60 * time.Second
	DefaultNamespace      = "fishnet"
	DefaultMaxConcurrency = 4
	DefaultLogLevel       = "info"
	DefaultCentralURL     = "http://stats-server:9101/metrics/push"
	DefaultServerURL      = "https://lichess.org/api/fishnet/status"
)

// Federation modes.
const (
	ModeCentral = "central"
	ModeClient  = "client"
)

// Counter interpretation of the upstream jobs.completed / jobs.rejected values.
const (
	// CounterModeCumulative treats upstream values as running totals and
	// increments local counters by the forward difference between polls.
	CounterModeCumulative = "cumulative"

	// CounterModeIncremental treats upstream values as deltas and adds them
	// as-is on every poll.
	CounterModeIncremental = "incremental"
)

// Config is the top-level configuration shared by the exporter and the
// status CLI. Fields map 1:1 to fishnet_config.yaml.
type Config struct {
	Servers       []Server            `yaml:"servers"`
	Exporter      ExporterConfig      `yaml:"exporter"`
	MetricsServer MetricsServerConfig `yaml:"metrics_server"`
}

// Server is one fishnet status endpoint to poll.
type Server struct {
	// Name is the unique instance label for every series of this server.
	Name string `yaml:"name"`

	// URL is the full status endpoint URL.
	URL string `yaml:"url"`

	// Key is the literal bearer key sent as "Authorization: Bearer <key>".
	Key string `yaml:"key"`

	// KeyEnv names an environment variable holding the key. Used when Key is empty.
	KeyEnv string `yaml:"key_env"`
}

// BearerKey returns the key to authenticate with, or "" for none.
func (s Server) BearerKey() string {
	if s.Key != "" {
		return s.Key
	}
	if s.KeyEnv == "" {
		return ""
	}
	return os.Getenv(s.KeyEnv)
}

// ExporterConfig holds the local exporter settings.
type ExporterConfig struct {
	// Port is the HTTP port serving /metrics (and /metrics/push in central mode).
	Port int `yaml:"port"`

	// ScrapeInterval controls how often every server is polled.
	ScrapeInterval Interval `yaml:"scrape_interval"`

	// Namespace prefixes every exported metric name. Empty means no prefix.
	Namespace string `yaml:"namespace"`

	// CounterMode is one of: cumulative | incremental.
	CounterMode string `yaml:"counter_mode"`

	// MaxConcurrency bounds how many servers are fetched in parallel.
	MaxConcurrency int `yaml:"max_concurrency"`

	// ID identifies this exporter to a central instance. Defaults to the hostname.
	ID string `yaml:"id"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// MetricsServerConfig configures central/client federation.
type MetricsServerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Mode is one of: central | client.
	Mode string `yaml:"mode"`

	// CentralURL is the push endpoint of the central instance (client mode).
	CentralURL string `yaml:"central_url"`

	// AuthKey is the shared bearer token. Empty disables authentication.
	AuthKey string `yaml:"auth_key"`

	// AuthKeyEnv names an environment variable holding the token.
	AuthKeyEnv string `yaml:"auth_key_env"`

	// Compress gzips push bodies (client mode).
	Compress bool `yaml:"compress"`
}

// Token returns the shared federation token resolved from AuthKey or AuthKeyEnv.
func (m MetricsServerConfig) Token() string {
	if m.AuthKey != "" {
		return m.AuthKey
	}
	if m.AuthKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.AuthKeyEnv)
}

// FederationMode returns the role this exporter plays in federation:
// ModeClient whenever mode is client (pushing does not depend on enabled),
// ModeCentral when enabled with mode central, and "" for a standalone
// exporter.
func (c *Config) FederationMode() string {
	switch {
	case c.MetricsServer.Mode == ModeClient:
		return ModeClient
	case c.MetricsServer.Enabled:
		return c.MetricsServer.Mode
	default:
		return ""
	}
}

// Interval is a duration that unmarshals from integer seconds (60) or a Go
// duration string ("30s", "1m").
type Interval time.Duration

// Duration returns i as a time.Duration.
func (i Interval) Duration() time.Duration { return time.Duration(i) }

func (i Interval) String() string { return time.Duration(i).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (i *Interval) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("interval: %w", err)
	}
	d, err := ParseInterval(s)
	if err != nil {
		return err
	}
	*i = Interval(d)
	return nil
}

// maxIntervalSeconds is the largest whole-second interval a time.Duration holds.
const maxIntervalSeconds = float64(math.MaxInt64 / int64(time.Second))

// ParseInterval parses a bare number as seconds, anything else as a Go duration.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.Abs(secs) > maxIntervalSeconds {
			return 0, fmt.Errorf("interval %q: out of range", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("interval %q: want seconds or a duration like 30s", s)
	}
	return d, nil
}

// Error is returned for any config file that cannot be read, parsed or validated.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %q: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults, then FISHNET_* environment
// variables override file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("read file: %w", err)}
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("parse yaml: %w", err)}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	if err := validate(cfg); err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default() when the file
// cannot be used. The load error is still returned so the caller can log it.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	return Default(), err
}

// Default returns the documented fallback configuration: one lichess server,
// standalone mode, environment overrides applied.
func Default() *Config {
	cfg := fallback()
	if err := applyEnv(cfg); err != nil {
		return fallback()
	}
	if err := validate(cfg); err != nil {
		// An override broke the fallback; ignore the overrides.
		return fallback()
	}
	return cfg
}

func fallback() *Config {
	cfg := defaults()
	cfg.Servers = []Server{{
		Name: "main",
		URL:  DefaultServerURL,
		Key:  "YOUR_API_KEY",
	}}
	return cfg
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Exporter: ExporterConfig{
			Port:           DefaultPort,
			ScrapeInterval: Interval(DefaultScrapeInterval),
			Namespace:      DefaultNamespace,
			CounterMode:    CounterModeCumulative,
			MaxConcurrency: DefaultMaxConcurrency,
			LogLevel:       DefaultLogLevel,
		},
		MetricsServer: MetricsServerConfig{
			Mode:       ModeCentral,
			CentralURL: DefaultCentralURL,
		},
	}
}

// envOverrides lists the FISHNET_* variables that take precedence over the file.
// Zero values mean "not set".
type envOverrides struct {
	Port           int    `env:"FISHNET_EXPORTER_PORT"`
	ScrapeInterval string `env:"FISHNET_SCRAPE_INTERVAL"`
	LogLevel       string `env:"FISHNET_LOG_LEVEL"`
	Enabled        string `env:"FISHNET_METRICS_ENABLED"`
	Mode           string `env:"FISHNET_METRICS_MODE"`
	CentralURL     string `env:"FISHNET_CENTRAL_URL"`
	AuthKey        string `env:"FISHNET_AUTH_KEY"`
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if o.Port != 0 {
		cfg.Exporter.Port = o.Port
	}
	if o.ScrapeInterval != "" {
		d, err := ParseInterval(o.ScrapeInterval)
		if err != nil {
			return fmt.Errorf("FISHNET_SCRAPE_INTERVAL: %w", err)
		}
		cfg.Exporter.ScrapeInterval = Interval(d)
	}
	if o.LogLevel != "" {
		cfg.Exporter.LogLevel = o.LogLevel
	}
	if o.Enabled != "" {
		enabled, err := strconv.ParseBool(o.Enabled)
		if err != nil {
			return fmt.Errorf("FISHNET_METRICS_ENABLED: %w", err)
		}
		cfg.MetricsServer.Enabled = enabled
	}
	if o.Mode != "" {
		cfg.MetricsServer.Mode = o.Mode
	}
	if o.CentralURL != "" {
		cfg.MetricsServer.CentralURL = o.CentralURL
	}
	if o.AuthKey != "" {
		cfg.MetricsServer.AuthKey = o.AuthKey
	}
	return nil
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	seen := make(map[string]struct{}, len(cfg.Servers))
	for i, srv := range cfg.Servers {
		if srv.Name == "" {
			return fmt.Errorf("servers[%d]: name is required", i)
		}
		if _, dup := seen[srv.Name]; dup {
			return fmt.Errorf("servers[%d]: duplicate name %q", i, srv.Name)
		}
		seen[srv.Name] = struct{}{}
		if err := checkHTTPURL(srv.URL); err != nil {
			return fmt.Errorf("servers[%d] %q: url: %w", i, srv.Name, err)
		}
	}

	e := cfg.Exporter
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("exporter.port %d is out of range [1, 65535]", e.Port)
	}
	if e.ScrapeInterval.Duration() <= 0 {
		return errors.New("exporter.scrape_interval must be positive")
	}
	if e.MaxConcurrency <= 0 {
		return errors.New("exporter.max_concurrency must be positive")
	}
	switch e.CounterMode {
	case CounterModeCumulative, CounterModeIncremental:
	default:
		return fmt.Errorf("exporter.counter_mode %q unknown: want cumulative|incremental", e.CounterMode)
	}
	switch strings.ToLower(e.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("exporter.log_level %q unknown: want debug|info|warn|error", e.LogLevel)
	}

	m := cfg.MetricsServer
	switch m.Mode {
	case ModeCentral, ModeClient:
	default:
		return fmt.Errorf("metrics_server.mode %q unknown: want central|client", m.Mode)
	}
	if m.Mode == ModeClient {
		if err := checkHTTPURL(m.CentralURL); err != nil {
			return fmt.Errorf("metrics_server.central_url: %w", err)
		}
	}
	return nil
}

func checkHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q: want http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
