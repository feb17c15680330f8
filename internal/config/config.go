// Package config defines the dashboard configuration and its loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and CREDASH_ env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config contains process configuration for the dashboard and the stub backend.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFile receives log lines so they do not interleave with the rendered view.
	// Empty means stderr.
	LogFile string `koanf:"log_file"`

	// BaseURL is the backend root, e.g. "http://localhost:8000". /health lives here.
	BaseURL string `koanf:"base_url"`
	// APIPrefix is appended to BaseURL for the score endpoints.
	APIPrefix string `koanf:"api_prefix"`
	// PushURL is the websocket endpoint. Derived from BaseURL when empty.
	PushURL string `koanf:"push_url"`
	// MetricsAddr serves /metrics when non-empty, e.g. ":9091".
	MetricsAddr string `koanf:"metrics_addr"`

	// Retry policy shared by fetches and push reconnects.
	FetchMaxAttempts       int     `koanf:"fetch_max_attempts"`
	FetchBaseDelayMS       int     `koanf:"fetch_base_delay_ms"`
	FetchBackoffMultiplier float64 `koanf:"fetch_backoff_multiplier"`
	FetchTimeoutMS         int     `koanf:"fetch_timeout_ms"`
	FetchMaxDelayMS        int     `koanf:"fetch_max_delay_ms"`

	// PollIntervalMS refreshes the list periodically on top of push notifications. 0 disables.
	PollIntervalMS int `koanf:"poll_interval_ms"`
	// TopDrivers limits the explanation list. 0 shows everything.
	TopDrivers int `koanf:"top_drivers"`
	// RenderWidth is the terminal width used by the renderer.
	RenderWidth int `koanf:"render_width"`
	// ActionQueueSize bounds the pending user actions.
	ActionQueueSize int `koanf:"action_queue_size"`

	// Stub backend settings.
	StubAddr    string `koanf:"stub_addr"`
	StubIssuers int    `koanf:"stub_issuers"`
	StubTickMS  int    `koanf:"stub_tick_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		BaseURL:                "http://localhost:8000",
		APIPrefix:              "/api/v1",
		FetchMaxAttempts:       3,
		FetchBaseDelayMS:       500,
		FetchBackoffMultiplier: 2.0,
		FetchTimeoutMS:         5000,
		FetchMaxDelayMS:        30_000,
		PollIntervalMS:         0,
		TopDrivers:             8,
		RenderWidth:            100,
		ActionQueueSize:        64,
		StubAddr:               ":8000",
		StubIssuers:            6,
		StubTickMS:             5000,
	}
}

// FetchBaseDelay returns the first retry delay.
func (c *Config) FetchBaseDelay() time.Duration {
	return time.Duration(c.FetchBaseDelayMS) * time.Millisecond
}

// FetchTimeout returns the per-attempt timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// FetchMaxDelay returns the cap on a single backoff wait.
func (c *Config) FetchMaxDelay() time.Duration {
	return time.Duration(c.FetchMaxDelayMS) * time.Millisecond
}

// PollInterval returns the periodic refresh interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// StubTick returns the stub backend's generation tick.
func (c *Config) StubTick() time.Duration {
	return time.Duration(c.StubTickMS) * time.Millisecond
}

// APIBase returns BaseURL joined with APIPrefix.
func (c *Config) APIBase() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.APIPrefix, "/")
}

// ResolvedPushURL returns PushURL, or ws(s)://host/ws/latest derived from BaseURL.
func (c *Config) ResolvedPushURL() (string, error) {
	if c.PushURL != "" {
		return c.PushURL, nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: base_url: %w", ErrInvalidConfig, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/latest"
	return u.String(), nil
}

// Validate checks the fields the dashboard cannot run without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if c.BaseURL == "" || err != nil || u.Host == "" {
		return fmt.Errorf("%w: base_url must be an absolute URL, got %q", ErrInvalidConfig, c.BaseURL)
	}
	if c.FetchMaxAttempts < 1 {
		return fmt.Errorf("%w: fetch_max_attempts must be >= 1", ErrInvalidConfig)
	}
	if c.FetchBackoffMultiplier < 1 {
		return fmt.Errorf("%w: fetch_backoff_multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.FetchTimeoutMS <= 0 {
		return fmt.Errorf("%w: fetch_timeout_ms must be > 0", ErrInvalidConfig)
	}
	if c.FetchBaseDelayMS < 0 || c.FetchMaxDelayMS < 0 || c.PollIntervalMS < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}
	return nil
}
