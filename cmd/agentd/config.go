package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cabline.dev/agent/booking/call"
	"cabline.dev/agent/booking/engine"
)

// Model providers accepted by the model.provider key.
const (
	providerAnthropic = "anthropic"
	providerOpenAI    = "openai"
)

type (
	// Config is the daemon configuration. Operational switches (config
	// path, listen override, debug) come from flags; endpoints, credentials
	// and tunables come from the YAML file.
	Config struct {
		// Listen is the HTTP listen address. Defaults to ":8080".
		Listen  string        `yaml:"listen"`
		Mongo   MongoConfig   `yaml:"mongo"`
		Redis   RedisConfig   `yaml:"redis"`
		Vendors VendorsConfig `yaml:"vendors"`
		Model   ModelConfig   `yaml:"model"`
		Booking BookingConfig `yaml:"booking"`
	}

	// MongoConfig locates the call log database.
	MongoConfig struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	}

	// RedisConfig locates the Redis instance backing the live fan-out and
	// the shared model rate limit.
	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		// StreamMaxLen bounds each Pulse stream. Zero keeps Pulse defaults.
		StreamMaxLen int `yaml:"stream_max_len"`
	}

	// VendorsConfig locates the dispatch vendors. The caller ID vendor is
	// optional; calls proceed anonymously without it.
	VendorsConfig struct {
		Geocode  GeocodeConfig `yaml:"geocode"`
		Fleet    VendorConfig  `yaml:"fleet"`
		CallerID VendorConfig  `yaml:"callerid"`
	}

	// VendorConfig is the common endpoint+credential pair.
	VendorConfig struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
	}

	// GeocodeConfig extends VendorConfig with client-side rate limiting.
	GeocodeConfig struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		// RateLimit is the request rate in requests per second. Zero
		// disables client-side limiting.
		RateLimit float64 `yaml:"rate_limit"`
		Burst     int     `yaml:"burst"`
	}

	// ModelConfig selects and credentials the summary model.
	ModelConfig struct {
		// Provider is "anthropic" or "openai".
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		// Name is the model identifier, e.g. "claude-sonnet-4-5".
		Name string `yaml:"name"`
		// MaxTokens caps summary length. Zero keeps the summarizer default.
		MaxTokens int `yaml:"max_tokens"`
		// TPM and MaxTPM seed and bound the adaptive token-per-minute
		// limit shared across replicas. Zero keeps the limiter defaults.
		TPM    float64 `yaml:"tpm"`
		MaxTPM float64 `yaml:"max_tpm"`
	}

	// BookingConfig tunes the per-call shell and engine.
	BookingConfig struct {
		BackendTimeout Duration   `yaml:"backend_timeout"`
		MailboxSize    int        `yaml:"mailbox_size"`
		Welcome        string     `yaml:"welcome"`
		Caps           CapsConfig `yaml:"caps"`
	}

	// CapsConfig bounds the engine retry counters. The defaults are the
	// production caps; any key set in the file overrides just that counter.
	CapsConfig struct {
		Pickup        int `yaml:"pickup"`
		Dropoff       int `yaml:"dropoff"`
		Passengers    int `yaml:"passengers"`
		Time          int `yaml:"time"`
		Confirm       int `yaml:"confirm"`
		PickupVerify  int `yaml:"pickup_verify"`
		DropoffVerify int `yaml:"dropoff_verify"`
		AmendMenu     int `yaml:"amend_menu"`
	}

	// Duration decodes Go duration strings ("10s", "1m30s") from YAML.
	// time.Duration has no YAML support of its own.
	Duration time.Duration
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfig returns the configuration the YAML file overrides.
func DefaultConfig() *Config {
	caps := engine.DefaultCaps()
	return &Config{
		Listen: ":8080",
		Booking: BookingConfig{
			BackendTimeout: Duration(call.DefaultBackendTimeout),
			MailboxSize:    call.DefaultMailboxSize,
			Caps: CapsConfig{
				Pickup:        caps.Pickup,
				Dropoff:       caps.Dropoff,
				Passengers:    caps.Passengers,
				Time:          caps.Time,
				Confirm:       caps.Confirm,
				PickupVerify:  caps.PickupVerify,
				DropoffVerify: caps.DropoffVerify,
				AmendMenu:     caps.AmendMenu,
			},
		},
	}
}

// LoadConfig reads path, decodes it over the defaults and validates the
// result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.Mongo.URI == "" {
		return errors.New("mongo.uri is required")
	}
	if c.Mongo.Database == "" {
		return errors.New("mongo.database is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Vendors.Geocode.Endpoint == "" {
		return errors.New("vendors.geocode.endpoint is required")
	}
	if c.Vendors.Fleet.Endpoint == "" {
		return errors.New("vendors.fleet.endpoint is required")
	}
	switch c.Model.Provider {
	case providerAnthropic, providerOpenAI:
	default:
		return fmt.Errorf("model.provider must be %q or %q, got %q", providerAnthropic, providerOpenAI, c.Model.Provider)
	}
	if c.Model.APIKey == "" {
		return errors.New("model.api_key is required")
	}
	if c.Model.Name == "" {
		return errors.New("model.name is required")
	}
	if c.Booking.BackendTimeout <= 0 {
		return errors.New("booking.backend_timeout must be positive")
	}
	if c.Booking.MailboxSize <= 0 {
		return errors.New("booking.mailbox_size must be positive")
	}
	return nil
}

// caps converts the config block to engine caps. Cap values are validated by
// the engine itself when the boot probe constructs the first machine.
func (b BookingConfig) caps() engine.Caps {
	return engine.Caps{
		Pickup:        b.Caps.Pickup,
		Dropoff:       b.Caps.Dropoff,
		Passengers:    b.Caps.Passengers,
		Time:          b.Caps.Time,
		Confirm:       b.Caps.Confirm,
		PickupVerify:  b.Caps.PickupVerify,
		DropoffVerify: b.Caps.DropoffVerify,
		AmendMenu:     b.Caps.AmendMenu,
	}
}
