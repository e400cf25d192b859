package config

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete lumiline configuration
type Config struct {
	Identity  Identity  `yaml:"identity"`
	Relays    Relays    `yaml:"relays"`
	Timeline  Timeline  `yaml:"timeline"`
	Filters   Filters   `yaml:"filters"`
	Reactions Reactions `yaml:"reactions"`
	Storage   Storage   `yaml:"storage"`
	Logging   Logging   `yaml:"logging"`
}

// Identity contains the Nostr identity used for publishing reactions
type Identity struct {
	Npub string `yaml:"npub"`
	// Nsec is never read from the config file; set LUMILINE_NSEC instead
	Nsec string `yaml:"-"`
}

// Relays contains relay endpoints and connection policy
type Relays struct {
	Seeds  []string    `yaml:"seeds"`
	Policy RelayPolicy `yaml:"policy"`
}

// RelayPolicy contains relay connection policies
type RelayPolicy struct {
	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
	QueryTimeoutMs   int `yaml:"query_timeout_ms"`
}

// Timeline contains view sizing, pagination and polling settings
type Timeline struct {
	Kinds               []int `yaml:"kinds"`                 // event kinds shown in the view
	PageSize            int   `yaml:"page_size"`             // result-count hint per query
	MaxItems            int   `yaml:"max_items"`             // bounded view size
	PollIntervalSeconds int   `yaml:"poll_interval_seconds"` // watermark poll cadence
}

// Filters contains the client-side filter pipeline settings
type Filters struct {
	MutedAuthors  []string `yaml:"muted_authors"` // hex pubkeys
	MutedEvents   []string `yaml:"muted_events"`  // event ids
	NGWords       []string `yaml:"ng_words"`
	NGTags        []string `yaml:"ng_tags"`
	RequiredTags  []string `yaml:"required_tags"`
	Languages     []string `yaml:"languages"` // ISO 639 codes; empty = all
	HideSensitive bool     `yaml:"hide_sensitive"`
	AdKeywords    []string `yaml:"ad_keywords"`
	AdMaxLinks    int      `yaml:"ad_max_links"`
}

// Reactions contains stella reaction settings
type Reactions struct {
	MaxPerUser int              `yaml:"max_per_user"`
	DebounceMs int              `yaml:"debounce_ms"`
	CostsSats  map[string]int64 `yaml:"costs_sats"` // per paid category; the free category is always zero
}

// Storage contains local persistence settings
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging contains log output settings
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	// The signing key only ever comes from the environment
	if nsec := os.Getenv("LUMILINE_NSEC"); nsec != "" {
		cfg.Identity.Nsec = nsec
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in default values for unset fields
func (c *Config) applyDefaults() {
	if len(c.Timeline.Kinds) == 0 {
		c.Timeline.Kinds = []int{1, 6} // notes and reposts
	}
	if c.Timeline.PageSize == 0 {
		c.Timeline.PageSize = 50
	}
	if c.Timeline.MaxItems == 0 {
		c.Timeline.MaxItems = 500
	}
	if c.Timeline.PollIntervalSeconds == 0 {
		c.Timeline.PollIntervalSeconds = 30
	}
	if c.Relays.Policy.ConnectTimeoutMs == 0 {
		c.Relays.Policy.ConnectTimeoutMs = 10000
	}
	if c.Relays.Policy.QueryTimeoutMs == 0 {
		c.Relays.Policy.QueryTimeoutMs = 15000
	}
	if c.Filters.AdMaxLinks == 0 {
		c.Filters.AdMaxLinks = 4
	}
	if c.Reactions.MaxPerUser == 0 {
		c.Reactions.MaxPerUser = 50
	}
	if c.Reactions.DebounceMs == 0 {
		c.Reactions.DebounceMs = 400
	}
	if c.Reactions.CostsSats == nil {
		c.Reactions.CostsSats = map[string]int64{
			"red":    5,
			"green":  10,
			"blue":   20,
			"purple": 50,
		}
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "lumiline.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	// Normalize language codes
	for i, lang := range c.Filters.Languages {
		c.Filters.Languages[i] = strings.ToLower(strings.TrimSpace(lang))
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Identity.Npub == "" {
		return fmt.Errorf("identity.npub is required")
	}
	if !strings.HasPrefix(c.Identity.Npub, "npub1") {
		return fmt.Errorf("identity.npub must be a bech32 npub, got %q", c.Identity.Npub)
	}

	if len(c.Relays.Seeds) == 0 {
		return fmt.Errorf("relays.seeds must contain at least one relay")
	}
	for _, seed := range c.Relays.Seeds {
		if !strings.HasPrefix(seed, "wss://") && !strings.HasPrefix(seed, "ws://") {
			return fmt.Errorf("relay seed must be a websocket URL, got %q", seed)
		}
	}

	if c.Timeline.PageSize < 1 || c.Timeline.PageSize > 500 {
		return fmt.Errorf("timeline.page_size must be between 1 and 500, got %d", c.Timeline.PageSize)
	}
	if c.Timeline.MaxItems < c.Timeline.PageSize {
		return fmt.Errorf("timeline.max_items (%d) must be at least timeline.page_size (%d)",
			c.Timeline.MaxItems, c.Timeline.PageSize)
	}
	if c.Timeline.PollIntervalSeconds < 5 {
		return fmt.Errorf("timeline.poll_interval_seconds must be at least 5, got %d", c.Timeline.PollIntervalSeconds)
	}

	if c.Reactions.MaxPerUser < 1 {
		return fmt.Errorf("reactions.max_per_user must be positive, got %d", c.Reactions.MaxPerUser)
	}
	if c.Reactions.DebounceMs < 50 || c.Reactions.DebounceMs > 5000 {
		return fmt.Errorf("reactions.debounce_ms must be between 50 and 5000, got %d", c.Reactions.DebounceMs)
	}
	for category, cost := range c.Reactions.CostsSats {
		if cost < 0 {
			return fmt.Errorf("reactions.costs_sats.%s must not be negative, got %d", category, cost)
		}
	}

	return nil
}

// GetExampleConfig returns the embedded example configuration
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}
