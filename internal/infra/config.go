package infra

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application settings. Sensitive values can be
// overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Audit struct {
		InstanceID          string `yaml:"instance_id"` // generated when empty
		BaseURL             string `yaml:"base_url"`
		Secret              string `yaml:"secret"`
		SnapshotIntervalSec int    `yaml:"snapshot_interval_sec"`
		TickIntervalMS      int    `yaml:"tick_interval_ms"`
		LevelTolerance      string `yaml:"level_tolerance"` // decimal string, e.g. "0.00000001"
	} `yaml:"audit"`

	Account struct {
		Broker   string `yaml:"broker"`
		Currency string `yaml:"currency"`
		Number   int64  `yaml:"number"`
		Server   string `yaml:"server"`
		Magic    int64  `yaml:"magic"` // strategy instance discriminator
	} `yaml:"account"`

	Feed struct {
		WSURL   string   `yaml:"ws_url"`
		Symbols []string `yaml:"symbols"`
	} `yaml:"feed"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Audit.BaseURL == "" || (!hasPrefix(c.Audit.BaseURL, "http://") && !hasPrefix(c.Audit.BaseURL, "https://")) {
		return fmt.Errorf("invalid audit base URL: %s", c.Audit.BaseURL)
	}
	if c.Audit.TickIntervalMS <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.Audit.SnapshotIntervalSec <= 0 {
		return fmt.Errorf("snapshot interval must be positive")
	}
	if c.Audit.LevelTolerance != "" {
		if _, err := decimal.NewFromString(c.Audit.LevelTolerance); err != nil {
			return fmt.Errorf("invalid level tolerance %q: %w", c.Audit.LevelTolerance, err)
		}
	}
	if c.Feed.WSURL != "" && !hasPrefix(c.Feed.WSURL, "ws://") && !hasPrefix(c.Feed.WSURL, "wss://") {
		return fmt.Errorf("invalid feed WS URL: %s", c.Feed.WSURL)
	}
	return nil
}

// Tolerance returns the parsed level tolerance, zero when unset. Validate
// has already checked the string parses.
func (c *Config) Tolerance() decimal.Decimal {
	if c.Audit.LevelTolerance == "" {
		return decimal.Decimal{}
	}
	d, _ := decimal.NewFromString(c.Audit.LevelTolerance)
	return d
}

// StableID derives the identifier for the secondary seq cache slot from
// the account configuration. It must stay stable across restarts and
// local-storage loss for the same logical instance.
func (c *Config) StableID() string {
	material := fmt.Sprintf("%d|%s|%d", c.Account.Number, c.Account.Server, c.Account.Magic)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:8])
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv applies environment variable overrides when present.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("TRACK_AUDIT_URL"); url != "" {
		cfg.Audit.BaseURL = url
	}
	if secret := os.Getenv("TRACK_AUDIT_SECRET"); secret != "" {
		cfg.Audit.Secret = secret
	}
	if id := os.Getenv("TRACK_INSTANCE_ID"); id != "" {
		cfg.Audit.InstanceID = id
	}
}
