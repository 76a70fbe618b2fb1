package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied to any profile field left unset.
const (
	DefaultBackendURL     = "http://localhost:8000"
	DefaultRequestTimeout = 30 * time.Second
	DefaultCacheTTL       = 5 * time.Minute
	DefaultTopK           = 10
	DefaultAnswerStyle    = "concise"
	DefaultLogLevel       = "info"
)

// Config represents the global ~/.tgrag/config.toml.
type Config struct {
	DefaultProfile string             `toml:"default_profile"`
	Profiles       map[string]Profile `toml:"profiles"`
}

// Profile holds the settings for one backend target.
type Profile struct {
	BackendURL     string   `toml:"backend_url"`
	RequestTimeout Duration `toml:"request_timeout"`
	CacheTTL       Duration `toml:"cache_ttl"`
	TopK           int      `toml:"top_k"`
	AnswerStyle    string   `toml:"answer_style"`
	LogLevel       string   `toml:"log_level"`
}

// Duration is a time.Duration stored as a Go duration string ("5m", "30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to an empty config when
// the file does not exist. Parse errors are still returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return nil, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Profile returns the named profile with defaults filled in. Unknown names
// yield a profile made entirely of defaults.
func (c *Config) Profile(name string) Profile {
	var p Profile
	if c != nil && c.Profiles != nil {
		p = c.Profiles[name]
	}
	return p.withDefaults()
}

func (p Profile) withDefaults() Profile {
	if p.BackendURL == "" {
		p.BackendURL = DefaultBackendURL
	}
	if p.RequestTimeout.Duration <= 0 {
		p.RequestTimeout.Duration = DefaultRequestTimeout
	}
	if p.CacheTTL.Duration <= 0 {
		p.CacheTTL.Duration = DefaultCacheTTL
	}
	if p.TopK <= 0 {
		p.TopK = DefaultTopK
	}
	if p.AnswerStyle == "" {
		p.AnswerStyle = DefaultAnswerStyle
	}
	if p.LogLevel == "" {
		p.LogLevel = DefaultLogLevel
	}
	return p
}
