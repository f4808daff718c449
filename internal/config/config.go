package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"lifxctl/internal/lights"
)

const appName = "lifxctl"

// Config represents the lifxctl configuration file.
type Config struct {
	LAN     LANConfig     `yaml:"lan"`
	HTTP    HTTPConfig    `yaml:"http"`
	Control ControlConfig `yaml:"control"`
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
}

// LANConfig contains local broadcast discovery settings
type LANConfig struct {
	Enabled       *bool    `yaml:"enabled"`
	Timeout       Duration `yaml:"timeout"`        // Broadcast discovery window
	StateTimeout  Duration `yaml:"state_timeout"`  // Per-light state query bound
	RetryAttempts int      `yaml:"retry_attempts"` // State query attempts during discovery
	Cooldown      Duration `yaml:"cooldown"`       // Minimum interval between background rescans
	Broadcast     string   `yaml:"broadcast"`      // Broadcast host override, empty = default
}

// HTTPConfig contains cloud API settings
type HTTPConfig struct {
	Token        string   `yaml:"token"`
	BaseURL      string   `yaml:"base_url"`
	Timeout      Duration `yaml:"timeout"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
}

type ControlConfig struct {
	Timeout         Duration `yaml:"timeout"`
	DefaultDuration Duration `yaml:"default_duration"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration the way it is read back.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// LANEnabled reports whether LAN discovery is on. It defaults to true.
func (c *Config) LANEnabled() bool {
	return c.LAN.Enabled == nil || *c.LAN.Enabled
}

// Lights converts the file settings to the coordinator configuration.
func (c *Config) Lights() lights.Config {
	return lights.Config{
		EnableLANDiscovery: c.LANEnabled(),
		LANTimeout:         c.LAN.Timeout.Duration(),
		LANStateTimeout:    c.LAN.StateTimeout.Duration(),
		LANRetryAttempts:   c.LAN.RetryAttempts,
		LANCooldown:        c.LAN.Cooldown.Duration(),
		LANBroadcast:       c.LAN.Broadcast,
		HTTPAPIToken:       c.HTTP.Token,
		HTTPBaseURL:        c.HTTP.BaseURL,
		HTTPTimeout:        c.HTTP.Timeout.Duration(),
		HTTPRateLimit:      c.HTTP.RateLimitRPS,
		ControlTimeout:     c.Control.Timeout.Duration(),
	}
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var cfg Config
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the configuration file. An empty path means the
// default location, where a missing file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding ${VAR} and ${VAR:default} first.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	// LAN defaults
	if c.LAN.Timeout == 0 {
		c.LAN.Timeout = Duration(lights.DefaultLANTimeout)
	}
	if c.LAN.StateTimeout == 0 {
		c.LAN.StateTimeout = Duration(lights.DefaultStateTimeout)
	}
	if c.LAN.RetryAttempts == 0 {
		c.LAN.RetryAttempts = lights.DefaultRetryAttempts
	}
	if c.LAN.Cooldown == 0 {
		c.LAN.Cooldown = Duration(lights.DefaultCooldown)
	}

	// HTTP defaults; the cloud allows 120 requests per minute
	if c.HTTP.BaseURL == "" {
		c.HTTP.BaseURL = lights.DefaultHTTPBaseURL
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = Duration(lights.DefaultHTTPTimeout)
	}
	if c.HTTP.RateLimitRPS == 0 {
		c.HTTP.RateLimitRPS = lights.DefaultHTTPRateLimit
	}

	if c.Control.Timeout == 0 {
		c.Control.Timeout = Duration(lights.DefaultControlTimeout)
	}
	if c.Control.DefaultDuration == 0 {
		c.Control.DefaultDuration = Duration(lights.DefaultDuration)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Store.Path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		c.Store.Path = filepath.Join(dir, "profiles.db")
	}
	return c.validate()
}

func (c *Config) validate() error {
	if c.LAN.RetryAttempts < 0 {
		return fmt.Errorf("lan.retry_attempts must not be negative")
	}
	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("http.rate_limit_rps must not be negative")
	}
	for name, d := range map[string]Duration{
		"lan.timeout":              c.LAN.Timeout,
		"lan.state_timeout":        c.LAN.StateTimeout,
		"lan.cooldown":             c.LAN.Cooldown,
		"http.timeout":             c.HTTP.Timeout,
		"control.timeout":          c.Control.Timeout,
		"control.default_duration": c.Control.DefaultDuration,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// Dir returns the per-user directory holding the config file and the
// profile database.
func Dir() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support")
	default:
		dir = os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(dir, appName), nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
