// Package config loads client settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/fwojciec/parachute"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is where a local Parachute server listens.
	DefaultBaseURL = "http://localhost:3333"
	// MaxProbeTimeout caps liveness probes, which block the caller.
	MaxProbeTimeout = 5 * time.Second
)

// Config holds the client settings.
type Config struct {
	BaseURL          string                 `yaml:"url"`
	APIKey           string                 `yaml:"api_key"`
	PathPrefix       string                 `yaml:"path_prefix"`
	ConnectTimeout   time.Duration          `yaml:"connect_timeout"`
	IdleTimeout      time.Duration          `yaml:"idle_timeout"`
	ProbeTimeout     time.Duration          `yaml:"probe_timeout"`
	JoinRetries      int                    `yaml:"join_retries"`
	RecoveryMode     parachute.RecoveryMode `yaml:"recovery_mode"`
	LogLevel         string                 `yaml:"log_level"`
	LogPretty        bool                   `yaml:"log_pretty"`
	WorkingDirectory string                 `yaml:"working_directory"`
	SystemPrompt     string                 `yaml:"system_prompt"`
	Contexts         []string               `yaml:"contexts"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		ConnectTimeout: 30 * time.Second,
		IdleTimeout:    120 * time.Second,
		ProbeTimeout:   MaxProbeTimeout,
		JoinRetries:    3,
		RecoveryMode:   parachute.RecoveryInjectContext,
		LogLevel:       "warn",
	}
}

// Load builds a Config from the defaults, the YAML file at path if it exists,
// and the environment variables read through env. An empty path skips the
// file. The result is validated.
func Load(path string, env func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, iofs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if env != nil {
		if err := cfg.applyEnv(env); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(env func(string) string) error {
	str := func(key string, dst *string) {
		if v := env(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := env(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("PARACHUTE_URL", &c.BaseURL)
	str("PARACHUTE_API_KEY", &c.APIKey)
	str("PARACHUTE_PATH_PREFIX", &c.PathPrefix)
	str("LOG_LEVEL", &c.LogLevel)
	if v := env("PARACHUTE_RECOVERY_MODE"); v != "" {
		c.RecoveryMode = parachute.RecoveryMode(v)
	}
	if v := env("PARACHUTE_JOIN_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PARACHUTE_JOIN_RETRIES: %w", err)
		}
		c.JoinRetries = n
	}
	return errors.Join(
		dur("PARACHUTE_CONNECT_TIMEOUT", &c.ConnectTimeout),
		dur("PARACHUTE_IDLE_TIMEOUT", &c.IdleTimeout),
		dur("PARACHUTE_PROBE_TIMEOUT", &c.ProbeTimeout),
	)
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: url %q must be an absolute http(s) URL: %w", c.BaseURL, parachute.ErrValidation)
	}
	for name, d := range map[string]time.Duration{
		"connect_timeout": c.ConnectTimeout,
		"idle_timeout":    c.IdleTimeout,
		"probe_timeout":   c.ProbeTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive: %w", name, parachute.ErrValidation)
		}
	}
	if c.ProbeTimeout > MaxProbeTimeout {
		return fmt.Errorf("config: probe_timeout must not exceed %s: %w", MaxProbeTimeout, parachute.ErrValidation)
	}
	if c.JoinRetries < 0 {
		return fmt.Errorf("config: join_retries must not be negative: %w", parachute.ErrValidation)
	}
	if _, err := parachute.ParseRecoveryMode(string(c.RecoveryMode)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// LoadDotEnv returns an env lookup that consults getenv first and falls back
// to the variables defined in the given .env files. Missing files are
// skipped; earlier files win over later ones.
func LoadDotEnv(getenv func(string) string, paths ...string) (func(string) string, error) {
	vars := make(map[string]string)
	for _, p := range paths {
		m, err := godotenv.Read(p)
		if errors.Is(err, iofs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", p, err)
		}
		for k, v := range m {
			if _, ok := vars[k]; !ok {
				vars[k] = v
			}
		}
	}
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return vars[key]
	}, nil
}
