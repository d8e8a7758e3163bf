// Package config loads the sluice CLI configuration from YAML.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/aretw0/sluice/internal/logging"
	"github.com/aretw0/sluice/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing default file
// is not an error.
const DefaultPath = "sluice.yaml"

// Store backends.
const (
	BackendNone   = ""
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

type Config struct {
	Engine  Engine  `yaml:"engine"`
	Log     Log     `yaml:"log"`
	Monitor Monitor `yaml:"monitor"`
	Store   Store   `yaml:"store"`
}

type Engine struct {
	Threading bool `yaml:"threading"`
	Grouping  bool `yaml:"grouping"`
	// Mode applies to nodes whose definition names no mode.
	Mode    string        `yaml:"mode"`
	Timeout time.Duration `yaml:"timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Monitor struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

type Store struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	LockTTL time.Duration `yaml:"lock_ttl"`
	// EncryptionKey is a base64 encoded 32 byte AES key. Snapshots are stored
	// encrypted when set.
	EncryptionKey string   `yaml:"encryption_key"`
	Redact        []string `yaml:"redact"`
	Redis         Redis    `yaml:"redis"`
}

type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// Default returns the configuration used when no file sets a value.
func Default() Config {
	return Config{
		Engine: Engine{
			Threading: true,
			Grouping:  true,
			Mode:      domain.Sequential.String(),
			Timeout:   time.Minute,
		},
		Log: Log{
			Level:  "info",
			Format: string(logging.FormatText),
		},
		Monitor: Monitor{
			Addr:    ":8089",
			Metrics: true,
		},
		Store: Store{
			Path:    ".sluice/snapshots",
			LockTTL: 30 * time.Second,
			Redis: Redis{
				Addr:   "localhost:6379",
				Prefix: "sluice:snapshot:",
			},
		},
	}
}

// Load reads path over the defaults. An empty path reads DefaultPath when it
// exists.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that cannot be checked by the YAML decoder.
func (c Config) Validate() error {
	var errs []error
	if _, err := domain.ParseExecutionMode(c.Engine.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Backend {
	case BackendNone, BackendMemory, BackendFile, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Store.EncryptionKey != "" {
		if key, err := c.Store.Key(); err != nil {
			errs = append(errs, err)
		} else if len(key) != 32 {
			errs = append(errs, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key)))
		}
	}
	for _, pattern := range c.Store.Redact {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid redact pattern: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Key decodes the encryption key.
func (s Store) Key() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return key, nil
}
