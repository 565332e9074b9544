// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package config loads oaep-node settings from the environment, optionally
// seeded from a .env file, and agent profile manifests from YAML.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/oap-foundation/oaep-go/types"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type LogConfig struct {
	Level  string `env:"OAEP_LOG_LEVEL" env-default:"info"`
	Format string `env:"OAEP_LOG_FORMAT" env-default:"text"`
}

type HTTPConfig struct {
	Addr            string        `env:"OAEP_HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `env:"OAEP_HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `env:"OAEP_HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `env:"OAEP_HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	MaxBodyBytes    int64         `env:"OAEP_HTTP_MAX_BODY_BYTES" env-default:"1048576"`
	// PublicURL is advertised as the OAEP service endpoint in the DID document.
	PublicURL string `env:"OAEP_PUBLIC_URL"`
}

type IdentityConfig struct {
	// Method is "key" or "web".
	Method string `env:"OAEP_DID_METHOD" env-default:"key"`
	// WebDomain and WebPath are required for did:web; the path uses "/"
	// between segments.
	WebDomain    string `env:"OAEP_WEB_DOMAIN"`
	WebPath      string `env:"OAEP_WEB_PATH"`
	ManifestPath string `env:"OAEP_PROFILE_MANIFEST" env-default:"profile.yaml"`
}

type KeysConfig struct {
	Dir        string `env:"OAEP_KEY_DIR" env-default:"./keys"`
	Passphrase string `env:"OAEP_KEY_PASSPHRASE" env-required:"true"`
}

type SessionConfig struct {
	Store         string        `env:"OAEP_SESSION_STORE" env-default:"memory"`
	MaxAge        time.Duration `env:"OAEP_SESSION_MAX_AGE" env-default:"1h"`
	SweepInterval time.Duration `env:"OAEP_SESSION_SWEEP_INTERVAL" env-default:"1m"`
	// VerifyProfiles enables issuer verification of incoming agent profiles.
	VerifyProfiles bool `env:"OAEP_VERIFY_PROFILES" env-default:"false"`
}

type RedisConfig struct {
	Addr     string `env:"OAEP_REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"OAEP_REDIS_PASSWORD"`
	DB       int    `env:"OAEP_REDIS_DB" env-default:"0"`
}

type ResolverConfig struct {
	Timeout          time.Duration `env:"OAEP_RESOLVER_TIMEOUT" env-default:"10s"`
	MaxDocumentBytes int64         `env:"OAEP_RESOLVER_MAX_BYTES" env-default:"1048576"`
	CacheSize        int           `env:"OAEP_RESOLVER_CACHE_SIZE" env-default:"1024"`
	CacheTTL         time.Duration `env:"OAEP_RESOLVER_CACHE_TTL" env-default:"1h"`
}

// Config is the complete oaep-node configuration.
type Config struct {
	Log      LogConfig
	HTTP     HTTPConfig
	Identity IdentityConfig
	Keys     KeysConfig
	Sessions SessionConfig
	Redis    RedisConfig
	Resolver ResolverConfig
}

// Load reads the configuration from the environment. When path is non-empty
// the .env file at path is loaded first; variables already set in the
// environment take precedence over it.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad loads the configuration from the file named by the -config flag
// and panics on failure.
func MustLoad() *Config {
	cfg, err := Load(configPath())
	if err != nil {
		panic(err)
	}
	return cfg
}

func configPath() string {
	var path string
	flag.StringVar(&path, "config", "", "path to .env config file")
	flag.Parse()
	if path != "" {
		return path
	}
	if _, err := os.Stat(".env"); err == nil {
		return ".env"
	}
	return ""
}

// Validate checks the cross-field rules cleanenv cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.Identity.Method {
	case string(types.DIDMethodKey):
	case string(types.DIDMethodWeb):
		if c.Identity.WebDomain == "" {
			errs = append(errs, &types.ErrValidation{Field: "OAEP_WEB_DOMAIN", Reason: "is required for did:web"})
		}
	default:
		errs = append(errs, &types.ErrValidation{Field: "OAEP_DID_METHOD", Reason: fmt.Sprintf("unsupported method %q", c.Identity.Method)})
	}
	switch c.Sessions.Store {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, &types.ErrValidation{Field: "OAEP_SESSION_STORE", Reason: fmt.Sprintf("unsupported store %q", c.Sessions.Store)})
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, &types.ErrValidation{Field: "OAEP_LOG_FORMAT", Reason: fmt.Sprintf("unsupported format %q", c.Log.Format)})
	}
	if c.Sessions.SweepInterval <= 0 {
		errs = append(errs, &types.ErrValidation{Field: "OAEP_SESSION_SWEEP_INTERVAL", Reason: "must be positive"})
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// WebPathSegments splits WebPath into did:web path segments.
func (c *IdentityConfig) WebPathSegments() []string {
	trimmed := strings.Trim(c.WebPath, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
