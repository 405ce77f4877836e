// Package config loads proxylink configuration from config.yaml with
// environment variable overrides. Secrets (vault keys, JWT secret, DB
// password) come from the environment only.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the proxylink server.
// Environment variables always override YAML values for fields that
// support both; yaml:"-" fields are env-only secrets.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8180"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	Database DatabaseConfig `yaml:"database"`
	Vault    VaultConfig    `yaml:"vault"`
	Auth     AuthConfig     `yaml:"auth"`
	Proxy    ProxyConfig    `yaml:"proxy"`
}

// DatabaseConfig holds the PostgreSQL metadata store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"proxylink"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"proxylink"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// URL builds a connection string for pgx.
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.Database, d.SSLMode)
}

// VaultConfig holds credential-sealing key material. Keys never appear
// in YAML; they are supplied out-of-band via the environment.
type VaultConfig struct {
	// KeysStr is a comma-separated list of id=key pairs, where key is a
	// base64-encoded 32-byte value (openssl rand -base64 32) or a
	// passphrase. Format: "k1=base64key,k2=base64key"
	KeysStr string `yaml:"-" env:"VAULT_KEYS"`

	// ActiveKeyID selects the generation used for new seals. Defaults
	// to the only generation when exactly one key is configured.
	ActiveKeyID string `yaml:"-" env:"VAULT_ACTIVE_KEY_ID" env-default:""`

	// Keys is parsed from KeysStr at load time.
	Keys map[string]string `yaml:"-"`
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	// JWTSecret signs and verifies principal tokens (HS256). Server
	// fails to start without it unless verification is disabled.
	JWTSecret string `yaml:"-" env:"JWT_SECRET"`

	// EnableVerification controls whether bearer tokens are validated.
	// Set to false for local development; all requests are then anonymous.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`
}

// ProxyConfig bounds backend adapter execution.
type ProxyConfig struct {
	// DispatchTimeoutSeconds caps each backend call.
	DispatchTimeoutSeconds int `yaml:"dispatch_timeout_seconds" env:"PROXY_DISPATCH_TIMEOUT_SECONDS" env-default:"30"`
	// MaxResultRows caps row counts returned by relational/document backends.
	MaxResultRows int `yaml:"max_result_rows" env:"PROXY_MAX_RESULT_ROWS" env-default:"1000"`
	// MaxResponseBytes caps HTTP/object response payloads.
	MaxResponseBytes int64 `yaml:"max_response_bytes" env:"PROXY_MAX_RESPONSE_BYTES" env-default:"4194304"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	// Missing config.yaml is fine in env-only deployments.
	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{Scheme: "http", Host: "localhost:" + cfg.Port}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	keys, err := parseVaultKeys(c.Vault.KeysStr)
	if err != nil {
		return err
	}
	c.Vault.Keys = keys

	if len(keys) == 0 {
		return fmt.Errorf("VAULT_KEYS is required (format: id=key[,id=key...])")
	}
	if c.Vault.ActiveKeyID == "" {
		if len(keys) != 1 {
			return fmt.Errorf("VAULT_ACTIVE_KEY_ID is required when multiple key generations are configured")
		}
		for id := range keys {
			c.Vault.ActiveKeyID = id
		}
	}
	if _, ok := keys[c.Vault.ActiveKeyID]; !ok {
		return fmt.Errorf("VAULT_ACTIVE_KEY_ID %q does not match any configured key generation", c.Vault.ActiveKeyID)
	}

	if c.Auth.EnableVerification && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when auth verification is enabled")
	}

	return nil
}

// parseVaultKeys parses "id=key,id=key" into a map. Empty input yields
// an empty map; validation of key presence happens in the caller.
func parseVaultKeys(s string) (map[string]string, error) {
	keys := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return keys, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, key, found := strings.Cut(pair, "=")
		if !found || id == "" || key == "" {
			return nil, fmt.Errorf("invalid VAULT_KEYS entry %q (expected id=key)", pair)
		}
		if _, dup := keys[id]; dup {
			return nil, fmt.Errorf("duplicate vault key id %q", id)
		}
		keys[id] = key
	}
	return keys, nil
}
