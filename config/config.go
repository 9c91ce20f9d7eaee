package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// StorageKind identifies which datastore collaborator a DATASTORE_URL selects
type StorageKind string

const (
	StoragePostgres StorageKind = "postgres"
	StorageREST     StorageKind = "rest"
	StorageSQLite   StorageKind = "sqlite"
)

// Config holds the service configuration read from the environment at startup
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"heray-members"`

	// Datastore endpoint and access key; both are required
	DatastoreURL     string        `env:"DATASTORE_URL,required,notEmpty"`
	DatastoreKey     string        `env:"DATASTORE_KEY,required,notEmpty"`
	DatastoreTimeout time.Duration `env:"DATASTORE_TIMEOUT" envDefault:"10s"`

	// Connection pool settings for SQL datastores
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"30m"`
	RunMigration      bool          `env:"RUN_MIGRATION" envDefault:"false"`

	// Hosted auth provider; defaults to the datastore URL when that is an HTTP endpoint
	AuthProviderURL  string `env:"AUTH_PROVIDER_URL"`
	SessionJWTSecret string `env:"SESSION_JWT_SECRET"`

	// Admin allow-list sources, merged
	AdminEmails        []string `env:"ADMIN_EMAILS" envSeparator:","`
	AdminAllowListFile string   `env:"ADMIN_ALLOWLIST_FILE"`
}

// Load parses and validates the configuration
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that tags cannot express
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatastoreURL) == "" {
		return errors.New("DATASTORE_URL is required")
	}
	if strings.TrimSpace(c.DatastoreKey) == "" {
		return errors.New("DATASTORE_KEY is required")
	}
	if _, err := c.StorageKind(); err != nil {
		return err
	}
	return nil
}

// AdminAuthConfigured reports whether any admin session can be verified
func (c *Config) AdminAuthConfigured() bool {
	return c.ResolvedAuthProviderURL() != "" || c.SessionJWTSecret != ""
}

// StorageKind derives the datastore collaborator from the URL scheme
func (c *Config) StorageKind() (StorageKind, error) {
	u, err := url.Parse(c.DatastoreURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATASTORE_URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return StoragePostgres, nil
	case "http", "https":
		return StorageREST, nil
	case "sqlite":
		return StorageSQLite, nil
	default:
		return "", fmt.Errorf("unsupported DATASTORE_URL scheme %q (expected postgres, postgresql, http, https or sqlite)", u.Scheme)
	}
}

// ResolvedAuthProviderURL returns the auth provider base URL, or "" when none is available
func (c *Config) ResolvedAuthProviderURL() string {
	if c.AuthProviderURL != "" {
		return strings.TrimRight(c.AuthProviderURL, "/")
	}
	if kind, err := c.StorageKind(); err == nil && kind == StorageREST {
		return strings.TrimRight(c.DatastoreURL, "/")
	}
	return ""
}

// allowListFile is the YAML layout of ADMIN_ALLOWLIST_FILE
type allowListFile struct {
	Admins []string `yaml:"admins"`
}

// LoadAdminEmails merges ADMIN_EMAILS with the optional allow-list file.
// Entries are trimmed and lower-cased; duplicates are dropped.
func (c *Config) LoadAdminEmails() ([]string, error) {
	emails := append([]string(nil), c.AdminEmails...)

	if c.AdminAllowListFile != "" {
		data, err := os.ReadFile(c.AdminAllowListFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read allow-list file %s: %w", c.AdminAllowListFile, err)
		}
		var file allowListFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse allow-list file %s: %w", c.AdminAllowListFile, err)
		}
		emails = append(emails, file.Admins...)
	}

	seen := make(map[string]struct{}, len(emails))
	result := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		result = append(result, e)
	}
	return result, nil
}
