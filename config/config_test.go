package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("DATASTORE_URL", "https://abc.example.co")
		t.Setenv("DATASTORE_KEY", "anon")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "heray-members", cfg.ServiceName)
		assert.Equal(t, 10*time.Second, cfg.DatastoreTimeout)
		assert.Equal(t, 25, cfg.DBMaxOpenConns)
		assert.False(t, cfg.RunMigration)
		assert.Empty(t, cfg.AdminEmails)
	})

	t.Run("missing datastore url", func(t *testing.T) {
		t.Setenv("DATASTORE_URL", "")
		t.Setenv("DATASTORE_KEY", "anon")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATASTORE_URL")
	})

	t.Run("missing datastore key", func(t *testing.T) {
		t.Setenv("DATASTORE_URL", "https://abc.example.co")
		t.Setenv("DATASTORE_KEY", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATASTORE_KEY")
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		t.Setenv("DATASTORE_URL", "mysql://db/heray")
		t.Setenv("DATASTORE_KEY", "anon")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported DATASTORE_URL scheme")
	})

	t.Run("admin list from env", func(t *testing.T) {
		t.Setenv("DATASTORE_URL", "https://abc.example.co")
		t.Setenv("DATASTORE_KEY", "anon")
		t.Setenv("ADMIN_EMAILS", "founder@herayorg.com,ops@herayorg.com")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"founder@herayorg.com", "ops@herayorg.com"}, cfg.AdminEmails)
	})
}

func TestConfig_StorageKind(t *testing.T) {
	tests := []struct {
		url     string
		want    StorageKind
		wantErr bool
	}{
		{"postgres://u:p@db/heray", StoragePostgres, false},
		{"postgresql://db/heray", StoragePostgres, false},
		{"https://abc.example.co", StorageREST, false},
		{"HTTP://localhost:54321", StorageREST, false},
		{"sqlite://./heray.db", StorageSQLite, false},
		{"redis://cache", "", true},
		{"://bad", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := &Config{DatastoreURL: tt.url}
			got, err := cfg.StorageKind()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_ResolvedAuthProviderURL(t *testing.T) {
	t.Run("explicit url wins", func(t *testing.T) {
		cfg := &Config{DatastoreURL: "https://abc.example.co", AuthProviderURL: "https://auth.example.co/"}
		assert.Equal(t, "https://auth.example.co", cfg.ResolvedAuthProviderURL())
		assert.True(t, cfg.AdminAuthConfigured())
	})

	t.Run("defaults to hosted datastore", func(t *testing.T) {
		cfg := &Config{DatastoreURL: "https://abc.example.co/"}
		assert.Equal(t, "https://abc.example.co", cfg.ResolvedAuthProviderURL())
	})

	t.Run("none for sql datastores", func(t *testing.T) {
		cfg := &Config{DatastoreURL: "postgres://db/heray"}
		assert.Empty(t, cfg.ResolvedAuthProviderURL())
		assert.False(t, cfg.AdminAuthConfigured())

		cfg.SessionJWTSecret = "jwt-secret"
		assert.True(t, cfg.AdminAuthConfigured())
	})
}

func TestConfig_LoadAdminEmails(t *testing.T) {
	t.Run("merges env and file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "admins.yaml")
		require.NoError(t, os.WriteFile(path, []byte("admins:\n  - Ops@HerayOrg.com\n  - founder@herayorg.com\n  - \"\"\n"), 0o600))

		cfg := &Config{
			AdminEmails:        []string{" FOUNDER@herayorg.com ", ""},
			AdminAllowListFile: path,
		}
		emails, err := cfg.LoadAdminEmails()
		require.NoError(t, err)
		assert.Equal(t, []string{"founder@herayorg.com", "ops@herayorg.com"}, emails)
	})

	t.Run("empty is allowed", func(t *testing.T) {
		cfg := &Config{}
		emails, err := cfg.LoadAdminEmails()
		require.NoError(t, err)
		assert.Empty(t, emails)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := &Config{AdminAllowListFile: filepath.Join(t.TempDir(), "missing.yaml")}
		_, err := cfg.LoadAdminEmails()
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "admins.yaml")
		require.NoError(t, os.WriteFile(path, []byte("admins: [unterminated"), 0o600))

		cfg := &Config{AdminAllowListFile: path}
		_, err := cfg.LoadAdminEmails()
		assert.Error(t, err)
	})
}
