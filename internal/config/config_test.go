package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recall-ingest/internal/recall"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Ingest.Parallel)
	require.Equal(t, time.Second, cfg.Ingest.SourcePause())
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, time.Second, cfg.Retry.BaseDelay())
	require.Equal(t, 15*time.Second, cfg.HTTP.Timeout())
	require.Equal(t, 30*time.Minute, cfg.Store.MaxConnLifetime)
	require.Equal(t, "https://api.fda.gov", cfg.Sources.FDA.BaseURL)
	require.Equal(t, 10, cfg.Sources.CPSC.MaxItems)
	require.Equal(t, "Honda", cfg.Sources.NHTSA.Manufacturer)
	require.Equal(t, ArchiveNone, cfg.Archive.Backend)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
  level: warn
store:
  url: postgres://recalls@db:5432/recalls
  credential: secret
  max_conns: 8
  max_conn_lifetime: 5m
http:
  timeout_seconds: 30
  requests_per_second: 0.5
ingest:
  parallel: false
  source_pause_ms: 250
retry:
  max_attempts: 5
  base_delay_ms: 10
sources:
  nhtsa:
    manufacturer: Toyota
archive:
  backend: local
  prefix: payloads
  local:
    base_dir: /tmp/archive
pubsub:
  project_id: proj
  topic_name: recall-inserted
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, "postgres://recalls@db:5432/recalls", cfg.Store.URL)
	require.Equal(t, int32(8), cfg.Store.MaxConns)
	require.Equal(t, 5*time.Minute, cfg.Store.MaxConnLifetime)
	require.InDelta(t, 0.5, cfg.HTTP.RequestsPerSecond, 1e-9)
	require.False(t, cfg.Ingest.Parallel)
	require.Equal(t, 250*time.Millisecond, cfg.Ingest.SourcePause())
	require.Equal(t, 5, cfg.Retry.MaxAttempts)
	require.Equal(t, "Toyota", cfg.Sources.NHTSA.Manufacturer)
	require.Equal(t, "https://api.nhtsa.gov", cfg.Sources.NHTSA.APIURL)
	require.Equal(t, ArchiveLocal, cfg.Archive.Backend)
	require.Equal(t, "/tmp/archive", cfg.Archive.Local.BaseDir)
	require.Equal(t, "recall-inserted", cfg.PubSub.TopicName)
	require.NoError(t, cfg.StoreError())
}

func TestLoadEnvAliases(t *testing.T) {
	t.Setenv("SUPABASE_URL", "postgres://alias")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-role")
	t.Setenv("FIRECRAWL_API_KEY", "fc-key")
	t.Setenv("RECALL_SERVER_PORT", "9191")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://alias", cfg.Store.URL)
	require.Equal(t, "service-role", cfg.Store.Credential)
	require.Equal(t, "fc-key", cfg.Extract.APIKey)
	require.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadPrefixedEnvWinsOverAlias(t *testing.T) {
	t.Setenv("SUPABASE_URL", "postgres://alias")
	t.Setenv("RECALL_STORE_URL", "postgres://primary")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://primary", cfg.Store.URL)
}

func TestLoadPortAlias(t *testing.T) {
	t.Setenv("PORT", "8181")
	t.Setenv("RECALL_SERVER_API_KEY", "trigger-key")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8181, cfg.Server.Port)
	require.Equal(t, "trigger-key", cfg.Server.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	err := Config{}.StoreError()
	require.ErrorIs(t, err, recall.ErrFatalConfiguration)
	require.ErrorContains(t, err, "store.url, store.credential")

	err = Config{Store: StoreConfig{URL: "postgres://x"}}.StoreError()
	require.ErrorContains(t, err, "store.credential")
	require.NotContains(t, err.Error(), "store.url")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Server:  ServerConfig{Port: 8080},
			HTTP:    HTTPConfig{TimeoutSeconds: 15},
			Retry:   RetryConfig{MaxAttempts: 3},
			Sources: SourcesConfig{FDA: FDAConfig{Limit: 20}, CPSC: CPSCConfig{MaxItems: 10}},
			Archive: ArchiveConfig{Backend: ArchiveNone},
		}
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"port":          func(c *Config) { c.Server.Port = 0 },
		"timeout":       func(c *Config) { c.HTTP.TimeoutSeconds = 0 },
		"rps":           func(c *Config) { c.HTTP.RequestsPerSecond = -1 },
		"attempts":      func(c *Config) { c.Retry.MaxAttempts = 0 },
		"fda limit":     func(c *Config) { c.Sources.FDA.Limit = 0 },
		"cpsc items":    func(c *Config) { c.Sources.CPSC.MaxItems = 0 },
		"archive kind":  func(c *Config) { c.Archive.Backend = "s3" },
		"local dir":     func(c *Config) { c.Archive.Backend = ArchiveLocal },
		"gcs bucket":    func(c *Config) { c.Archive.Backend = ArchiveGCS },
		"pubsub":        func(c *Config) { c.PubSub.TopicName = "t" },
		"negative wait": func(c *Config) { c.Ingest.SourcePauseMs = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
