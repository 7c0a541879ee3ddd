// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/recall-ingest/internal/recall"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Store   StoreConfig   `mapstructure:"store"`
	Extract ExtractConfig `mapstructure:"extract"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Sources SourcesConfig `mapstructure:"sources"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// APIKey, when set, is required on the ingestion trigger routes.
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig locates the recall database.
type StoreConfig struct {
	URL             string        `mapstructure:"url"`
	Credential      string        `mapstructure:"credential"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// ExtractConfig configures the page extraction API used by the last NHTSA tier.
type ExtractConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// HTTPConfig configures the upstream HTTP client.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// IngestConfig governs how a run schedules its sources.
type IngestConfig struct {
	Parallel          bool `mapstructure:"parallel"`
	SourcePauseMs     int  `mapstructure:"source_pause_ms"`
	RunTimeoutSeconds int  `mapstructure:"run_timeout_seconds"`
}

// RetryConfig tunes the exponential backoff around the extraction API.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
}

// SourcesConfig holds the upstream endpoints.
type SourcesConfig struct {
	FDA   FDAConfig   `mapstructure:"fda"`
	CPSC  CPSCConfig  `mapstructure:"cpsc"`
	NHTSA NHTSAConfig `mapstructure:"nhtsa"`
}

// FDAConfig points at openFDA.
type FDAConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Limit   int    `mapstructure:"limit"`
}

// CPSCConfig points at the CPSC feed.
type CPSCConfig struct {
	FeedURL  string `mapstructure:"feed_url"`
	MaxItems int    `mapstructure:"max_items"`
}

// NHTSAConfig points at the NHTSA endpoints.
type NHTSAConfig struct {
	APIURL       string `mapstructure:"api_url"`
	VPICURL      string `mapstructure:"vpic_url"`
	Manufacturer string `mapstructure:"manufacturer"`
	PageURL      string `mapstructure:"page_url"`
}

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// ArchiveConfig selects where raw upstream payloads are kept.
type ArchiveConfig struct {
	Backend string           `mapstructure:"backend"`
	Bucket  string           `mapstructure:"bucket"`
	Prefix  string           `mapstructure:"prefix"`
	Local   LocalArchiveConf `mapstructure:"local"`
}

// LocalArchiveConf configures the filesystem backend.
type LocalArchiveConf struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for recall-inserted notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Environment variable aliases read after the RECALL_ names, for hosted deployments.
var envAliases = map[string][]string{
	"server.port":      {"RECALL_SERVER_PORT", "PORT"},
	"store.url":        {"RECALL_STORE_URL", "SUPABASE_URL"},
	"store.credential": {"RECALL_STORE_CREDENTIAL", "SUPABASE_SERVICE_ROLE_KEY"},
	"extract.api_key":  {"RECALL_EXTRACT_API_KEY", "FIRECRAWL_API_KEY"},
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.credential", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime", "30m")
	v.SetDefault("store.ensure_schema", false)
	v.SetDefault("extract.api_key", "")
	v.SetDefault("extract.base_url", "https://api.firecrawl.dev")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "recall-ingest-bot/0.1")
	v.SetDefault("http.requests_per_second", 2.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("ingest.parallel", true)
	v.SetDefault("ingest.source_pause_ms", 1000)
	v.SetDefault("ingest.run_timeout_seconds", 120)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("sources.fda.base_url", "https://api.fda.gov")
	v.SetDefault("sources.fda.limit", 20)
	v.SetDefault("sources.cpsc.feed_url", "https://www.cpsc.gov/Newsroom/rss")
	v.SetDefault("sources.cpsc.max_items", 10)
	v.SetDefault("sources.nhtsa.api_url", "https://api.nhtsa.gov")
	v.SetDefault("sources.nhtsa.vpic_url", "https://vpic.nhtsa.dot.gov")
	v.SetDefault("sources.nhtsa.manufacturer", "Honda")
	v.SetDefault("sources.nhtsa.page_url", "https://www.nhtsa.gov/recalls")
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("archive.local.base_dir", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits. Missing store
// settings are reported by StoreError instead, so the server can still start
// and answer runs with a structured failure.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.BaseDelayMs < 0 {
		return fmt.Errorf("retry.base_delay_ms must be >= 0")
	}
	if c.Ingest.SourcePauseMs < 0 || c.Ingest.RunTimeoutSeconds < 0 {
		return fmt.Errorf("ingest durations must be >= 0")
	}
	if c.Sources.FDA.Limit <= 0 {
		return fmt.Errorf("sources.fda.limit must be > 0")
	}
	if c.Sources.CPSC.MaxItems <= 0 {
		return fmt.Errorf("sources.cpsc.max_items must be > 0")
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir is required for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, local, gcs; got %q", c.Archive.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
	}
	return nil
}

// StoreError reports missing store settings as a fatal configuration error.
func (c Config) StoreError() error {
	var missing []string
	if strings.TrimSpace(c.Store.URL) == "" {
		missing = append(missing, "store.url")
	}
	if strings.TrimSpace(c.Store.Credential) == "" {
		missing = append(missing, "store.credential")
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", recall.ErrFatalConfiguration, strings.Join(missing, ", "))
}

// Timeout is the per-request upstream timeout.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// BaseDelay is the backoff unit.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// SourcePause is the wait between sources in sequential mode.
func (i IngestConfig) SourcePause() time.Duration {
	return time.Duration(i.SourcePauseMs) * time.Millisecond
}

// RunTimeout bounds a whole ingestion run. Zero means no limit.
func (i IngestConfig) RunTimeout() time.Duration {
	return time.Duration(i.RunTimeoutSeconds) * time.Second
}
