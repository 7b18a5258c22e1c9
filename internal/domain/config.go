package domain

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete Heron configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier"`

	// Component configurations
	Store    StoreConfig    `json:"store"`
	Client   ClientConfig   `json:"client"`
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`
	Notify   NotifyConfig   `json:"notify"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ClientConfig tunes the generic collection client.
type ClientConfig struct {
	// Session identity
	WorkspaceURL string `json:"workspaceUrl"`
	RootURL      string `json:"rootUrl"`
	UserEmail    string `json:"userEmail"`
	UserName     string `json:"userName"`

	// Retry policy
	MaxAttempts int           `json:"maxAttempts"`
	BaseDelay   time.Duration `json:"baseDelay"`

	// RetryTransientOnly stops retrying on 4xx responses other than 408/429.
	RetryTransientOnly bool `json:"retryTransientOnly"`

	// BatchSize bounds concurrent creates in SaveBatch.
	BatchSize int `json:"batchSize"`

	// SharedCollections override the default root-hosted collections.
	SharedCollections []CollectionRef `json:"sharedCollections"`
}

// NotifyConfig controls the email trigger worker.
type NotifyConfig struct {
	Enabled    bool          `json:"enabled"`
	Collection CollectionRef `json:"collection"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs an embedded SQLite list store with in-process cache and bus.
	TierCommunity Tier = "community"

	// TierPro talks to a remote list API with Redis and NATS.
	TierPro Tier = "pro"
)

// DefaultConfig returns the embedded Community configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "./heron.db",
		},
		Client: ClientConfig{
			WorkspaceURL: "http://localhost/sites/workspace",
			RootURL:      "http://localhost",
			UserEmail:    "admin@localhost",
			MaxAttempts:  3,
			BaseDelay:    500 * time.Millisecond,
			BatchSize:    100,
		},
		Cache: CacheConfig{
			Type:          "memory",
			LocalMaxSize:  1000,
			CacheDuration: 5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Notify: NotifyConfig{
			Enabled:    true,
			Collection: CollectionEmailTriggers,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "heron",
		},
	}
}

// ProConfig returns a configuration for a remote list API with Redis and NATS.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Store = StoreConfig{
		Driver:      "rest",
		HTTPTimeout: 30 * time.Second,
	}
	cfg.Client.RetryTransientOnly = true
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		CacheDuration:  5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig picks the tier from HERON_TIER and applies env overrides.
func LoadConfig() *Config {
	cfg := DefaultConfig()
	if os.Getenv("HERON_TIER") == string(TierPro) {
		cfg = ProConfig()
	}
	ApplyEnv(cfg)
	return cfg
}

// ApplyEnv overrides cfg from HERON_* environment variables.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Client.WorkspaceURL, "HERON_WORKSPACE_URL")
	setString(&cfg.Client.RootURL, "HERON_ROOT_URL")
	setString(&cfg.Client.UserEmail, "HERON_USER_EMAIL")
	setString(&cfg.Client.UserName, "HERON_USER_NAME")
	setInt(&cfg.Client.MaxAttempts, "HERON_RETRY_ATTEMPTS")
	setDuration(&cfg.Client.BaseDelay, "HERON_RETRY_DELAY")
	setInt(&cfg.Client.BatchSize, "HERON_BATCH_SIZE")
	if v := os.Getenv("HERON_SHARED_COLLECTIONS"); v != "" {
		cfg.Client.SharedCollections = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Client.SharedCollections = append(cfg.Client.SharedCollections, CollectionRef(name))
			}
		}
	}

	setString(&cfg.Store.Driver, "HERON_STORE_DRIVER")
	setString(&cfg.Store.SQLitePath, "HERON_SQLITE_PATH")
	setString(&cfg.Store.PostgresHost, "HERON_POSTGRES_HOST")
	setInt(&cfg.Store.PostgresPort, "HERON_POSTGRES_PORT")
	setString(&cfg.Store.PostgresUser, "HERON_POSTGRES_USER")
	setString(&cfg.Store.PostgresPassword, "HERON_POSTGRES_PASSWORD")
	setString(&cfg.Store.PostgresDB, "HERON_POSTGRES_DB")
	setString(&cfg.Store.PostgresSSLMode, "HERON_POSTGRES_SSLMODE")
	setString(&cfg.Store.Token, "HERON_STORE_TOKEN")
	setDuration(&cfg.Store.HTTPTimeout, "HERON_STORE_TIMEOUT")

	setString(&cfg.Cache.Type, "HERON_CACHE_TYPE")
	setDuration(&cfg.Cache.CacheDuration, "HERON_CACHE_TTL")
	setString(&cfg.Cache.RedisAddr, "HERON_REDIS_ADDR")
	setString(&cfg.Cache.RedisPassword, "HERON_REDIS_PASSWORD")

	setString(&cfg.EventBus.Type, "HERON_BUS_TYPE")
	setString(&cfg.EventBus.NATSUrl, "HERON_NATS_URL")
	setString(&cfg.EventBus.NATSToken, "HERON_NATS_TOKEN")

	if v := os.Getenv("HERON_NOTIFY"); v != "" {
		cfg.Notify.Enabled = v == "true"
	}

	setString(&cfg.Server.Host, "HERON_HOST")
	setInt(&cfg.Server.Port, "HERON_PORT")

	if os.Getenv("HERON_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		*dst = v
	}
}
