// Package config provides the tenantsync service configuration.
//
// Configuration is resolved in three layers, later layers winning:
//
//   - built-in defaults (see setDefaults)
//   - an optional YAML file passed to Load
//   - environment variables prefixed with TENANTSYNC_, where a dot in the
//     key becomes an underscore (kafka.brokers -> TENANTSYNC_KAFKA_BROKERS)
//
// KAFKA_BROKERS is honoured as a fallback for the broker list so existing
// deployments keep working.
//
// Example usage:
//
//	cfg, err := config.Load("tenantsync.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Kafka.Topics.Sync)
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

// EnvPrefix is the prefix shared by every environment override.
const EnvPrefix = "TENANTSYNC"

// Supported collaborator drivers.
const (
	SecretsDriverVault  = "vault"
	SecretsDriverFile   = "file"
	SecretsDriverMemory = "memory"

	DatabaseDriverPostgres = "postgres"
	DatabaseDriverMongo    = "mongo"
	DatabaseDriverMemory   = "memory"
)

// Config is the root service configuration.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service" yaml:"service"`
	Kafka    KafkaConfig    `mapstructure:"kafka" yaml:"kafka"`
	Secrets  SecretsConfig  `mapstructure:"secrets" yaml:"secrets"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Graph    GraphConfig    `mapstructure:"graph" yaml:"graph"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

// ServiceConfig holds process level settings.
type ServiceConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	HTTPAddr string `mapstructure:"http_addr" yaml:"http_addr"`
	// ShutdownGrace bounds how long running sync tasks get to observe cancellation.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
	// ResumeOnStart re-attaches sync work for active orgs after messaging is up.
	ResumeOnStart bool `mapstructure:"resume_on_start" yaml:"resume_on_start"`
	// ResumeConcurrency limits concurrently resumed orgs (0 = unlimited).
	ResumeConcurrency int `mapstructure:"resume_concurrency" yaml:"resume_concurrency"`
	// SyncConcurrency limits per-user fan-out of long-lived sync services.
	SyncConcurrency int `mapstructure:"sync_concurrency" yaml:"sync_concurrency"`
}

// KafkaConfig contains message bus settings.
type KafkaConfig struct {
	Brokers          []string       `mapstructure:"brokers" yaml:"brokers"`
	Version          string         `mapstructure:"version" yaml:"version"`
	ProducerClientID string         `mapstructure:"producer_client_id" yaml:"producer_client_id"`
	ProducerAcks     string         `mapstructure:"producer_acks" yaml:"producer_acks"` // all, 1, 0
	ProducerRetries  int            `mapstructure:"producer_retries" yaml:"producer_retries"`
	Compression      string         `mapstructure:"compression" yaml:"compression"` // none, gzip, snappy, lz4, zstd
	AutoOffsetReset  string         `mapstructure:"auto_offset_reset" yaml:"auto_offset_reset"`
	Topics           TopicsConfig   `mapstructure:"topics" yaml:"topics"`
	Consumers        ConsumerGroups `mapstructure:"consumers" yaml:"consumers"`
	SASL             SASLConfig     `mapstructure:"sasl" yaml:"sasl"`
	TLS              TLSConfig      `mapstructure:"tls" yaml:"tls"`
}

// TopicsConfig names the topics the service reads and writes.
type TopicsConfig struct {
	Entity string `mapstructure:"entity" yaml:"entity"`
	Sync   string `mapstructure:"sync" yaml:"sync"`
	Record string `mapstructure:"record" yaml:"record"`
}

// ConsumerGroups holds group and client ids for each named consumer.
type ConsumerGroups struct {
	EntityGroup    string `mapstructure:"entity_group" yaml:"entity_group"`
	EntityClientID string `mapstructure:"entity_client_id" yaml:"entity_client_id"`
	SyncGroup      string `mapstructure:"sync_group" yaml:"sync_group"`
	SyncClientID   string `mapstructure:"sync_client_id" yaml:"sync_client_id"`
}

// SASLConfig contains SASL authentication settings.
type SASLConfig struct {
	Mechanism string `mapstructure:"mechanism" yaml:"mechanism"` // PLAIN
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"password"`
}

// TLSConfig toggles TLS towards the brokers.
type TLSConfig struct {
	Enabled            bool `mapstructure:"enabled" yaml:"enabled"`
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// SecretsConfig selects the configuration/secret collaborator.
type SecretsConfig struct {
	Driver string      `mapstructure:"driver" yaml:"driver"`
	Vault  VaultConfig `mapstructure:"vault" yaml:"vault"`
	File   FileConfig  `mapstructure:"file" yaml:"file"`
}

// VaultConfig points at a Vault KV v2 mount.
type VaultConfig struct {
	Address   string        `mapstructure:"address" yaml:"address"`
	Token     string        `mapstructure:"token" yaml:"token"`
	Mount     string        `mapstructure:"mount" yaml:"mount"`
	Namespace string        `mapstructure:"namespace" yaml:"namespace"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// FileConfig points at a YAML document of config nodes.
type FileConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DatabaseConfig selects the persistence collaborator.
type DatabaseConfig struct {
	Driver        string `mapstructure:"driver" yaml:"driver"`
	URL           string `mapstructure:"url" yaml:"url"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
	MaxConns      int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// GraphConfig configures the Microsoft Graph backed connectors.
type GraphConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// AuthorityURL is joined with "/{tenantId}/oauth2/v2.0/token".
	AuthorityURL string `mapstructure:"authority_url" yaml:"authority_url"`
	// PollInterval between incremental delta syncs; 0 runs a single full sync.
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	EnableHTTP2    bool          `mapstructure:"enable_http2" yaml:"enable_http2"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Encoding    string `mapstructure:"encoding" yaml:"encoding"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("kafka.brokers", EnvPrefix+"_KAFKA_BROKERS", "KAFKA_BROKERS"); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to bind broker env")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config")
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	cfg.normalize()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "tenantsync")
	v.SetDefault("service.http_addr", ":8080")
	v.SetDefault("service.shutdown_grace", 30*time.Second)
	v.SetDefault("service.resume_on_start", true)
	v.SetDefault("service.resume_concurrency", 8)
	v.SetDefault("service.sync_concurrency", 4)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.version", "")
	v.SetDefault("kafka.producer_client_id", "messaging_producer_client")
	v.SetDefault("kafka.producer_acks", "all")
	v.SetDefault("kafka.producer_retries", 3)
	v.SetDefault("kafka.compression", "none")
	v.SetDefault("kafka.auto_offset_reset", "earliest")
	v.SetDefault("kafka.topics.entity", "entity-events")
	v.SetDefault("kafka.topics.sync", "sync-events")
	v.SetDefault("kafka.topics.record", "record-events")
	v.SetDefault("kafka.consumers.entity_group", "entity_consumer_group")
	v.SetDefault("kafka.consumers.entity_client_id", "entity_consumer_client")
	v.SetDefault("kafka.consumers.sync_group", "sync_consumer_group")
	v.SetDefault("kafka.consumers.sync_client_id", "sync_consumer_client")
	v.SetDefault("kafka.sasl.mechanism", "")
	v.SetDefault("kafka.sasl.username", "")
	v.SetDefault("kafka.sasl.password", "")
	v.SetDefault("kafka.tls.enabled", false)
	v.SetDefault("kafka.tls.insecure_skip_verify", false)

	v.SetDefault("secrets.driver", SecretsDriverVault)
	v.SetDefault("secrets.vault.address", "http://127.0.0.1:8200")
	v.SetDefault("secrets.vault.token", "")
	v.SetDefault("secrets.vault.mount", "secret")
	v.SetDefault("secrets.vault.namespace", "")
	v.SetDefault("secrets.vault.timeout", 10*time.Second)
	v.SetDefault("secrets.file.path", "")

	v.SetDefault("database.driver", DatabaseDriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.mongo_database", "tenantsync")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("graph.authority_url", "https://login.microsoftonline.com")
	v.SetDefault("graph.poll_interval", 15*time.Minute)
	v.SetDefault("graph.concurrency", 5)
	v.SetDefault("graph.request_timeout", 30*time.Second)
	v.SetDefault("graph.enable_http2", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")
	v.SetDefault("logging.development", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "tenantsync")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// normalize trims broker entries, splitting any that still carry commas.
func (c *Config) normalize() {
	brokers := make([]string, 0, len(c.Kafka.Brokers))
	for _, entry := range c.Kafka.Brokers {
		for _, b := range strings.Split(entry, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}
	c.Kafka.Brokers = brokers
	c.Secrets.Driver = strings.ToLower(strings.TrimSpace(c.Secrets.Driver))
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Graph.BaseURL = strings.TrimRight(c.Graph.BaseURL, "/")
	c.Graph.AuthorityURL = strings.TrimRight(c.Graph.AuthorityURL, "/")
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New(errors.ErrorTypeConfig, "kafka.brokers must list at least one broker")
	}
	if c.Kafka.Topics.Entity == "" || c.Kafka.Topics.Sync == "" || c.Kafka.Topics.Record == "" {
		return errors.New(errors.ErrorTypeConfig, "kafka.topics entity, sync and record are required")
	}
	if c.Service.ShutdownGrace <= 0 {
		return errors.New(errors.ErrorTypeConfig, "service.shutdown_grace must be positive").
			WithDetail("shutdown_grace", c.Service.ShutdownGrace.String())
	}
	if c.Service.ResumeConcurrency < 0 || c.Service.SyncConcurrency < 0 || c.Graph.Concurrency < 0 {
		return errors.New(errors.ErrorTypeConfig, "concurrency limits must not be negative")
	}

	switch c.Secrets.Driver {
	case SecretsDriverVault:
		if c.Secrets.Vault.Address == "" || c.Secrets.Vault.Mount == "" {
			return errors.New(errors.ErrorTypeConfig, "secrets.vault.address and secrets.vault.mount are required")
		}
	case SecretsDriverFile:
		if c.Secrets.File.Path == "" {
			return errors.New(errors.ErrorTypeConfig, "secrets.file.path is required for the file driver")
		}
	case SecretsDriverMemory:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown secrets driver %q", c.Secrets.Driver)
	}

	switch c.Database.Driver {
	case DatabaseDriverPostgres, DatabaseDriverMongo:
		if c.Database.URL == "" {
			return errors.Newf(errors.ErrorTypeConfig, "database.url is required for the %s driver", c.Database.Driver)
		}
	case DatabaseDriverMemory:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown database driver %q", c.Database.Driver)
	}

	if c.Graph.BaseURL == "" || c.Graph.AuthorityURL == "" {
		return errors.New(errors.ErrorTypeConfig, "graph.base_url and graph.authority_url are required")
	}

	if c.Tracing.Enabled && (c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1) {
		return errors.New(errors.ErrorTypeConfig, "tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}
