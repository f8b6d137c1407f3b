package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenantsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
service:
  shutdown_grace: 5s
  resume_concurrency: 2
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topics:
    sync: tenant-sync
secrets:
  driver: file
  file:
    path: /etc/tenantsync/connectors.yaml
database:
  driver: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Service.ShutdownGrace)
	assert.Equal(t, 2, cfg.Service.ResumeConcurrency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "tenant-sync", cfg.Kafka.Topics.Sync)
	assert.Equal(t, "entity-events", cfg.Kafka.Topics.Entity)
	assert.Equal(t, SecretsDriverFile, cfg.Secrets.Driver)
	assert.Equal(t, DatabaseDriverMemory, cfg.Database.Driver)
	assert.Equal(t, "https://graph.microsoft.com/v1.0", cfg.Graph.BaseURL)
	assert.Equal(t, 15*time.Minute, cfg.Graph.PollInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
secrets:
  driver: memory
database:
  driver: memory
`)
	t.Setenv("TENANTSYNC_SERVICE_HTTP_ADDR", ":9999")
	t.Setenv("TENANTSYNC_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Service.HTTPAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadLegacyBrokerEnv(t *testing.T) {
	path := writeConfig(t, `
secrets:
  driver: memory
database:
  driver: memory
`)
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Database.Driver = DatabaseDriverMemory
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults with memory db", mutate: func(*Config) {}},
		{name: "no brokers", mutate: func(c *Config) { c.Kafka.Brokers = nil }, wantErr: true},
		{name: "zero grace", mutate: func(c *Config) { c.Service.ShutdownGrace = 0 }, wantErr: true},
		{name: "unknown secrets driver", mutate: func(c *Config) { c.Secrets.Driver = "etcd" }, wantErr: true},
		{name: "file driver without path", mutate: func(c *Config) { c.Secrets.Driver = SecretsDriverFile }, wantErr: true},
		{name: "postgres without url", mutate: func(c *Config) { c.Database.Driver = DatabaseDriverPostgres }, wantErr: true},
		{name: "mongo with url", mutate: func(c *Config) {
			c.Database.Driver = DatabaseDriverMongo
			c.Database.URL = "mongodb://localhost:27017"
		}},
		{name: "no graph endpoint", mutate: func(c *Config) { c.Graph.BaseURL = "" }, wantErr: true},
		{name: "negative graph concurrency", mutate: func(c *Config) { c.Graph.Concurrency = -1 }, wantErr: true},
		{name: "bad sample ratio", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRatio = 2
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
		})
	}
}
