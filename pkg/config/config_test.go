package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
ethereum:
  rpc_url: http://localhost:8545
token:
  contract: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
  account: "0x1111111111111111111111111111111111111111"
indexer:
  url: https://api.etherscan.io/api
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, uint64(100000), cfg.Ethereum.GasLimit)
	assert.Equal(t, 15*time.Second, cfg.Ethereum.PollingInterval)
	assert.Equal(t, 5.0, cfg.Indexer.RateLimit)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 4, cfg.Sync.MaxConcurrentSyncs)
	assert.True(t, cfg.Monitoring.Enabled)
	assert.Equal(t, "postgres://postgres:@localhost:5432/eip20kit?sslmode=disable", cfg.Database.GetConnectionString())
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
storage:
  driver: leveldb
  leveldb_path: /var/lib/eip20kit
sync:
  interval: 1m
  max_concurrent_syncs: 2
`))
	require.NoError(t, err)

	assert.Equal(t, StorageLevelDB, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/eip20kit", cfg.Storage.LevelDBPath)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 2, cfg.Sync.MaxConcurrentSyncs)
}

func TestParse_EnvSecrets(t *testing.T) {
	t.Setenv(EnvPrivateKey, "0xabc")
	t.Setenv(EnvIndexerAPIKey, "key")
	t.Setenv(EnvDatabasePasswd, "pw")

	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, "0xabc", cfg.Ethereum.PrivateKey)
	assert.Equal(t, "key", cfg.Indexer.APIKey)
	assert.Equal(t, "pw", cfg.Database.Password)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing rpc":    `token: {contract: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", account: "0x1111111111111111111111111111111111111111"}` + "\nindexer: {url: https://api.etherscan.io/api}\n",
		"bad account":    strings.Replace(minimal, "0x1111111111111111111111111111111111111111", "nope", 1),
		"bad driver":     minimal + "storage:\n  driver: sqlite\n",
		"bad log level":  minimal + "logging:\n  level: loud\n",
		"bad gas price":  strings.Replace(minimal, "rpc_url: http://localhost:8545", "rpc_url: http://localhost:8545\n  max_gas_price: lots", 1),
		"not yaml":       "{{{",
		"no leveldb dir": minimal + "storage:\n  driver: leveldb\n  leveldb_path: \"\"\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.Ethereum.RPCURL)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(LoggingConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
