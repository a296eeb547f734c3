// Package config loads the eip20-kit daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file.
const (
	EnvPrivateKey     = "EIP20KIT_PRIVATE_KEY"
	EnvIndexerAPIKey  = "EIP20KIT_INDEXER_API_KEY"
	EnvDatabasePasswd = "EIP20KIT_DB_PASSWORD"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageLevelDB  = "leveldb"
)

// Config is the daemon configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Ethereum   EthereumConfig   `yaml:"ethereum"`
	Token      TokenConfig      `yaml:"token"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Sync       SyncConfig       `yaml:"sync"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host         string        `yaml:"host" default:"0.0.0.0"`
	Port         int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"15s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" default:"60s"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// EthereumConfig contains ledger client settings
type EthereumConfig struct {
	RPCURL          string        `yaml:"rpc_url" validate:"required"`
	ChainID         int64         `yaml:"chain_id"`
	PrivateKey      string        `yaml:"private_key"`
	GasLimit        uint64        `yaml:"gas_limit" default:"100000"`
	MaxGasPrice     string        `yaml:"max_gas_price" validate:"omitempty,number"`
	PollingInterval time.Duration `yaml:"polling_interval" default:"15s" validate:"gt=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"30s"`
}

// TokenConfig identifies the tracked (account, contract) pair
type TokenConfig struct {
	Contract string `yaml:"contract" validate:"required,eth_addr"`
	Account  string `yaml:"account" validate:"required,eth_addr"`
}

// IndexerConfig contains transfer indexer settings
type IndexerConfig struct {
	URL       string        `yaml:"url" validate:"required,url"`
	APIKey    string        `yaml:"api_key"`
	RateLimit float64       `yaml:"rate_limit" default:"5" validate:"gt=0"`
	Timeout   time.Duration `yaml:"timeout" default:"20s"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver      string `yaml:"driver" default:"postgres" validate:"oneof=postgres leveldb"`
	LevelDBPath string `yaml:"leveldb_path" default:"data/eip20kit"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"eip20kit"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
	PoolSize int    `yaml:"pool_size" default:"10"`
}

// SyncConfig contains background sync settings
type SyncConfig struct {
	Interval           time.Duration `yaml:"interval" default:"30s" validate:"gt=0"`
	MaxConcurrentSyncs int           `yaml:"max_concurrent_syncs" default:"4" validate:"gt=0"`
	CallTimeout        time.Duration `yaml:"call_timeout" default:"30s"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"30s"`
}

// Load reads configuration from a YAML file, applies defaults and secret
// overrides from the environment, and validates the result.
func Load(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes raw YAML the same way Load does.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPrivateKey); v != "" {
		cfg.Ethereum.PrivateKey = v
	}
	if v := os.Getenv(EnvIndexerAPIKey); v != "" {
		cfg.Indexer.APIKey = v
	}
	if v := os.Getenv(EnvDatabasePasswd); v != "" {
		cfg.Database.Password = v
	}
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	if cfg.Storage.Driver == StoragePostgres && cfg.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Storage.Driver == StorageLevelDB && cfg.Storage.LevelDBPath == "" {
		return fmt.Errorf("storage.leveldb_path is required")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Address returns the HTTP listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
