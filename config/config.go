// Package config loads GoRollup configuration from an optional YAML file, .env files and the environment.
//
// Environment variables override file values; keys are upper-cased with "." replaced by "_",
// e.g. ELASTICSEARCH_INDEX or SNAPSHOT_FTP_HOST.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/chararch/gorollup/adapters/logger"
)

// snapshot store kinds
const (
	SnapshotLocal = "local"
	SnapshotFTP   = "ftp"
)

// Config is the complete GoRollup configuration
type Config struct {
	Logger        logger.Config       `mapstructure:"logger"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MySQL         MySQLConfig         `mapstructure:"mysql"`
	Snapshot      SnapshotConfig      `mapstructure:"snapshot"`
}

// ElasticsearchConfig configures the Elasticsearch metadata repository
type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	APIKey     string   `mapstructure:"api_key"`
	Index      string   `mapstructure:"index"`
	Wrapped    bool     `mapstructure:"wrapped"`
	MaxRetries int      `mapstructure:"max_retries"`
}

// MySQLConfig configures the MySQL metadata repository
type MySQLConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// SnapshotConfig configures where binary snapshots are written
type SnapshotConfig struct {
	Kind string    `mapstructure:"kind"`
	Dir  string    `mapstructure:"dir"`
	FTP  FTPConfig `mapstructure:"ftp"`
}

// FTPConfig configures the FTP snapshot store
type FTPConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
}

// SetDefaults registers default values on v. Every key gets one, so AutomaticEnv can override it on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", logger.DefaultLevel)
	v.SetDefault("logger.development", false)
	v.SetDefault("logger.output_paths", []string{"stdout"})
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.api_key", "")
	v.SetDefault("elasticsearch.index", ".rollup-metadata")
	v.SetDefault("elasticsearch.wrapped", true)
	v.SetDefault("elasticsearch.max_retries", 3)
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.table", "rollup_metadata")
	v.SetDefault("snapshot.kind", SnapshotLocal)
	v.SetDefault("snapshot.dir", "snapshots")
	v.SetDefault("snapshot.ftp.host", "")
	v.SetDefault("snapshot.ftp.port", 21)
	v.SetDefault("snapshot.ftp.user", "")
	v.SetDefault("snapshot.ftp.password", "")
	v.SetDefault("snapshot.ftp.conn_timeout", 5*time.Second)
}

// Load reads configuration from path (optional, may be empty) and the environment.
// .env is loaded first when present; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no usable default
func (c *Config) Validate() error {
	switch c.Snapshot.Kind {
	case SnapshotLocal:
		if c.Snapshot.Dir == "" {
			return errors.New("snapshot.dir is required for a local snapshot store")
		}
	case SnapshotFTP:
		if c.Snapshot.FTP.Host == "" {
			return errors.New("snapshot.ftp.host is required for an ftp snapshot store")
		}
	default:
		return fmt.Errorf("unknown snapshot.kind %q, expected %s or %s", c.Snapshot.Kind, SnapshotLocal, SnapshotFTP)
	}
	if c.Elasticsearch.Index == "" {
		return errors.New("elasticsearch.index must not be empty")
	}
	return nil
}
