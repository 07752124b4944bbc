package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Valkey     ValkeyConfig     `mapstructure:"valkey"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Input      InputConfig      `mapstructure:"input"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

// ClassifierConfig points at a GeoNames places extract (e.g. cities1000.txt).
// An empty dataset path disables the offline fallback.
type ClassifierConfig struct {
	Dataset     string  `mapstructure:"dataset"`
	MaxRadiusKm float64 `mapstructure:"max_radius_km"`
}

type ResolverConfig struct {
	CacheSize        int `mapstructure:"cache_size"` // 0 = unbounded memoization
	SharedTTLSeconds int `mapstructure:"shared_ttl_seconds"`
}

type PipelineConfig struct {
	Workers             int `mapstructure:"workers"` // 0 = one per CPU minus one
	BatchSize           int `mapstructure:"batch_size"`
	SaveEvery           int `mapstructure:"save_every"`
	SaveIntervalSeconds int `mapstructure:"save_interval_seconds"`
}

type CheckpointConfig struct {
	Path string `mapstructure:"path"`
}

type InputConfig struct {
	Path string `mapstructure:"path"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "reverse_geo")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 5)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("classifier.dataset", "")
	v.SetDefault("classifier.max_radius_km", 50.0)
	v.SetDefault("resolver.cache_size", 0)
	v.SetDefault("resolver.shared_ttl_seconds", 86400)
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.save_every", 100)
	v.SetDefault("pipeline.save_interval_seconds", 60)
	v.SetDefault("checkpoint.path", "resolved.json")
	v.SetDefault("input.path", "")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: GEORESOLVER_DATABASE_HOST → database.host
	v.SetEnvPrefix("GEORESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
// NATS and Valkey are optional integrations: an empty url/addr disables them.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "database.max_conns must be positive")
	}
	if c.Classifier.MaxRadiusKm <= 0 {
		errs = append(errs, "classifier.max_radius_km must be positive")
	}
	if c.Resolver.CacheSize < 0 {
		errs = append(errs, "resolver.cache_size must not be negative")
	}
	if c.Resolver.SharedTTLSeconds <= 0 {
		errs = append(errs, "resolver.shared_ttl_seconds must be positive")
	}
	if c.Pipeline.Workers < 0 {
		errs = append(errs, "pipeline.workers must not be negative")
	}
	if c.Pipeline.BatchSize <= 0 {
		errs = append(errs, "pipeline.batch_size must be positive")
	}
	if c.Pipeline.SaveEvery <= 0 {
		errs = append(errs, "pipeline.save_every must be positive")
	}
	if c.Pipeline.SaveIntervalSeconds <= 0 {
		errs = append(errs, "pipeline.save_interval_seconds must be positive")
	}
	if c.Checkpoint.Path == "" {
		errs = append(errs, "checkpoint.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
