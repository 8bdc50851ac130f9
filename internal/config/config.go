package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type App struct {
	Name         string `mapstructure:"name"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
	MaxHeaderMB  int    `mapstructure:"max_header_mb"`
}

type Database struct {
	DSN string `mapstructure:"dsn"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SMTP struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	FromEmail  string `mapstructure:"from_email"`
	FromName   string `mapstructure:"from_name"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// Outbox holds the worker knobs. Intervals are milliseconds to match the
// environment surface the platform always exposed.
type Outbox struct {
	ProcessIntervalMS int `mapstructure:"process_interval_ms"`
	CleanupIntervalMS int `mapstructure:"cleanup_interval_ms"`
	BatchSize         int `mapstructure:"batch_size"`
	MaxRetries        int `mapstructure:"max_retries"`
	RetentionDays     int `mapstructure:"retention_days"`
	LockTTLSec        int `mapstructure:"lock_ttl_sec"`
	ResultTTLHours    int `mapstructure:"result_ttl_hours"`
}

type Telemetry struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type Config struct {
	App       App       `mapstructure:"app"`
	Database  Database  `mapstructure:"database"`
	Redis     Redis     `mapstructure:"redis"`
	SMTP      SMTP      `mapstructure:"smtp"`
	Outbox    Outbox    `mapstructure:"outbox"`
	Telemetry Telemetry `mapstructure:"telemetry"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("outbox.process_interval_ms", 30000)
	v.SetDefault("outbox.cleanup_interval_ms", 86400000)
	v.SetDefault("outbox.batch_size", 10)
	v.SetDefault("outbox.max_retries", 3)
	v.SetDefault("outbox.retention_days", 30)
	v.SetDefault("outbox.lock_ttl_sec", 60)
	v.SetDefault("outbox.result_ttl_hours", 24)
	v.SetDefault("smtp.timeout_sec", 30)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
