package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Binance   BinanceConfig   `mapstructure:"binance"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
}

type BinanceConfig struct {
	WSBaseURL        string        `mapstructure:"ws_base_url"`
	Symbols          []string      `mapstructure:"symbols"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
}

type PipelineConfig struct {
	BufferCapacity int           `mapstructure:"buffer_capacity"`
	QueueSize      int           `mapstructure:"queue_size"`
	BatchSize      int           `mapstructure:"batch_size"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
}

type AnalyticsConfig struct {
	Window           int  `mapstructure:"window"`
	IncludeIntercept bool `mapstructure:"include_intercept"`
}

type AlertsConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables; a
// missing config file falls back to the defaults.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	// TODO: env path
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	setDefaults(v)

	// Support environment variables with dot notation (e.g., BINANCE_WS_BASE_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			log.Fatalf("failed to read config: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.ws_base_url", "wss://fstream.binance.com/ws")
	v.SetDefault("binance.symbols", []string{"btcusdt", "ethusdt"})
	v.SetDefault("binance.connect_timeout", "10s")
	v.SetDefault("binance.reconnect_backoff", "5s")

	v.SetDefault("pipeline.buffer_capacity", 3600)
	v.SetDefault("pipeline.queue_size", 5000)
	v.SetDefault("pipeline.batch_size", 200)
	v.SetDefault("pipeline.flush_interval", "2s")

	v.SetDefault("analytics.window", 300)
	v.SetDefault("analytics.include_intercept", true)

	v.SetDefault("alerts.history_limit", 500)

	v.SetDefault("metrics.addr", ":9102")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.dbname", "pairstream")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
}
