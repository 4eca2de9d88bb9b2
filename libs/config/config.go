package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type FeeConfig struct {
	Account string `mapstructure:"account"`
	Percent uint64 `mapstructure:"percent"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	EventsTopic string   `mapstructure:"events_topic"`
	DLQTopic    string   `mapstructure:"dlq_topic"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type AppConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Env         string        `mapstructure:"env"`
	LogLevel    string        `mapstructure:"log_level"`
	Fee         FeeConfig     `mapstructure:"fee"`
	Kafka       KafkaConfig   `mapstructure:"kafka"`
	Journal     JournalConfig `mapstructure:"journal"`
}

// Load reads the yaml config at path, falling back to defaults and DEX_*
// environment overrides. The fee policy read here is fixed for the lifetime
// of the engine built from it.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("DEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = "config.yaml"
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Fee.Percent > 100 {
		return nil, fmt.Errorf("fee.percent must be between 0 and 100, got %d", cfg.Fee.Percent)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "dex-core")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("fee.percent", 10)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "exchange.events")
	v.SetDefault("kafka.dlq_topic", "exchange.events.dlq")
	v.SetDefault("journal.enabled", false)
}
