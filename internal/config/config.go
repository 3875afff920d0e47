package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	TokenURL      string `mapstructure:"token_url"`
	RealtimeURL   string `mapstructure:"realtime_url"`
	RealtimeWSURL string `mapstructure:"realtime_ws_url"`
	Model         string `mapstructure:"model"`
	Voice         string `mapstructure:"voice"`
	Instructions  string `mapstructure:"instructions"`
	SampleRate    int    `mapstructure:"sample_rate"`

	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	OpenTimeout   time.Duration `mapstructure:"open_timeout"`
	ToolTimeout   time.Duration `mapstructure:"tool_timeout"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("token_url", "http://localhost:8000/api/token")
	v.SetDefault("realtime_url", "https://api.openai.com/v1/realtime")
	v.SetDefault("realtime_ws_url", "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-10-01")
	v.SetDefault("model", "gpt-4o-realtime-preview-2024-10-01")
	v.SetDefault("voice", "alloy")
	v.SetDefault("instructions", "You are a helpful bartender assistant. Help customers with drink orders and ID verification.")
	v.SetDefault("sample_rate", 8000)
	v.SetDefault("http_timeout", "15s")
	v.SetDefault("open_timeout", "20s")
	v.SetDefault("tool_timeout", "30s")
	v.SetDefault("stats_interval", "2s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Model: %s | Voice: %s\n", cfg.Mode, cfg.Port, cfg.Model, cfg.Voice)
	return &cfg, nil
}
