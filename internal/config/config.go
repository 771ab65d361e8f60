package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	FrontendURL string        `mapstructure:"frontend_url"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`

	MongoURI  string `mapstructure:"mongo_uri"`
	MongoDB   string `mapstructure:"mongo_db"`
	RedisAddr string `mapstructure:"redis_addr"`

	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`

	SFUServerURL    string `mapstructure:"sfu_server_url"`
	SFUServerSecret string `mapstructure:"sfu_server_secret"`

	CacheReadTimeout time.Duration `mapstructure:"cache_read_timeout"`
	AckTimeout       time.Duration `mapstructure:"ack_timeout"`

	ChatRateLimit  int           `mapstructure:"chat_rate_limit"`
	ChatRateWindow time.Duration `mapstructure:"chat_rate_window"`

	GuestTTL         time.Duration `mapstructure:"guest_ttl"`
	GuestSweepPeriod time.Duration `mapstructure:"guest_sweep_period"`
	GuestGracePeriod time.Duration `mapstructure:"guest_grace_period"`
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
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db", "watchroom")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("token_ttl", "168h")
	v.SetDefault("cache_read_timeout", "4s")
	v.SetDefault("ack_timeout", "4s")
	v.SetDefault("chat_rate_limit", 20)
	v.SetDefault("chat_rate_window", "10s")
	v.SetDefault("guest_ttl", "24h")
	v.SetDefault("guest_sweep_period", "1h")
	v.SetDefault("guest_grace_period", "10m")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
