package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppCfg struct {
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`
}

type MongoCfg struct {
	URI string `mapstructure:"uri"`
	DB  string `mapstructure:"db"`
}

type RedisCfg struct {
	Addr              string `mapstructure:"addr"`
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	ProfileTTLSeconds int    `mapstructure:"profile_ttl_seconds"`
}

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTCfg struct {
	Secret string `mapstructure:"secret"`
}

type SyncCfg struct {
	TypingTimeoutMS int `mapstructure:"typing_timeout_ms"`
	SearchLimit     int `mapstructure:"search_limit"`
}

type Config struct {
	App   AppCfg   `mapstructure:"app"`
	Mongo MongoCfg `mapstructure:"mongo"`
	Redis RedisCfg `mapstructure:"redis"`
	Kafka KafkaCfg `mapstructure:"kafka"`
	JWT   JWTCfg   `mapstructure:"jwt"`
	Sync  SyncCfg  `mapstructure:"sync"`

	// Derived
	TypingTimeout time.Duration
	ProfileTTL    time.Duration
}

// Load reads the optional yaml config file at path and applies APP_* env
// overrides (APP_MONGO_URI, APP_SYNC_TYPING_TIMEOUT_MS, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can bind it during Unmarshal.
	v.SetDefault("app.env", "production")
	v.SetDefault("app.port", 8084)
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.db", "chatsync")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.profile_ttl_seconds", 300)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "chat-events")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("sync.typing_timeout_ms", 2000)
	v.SetDefault("sync.search_limit", 20)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.TypingTimeout = time.Duration(cfg.Sync.TypingTimeoutMS) * time.Millisecond
	cfg.ProfileTTL = time.Duration(cfg.Redis.ProfileTTLSeconds) * time.Second
	return &cfg, nil
}

func (c *Config) Development() bool { return c.App.Env != "production" }
