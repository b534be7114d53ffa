package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
	ReapOnStart   bool   `mapstructure:"reap_on_start"`
}

type RoomConfig struct {
	CodeLength   int `mapstructure:"code_length"`
	CodeAttempts int `mapstructure:"code_attempts"`
}

type PollConfig struct {
	RequireHost bool `mapstructure:"require_host"`
}

type RateLimitConfig struct {
	Actions  int           `mapstructure:"actions"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode       string          `mapstructure:"mode"`
	LogLevel   string          `mapstructure:"log_level"`
	Port       int             `mapstructure:"port"`
	StaticPath string          `mapstructure:"static_path"`
	ReadLimit  int64           `mapstructure:"read_limit"`
	PingPeriod time.Duration   `mapstructure:"ping_period"`
	SendBuffer int             `mapstructure:"send_buffer"`
	Secret     string          `mapstructure:"secret"`
	Store      StoreConfig     `mapstructure:"store"`
	Room       RoomConfig      `mapstructure:"room"`
	Poll       PollConfig      `mapstructure:"poll"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sqlite_path", "livepoll.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "livepoll")
	v.SetDefault("store.reap_on_start", true)

	v.SetDefault("room.code_length", 6)
	v.SetDefault("room.code_attempts", 5)

	v.SetDefault("poll.require_host", false)

	v.SetDefault("rate_limit.actions", 30)
	v.SetDefault("rate_limit.interval", "10s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) and applies
// LIVEPOLL_* environment overrides, e.g. LIVEPOLL_STORE_DRIVER=sqlite.
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

	v.SetEnvPrefix("LIVEPOLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).
		Bool("require_host", cfg.Poll.RequireHost).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Room.CodeLength < 4 {
		return fmt.Errorf("config: room.code_length must be at least 4, got %d", c.Room.CodeLength)
	}
	if c.Room.CodeAttempts < 1 {
		return fmt.Errorf("config: room.code_attempts must be positive, got %d", c.Room.CodeAttempts)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("config: ping_period must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("config: send_buffer must be positive")
	}
	return nil
}
