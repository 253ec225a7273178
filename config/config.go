package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Store backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// PlaceholderSecret is the session key shipped in sample configs. It is
// public, so a server with a password refuses to start with it.
const PlaceholderSecret = "change-me"

// Config holds all application configuration
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Roster RosterConfig `mapstructure:"roster"`
	Draw   DrawConfig   `mapstructure:"draw"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds the single operator account allowed to draw and edit
type AuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Secret   string `mapstructure:"secret"` // session cookie signing key
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RosterConfig struct {
	Path string `mapstructure:"path"` // roster loaded at startup
}

// DrawConfig bounds the group size accepted from clients
type DrawConfig struct {
	DefaultSize int  `mapstructure:"default_size"`
	MinSize     int  `mapstructure:"min_size"`
	MaxSize     int  `mapstructure:"max_size"`
	Overflow    bool `mapstructure:"overflow"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8080"})

	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.secret", "")

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "grupos_salvos.json")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("roster.path", "dados_chamada/dados_manha.csv")

	v.SetDefault("draw.default_size", 4)
	v.SetDefault("draw.min_size", 2)
	v.SetDefault("draw.max_size", 6)
	v.SetDefault("draw.overflow", false)

	v.SetDefault("log.level", "info")
}

// Load reads configuration from .env, an optional config.yaml and
// SORTEIO_* environment variables, in increasing priority.
func Load(configFile string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Error loading .env file")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix("SORTEIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Auth.Secret == "" {
		key := securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("failed to generate session secret")
		}
		cfg.Auth.Secret = string(key)
		logrus.Warn("auth.secret is not set: using a random key, sessions end when the process restarts")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logrus.SetLevel(level)

	return &cfg, nil
}

// Validate checks values that would make the server misbehave
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the file backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	if c.Draw.MinSize < 1 || c.Draw.MaxSize < c.Draw.MinSize {
		return fmt.Errorf("invalid draw size bounds [%d,%d]", c.Draw.MinSize, c.Draw.MaxSize)
	}
	if c.Draw.DefaultSize < c.Draw.MinSize || c.Draw.DefaultSize > c.Draw.MaxSize {
		return fmt.Errorf("draw.default_size %d outside [%d,%d]", c.Draw.DefaultSize, c.Draw.MinSize, c.Draw.MaxSize)
	}

	if c.Auth.Password != "" && (c.Auth.Secret == "" || c.Auth.Secret == PlaceholderSecret) {
		return errors.New("auth.secret must be set to a private value when auth.password is set")
	}
	return nil
}
