// Package config loads the application configuration from a config file,
// a .env file and MATRIX_-prefixed environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/logger"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type Config struct {
	Matrix  MatrixConfig  `mapstructure:"matrix"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

type MatrixConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RateLimit float64       `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int           `mapstructure:"burst" validate:"gte=1"`
	// CodecKey overrides the envelope key, as 64 hex digits.
	CodecKey string `mapstructure:"codec_key" validate:"omitempty,hexadecimal,len=64"`
	Timezone string `mapstructure:"timezone" validate:"omitempty,timezone"`
}

type StoreConfig struct {
	Kind  string      `mapstructure:"kind" validate:"oneof=memory file redis"`
	Path  string      `mapstructure:"path" validate:"required_if=Kind file"`
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0,lte=15"`
	Prefix   string `mapstructure:"prefix"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty     bool   `mapstructure:"pretty"`
	UseLogFile bool   `mapstructure:"use_log_file"`
	LogPath    string `mapstructure:"log_path" validate:"required_if=UseLogFile true"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address" validate:"required"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// Dir is the per-user directory holding the session file, logs and an
// optional config file.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".matrixcollect"
	}
	return filepath.Join(home, ".matrixcollect")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("matrix.base_url", "https://matrix.sysu.edu.cn")
	v.SetDefault("matrix.timeout", "30s")
	v.SetDefault("matrix.rate_limit", 5)
	v.SetDefault("matrix.burst", 5)
	v.SetDefault("matrix.codec_key", "")
	v.SetDefault("matrix.timezone", "")

	v.SetDefault("store.kind", StoreFile)
	v.SetDefault("store.path", filepath.Join(Dir(), "session.json"))
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "matrix")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", true)
	v.SetDefault("logging.use_log_file", false)
	v.SetDefault("logging.log_path", filepath.Join(Dir(), "logs"))

	v.SetDefault("server.address", "127.0.0.1:8765")
	v.SetDefault("server.allowed_origins", []string{"vscode-webview://*", "http://localhost:*", "http://127.0.0.1:*"})
	v.SetDefault("server.shutdown_timeout", "10s")
}

// Load reads the configuration. With an empty path a file named config is
// looked up in the working directory, ./res and Dir(); a missing file is
// not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MATRIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./res")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.NewError("config.Load", "failed to read config file", err)
		}
		logger.Debugf("Using default configuration settings. These can be edited in %s", filepath.Join(Dir(), "config.yaml"))
	} else {
		logger.Debugf("Using configuration file %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewError("config.Load", "failed to unmarshal config", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks cfg against its field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return errors.NewError("config.Validate", "invalid configuration", err)
	}
	return nil
}

// Location returns the configured time zone, or the local zone when none is
// set.
func (m MatrixConfig) Location() (*time.Location, error) {
	if m.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return nil, errors.NewError("config", "unknown time zone "+m.Timezone, err)
	}
	return loc, nil
}
