// Package config loads service configuration from an optional YAML file, then applies
// environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	CacheLocal = "local"
	CacheRedis = "redis"
)

type Config struct {
	HTTP        HTTP        `yaml:"http"`
	GRPC        GRPC        `yaml:"grpc"`
	MySQL       MySQL       `yaml:"mysql"`
	Cache       Cache       `yaml:"cache"`
	Auth        Auth        `yaml:"auth"`
	Log         Log         `yaml:"log"`
	MusicBrainz MusicBrainz `yaml:"musicbrainz"`
	Throttle    Throttle    `yaml:"throttle"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	AdminUIURL      string        `yaml:"admin_ui_url"`
}

type GRPC struct {
	Addr string `yaml:"addr" validate:"required"`
}

type MySQL struct {
	DSN             string        `yaml:"dsn" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

type Cache struct {
	Type           string        `yaml:"type" validate:"oneof=local redis"`
	DefaultTTL     time.Duration `yaml:"default_ttl" validate:"gt=0"`
	MostOrderedTTL time.Duration `yaml:"most_ordered_ttl" validate:"gt=0"`
	LocalSize      int           `yaml:"local_size" validate:"gte=1"`
	Redis          Redis         `yaml:"redis"`
}

type Redis struct {
	Host     string `yaml:"host" validate:"required_if=Enabled true"`
	Port     int    `yaml:"port" validate:"required_if=Enabled true,gte=0,lte=65535"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	PoolSize int    `yaml:"pool_size" validate:"gte=1"`
	Enabled  bool   `yaml:"-"`
}

func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `yaml:"token_ttl" validate:"gt=0"`
}

type Log struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type MusicBrainz struct {
	BaseURL     string        `yaml:"base_url" validate:"required,url"`
	AuthorEmail string        `yaml:"author_email" validate:"required,email"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"gte=0"`
}

type Throttle struct {
	Limit  int           `yaml:"limit" validate:"gte=1"`
	Window time.Duration `yaml:"window" validate:"gt=0"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTP{
			Addr:            ":3000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			AdminUIURL:      "http://localhost:5173",
		},
		GRPC: GRPC{Addr: ":50051"},
		MySQL: MySQL{
			DSN:             "root:root@tcp(localhost:3306)/recordstore?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
		},
		Cache: Cache{
			Type:           CacheLocal,
			DefaultTTL:     300 * time.Second,
			MostOrderedTTL: 300 * time.Second,
			LocalSize:      10000,
			Redis:          Redis{Host: "localhost", Port: 6379, PoolSize: 100},
		},
		Auth: Auth{TokenTTL: time.Hour},
		Log:  Log{Level: "info", Format: "json"},
		MusicBrainz: MusicBrainz{
			BaseURL:     "https://musicbrainz.org",
			AuthorEmail: "default@email.com",
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
		},
		Throttle: Throttle{Limit: 20, Window: time.Minute},
	}
}

// Load reads path when it is non-empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.Cache.Redis.Enabled = cfg.Cache.Type == CacheRedis
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", key, v)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", key, v)
		}
		*dst = d
		return nil
	}

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	if port, ok := lookup("PORT"); ok && port != "" {
		cfg.HTTP.Addr = ":" + port
	}
	str("ADMIN_UI_URL", &cfg.HTTP.AdminUIURL)
	str("GRPC_ADDR", &cfg.GRPC.Addr)
	str("MYSQL_DSN", &cfg.MySQL.DSN)
	str("CACHE_TYPE", &cfg.Cache.Type)
	cfg.Cache.Type = strings.ToLower(cfg.Cache.Type)
	str("REDIS_HOST", &cfg.Cache.Redis.Host)
	str("REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("AUTHOR_EMAIL", &cfg.MusicBrainz.AuthorEmail)
	str("MUSICBRAINZ_BASE_URL", &cfg.MusicBrainz.BaseURL)

	for _, err := range []error{
		num("REDIS_PORT", &cfg.Cache.Redis.Port),
		num("REDIS_DB", &cfg.Cache.Redis.DB),
		num("THROTTLE_LIMIT", &cfg.Throttle.Limit),
		dur("THROTTLE_WINDOW", &cfg.Throttle.Window),
		dur("JWT_TTL", &cfg.Auth.TokenTTL),
		dur("CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTL),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg Log, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
