package config

import (
	"time"

	"github.com/gvafram3/parcel-console/internal/logger"
)

type Config struct {
	Logger  logger.LoggerConfig `mapstructure:"logger" validate:"-"` // validated by logger.New after defaults
	API     APIConfig           `mapstructure:"api"`
	Cache   CacheConfig         `mapstructure:"cache"`
	Session SessionConfig       `mapstructure:"session"`
	Server  ServerConfig        `mapstructure:"server"`
	// Postgres is only read when server.storage is postgres.
	Postgres PostgresConfig `mapstructure:"postgres" validate:"-"`
}

// APIConfig points the console at the backend.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
	UserAgent string        `mapstructure:"user_agent" validate:"required"`
}

// CacheConfig tunes the list stores.
type CacheConfig struct {
	TTL          time.Duration `mapstructure:"ttl" validate:"gt=0"`
	PageSize     int           `mapstructure:"page_size" validate:"gte=1,lte=100"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"gte=0"`
	Prefetch     bool          `mapstructure:"prefetch"`
	// CacheEmptyPages serves a known-empty page from memory within the ttl.
	CacheEmptyPages bool `mapstructure:"cache_empty_pages"`
}

// SessionConfig says where the token and the signed-in user live.
type SessionConfig struct {
	Dir            string `mapstructure:"dir" validate:"required"`
	KeyringService string `mapstructure:"keyring_service" validate:"required"`
}

// ServerConfig is read by the stub backend only.
type ServerConfig struct {
	Addr        string `mapstructure:"addr" validate:"required"`
	Storage     string `mapstructure:"storage" validate:"oneof=memory postgres"`
	SeedParcels int    `mapstructure:"seed_parcels" validate:"gte=0"`
	Offices     int    `mapstructure:"offices" validate:"gte=1"`
}

// PostgresConfig describes the stub backend's optional Postgres storage.
type PostgresConfig struct {
	Host              string        `mapstructure:"host" validate:"required"`
	Port              int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	User              string        `mapstructure:"user" validate:"required"`
	Password          string        `mapstructure:"password"`
	DBName            string        `mapstructure:"dbname" validate:"required"`
	SSLMode           string        `mapstructure:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns          int32         `mapstructure:"max_conns" validate:"gte=1"`
	MinConns          int32         `mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime" validate:"gte=0"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time" validate:"gte=0"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period" validate:"gte=0"`
}
