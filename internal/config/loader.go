package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads the YAML file at path (optional when empty) and lets APP_* env
// variables override any key, e.g. APP_API_BASE_URL for api.base_url.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Server.Storage == "postgres" {
		if err := validate.Struct(&config.Postgres); err != nil {
			return nil, fmt.Errorf("invalid postgres config: %w", err)
		}
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.env", "dev")
	v.SetDefault("logger.level", "info")

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.user_agent", "parcel-console/0.1")

	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.page_size", 20)
	v.SetDefault("cache.fetch_timeout", 30*time.Second)
	v.SetDefault("cache.prefetch", true)
	v.SetDefault("cache.cache_empty_pages", true)

	v.SetDefault("session.dir", defaultSessionDir())
	v.SetDefault("session.keyring_service", "parcel-console")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.storage", "memory")
	v.SetDefault("server.seed_parcels", 120)
	v.SetDefault("server.offices", 3)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "parcels")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "parcels")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("postgres.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("postgres.health_check_period", time.Minute)
}

func defaultSessionDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".parcel-console"
	}
	return filepath.Join(dir, "parcel-console")
}
