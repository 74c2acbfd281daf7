package cache

import (
	"time"

	"github.com/compozy/tenantflow/pkg/config"
)

type Config struct {
	URL         string
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	PingTimeout time.Duration
}

// FromAppConfig builds the Redis connection settings from the app config.
func FromAppConfig(cfg *config.Config) *Config {
	return &Config{
		URL:      cfg.Redis.URL,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password.Value(),
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
}
