package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	POS      POSConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	// URL is the Postgres connection string. Empty means the seeded
	// in-memory store, which is what dev terminals run against.
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type POSConfig struct {
	TerminalID           string
	ChargeTimeoutSeconds int
	CacheTTLSeconds      int
}

func (p POSConfig) ChargeTimeout() time.Duration {
	return time.Duration(p.ChargeTimeoutSeconds) * time.Second
}

func (p POSConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("POS_TERMINAL_ID", "terminal-1")
	viper.SetDefault("POS_CHARGE_TIMEOUT_SECONDS", 10)
	viper.SetDefault("POS_CACHE_TTL_SECONDS", 300)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("SERVER_PORT"),
			Env:  viper.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			URL: viper.GetString("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		POS: POSConfig{
			TerminalID:           viper.GetString("POS_TERMINAL_ID"),
			ChargeTimeoutSeconds: viper.GetInt("POS_CHARGE_TIMEOUT_SECONDS"),
			CacheTTLSeconds:      viper.GetInt("POS_CACHE_TTL_SECONDS"),
		},
	}
}
