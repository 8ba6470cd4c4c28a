// Package config loads server configuration from an optional TOML
// file and environment variables. Environment variables always win so
// containerized deployments can override a checked-in file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Chain     ChainConfig     `toml:"chain"`
	SIP       SIPConfig       `toml:"sip"`
	Storage   StorageConfig   `toml:"storage"`
	Auth      AuthConfig      `toml:"auth"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int    `toml:"port"`
	Host           string `toml:"host"`
	ReadTimeout    int    `toml:"read_timeout"`    // seconds
	WriteTimeout   int    `toml:"write_timeout"`   // seconds
	IdleTimeout    int    `toml:"idle_timeout"`    // seconds
	RequestTimeout int    `toml:"request_timeout"` // seconds
}

// ChainConfig holds the JSON-RPC endpoint and contract settings
type ChainConfig struct {
	RPCURL          string `toml:"rpc_url"`
	ContractAddress string `toml:"contract_address"`
	CallTimeout     int    `toml:"call_timeout"` // seconds
}

// SIPConfig holds the SIP registrar settings
type SIPConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Realm    string `toml:"realm"`
	NonceTTL int    `toml:"nonce_ttl"` // seconds
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string         `toml:"type"` // "sqlite" or "postgres"
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string `toml:"url"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// AuthConfig holds authentication settings for the HTTP API
type AuthConfig struct {
	Type string `toml:"type"` // "none" or "api-key"
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `toml:"enabled"`
	RequestsPerMin int  `toml:"requests_per_min"`
	BurstSize      int  `toml:"burst_size"`
	CleanupMinutes int  `toml:"cleanup_minutes"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// Load loads configuration from WEB3AUTH_CONFIG (or ./web3auth.toml if
// present), then applies environment variable overrides.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("WEB3AUTH_CONFIG")
	if path == "" {
		if _, err := os.Stat("web3auth.toml"); err == nil {
			path = "web3auth.toml"
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			ReadTimeout:    30,
			WriteTimeout:   60,
			IdleTimeout:    120,
			RequestTimeout: 30,
		},
		Chain: ChainConfig{
			RPCURL:          "https://testnet.sapphire.oasis.dev",
			ContractAddress: "0x1b55e67Ce5118559672Bf9EC0564AE3A46C41000",
			CallTimeout:     10,
		},
		SIP: SIPConfig{
			Enabled:  true,
			Addr:     "0.0.0.0:5060",
			Realm:    "sip.example.com",
			NonceTTL: 300,
		},
		Storage: StorageConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "./data/web3auth.db"},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 300,
			BurstSize:      50,
			CleanupMinutes: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.ReadTimeout = getEnvInt("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvInt("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvInt("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.RequestTimeout = getEnvInt("SERVER_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)

	cfg.Chain.RPCURL = getEnv("RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.ContractAddress = getEnv("CONTRACT_ADDRESS", cfg.Chain.ContractAddress)
	cfg.Chain.CallTimeout = getEnvInt("CHAIN_CALL_TIMEOUT", cfg.Chain.CallTimeout)

	cfg.SIP.Enabled = getEnvBool("SIP_ENABLED", cfg.SIP.Enabled)
	cfg.SIP.Addr = getEnv("SIP_ADDR", cfg.SIP.Addr)
	cfg.SIP.Realm = getEnv("SIP_REALM", cfg.SIP.Realm)
	cfg.SIP.NonceTTL = getEnvInt("SIP_NONCE_TTL", cfg.SIP.NonceTTL)

	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.Postgres.URL = getEnv("DATABASE_URL", cfg.Storage.Postgres.URL)
	cfg.Storage.SQLite.Path = getEnv("SQLITE_PATH", cfg.Storage.SQLite.Path)

	cfg.Auth.Type = getEnv("AUTH_TYPE", cfg.Auth.Type)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMin = getEnvInt("RATE_LIMIT_RPM", cfg.RateLimit.RequestsPerMin)
	cfg.RateLimit.BurstSize = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimit.BurstSize)
	cfg.RateLimit.CleanupMinutes = getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", cfg.RateLimit.CleanupMinutes)

	cfg.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
