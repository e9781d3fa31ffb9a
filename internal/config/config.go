// Package config loads service configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/basesafe/pool-service/pkg/logger"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string        `yaml:"host" env:"SERVER_HOST"`
	Port           int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS"`
	RateLimitRPS   int           `yaml:"rate_limit_rps" env:"SERVER_RATE_LIMIT_RPS"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env:"SERVER_RATE_LIMIT_BURST"`
}

// StoreConfig selects and configures the off-chain mirror backend.
type StoreConfig struct {
	Backend            string `yaml:"backend" env:"STORE_BACKEND"`
	PostgresDSN        string `yaml:"postgres_dsn" env:"DATABASE_URL"`
	SupabaseURL        string `yaml:"supabase_url" env:"SUPABASE_URL"`
	SupabaseServiceKey string `yaml:"supabase_service_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	RealtimeEnabled    bool   `yaml:"realtime_enabled" env:"SUPABASE_REALTIME_ENABLED"`
}

// ChainConfig configures the JSON-RPC endpoint and the factory contract.
type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url" env:"CHAIN_RPC_URL"`
	FactoryAddress string        `yaml:"factory_address" env:"CHAIN_FACTORY_ADDRESS"`
	Timeout        time.Duration `yaml:"timeout" env:"CHAIN_TIMEOUT"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"CHAIN_POLL_INTERVAL"`
}

// RedisConfig configures the optional tx-hash dedupe tracker.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	SeenTTL  time.Duration `yaml:"seen_ttl" env:"REDIS_SEEN_TTL"`
}

// WorkerConfig configures the background services.
type WorkerConfig struct {
	SweepSchedule string        `yaml:"sweep_schedule" env:"WORKER_SWEEP_SCHEDULE"`
	WatchInterval time.Duration `yaml:"watch_interval" env:"WORKER_WATCH_INTERVAL"`
}

// Config is the root configuration.
type Config struct {
	Server  ServerConfig         `yaml:"server"`
	Store   StoreConfig          `yaml:"store"`
	Chain   ChainConfig          `yaml:"chain"`
	Redis   RedisConfig          `yaml:"redis"`
	Worker  WorkerConfig         `yaml:"worker"`
	Logging logger.LoggingConfig `yaml:"logging"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Chain: ChainConfig{
			Timeout:      30 * time.Second,
			PollInterval: 2 * time.Second,
		},
		Redis: RedisConfig{
			SeenTTL: 24 * time.Hour,
		},
		Worker: WorkerConfig{
			SweepSchedule: "*/10 * * * *",
			WatchInterval: 5 * time.Second,
		},
	}
}

// Load reads configuration in three layers: built-in defaults, the YAML file
// at path (optional, empty or missing path skips it), then environment
// variables, which win. A .env file in the working directory is loaded into
// the environment first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store backend %q requires a postgres DSN", c.Store.Backend)
		}
	case BackendSupabase:
		if c.Store.SupabaseURL == "" || c.Store.SupabaseServiceKey == "" {
			return fmt.Errorf("store backend %q requires a supabase URL and service key", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	return nil
}

// ListenAddr formats the host:port pair for net/http.
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
