// Package config loads service settings from defaults, an optional YAML
// file and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"evacroute/internal/opt"
)

type Config struct {
	Server   Server           `yaml:"server"`
	Search   opt.SearchConfig `yaml:"search"`
	Storage  Storage          `yaml:"storage"`
	Auth     Auth             `yaml:"auth"`
	Webhooks Webhooks         `yaml:"webhooks"`
}

type Server struct {
	Port      string  `yaml:"port"`
	RateRPS   float64 `yaml:"rateRps"`
	RateBurst int     `yaml:"rateBurst"`
}

// Storage picks the backend: DatabaseURL (Postgres) wins over SQLitePath;
// neither means in-memory.
type Storage struct {
	DatabaseURL string `yaml:"databaseUrl"`
	SQLitePath  string `yaml:"sqlitePath"`
	RedisURL    string `yaml:"redisUrl"`
	Neo4j       Neo4j  `yaml:"neo4j"`
}

type Neo4j struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type Auth struct {
	Mode       string `yaml:"mode"` // dev | hmac
	HMACSecret string `yaml:"hmacSecret"`
}

type Webhooks struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

func Default() Config {
	return Config{
		Server:   Server{Port: "8080", RateRPS: 50, RateBurst: 100},
		Search:   opt.DefaultSearchConfig(),
		Storage:  Storage{Neo4j: Neo4j{Database: "neo4j"}},
		Auth:     Auth{Mode: "dev"},
		Webhooks: Webhooks{MaxAttempts: 10, PollInterval: time.Second},
	}
}

// Load reads path (or $CONFIG_FILE when path is empty) over the defaults and
// applies environment overrides. A missing file is only an error when path
// was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case explicit || !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Search.Validate(); err != nil {
		return Config{}, fmt.Errorf("search defaults: %w", err)
	}
	cfg.Auth.Mode = strings.ToLower(strings.TrimSpace(cfg.Auth.Mode))
	switch cfg.Auth.Mode {
	case "dev":
	case "hmac":
		if cfg.Auth.HMACSecret == "" {
			return Config{}, fmt.Errorf("auth mode hmac requires AUTH_HMAC_SECRET")
		}
	default:
		return Config{}, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("PORT", &cfg.Server.Port)
	str("DATABASE_URL", &cfg.Storage.DatabaseURL)
	str("SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("REDIS_URL", &cfg.Storage.RedisURL)
	str("NEO4J_URI", &cfg.Storage.Neo4j.URI)
	str("NEO4J_USER", &cfg.Storage.Neo4j.User)
	str("NEO4J_PASSWORD", &cfg.Storage.Neo4j.Password)
	str("NEO4J_DATABASE", &cfg.Storage.Neo4j.Database)
	str("AUTH_MODE", &cfg.Auth.Mode)
	str("AUTH_HMAC_SECRET", &cfg.Auth.HMACSecret)

	if v := os.Getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("RATE_RPS: invalid value %q", v)
		}
		cfg.Server.RateRPS = f
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("RATE_BURST: invalid value %q", v)
		}
		cfg.Server.RateBurst = n
	}
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS: invalid value %q", v)
		}
		cfg.Webhooks.MaxAttempts = n
	}
	return nil
}
