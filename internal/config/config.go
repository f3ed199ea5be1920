package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Logger struct {
		Level string `yaml:"level"`
	} `yaml:"logger"`
	Storage struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr           string `yaml:"addr"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		LeaderboardTTL string `yaml:"leaderboard_ttl"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TrustedHeader string `yaml:"trusted_header"`
	} `yaml:"auth"`
	Contest struct {
		SweepSchedule  string `yaml:"sweep_schedule"`
		JoinCodeLength int    `yaml:"join_code_length"`
		LeaderboardTTL string `yaml:"leaderboard_ttl"`
	} `yaml:"contest"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Logger.Level = "info"
	cfg.Storage.SQLitePath = "data/contest.db"
	cfg.Redis.LeaderboardTTL = "30s"
	cfg.Auth.TrustedHeader = "X-User-ID"
	cfg.Contest.SweepSchedule = "@every 30s"
	cfg.Contest.JoinCodeLength = 8
	cfg.Contest.LeaderboardTTL = "15s"
	return cfg
}

// Load reads an optional .env, then YAML config from path, then applies
// environment overrides. A missing file yields defaults.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)

	// without an explicit driver a configured database url selects postgres
	if cfg.Storage.Driver == "" {
		if cfg.Postgres.URL != "" {
			cfg.Storage.Driver = DriverPostgres
		} else {
			cfg.Storage.Driver = DriverMemory
		}
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
