package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"respondeo-service/internal/cache"
	"respondeo-service/internal/infra/redis"
	"respondeo-service/internal/infra/store"
	"respondeo-service/internal/logging"
)

// DialectMemory keeps everything in process. Data is lost on exit.
const DialectMemory = "memory"

const (
	CacheAuto   = "auto"
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

type Config struct {
	Server struct {
		Port                string `yaml:"port"`
		SubmitRatePerMinute int    `yaml:"submitRatePerMinute"`
	} `yaml:"server"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAgeDays int    `yaml:"maxAgeDays"`
	} `yaml:"log"`
	Database struct {
		Dialect      string `yaml:"dialect"`
		URL          string `yaml:"url"`
		Driver       string `yaml:"driver"`
		MaxOpenConns int    `yaml:"maxOpenConns"`
	} `yaml:"database"`
	Redis struct {
		URL      string `yaml:"url"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"redis"`
	Cache struct {
		Backend string `yaml:"backend"`
		TTL     struct {
			QuizList          string `yaml:"quizList"`
			QuizDetail        string `yaml:"quizDetail"`
			Leaderboard       string `yaml:"leaderboard"`
			GlobalLeaderboard string `yaml:"globalLeaderboard"`
		} `yaml:"ttl"`
	} `yaml:"cache"`
}

// Load reads YAML config from path, then applies .env and environment
// overrides. A missing file yields defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.SubmitRatePerMinute = 30
	cfg.Log.Level = "info"
	cfg.Database.Dialect = store.DialectSQLite
	cfg.Database.Driver = store.DriverPgdriver
	cfg.Database.MaxOpenConns = 10
	cfg.Redis.Timeout = "200ms"
	cfg.Cache.Backend = CacheAuto
	return cfg
}

func (c *Config) applyEnv() {
	set := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Server.Port, "PORT")
	set(&c.Database.URL, "DATABASE_URL")
	set(&c.Database.Dialect, "DB_DIALECT")
	set(&c.Redis.URL, "REDIS_URL", "VALKEY_URL")
	set(&c.Log.Level, "LOG_LEVEL")
}

// Validate rejects unknown dialects, drivers and cache backends.
func (c Config) Validate() error {
	switch c.Database.Dialect {
	case store.DialectSQLite, store.DialectPostgres, DialectMemory:
	default:
		return fmt.Errorf("unknown database dialect %q", c.Database.Dialect)
	}
	switch c.Database.Driver {
	case "", store.DriverPgdriver, store.DriverPgx:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Cache.Backend {
	case "", CacheAuto, CacheRedis, CacheMemory, CacheNone:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRedis && !c.RedisOptions().Configured() {
		return errors.New("cache backend redis requires redis.url or redis.addr")
	}
	return nil
}

// CacheBackend resolves "auto" to redis when redis is configured and none
// otherwise.
func (c Config) CacheBackend() string {
	switch c.Cache.Backend {
	case "", CacheAuto:
		if c.RedisOptions().Configured() {
			return CacheRedis
		}
		return CacheNone
	default:
		return c.Cache.Backend
	}
}

func (c Config) CacheTTLs() cache.TTLs {
	def := cache.DefaultTTLs()
	return cache.TTLs{
		QuizList:          TTLDuration(c.Cache.TTL.QuizList, def.QuizList),
		QuizDetail:        TTLDuration(c.Cache.TTL.QuizDetail, def.QuizDetail),
		Leaderboard:       TTLDuration(c.Cache.TTL.Leaderboard, def.Leaderboard),
		GlobalLeaderboard: TTLDuration(c.Cache.TTL.GlobalLeaderboard, def.GlobalLeaderboard),
	}
}

func (c Config) RedisOptions() redis.Options {
	return redis.Options{
		URL:      c.Redis.URL,
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Timeout:  TTLDuration(c.Redis.Timeout, 200*time.Millisecond),
	}
}

func (c Config) StoreOptions() store.Options {
	return store.Options{
		Dialect:      c.Database.Dialect,
		URL:          c.Database.URL,
		Driver:       c.Database.Driver,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

func (c Config) LogOptions() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
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
