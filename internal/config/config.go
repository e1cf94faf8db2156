package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend kinds.
const (
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
	KindFile     = "file"
	KindYahoo    = "yahoo"
	KindBars     = "bars"
)

// MaxChunkSize bounds one quote request.
const MaxChunkSize = 500

// Config holds all application configuration.
type Config struct {
	Catalog struct {
		Kind     string `yaml:"kind"` // postgres | file
		DSN      string `yaml:"dsn"`
		Path     string `yaml:"path"`
		PageSize int    `yaml:"page_size"`

		// ConstituentsURL is the index membership CSV the seeder merges in.
		ConstituentsURL string `yaml:"constituents_url"`
	} `yaml:"catalog"`
	Ledger struct {
		Kind       string        `yaml:"kind"` // postgres | sqlite
		DSN        string        `yaml:"dsn"`
		SQLitePath string        `yaml:"sqlite_path"`
		BatchSize  int           `yaml:"batch_size"`
		Retention  time.Duration `yaml:"retention"`
	} `yaml:"ledger"`
	Quote struct {
		Kind        string `yaml:"kind"` // yahoo | bars
		BaseURL     string `yaml:"base_url"`
		APIKey      string `yaml:"api_key"`
		Period      string `yaml:"period"`
		Interval    string `yaml:"interval"`
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"quote"`
	Pipeline struct {
		ChunkSize  int           `yaml:"chunk_size"`
		ChunkDelay time.Duration `yaml:"chunk_delay"`
		Workers    int           `yaml:"workers"`
		Step       time.Duration `yaml:"step"`
		ChartStep  time.Duration `yaml:"chart_step"`
		RunTimeout time.Duration `yaml:"run_timeout"`
	} `yaml:"pipeline"`
	Cache struct {
		Dir          string `yaml:"dir"`
		SnapshotName string `yaml:"snapshot_name"`
		Redis        struct {
			Addr     string        `yaml:"addr"`
			Password string        `yaml:"password"`
			DB       int           `yaml:"db"`
			Prefix   string        `yaml:"prefix"`
			TTL      time.Duration `yaml:"ttl"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Schedule struct {
		Cron       string `yaml:"cron"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | text
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// LoadDotenv loads a .env file into the environment. ENV_FILE selects the
// file and NO_DOTENV=1 disables loading. Variables already set are kept.
func LoadDotenv() error {
	if os.Getenv("NO_DOTENV") == "1" {
		return nil
	}
	path := ".env"
	if v := os.Getenv("ENV_FILE"); v != "" {
		path = v
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && os.Getenv("ENV_FILE") == "" {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	// Environment variable overrides
	if v := os.Getenv("CATALOG_DSN"); v != "" {
		c.Catalog.DSN = v
		if c.Catalog.Kind == "" {
			c.Catalog.Kind = KindPostgres
		}
	}
	if v := os.Getenv("CONSTITUENTS_URL"); v != "" {
		c.Catalog.ConstituentsURL = v
	}
	if v := os.Getenv("LEDGER_DSN"); v != "" {
		c.Ledger.DSN = v
		if c.Ledger.Kind == "" {
			c.Ledger.Kind = KindPostgres
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Ledger.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("QUOTE_BASE_URL"); v != "" {
		c.Quote.BaseURL = v
	}
	if v := os.Getenv("QUOTE_API_KEY"); v != "" {
		c.Quote.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHUNK_SIZE: %w", err)
		}
		c.Pipeline.ChunkSize = n
	}
	if v := os.Getenv("CRON_SCHEDULE"); v != "" {
		c.Schedule.Cron = v
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RUN_ON_START: %w", err)
		}
		c.Schedule.RunOnStart = b
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Catalog.Kind == "" {
		c.Catalog.Kind = KindPostgres
	}
	if c.Catalog.PageSize == 0 {
		c.Catalog.PageSize = 1000
	}
	if c.Ledger.Kind == "" {
		c.Ledger.Kind = KindSQLite
	}
	if c.Ledger.SQLitePath == "" {
		c.Ledger.SQLitePath = "data/market_shard.db"
	}
	if c.Ledger.BatchSize == 0 {
		c.Ledger.BatchSize = 500
	}
	if c.Ledger.Retention == 0 {
		c.Ledger.Retention = 7 * 24 * time.Hour
	}
	if c.Quote.Kind == "" {
		c.Quote.Kind = KindYahoo
	}
	if c.Quote.Period == "" {
		c.Quote.Period = "5d"
	}
	if c.Quote.Interval == "" {
		c.Quote.Interval = "5m"
	}
	if c.Quote.Concurrency == 0 {
		c.Quote.Concurrency = 8
	}
	if c.Pipeline.ChunkSize == 0 {
		c.Pipeline.ChunkSize = 75
	}
	if c.Pipeline.ChunkDelay == 0 {
		c.Pipeline.ChunkDelay = 2 * time.Second
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 1
	}
	if c.Pipeline.Step == 0 {
		c.Pipeline.Step = 5 * time.Minute
	}
	if c.Pipeline.ChartStep == 0 {
		c.Pipeline.ChartStep = c.Pipeline.Step
	}
	if c.Pipeline.RunTimeout == 0 {
		c.Pipeline.RunTimeout = 20 * time.Minute
	}
	if c.Cache.SnapshotName == "" {
		c.Cache.SnapshotName = "market_data"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "marketshard"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.Catalog.Kind {
	case KindPostgres:
		if c.Catalog.DSN == "" {
			return fmt.Errorf("catalog.dsn is required for the postgres catalog")
		}
	case KindFile:
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is required for the file catalog")
		}
	default:
		return fmt.Errorf("catalog.kind %q is not one of postgres, file", c.Catalog.Kind)
	}

	switch c.Ledger.Kind {
	case KindPostgres:
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for the postgres ledger")
		}
	case KindSQLite:
		if c.Ledger.SQLitePath == "" {
			return fmt.Errorf("ledger.sqlite_path is required for the sqlite ledger")
		}
	default:
		return fmt.Errorf("ledger.kind %q is not one of postgres, sqlite", c.Ledger.Kind)
	}

	switch c.Quote.Kind {
	case KindYahoo:
	case KindBars:
		if c.Quote.BaseURL == "" {
			return fmt.Errorf("quote.base_url is required for the bars source")
		}
	default:
		return fmt.Errorf("quote.kind %q is not one of yahoo, bars", c.Quote.Kind)
	}

	if c.Pipeline.ChunkSize < 1 || c.Pipeline.ChunkSize > MaxChunkSize {
		return fmt.Errorf("pipeline.chunk_size must be in [1, %d], got %d", MaxChunkSize, c.Pipeline.ChunkSize)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be positive")
	}
	if c.Pipeline.Step <= 0 {
		return fmt.Errorf("pipeline.step must be positive")
	}
	if c.Pipeline.ChartStep < c.Pipeline.Step || c.Pipeline.ChartStep%c.Pipeline.Step != 0 {
		return fmt.Errorf("pipeline.chart_step %s must be a multiple of pipeline.step %s", c.Pipeline.ChartStep, c.Pipeline.Step)
	}
	if c.Cache.Dir == "" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("at least one of cache.dir, cache.redis.addr is required")
	}
	return nil
}

// NotifyEnabled reports whether run summaries should be sent.
func (c *Config) NotifyEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
