package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string     `yaml:"environment" env:"APP_ENV" default:"development" validate:"required"`
	Log         Log        `yaml:"log"`
	Server      Server     `yaml:"server"`
	Postgres    Postgres   `yaml:"postgres"`
	Redis       Redis      `yaml:"redis"`
	Query       Query      `yaml:"query"`
	Ingest      Ingest     `yaml:"ingest"`
	Repair      Repair     `yaml:"repair"`
	Kafka       Kafka      `yaml:"kafka"`
	ClickHouse  ClickHouse `yaml:"clickhouse"`
}

type Log struct {
	Level     string `yaml:"level" env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format    string `yaml:"format" env:"LOG_FORMAT" default:"json" validate:"oneof=json console"`
	Output    string `yaml:"output" default:"stdout"`
	Collector struct {
		Enabled   bool          `yaml:"enabled"`
		Interval  time.Duration `yaml:"interval" default:"30s"`
		Threshold int           `yaml:"threshold" default:"100"`
		Topic     string        `yaml:"topic" default:"barlake.logs"`
	} `yaml:"collector"`
}

type Server struct {
	Port            int           `yaml:"port" env:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" default:"67108864"`
	RateLimit       struct {
		Enabled      bool    `yaml:"enabled" default:"true"`
		Capacity     int     `yaml:"capacity" default:"50"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"10"`
	} `yaml:"rate_limit"`
	MetricsPath string   `yaml:"metrics_path" default:"/metrics"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:"," default:"[\"*\"]"`
}

type Postgres struct {
	Host            string        `yaml:"host" env:"DB_HOST" default:"localhost" validate:"required"`
	Port            int           `yaml:"port" env:"DB_PORT" default:"5432" validate:"min=1,max=65535"`
	Database        string        `yaml:"database" env:"DB_NAME" default:"barlake" validate:"required"`
	User            string        `yaml:"user" env:"DB_USER" default:"postgres" validate:"required"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	SSLMode         string        `yaml:"ssl_mode" env:"DB_SSLMODE" default:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns        int32         `yaml:"max_conns" default:"10" validate:"min=1"`
	MinConns        int32         `yaml:"min_conns" default:"1" validate:"min=0"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"10s"`
	ApplicationName string        `yaml:"application_name" default:"barlake"`
	TablePrefix     string        `yaml:"table_prefix" default:"ohlcv_" validate:"required,max=16"`
	DDLRetries      int           `yaml:"ddl_retries" default:"3" validate:"min=1,max=10"`
	InsertChunk     int           `yaml:"insert_chunk" default:"2000" validate:"min=1,max=8000"`
}

type Redis struct {
	Enabled      bool          `yaml:"enabled" env:"REDIS_ENABLED" default:"true"`
	Host         string        `yaml:"host" env:"REDIS_HOST" default:"localhost"`
	Port         int           `yaml:"port" env:"REDIS_PORT" default:"6379"`
	DB           int           `yaml:"db" env:"REDIS_DB" default:"0"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	Prefix       string        `yaml:"prefix" default:"barlake"`
	TTLSeconds   int           `yaml:"ttl_seconds" env:"REALTIME_CACHE_TTL" default:"20" validate:"min=1"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"5s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
	PoolSize     int           `yaml:"pool_size" default:"10"`
}

func (r Redis) TTL() time.Duration { return time.Duration(r.TTLSeconds) * time.Second }

type Query struct {
	SlowThreshold time.Duration `yaml:"slow_query_threshold" default:"20ms"`
	StoreTimeout  time.Duration `yaml:"store_timeout" default:"5s"`
	CacheTimeout  time.Duration `yaml:"cache_timeout" default:"5s"`
}

type Ingest struct {
	Dir          string        `yaml:"dir" env:"INGEST_DIR" default:"data"`
	RecentWindow time.Duration `yaml:"recent_window" default:"4320h"`
	Topic        string        `yaml:"topic" default:"bars.raw"`
}

type Repair struct {
	Threshold     time.Duration `yaml:"threshold" default:"1m"`
	Mode          string        `yaml:"mode" default:"missing" validate:"oneof=missing boundary"`
	MaxFillPerGap int           `yaml:"max_fill_per_gap" default:"390" validate:"min=1"`
	Interval      time.Duration `yaml:"interval" default:"0s"`
	Parallelism   int           `yaml:"parallelism" default:"4" validate:"min=1"`
	LockTTL       time.Duration `yaml:"lock_ttl" default:"5m"`
	Queue         struct {
		Workers    int           `yaml:"workers" default:"2" validate:"min=1"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
	} `yaml:"queue"`
}

type Kafka struct {
	Enabled     bool     `yaml:"enabled" env:"KAFKA_ENABLED"`
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	EventsTopic string   `yaml:"events_topic" default:"bars.events"`
	Producer    struct {
		RequiredAcks int           `yaml:"required_acks" default:"1"`
		Compression  string        `yaml:"compression" default:"snappy"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"producer"`
	Consumer struct {
		Enabled    bool          `yaml:"enabled"`
		GroupID    string        `yaml:"group_id" default:"barlake-ingest"`
		Workers    int           `yaml:"workers" default:"2"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"bars.raw.dlq"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouse struct {
	Enabled      bool          `yaml:"enabled" env:"CLICKHOUSE_ENABLED"`
	Host         string        `yaml:"host" env:"CLICKHOUSE_HOST" default:"localhost"`
	Port         int           `yaml:"port" env:"CLICKHOUSE_PORT" default:"9000"`
	Database     string        `yaml:"database" default:"barlake"`
	User         string        `yaml:"user" env:"CLICKHOUSE_USER" default:"default"`
	Password     string        `yaml:"password" env:"CLICKHOUSE_PASSWORD"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
}

// Load applies defaults, then the YAML file at path if it exists.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment
// variables (a .env file in the working directory is honoured).
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("postgres.min_conns (%d) exceeds max_conns (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}
