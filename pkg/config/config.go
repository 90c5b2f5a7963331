package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Logging     LoggingConfig    `yaml:"logging"`
	Chance      ChanceConfig     `yaml:"chance"`
	Registry    RegistryConfig   `yaml:"registry"`
	Postgres    PostgresConfig   `yaml:"postgres"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Binance     BinanceConfig    `yaml:"binance"`
	Sentiment   SentimentConfig  `yaml:"sentiment"`
	Notifiers   NotifiersConfig  `yaml:"notifiers"`
	Queue       QueueConfig      `yaml:"queue"`
	// accounts served when postgres is not configured
	Users []UserConfig `yaml:"users" validate:"dive"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	CORS            bool          `yaml:"cors" default:"true"`
	// how long GET /api/events/analysis responses are cached; 0 disables
	AnalysisCacheTTL time.Duration `yaml:"analysis_cache_ttl" default:"15s"`
}

type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled" default:"true"`
	SlowThreshold time.Duration `yaml:"slow_threshold" default:"1s"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
	// error logs are aggregated and shipped to Kafka when a topic is set
	CollectTopic    string        `yaml:"collect_topic"`
	CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
	CollectMax      int           `yaml:"collect_max" default:"100"`
}

type ChanceConfig struct {
	PercentileAmount int     `yaml:"percentile_amount" default:"100" validate:"gte=1"`
	DecayPeriod      float64 `yaml:"decay_period" default:"1209600" validate:"gte=1"`
	MatchMode        string  `yaml:"match_mode" default:"directional" validate:"oneof=directional magnitude"`
}

type RegistryConfig struct {
	// cross instance lock around symbol creation, only taken when redis is configured
	LockTTL time.Duration `yaml:"lock_ttl" default:"5s"`
	// persisted state of every signal is flushed this often; 0 only saves on edits and shutdown
	SaveInterval time.Duration `yaml:"save_interval" default:"5m"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" default:"5432"`
	Database        string        `yaml:"database" default:"cointrend"`
	User            string        `yaml:"user" default:"postgres"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode" default:"disable"`
	MaxConns        int           `yaml:"max_conns" default:"10"`
	MinConns        int           `yaml:"min_conns" default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" default:"30m"`
	RunMigrations   bool          `yaml:"run_migrations" default:"true"`
}

// Enabled reports whether documents are persisted in PostgreSQL instead of memory.
func (c PostgresConfig) Enabled() bool { return c.DSN != "" || c.Host != "" }

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"default"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	Table            string        `yaml:"table" default:"symbol_events"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

// Enabled reports whether events are stored in ClickHouse instead of memory.
func (c ClickHouseConfig) Enabled() bool { return c.Host != "" }

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
	Prefix   string `yaml:"prefix" default:"cointrend"`
}

// Enabled reports whether locks, throttles, pub/sub and the job queue use Redis.
func (c RedisConfig) Enabled() bool { return c.Host != "" }

type KafkaConfig struct {
	Brokers  []string            `yaml:"brokers"`
	Producer KafkaProducerConfig `yaml:"producer"`
	Consumer KafkaConsumerConfig `yaml:"consumer"`
}

// Enabled reports whether any Kafka brokers are configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type KafkaProducerConfig struct {
	RequiredAcks int           `yaml:"required_acks" default:"-1"`
	Compression  string        `yaml:"compression" default:"snappy"`
	MaxAttempts  int           `yaml:"max_attempts" default:"5"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

type KafkaConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"cointrend"`
	Workers    int           `yaml:"workers" default:"4"`
	BufferSize int           `yaml:"buffer_size" default:"256"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic" default:"cointrend.dlq"`
}

type PairConfig struct {
	Base  string `yaml:"base" validate:"required"`
	Quote string `yaml:"quote" validate:"required,nefield=Base"`
}

type BinanceConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url" default:"wss://stream.binance.com:9443/stream"`
	Interval       string        `yaml:"interval" default:"1h" validate:"oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d"`
	Pairs          []PairConfig  `yaml:"pairs" validate:"dive"`
	Gain           float64       `yaml:"gain" default:"20" validate:"gt=0"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
	Burst          float64       `yaml:"burst" default:"5"`
	RefillPerSec   float64       `yaml:"refill_per_sec" default:"0.2"`
}

type SentimentConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Topic       string            `yaml:"topic" default:"cointrend.sentiment"`
	MaxAge      time.Duration     `yaml:"max_age" default:"10m"`
	Short       []string          `yaml:"short"`
	LongToShort map[string]string `yaml:"long_to_short"`
}

type NotifiersConfig struct {
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
	Push     PushConfig     `yaml:"push"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Kafka    KafkaNotifier  `yaml:"kafka"`
	// upper bound for one delivery round of all notifiers
	Timeout time.Duration `yaml:"timeout" default:"30s"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" validate:"required_if=Enabled true"`
	Port     int    `yaml:"port" default:"587"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from" validate:"omitempty,email"`
}

type TelegramConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Token      string        `yaml:"token" validate:"required_if=Enabled true"`
	MaxRetries int           `yaml:"max_retries" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"2s"`
}

type PushConfig struct {
	Enabled bool `yaml:"enabled"`
}

type WebhookConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url" validate:"omitempty,url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout" default:"10s"`
}

type KafkaNotifier struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic" default:"cointrend.events"`
}

type QueueConfig struct {
	Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
	RetryLimit int           `yaml:"retry_limit" default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
	PollEvery  time.Duration `yaml:"poll_every" default:"1s"`
}

type UserConfig struct {
	ID             string        `yaml:"id" validate:"required"`
	Email          string        `yaml:"email" validate:"omitempty,email"`
	Username       string        `yaml:"username"`
	TelegramChatID int64         `yaml:"telegram_chat_id"`
	AlertLimit     time.Duration `yaml:"alert_limit"`
}

var validate = validator.New()

// Load reads a YAML configuration file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env when present, then the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	applyEnv(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func applyEnv(c *Config) {
	setStr(&c.Environment, "COINTREND_ENV")
	setInt(&c.Server.Port, "COINTREND_PORT")
	setStr(&c.Logging.Level, "COINTREND_LOG_LEVEL")

	setStr(&c.Postgres.DSN, "COINTREND_POSTGRES_DSN")
	setStr(&c.Postgres.Password, "COINTREND_POSTGRES_PASSWORD")
	setStr(&c.ClickHouse.Host, "COINTREND_CLICKHOUSE_HOST")
	setStr(&c.ClickHouse.Password, "COINTREND_CLICKHOUSE_PASSWORD")
	setStr(&c.Redis.Host, "COINTREND_REDIS_HOST")
	setStr(&c.Redis.Password, "COINTREND_REDIS_PASSWORD")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}

	setStr(&c.Notifiers.Telegram.Token, "COINTREND_TELEGRAM_TOKEN")
	setStr(&c.Notifiers.Email.Password, "COINTREND_SMTP_PASSWORD")
	setStr(&c.Notifiers.Webhook.URL, "COINTREND_WEBHOOK_URL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	var errs []error
	if c.Sentiment.Enabled && !c.Kafka.Enabled() {
		errs = append(errs, errors.New("sentiment requires kafka.brokers"))
	}
	if c.Notifiers.Kafka.Enabled && !c.Kafka.Enabled() {
		errs = append(errs, errors.New("notifiers.kafka requires kafka.brokers"))
	}
	if c.Notifiers.Email.Enabled && !c.Redis.Enabled() {
		errs = append(errs, errors.New("notifiers.email requires redis for the delivery queue"))
	}
	if c.Notifiers.Email.Enabled && c.Notifiers.Email.From == "" {
		errs = append(errs, errors.New("notifiers.email.from is required"))
	}
	if c.Notifiers.Webhook.Enabled && c.Notifiers.Webhook.URL == "" {
		errs = append(errs, errors.New("notifiers.webhook.url is required"))
	}
	if c.Notifiers.Push.Enabled && !c.Redis.Enabled() {
		errs = append(errs, errors.New("notifiers.push requires redis"))
	}
	if c.Binance.Enabled && len(c.Binance.Pairs) == 0 {
		errs = append(errs, errors.New("binance.pairs cannot be empty"))
	}
	return errors.Join(errs...)
}
