package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Queue   QueueConfig   `yaml:"queue"`
	Auth    AuthConfig    `yaml:"auth"`
	Events  EventsConfig  `yaml:"events"`
	Logging LoggingConfig `yaml:"logging"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	CORSOrigin     string        `yaml:"cors_origin"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StorageConfig struct {
	// Driver is "sqlite" or "mongo"
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type QueueConfig struct {
	// Burst time = ceil(amount / BurstStepAmount) * BurstStepMinutes + BurstBaseMinutes
	BurstBaseMinutes int             `yaml:"burst_base_minutes"`
	BurstStepMinutes int             `yaml:"burst_step_minutes"`
	BurstStepAmount  decimal.Decimal `yaml:"burst_step_amount"`

	// MaxAmount bounds a single application and keeps burst times finite
	MaxAmount      decimal.Decimal `yaml:"max_amount"`
	InterestRate   decimal.Decimal `yaml:"interest_rate"`
	MaxTenorMonths int             `yaml:"max_tenor_months"`
	SingleReviewer bool            `yaml:"single_reviewer"`
	Timezone       string          `yaml:"timezone"`

	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	MaxSubmissionsPerMinute int `yaml:"max_submissions_per_minute"`
	MaxActiveLoansPerMember int `yaml:"max_active_loans_per_member"`
}

type AuthConfig struct {
	MemberRole     string   `yaml:"member_role"`
	ReviewerRoles  []string `yaml:"reviewer_roles"`
	OverrideRoles  []string `yaml:"override_roles"`
	AnalyticsRoles []string `yaml:"analytics_roles"`
}

type EventsConfig struct {
	RedisURL     string `yaml:"redis_url"`
	RedisList    string `yaml:"redis_list"`
	RedisChannel string `yaml:"redis_channel"`
	ListMaxLen   int64  `yaml:"list_max_len"`

	PubNubPublishKey   string `yaml:"pubnub_publish_key"`
	PubNubSubscribeKey string `yaml:"pubnub_subscribe_key"`
	PubNubSecretKey    string `yaml:"pubnub_secret_key"`
	PubNubUserID       string `yaml:"pubnub_user_id"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			CORSOrigin:     "*",
			RequestTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Driver:        "sqlite",
			SQLitePath:    "loans.db",
			MongoURI:      "mongodb://localhost:27017/?replicaSet=rs0",
			MongoDatabase: "koperasi",
		},
		Queue: QueueConfig{
			BurstBaseMinutes:        15,
			BurstStepMinutes:        5,
			BurstStepAmount:         decimal.NewFromInt(500_000),
			MaxAmount:               decimal.NewFromInt(10_000_000_000),
			InterestRate:            decimal.RequireFromString("1.5"),
			MaxTenorMonths:          60,
			SingleReviewer:          true,
			Timezone:                "Asia/Jakarta",
			MaxRetries:              3,
			RetryBackoff:            20 * time.Millisecond,
			MaxSubmissionsPerMinute: 10,
			MaxActiveLoansPerMember: 1,
		},
		Auth: AuthConfig{
			MemberRole:     "anggota",
			ReviewerRoles:  []string{"pengurus"},
			OverrideRoles:  []string{"pengurus", "admin"},
			AnalyticsRoles: []string{"pengurus", "pengawas", "admin"},
		},
		Events: EventsConfig{
			RedisList:    "koperasi:activity_logs",
			RedisChannel: "koperasi:fcfs",
			ListMaxLen:   1000,
			PubNubUserID: "loan-queue",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Monitor: MonitorConfig{
			Interval: 30 * time.Second,
		},
	}
}

// Load reads an optional YAML file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.CORSOrigin = getEnv("CORS_ORIGIN", c.Server.CORSOrigin)
	c.Server.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", c.Server.RequestTimeout)

	c.Storage.Driver = getEnv("DB_DRIVER", c.Storage.Driver)
	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.MongoURI = getEnv("MONGO_URI", c.Storage.MongoURI)
	c.Storage.MongoDatabase = getEnv("MONGO_DATABASE", c.Storage.MongoDatabase)

	c.Queue.SingleReviewer = getEnvAsBool("QUEUE_SINGLE_REVIEWER", c.Queue.SingleReviewer)
	c.Queue.Timezone = getEnv("QUEUE_TIMEZONE", c.Queue.Timezone)
	c.Queue.MaxRetries = getEnvAsInt("QUEUE_MAX_RETRIES", c.Queue.MaxRetries)
	c.Queue.MaxSubmissionsPerMinute = getEnvAsInt("MAX_SUBMISSIONS_PER_MINUTE", c.Queue.MaxSubmissionsPerMinute)
	c.Queue.MaxActiveLoansPerMember = getEnvAsInt("MAX_ACTIVE_LOANS_PER_MEMBER", c.Queue.MaxActiveLoansPerMember)
	c.Queue.InterestRate = getEnvAsDecimal("BUNGA_PINJAMAN", c.Queue.InterestRate)
	c.Queue.MaxAmount = getEnvAsDecimal("MAX_LOAN_AMOUNT", c.Queue.MaxAmount)

	c.Events.RedisURL = getEnv("REDIS_URL", c.Events.RedisURL)
	c.Events.PubNubPublishKey = getEnv("PUBNUB_PUBLISH_KEY", c.Events.PubNubPublishKey)
	c.Events.PubNubSubscribeKey = getEnv("PUBNUB_SUBSCRIBE_KEY", c.Events.PubNubSubscribeKey)
	c.Events.PubNubSecretKey = getEnv("PUBNUB_SECRET_KEY", c.Events.PubNubSecretKey)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.Monitor.Interval = getEnvAsDuration("MONITOR_INTERVAL", c.Monitor.Interval)
}

// Validate checks that all config values are usable
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case "mongo":
		if c.Storage.MongoURI == "" || c.Storage.MongoDatabase == "" {
			errs = append(errs, errors.New("storage.mongo_uri and storage.mongo_database are required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	q := c.Queue
	if q.BurstBaseMinutes < 0 || q.BurstStepMinutes <= 0 || !q.BurstStepAmount.IsPositive() {
		errs = append(errs, errors.New("queue burst parameters must be positive"))
	}
	if !q.MaxAmount.IsPositive() {
		errs = append(errs, errors.New("queue.max_amount must be positive"))
	} else if q.BurstStepAmount.IsPositive() && q.BurstStepMinutes > 0 {
		steps := q.MaxAmount.Div(q.BurstStepAmount).Ceil()
		longest := steps.Mul(decimal.NewFromInt(int64(q.BurstStepMinutes))).Add(decimal.NewFromInt(int64(q.BurstBaseMinutes)))
		if longest.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
			errs = append(errs, errors.New("queue.max_amount gives a burst time that does not fit in 32 bits"))
		}
	}
	if q.MaxTenorMonths <= 0 {
		errs = append(errs, errors.New("queue.max_tenor_months must be positive"))
	}
	if q.MaxRetries < 0 {
		errs = append(errs, errors.New("queue.max_retries cannot be negative"))
	}
	if _, err := time.LoadLocation(q.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid queue.timezone %q: %w", q.Timezone, err))
	}

	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}

	if len(c.Auth.ReviewerRoles) == 0 || len(c.Auth.OverrideRoles) == 0 {
		errs = append(errs, errors.New("auth.reviewer_roles and auth.override_roles cannot be empty"))
	}

	return errors.Join(errs...)
}

// Location returns the queue's calendar timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Queue.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if value, err := decimal.NewFromString(valueStr); err == nil {
		return value
	}
	return defaultValue
}
