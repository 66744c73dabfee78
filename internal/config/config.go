// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // timezone names must resolve in minimal containers

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Badges     BadgesConfig     `mapstructure:"badges"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Mattermost MattermostConfig `mapstructure:"mattermost"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // "postgres" or "sqlite"
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// DSN builds the libpq connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL builds the postgres:// URL used by the migration runner.
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// SQLiteConfig is used for local development only.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis connection and pool settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BadgesConfig contains the weekly award engine settings.
type BadgesConfig struct {
	Timezone      string         `mapstructure:"timezone"`
	WeekStart     string         `mapstructure:"week_start"`
	GracePeriod   time.Duration  `mapstructure:"grace_period"`
	MetricTimeout time.Duration  `mapstructure:"metric_timeout"`
	LockTTL       time.Duration  `mapstructure:"lock_ttl"`
	LockWait      time.Duration  `mapstructure:"lock_wait"`
	Concurrency   int            `mapstructure:"concurrency"`
	Criteria      CriteriaConfig `mapstructure:"criteria"`
}

// CriteriaConfig holds the criterion set for each subject type.
type CriteriaConfig struct {
	Store    []CriterionConfig `mapstructure:"store"`
	Customer []CriterionConfig `mapstructure:"customer"`
}

// CriterionConfig defines one eligibility threshold.
type CriterionConfig struct {
	Name       string  `mapstructure:"name"`
	Metric     string  `mapstructure:"metric"`
	Required   float64 `mapstructure:"required"`
	Comparator string  `mapstructure:"comparator"` // ">=", ">", "<=", "<", "=="
}

// SchedulerConfig contains cron settings for the periodic jobs.
type SchedulerConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	Timezone              string `mapstructure:"timezone"`
	SweepSchedule         string `mapstructure:"sweep_schedule"`         // cron expression
	RecalculationSchedule string `mapstructure:"recalculation_schedule"` // cron expression, empty disables
}

// MattermostConfig contains Mattermost webhook notification settings.
type MattermostConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Enabled    bool   `mapstructure:"enabled"`
}

// NATSConfig contains settings for publishing award events.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Enabled bool   `mapstructure:"enabled"`
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Metric names understood by the criteria evaluator.
const (
	MetricAverageRating     = "average_rating"
	MetricStoreViews        = "store_views"
	MetricBlogViews         = "blog_views"
	MetricReviewsWritten    = "reviews_written"
	MetricStoreVisits       = "store_visits"
	MetricEngagementActions = "engagement_actions"
)

var validComparators = map[string]bool{">=": true, ">": true, "<=": true, "<": true, "==": true}

// DefaultStoreCriteria returns the store award thresholds.
func DefaultStoreCriteria() []CriterionConfig {
	return []CriterionConfig{
		{Name: "store_rating", Metric: MetricAverageRating, Required: 4.5, Comparator: ">="},
		{Name: "profile_views", Metric: MetricStoreViews, Required: 200, Comparator: ">="},
		{Name: "blog_views", Metric: MetricBlogViews, Required: 100, Comparator: ">="},
	}
}

// DefaultCustomerCriteria returns the customer award thresholds.
func DefaultCustomerCriteria() []CriterionConfig {
	return []CriterionConfig{
		{Name: "reviews_written", Metric: MetricReviewsWritten, Required: 3, Comparator: ">="},
		{Name: "stores_visited", Metric: MetricStoreVisits, Required: 10, Comparator: ">="},
		{Name: "engagement_actions", Metric: MetricEngagementActions, Required: 20, Comparator: ">="},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.sqlite.path", "badges.db")
	v.SetDefault("database.redis.enabled", true)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("badges.timezone", "UTC")
	v.SetDefault("badges.week_start", "sunday")
	v.SetDefault("badges.grace_period", "168h")
	v.SetDefault("badges.metric_timeout", "2s")
	v.SetDefault("badges.lock_ttl", "30s")
	v.SetDefault("badges.lock_wait", "5s")
	v.SetDefault("badges.concurrency", 8)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.sweep_schedule", "5 0 * * *")
	v.SetDefault("scheduler.recalculation_schedule", "0 * * * *")

	v.SetDefault("nats.subject", "badges.award.activated")

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/storefront-badges/")
	}

	// Explicit bindings keep the env surface documented in one place.
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.sqlite.path", "SQLITE_PATH")

	_ = v.BindEnv("database.redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	_ = v.BindEnv("badges.timezone", "BADGES_TIMEZONE")
	_ = v.BindEnv("badges.week_start", "BADGES_WEEK_START")
	_ = v.BindEnv("badges.grace_period", "BADGES_GRACE_PERIOD")
	_ = v.BindEnv("badges.metric_timeout", "BADGES_METRIC_TIMEOUT")
	_ = v.BindEnv("badges.concurrency", "BADGES_CONCURRENCY")

	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("scheduler.sweep_schedule", "SCHEDULER_SWEEP_SCHEDULE")
	_ = v.BindEnv("scheduler.recalculation_schedule", "SCHEDULER_RECALCULATION_SCHEDULE")

	_ = v.BindEnv("mattermost.webhook_url", "MATTERMOST_WEBHOOK_URL")
	_ = v.BindEnv("mattermost.channel", "MATTERMOST_CHANNEL")
	_ = v.BindEnv("mattermost.enabled", "MATTERMOST_ENABLED")

	_ = v.BindEnv("nats.url", "NATS_URL")
	_ = v.BindEnv("nats.subject", "NATS_SUBJECT")
	_ = v.BindEnv("nats.enabled", "NATS_ENABLED")

	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyCriteriaDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyCriteriaDefaults() {
	if len(c.Badges.Criteria.Store) == 0 {
		c.Badges.Criteria.Store = DefaultStoreCriteria()
	}
	if len(c.Badges.Criteria.Customer) == 0 {
		c.Badges.Criteria.Customer = DefaultCustomerCriteria()
	}
	for i := range c.Badges.Criteria.Store {
		if c.Badges.Criteria.Store[i].Comparator == "" {
			c.Badges.Criteria.Store[i].Comparator = ">="
		}
	}
	for i := range c.Badges.Criteria.Customer {
		if c.Badges.Criteria.Customer[i].Comparator == "" {
			c.Badges.Criteria.Customer[i].Comparator = ">="
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	if c.Database.Redis.Enabled && c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required when redis is enabled")
	}

	if _, err := c.Badges.GetLocation(); err != nil {
		return fmt.Errorf("invalid badges.timezone %q: %w", c.Badges.Timezone, err)
	}
	if _, err := c.Badges.GetWeekStart(); err != nil {
		return err
	}
	if c.Badges.GracePeriod <= 0 {
		return fmt.Errorf("badges.grace_period must be positive")
	}
	if c.Badges.MetricTimeout <= 0 {
		return fmt.Errorf("badges.metric_timeout must be positive")
	}
	if c.Badges.Concurrency < 1 {
		return fmt.Errorf("badges.concurrency must be at least 1")
	}
	if err := validateCriteria("store", c.Badges.Criteria.Store); err != nil {
		return err
	}
	if err := validateCriteria("customer", c.Badges.Criteria.Customer); err != nil {
		return err
	}

	if c.Mattermost.Enabled && c.Mattermost.WebhookURL == "" {
		return fmt.Errorf("mattermost.webhook_url is required when mattermost is enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}

	return nil
}

func validateCriteria(subjectType string, criteria []CriterionConfig) error {
	seen := make(map[string]bool, len(criteria))
	for _, cc := range criteria {
		if cc.Name == "" {
			return fmt.Errorf("badges.criteria.%s: criterion name is required", subjectType)
		}
		if seen[cc.Name] {
			return fmt.Errorf("badges.criteria.%s: duplicate criterion %q", subjectType, cc.Name)
		}
		seen[cc.Name] = true
		if !validComparators[cc.Comparator] {
			return fmt.Errorf("badges.criteria.%s.%s: unsupported comparator %q", subjectType, cc.Name, cc.Comparator)
		}
		if cc.Metric == "" {
			return fmt.Errorf("badges.criteria.%s.%s: metric is required", subjectType, cc.Name)
		}
	}
	return nil
}

// GetLocation returns the timezone the weekly window is computed in.
func (c *BadgesConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// GetWeekStart parses week_start into a weekday.
func (c *BadgesConfig) GetWeekStart() (time.Weekday, error) {
	return ParseWeekday(c.WeekStart)
}

// GetLocation returns the scheduler timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// ParseWeekday converts a weekday name (full or three-letter) to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || n == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid week_start %q", name)
}
