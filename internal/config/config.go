// Package config loads warmupd's runtime configuration from a YAML file,
// environment variables, and built-in defaults, using viper the same way
// the relay's own config.go does.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the warmup engine process.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Gmail      GmailConfig      `mapstructure:"gmail"`
	IMAP       IMAPConfig       `mapstructure:"imap"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Business   BusinessConfig   `mapstructure:"business_hours"`
	Bands      BandsConfig      `mapstructure:"bands"`
	Schedule   ScheduleConfig   `mapstructure:"scheduler"`
	Plan       PlanConfig       `mapstructure:"plan"`
	Engagement EngagementConfig `mapstructure:"engagement"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Score      ScoreConfig      `mapstructure:"score"`
}

// ServerConfig holds HTTP server configuration for the /healthz and
// /metrics endpoints.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// GmailConfig holds OAuth2 app credentials used to build per-mailbox Gmail
// API clients. Per-mailbox tokens live in Mailbox.Credentials, not here.
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// IMAPConfig holds defaults for mailboxes that fall back to IMAP/SMTP
// instead of the Gmail API.
type IMAPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
}

// OpenAIConfig holds the optional AI content-fill settings. An empty APIKey
// disables the AI path entirely; the content generator falls back to
// pure-template generation.
type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// BusinessConfig controls C1's business-hours gate.
type BusinessConfig struct {
	StartHour int `mapstructure:"start"`
	EndHour   int `mapstructure:"end"`
}

// BandsConfig controls C3's PEAK/NORMAL/LOW allocation weights.
type BandsConfig struct {
	PeakWeight   float64 `mapstructure:"peak_weight"`
	NormalWeight float64 `mapstructure:"normal_weight"`
	LowWeight    float64 `mapstructure:"low_weight"`
}

// ScheduleConfig controls how often each periodic job ticks.
type ScheduleConfig struct {
	DispatchInterval     time.Duration `mapstructure:"dispatch_interval"`
	EngagementInterval   time.Duration `mapstructure:"engagement_interval"`
	ReplyPollInterval    time.Duration `mapstructure:"reply_poll_interval"`
	SpamRecoveryInterval time.Duration `mapstructure:"spam_recovery_interval"`
	ScoreInterval        time.Duration `mapstructure:"score_interval"`
	DayAdvanceInterval   time.Duration `mapstructure:"day_advance_interval"`
	CleanupInterval      time.Duration `mapstructure:"cleanup_interval"`
}

// PlanConfig controls C4's due-entry window and retention.
type PlanConfig struct {
	GraceWindow time.Duration `mapstructure:"grace_window"`
	FireWindow  time.Duration `mapstructure:"fire_window"`
	Retention   time.Duration `mapstructure:"retention"`
}

// EngagementConfig controls C6's human-like delay ranges.
type EngagementConfig struct {
	OpenDelayMin  time.Duration `mapstructure:"open_delay_min"`
	OpenDelayMax  time.Duration `mapstructure:"open_delay_max"`
	ReplyDelayMin time.Duration `mapstructure:"reply_delay_min"`
	ReplyDelayMax time.Duration `mapstructure:"reply_delay_max"`
	StarProb      float64       `mapstructure:"star_probability"`
}

// RateLimitConfig controls the per-sender token bucket guarding C5.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ScoreConfig controls C10's rolling window.
type ScoreConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// LoadConfig loads configuration from environment variables and config file,
// falling back to built-in defaults for anything unset.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/warmupd")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("imap.host", "imap.gmail.com")
	viper.SetDefault("imap.port", 993)
	viper.SetDefault("imap.smtp_host", "smtp.gmail.com")
	viper.SetDefault("imap.smtp_port", 587)

	viper.SetDefault("openai.model", "gpt-3.5-turbo")

	viper.SetDefault("business_hours.start", 9)
	viper.SetDefault("business_hours.end", 18)

	viper.SetDefault("bands.peak_weight", 0.60)
	viper.SetDefault("bands.normal_weight", 0.30)
	viper.SetDefault("bands.low_weight", 0.10)

	viper.SetDefault("scheduler.dispatch_interval", "2m")
	viper.SetDefault("scheduler.engagement_interval", "3m")
	viper.SetDefault("scheduler.reply_poll_interval", "5m")
	viper.SetDefault("scheduler.spam_recovery_interval", "6h")
	viper.SetDefault("scheduler.score_interval", "6h")
	viper.SetDefault("scheduler.day_advance_interval", "1h")
	viper.SetDefault("scheduler.cleanup_interval", "24h")

	viper.SetDefault("plan.grace_window", "5m")
	viper.SetDefault("plan.fire_window", "2m")
	viper.SetDefault("plan.retention", "168h") // 7d

	viper.SetDefault("engagement.open_delay_min", "30s")
	viper.SetDefault("engagement.open_delay_max", "10m")
	viper.SetDefault("engagement.reply_delay_min", "5m")
	viper.SetDefault("engagement.reply_delay_max", "30m")
	viper.SetDefault("engagement.star_probability", 0.20)

	viper.SetDefault("rate_limit.requests_per_second", 0.05)
	viper.SetDefault("rate_limit.burst", 1)

	viper.SetDefault("score.window", "720h") // 30d
}

func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
	viper.BindEnv("database.sslmode", "DB_SSLMODE")

	viper.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")

	viper.BindEnv("imap.host", "IMAP_HOST")
	viper.BindEnv("imap.port", "IMAP_PORT")
	viper.BindEnv("imap.smtp_host", "IMAP_SMTP_HOST")
	viper.BindEnv("imap.smtp_port", "IMAP_SMTP_PORT")

	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("openai.model", "OPENAI_MODEL")

	viper.BindEnv("business_hours.start", "BUSINESS_HOURS_START")
	viper.BindEnv("business_hours.end", "BUSINESS_HOURS_END")

	viper.BindEnv("bands.peak_weight", "BANDS_PEAK_WEIGHT")
	viper.BindEnv("bands.normal_weight", "BANDS_NORMAL_WEIGHT")
	viper.BindEnv("bands.low_weight", "BANDS_LOW_WEIGHT")

	viper.BindEnv("scheduler.dispatch_interval", "SCHEDULER_DISPATCH_INTERVAL")
	viper.BindEnv("scheduler.engagement_interval", "SCHEDULER_ENGAGEMENT_INTERVAL")
	viper.BindEnv("scheduler.reply_poll_interval", "SCHEDULER_REPLY_POLL_INTERVAL")
	viper.BindEnv("scheduler.spam_recovery_interval", "SCHEDULER_SPAM_RECOVERY_INTERVAL")
	viper.BindEnv("scheduler.score_interval", "SCHEDULER_SCORE_INTERVAL")
	viper.BindEnv("scheduler.day_advance_interval", "SCHEDULER_DAY_ADVANCE_INTERVAL")
	viper.BindEnv("scheduler.cleanup_interval", "SCHEDULER_CLEANUP_INTERVAL")

	viper.BindEnv("plan.grace_window", "PLAN_GRACE_WINDOW")
	viper.BindEnv("plan.fire_window", "PLAN_FIRE_WINDOW")
	viper.BindEnv("plan.retention", "PLAN_RETENTION")

	viper.BindEnv("engagement.open_delay_min", "ENGAGEMENT_OPEN_DELAY_MIN")
	viper.BindEnv("engagement.open_delay_max", "ENGAGEMENT_OPEN_DELAY_MAX")
	viper.BindEnv("engagement.reply_delay_min", "ENGAGEMENT_REPLY_DELAY_MIN")
	viper.BindEnv("engagement.reply_delay_max", "ENGAGEMENT_REPLY_DELAY_MAX")
	viper.BindEnv("engagement.star_probability", "ENGAGEMENT_STAR_PROBABILITY")

	viper.BindEnv("rate_limit.requests_per_second", "RATE_LIMIT_REQUESTS_PER_SECOND")
	viper.BindEnv("rate_limit.burst", "RATE_LIMIT_BURST")

	viper.BindEnv("score.window", "SCORE_WINDOW")
}

// GetDSN returns the database connection string for the MySQL driver.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate checks the configuration for internal consistency, mirroring the
// relay's own Validate but extended for the warmup engine's own tunables.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}
	if c.Business.StartHour < 0 || c.Business.EndHour > 24 || c.Business.StartHour >= c.Business.EndHour {
		return fmt.Errorf("business_hours.start must be before business_hours.end, both within [0,24]")
	}
	sum := c.Bands.PeakWeight + c.Bands.NormalWeight + c.Bands.LowWeight
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("bands weights must sum to 1.0, got %.2f", sum)
	}
	if c.Schedule.DispatchInterval <= 0 || c.Schedule.EngagementInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be greater than 0")
	}
	if c.Plan.GraceWindow <= 0 || c.Plan.FireWindow <= 0 {
		return fmt.Errorf("plan grace_window and fire_window must be greater than 0")
	}
	if c.Score.Window <= 0 {
		return fmt.Errorf("score.window must be greater than 0")
	}
	return nil
}
