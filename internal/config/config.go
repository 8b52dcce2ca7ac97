package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Roster   RosterConfig   `yaml:"roster"`
	Slack    SlackConfig    `yaml:"slack"`
	Report   ReportConfig   `yaml:"report"`
	Schedule ScheduleConfig `yaml:"schedule"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// TrackerConfig configures the project-management API (Wrike v4).
type TrackerConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxAttempts int           `yaml:"max_attempts"` // 0 = retry until success
	Concurrency int           `yaml:"concurrency"`  // 0 = unbounded fan-out
	RateLimit   float64       `yaml:"rate_limit"`   // lookups per second, 0 = off
}

type RosterConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SlackConfig struct {
	BotToken      string   `yaml:"bot_token"`
	SigningSecret string   `yaml:"signing_secret"`
	APIURL        string   `yaml:"api_url"`
	Ignore        []string `yaml:"ignore"`
}

type ReportConfig struct {
	AllHandsWebhook  string  `yaml:"all_hands_webhook"`
	AllHandsPlatform string  `yaml:"all_hands_platform"` // slack, discord, teams, generic
	MinHours         float64 `yaml:"min_hours"`
	MaxHours         float64 `yaml:"max_hours"`
	MailSuffix       string  `yaml:"mail_suffix"`
	IconValid        string  `yaml:"icon_valid"`
	IconInvalid      string  `yaml:"icon_invalid"`
	IconZero         string  `yaml:"icon_zero"`
	Timezone         string  `yaml:"timezone"`
}

type ScheduleConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Cron           string        `yaml:"cron"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	HolidayCountry string        `yaml:"holiday_country"` // "" disables the holiday check
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// RedisConfig for optional async run queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

const (
	// DefaultJWTSecret is a placeholder; serve and token refuse to sign with it.
	DefaultJWTSecret = "timelogbot-secret-key-change-in-production"

	// DefaultSettleDelay lets the day's time entries settle between the
	// scheduled trigger and the data pull.
	DefaultSettleDelay = 3 * time.Hour
)

var ErrDefaultJWTSecret = errors.New("jwt secret is unset or still the default (JWT_SECRET)")

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "release",
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracker: TrackerConfig{
			BaseURL:    "https://www.wrike.com/api/v4",
			Timeout:    30 * time.Second,
			RetryDelay: time.Second,
		},
		Roster: RosterConfig{
			Timeout: 30 * time.Second,
		},
		Report: ReportConfig{
			AllHandsPlatform: "slack",
			MinHours:         6,
			MaxHours:         10,
			IconValid:        ":white_check_mark:",
			IconInvalid:      ":warning:",
			IconZero:         ":sos:",
			Timezone:         "Local",
		},
		Schedule: ScheduleConfig{
			Enabled:     true,
			Cron:        "0 15 * * 1-5",
			SettleDelay: DefaultSettleDelay,
		},
		JWT: JWTConfig{
			Secret:     DefaultJWTSecret,
			ExpireHour: 24,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
	}
}

func (c *Config) overrideFromEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("SERVER_HOST", &c.Server.Host)
	setString("SERVER_PORT", &c.Server.Port)
	setString("SERVER_MODE", &c.Server.Mode)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("WRIKE_TOKEN", &c.Tracker.Token)
	setString("WRIKE_BASE_URL", &c.Tracker.BaseURL)
	setString("ROSTER_URL", &c.Roster.URL)
	setString("SLACK_BOT_TOKEN", &c.Slack.BotToken)
	setString("SLACK_SIGNING_SECRET", &c.Slack.SigningSecret)
	setString("SLACK_API_URL", &c.Slack.APIURL)
	setString("ALL_HANDS_WEBHOOK", &c.Report.AllHandsWebhook)
	setString("ALL_HANDS_PLATFORM", &c.Report.AllHandsPlatform)
	setString("MAIL_SUFFIX", &c.Report.MailSuffix)
	setString("ICON_VALID", &c.Report.IconValid)
	setString("ICON_INVALID", &c.Report.IconInvalid)
	setString("ICON_ZERO", &c.Report.IconZero)
	setString("REPORT_TIMEZONE", &c.Report.Timezone)
	setString("REPORT_CRON", &c.Schedule.Cron)
	setString("HOLIDAY_COUNTRY", &c.Schedule.HolidayCountry)
	setString("JWT_SECRET", &c.JWT.Secret)

	if ignore := os.Getenv("SLACK_IGNORE"); ignore != "" {
		c.Slack.Ignore = splitList(ignore)
	}

	var errs []error
	if v := os.Getenv("MIN_HOURS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, wrapEnv("MIN_HOURS", err))
		c.Report.MinHours = f
	}
	if v := os.Getenv("MAX_HOURS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, wrapEnv("MAX_HOURS", err))
		c.Report.MaxHours = f
	}
	if v := os.Getenv("SETTLE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, wrapEnv("SETTLE_DELAY", err))
		c.Schedule.SettleDelay = d
	}
	if v := os.Getenv("FETCH_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, wrapEnv("FETCH_RETRY_DELAY", err))
		c.Tracker.RetryDelay = d
	}
	if v := os.Getenv("FETCH_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, wrapEnv("FETCH_MAX_ATTEMPTS", err))
		c.Tracker.MaxAttempts = n
	}
	if v := os.Getenv("ENRICH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, wrapEnv("ENRICH_CONCURRENCY", err))
		c.Tracker.Concurrency = n
	}
	if v := os.Getenv("ENRICH_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, wrapEnv("ENRICH_RATE_LIMIT", err))
		c.Tracker.RateLimit = f
	}
	if v := os.Getenv("SCHEDULE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		errs = append(errs, wrapEnv("SCHEDULE_ENABLED", err))
		c.Schedule.Enabled = b
	}

	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}

	return errors.Join(errs...)
}

func wrapEnv(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("invalid %s: %w", key, err)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

// Validate reports every fatal configuration problem at once.
// The pipeline must not start with partial credentials.
func (c *Config) Validate() error {
	var errs []error

	if c.Tracker.Token == "" {
		errs = append(errs, errors.New("tracker token is required (WRIKE_TOKEN)"))
	}
	if c.Tracker.BaseURL == "" {
		errs = append(errs, errors.New("tracker base url is required"))
	}
	if c.Slack.BotToken == "" || c.Slack.SigningSecret == "" {
		errs = append(errs, errors.New("slack bot token and signing secret are required"))
	}
	if c.Roster.URL == "" && c.Report.AllHandsWebhook == "" {
		errs = append(errs, errors.New("no delivery target: set ROSTER_URL or ALL_HANDS_WEBHOOK"))
	}
	if c.Report.MinHours < 0 || c.Report.MinHours > c.Report.MaxHours {
		errs = append(errs, fmt.Errorf("invalid hour thresholds: min=%v max=%v", c.Report.MinHours, c.Report.MaxHours))
	}
	if c.Tracker.MaxAttempts < 0 {
		errs = append(errs, errors.New("tracker max_attempts must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid report timezone %q: %w", c.Report.Timezone, err))
	}
	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			errs = append(errs, fmt.Errorf("invalid cron %q: %w", c.Schedule.Cron, err))
		}
	}

	return errors.Join(errs...)
}

// ValidateServer is Validate plus the checks for the exposed ops API.
func (c *Config) ValidateServer() error {
	err := c.Validate()
	if jwtErr := c.CheckJWTSecret(); jwtErr != nil {
		return errors.Join(err, jwtErr)
	}
	return err
}

// CheckJWTSecret rejects a secret anyone who has read the defaults could sign with.
func (c *Config) CheckJWTSecret() error {
	if c.JWT.Secret == "" || c.JWT.Secret == DefaultJWTSecret {
		return ErrDefaultJWTSecret
	}
	return nil
}

// Location returns the time zone reports are dated in.
func (c *Config) Location() (*time.Location, error) {
	if c.Report.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Report.Timezone)
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
