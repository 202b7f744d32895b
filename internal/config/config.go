package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration required by the API process.
// All values come from the environment (optionally seeded from an env file
// by the process runner). No business logic reads raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Twilio    TwilioConfig
	Scheduler SchedulerConfig
	AMQP      AMQPConfig
}

type AppConfig struct {
	Env  string
	Port int
	// PublicURL is the externally reachable base URL used to build webhook
	// callbacks handed to the telephony provider.
	PublicURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// CallerNumber places voice calls; WhatsAppNumber sends reminders.
	CallerNumber   string
	WhatsAppNumber string
	APIBaseURL     string

	RequestsPerSecond  int
	ValidateSignatures bool
	// DryRun logs provider requests instead of sending them.
	DryRun bool
}

type SchedulerConfig struct {
	Timezone string
	Location *time.Location

	RetryDelay      time.Duration
	ReminderLead    time.Duration
	MinReplyLead    time.Duration
	StaleAfter      time.Duration
	DispatchTimeout time.Duration
	SweepSpec       string

	// ConversationTTL bounds how long live-call history stays cached.
	ConversationTTL time.Duration
}

// AMQPConfig is optional; lifecycle events are dropped when URL is empty.
type AMQPConfig struct {
	URL   string
	Queue string
}

func Load() (Config, error) {
	c := Config{}
	var p envParser

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = p.mustInt("APP_PORT")
	c.App.PublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_PUBLIC_URL")), "/")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = p.mustInt("DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = p.mustInt("REDIS_PORT")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = p.optionalInt("REDIS_DB")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = p.duration("JWT_ACCESS_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.CallerNumber = strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER"))
	c.Twilio.WhatsAppNumber = strings.TrimSpace(os.Getenv("TWILIO_WHATSAPP_NUMBER"))
	c.Twilio.APIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("TWILIO_API_BASE_URL")), "/")
	c.Twilio.RequestsPerSecond = p.optionalInt("TWILIO_RPS")
	c.Twilio.ValidateSignatures = envBool("TWILIO_VALIDATE_SIGNATURES", true)
	c.Twilio.DryRun = envBool("TWILIO_DRY_RUN", false)

	c.Scheduler.Timezone = strings.TrimSpace(os.Getenv("SCHEDULER_TIMEZONE"))
	c.Scheduler.RetryDelay = p.duration("SCHEDULER_RETRY_DELAY")
	c.Scheduler.ReminderLead = p.duration("SCHEDULER_REMINDER_LEAD")
	c.Scheduler.MinReplyLead = p.duration("SCHEDULER_MIN_REPLY_LEAD")
	c.Scheduler.StaleAfter = p.duration("SCHEDULER_STALE_AFTER")
	c.Scheduler.DispatchTimeout = p.duration("SCHEDULER_DISPATCH_TIMEOUT")
	c.Scheduler.SweepSpec = strings.TrimSpace(os.Getenv("SCHEDULER_SWEEP_SPEC"))
	c.Scheduler.ConversationTTL = p.duration("CONVERSATION_TTL")

	c.AMQP.URL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	c.AMQP.Queue = strings.TrimSpace(os.Getenv("AMQP_QUEUE"))

	if err := joinErrors(p.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicURL == "" {
		errs = append(errs, errors.New("APP_PUBLIC_URL is required"))
	} else if u, err := url.Parse(c.App.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("APP_PUBLIC_URL must be an absolute URL, got %q", c.App.PublicURL))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = time.Hour
	}

	errs = append(errs, c.validateTwilio()...)
	errs = append(errs, c.validateScheduler()...)

	if c.AMQP.URL != "" && c.AMQP.Queue == "" {
		c.AMQP.Queue = "call-events"
	}

	return joinErrors(errs)
}

func (c *Config) validateTwilio() []error {
	var errs []error
	t := &c.Twilio
	if t.APIBaseURL == "" {
		t.APIBaseURL = "https://api.twilio.com"
	}
	if t.RequestsPerSecond <= 0 {
		t.RequestsPerSecond = 5
	}
	if t.DryRun {
		if c.IsProduction() {
			errs = append(errs, errors.New("TWILIO_DRY_RUN is not allowed in production"))
		}
		return errs
	}
	if t.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if t.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if t.CallerNumber == "" {
		errs = append(errs, errors.New("TWILIO_PHONE_NUMBER is required"))
	}
	if t.WhatsAppNumber == "" {
		errs = append(errs, errors.New("TWILIO_WHATSAPP_NUMBER is required"))
	}
	if c.IsProduction() && !t.ValidateSignatures {
		errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURES cannot be disabled in production"))
	}
	return errs
}

func (c *Config) validateScheduler() []error {
	var errs []error
	s := &c.Scheduler
	if s.Timezone == "" {
		s.Timezone = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_TIMEZONE is not a known zone: %q", s.Timezone))
	} else {
		s.Location = loc
	}

	if s.RetryDelay <= 0 {
		s.RetryDelay = 15 * time.Minute
	}
	if s.ReminderLead <= 0 {
		s.ReminderLead = 10 * time.Minute
	}
	if s.MinReplyLead <= 0 {
		s.MinReplyLead = 5 * time.Minute
	}
	if s.DispatchTimeout <= 0 {
		s.DispatchTimeout = 30 * time.Second
	}
	if s.StaleAfter <= 0 {
		s.StaleAfter = 30 * time.Minute
	}
	if s.StaleAfter <= s.DispatchTimeout {
		errs = append(errs, errors.New("SCHEDULER_STALE_AFTER must be greater than SCHEDULER_DISPATCH_TIMEOUT"))
	}
	if s.SweepSpec == "" {
		s.SweepSpec = "@every 5m"
	}
	if _, err := cron.ParseStandard(s.SweepSpec); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_SWEEP_SPEC is invalid: %v", err))
	}
	if s.ConversationTTL <= 0 {
		s.ConversationTTL = 2 * time.Hour
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// envParser reads typed values and collects every parse error so Load can
// report them together.
type envParser struct {
	errs []error
}

func (p *envParser) mustInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		p.errs = append(p.errs, fmt.Errorf("%s is required", key))
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func (p *envParser) optionalInt(key string) int {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0
	}
	return p.mustInt(key)
}

// duration returns 0 for unset keys; defaults are applied in Validate.
func (p *envParser) duration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a duration, got %q", key, v))
		return 0
	}
	return d
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
