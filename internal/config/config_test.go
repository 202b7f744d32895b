package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080, PublicURL: "https://calls.example.com"},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "calls"},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Twilio: TwilioConfig{DryRun: true},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, key := range []string{"APP_ENV", "DB_HOST", "REDIS_HOST", "JWT_SECRET", "TWILIO_ACCOUNT_SID"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in error, got %v", key, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Twilio = TwilioConfig{AccountSID: "AC1", AuthToken: "t", CallerNumber: "+15550001111", WhatsAppNumber: "+15550002222", ValidateSignatures: true}
	c.Auth.JWTIssuer, c.Auth.JWTAudience = "iss", "aud"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected error for production without DB_SSLMODE, got %v", err)
	}
}

func TestValidate_ProductionRejectsDryRun(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer, c.Auth.JWTAudience = "iss", "aud"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "TWILIO_DRY_RUN") {
		t.Fatalf("expected dry run rejection, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	s := c.Scheduler
	if s.Location == nil || s.Location.String() != "Asia/Kolkata" {
		t.Fatalf("expected Asia/Kolkata default, got %v", s.Location)
	}
	if s.RetryDelay != 15*time.Minute || s.ReminderLead != 10*time.Minute || s.MinReplyLead != 5*time.Minute {
		t.Fatalf("unexpected scheduler defaults: %+v", s)
	}
	if s.SweepSpec != "@every 5m" {
		t.Fatalf("unexpected sweep spec %q", s.SweepSpec)
	}
	if c.Twilio.APIBaseURL != "https://api.twilio.com" || c.Twilio.RequestsPerSecond != 5 {
		t.Fatalf("unexpected twilio defaults: %+v", c.Twilio)
	}
	if c.AMQP.Queue != "" {
		t.Fatalf("queue should stay empty without a broker")
	}
}

func TestValidate_RejectsBadSchedulerValues(t *testing.T) {
	c := validLocal()
	c.Scheduler.Timezone = "Mars/Olympus"
	c.Scheduler.SweepSpec = "every now and then"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "SCHEDULER_TIMEZONE") || !strings.Contains(err.Error(), "SCHEDULER_SWEEP_SPEC") {
		t.Fatalf("expected both scheduler errors, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	env := map[string]string{
		"APP_ENV":               "dev",
		"APP_PORT":              "8081",
		"APP_PUBLIC_URL":        "https://calls.example.com/",
		"DB_HOST":               "db",
		"DB_PORT":               "5432",
		"DB_USER":               "u",
		"DB_NAME":               "calls",
		"REDIS_HOST":            "redis",
		"REDIS_PORT":            "6379",
		"JWT_SECRET":            "s",
		"TWILIO_DRY_RUN":        "true",
		"SCHEDULER_RETRY_DELAY": "1m",
		"AMQP_URL":              "amqp://guest:guest@mq:5672/",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.PublicURL != "https://calls.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.App.PublicURL)
	}
	if c.Scheduler.RetryDelay != time.Minute {
		t.Fatalf("expected retry delay override, got %v", c.Scheduler.RetryDelay)
	}
	if c.AMQP.Queue != "call-events" {
		t.Fatalf("expected default queue, got %q", c.AMQP.Queue)
	}
	if c.HTTPAddr() != ":8081" || c.RedisAddr() != "redis:6379" {
		t.Fatalf("unexpected addrs %q %q", c.HTTPAddr(), c.RedisAddr())
	}
}

func TestLoad_CollectsParseErrors(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("SCHEDULER_RETRY_DELAY", "soon")
	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "APP_PORT must be an integer") || !strings.Contains(err.Error(), "SCHEDULER_RETRY_DELAY must be a duration") {
		t.Fatalf("expected both parse errors, got %v", err)
	}
}
