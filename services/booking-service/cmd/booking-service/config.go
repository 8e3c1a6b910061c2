package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/tutorhub/bookingengine/libs/config"
)

type serviceConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"booking-service"`
	Port        string `env:"PORT" envDefault:"8083"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"9093"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL   string `env:"DATABASE_URL"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	RedisURL      string `env:"REDIS_URL"`

	KafkaBrokers     string `env:"KAFKA_BROKERS"`
	KafkaNotifyTopic string `env:"KAFKA_NOTIFY_TOPIC" envDefault:"booking.notification.requested.v1"`

	Timezone         string `env:"BUSINESS_TIMEZONE" envDefault:"Asia/Tokyo"`
	SlotMinutes      int    `env:"SLOT_DURATION_MINUTES" envDefault:"60"`
	MaxRangeDays     int    `env:"MAX_RANGE_DAYS" envDefault:"62"`
	DefaultRangeDays int    `env:"DEFAULT_RANGE_DAYS" envDefault:"14"`

	CalendarProvider string `env:"CALENDAR_PROVIDER" envDefault:"memory"`
	CalendarID       string `env:"CALENDAR_ID" envDefault:"primary"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRefreshToken string `env:"GOOGLE_REFRESH_TOKEN"`
	GoogleBaseURL      string `env:"GOOGLE_API_BASE_URL"`
	CalDAVURL          string `env:"CALDAV_URL"`
	CalDAVUsername     string `env:"CALDAV_USERNAME"`
	CalDAVPassword     string `env:"CALDAV_PASSWORD"`
	CalDAVCalendarPath string `env:"CALDAV_CALENDAR_PATH"`
	ReminderMinutes    []int  `env:"CALENDAR_REMINDER_MINUTES" envDefault:"1440,30" envSeparator:","`

	BusyTimeout        time.Duration `env:"BUSY_TIMEOUT" envDefault:"5s"`
	EventTimeout       time.Duration `env:"EVENT_TIMEOUT" envDefault:"10s"`
	NotifyTimeout      time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	BreakerFailures    uint32        `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerOpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	PolicyCacheTTL     time.Duration `env:"POLICY_CACHE_TTL" envDefault:"30s"`
	PolicyCacheSize    int           `env:"POLICY_CACHE_SIZE" envDefault:"256"`
	SlotLockTTL        time.Duration `env:"SLOT_LOCK_TTL" envDefault:"30s"`
	EnforcePolicy      bool          `env:"ENFORCE_POLICY_ON_BOOKING" envDefault:"true"`
	RequestMeeting     bool          `env:"REQUEST_MEETING_LINK" envDefault:"true"`

	NotifyProviders []string `env:"NOTIFY_PROVIDERS" envDefault:"noop" envSeparator:","`
	SMTPHost        string   `env:"SMTP_HOST"`
	SMTPPort        string   `env:"SMTP_PORT" envDefault:"587"`
	SMTPFrom        string   `env:"SMTP_FROM"`
	SMTPUsername    string   `env:"SMTP_USERNAME"`
	SMTPPassword    string   `env:"SMTP_PASSWORD"`
	WebhookURL      string   `env:"NOTIFY_WEBHOOK_URL"`
	WebhookToken    string   `env:"NOTIFY_WEBHOOK_TOKEN"`

	BusinessName string `env:"BUSINESS_NAME" envDefault:"Tutoring"`
	AdminEmail   string `env:"ADMIN_EMAIL"`
	AdminName    string `env:"ADMIN_NAME"`

	AdminJWTSecret  string `env:"ADMIN_JWT_SECRET"`
	AdminAPIKeyHash string `env:"ADMIN_API_KEY_HASH"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSMaxAge         time.Duration `env:"CORS_MAX_AGE" envDefault:"10m"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	BodyLimitBytes     int64         `env:"BODY_LIMIT_BYTES" envDefault:"65536"`
}

func loadConfig(files ...string) (serviceConfig, *time.Location, error) {
	var cfg serviceConfig
	if err := config.Load(&cfg, files...); err != nil {
		return cfg, nil, err
	}
	if _, err := config.ValidatePort("PORT", cfg.Port); err != nil {
		return cfg, nil, err
	}
	if _, err := config.ValidatePort("GRPC_PORT", cfg.GRPCPort); err != nil {
		return cfg, nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return cfg, nil, fmt.Errorf("BUSINESS_TIMEZONE: %w", err)
	}
	if cfg.SlotMinutes <= 0 || 24*60%cfg.SlotMinutes != 0 {
		return cfg, nil, fmt.Errorf("SLOT_DURATION_MINUTES must divide a day (got %d)", cfg.SlotMinutes)
	}
	if cfg.DefaultRangeDays > cfg.MaxRangeDays {
		return cfg, nil, fmt.Errorf("DEFAULT_RANGE_DAYS (%d) exceeds MAX_RANGE_DAYS (%d)", cfg.DefaultRangeDays, cfg.MaxRangeDays)
	}
	cfg.CalendarProvider = strings.ToLower(strings.TrimSpace(cfg.CalendarProvider))
	return cfg, loc, nil
}

func (c serviceConfig) slotDuration() time.Duration {
	return time.Duration(c.SlotMinutes) * time.Minute
}
