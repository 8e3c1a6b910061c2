package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/calendar"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/notify"
)

func buildCalendar(ctx context.Context, cfg serviceConfig, loc *time.Location, logger *slog.Logger) (calendar.Provider, error) {
	var provider calendar.Provider
	switch cfg.CalendarProvider {
	case "google":
		g, err := calendar.NewGoogle(ctx, calendar.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RefreshToken: cfg.GoogleRefreshToken,
			BaseURL:      cfg.GoogleBaseURL,
			Reminders:    cfg.ReminderMinutes,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("google calendar: %w", err)
		}
		provider = g
	case "caldav":
		c, err := calendar.NewCalDAV(calendar.CalDAVConfig{
			URL:          cfg.CalDAVURL,
			Username:     cfg.CalDAVUsername,
			Password:     cfg.CalDAVPassword,
			CalendarPath: cfg.CalDAVCalendarPath,
			Location:     loc,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("caldav calendar: %w", err)
		}
		provider = c
	case "memory", "":
		logger.Warn("using in-memory calendar; bookings are not persisted to any calendar")
		provider = calendar.NewMemory()
	default:
		return nil, fmt.Errorf("unknown CALENDAR_PROVIDER %q", cfg.CalendarProvider)
	}
	return calendar.NewGuard(provider, calendar.GuardConfig{
		BusyTimeout:      cfg.BusyTimeout,
		EventTimeout:     cfg.EventTimeout,
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerOpenTimeout,
	}, logger), nil
}

// buildNotifier fans out to every configured channel and records each
// attempt in log. The returned closers must be closed on shutdown.
func buildNotifier(cfg serviceConfig, log notify.Log, logger *slog.Logger) (notify.Dispatcher, []io.Closer, error) {
	var (
		fanout  notify.Fanout
		closers []io.Closer
	)
	for _, name := range cfg.NotifyProviders {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "", "noop":
		case "smtp":
			s, err := notify.NewSMTP(notify.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				From:     cfg.SMTPFrom,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
			})
			if err != nil {
				return nil, closers, fmt.Errorf("smtp notifier: %w", err)
			}
			fanout = append(fanout, s)
		case "kafka":
			k, err := notify.NewKafka(notify.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaNotifyTopic})
			if err != nil {
				return nil, closers, fmt.Errorf("kafka notifier: %w", err)
			}
			fanout = append(fanout, k)
			closers = append(closers, k)
		case "webhook":
			if strings.TrimSpace(cfg.WebhookURL) == "" {
				return nil, closers, fmt.Errorf("webhook notifier: NOTIFY_WEBHOOK_URL is required")
			}
			fanout = append(fanout, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookToken))
		default:
			return nil, closers, fmt.Errorf("unknown notify provider %q", name)
		}
	}

	var d notify.Dispatcher = notify.Noop{}
	switch len(fanout) {
	case 0:
		logger.Warn("no notification channel configured")
	case 1:
		d = fanout[0]
	default:
		d = fanout
	}
	if log != nil {
		d = notify.NewLogged(d, log, logger)
	}
	return d, closers, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
