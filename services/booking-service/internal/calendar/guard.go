package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/interval"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

type GuardConfig struct {
	BusyTimeout  time.Duration
	EventTimeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens a
	// breaker; zero disables the breakers.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Guard bounds every call to the wrapped provider with a timeout and, when
// enabled, a circuit breaker per operation. It never retries.
type Guard struct {
	next   Provider
	cfg    GuardConfig
	busyCB *gobreaker.CircuitBreaker[[]interval.Interval]
	sinkCB *gobreaker.CircuitBreaker[EventRef]
}

func NewGuard(next Provider, cfg GuardConfig, logger *slog.Logger) *Guard {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 10 * time.Second
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	g := &Guard{next: next, cfg: cfg}
	if cfg.FailureThreshold > 0 {
		g.busyCB = gobreaker.NewCircuitBreaker[[]interval.Interval](breakerSettings("calendar.busy", cfg, logger))
		g.sinkCB = gobreaker.NewCircuitBreaker[EventRef](breakerSettings("calendar.events", cfg, logger))
	}
	return g
}

func breakerSettings(name string, cfg GuardConfig, logger *slog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A caller giving up is not a calendar failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Info("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	}
}

func (g *Guard) GetBusyIntervals(ctx context.Context, calendarID string, from, to time.Time) ([]interval.Interval, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.BusyTimeout)
	defer cancel()

	call := func() ([]interval.Interval, error) {
		return g.next.GetBusyIntervals(ctx, calendarID, from, to)
	}
	var (
		busy []interval.Interval
		err  error
	)
	if g.busyCB != nil {
		busy, err = g.busyCB.Execute(call)
	} else {
		busy, err = call()
	}
	if err != nil {
		return nil, ensureKind(err, model.ErrBusySourceUnavailable)
	}
	return busy, nil
}

func (g *Guard) CreateEvent(ctx context.Context, calendarID string, req EventRequest) (EventRef, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.EventTimeout)
	defer cancel()

	call := func() (EventRef, error) {
		return g.next.CreateEvent(ctx, calendarID, req)
	}
	var (
		ref EventRef
		err error
	)
	if g.sinkCB != nil {
		ref, err = g.sinkCB.Execute(call)
	} else {
		ref, err = call()
	}
	if err != nil {
		return EventRef{}, ensureKind(err, model.ErrCalendarService)
	}
	return ref, nil
}

func ensureKind(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open: %w", kind, err)
	}
	return fmt.Errorf("%w: %w", kind, err)
}
