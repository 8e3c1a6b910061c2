package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/calendar"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/policy"
)

type Config struct {
	CalendarID       string
	Location         *time.Location
	SlotDuration     time.Duration
	MaxRangeDays     int
	DefaultRangeDays int
	Now              func() time.Time
}

func (c Config) withDefaults() Config {
	if c.CalendarID == "" {
		c.CalendarID = "primary"
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.SlotDuration <= 0 {
		c.SlotDuration = time.Hour
	}
	if c.MaxRangeDays <= 0 {
		c.MaxRangeDays = 62
	}
	if c.DefaultRangeDays <= 0 {
		c.DefaultRangeDays = 14
	}
	if c.DefaultRangeDays > c.MaxRangeDays {
		c.DefaultRangeDays = c.MaxRangeDays
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type DaySlots struct {
	Date  model.Date   `json:"date"`
	Slots []model.Slot `json:"slots"`
}

type Meta struct {
	From          model.Date `json:"from"`
	To            model.Date `json:"to"`
	Timezone      string     `json:"timezone"`
	SlotMinutes   int        `json:"slot_minutes"`
	PolicyVersion int64      `json:"policy_version"`
}

type Result struct {
	Days []DaySlots `json:"available_slots"`
	Meta Meta       `json:"meta"`
}

// Service answers "which slots can be booked" for a date range.
type Service struct {
	policy policy.Store
	busy   calendar.BusySource
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

func NewService(store policy.Store, busy calendar.BusySource, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		policy: store,
		busy:   busy,
		cfg:    cfg.withDefaults(),
		logger: logger,
		tracer: otel.Tracer("booking-service/availability"),
	}
}

func (s *Service) Location() *time.Location     { return s.cfg.Location }
func (s *Service) SlotDuration() time.Duration { return s.cfg.SlotDuration }

// DefaultRange is tomorrow through DefaultRangeDays days later.
func (s *Service) DefaultRange() (model.Date, model.Date) {
	from := model.DateOf(s.cfg.Now().In(s.cfg.Location)).AddDays(1)
	return from, from.AddDays(s.cfg.DefaultRangeDays)
}

// ValidateRange checks a [from, to) date range.
func (s *Service) ValidateRange(from, to model.Date) error {
	if from.IsZero() {
		return model.Invalid("start", "is required")
	}
	if to.IsZero() {
		return model.Invalid("end", "is required")
	}
	if !from.Before(to) {
		return model.Invalid("end", "must be after start")
	}
	if days := from.DaysUntil(to); days > s.cfg.MaxRangeDays {
		return model.Invalid("end", "range of %d days exceeds the maximum of %d", days, s.cfg.MaxRangeDays)
	}
	return nil
}

// Slots resolves [from, to). A busy source failure fails the whole call; it
// never degrades to an empty result.
func (s *Service) Slots(ctx context.Context, from, to model.Date) (Result, error) {
	if err := s.ValidateRange(from, to); err != nil {
		return Result{}, err
	}
	ctx, span := s.tracer.Start(ctx, "availability.resolve", trace.WithAttributes(
		attribute.String("range.from", from.String()),
		attribute.String("range.to", to.String()),
	))
	defer span.End()

	res := Result{
		Days: []DaySlots{},
		Meta: Meta{
			From:        from,
			To:          to,
			Timezone:    s.cfg.Location.String(),
			SlotMinutes: int(s.cfg.SlotDuration / time.Minute),
		},
	}

	snap, err := policy.Load(ctx, s.policy, from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "policy load failed")
		return Result{}, fmt.Errorf("load policy: %w", err)
	}
	res.Meta.PolicyVersion = snap.Version

	days := policyRanges(snap, from, to, s.cfg.Location)
	window, ok := coverage(days)
	if !ok {
		return res, nil
	}
	busy, err := s.busy.GetBusyIntervals(ctx, s.cfg.CalendarID, window.Start, window.End)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "busy source unavailable")
		s.logger.Warn("busy interval fetch failed", "err", err, "from", window.Start, "to", window.End)
		return Result{}, ensureUnavailable(err)
	}
	span.SetAttributes(attribute.Int("busy.count", len(busy)))

	now := s.cfg.Now()
	for _, day := range subtractBusy(days, busy) {
		slots := GenerateSlots(day, s.cfg.SlotDuration, now)
		if len(slots) == 0 {
			continue
		}
		res.Days = append(res.Days, DaySlots{Date: day.Date, Slots: slots})
	}
	span.SetAttributes(attribute.Int("days.open", len(res.Days)))
	return res, nil
}

// CheckBookable reports whether the policy would offer slot, ignoring busy
// time and the clock. It returns a ValidationError on field "slot" if not.
func (s *Service) CheckBookable(ctx context.Context, slot model.Slot) error {
	d := model.DateOf(slot.Start.In(s.cfg.Location))
	snap, err := policy.Load(ctx, s.policy, d, d.AddDays(1))
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	day, ok := resolveDay(snap, d, s.cfg.Location)
	if !ok || !aligned(day, slot, s.cfg.SlotDuration) {
		return model.Invalid("slot", "is not an offered slot")
	}
	return nil
}

func ensureUnavailable(err error) error {
	if errors.Is(err, model.ErrBusySourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrBusySourceUnavailable, err)
}
