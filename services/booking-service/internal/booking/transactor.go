// Package booking turns a chosen slot into a calendar event.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/calendar"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/interval"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/notify"
)

type Stage string

const (
	StageRequested           Stage = "requested"
	StageValidating          Stage = "validating"
	StageRechecking          Stage = "rechecking"
	StageConflict            Stage = "conflict"
	StageCommitting          Stage = "committing"
	StageCalendarFailed      Stage = "calendar_failed"
	StageCommitted           Stage = "committed"
	StageNotifyingBestEffort Stage = "notifying"
	StageDone                Stage = "done"
)

type Request struct {
	Slot      model.Slot      `json:"slot"`
	Requester model.Requester `json:"requester"`
}

// NotificationOutcome is the result of one best-effort notification.
type NotificationOutcome struct {
	Kind      notify.Kind `json:"kind"`
	Recipient string      `json:"recipient"`
	Sent      bool        `json:"sent"`
	Error     string      `json:"error,omitempty"`
}

// Result reports how far a booking got. Once Stage has reached Committed the
// booking exists, whatever happened to the notifications.
type Result struct {
	Booking       model.Booking         `json:"booking"`
	Stage         Stage                 `json:"stage"`
	Notifications []NotificationOutcome `json:"notifications"`
}

func (r Result) Committed() bool {
	switch r.Stage {
	case StageCommitted, StageNotifyingBestEffort, StageDone:
		return true
	}
	return false
}

// Ledger keeps a local record of committed bookings.
type Ledger interface {
	RecordBooking(ctx context.Context, b model.Booking) error
}

// PolicyCheck confirms that a slot is one the availability policy offers.
type PolicyCheck interface {
	CheckBookable(ctx context.Context, slot model.Slot) error
}

type Deps struct {
	Busy     calendar.BusySource
	Events   calendar.EventSink
	Notifier notify.Dispatcher
	Locker   SlotLocker
	// Policy and Ledger are optional.
	Policy PolicyCheck
	Ledger Ledger
}

type Config struct {
	CalendarID     string
	Location       *time.Location
	SlotDuration   time.Duration
	EventTimeout   time.Duration
	NotifyTimeout  time.Duration
	LockTTL        time.Duration
	BusinessName   string
	AdminEmail     string
	AdminName      string
	RequestMeeting bool
	Now            func() time.Time
	NewID          func() string
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
	if c.EventTimeout <= 0 {
		c.EventTimeout = 10 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 5 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.BusinessName == "" {
		c.BusinessName = "Tutoring"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

type Transactor struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

func NewTransactor(deps Deps, cfg Config, logger *slog.Logger) *Transactor {
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transactor{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: logger,
		tracer: otel.Tracer("booking-service/booking"),
	}
}

// Book validates the request, rechecks the calendar for the exact slot and
// creates the event. The event is created at most once per call and never
// retried. From the commit on, caller cancellation no longer applies.
func (t *Transactor) Book(ctx context.Context, req Request) (Result, error) {
	res := Result{Stage: StageRequested}
	ctx, span := t.tracer.Start(ctx, "booking.book")
	defer span.End()
	advance := func(s Stage) {
		res.Stage = s
		span.AddEvent(string(s))
	}
	fail := func(err error) (Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, model.Kind(err))
		span.SetAttributes(attribute.String("booking.stage", string(res.Stage)))
		return res, err
	}

	advance(StageValidating)
	slot, requester, err := t.validate(ctx, req)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("slot.start", slot.Start.Format(time.RFC3339)))

	unlock, err := t.deps.Locker.TryLock(ctx, slot.Key(), t.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, model.ErrSlotConflict) {
			advance(StageConflict)
		}
		return fail(err)
	}
	defer unlock()

	advance(StageRechecking)
	busy, err := t.deps.Busy.GetBusyIntervals(ctx, t.cfg.CalendarID, slot.Start, slot.End)
	if err != nil {
		t.logger.Warn("booking recheck failed", "err", err, "slot", slot.Key())
		return fail(ensureKind(err, model.ErrBusySourceUnavailable))
	}
	if interval.OverlapsAny(interval.New(slot.Start, slot.End), busy) {
		advance(StageConflict)
		t.logger.Info("booking rejected: slot taken", "slot", slot.Key())
		return fail(fmt.Errorf("%w: %s", model.ErrSlotConflict, slot.Key()))
	}

	advance(StageCommitting)
	detached := context.WithoutCancel(ctx)
	id := t.cfg.NewID()
	commitCtx, cancel := context.WithTimeout(detached, t.cfg.EventTimeout)
	ref, err := t.deps.Events.CreateEvent(commitCtx, t.cfg.CalendarID, t.eventRequest(id, slot, requester))
	cancel()
	if err != nil {
		advance(StageCalendarFailed)
		t.logger.Error("calendar event creation failed", "err", err, "booking_id", id, "slot", slot.Key())
		return fail(ensureKind(err, model.ErrCalendarService))
	}

	res.Booking = model.Booking{
		ID:               id,
		Requester:        requester,
		Slot:             slot,
		CalendarEventID:  ref.ID,
		MeetingReference: ref.MeetingReference,
		EventLink:        ref.HTMLLink,
		CreatedAt:        t.cfg.Now().UTC(),
	}
	advance(StageCommitted)
	span.SetAttributes(attribute.String("booking.id", id), attribute.String("calendar.event_id", ref.ID))
	t.logger.Info("booking committed", "booking_id", id, "event_id", ref.ID, "slot", slot.Key())

	if t.deps.Ledger != nil {
		ledgerCtx, cancel := context.WithTimeout(detached, t.cfg.NotifyTimeout)
		if err := t.deps.Ledger.RecordBooking(ledgerCtx, res.Booking); err != nil {
			t.logger.Warn("booking ledger write failed", "err", err, "booking_id", id)
		}
		cancel()
	}

	advance(StageNotifyingBestEffort)
	res.Notifications = t.notifyAll(detached, res.Booking)
	advance(StageDone)
	return res, nil
}

func (t *Transactor) validate(ctx context.Context, req Request) (model.Slot, model.Requester, error) {
	slot := req.Slot
	if slot.Start.IsZero() || slot.End.IsZero() {
		return slot, req.Requester, model.Invalid("slot", "start and end are required")
	}
	if !slot.End.After(slot.Start) {
		return slot, req.Requester, model.Invalid("slot", "end must be after start")
	}
	if slot.Duration() != t.cfg.SlotDuration {
		return slot, req.Requester, model.Invalid("slot", "must be exactly %d minutes", int(t.cfg.SlotDuration/time.Minute))
	}
	slot = model.Slot{Start: slot.Start.In(t.cfg.Location), End: slot.End.In(t.cfg.Location)}

	requester, err := normalizeRequester(req.Requester)
	if err != nil {
		return slot, requester, err
	}
	if !slot.Start.After(t.cfg.Now()) {
		return slot, requester, fmt.Errorf("%w: starts at %s", model.ErrPastSlot, slot.Start.Format(time.RFC3339))
	}
	if t.deps.Policy != nil {
		if err := t.deps.Policy.CheckBookable(ctx, slot); err != nil {
			return slot, requester, err
		}
	}
	return slot, requester, nil
}

func (t *Transactor) eventRequest(id string, slot model.Slot, r model.Requester) calendar.EventRequest {
	description := fmt.Sprintf("Student: %s <%s>", r.Name, r.Email)
	if r.Phone != "" {
		description += "\nPhone: " + r.Phone
	}
	if r.Company != "" {
		description += "\nCompany: " + r.Company
	}
	if r.Message != "" {
		description += "\n\n" + r.Message
	}
	description += "\n\nBooking: " + id

	attendees := []calendar.Attendee{{Email: r.Email, Name: r.Name}}
	if t.cfg.AdminEmail != "" {
		attendees = append(attendees, calendar.Attendee{Email: t.cfg.AdminEmail, Name: t.cfg.AdminName, Organizer: true})
	}
	return calendar.EventRequest{
		ID:             id,
		Summary:        fmt.Sprintf("%s: lesson with %s", t.cfg.BusinessName, r.Name),
		Description:    description,
		Start:          slot.Start,
		End:            slot.End,
		Timezone:       t.cfg.Location.String(),
		Attendees:      attendees,
		RequestMeeting: t.cfg.RequestMeeting,
	}
}

// notifyAll sends the requester confirmation and the admin notice. Each send
// has its own timeout; failures are logged and reported, never returned.
func (t *Transactor) notifyAll(ctx context.Context, b model.Booking) []NotificationOutcome {
	msgs := []notify.Message{{
		ID:        notify.MessageID(b.ID, notify.KindBookingConfirmation),
		Kind:      notify.KindBookingConfirmation,
		Recipient: notify.Recipient{Email: b.Requester.Email, Name: b.Requester.Name},
	}}
	if t.cfg.AdminEmail != "" {
		msgs = append(msgs, notify.Message{
			ID:        notify.MessageID(b.ID, notify.KindAdminNewBooking),
			Kind:      notify.KindAdminNewBooking,
			Recipient: notify.Recipient{Email: t.cfg.AdminEmail, Name: t.cfg.AdminName},
		})
	}

	out := make([]NotificationOutcome, 0, len(msgs))
	for _, m := range msgs {
		m.Booking = b
		m.BusinessName = t.cfg.BusinessName
		m.Location = t.cfg.Location

		sendCtx, cancel := context.WithTimeout(ctx, t.cfg.NotifyTimeout)
		err := t.deps.Notifier.Send(sendCtx, m)
		cancel()

		o := NotificationOutcome{Kind: m.Kind, Recipient: m.Recipient.Email, Sent: err == nil}
		if err != nil {
			o.Error = err.Error()
			t.logger.Warn("notification failed", "err", err, "kind", m.Kind, "recipient", m.Recipient.Email, "booking_id", b.ID)
		}
		out = append(out, o)
	}
	return out
}

func ensureKind(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
