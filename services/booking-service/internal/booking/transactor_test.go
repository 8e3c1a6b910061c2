package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/calendar"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/notify"
)

var (
	testNow   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	slotStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	testSlot  = model.Slot{Start: slotStart, End: slotStart.Add(time.Hour)}
	student   = model.Requester{Name: "Aiko Tanaka", Email: "aiko@example.com", Phone: "+81 90-1234-5678"}
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
	ctx  []error
}

func (n *recordingNotifier) Send(ctx context.Context, m notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	n.ctx = append(n.ctx, ctx.Err())
	return n.err
}

type memLedger struct {
	mu       sync.Mutex
	bookings []model.Booking
	err      error
}

func (l *memLedger) RecordBooking(_ context.Context, b model.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bookings = append(l.bookings, b)
	return l.err
}

type policyFunc func(context.Context, model.Slot) error

func (f policyFunc) CheckBookable(ctx context.Context, s model.Slot) error { return f(ctx, s) }

type fixture struct {
	cal      *calendar.Memory
	notifier *recordingNotifier
	ledger   *memLedger
	tx       *Transactor
}

func newFixture(t *testing.T, mutate func(*Deps, *Config)) *fixture {
	t.Helper()
	f := &fixture{cal: calendar.NewMemory(), notifier: &recordingNotifier{}, ledger: &memLedger{}}
	deps := Deps{Busy: f.cal, Events: f.cal, Notifier: f.notifier, Ledger: f.ledger}
	cfg := Config{
		CalendarID:     "tutor",
		Location:       time.UTC,
		SlotDuration:   time.Hour,
		AdminEmail:     "tutor@example.com",
		AdminName:      "Tutor",
		BusinessName:   "Kyoto English Studio",
		RequestMeeting: true,
		Now:            func() time.Time { return testNow },
		NewID:          func() string { return "3f2b9c1e-0000-4000-8000-000000000001" },
	}
	if mutate != nil {
		mutate(&deps, &cfg)
	}
	f.tx = NewTransactor(deps, cfg, discard())
	return f
}

func TestBookCommitsAndNotifies(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	require.NoError(t, err)
	assert.Equal(t, StageDone, res.Stage)
	assert.True(t, res.Committed())
	assert.Equal(t, "3f2b9c1e000040008000000000000001", res.Booking.CalendarEventID)
	assert.NotEmpty(t, res.Booking.MeetingReference)
	assert.True(t, res.Booking.Slot.Start.Equal(slotStart))

	events := f.cal.Events("tutor")
	require.Len(t, events, 1)
	assert.Len(t, events[0].Attendees, 2)
	assert.True(t, events[0].Attendees[1].Organizer)
	assert.Contains(t, events[0].Description, "aiko@example.com")

	require.Len(t, res.Notifications, 2)
	assert.Equal(t, notify.KindBookingConfirmation, res.Notifications[0].Kind)
	assert.Equal(t, "aiko@example.com", res.Notifications[0].Recipient)
	assert.Equal(t, notify.KindAdminNewBooking, res.Notifications[1].Kind)
	assert.True(t, res.Notifications[0].Sent && res.Notifications[1].Sent)
	assert.Len(t, f.ledger.bookings, 1)
}

func TestBookRecheckConflict(t *testing.T) {
	f := newFixture(t, nil)
	// Another booking landed after the slot list was computed.
	f.cal.AddBusy("tutor", slotStart.Add(30*time.Minute), slotStart.Add(90*time.Minute))

	res, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	assert.ErrorIs(t, err, model.ErrSlotConflict)
	assert.Equal(t, StageConflict, res.Stage)
	assert.False(t, res.Committed())
	assert.Empty(t, f.cal.Events("tutor"))
	assert.Empty(t, f.notifier.msgs)
	assert.Empty(t, f.ledger.bookings)
}

func TestBookAdjacentBusyIsNotAConflict(t *testing.T) {
	f := newFixture(t, nil)
	f.cal.AddBusy("tutor", slotStart.Add(-time.Hour), slotStart)
	f.cal.AddBusy("tutor", testSlot.End, testSlot.End.Add(time.Hour))

	_, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	assert.NoError(t, err)
}

func TestBookRecheckQueriesExactSlot(t *testing.T) {
	f := newFixture(t, nil)
	var from, to time.Time
	f.cal.OnBusy = func(_ string, a, b time.Time) { from, to = a, b }

	_, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	require.NoError(t, err)
	assert.True(t, from.Equal(testSlot.Start))
	assert.True(t, to.Equal(testSlot.End))
}

func TestBookRecheckTimeoutFailsClosed(t *testing.T) {
	f := newFixture(t, func(d *Deps, _ *Config) {
		guard := calendar.NewGuard(d.Busy.(calendar.Provider), calendar.GuardConfig{BusyTimeout: 20 * time.Millisecond}, discard())
		d.Busy, d.Events = guard, guard
	})
	f.cal.BusyDelay = time.Second

	res, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	assert.ErrorIs(t, err, model.ErrBusySourceUnavailable)
	assert.Equal(t, StageRechecking, res.Stage)
	assert.Empty(t, f.cal.Events("tutor"))
}

func TestBookRecheckErrorFailsClosed(t *testing.T) {
	f := newFixture(t, nil)
	f.cal.BusyErr = errors.New("invalid_grant")

	_, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	assert.ErrorIs(t, err, model.ErrBusySourceUnavailable)
	_, events := f.cal.Calls()
	assert.Zero(t, events)
}

func TestBookCalendarFailureIsTerminalAndNotRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.cal.CreateErr = errors.New("503 backend error")

	res, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	assert.ErrorIs(t, err, model.ErrCalendarService)
	assert.Equal(t, StageCalendarFailed, res.Stage)
	_, events := f.cal.Calls()
	assert.Equal(t, 1, events)
	assert.Empty(t, f.notifier.msgs)
	assert.Empty(t, f.ledger.bookings)
}

func TestBookNotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.err = errors.New("smtp: connection refused")

	res, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	require.NoError(t, err)
	assert.Equal(t, StageDone, res.Stage)
	assert.NotEmpty(t, res.Booking.CalendarEventID)
	require.Len(t, res.Notifications, 2)
	for _, n := range res.Notifications {
		assert.False(t, n.Sent)
		assert.Contains(t, n.Error, "connection refused")
	}
	assert.Len(t, f.cal.Events("tutor"), 1)
}

func TestBookLedgerFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.err = errors.New("db down")

	res, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	require.NoError(t, err)
	assert.Equal(t, StageDone, res.Stage)
}

func TestBookWithoutAdminSendsOnlyConfirmation(t *testing.T) {
	f := newFixture(t, func(_ *Deps, c *Config) { c.AdminEmail = "" })

	res, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	require.NoError(t, err)
	require.Len(t, res.Notifications, 1)
	assert.Len(t, f.cal.Events("tutor")[0].Attendees, 1)
}

func TestBookPastSlot(t *testing.T) {
	f := newFixture(t, func(_ *Deps, c *Config) { c.Now = func() time.Time { return slotStart } })

	res, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	assert.ErrorIs(t, err, model.ErrPastSlot)
	assert.Equal(t, StageValidating, res.Stage)
	busy, events := f.cal.Calls()
	assert.Zero(t, busy)
	assert.Zero(t, events)
}

func TestBookRejectsMalformedSlot(t *testing.T) {
	f := newFixture(t, nil)
	cases := map[string]model.Slot{
		"missing":  {},
		"inverted": {Start: testSlot.End, End: testSlot.Start},
		"too long": {Start: slotStart, End: slotStart.Add(90 * time.Minute)},
	}
	for name, slot := range cases {
		_, err := f.tx.Book(context.Background(), Request{Slot: slot, Requester: student})
		var verr *model.ValidationError
		require.ErrorAs(t, err, &verr, name)
		assert.Equal(t, "slot", verr.Field, name)
	}
}

func TestBookPolicyCheck(t *testing.T) {
	f := newFixture(t, func(d *Deps, _ *Config) {
		d.Policy = policyFunc(func(context.Context, model.Slot) error {
			return model.Invalid("slot", "is not an offered slot")
		})
	})

	_, err := f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
	assert.Empty(t, f.cal.Events("tutor"))
}

func TestBookConcurrentAttemptsCreateOneEvent(t *testing.T) {
	f := newFixture(t, func(_ *Deps, c *Config) {
		var mu sync.Mutex
		n := 0
		c.NewID = func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return "booking-" + string(rune('a'+n))
		}
	})
	f.cal.BusyDelay = 5 * time.Millisecond

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.tx.Book(context.Background(), Request{Slot: testSlot, Requester: student})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, model.ErrSlotConflict)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.cal.Events("tutor"), 1)
}

type cancellingSink struct {
	next   calendar.EventSink
	cancel context.CancelFunc
	seen   error
}

func (s *cancellingSink) CreateEvent(ctx context.Context, calendarID string, req calendar.EventRequest) (calendar.EventRef, error) {
	s.cancel()
	s.seen = ctx.Err()
	return s.next.CreateEvent(ctx, calendarID, req)
}

func TestBookClientDisconnectAfterCommitStillSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sink *cancellingSink
	f := newFixture(t, func(d *Deps, _ *Config) {
		sink = &cancellingSink{next: d.Events, cancel: cancel}
		d.Events = sink
	})

	res, err := f.tx.Book(ctx, Request{Slot: testSlot, Requester: student})
	require.NoError(t, err)
	assert.NoError(t, sink.seen, "commit must not observe caller cancellation")
	assert.Equal(t, StageDone, res.Stage)
	for _, e := range f.notifier.ctx {
		assert.NoError(t, e)
	}
	assert.Len(t, f.ledger.bookings, 1)
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	_, err = l.TryLock(ctx, "k", time.Second)
	assert.ErrorIs(t, err, model.ErrSlotConflict)
	other, err := l.TryLock(ctx, "other", time.Second)
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := l.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	again()
}

func TestRedisLockerFallsBackToLocal(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	l := NewRedisLocker(rdb, "test", discard())

	unlock, err := l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	_, err = l.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, model.ErrSlotConflict)
	unlock()
	_, err = l.TryLock(context.Background(), "k", time.Second)
	assert.NoError(t, err)
}
