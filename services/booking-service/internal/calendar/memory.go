package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/interval"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

// Memory is an in-process calendar. Created events immediately count as busy
// time, which makes it usable for local runs and tests.
type Memory struct {
	mu     sync.Mutex
	busy   map[string][]interval.Interval
	events map[string][]EventRequest

	// Hooks let tests inject failures and latency.
	BusyErr    error
	CreateErr  error
	BusyDelay  time.Duration
	OnBusy     func(calendarID string, from, to time.Time)
	busyCalls  int
	eventCalls int
}

func NewMemory() *Memory {
	return &Memory{
		busy:   map[string][]interval.Interval{},
		events: map[string][]EventRequest{},
	}
}

func (m *Memory) AddBusy(calendarID string, start, end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy[calendarID] = append(m.busy[calendarID], interval.New(start, end))
}

func (m *Memory) GetBusyIntervals(ctx context.Context, calendarID string, from, to time.Time) ([]interval.Interval, error) {
	m.mu.Lock()
	m.busyCalls++
	hook, delay, failure := m.OnBusy, m.BusyDelay, m.BusyErr
	m.mu.Unlock()

	if hook != nil {
		hook(calendarID, from, to)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("memory calendar: %w: %w", model.ErrBusySourceUnavailable, ctx.Err())
		}
	}
	if failure != nil {
		return nil, fmt.Errorf("memory calendar: %w: %w", model.ErrBusySourceUnavailable, failure)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	window := interval.New(from, to)
	var out []interval.Interval
	for _, b := range m.busy[calendarID] {
		if b.Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) CreateEvent(ctx context.Context, calendarID string, req EventRequest) (EventRef, error) {
	if err := ctx.Err(); err != nil {
		return EventRef{}, fmt.Errorf("memory calendar: %w: %w", model.ErrCalendarService, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventCalls++
	if m.CreateErr != nil {
		return EventRef{}, fmt.Errorf("memory calendar: %w: %w", model.ErrCalendarService, m.CreateErr)
	}
	m.events[calendarID] = append(m.events[calendarID], req)
	m.busy[calendarID] = append(m.busy[calendarID], interval.New(req.Start, req.End))
	ref := EventRef{ID: EventID(req.ID)}
	if req.RequestMeeting {
		ref.MeetingReference = "memory://meet/" + ref.ID
	}
	return ref, nil
}

// Events returns the events created on calendarID.
func (m *Memory) Events(calendarID string) []EventRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EventRequest(nil), m.events[calendarID]...)
}

// Calls reports how many busy queries and event creations were attempted.
func (m *Memory) Calls() (busy, events int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busyCalls, m.eventCalls
}
