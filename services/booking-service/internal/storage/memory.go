package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/notify"
)

// Memory keeps the ledger, idempotency keys and notification log in process.
// It backs local runs without DATABASE_URL; nothing survives a restart.
type Memory struct {
	mu            sync.Mutex
	keys          map[string]*memoryKey
	bookings      map[string]model.Booking
	notifications []notify.LogEntry
}

type memoryKey struct {
	mu   sync.Mutex
	hash string
	resp *StoredResponse
}

func NewMemory() *Memory {
	return &Memory{keys: map[string]*memoryKey{}, bookings: map[string]model.Booking{}}
}

func (m *Memory) Idempotent(ctx context.Context, key, requestHash string, fn IdempotentFunc) (StoredResponse, bool, error) {
	m.mu.Lock()
	k, ok := m.keys[key]
	if !ok {
		k = &memoryKey{hash: requestHash}
		m.keys[key] = k
	}
	m.mu.Unlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.hash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyMismatch
	}
	if k.resp != nil {
		return *k.resp, true, nil
	}
	resp, final := fn(ctx)
	if final {
		stored := resp
		stored.Body = append([]byte(nil), resp.Body...)
		k.resp = &stored
	}
	return resp, false, nil
}

func (m *Memory) RecordBooking(_ context.Context, b model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		m.bookings[b.ID] = b
	}
	return nil
}

func (m *Memory) ListBookings(_ context.Context, from, to time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if !b.Slot.Start.Before(from) && b.Slot.Start.Before(to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot.Start.Before(out[j].Slot.Start) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) RecordNotification(_ context.Context, e notify.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, e)
	return nil
}

// Notifications returns the recorded delivery attempts for bookingID.
func (m *Memory) Notifications(bookingID string) []notify.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.LogEntry
	for _, e := range m.notifications {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out
}
