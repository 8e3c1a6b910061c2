package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

// Memory is a process-local Admin used when no database is configured.
type Memory struct {
	mu         sync.RWMutex
	version    int64
	templates  []model.WeeklyTemplate
	exceptions []model.DateException
	now        func() time.Time
}

func NewMemory(templates []model.WeeklyTemplate) *Memory {
	m := &Memory{now: time.Now}
	if len(templates) > 0 {
		m.templates = append([]model.WeeklyTemplate(nil), templates...)
		m.version = 1
	}
	return m
}

func (m *Memory) GetWeeklyTemplate(_ context.Context) ([]model.WeeklyTemplate, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.WeeklyTemplate(nil), m.templates...), m.version, nil
}

func (m *Memory) GetExceptions(_ context.Context, from, to model.Date) ([]model.DateException, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.DateException
	for _, e := range m.exceptions {
		if !e.Date.Before(from) && e.Date.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) ReplaceWeeklyTemplate(_ context.Context, rows []model.WeeklyTemplate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = append([]model.WeeklyTemplate(nil), rows...)
	m.version++
	return m.version, nil
}

func (m *Memory) CreateException(_ context.Context, e model.DateException) (model.DateException, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.exceptions {
		if x.Date == e.Date && sameStart(x, e) {
			return model.DateException{}, model.Invalid("start_time", "an exception with this start already exists on %s", e.Date)
		}
	}
	e.ID = uuid.NewString()
	e.CreatedAt = m.now().UTC()
	m.exceptions = append(m.exceptions, e)
	return e, nil
}

func (m *Memory) DeleteException(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.exceptions {
		if e.ID == id {
			m.exceptions = append(m.exceptions[:i], m.exceptions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("exception %s: %w", id, model.ErrNotFound)
}

func sameStart(a, b model.DateException) bool {
	if a.Start == nil || b.Start == nil {
		return a.Start == nil && b.Start == nil
	}
	return *a.Start == *b.Start
}
