package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

// Invalidator is notified after every successful write.
type Invalidator interface {
	Purge()
}

// Manager validates administrator writes before handing them to the store.
// Validation reads go to the uncached store.
type Manager struct {
	admin  Admin
	cache  Invalidator
	logger *slog.Logger
}

func NewManager(admin Admin, cache Invalidator, logger *slog.Logger) *Manager {
	return &Manager{admin: admin, cache: cache, logger: logger}
}

func (m *Manager) invalidate() {
	if m.cache != nil {
		m.cache.Purge()
	}
}

func (m *Manager) WeeklyTemplate(ctx context.Context) ([]model.WeeklyTemplate, int64, error) {
	return m.admin.GetWeeklyTemplate(ctx)
}

func (m *Manager) ReplaceWeeklyTemplate(ctx context.Context, rows []model.WeeklyTemplate) (int64, error) {
	if err := ValidateTemplates(rows); err != nil {
		return 0, err
	}
	version, err := m.admin.ReplaceWeeklyTemplate(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("replace weekly template: %w", err)
	}
	m.invalidate()
	m.logger.Info("weekly template replaced", "version", version, "rows", len(rows))
	return version, nil
}

func (m *Manager) ListExceptions(ctx context.Context, from, to model.Date) ([]model.DateException, error) {
	if !from.Before(to) {
		return nil, model.Invalid("range", "from must be before to")
	}
	list, err := m.admin.GetExceptions(ctx, from, to)
	if err != nil {
		return nil, err
	}
	sortExceptionsByDate(list)
	return list, nil
}

func (m *Manager) CreateException(ctx context.Context, e model.DateException) (model.DateException, error) {
	e.Reason = normalizeReason(e.Reason)
	existing, err := m.admin.GetExceptions(ctx, e.Date, e.Date.AddDays(1))
	if err != nil {
		return model.DateException{}, fmt.Errorf("load exceptions for %s: %w", e.Date, err)
	}
	if err := ValidateException(e, existing); err != nil {
		return model.DateException{}, err
	}
	created, err := m.admin.CreateException(ctx, e)
	if err != nil {
		return model.DateException{}, err
	}
	m.invalidate()
	m.logger.Info("date exception created", "id", created.ID, "date", created.Date.String(), "full_day", created.FullDay())
	return created, nil
}

func (m *Manager) DeleteException(ctx context.Context, id string) error {
	if id == "" {
		return model.Invalid("id", "is required")
	}
	if err := m.admin.DeleteException(ctx, id); err != nil {
		return err
	}
	m.invalidate()
	m.logger.Info("date exception deleted", "id", id)
	return nil
}

func sortExceptionsByDate(list []model.DateException) {
	sort.SliceStable(list, func(i, j int) bool {
		if c := list[i].Date.Compare(list[j].Date); c != 0 {
			return c < 0
		}
		return exceptionLess(list[i], list[j])
	})
}
