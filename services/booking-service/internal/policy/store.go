// Package policy owns the availability policy: the weekly template and the
// date exceptions layered over it.
package policy

import (
	"context"
	"sort"
	"time"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

// Store is the read side the resolver depends on. Exception ranges are
// [from, to) in calendar dates.
type Store interface {
	GetWeeklyTemplate(ctx context.Context) ([]model.WeeklyTemplate, int64, error)
	GetExceptions(ctx context.Context, from, to model.Date) ([]model.DateException, error)
}

// Admin adds the administrator writes. Implementations do not validate;
// Manager does.
type Admin interface {
	Store
	ReplaceWeeklyTemplate(ctx context.Context, rows []model.WeeklyTemplate) (int64, error)
	CreateException(ctx context.Context, e model.DateException) (model.DateException, error)
	DeleteException(ctx context.Context, id string) error
}

// Snapshot is an immutable view of the policy taken once per resolution.
type Snapshot struct {
	Version    int64
	From, To   model.Date
	templates  map[time.Weekday]model.WeeklyTemplate
	exceptions map[model.Date][]model.DateException
}

// NewSnapshot indexes the given rows. Exceptions are ordered full-day first,
// then by start time, so applying them is deterministic.
func NewSnapshot(version int64, from, to model.Date, templates []model.WeeklyTemplate, exceptions []model.DateException) Snapshot {
	s := Snapshot{
		Version:    version,
		From:       from,
		To:         to,
		templates:  make(map[time.Weekday]model.WeeklyTemplate, len(templates)),
		exceptions: make(map[model.Date][]model.DateException),
	}
	for _, t := range templates {
		s.templates[t.DayOfWeek] = t
	}
	for _, e := range exceptions {
		s.exceptions[e.Date] = append(s.exceptions[e.Date], e)
	}
	for d := range s.exceptions {
		sortExceptions(s.exceptions[d])
	}
	return s
}

// Load reads a snapshot covering [from, to).
func Load(ctx context.Context, store Store, from, to model.Date) (Snapshot, error) {
	templates, version, err := store.GetWeeklyTemplate(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	exceptions, err := store.GetExceptions(ctx, from, to)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(version, from, to, templates, exceptions), nil
}

// TemplateFor returns the enabled template for a weekday.
func (s Snapshot) TemplateFor(day time.Weekday) (model.WeeklyTemplate, bool) {
	t, ok := s.templates[day]
	if !ok || !t.Enabled {
		return model.WeeklyTemplate{}, false
	}
	return t, true
}

// ExceptionsOn returns the exceptions on d in application order.
func (s Snapshot) ExceptionsOn(d model.Date) []model.DateException {
	return s.exceptions[d]
}

func sortExceptions(list []model.DateException) {
	sort.SliceStable(list, func(i, j int) bool { return exceptionLess(list[i], list[j]) })
}

func exceptionLess(a, b model.DateException) bool {
	if a.FullDay() != b.FullDay() {
		return a.FullDay()
	}
	if a.FullDay() {
		return a.ID < b.ID
	}
	if *a.Start != *b.Start {
		return *a.Start < *b.Start
	}
	return *a.End < *b.End
}
