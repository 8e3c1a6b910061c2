package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

const maxReasonLen = 500

// ValidateTemplates checks a full replacement set of weekly rows.
func ValidateTemplates(rows []model.WeeklyTemplate) error {
	seen := make(map[time.Weekday]bool, len(rows))
	for i, r := range rows {
		field := fmt.Sprintf("templates[%d]", i)
		if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
			return model.Invalid(field+".day_of_week", "must be between 0 and 6")
		}
		if seen[r.DayOfWeek] {
			return model.Invalid(field+".day_of_week", "duplicate row for %s", r.DayOfWeek)
		}
		seen[r.DayOfWeek] = true
		if !r.Start.Valid() || !r.End.Valid() {
			return model.Invalid(field, "times must be within 00:00 and 24:00")
		}
		if r.Enabled && r.Start >= r.End {
			return model.Invalid(field, "start_time must be before end_time")
		}
	}
	return nil
}

// ValidateException checks e on its own and against the exceptions that
// already exist on the same date. Overlapping partial windows are rejected
// rather than merged.
func ValidateException(e model.DateException, existing []model.DateException) error {
	if e.Date.IsZero() {
		return model.Invalid("date", "is required")
	}
	if (e.Start == nil) != (e.End == nil) {
		return model.Invalid("start_time", "start_time and end_time must both be set or both be empty")
	}
	if len(e.Reason) > maxReasonLen {
		return model.Invalid("reason", "must be at most %d characters", maxReasonLen)
	}
	if !e.FullDay() {
		if !e.Start.Valid() || !e.End.Valid() {
			return model.Invalid("start_time", "times must be within 00:00 and 24:00")
		}
		if *e.Start >= *e.End {
			return model.Invalid("start_time", "start_time must be before end_time")
		}
	}

	for _, x := range existing {
		if x.Date != e.Date {
			continue
		}
		switch {
		case x.FullDay():
			return model.Invalid("date", "%s is already excluded for the whole day", e.Date)
		case e.FullDay():
			return model.Invalid("date", "%s already has exceptions; delete them before excluding the whole day", e.Date)
		case *x.Start == *e.Start:
			return model.Invalid("start_time", "an exception starting at %s already exists on %s", e.Start, e.Date)
		case *e.Start < *x.End && *x.Start < *e.End:
			return model.Invalid("start_time", "overlaps the existing %s-%s exception on %s", x.Start, x.End, e.Date)
		}
	}
	return nil
}

func normalizeReason(s string) string {
	return strings.TrimSpace(s)
}
