package availability

import (
	"time"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/interval"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

// GenerateSlots cuts the open ranges of a day into back-to-back slots of the
// given duration, aligned to day.Origin. Slots that start at or before now
// are dropped.
func GenerateSlots(day DayRanges, duration time.Duration, now time.Time) []model.Slot {
	if duration <= 0 {
		return nil
	}
	var slots []model.Slot
	for _, r := range day.Open {
		for t := alignUp(r.Start, day.Origin, duration); !t.Add(duration).After(r.End); t = t.Add(duration) {
			if !t.After(now) {
				continue
			}
			slots = append(slots, model.Slot{Start: t, End: t.Add(duration)})
		}
	}
	return slots
}

// alignUp returns the first instant at or after t that lies on the grid
// origin + k*step.
func alignUp(t, origin time.Time, step time.Duration) time.Time {
	if !t.After(origin) {
		return origin
	}
	off := t.Sub(origin) % step
	if off == 0 {
		return t
	}
	return t.Add(step - off)
}

// aligned reports whether slot sits on the day's grid and inside one of its
// open ranges.
func aligned(day DayRanges, slot model.Slot, duration time.Duration) bool {
	if slot.Start.Before(day.Origin) || slot.Start.Sub(day.Origin)%duration != 0 {
		return false
	}
	want := interval.New(slot.Start, slot.End)
	for _, r := range day.Open {
		if r.Contains(want) {
			return true
		}
	}
	return false
}
