// Package availability turns the availability policy and the calendar's busy
// time into bookable slots.
package availability

import (
	"time"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/interval"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/policy"
)

// DayRanges is the open time on one date. Origin is the template start for
// the date; slots are aligned to it even when an exception or busy time
// trims the start of the day.
type DayRanges struct {
	Date   model.Date
	Origin time.Time
	Open   []interval.Interval
}

// Resolve computes the open ranges for every date in [from, to). Dates with
// nothing open are omitted. Past dates are resolved like any other.
func Resolve(snap policy.Snapshot, busy []interval.Interval, from, to model.Date, loc *time.Location) []DayRanges {
	return subtractBusy(policyRanges(snap, from, to, loc), busy)
}

// policyRanges applies the weekly template and the date exceptions only.
func policyRanges(snap policy.Snapshot, from, to model.Date, loc *time.Location) []DayRanges {
	var out []DayRanges
	for d := from; d.Before(to); d = d.AddDays(1) {
		if day, ok := resolveDay(snap, d, loc); ok {
			out = append(out, day)
		}
	}
	return out
}

func resolveDay(snap policy.Snapshot, d model.Date, loc *time.Location) (DayRanges, bool) {
	tpl, ok := snap.TemplateFor(d.Weekday())
	if !ok {
		return DayRanges{}, false
	}
	base := interval.New(d.At(tpl.Start, loc), d.At(tpl.End, loc))
	if !base.Valid() {
		return DayRanges{}, false
	}
	open := []interval.Interval{base}
	for _, e := range snap.ExceptionsOn(d) {
		if e.FullDay() {
			return DayRanges{}, false
		}
		open = interval.SubtractAll(open, []interval.Interval{interval.New(d.At(*e.Start, loc), d.At(*e.End, loc))})
	}
	if len(open) == 0 {
		return DayRanges{}, false
	}
	return DayRanges{Date: d, Origin: base.Start, Open: open}, true
}

func subtractBusy(days []DayRanges, busy []interval.Interval) []DayRanges {
	busy = interval.Merge(busy)
	var out []DayRanges
	for _, day := range days {
		open := interval.SubtractAll(day.Open, busy)
		if len(open) == 0 {
			continue
		}
		day.Open = open
		out = append(out, day)
	}
	return out
}

// coverage is the smallest interval covering every open range.
func coverage(days []DayRanges) (interval.Interval, bool) {
	if len(days) == 0 {
		return interval.Interval{}, false
	}
	first := days[0].Open[0]
	last := days[len(days)-1].Open
	return interval.New(first.Start, last[len(last)-1].End), true
}
