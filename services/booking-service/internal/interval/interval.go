// Package interval implements half-open time interval algebra on absolute
// instants.
package interval

import (
	"sort"
	"time"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) Interval { return Interval{Start: start, End: end} }

func (i Interval) Valid() bool { return i.End.After(i.Start) }

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// Overlaps reports whether the two intervals share any instant. Touching
// intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Clip returns the part of i inside bounds.
func (i Interval) Clip(bounds Interval) (Interval, bool) {
	out := Interval{Start: maxTime(i.Start, bounds.Start), End: minTime(i.End, bounds.End)}
	return out, out.Valid()
}

// OverlapsAny reports whether i overlaps any interval in set.
func OverlapsAny(i Interval, set []Interval) bool {
	for _, o := range set {
		if i.Overlaps(o) {
			return true
		}
	}
	return false
}

// Merge returns the union of in as sorted, disjoint, non-touching intervals.
// Empty and inverted intervals are dropped; duplicates collapse.
func Merge(in []Interval) []Interval {
	valid := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.Valid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(a, b int) bool {
		if valid[a].Start.Equal(valid[b].Start) {
			return valid[a].End.Before(valid[b].End)
		}
		return valid[a].Start.Before(valid[b].Start)
	})

	out := []Interval{valid[0]}
	for _, iv := range valid[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			last.End = maxTime(last.End, iv.End)
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes every cut from base and returns what is left, in order.
// The result can have any number of pieces.
func Subtract(base Interval, cuts ...Interval) []Interval {
	if !base.Valid() {
		return nil
	}
	var out []Interval
	cur := base.Start
	for _, c := range Merge(cuts) {
		if !c.End.After(cur) {
			continue
		}
		if !c.Start.Before(base.End) {
			break
		}
		if c.Start.After(cur) {
			out = append(out, Interval{Start: cur, End: c.Start})
		}
		cur = c.End
		if !cur.Before(base.End) {
			return out
		}
	}
	return append(out, Interval{Start: cur, End: base.End})
}

// SubtractAll applies Subtract to every range.
func SubtractAll(ranges []Interval, cuts []Interval) []Interval {
	var out []Interval
	for _, r := range ranges {
		out = append(out, Subtract(r, cuts...)...)
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
