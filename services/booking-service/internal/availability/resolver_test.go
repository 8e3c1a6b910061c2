package availability

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/interval"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/policy"
)

func clock(t *testing.T, s string) *model.ClockTime {
	t.Helper()
	c, err := model.ParseClockTime(s)
	require.NoError(t, err)
	return &c
}

func date(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func weekly(t *testing.T, day time.Weekday, start, end string, enabled bool) model.WeeklyTemplate {
	return model.WeeklyTemplate{DayOfWeek: day, Start: *clock(t, start), End: *clock(t, end), Enabled: enabled}
}

func partial(t *testing.T, id, d, start, end string) model.DateException {
	return model.DateException{ID: id, Date: date(t, d), Start: clock(t, start), End: clock(t, end)}
}

func openOn(days []DayRanges, d model.Date) []interval.Interval {
	for _, day := range days {
		if day.Date == d {
			return day.Open
		}
	}
	return nil
}

// 2026-03-02 is a Monday.
const monday = "2026-03-02"

func TestResolvePartialExceptionSplitsDay(t *testing.T) {
	d := date(t, monday)
	snap := policy.NewSnapshot(1, d, d.AddDays(1),
		[]model.WeeklyTemplate{weekly(t, time.Monday, "09:00", "17:00", true)},
		[]model.DateException{partial(t, "x", monday, "12:00", "13:00")})

	got := openOn(Resolve(snap, nil, d, d.AddDays(1), time.UTC), d)
	want := []interval.Interval{
		interval.New(d.At(*clock(t, "09:00"), time.UTC), d.At(*clock(t, "12:00"), time.UTC)),
		interval.New(d.At(*clock(t, "13:00"), time.UTC), d.At(*clock(t, "17:00"), time.UTC)),
	}
	assert.Equal(t, want, got)
}

func TestResolveClosedDays(t *testing.T) {
	d := date(t, monday)
	templates := []model.WeeklyTemplate{
		weekly(t, time.Monday, "09:00", "17:00", true),
		weekly(t, time.Tuesday, "09:00", "17:00", false),
		weekly(t, time.Wednesday, "09:00", "17:00", true),
	}
	fullDay := model.DateException{ID: "wed", Date: d.AddDays(2)}
	snap := policy.NewSnapshot(1, d, d.AddDays(7), templates, []model.DateException{fullDay})

	days := Resolve(snap, nil, d, d.AddDays(7), time.UTC)
	require.Len(t, days, 1, "only Monday is open")
	assert.Equal(t, d, days[0].Date)
	assert.Empty(t, openOn(days, d.AddDays(1)), "disabled weekday")
	assert.Empty(t, openOn(days, d.AddDays(2)), "full-day exception")
	assert.Empty(t, openOn(days, d.AddDays(3)), "no template")
}

func TestResolveFullDayWinsOverPartials(t *testing.T) {
	d := date(t, monday)
	snap := policy.NewSnapshot(1, d, d.AddDays(1),
		[]model.WeeklyTemplate{weekly(t, time.Monday, "09:00", "17:00", true)},
		[]model.DateException{partial(t, "p", monday, "09:00", "10:00"), {ID: "f", Date: d}})
	assert.Empty(t, Resolve(snap, nil, d, d.AddDays(1), time.UTC))
}

func TestResolveToleratesDuplicateBusy(t *testing.T) {
	d := date(t, monday)
	snap := policy.NewSnapshot(1, d, d.AddDays(1),
		[]model.WeeklyTemplate{weekly(t, time.Monday, "09:00", "12:00", true)}, nil)
	b := interval.New(d.At(*clock(t, "10:00"), time.UTC), d.At(*clock(t, "11:00"), time.UTC))

	once := Resolve(snap, []interval.Interval{b}, d, d.AddDays(1), time.UTC)
	twice := Resolve(snap, []interval.Interval{b, b, interval.New(b.Start.Add(10*time.Minute), b.End)}, d, d.AddDays(1), time.UTC)
	assert.Equal(t, once, twice)
	assert.Len(t, openOn(once, d), 2)
}

func TestResolveIsIdempotent(t *testing.T) {
	d := date(t, monday)
	snap := policy.NewSnapshot(3, d, d.AddDays(7),
		[]model.WeeklyTemplate{
			weekly(t, time.Monday, "09:00", "17:00", true),
			weekly(t, time.Thursday, "13:00", "20:00", true),
		},
		[]model.DateException{partial(t, "a", monday, "12:00", "13:00")})
	busy := []interval.Interval{interval.New(d.At(*clock(t, "15:15"), time.UTC), d.At(*clock(t, "15:45"), time.UTC))}
	now := d.At(0, time.UTC)

	first := Resolve(snap, busy, d, d.AddDays(7), time.UTC)
	second := Resolve(snap, busy, d, d.AddDays(7), time.UTC)
	require.Equal(t, first, second)
	for i := range first {
		assert.Equal(t, GenerateSlots(first[i], time.Hour, now), GenerateSlots(second[i], time.Hour, now))
	}
}

func TestResolveMondayScenario(t *testing.T) {
	d := date(t, monday)
	snap := policy.NewSnapshot(1, d, d.AddDays(1),
		[]model.WeeklyTemplate{weekly(t, time.Monday, "10:00", "18:00", true)}, nil)

	days := Resolve(snap, nil, d, d.AddDays(1), time.UTC)
	require.Len(t, days, 1)
	slots := GenerateSlots(days[0], time.Hour, d.At(*clock(t, "08:00"), time.UTC))
	require.Len(t, slots, 8)
	for i, s := range slots {
		assert.Equal(t, 10+i, s.Start.Hour())
		assert.Equal(t, time.Hour, s.Duration())
	}
	assert.Equal(t, 18, slots[7].End.Hour())
}

func TestResolveAcrossSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// Clocks jump from 02:00 to 03:00 on Sunday 2026-03-08.
	d := date(t, "2026-03-08")
	snap := policy.NewSnapshot(1, d, d.AddDays(1),
		[]model.WeeklyTemplate{weekly(t, time.Sunday, "00:00", "05:00", true)}, nil)

	days := Resolve(snap, nil, d, d.AddDays(1), loc)
	require.Len(t, days, 1)
	assert.Equal(t, 4*time.Hour, days[0].Open[0].Duration())

	slots := GenerateSlots(days[0], time.Hour, time.Time{})
	var hours []int
	for _, s := range slots {
		hours = append(hours, s.Start.In(loc).Hour())
	}
	assert.Equal(t, []int{0, 1, 3, 4}, hours)
}

func TestResolveBusyInBusinessTimezone(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	d := date(t, monday)
	snap := policy.NewSnapshot(1, d, d.AddDays(1),
		[]model.WeeklyTemplate{weekly(t, time.Monday, "10:00", "12:00", true)}, nil)
	// 01:00-02:00 UTC is 10:00-11:00 in Tokyo.
	busy := []interval.Interval{interval.New(
		time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC),
	)}

	days := Resolve(snap, busy, d, d.AddDays(1), jst)
	require.Len(t, days, 1)
	slots := GenerateSlots(days[0], time.Hour, time.Time{})
	require.Len(t, slots, 1)
	assert.Equal(t, 11, slots[0].Start.In(jst).Hour())
}
