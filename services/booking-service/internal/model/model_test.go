package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseClockTime(t *testing.T) {
	cases := map[string]ClockTime{
		"00:00":    0,
		"09:30":    NewClockTime(9, 30),
		"17:00:00": NewClockTime(17, 0),
		"24:00":    EndOfDay,
	}
	for in, want := range cases {
		got, err := ParseClockTime(in)
		if err != nil || got != want {
			t.Fatalf("ParseClockTime(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "9:00", "24:30", "12:60", "ab:cd", "10:00:30"} {
		if _, err := ParseClockTime(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestClockTimeJSON(t *testing.T) {
	v := struct {
		At *ClockTime `json:"at,omitempty"`
	}{}
	c := NewClockTime(13, 5)
	v.At = &c
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"at":"13:05"}` {
		t.Fatalf("unexpected json %s", b)
	}
	v.At = nil
	if err := json.Unmarshal([]byte(`{"at":"08:15"}`), &v); err != nil || *v.At != NewClockTime(8, 15) {
		t.Fatalf("unmarshal: %v %v", err, v.At)
	}
}

func TestDateAtAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2026-03-08 is the US spring-forward date.
	d := Date{Year: 2026, Month: time.March, Day: 8}
	start := d.At(NewClockTime(9, 0), loc)
	end := d.At(NewClockTime(17, 0), loc)
	if start.Hour() != 9 || end.Hour() != 17 {
		t.Fatalf("wall clock not preserved: %s %s", start, end)
	}
	if got := end.Sub(start); got != 8*time.Hour {
		t.Fatalf("expected 8h between 09:00 and 17:00, got %s", got)
	}
	midnight := d.At(0, loc)
	if got := start.Sub(midnight); got != 8*time.Hour {
		t.Fatalf("expected the skipped hour to shorten the morning, got %s", got)
	}
}

func TestDateArithmetic(t *testing.T) {
	d, err := ParseDate("2026-02-27")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got := d.AddDays(2).String(); got != "2026-03-01" {
		t.Fatalf("AddDays = %s", got)
	}
	if d.Weekday() != time.Friday {
		t.Fatalf("weekday = %s", d.Weekday())
	}
	if n := d.DaysUntil(d.AddDays(30)); n != 30 {
		t.Fatalf("DaysUntil = %d", n)
	}
	if !d.Before(d.AddDays(1)) || d.After(d.AddDays(1)) || d.Compare(d) != 0 {
		t.Fatal("comparison broken")
	}
	if _, err := ParseDate("2026-2-1"); err == nil {
		t.Fatal("expected error for non-padded date")
	}
}

func TestValidationErrorIsInvalidRequest(t *testing.T) {
	err := fmt.Errorf("booking: %w", Invalid("requester.email", "not an address"))
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatal("expected errors.Is ErrInvalidRequest")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "requester.email" {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if Kind(err) != "invalid_request" {
		t.Fatalf("unexpected kind %q", Kind(err))
	}
}

func TestKind(t *testing.T) {
	cases := map[error]string{
		ErrPastSlot:                                   "past_slot",
		fmt.Errorf("x: %w", ErrSlotConflict):          "slot_conflict",
		fmt.Errorf("x: %w", ErrBusySourceUnavailable): "busy_source_unavailable",
		ErrCalendarService:                            "calendar_service_error",
		errors.New("boom"):                            "internal",
	}
	for err, want := range cases {
		if got := Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestSlotKeyIgnoresLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	a := Slot{Start: time.Date(2026, 1, 5, 10, 0, 0, 0, tokyo), End: time.Date(2026, 1, 5, 11, 0, 0, 0, tokyo)}
	b := Slot{Start: a.Start.UTC(), End: a.End.UTC()}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %s vs %s", a.Key(), b.Key())
	}
}
