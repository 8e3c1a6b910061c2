package model

import "time"

// Slot is a candidate or booked appointment window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s Slot) Duration() time.Duration { return s.End.Sub(s.Start) }

// Key identifies a slot independent of the location it was expressed in.
func (s Slot) Key() string {
	return s.Start.UTC().Format(time.RFC3339) + "/" + s.End.UTC().Format(time.RFC3339)
}

// Requester is the student asking for a lesson.
type Requester struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Message string `json:"message,omitempty"`
}

// Booking is a committed lesson; CalendarEventID is set once the calendar of
// record has accepted the event.
type Booking struct {
	ID               string    `json:"id"`
	Requester        Requester `json:"requester"`
	Slot             Slot      `json:"slot"`
	CalendarEventID  string    `json:"calendar_event_id"`
	MeetingReference string    `json:"meeting_reference,omitempty"`
	EventLink        string    `json:"event_link,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
