// Package calendar talks to the external calendar of record: it reads busy
// time and creates lesson events.
package calendar

import (
	"context"
	"strings"
	"time"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/interval"
)

// BusySource returns the busy time of a calendar over [from, to). Transport,
// auth and timeout failures wrap model.ErrBusySourceUnavailable. Returned
// intervals may overlap or repeat.
type BusySource interface {
	GetBusyIntervals(ctx context.Context, calendarID string, from, to time.Time) ([]interval.Interval, error)
}

// EventSink creates calendar events. Failures wrap model.ErrCalendarService.
// Calls are not idempotent, so callers must not retry blindly.
type EventSink interface {
	CreateEvent(ctx context.Context, calendarID string, req EventRequest) (EventRef, error)
}

// Provider is a calendar that can do both.
type Provider interface {
	BusySource
	EventSink
}

type Attendee struct {
	Email     string
	Name      string
	Organizer bool
}

// EventRequest describes the event to create. ID is the booking id and is
// used to derive provider-side identifiers.
type EventRequest struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	Attendees   []Attendee
	// RequestMeeting asks the provider to attach a video meeting when it can.
	RequestMeeting bool
}

// EventRef is what the provider assigned to a created event.
type EventRef struct {
	ID               string
	MeetingReference string
	HTMLLink         string
}

// EventID derives a provider event id from a booking id. Google restricts ids
// to lowercase base32hex characters, which a dash-free UUID satisfies.
func EventID(bookingID string) string {
	return strings.ToLower(strings.ReplaceAll(bookingID, "-", ""))
}
