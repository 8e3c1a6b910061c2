package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

type view struct {
	Message
	Date, Start, End, Timezone string
}

type templates struct {
	subject *template.Template
	body    *template.Template
}

var byKind = map[Kind]templates{
	KindBookingConfirmation: {
		subject: template.Must(template.New("subject").Parse(`Your lesson with {{.BusinessName}} is confirmed`)),
		body: template.Must(template.New("body").Parse(`Hi {{.Booking.Requester.Name}},

Your lesson is booked for {{.Date}}, {{.Start}}-{{.End}} ({{.Timezone}}).
{{- if .Booking.MeetingReference}}

Join online: {{.Booking.MeetingReference}}
{{- end}}

A calendar invitation has been sent to {{.Booking.Requester.Email}}.

Booking reference: {{.Booking.ID}}

{{.BusinessName}}
`)),
	},
	KindAdminNewBooking: {
		subject: template.Must(template.New("subject").Parse(`New booking: {{.Booking.Requester.Name}} on {{.Date}} {{.Start}}`)),
		body: template.Must(template.New("body").Parse(`New lesson booked.

When:    {{.Date}}, {{.Start}}-{{.End}} ({{.Timezone}})
Name:    {{.Booking.Requester.Name}}
Email:   {{.Booking.Requester.Email}}
{{- with .Booking.Requester.Phone}}
Phone:   {{.}}
{{- end}}
{{- with .Booking.Requester.Company}}
Company: {{.}}
{{- end}}
{{- with .Booking.Requester.Message}}

Message:
{{.}}
{{- end}}

Calendar event: {{.Booking.CalendarEventID}}
{{- with .Booking.EventLink}}
Link: {{.}}
{{- end}}
{{- with .Booking.MeetingReference}}
Meeting: {{.}}
{{- end}}
Booking: {{.Booking.ID}}
`)),
	},
}

// Render builds the subject and plain-text body for msg.
func Render(msg Message) (string, string, error) {
	t, ok := byKind[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
	loc := msg.Location
	if loc == nil {
		loc = time.UTC
	}
	start := msg.Booking.Slot.Start.In(loc)
	v := view{
		Message:  msg,
		Date:     start.Format("Mon 2 Jan 2006"),
		Start:    start.Format("15:04"),
		End:      msg.Booking.Slot.End.In(loc).Format("15:04"),
		Timezone: loc.String(),
	}
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, v); err != nil {
		return "", "", err
	}
	if err := t.body.Execute(&body, v); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}
