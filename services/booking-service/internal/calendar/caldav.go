package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/interval"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

const productID = "-//tutorhub//booking engine//EN"

type CalDAVConfig struct {
	URL          string
	Username     string
	Password     string
	CalendarPath string
	Location     *time.Location
}

// CalDAV is a Provider for CalDAV servers (iCloud, Fastmail, Nextcloud).
type CalDAV struct {
	client *caldav.Client
	loc    *time.Location
	logger *slog.Logger

	mu   sync.Mutex
	path string
}

func NewCalDAV(cfg CalDAVConfig, logger *slog.Logger) (*CalDAV, error) {
	if cfg.URL == "" {
		return nil, errors.New("caldav: url is required")
	}
	httpClient := webdav.HTTPClientWithBasicAuth(&http.Client{Timeout: 30 * time.Second}, cfg.Username, cfg.Password)
	client, err := caldav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav: create client: %w", err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CalDAV{client: client, loc: loc, logger: logger, path: cfg.CalendarPath}, nil
}

func (c *CalDAV) GetBusyIntervals(ctx context.Context, calendarID string, from, to time.Time) ([]interval.Interval, error) {
	path, err := c.calendarPath(ctx, calendarID)
	if err != nil {
		return nil, fmt.Errorf("caldav: %w: %w", model.ErrBusySourceUnavailable, err)
	}
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{{
				Name:  "VEVENT",
				Props: []string{"UID", "DTSTART", "DTEND", "DURATION", "RRULE", "RDATE", "EXDATE", "STATUS", "TRANSP"},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name:  "VCALENDAR",
			Comps: []caldav.CompFilter{{Name: "VEVENT", Start: from.UTC(), End: to.UTC()}},
		},
	}
	objects, err := c.client.QueryCalendar(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("caldav query: %w: %w", model.ErrBusySourceUnavailable, err)
	}

	window := interval.New(from, to)
	var busy []interval.Interval
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, child := range obj.Data.Children {
			if child.Name != ical.CompEvent {
				continue
			}
			busy = append(busy, c.eventBusy(&ical.Event{Component: child}, window)...)
		}
	}
	return busy, nil
}

// eventBusy returns the occurrences of ev that fall in window. Transparent and
// cancelled events never block time.
func (c *CalDAV) eventBusy(ev *ical.Event, window interval.Interval) []interval.Interval {
	if p := ev.Props.Get(ical.PropTransparency); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return nil
	}
	if p := ev.Props.Get(ical.PropStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return nil
	}
	start, err := ev.DateTimeStart(c.loc)
	if err != nil {
		c.logger.Warn("caldav event without usable DTSTART", "err", err)
		return nil
	}
	end, err := ev.DateTimeEnd(c.loc)
	if err != nil || end.IsZero() {
		if p := ev.Props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
			end = start.AddDate(0, 0, 1)
		} else {
			return nil
		}
	}
	length := end.Sub(start)

	rs, err := ev.RecurrenceSet(c.loc)
	if err != nil {
		c.logger.Warn("caldav recurrence rule ignored", "err", err)
	}
	if rs == nil {
		occ := interval.New(start, end)
		if occ.Overlaps(window) {
			return []interval.Interval{occ}
		}
		return nil
	}
	var out []interval.Interval
	for _, s := range rs.Between(window.Start.Add(-length), window.End, true) {
		occ := interval.New(s, s.Add(length))
		if occ.Overlaps(window) {
			out = append(out, occ)
		}
	}
	return out
}

func (c *CalDAV) CreateEvent(ctx context.Context, calendarID string, req EventRequest) (EventRef, error) {
	path, err := c.calendarPath(ctx, calendarID)
	if err != nil {
		return EventRef{}, fmt.Errorf("caldav: %w: %w", model.ErrCalendarService, err)
	}
	uid := EventID(req.ID)
	objPath := strings.TrimSuffix(path, "/") + "/" + uid + ".ics"
	if _, err := c.client.PutCalendarObject(ctx, objPath, toICalendar(uid, req)); err != nil {
		return EventRef{}, fmt.Errorf("caldav put: %w: %w", model.ErrCalendarService, err)
	}
	return EventRef{ID: uid, HTMLLink: objPath}, nil
}

func toICalendar(uid string, req EventRequest) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, uid)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, req.Start.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, req.End.UTC())
	ev.Props.SetText(ical.PropSummary, req.Summary)
	if req.Description != "" {
		ev.Props.SetText(ical.PropDescription, req.Description)
	}
	for _, a := range req.Attendees {
		if a.Email == "" {
			continue
		}
		name := ical.PropAttendee
		if a.Organizer {
			name = ical.PropOrganizer
		}
		p := ical.NewProp(name)
		p.Value = "mailto:" + a.Email
		if a.Name != "" {
			p.Params.Set(ical.ParamCommonName, a.Name)
		}
		ev.Props.Add(p)
	}
	cal.Children = append(cal.Children, ev.Component)
	return cal
}

func (c *CalDAV) calendarPath(ctx context.Context, calendarID string) (string, error) {
	if strings.HasPrefix(calendarID, "/") {
		return calendarID, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "" {
		return c.path, nil
	}
	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home set: %w", err)
	}
	cals, err := c.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", errors.New("no calendars found")
	}
	c.path = cals[0].Path
	c.logger.Info("caldav calendar discovered", "path", c.path, "name", cals[0].Name)
	return c.path, nil
}
