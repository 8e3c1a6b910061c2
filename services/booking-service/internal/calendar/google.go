package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/interval"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
	"golang.org/x/oauth2"
)

const (
	defaultGoogleBaseURL = "https://www.googleapis.com/calendar/v3"
	googleTokenURL       = "https://oauth2.googleapis.com/token"
)

// GoogleConfig holds the OAuth client and the refresh token of the calendar
// owner.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	BaseURL      string
	TokenURL     string
	// Reminders are minutes before start; email for a day or more ahead,
	// popup otherwise.
	Reminders []int
}

// Google is a Provider backed by the Google Calendar REST API.
type Google struct {
	client    *http.Client
	baseURL   string
	reminders []int
	logger    *slog.Logger
}

func NewGoogle(ctx context.Context, cfg GoogleConfig, logger *slog.Logger) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("google calendar: client id, secret and refresh token are required")
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
	ts := oc.TokenSource(context.WithoutCancel(ctx), &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return NewGoogleWithTokenSource(ts, cfg.BaseURL, cfg.Reminders, logger), nil
}

// NewGoogleWithTokenSource is used when the token source is managed elsewhere.
func NewGoogleWithTokenSource(ts oauth2.TokenSource, baseURL string, reminders []int, logger *slog.Logger) *Google {
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{
		client: &http.Client{
			Transport: &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, ts), Base: http.DefaultTransport},
		},
		baseURL:   baseURL,
		reminders: reminders,
		logger:    logger,
	}
}

type freeBusyRequest struct {
	TimeMin string         `json:"timeMin"`
	TimeMax string         `json:"timeMax"`
	Items   []freeBusyItem `json:"items"`
}

type freeBusyItem struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"busy"`
		Errors []struct {
			Domain string `json:"domain"`
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"calendars"`
}

func (g *Google) GetBusyIntervals(ctx context.Context, calendarID string, from, to time.Time) ([]interval.Interval, error) {
	body, err := json.Marshal(freeBusyRequest{
		TimeMin: from.UTC().Format(time.RFC3339),
		TimeMax: to.UTC().Format(time.RFC3339),
		Items:   []freeBusyItem{{ID: calendarID}},
	})
	if err != nil {
		return nil, err
	}

	var out freeBusyResponse
	if err := g.do(ctx, http.MethodPost, g.baseURL+"/freeBusy", body, &out); err != nil {
		return nil, fmt.Errorf("google freebusy: %w: %w", model.ErrBusySourceUnavailable, err)
	}
	cal, ok := out.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("google freebusy: %w: calendar %q missing from response", model.ErrBusySourceUnavailable, calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("google freebusy: %w: %s/%s", model.ErrBusySourceUnavailable, cal.Errors[0].Domain, cal.Errors[0].Reason)
	}

	busy := make([]interval.Interval, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		busy = append(busy, interval.New(b.Start, b.End))
	}
	return busy, nil
}

type googleDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type googleAttendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	Organizer   bool   `json:"organizer,omitempty"`
}

type googleReminder struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type googleEvent struct {
	ID          string           `json:"id,omitempty"`
	Summary     string           `json:"summary"`
	Description string           `json:"description,omitempty"`
	Start       googleDateTime   `json:"start"`
	End         googleDateTime   `json:"end"`
	Attendees   []googleAttendee `json:"attendees,omitempty"`
	Reminders   struct {
		UseDefault bool             `json:"useDefault"`
		Overrides  []googleReminder `json:"overrides,omitempty"`
	} `json:"reminders"`
	ConferenceData *googleConference `json:"conferenceData,omitempty"`
}

type googleConference struct {
	CreateRequest struct {
		RequestID             string `json:"requestId"`
		ConferenceSolutionKey struct {
			Type string `json:"type"`
		} `json:"conferenceSolutionKey"`
	} `json:"createRequest"`
}

type googleCreated struct {
	ID             string `json:"id"`
	HTMLLink       string `json:"htmlLink"`
	HangoutLink    string `json:"hangoutLink"`
	ConferenceData struct {
		EntryPoints []struct {
			EntryPointType string `json:"entryPointType"`
			URI            string `json:"uri"`
		} `json:"entryPoints"`
	} `json:"conferenceData"`
}

func (g *Google) CreateEvent(ctx context.Context, calendarID string, req EventRequest) (EventRef, error) {
	body, err := json.Marshal(g.toGoogleEvent(req))
	if err != nil {
		return EventRef{}, err
	}

	q := url.Values{}
	q.Set("sendUpdates", "all")
	if req.RequestMeeting {
		q.Set("conferenceDataVersion", "1")
	}
	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", g.baseURL, url.PathEscape(calendarID), q.Encode())

	var out googleCreated
	if err := g.do(ctx, http.MethodPost, endpoint, body, &out); err != nil {
		return EventRef{}, fmt.Errorf("google events insert: %w: %w", model.ErrCalendarService, err)
	}

	ref := EventRef{ID: out.ID, HTMLLink: out.HTMLLink, MeetingReference: out.HangoutLink}
	for _, ep := range out.ConferenceData.EntryPoints {
		if ep.EntryPointType == "video" && ep.URI != "" {
			ref.MeetingReference = ep.URI
			break
		}
	}
	g.logger.Debug("google event created", "calendar_id", calendarID, "event_id", ref.ID, "has_meeting", ref.MeetingReference != "")
	return ref, nil
}

func (g *Google) toGoogleEvent(req EventRequest) googleEvent {
	ev := googleEvent{
		ID:          EventID(req.ID),
		Summary:     req.Summary,
		Description: req.Description,
		Start:       googleDateTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: req.Timezone},
		End:         googleDateTime{DateTime: req.End.Format(time.RFC3339), TimeZone: req.Timezone},
	}
	for _, a := range req.Attendees {
		if a.Email == "" {
			continue
		}
		ev.Attendees = append(ev.Attendees, googleAttendee{Email: a.Email, DisplayName: a.Name, Organizer: a.Organizer})
	}
	for _, minutes := range g.reminders {
		if minutes <= 0 {
			continue
		}
		method := "popup"
		if minutes >= 24*60 {
			method = "email"
		}
		ev.Reminders.Overrides = append(ev.Reminders.Overrides, googleReminder{Method: method, Minutes: minutes})
	}
	ev.Reminders.UseDefault = len(ev.Reminders.Overrides) == 0
	if req.RequestMeeting {
		ev.ConferenceData = &googleConference{}
		ev.ConferenceData.CreateRequest.RequestID = req.ID
		ev.ConferenceData.CreateRequest.ConferenceSolutionKey.Type = "hangoutsMeet"
	}
	return ev
}

func (g *Google) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return fmt.Errorf("status=%d body=%s", resp.StatusCode, bytes.TrimSpace(body))
}
