package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// apiClient talks to the public booking API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type apiError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	return msg
}

type slotJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type slotsResponse struct {
	Days []struct {
		Date  string     `json:"date"`
		Slots []slotJSON `json:"slots"`
	} `json:"available_slots"`
	Meta struct {
		From          string `json:"from"`
		To            string `json:"to"`
		Timezone      string `json:"timezone"`
		SlotMinutes   int    `json:"slot_minutes"`
		PolicyVersion int64  `json:"policy_version"`
	} `json:"meta"`
}

type requesterJSON struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Message string `json:"message,omitempty"`
}

type bookRequest struct {
	Slot      slotJSON      `json:"slot"`
	Requester requesterJSON `json:"requester"`
}

type bookResponse struct {
	Booking struct {
		ID               string   `json:"id"`
		Slot             slotJSON `json:"slot"`
		CalendarEventID  string   `json:"calendar_event_id"`
		MeetingReference string   `json:"meeting_reference"`
		EventLink        string   `json:"event_link"`
	} `json:"booking"`
	Stage         string `json:"stage"`
	Notifications []struct {
		Kind      string `json:"kind"`
		Recipient string `json:"recipient"`
		Sent      bool   `json:"sent"`
		Error     string `json:"error"`
	} `json:"notifications"`
	Replayed bool `json:"-"`
}

func (c *apiClient) Slots(ctx context.Context, start, end string, days int) (slotsResponse, error) {
	q := url.Values{}
	if start != "" {
		q.Set("start", start)
	}
	if end != "" {
		q.Set("end", end)
	}
	if days > 0 {
		q.Set("days", fmt.Sprint(days))
	}
	endpoint := c.baseURL + "/api/v1/public/slots"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return slotsResponse{}, err
	}
	var out slotsResponse
	_, err = c.do(req, &out)
	return out, err
}

func (c *apiClient) Book(ctx context.Context, body bookRequest, idempotencyKey string) (bookResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return bookResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/public/book", bytes.NewReader(raw))
	if err != nil {
		return bookResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	var out bookResponse
	resp, err := c.do(req, &out)
	if err != nil {
		return bookResponse{}, err
	}
	out.Replayed = resp.Header.Get("Idempotent-Replayed") == "true"
	return out, nil
}

func (c *apiClient) do(req *http.Request, out any) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return resp, apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
