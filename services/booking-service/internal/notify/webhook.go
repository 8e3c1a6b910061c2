package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Webhook posts rendered notifications as JSON to an HTTP endpoint.
type Webhook struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhook(url, token string) *Webhook {
	return &Webhook{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type webhookPayload struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	To        Recipient `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	BookingID string    `json:"booking_id"`
}

func (s *Webhook) Send(ctx context.Context, msg Message) error {
	if s.url == "" {
		return dispatchErr("webhook", errors.New("webhook url not configured"))
	}
	subject, body, err := Render(msg)
	if err != nil {
		return dispatchErr("webhook", err)
	}
	raw, err := json.Marshal(webhookPayload{
		ID:        msg.ID,
		Kind:      msg.Kind,
		To:        msg.Recipient,
		Subject:   subject,
		Body:      body,
		BookingID: msg.Booking.ID,
	})
	if err != nil {
		return dispatchErr("webhook", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return dispatchErr("webhook", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return dispatchErr("webhook", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dispatchErr("webhook", fmt.Errorf("returned status %d", resp.StatusCode))
	}
	return nil
}
