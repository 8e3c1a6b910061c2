package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tutorhub/bookingengine/libs/httpx"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/availability"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/booking"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/storage"
)

const maxIdempotencyKeyLen = 200

// SlotFinder lists bookable slots.
type SlotFinder interface {
	Slots(ctx context.Context, from, to model.Date) (availability.Result, error)
	DefaultRange() (model.Date, model.Date)
}

type Booker interface {
	Book(ctx context.Context, req booking.Request) (booking.Result, error)
}

// Idempotency stores the first final response per Idempotency-Key.
type Idempotency interface {
	Idempotent(ctx context.Context, key, requestHash string, fn storage.IdempotentFunc) (storage.StoredResponse, bool, error)
}

type BookingHandler struct {
	slots  SlotFinder
	booker Booker
	idem   Idempotency
	logger *slog.Logger
}

func NewBookingHandler(slots SlotFinder, booker Booker, idem Idempotency, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{slots: slots, booker: booker, idem: idem, logger: logger}
}

type bookResponse struct {
	Booking       model.Booking                 `json:"booking"`
	Stage         booking.Stage                 `json:"stage"`
	Notifications []booking.NotificationOutcome `json:"notifications"`
}

// Slots serves GET /api/v1/public/slots. start and end are dates in the
// business timezone and end is exclusive. Without end, days sets the span.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.slots.Slots(r.Context(), from, to)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *BookingHandler) parseRange(r *http.Request) (model.Date, model.Date, error) {
	q := r.URL.Query()
	defFrom, defTo := h.slots.DefaultRange()
	from := defFrom
	if raw := strings.TrimSpace(q.Get("start")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			return model.Date{}, model.Date{}, model.Invalid("start", "must be a YYYY-MM-DD date")
		}
		from = d
	}
	if raw := strings.TrimSpace(q.Get("end")); raw != "" {
		to, err := model.ParseDate(raw)
		if err != nil {
			return model.Date{}, model.Date{}, model.Invalid("end", "must be a YYYY-MM-DD date")
		}
		return from, to, nil
	}
	days := defFrom.DaysUntil(defTo)
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return model.Date{}, model.Date{}, model.Invalid("days", "must be a positive integer")
		}
		days = n
	}
	return from, from.AddDays(days), nil
}

// Book serves POST /api/v1/public/book. With an Idempotency-Key header the
// first final response for that key is stored and replayed; dependency
// failures (5xx) are not stored so the client can retry with the same key.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, h.logger, model.Invalid("body", "request body too large"))
			return
		}
		writeError(w, r, h.logger, model.Invalid("body", "could not read request body"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var req booking.Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, model.Invalid("body", "%s", err.Error()))
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" || h.idem == nil {
		resp, _ := h.run(r.Context(), req)
		writeStored(w, resp)
		return
	}
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, r, h.logger, model.Invalid("Idempotency-Key", "must be at most %d characters", maxIdempotencyKeyLen))
		return
	}

	sum := sha256.Sum256(raw)
	resp, replayed, err := h.idem.Idempotent(r.Context(), key, hex.EncodeToString(sum[:]), func(ctx context.Context) (storage.StoredResponse, bool) {
		return h.run(ctx, req)
	})
	if err != nil {
		if errors.Is(err, storage.ErrIdempotencyMismatch) {
			writeCode(w, http.StatusUnprocessableEntity, "idempotency_key_reused", err.Error())
			return
		}
		if resp.StatusCode == 0 {
			h.logger.Error("idempotency store failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
			writeCode(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		// The booking went through but its key could not be stored; the
		// response is still the truth for this request.
		h.logger.Error("idempotency finalize failed", "err", err, "booking_id", resp.BookingID)
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeStored(w, resp)
}

func (h *BookingHandler) run(ctx context.Context, req booking.Request) (storage.StoredResponse, bool) {
	res, err := h.booker.Book(ctx, req)
	if err != nil {
		status, body := errorResponse(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("booking failed", "err", err, "stage", string(res.Stage), "kind", model.Kind(err))
		}
		return storage.StoredResponse{StatusCode: status, Body: body}, status < http.StatusInternalServerError
	}
	notifications := res.Notifications
	if notifications == nil {
		notifications = []booking.NotificationOutcome{}
	}
	body, err := json.Marshal(bookResponse{Booking: res.Booking, Stage: res.Stage, Notifications: notifications})
	if err != nil {
		h.logger.Error("failed to encode booking response", "err", err, "booking_id", res.Booking.ID)
		body = []byte(`{"booking":{"id":"` + res.Booking.ID + `"}}`)
	}
	return storage.StoredResponse{BookingID: res.Booking.ID, StatusCode: http.StatusCreated, Body: body}, true
}

func writeStored(w http.ResponseWriter, resp storage.StoredResponse) {
	httpx.WriteRawJSON(w, resp.StatusCode, resp.Body)
}
