package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tutorhub/bookingengine/libs/httpx"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

const (
	defaultExceptionDays = 90
	defaultBookingDays   = 30
	defaultBookingLimit  = 100
	maxBookingLimit      = 500
)

// PolicyAdmin is the validated write path for availability settings.
type PolicyAdmin interface {
	WeeklyTemplate(ctx context.Context) ([]model.WeeklyTemplate, int64, error)
	ReplaceWeeklyTemplate(ctx context.Context, rows []model.WeeklyTemplate) (int64, error)
	ListExceptions(ctx context.Context, from, to model.Date) ([]model.DateException, error)
	CreateException(ctx context.Context, e model.DateException) (model.DateException, error)
	DeleteException(ctx context.Context, id string) error
}

type BookingLister interface {
	ListBookings(ctx context.Context, from, to time.Time, limit int) ([]model.Booking, error)
}

type AdminHandler struct {
	policy   PolicyAdmin
	bookings BookingLister
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

func NewAdminHandler(policy PolicyAdmin, bookings BookingLister, loc *time.Location, now func() time.Time, logger *slog.Logger) *AdminHandler {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &AdminHandler{policy: policy, bookings: bookings, loc: loc, now: now, logger: logger}
}

type templateBody struct {
	Version int64                  `json:"version"`
	Days    []model.WeeklyTemplate `json:"days"`
}

type exceptionRequest struct {
	Date   model.Date       `json:"date"`
	Start  *model.ClockTime `json:"start_time,omitempty"`
	End    *model.ClockTime `json:"end_time,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

func (h *AdminHandler) today() model.Date {
	return model.DateOf(h.now().In(h.loc))
}

func (h *AdminHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	rows, version, err := h.policy.WeeklyTemplate(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if rows == nil {
		rows = []model.WeeklyTemplate{}
	}
	httpx.WriteJSON(w, http.StatusOK, templateBody{Version: version, Days: rows})
}

// PutTemplate replaces the whole weekly template; weekdays left out are closed.
func (h *AdminHandler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Days []model.WeeklyTemplate `json:"days"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		writeError(w, r, h.logger, model.Invalid("body", "%s", err.Error()))
		return
	}
	version, err := h.policy.ReplaceWeeklyTemplate(r.Context(), body.Days)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("admin replaced weekly template", "admin", adminSubject(r.Context()), "version", version)
	httpx.WriteJSON(w, http.StatusOK, templateBody{Version: version, Days: body.Days})
}

func (h *AdminHandler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r, h.today(), defaultExceptionDays)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.policy.ListExceptions(r.Context(), from, to)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.DateException{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"exceptions": list})
}

func (h *AdminHandler) CreateException(w http.ResponseWriter, r *http.Request) {
	var req exceptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, model.Invalid("body", "%s", err.Error()))
		return
	}
	if req.Date.IsZero() {
		writeError(w, r, h.logger, model.Invalid("date", "is required"))
		return
	}
	created, err := h.policy.CreateException(r.Context(), model.DateException{
		Date:   req.Date,
		Start:  req.Start,
		End:    req.End,
		Reason: req.Reason,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("admin created exception", "admin", adminSubject(r.Context()), "id", created.ID)
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *AdminHandler) DeleteException(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := h.policy.DeleteException(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("admin deleted exception", "admin", adminSubject(r.Context()), "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// ListBookings returns ledger rows whose slot starts in [from, to).
func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if h.bookings == nil {
		writeCode(w, http.StatusNotImplemented, "not_implemented", "booking ledger is not configured")
		return
	}
	from, to, err := dateRange(r, h.today(), defaultBookingDays)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit := defaultBookingLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxBookingLimit {
			writeError(w, r, h.logger, model.Invalid("limit", "must be between 1 and %d", maxBookingLimit))
			return
		}
		limit = n
	}
	list, err := h.bookings.ListBookings(r.Context(), from.At(0, h.loc), to.At(0, h.loc), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Booking{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

// dateRange reads from/to query dates; to is exclusive and defaults to
// from plus defDays.
func dateRange(r *http.Request, defFrom model.Date, defDays int) (model.Date, model.Date, error) {
	q := r.URL.Query()
	from := defFrom
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			return model.Date{}, model.Date{}, model.Invalid("from", "must be a YYYY-MM-DD date")
		}
		from = d
	}
	to := from.AddDays(defDays)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			return model.Date{}, model.Date{}, model.Invalid("to", "must be a YYYY-MM-DD date")
		}
		to = d
	}
	if !from.Before(to) {
		return model.Date{}, model.Date{}, model.Invalid("to", "must be after from")
	}
	return from, to, nil
}
