package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tutorhub/bookingengine/libs/httpx"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrPastSlot):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrSlotConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrBusySourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrCalendarService):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse renders err as the status and JSON body sent to clients.
// Internal errors never leak their message.
func errorResponse(err error) (int, []byte) {
	status := statusFor(err)
	body := errorBody{Error: model.Kind(err), Message: err.Error()}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
		body.Message = verr.Reason
	}
	if status == http.StatusInternalServerError {
		body.Message = "internal error"
	}
	raw, mErr := json.Marshal(body)
	if mErr != nil {
		return http.StatusInternalServerError, []byte(`{"error":"internal","message":"internal error"}`)
	}
	return status, raw
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "err", err, "status", status, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
	}
	httpx.WriteRawJSON(w, status, body)
}

func writeCode(w http.ResponseWriter, status int, code, message string) {
	httpx.WriteJSON(w, status, errorBody{Error: code, Message: message})
}
