package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrPastSlot              = errors.New("slot is in the past")
	ErrBusySourceUnavailable = errors.New("busy interval source unavailable")
	ErrSlotConflict          = errors.New("slot conflicts with existing busy time")
	ErrCalendarService       = errors.New("calendar service error")
	ErrNotificationDispatch  = errors.New("notification dispatch failed")
	ErrNotFound              = errors.New("not found")
)

// ValidationError names the offending input. It matches ErrInvalidRequest
// under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return "invalid " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// Kind maps an engine error onto the stable error code used in API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrPastSlot):
		return "past_slot"
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrBusySourceUnavailable):
		return "busy_source_unavailable"
	case errors.Is(err, ErrCalendarService):
		return "calendar_service_error"
	case errors.Is(err, ErrNotificationDispatch):
		return "notification_dispatch_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
