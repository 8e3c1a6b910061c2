package storage

import (
	"context"

	"github.com/tutorhub/bookingengine/libs/db"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/notify"
)

type NotificationLog struct {
	pool *db.Pool
}

func NewNotificationLog(pool *db.Pool) *NotificationLog {
	return &NotificationLog{pool: pool}
}

func (r *NotificationLog) RecordNotification(ctx context.Context, e notify.LogEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_log (message_id, booking_id, kind, recipient, status, error, traceparent, tracestate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.MessageID, e.BookingID, string(e.Kind), e.Recipient, e.Status, e.Error, e.Traceparent, e.Tracestate, e.At)
	return err
}
