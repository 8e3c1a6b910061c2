package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tutorhub/bookingengine/libs/db"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

// ErrIdempotencyMismatch means the key was first used for a different request body.
var ErrIdempotencyMismatch = errors.New("idempotency key reused with a different request")

// StoredResponse is what an idempotent request replays.
type StoredResponse struct {
	BookingID  string
	StatusCode int
	Body       []byte
}

// IdempotentFunc runs the request once. When final is false the outcome is
// not stored, so the client may retry with the same key.
type IdempotentFunc func(ctx context.Context) (resp StoredResponse, final bool)

type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	IdempotencyKey  string
	RequestHash     string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

// Idempotent runs fn at most once per finished key. The key row stays
// locked while fn runs, so a concurrent duplicate waits and then replays.
func (r *BookingRepository) Idempotent(ctx context.Context, key, requestHash string, fn IdempotentFunc) (StoredResponse, bool, error) {
	// The transaction outlives a client disconnect so a committed booking
	// is always finalized.
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	tx, err := r.pool.Begin(txCtx)
	if err != nil {
		return StoredResponse{}, false, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	rec, err := r.LockIdempotencyKey(txCtx, tx, key, requestHash)
	if err != nil {
		return StoredResponse{}, false, err
	}
	if rec.RequestHash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyMismatch
	}
	if rec.StatusCode > 0 {
		return StoredResponse{BookingID: rec.BookingID, StatusCode: rec.StatusCode, Body: rec.ResponsePayload}, true, nil
	}

	resp, final := fn(ctx)
	if final {
		if err := r.FinalizeIdempotency(txCtx, tx, key, resp); err != nil {
			return resp, false, err
		}
	}
	if err := tx.Commit(txCtx); err != nil {
		return resp, false, err
	}
	return resp, false, nil
}

func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key, requestHash string) (IdempotencyRecord, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key, request_hash)
		VALUES ($1, $2)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key, requestHash)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	return r.selectIdempotencyForUpdate(ctx, tx, key)
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key string, resp StoredResponse) error {
	var bookingID *string
	if resp.BookingID != "" {
		bookingID = &resp.BookingID
	}
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $2,
			status_code = $3,
			response_payload = $4,
			updated_at = now()
		WHERE idempotency_key = $1
	`, key, bookingID, resp.StatusCode, resp.Body)
	return err
}

// RecordBooking writes a committed booking to the ledger. Recording the same
// booking twice is a no-op.
func (r *BookingRepository) RecordBooking(ctx context.Context, b model.Booking) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bookings
			(id, requester_name, requester_email, requester_phone, requester_company, requester_message,
			 start_time, end_time, calendar_event_id, meeting_reference, event_link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, b.ID, b.Requester.Name, b.Requester.Email, b.Requester.Phone, b.Requester.Company, b.Requester.Message,
		b.Slot.Start, b.Slot.End, b.CalendarEventID, b.MeetingReference, b.EventLink, b.CreatedAt)
	return err
}

// ListBookings returns bookings starting in [from, to), earliest first.
func (r *BookingRepository) ListBookings(ctx context.Context, from, to time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, requester_name, requester_email, requester_phone, requester_company, requester_message,
			start_time, end_time, calendar_event_id, meeting_reference, event_link, created_at
		FROM bookings
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time ASC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(
			&b.ID,
			&b.Requester.Name,
			&b.Requester.Email,
			&b.Requester.Phone,
			&b.Requester.Company,
			&b.Requester.Message,
			&b.Slot.Start,
			&b.Slot.End,
			&b.CalendarEventID,
			&b.MeetingReference,
			&b.EventLink,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT idempotency_key,
			request_hash,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(
		&rec.IdempotencyKey,
		&rec.RequestHash,
		&rec.BookingID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
