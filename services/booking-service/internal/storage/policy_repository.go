package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tutorhub/bookingengine/libs/db"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

// PolicyRepository is the Postgres policy.Admin.
type PolicyRepository struct {
	pool *db.Pool
}

func NewPolicyRepository(pool *db.Pool) *PolicyRepository {
	return &PolicyRepository{pool: pool}
}

func (r *PolicyRepository) GetWeeklyTemplate(ctx context.Context) ([]model.WeeklyTemplate, int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, start_minute, end_minute, enabled
		FROM availability_templates
		ORDER BY day_of_week
	`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.WeeklyTemplate
	for rows.Next() {
		var day, start, end int16
		var t model.WeeklyTemplate
		if err := rows.Scan(&day, &start, &end, &t.Enabled); err != nil {
			return nil, 0, err
		}
		t.DayOfWeek = time.Weekday(day)
		t.Start = model.ClockTime(start)
		t.End = model.ClockTime(end)
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	var version int64
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM availability_template_versions`).Scan(&version); err != nil {
		return nil, 0, err
	}
	return out, version, nil
}

func (r *PolicyRepository) GetExceptions(ctx context.Context, from, to model.Date) ([]model.DateException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, date, start_minute, end_minute, reason, created_at
		FROM availability_exceptions
		WHERE date >= $1::date AND date < $2::date
		ORDER BY date, start_minute NULLS FIRST
	`, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DateException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ReplaceWeeklyTemplate swaps the whole template in one transaction and
// returns the new configuration version.
func (r *PolicyRepository) ReplaceWeeklyTemplate(ctx context.Context, rows []model.WeeklyTemplate) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `LOCK TABLE availability_templates IN EXCLUSIVE MODE`); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM availability_templates`); err != nil {
		return 0, err
	}
	if len(rows) > 0 {
		src := make([][]any, 0, len(rows))
		for _, t := range rows {
			src = append(src, []any{int16(t.DayOfWeek), int16(t.Start), int16(t.End), t.Enabled})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"availability_templates"},
			[]string{"day_of_week", "start_minute", "end_minute", "enabled"},
			pgx.CopyFromRows(src),
		); err != nil {
			return 0, fmt.Errorf("copy templates: %w", err)
		}
	}

	var version int64
	if err := tx.QueryRow(ctx, `INSERT INTO availability_template_versions DEFAULT VALUES RETURNING version`).Scan(&version); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return version, nil
}

func (r *PolicyRepository) CreateException(ctx context.Context, e model.DateException) (model.DateException, error) {
	start, end := minuteParam(e.Start), minuteParam(e.End)
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_exceptions (date, start_minute, end_minute, reason)
		VALUES ($1::date, $2, $3, $4)
		RETURNING id::text, date, start_minute, end_minute, reason, created_at
	`, e.Date.String(), start, end, e.Reason)
	created, err := scanException(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return model.DateException{}, model.Invalid("start_time", "an exception already starts at this time on %s", e.Date)
		}
		return model.DateException{}, err
	}
	return created, nil
}

func (r *PolicyRepository) DeleteException(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("exception %q: %w", id, model.ErrNotFound)
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_exceptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("exception %q: %w", id, model.ErrNotFound)
	}
	return nil
}

func scanException(row pgx.Row) (model.DateException, error) {
	var (
		e          model.DateException
		date       time.Time
		start, end *int16
	)
	if err := row.Scan(&e.ID, &date, &start, &end, &e.Reason, &e.CreatedAt); err != nil {
		return model.DateException{}, err
	}
	e.Date = model.DateOf(date)
	if start != nil && end != nil {
		s, en := model.ClockTime(*start), model.ClockTime(*end)
		e.Start, e.End = &s, &en
	}
	return e, nil
}

func minuteParam(c *model.ClockTime) *int16 {
	if c == nil {
		return nil
	}
	v := int16(*c)
	return &v
}
