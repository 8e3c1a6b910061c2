package storage

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

func TestPgErrorHelpers(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23P01"}))
	assert.True(t, IsNotFound(fmt.Errorf("select: %w", pgx.ErrNoRows)))
}

func TestMinuteParam(t *testing.T) {
	assert.Nil(t, minuteParam(nil))
	c := model.NewClockTime(13, 30)
	assert.Equal(t, int16(810), *minuteParam(&c))
}
