package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

func clock(s string) *model.ClockTime {
	c, err := model.ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return &c
}

func date(s string) model.Date {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestValidateTemplates(t *testing.T) {
	ok := []model.WeeklyTemplate{
		{DayOfWeek: time.Monday, Start: *clock("09:00"), End: *clock("17:00"), Enabled: true},
		{DayOfWeek: time.Sunday, Start: *clock("17:00"), End: *clock("09:00"), Enabled: false},
	}
	require.NoError(t, ValidateTemplates(ok))

	dup := append(ok, model.WeeklyTemplate{DayOfWeek: time.Monday, Start: *clock("10:00"), End: *clock("11:00"), Enabled: true})
	assert.ErrorIs(t, ValidateTemplates(dup), model.ErrInvalidRequest)

	inverted := []model.WeeklyTemplate{{DayOfWeek: time.Tuesday, Start: *clock("12:00"), End: *clock("12:00"), Enabled: true}}
	assert.ErrorIs(t, ValidateTemplates(inverted), model.ErrInvalidRequest)

	badDay := []model.WeeklyTemplate{{DayOfWeek: 7, Start: *clock("09:00"), End: *clock("10:00"), Enabled: true}}
	var ve *model.ValidationError
	require.ErrorAs(t, ValidateTemplates(badDay), &ve)
	assert.Equal(t, "templates[0].day_of_week", ve.Field)
}

func TestValidateException(t *testing.T) {
	d := date("2026-04-06")
	fullDay := model.DateException{ID: "a", Date: d}
	lunch := model.DateException{ID: "b", Date: d, Start: clock("12:00"), End: clock("13:00")}

	assert.NoError(t, ValidateException(lunch, nil))
	assert.NoError(t, ValidateException(fullDay, nil))

	cases := map[string]struct {
		e        model.DateException
		existing []model.DateException
	}{
		"half specified":         {model.DateException{Date: d, Start: clock("12:00")}, nil},
		"inverted":               {model.DateException{Date: d, Start: clock("13:00"), End: clock("12:00")}, nil},
		"missing date":           {model.DateException{}, nil},
		"second full day":        {fullDay, []model.DateException{fullDay}},
		"partial on closed date": {lunch, []model.DateException{fullDay}},
		"full day over partial":  {fullDay, []model.DateException{lunch}},
		"same start":             {model.DateException{Date: d, Start: clock("12:00"), End: clock("12:30")}, []model.DateException{lunch}},
		"overlapping partial":    {model.DateException{Date: d, Start: clock("12:30"), End: clock("14:00")}, []model.DateException{lunch}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateException(tc.e, tc.existing), model.ErrInvalidRequest)
		})
	}

	adjacent := model.DateException{Date: d, Start: clock("13:00"), End: clock("14:00")}
	assert.NoError(t, ValidateException(adjacent, []model.DateException{lunch}))
	otherDay := model.DateException{Date: d.AddDays(1)}
	assert.NoError(t, ValidateException(otherDay, []model.DateException{fullDay}))
}

func TestSnapshotOrdersExceptions(t *testing.T) {
	d := date("2026-04-06")
	snap := NewSnapshot(3, d, d.AddDays(7),
		[]model.WeeklyTemplate{
			{DayOfWeek: time.Monday, Start: *clock("09:00"), End: *clock("17:00"), Enabled: true},
			{DayOfWeek: time.Tuesday, Start: *clock("09:00"), End: *clock("17:00"), Enabled: false},
		},
		[]model.DateException{
			{ID: "late", Date: d, Start: clock("15:00"), End: clock("16:00")},
			{ID: "early", Date: d, Start: clock("09:00"), End: clock("10:00")},
			{ID: "full", Date: d},
		},
	)
	assert.Equal(t, int64(3), snap.Version)

	_, ok := snap.TemplateFor(time.Monday)
	assert.True(t, ok)
	_, ok = snap.TemplateFor(time.Tuesday)
	assert.False(t, ok, "disabled template is treated as absent")
	_, ok = snap.TemplateFor(time.Wednesday)
	assert.False(t, ok)

	var ids []string
	for _, e := range snap.ExceptionsOn(d) {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"full", "early", "late"}, ids)
	assert.Empty(t, snap.ExceptionsOn(d.AddDays(1)))
}

type countingStore struct {
	Store
	templateReads  int
	exceptionReads int
}

func (c *countingStore) GetWeeklyTemplate(ctx context.Context) ([]model.WeeklyTemplate, int64, error) {
	c.templateReads++
	return c.Store.GetWeeklyTemplate(ctx)
}

func (c *countingStore) GetExceptions(ctx context.Context, from, to model.Date) ([]model.DateException, error) {
	c.exceptionReads++
	return c.Store.GetExceptions(ctx, from, to)
}

func TestCachedStoreServesFromCacheUntilPurged(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory([]model.WeeklyTemplate{{DayOfWeek: time.Monday, Start: *clock("09:00"), End: *clock("17:00"), Enabled: true}})
	counting := &countingStore{Store: mem}
	cache := NewCachedStore(counting, 16, time.Minute)
	mgr := NewManager(mem, cache, discard())

	from, to := date("2026-04-06"), date("2026-04-13")
	for i := 0; i < 3; i++ {
		_, err := Load(ctx, cache, from, to)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, counting.templateReads)
	assert.Equal(t, 1, counting.exceptionReads)

	_, err := mgr.CreateException(ctx, model.DateException{Date: from, Reason: "  holiday "})
	require.NoError(t, err)

	snap, err := Load(ctx, cache, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, counting.exceptionReads)
	require.Len(t, snap.ExceptionsOn(from), 1)
	assert.Equal(t, "holiday", snap.ExceptionsOn(from)[0].Reason)
}

func TestCachedStoreExpires(t *testing.T) {
	mem := NewMemory(nil)
	counting := &countingStore{Store: mem}
	cache := NewCachedStore(counting, 16, 20*time.Millisecond)

	_, _, err := cache.GetWeeklyTemplate(context.Background())
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, _, err = cache.GetWeeklyTemplate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counting.templateReads)
}

func TestManagerTemplateVersioning(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(nil)
	mgr := NewManager(mem, nil, discard())

	v1, err := mgr.ReplaceWeeklyTemplate(ctx, []model.WeeklyTemplate{{DayOfWeek: time.Monday, Start: *clock("10:00"), End: *clock("18:00"), Enabled: true}})
	require.NoError(t, err)
	v2, err := mgr.ReplaceWeeklyTemplate(ctx, nil)
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	_, err = mgr.ReplaceWeeklyTemplate(ctx, []model.WeeklyTemplate{{DayOfWeek: time.Monday, Start: *clock("18:00"), End: *clock("10:00"), Enabled: true}})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
	rows, v, err := mgr.WeeklyTemplate(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, v2, v)
}

func TestManagerExceptionLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(NewMemory(nil), nil, discard())
	d := date("2026-05-01")

	lunch, err := mgr.CreateException(ctx, model.DateException{Date: d, Start: clock("12:00"), End: clock("13:00")})
	require.NoError(t, err)
	require.NotEmpty(t, lunch.ID)

	_, err = mgr.CreateException(ctx, model.DateException{Date: d})
	assert.ErrorIs(t, err, model.ErrInvalidRequest, "full day over existing partial")

	_, err = mgr.CreateException(ctx, model.DateException{Date: d.AddDays(-3)})
	require.NoError(t, err)

	list, err := mgr.ListExceptions(ctx, d.AddDays(-7), d.AddDays(7))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, d.AddDays(-3), list[0].Date)

	require.NoError(t, mgr.DeleteException(ctx, lunch.ID))
	err = mgr.DeleteException(ctx, lunch.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = mgr.ListExceptions(ctx, d, d)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}
