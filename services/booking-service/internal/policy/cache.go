package policy

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

type templateEntry struct {
	rows    []model.WeeklyTemplate
	version int64
}

// CachedStore keeps recently read policy in a TTL-bounded LRU. Manager purges
// it after local writes; writes made by other replicas become visible once
// entries expire.
type CachedStore struct {
	next       Store
	templates  *expirable.LRU[string, templateEntry]
	exceptions *expirable.LRU[string, []model.DateException]
}

const templateKey = "weekly"

func NewCachedStore(next Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 256
	}
	return &CachedStore{
		next:       next,
		templates:  expirable.NewLRU[string, templateEntry](1, nil, ttl),
		exceptions: expirable.NewLRU[string, []model.DateException](size, nil, ttl),
	}
}

func (c *CachedStore) GetWeeklyTemplate(ctx context.Context) ([]model.WeeklyTemplate, int64, error) {
	if e, ok := c.templates.Get(templateKey); ok {
		return append([]model.WeeklyTemplate(nil), e.rows...), e.version, nil
	}
	rows, version, err := c.next.GetWeeklyTemplate(ctx)
	if err != nil {
		return nil, 0, err
	}
	c.templates.Add(templateKey, templateEntry{rows: append([]model.WeeklyTemplate(nil), rows...), version: version})
	return rows, version, nil
}

func (c *CachedStore) GetExceptions(ctx context.Context, from, to model.Date) ([]model.DateException, error) {
	key := from.String() + "/" + to.String()
	if list, ok := c.exceptions.Get(key); ok {
		return append([]model.DateException(nil), list...), nil
	}
	list, err := c.next.GetExceptions(ctx, from, to)
	if err != nil {
		return nil, err
	}
	c.exceptions.Add(key, append([]model.DateException(nil), list...))
	return list, nil
}

// Purge drops every cached entry.
func (c *CachedStore) Purge() {
	c.templates.Purge()
	c.exceptions.Purge()
}
