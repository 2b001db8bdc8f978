package store

import (
	"context"
	"fmt"
)

type quotaStore struct {
	Store
	max int
}

// WithQuota rejects any single write larger than max bytes.
func WithQuota(s Store, max int) Store {
	return &quotaStore{Store: s, max: max}
}

func (q *quotaStore) Put(ctx context.Context, slot string, value []byte) error {
	if len(value) > q.max {
		return fmt.Errorf("%w: slot %s needs %d bytes, quota is %d", ErrQuotaExceeded, slot, len(value), q.max)
	}
	return q.Store.Put(ctx, slot, value)
}
