// Package store persists named slots of bytes, the way a browser's local
// storage would: one value per key, a size quota, nothing else.
package store

import (
	"context"
	"errors"
	"fmt"
)

const (
	// SaveSlot holds the single saved session.
	SaveSlot = "mythicPathsSave"
	// InitialSceneSlot caches the opening scene image across sessions.
	InitialSceneSlot = "mythic_init_image"
)

// DefaultQuota matches the common 5 MiB local storage budget.
const DefaultQuota = 5 << 20

var (
	ErrNotFound      = errors.New("slot not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Store reads and writes slots.
type Store interface {
	Get(ctx context.Context, slot string) ([]byte, error)
	Put(ctx context.Context, slot string, value []byte) error
	Delete(ctx context.Context, slot string) error
	Close() error
}

// Open builds a store for driver ("memory", "file" or "sqlite") at path and
// applies quota when it is positive.
func Open(driver, path string, quota int) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "memory", "":
		s = NewMemory()
	case "file":
		s, err = NewFile(path)
	case "sqlite":
		s, err = NewSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if quota > 0 {
		s = WithQuota(s, quota)
	}
	return s, nil
}
