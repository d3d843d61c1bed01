package share

import (
	"context"
	"errors"
	"time"
)

// ErrSlugTaken reports a unique-slug collision on insert.
var ErrSlugTaken = errors.New("share id already taken")

type Store interface {
	Exists(ctx context.Context, slug string) (bool, error)
	// Create inserts s, returning ErrSlugTaken when the slug is already used.
	Create(ctx context.Context, s *Snapshot) error
	Get(ctx context.Context, slug string) (*Snapshot, error)
	// IncrementViews atomically adds one view to an active snapshot and
	// returns it after the increment.
	IncrementViews(ctx context.Context, slug string) (*Snapshot, error)
	Deactivate(ctx context.Context, slug string) error
	ListActiveByOwner(ctx context.Context, ownerID string, limit int) ([]Snapshot, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
