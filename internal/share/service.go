package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/echo-chat/internal/common"
)

const (
	AnonymousOwner = "anonymous"

	maxSlugAttempts = 10
	listLimit       = 50
	previewMaxRunes = 100
)

type Service struct {
	store   Store
	newSlug func() (string, error)
	now     func() time.Time
	log     zerolog.Logger
}

type Option func(*Service)

// WithSlugGenerator replaces the random slug source.
func WithSlugGenerator(f func() (string, error)) Option {
	return func(s *Service) { s.newSlug = f }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{store: store, newSlug: NewSlug, now: time.Now, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

type CreateInput struct {
	Question       string
	Answer         string
	OwnerID        string
	ConversationID string
	ExpiresAt      *time.Time
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// CreateSnapshot freezes a question/answer pair under a fresh slug. Slug
// allocation gives up with common.ErrSlugExhausted after 10 collisions.
func (s *Service) CreateSnapshot(ctx context.Context, in CreateInput) (*Snapshot, error) {
	q := strings.TrimSpace(in.Question)
	a := strings.TrimSpace(in.Answer)
	if q == "" || a == "" {
		return nil, fmt.Errorf("question and answer are required: %w", common.ErrBadRequest)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("expiry must be in the future: %w", common.ErrBadRequest)
	}

	owner := optional(in.OwnerID)
	if owner != nil && *owner == AnonymousOwner {
		owner = nil
	}

	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		slug, err := s.newSlug()
		if err != nil {
			return nil, fmt.Errorf("generate share id: %w", err)
		}
		taken, err := s.store.Exists(ctx, slug)
		if err != nil {
			return nil, err
		}
		if taken {
			s.log.Debug().Str("slug", slug).Int("attempt", attempt).Msg("share id collision")
			continue
		}

		snap := &Snapshot{
			Slug:           slug,
			Question:       q,
			Answer:         a,
			OwnerID:        owner,
			ConversationID: optional(in.ConversationID),
			Active:         true,
			ExpiresAt:      in.ExpiresAt,
		}
		err = s.store.Create(ctx, snap)
		if errors.Is(err, ErrSlugTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return snap, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxSlugAttempts, common.ErrSlugExhausted)
}

// GetSnapshot returns an active, unexpired snapshot and counts the read as a
// view. Expired snapshots report common.ErrGone without counting a view.
func (s *Service) GetSnapshot(ctx context.Context, slug string) (*Snapshot, error) {
	snap, err := s.store.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !snap.Active {
		return nil, notFound(slug)
	}
	if snap.ExpiresAt != nil && snap.ExpiresAt.Before(s.now()) {
		return nil, fmt.Errorf("share %s: %w", slug, common.ErrGone)
	}
	return s.store.IncrementViews(ctx, slug)
}

// DeactivateSnapshot soft-deletes a snapshot. Owned snapshots may only be
// deactivated by their owner; anonymous ones by anyone.
func (s *Service) DeactivateSnapshot(ctx context.Context, slug, requesterID string) error {
	snap, err := s.store.Get(ctx, slug)
	if err != nil {
		return err
	}
	if !snap.Anonymous() && *snap.OwnerID != requesterID {
		return fmt.Errorf("share %s: %w", slug, common.ErrForbidden)
	}
	return s.store.Deactivate(ctx, slug)
}

func (s *Service) ListByOwner(ctx context.Context, requesterID, ownerID string) ([]Preview, error) {
	if requesterID != ownerID {
		return nil, fmt.Errorf("shares of %s: %w", ownerID, common.ErrForbidden)
	}
	snaps, err := s.store.ListActiveByOwner(ctx, ownerID, listLimit)
	if err != nil {
		return nil, err
	}
	out := make([]Preview, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, Preview{
			ShareID:   sn.Slug,
			Question:  previewText(sn.Question),
			Views:     sn.Views,
			CreatedAt: sn.CreatedAt,
			ExpiresAt: sn.ExpiresAt,
		})
	}
	return out, nil
}

func previewText(q string) string {
	r := []rune(q)
	if len(r) > previewMaxRunes {
		return string(r[:previewMaxRunes]) + "..."
	}
	return q
}

// ExpireDue deactivates every active snapshot whose expiry has passed.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	return s.store.DeactivateExpired(ctx, s.now())
}
