package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/echo-chat/internal/common"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func notFound(slug string) error {
	return fmt.Errorf("share %s: %w", slug, common.ErrNotFound)
}

func (r *Repo) Exists(ctx context.Context, slug string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Snapshot{}).Where("slug = ?", slug).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) Create(ctx context.Context, s *Snapshot) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrSlugTaken
	}
	return err
}

func (r *Repo) Get(ctx context.Context, slug string) (*Snapshot, error) {
	var s Snapshot
	if err := r.db.WithContext(ctx).First(&s, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(slug)
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) IncrementViews(ctx context.Context, slug string) (*Snapshot, error) {
	var out *Snapshot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Snapshot{}).
			Where("slug = ? AND active = ?", slug, true).
			UpdateColumn("views", gorm.Expr("views + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(slug)
		}
		var s Snapshot
		if err := tx.First(&s, "slug = ?", slug).Error; err != nil {
			return err
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *Repo) Deactivate(ctx context.Context, slug string) error {
	res := r.db.WithContext(ctx).Model(&Snapshot{}).
		Where("slug = ?", slug).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		ok, err := r.Exists(ctx, slug)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(slug)
		}
	}
	return nil
}

func (r *Repo) ListActiveByOwner(ctx context.Context, ownerID string, limit int) ([]Snapshot, error) {
	out := []Snapshot{}
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND active = ?", ownerID, true).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Snapshot{}).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Update("active", false)
	return res.RowsAffected, res.Error
}
