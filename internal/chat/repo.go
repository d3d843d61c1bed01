package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/echo-chat/internal/common"
	"gorm.io/gorm"
)

// Repo is the durable Store backed by gorm.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func notFound(id string) error {
	return fmt.Errorf("conversation %s: %w", id, common.ErrNotFound)
}

func (r *Repo) CreateConversation(ctx context.Context, ownerID, title string) (*Conversation, error) {
	now := time.Now()
	c := &Conversation{
		ID:           common.NewULID(),
		UserID:       ownerID,
		Title:        title,
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Omit("Messages").Create(c).Error; err != nil {
		return nil, err
	}
	c.Messages = []Message{}
	return c, nil
}

func (r *Repo) exists(tx *gorm.DB, id string) (bool, error) {
	var n int64
	if err := tx.Model(&Conversation{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// AppendMessage touches the conversation row first so concurrent appends to
// the same conversation serialize on its row lock.
func (r *Repo) AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error) {
	now := time.Now()
	m := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Conversation{}).
			Where("id = ?", conversationID).
			Update("last_activity", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			ok, err := r.exists(tx, conversationID)
			if err != nil {
				return err
			}
			if !ok {
				return notFound(conversationID)
			}
		}
		return tx.Create(m).Error
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repo) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var c Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&c, "id = ?", conversationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(conversationID)
		}
		return nil, err
	}
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return &c, nil
}

func (r *Repo) ListSummaries(ctx context.Context, ownerID string) ([]Summary, error) {
	out := []Summary{}
	if err := r.db.WithContext(ctx).
		Model(&Conversation{}).
		Select("id", "title", "last_activity").
		Where("user_id = ?", ownerID).
		Order("last_activity DESC").
		Order("id DESC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) RenameConversation(ctx context.Context, conversationID, title string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := r.exists(tx, conversationID)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(conversationID)
		}
		return tx.Model(&Conversation{}).
			Where("id = ?", conversationID).
			Update("title", title).Error
	})
}

func (r *Repo) DeleteConversation(ctx context.Context, conversationID, requesterID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Conversation
		if err := tx.Select("id", "user_id").First(&c, "id = ?", conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(conversationID)
			}
			return err
		}
		if c.UserID != requesterID {
			return fmt.Errorf("conversation %s: %w", conversationID, common.ErrForbidden)
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Conversation{}, "id = ?", conversationID).Error
	})
}
