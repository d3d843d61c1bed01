package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/suPer8Hu/echo-chat/internal/common"
)

// MemoryStore is the in-process Store used when the database is unreachable.
// A single mutex guards every conversation, so appends never interleave.
type MemoryStore struct {
	mu     sync.RWMutex
	convs  map[string]*Conversation
	nextID uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*Conversation)}
}

func cloneConversation(c *Conversation) *Conversation {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	if cp.Messages == nil {
		cp.Messages = []Message{}
	}
	return &cp
}

func (s *MemoryStore) CreateConversation(ctx context.Context, ownerID, title string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	c := &Conversation{
		ID:           common.NewULID(),
		UserID:       ownerID,
		Title:        title,
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[c.ID] = c
	return cloneConversation(c), nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return nil, notFound(conversationID)
	}
	s.nextID++
	now := time.Now()
	m := Message{
		ID:             s.nextID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}
	c.Messages = append(c.Messages, m)
	c.LastActivity = now
	c.UpdatedAt = now
	return &m, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return nil, notFound(conversationID)
	}
	return cloneConversation(c), nil
}

func (s *MemoryStore) ListSummaries(ctx context.Context, ownerID string) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := []Summary{}
	for _, c := range s.convs {
		if c.UserID == ownerID {
			out = append(out, Summary{ID: c.ID, Title: c.Title, LastActivity: c.LastActivity})
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) RenameConversation(ctx context.Context, conversationID, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return notFound(conversationID)
	}
	c.Title = title
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, conversationID, requesterID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return notFound(conversationID)
	}
	if c.UserID != requesterID {
		return fmt.Errorf("conversation %s: %w", conversationID, common.ErrForbidden)
	}
	delete(s.convs, conversationID)
	return nil
}
