package chat

import "context"

// Store is the conversation persistence contract. Repo (gorm) and
// MemoryStore implement it identically; missing conversations are reported
// wrapped in common.ErrNotFound.
type Store interface {
	CreateConversation(ctx context.Context, ownerID, title string) (*Conversation, error)
	// AppendMessage adds one message and bumps LastActivity as a single atomic unit.
	AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error)
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	// ListSummaries returns the owner's conversations, most recently active first.
	ListSummaries(ctx context.Context, ownerID string) ([]Summary, error)
	RenameConversation(ctx context.Context, conversationID, title string) error
	// DeleteConversation fails with common.ErrForbidden unless requesterID owns it.
	DeleteConversation(ctx context.Context, conversationID, requesterID string) error
}
