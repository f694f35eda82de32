package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListActive(ctx context.Context, offset, limit int) ([]*User, error)
	SetOnlineStatus(ctx context.Context, id int64, isOnline bool) error
	// Heartbeat bumps last_seen to now and marks the user online.
	Heartbeat(ctx context.Context, id int64) error
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	// CreateIfAbsent inserts the conversation and its participant rows only
	// if no conversation with c.ID exists. It never fails on a duplicate;
	// callers read the canonical row back afterwards.
	CreateIfAbsent(ctx context.Context, c *Conversation, participantIDs []int64) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]*Conversation, error)
	// UpdateOnNewMessage bumps last_message_id/updated_at, but only forward:
	// a timestamp older than the current updated_at is silently ignored.
	UpdateOnNewMessage(ctx context.Context, id string, messageID int64, ts time.Time) error
	// MarkRead sets the reader's watermark to now.
	MarkRead(ctx context.Context, conversationID string, userID int64) error
	// UnreadCount counts messages from other senders newer than the
	// reader's watermark.
	UnreadCount(ctx context.Context, conversationID string, userID int64) (int, error)
	// Watermarks returns last_read_at per participant (nil when never read).
	Watermarks(ctx context.Context, conversationID string) (map[int64]*time.Time, error)
}

// ParticipantRepository defines operations around conversation participants.
type ParticipantRepository interface {
	ParticipantIDs(ctx context.Context, conversationID string) ([]int64, error)
	IsParticipant(ctx context.Context, conversationID string, userID int64) (bool, error)
}

// MessageRepository defines persistence operations for the append-only
// message log.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// ListForConversation returns messages in ascending created_at order.
	ListForConversation(ctx context.Context, conversationID string) ([]*Message, error)
}

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]*Notification, error)
	// MarkRead acknowledges a notification; it is a no-op returning
	// ErrNoRows semantics (NotFound) when the id does not belong to the
	// recipient.
	MarkRead(ctx context.Context, id string, recipientID int64) error
}
