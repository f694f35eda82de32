package domain

import (
	"fmt"
	"time"
)

// User is the backing record behind the directory. Profile enrichment and
// role computation happen outside this service; we only persist what the
// messaging core needs.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	DisplayName    string    `db:"display_name" json:"display_name"`
	Avatar         *string   `db:"avatar" json:"avatar,omitempty"`
	Email          *string   `db:"email" json:"email,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsRegistered   bool      `db:"is_registered" json:"is_registered"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IsOnline       bool      `db:"is_online" json:"is_online"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// Conversation is a two-participant mailbox. The id is the deterministic
// pair key (see PairKey), which makes creation idempotent: concurrent
// create attempts for the same pair collide on the primary key and the
// loser reads the winner's row.
type Conversation struct {
	ID            string    `db:"id" json:"id"`
	LastMessageID *int64    `db:"last_message_id" json:"last_message_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Participant is the membership of a user in a conversation. LastReadAt is
// the read watermark: every message at or before it counts as read by this
// user, which keeps unread counting O(1) instead of per-message flags.
type Participant struct {
	UserID         int64      `db:"user_id"`
	ConversationID string     `db:"conversation_id"`
	LastReadAt     *time.Time `db:"last_read_at"`
	JoinedAt       time.Time  `db:"joined_at"`
}

// MessageTypeText is the only message kind accepted today. The column is
// carried so a future kind does not need a migration.
const MessageTypeText = "text"

// Message is one entry in the append-only per-conversation log. Content is
// encrypted at rest; CreatedAt is the authoritative server clock and the
// ordering key. Messages are immutable once written.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	SenderID       int64     `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	Type           string    `db:"type" json:"type"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NotificationNewMessage is the only notification type emitted by the
// messaging core.
const NotificationNewMessage = "new_message"

// Notification is a per-recipient side effect of a new message. Sender info
// is a point-in-time snapshot taken at creation, not a live join; the
// notification stands even if the sender later changes their profile.
type Notification struct {
	ID              string     `db:"id" json:"id"`
	RecipientID     int64      `db:"recipient_id" json:"recipient_id"`
	Type            string     `db:"type" json:"type"`
	FromUserID      int64      `db:"from_user_id" json:"from_user_id"`
	FromUsername    string     `db:"from_username" json:"from_username"`
	FromDisplayName string     `db:"from_display_name" json:"from_display_name"`
	FromAvatar      *string    `db:"from_avatar" json:"from_avatar,omitempty"`
	ConversationID  string     `db:"conversation_id" json:"conversation_id"`
	MessageID       int64      `db:"message_id" json:"message_id"`
	Preview         string     `db:"preview" json:"preview"`
	Read            bool       `db:"read" json:"read"`
	ReadAt          *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// PairKey derives the conversation id for an unordered pair of users. The
// sorted form guarantees {A,B} and {B,A} map to the same key.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}
