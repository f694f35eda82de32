package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"huddle/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

// CreateIfAbsent inserts the conversation under its deterministic id. When
// the row already exists the insert is a no-op, which is what makes
// concurrent resolve-or-create calls collapse onto a single conversation.
func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, c *domain.Conversation, participantIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, created_at, updated_at)
		VALUES (?, ?, ?)
	`, c.ID, now, now)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if inserted > 0 {
		c.CreatedAt = now
		c.UpdatedAt = now
		for _, uid := range participantIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO conversation_participants (user_id, conversation_id, joined_at)
				VALUES (?, ?, ?)
			`, uid, c.ID, now); err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `
		SELECT id, last_message_id, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`
	c := &domain.Conversation{}
	var lastMsg sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&lastMsg,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if lastMsg.Valid {
		c.LastMessageID = &lastMsg.Int64
	}
	return c, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	query := `
		SELECT c.id, c.last_message_id, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ?
		ORDER BY c.updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c := &domain.Conversation{}
		var lastMsg sql.NullInt64
		if err := rows.Scan(&c.ID, &lastMsg, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if lastMsg.Valid {
			c.LastMessageID = &lastMsg.Int64
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpdateOnNewMessage bumps the lastMessage/updatedAt pointers. The guard on
// updated_at makes the write monotonic; an out-of-order timestamp is
// ignored rather than rejected.
func (r *ConversationRepo) UpdateOnNewMessage(ctx context.Context, id string, messageID int64, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?, updated_at = ?
		WHERE id = ? AND updated_at <= ?
	`, messageID, ts, id, ts)
	if err != nil {
		return fmt.Errorf("update on new message: %w", err)
	}
	return nil
}

func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID string, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET last_read_at = ?
		WHERE conversation_id = ? AND user_id = ?
	`, time.Now().UTC(), conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (r *ConversationRepo) UnreadCount(ctx context.Context, conversationID string, userID int64) (int, error) {
	var lastRead sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT last_read_at
		FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID).Scan(&lastRead)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get watermark: %w", err)
	}

	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = ? AND sender_id <> ?
	`
	args := []any{conversationID, userID}
	if lastRead.Valid {
		query += " AND created_at > ?"
		args = append(args, lastRead.Time)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *ConversationRepo) Watermarks(ctx context.Context, conversationID string) (map[int64]*time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, last_read_at
		FROM conversation_participants
		WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]*time.Time)
	for rows.Next() {
		var uid int64
		var lastRead sql.NullTime
		if err := rows.Scan(&uid, &lastRead); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		if lastRead.Valid {
			t := lastRead.Time
			res[uid] = &t
		} else {
			res[uid] = nil
		}
	}
	return res, rows.Err()
}
