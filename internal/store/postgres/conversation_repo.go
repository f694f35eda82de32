package postgres

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

func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, c *domain.Conversation, participantIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, now)
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
				INSERT INTO conversation_participants (user_id, conversation_id, joined_at)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING
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
	c := &domain.Conversation{}
	var lastMsg sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, last_message_id, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`, id).Scan(&c.ID, &lastMsg, &c.CreatedAt, &c.UpdatedAt)
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
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.last_message_id, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = $1
		ORDER BY c.updated_at DESC
	`, userID)
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

func (r *ConversationRepo) UpdateOnNewMessage(ctx context.Context, id string, messageID int64, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = $1, updated_at = $2
		WHERE id = $3 AND updated_at <= $2
	`, messageID, ts, id)
	if err != nil {
		return fmt.Errorf("update on new message: %w", err)
	}
	return nil
}

func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID string, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET last_read_at = NOW()
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (r *ConversationRepo) UnreadCount(ctx context.Context, conversationID string, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants cp
		  ON cp.conversation_id = m.conversation_id AND cp.user_id = $2
		WHERE m.conversation_id = $1
		  AND m.sender_id <> $2
		  AND (cp.last_read_at IS NULL OR m.created_at > cp.last_read_at)
	`, conversationID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *ConversationRepo) Watermarks(ctx context.Context, conversationID string) (map[int64]*time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, last_read_at
		FROM conversation_participants
		WHERE conversation_id = $1
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
