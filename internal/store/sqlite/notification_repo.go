package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"huddle/internal/domain"
)

type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

var _ domain.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	n.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, from_user_id, from_username, from_display_name, from_avatar, conversation_id, message_id, preview, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.RecipientID, n.Type, n.FromUserID, n.FromUsername, n.FromDisplayName, n.FromAvatar, n.ConversationID, n.MessageID, n.Preview, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recipient_id, type, from_user_id, from_username, from_display_name, from_avatar, conversation_id, message_id, preview, is_read, read_at, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY is_read ASC, created_at DESC
		LIMIT ?
	`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var res []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		var readAt sql.NullTime
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Type,
			&n.FromUserID,
			&n.FromUsername,
			&n.FromDisplayName,
			&n.FromAvatar,
			&n.ConversationID,
			&n.MessageID,
			&n.Preview,
			&n.Read,
			&readAt,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id string, recipientID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = ?
		WHERE id = ? AND recipient_id = ?
	`, time.Now().UTC(), id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NotFound("notification not found")
	}
	return nil
}
