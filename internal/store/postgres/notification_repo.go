package postgres

import (
	"context"
	"database/sql"
	"fmt"

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
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, from_user_id, from_username, from_display_name, from_avatar, conversation_id, message_id, preview, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, n.ID, n.RecipientID, n.Type, n.FromUserID, n.FromUsername, n.FromDisplayName, n.FromAvatar, n.ConversationID, n.MessageID, n.Preview, n.Read).
		Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recipient_id, type, from_user_id, from_username, from_display_name, from_avatar, conversation_id, message_id, preview, is_read, read_at, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY is_read ASC, created_at DESC
		LIMIT $2
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
		SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
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
