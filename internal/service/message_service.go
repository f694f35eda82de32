package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"huddle/internal/directory"
	"huddle/internal/domain"
	"huddle/internal/logger"
	"huddle/internal/security"
)

// Delivery status presented to a sender. This is a client-visible
// projection, not a stored field: "sent" means server-acknowledged
// persistence, "read" is derived from the recipient's watermark at render
// time. "sending" only ever exists client-side.
const (
	MessageStatusSending = "sending"
	MessageStatusSent    = "sent"
	MessageStatusRead    = "read"
)

const maxContentRunes = 5000

// Enqueuer is the hand-off to the notification fanout. Implementations must
// never block the send path.
type Enqueuer interface {
	Enqueue(msg *domain.Message, preview string, participantIDs []int64)
}

type MessageService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	messages      domain.MessageRepository
	directory     Directory
	encryptor     *security.Encryptor
	fanout        Enqueuer
}

func NewMessageService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	dir Directory,
	encryptor *security.Encryptor,
	fanout Enqueuer,
) *MessageService {
	return &MessageService{
		conversations: conversations,
		participants:  participants,
		messages:      messages,
		directory:     dir,
		encryptor:     encryptor,
		fanout:        fanout,
	}
}

// MessageView is the decrypted, enriched message shape returned to clients.
type MessageView struct {
	ID             int64            `json:"id"`
	ConversationID string           `json:"conversation_id"`
	SenderID       int64            `json:"sender_id"`
	Content        string           `json:"content"`
	Type           string           `json:"type"`
	Status         string           `json:"status"`
	Timestamp      time.Time        `json:"timestamp"`
	SenderInfo     *directory.Entry `json:"sender_info,omitempty"`
}

// Append validates, persists and fans out a new message. The returned view
// carries the server-assigned id and timestamp; the fanout is enqueued after
// the message is durable and cannot fail the send.
func (s *MessageService) Append(ctx context.Context, conversationID string, senderID int64, content, msgType string) (*MessageView, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, domain.StoreUnavailable(err)
	}
	if conv == nil {
		return nil, domain.NotFound("conversation not found")
	}

	isParticipant, err := s.participants.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, domain.StoreUnavailable(err)
	}
	if !isParticipant {
		return nil, domain.AccessDenied("you are not a participant in this conversation")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.Validation("message content cannot be empty")
	}
	if len([]rune(content)) > maxContentRunes {
		return nil, domain.Validation("message content exceeds 5000 characters")
	}
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if msgType != domain.MessageTypeText {
		return nil, domain.Validation("unsupported message type")
	}

	encrypted, err := s.encryptor.Encrypt(content)
	if err != nil {
		return nil, domain.Internal("failed to encrypt message content")
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        encrypted,
		Type:           msgType,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, domain.StoreUnavailable(err)
	}

	// The message is already durable at this point, so a failed pointer
	// bump degrades list ordering but never fails the send.
	if err := s.conversations.UpdateOnNewMessage(ctx, conversationID, msg.ID, msg.CreatedAt); err != nil {
		logger.Log.Warn("failed to bump conversation pointers",
			zap.String("conversation_id", conversationID),
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
	}

	if ids, err := s.participants.ParticipantIDs(ctx, conversationID); err == nil {
		s.fanout.Enqueue(msg, preview(content), ids)
	}

	return &MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        content,
		Type:           msg.Type,
		Status:         MessageStatusSent,
		Timestamp:      msg.CreatedAt,
	}, nil
}

// List returns the conversation's messages in ascending timestamp order,
// decrypted and enriched with sender info, with the per-reader delivery
// status projected from the other participant's watermark.
func (s *MessageService) List(ctx context.Context, conversationID string, requesterID int64) ([]*MessageView, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, domain.StoreUnavailable(err)
	}
	if conv == nil {
		return nil, domain.NotFound("conversation not found")
	}

	isParticipant, err := s.participants.IsParticipant(ctx, conversationID, requesterID)
	if err != nil {
		return nil, domain.StoreUnavailable(err)
	}
	if !isParticipant {
		return nil, domain.AccessDenied("you are not a participant in this conversation")
	}

	msgs, err := s.messages.ListForConversation(ctx, conversationID)
	if err != nil {
		return nil, domain.StoreUnavailable(err)
	}

	watermarks, err := s.conversations.Watermarks(ctx, conversationID)
	if err != nil {
		return nil, domain.StoreUnavailable(err)
	}

	senderIDs := make([]int64, 0, 2)
	seen := make(map[int64]struct{}, 2)
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	info := s.directory.ResolveMany(ctx, senderIDs)

	views := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if dec, err := s.encryptor.Decrypt(m.Content); err == nil {
			content = dec
		}
		views = append(views, &MessageView{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			Content:        content,
			Type:           m.Type,
			Status:         statusFor(m, watermarks),
			Timestamp:      m.CreatedAt,
			SenderInfo:     info[m.SenderID],
		})
	}
	return views, nil
}

// statusFor derives the delivery status of a message: "read" once the
// non-sender participant's watermark has passed the message timestamp.
func statusFor(m *domain.Message, watermarks map[int64]*time.Time) string {
	for uid, wm := range watermarks {
		if uid == m.SenderID {
			continue
		}
		if wm != nil && !m.CreatedAt.After(*wm) {
			return MessageStatusRead
		}
	}
	return MessageStatusSent
}

// preview truncates plain content for notification payloads.
func preview(content string) string {
	const max = 80
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max-1]) + "…"
}
