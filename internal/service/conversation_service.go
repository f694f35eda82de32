package service

import (
	"context"
	"time"

	"huddle/internal/directory"
	"huddle/internal/domain"
	"huddle/internal/security"
)

// Directory is the read-through user directory consumed by the services.
type Directory interface {
	Resolve(ctx context.Context, userID int64) (*directory.Entry, error)
	ResolveMany(ctx context.Context, userIDs []int64) map[int64]*directory.Entry
}

type ConversationService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	messages      domain.MessageRepository
	directory     Directory
	encryptor     *security.Encryptor
}

func NewConversationService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	dir Directory,
	encryptor *security.Encryptor,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		participants:  participants,
		messages:      messages,
		directory:     dir,
		encryptor:     encryptor,
	}
}

// ResolveOrCreate returns the single conversation for the unordered pair
// {userA, userB}, creating it if absent. The deterministic pair key plus the
// store's create-if-absent primitive make this idempotent under concurrent
// callers: both sides opening the chat at once still end up with one
// conversation.
func (s *ConversationService) ResolveOrCreate(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	if userA == userB {
		return nil, domain.Validation("cannot start a conversation with yourself")
	}

	id := domain.PairKey(userA, userB)
	if existing, err := s.conversations.GetByID(ctx, id); err != nil {
		return nil, domain.StoreUnavailable(err)
	} else if existing != nil {
		return existing, nil
	}

	// Only verify the recipient before creating; an existing conversation
	// predates any registration state change.
	entry, err := s.directory.Resolve(ctx, userB)
	if err != nil {
		return nil, err
	}
	if !entry.IsRegistered {
		return nil, domain.RecipientNotRegistered(userB)
	}

	c := &domain.Conversation{ID: id}
	if err := s.conversations.CreateIfAbsent(ctx, c, []int64{userA, userB}); err != nil {
		return nil, domain.StoreUnavailable(err)
	}

	// Read the canonical row back: if a concurrent caller won the insert,
	// its timestamps are the ones that count.
	canonical, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, domain.StoreUnavailable(err)
	}
	if canonical == nil {
		return nil, domain.Internal("conversation vanished after create")
	}
	return canonical, nil
}

// ConversationView is the enriched conversation shape returned to clients.
type ConversationView struct {
	ID              string                     `json:"id"`
	Participants    []int64                    `json:"participants"`
	LastMessage     *MessageView               `json:"last_message,omitempty"`
	UnreadCount     int                        `json:"unread_count"`
	UpdatedAt       time.Time                  `json:"updated_at"`
	ParticipantInfo map[int64]*directory.Entry `json:"participant_info"`
}

// ListForUser returns the caller's conversations, newest activity first,
// each enriched with the unread count and directory info for both
// participants. Directory lookups go through the cache, so the number of
// backing-store calls is bounded by distinct users, not list length.
func (s *ConversationService) ListForUser(ctx context.Context, userID int64) ([]*ConversationView, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, domain.StoreUnavailable(err)
	}

	views := make([]*ConversationView, 0, len(convs))
	for _, c := range convs {
		ids, err := s.participants.ParticipantIDs(ctx, c.ID)
		if err != nil {
			return nil, domain.StoreUnavailable(err)
		}

		unread, err := s.conversations.UnreadCount(ctx, c.ID, userID)
		if err != nil {
			return nil, domain.StoreUnavailable(err)
		}

		view := &ConversationView{
			ID:              c.ID,
			Participants:    ids,
			UnreadCount:     unread,
			UpdatedAt:       c.UpdatedAt,
			ParticipantInfo: s.directory.ResolveMany(ctx, ids),
		}

		if c.LastMessageID != nil {
			if last, err := s.messages.GetByID(ctx, *c.LastMessageID); err == nil && last != nil {
				view.LastMessage = s.toView(last)
			}
		}

		views = append(views, view)
	}
	return views, nil
}

// MarkRead moves the caller's read watermark to now.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID string, userID int64) error {
	ok, err := s.participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return domain.StoreUnavailable(err)
	}
	if !ok {
		return domain.AccessDenied("you are not a participant in this conversation")
	}
	if err := s.conversations.MarkRead(ctx, conversationID, userID); err != nil {
		return domain.StoreUnavailable(err)
	}
	return nil
}

func (s *ConversationService) UnreadCount(ctx context.Context, conversationID string, userID int64) (int, error) {
	return s.conversations.UnreadCount(ctx, conversationID, userID)
}

// toView decrypts a stored message for display. Status is left at "sent";
// the per-reader projection happens in MessageService.List where the
// watermarks are at hand.
func (s *ConversationService) toView(m *domain.Message) *MessageView {
	content := m.Content
	if dec, err := s.encryptor.Decrypt(m.Content); err == nil {
		content = dec
	}
	return &MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        content,
		Type:           m.Type,
		Status:         MessageStatusSent,
		Timestamp:      m.CreatedAt,
	}
}
