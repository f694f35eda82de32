// Package client implements the synchronization layer used by programmatic
// consumers of the messaging API. It keeps a local mirror of conversations
// and messages, sends optimistically, and reconciles against server state.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"huddle/internal/domain"
	"huddle/internal/logger"
	"huddle/internal/service"
)

const (
	heartbeatInterval = 30 * time.Second
	refreshInterval   = 60 * time.Second
	requestTimeout    = 10 * time.Second
)

// entrySending is the only outbox state visible through Messages; an entry
// leaves the outbox on confirm or rollback instead of changing state.
const entrySending = "sending"

// PendingMessage is an optimistic outbox entry shown to the UI while the
// server round trip is in flight. ClientRef correlates the entry with the
// server's echo so reconciliation never has to match on content.
type PendingMessage struct {
	ClientRef      string    `json:"client_ref"`
	ConversationID string    `json:"conversation_id"`
	RecipientID    int64     `json:"recipient_id,omitempty"`
	Content        string    `json:"content"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

type sendRequest struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
	RecipientID    int64  `json:"recipient_id,omitempty"`
	Type           string `json:"type,omitempty"`
	ClientRef      string `json:"client_ref,omitempty"`
}

type sendResponse struct {
	Success        bool                 `json:"success"`
	Message        *service.MessageView `json:"message"`
	ConversationID string               `json:"conversation_id"`
	ClientRef      string               `json:"client_ref"`
}

type conversationListResponse struct {
	Conversations []*service.ConversationView `json:"conversations"`
	Total         int                         `json:"total"`
}

type messageListResponse struct {
	Messages []*service.MessageView `json:"messages"`
	Total    int                    `json:"total"`
}

type apiError struct {
	Error       domain.Code `json:"error"`
	Message     string      `json:"message"`
	RecipientID int64       `json:"recipient_id,omitempty"`
}

// Controller mirrors server state for one authenticated user and manages
// the optimistic send pipeline. All exported methods are safe for
// concurrent use.
type Controller struct {
	http *resty.Client

	mu            sync.Mutex
	outbox        []*PendingMessage
	conversations []*service.ConversationView
	messages      map[string][]*service.MessageView
	active        string

	// refreshCancel aborts the in-flight background conversation refresh
	// when the user opens a conversation; the foreground load wins.
	refreshCancel context.CancelFunc

	group singleflight.Group
}

func New(baseURL, token string) *Controller {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")

	return &Controller{
		http:     httpClient,
		messages: make(map[string][]*service.MessageView),
	}
}

// Send appends an optimistic entry and performs the server round trip. The
// round trip deliberately ignores the caller's cancellation: once a message
// is handed over it either confirms or rolls back on a definitive server
// answer, never on navigation.
func (c *Controller) Send(conversationID string, recipientID int64, content string) (*service.MessageView, error) {
	entry := &PendingMessage{
		ClientRef:      uuid.NewString(),
		ConversationID: conversationID,
		RecipientID:    recipientID,
		Content:        content,
		Status:         entrySending,
		Timestamp:      time.Now().UTC(),
	}

	c.mu.Lock()
	c.outbox = append(c.outbox, entry)
	c.mu.Unlock()

	var (
		out    sendResponse
		apiErr apiError
	)
	resp, err := c.http.R().
		SetBody(sendRequest{
			Content:        content,
			ConversationID: conversationID,
			RecipientID:    recipientID,
			Type:           domain.MessageTypeText,
			ClientRef:      entry.ClientRef,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/messages")

	if err != nil {
		// Transport failure: the server may or may not have the message.
		// Keep the entry pending so the next refresh reconciles it.
		logger.Log.Warn("send transport failure, entry kept pending",
			zap.String("client_ref", entry.ClientRef), zap.Error(err))
		return nil, domain.StoreUnavailable(err)
	}

	if resp.IsError() {
		c.rollback(entry.ClientRef)
		return nil, toDomainError(&apiErr)
	}

	c.confirm(out.ClientRef, out.ConversationID, out.Message)
	return out.Message, nil
}

// confirm replaces the outbox entry with the server's canonical message.
func (c *Controller) confirm(clientRef, conversationID string, msg *service.MessageView) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntryLocked(clientRef)
	if msg != nil {
		c.messages[conversationID] = append(c.messages[conversationID], msg)
	}
}

// rollback drops the optimistic entry; the message never happened as far as
// local state is concerned.
func (c *Controller) rollback(clientRef string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeEntryLocked(clientRef)
}

// settlePendingLocked drops outbox entries that a server reload proves were
// delivered. This settles sends whose confirmation was lost to a transport
// failure; matching is by content since the entry never got its echo back.
func (c *Controller) settlePendingLocked(conversationID string, server []*service.MessageView) {
	if len(c.outbox) == 0 {
		return
	}
	delivered := make(map[string]struct{}, len(server))
	for _, m := range server {
		delivered[m.Content] = struct{}{}
	}
	kept := c.outbox[:0]
	for _, e := range c.outbox {
		if e.ConversationID == conversationID {
			if _, ok := delivered[e.Content]; ok {
				continue
			}
		}
		kept = append(kept, e)
	}
	c.outbox = kept
}

func (c *Controller) removeEntryLocked(clientRef string) {
	for i, e := range c.outbox {
		if e.ClientRef == clientRef {
			c.outbox = append(c.outbox[:i], c.outbox[i+1:]...)
			return
		}
	}
}

// Run drives the background loops: a heartbeat every 30 seconds and a
// conversation list refresh every 60 seconds. It returns when ctx is done.
func (c *Controller) Run(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatInterval)
	refresh := time.NewTicker(refreshInterval)
	defer heartbeat.Stop()
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			// Fire and forget; a missed beat only delays presence.
			go func() {
				if _, err := c.http.R().SetContext(ctx).Post("/api/users/heartbeat"); err != nil {
					logger.Log.Debug("heartbeat failed", zap.Error(err))
				}
			}()
		case <-refresh.C:
			if err := c.RefreshConversations(ctx); err != nil {
				logger.Log.Debug("conversation refresh failed", zap.Error(err))
			}
		}
	}
}

// RefreshConversations reloads the conversation list. Concurrent callers
// share one in-flight request; the refresh is also individually cancellable
// so OpenConversation can abort it.
func (c *Controller) RefreshConversations(ctx context.Context) error {
	_, err, _ := c.group.Do("conversations", func() (any, error) {
		refreshCtx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.refreshCancel = cancel
		c.mu.Unlock()
		defer func() {
			cancel()
			c.mu.Lock()
			if c.refreshCancel != nil {
				c.refreshCancel = nil
			}
			c.mu.Unlock()
		}()

		var (
			out    conversationListResponse
			apiErr apiError
		)
		resp, err := c.http.R().
			SetContext(refreshCtx).
			SetResult(&out).
			SetError(&apiErr).
			Get("/api/conversations")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, toDomainError(&apiErr)
		}

		c.mu.Lock()
		c.conversations = out.Conversations
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// OpenConversation makes a conversation active and loads its messages. Any
// in-flight background list refresh is cancelled first so the foreground
// load is never starved by it.
func (c *Controller) OpenConversation(ctx context.Context, conversationID string) ([]*service.MessageView, error) {
	c.mu.Lock()
	if c.refreshCancel != nil {
		c.refreshCancel()
		c.refreshCancel = nil
	}
	c.active = conversationID
	c.mu.Unlock()

	var (
		out    messageListResponse
		apiErr apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("conversationId", conversationID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/api/messages")
	if err != nil {
		return nil, domain.StoreUnavailable(err)
	}
	if resp.IsError() {
		return nil, toDomainError(&apiErr)
	}

	c.mu.Lock()
	c.messages[conversationID] = out.Messages
	c.settlePendingLocked(conversationID, out.Messages)
	c.mu.Unlock()

	// Read receipt is best effort; the messages are already local.
	if _, err := c.http.R().SetContext(ctx).Post("/api/conversations/" + conversationID + "/read"); err != nil {
		logger.Log.Debug("mark read failed", zap.Error(err))
	}

	return c.Messages(conversationID), nil
}

// Messages returns the local view of a conversation: confirmed server
// messages followed by still-pending optimistic entries.
func (c *Controller) Messages(conversationID string) []*service.MessageView {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.messages[conversationID]
	merged := make([]*service.MessageView, len(base), len(base)+len(c.outbox))
	copy(merged, base)

	for _, e := range c.outbox {
		if e.ConversationID != conversationID {
			continue
		}
		merged = append(merged, &service.MessageView{
			ConversationID: e.ConversationID,
			Content:        e.Content,
			Type:           domain.MessageTypeText,
			Status:         e.Status,
			Timestamp:      e.Timestamp,
		})
	}
	return merged
}

// Active returns the id of the currently open conversation, or "".
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Conversations returns the last refreshed conversation list.
func (c *Controller) Conversations() []*service.ConversationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*service.ConversationView, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// Pending reports the outbox entries still awaiting server confirmation.
func (c *Controller) Pending() []*PendingMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*PendingMessage, len(c.outbox))
	copy(out, c.outbox)
	return out
}

// toDomainError rebuilds the typed error from the server's error body, so
// callers can branch on codes the same way server-side code does.
func toDomainError(e *apiError) error {
	if e == nil || e.Error == "" {
		return domain.Internal("unexpected server error")
	}
	return &domain.AppError{
		Code:        e.Error,
		Message:     e.Message,
		RecipientID: e.RecipientID,
	}
}
