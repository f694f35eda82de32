// Package notify implements the best-effort notification fanout: one new
// message becomes independent per-recipient notification records, created
// off the request path by a small worker pool.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"huddle/internal/directory"
	"huddle/internal/domain"
	"huddle/internal/logger"
)

// Pusher delivers a realtime event to a user's open connections, if any.
type Pusher interface {
	SendToUser(userID int64, payload any)
}

// Resolver is the slice of the directory cache the fanout needs for sender
// snapshots.
type Resolver interface {
	Resolve(ctx context.Context, userID int64) (*directory.Entry, error)
}

// Event is the payload pushed over the websocket alongside the stored
// notification.
type Event struct {
	Kind         string               `json:"kind"`
	Notification *domain.Notification `json:"notification"`
}

type job struct {
	msg        *domain.Message
	preview    string
	recipients []int64
}

// Fanout creates notifications for conversation participants other than the
// sender. Semantics are at-most-once: enqueueing never blocks, per-recipient
// failures are logged and skipped, and queued work is abandoned on Close.
type Fanout struct {
	notifications domain.NotificationRepository
	directory     Resolver
	pusher        Pusher

	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

const jobTimeout = 5 * time.Second

func New(notifications domain.NotificationRepository, dir Resolver, pusher Pusher, workers, queueSize int) *Fanout {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	f := &Fanout{
		notifications: notifications,
		directory:     dir,
		pusher:        pusher,
		jobs:          make(chan job, queueSize),
		quit:          make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		f.wg.Add(1)
		go f.worker()
	}
	return f
}

// Enqueue hands a freshly persisted message to the fanout. It never blocks:
// when the queue is full the job is dropped with a warning, because message
// delivery success is decoupled from notification success.
func (f *Fanout) Enqueue(msg *domain.Message, preview string, participantIDs []int64) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return
	}

	recipients := make([]int64, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id != msg.SenderID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}

	select {
	case f.jobs <- job{msg: msg, preview: preview, recipients: recipients}:
	default:
		logger.Log.Warn("notification queue full, dropping fanout",
			zap.Int64("message_id", msg.ID),
			zap.String("conversation_id", msg.ConversationID),
		)
	}
}

// Close stops intake and abandons whatever is still queued. Workers finish
// their in-flight job and exit.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	close(f.quit)
	f.wg.Wait()
}

func (f *Fanout) worker() {
	defer f.wg.Done()
	for {
		select {
		case <-f.quit:
			return
		case j := <-f.jobs:
			for _, recipient := range j.recipients {
				f.notifyOne(j, recipient)
			}
		}
	}
}

// notifyOne creates a single notification record and pushes it. Errors are
// terminal and local to this recipient; the other recipients and the
// original send are unaffected.
func (f *Fanout) notifyOne(j job, recipient int64) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n := &domain.Notification{
		ID:             uuid.NewString(),
		RecipientID:    recipient,
		Type:           domain.NotificationNewMessage,
		FromUserID:     j.msg.SenderID,
		ConversationID: j.msg.ConversationID,
		MessageID:      j.msg.ID,
		Preview:        j.preview,
	}

	// Snapshot sender info at creation time. A directory failure leaves the
	// snapshot empty rather than dropping the notification.
	if entry, err := f.directory.Resolve(ctx, j.msg.SenderID); err == nil {
		n.FromUsername = entry.Username
		n.FromDisplayName = entry.DisplayName
		n.FromAvatar = entry.Avatar
	}

	if err := f.notifications.Create(ctx, n); err != nil {
		logger.Log.Warn("failed to create notification",
			zap.Int64("recipient_id", recipient),
			zap.Int64("message_id", j.msg.ID),
			zap.Error(err),
		)
		return
	}

	if f.pusher != nil {
		f.pusher.SendToUser(recipient, Event{Kind: "notification", Notification: n})
	}
}
