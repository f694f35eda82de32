package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/directory"
	"huddle/internal/domain"
	"huddle/internal/notify"
)

type recordingNotificationRepo struct {
	mu      sync.Mutex
	created []*domain.Notification
	failFor int64
}

func (r *recordingNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor != 0 && n.RecipientID == r.failFor {
		return errors.New("store down")
	}
	r.created = append(r.created, n)
	return nil
}

func (r *recordingNotificationRepo) ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]*domain.Notification, error) {
	return nil, nil
}

func (r *recordingNotificationRepo) MarkRead(ctx context.Context, id string, recipientID int64) error {
	return nil
}

func (r *recordingNotificationRepo) snapshot() []*domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Notification, len(r.created))
	copy(out, r.created)
	return out
}

type staticResolver struct {
	entry *directory.Entry
}

func (s *staticResolver) Resolve(ctx context.Context, userID int64) (*directory.Entry, error) {
	if s.entry == nil {
		return nil, errors.New("directory down")
	}
	return s.entry, nil
}

type recordingPusher struct {
	mu   sync.Mutex
	sent map[int64]int
}

func (p *recordingPusher) SendToUser(userID int64, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[int64]int)
	}
	p.sent[userID]++
}

func (p *recordingPusher) count(userID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[userID]
}

func testMessage() *domain.Message {
	return &domain.Message{
		ID:             7,
		ConversationID: domain.PairKey(1, 2),
		SenderID:       1,
		Content:        "encrypted",
		Type:           domain.MessageTypeText,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestFanoutNotifiesRecipientsNotSender(t *testing.T) {
	repo := &recordingNotificationRepo{}
	pusher := &recordingPusher{}
	resolver := &staticResolver{entry: &directory.Entry{UserID: 1, Username: "alice", DisplayName: "Alice"}}
	f := notify.New(repo, resolver, pusher, 2, 16)
	defer f.Close()

	f.Enqueue(testMessage(), "hello", []int64{1, 2})

	require.Eventually(t, func() bool {
		return len(repo.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	created := repo.snapshot()[0]
	assert.EqualValues(t, 2, created.RecipientID)
	assert.EqualValues(t, 1, created.FromUserID)
	assert.Equal(t, "alice", created.FromUsername)
	assert.Equal(t, "Alice", created.FromDisplayName)
	assert.Equal(t, "hello", created.Preview)
	assert.Equal(t, domain.NotificationNewMessage, created.Type)
	assert.NotEmpty(t, created.ID)

	require.Eventually(t, func() bool {
		return pusher.count(2) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, pusher.count(1))
}

func TestFanoutSenderOnlyIsNoop(t *testing.T) {
	repo := &recordingNotificationRepo{}
	f := notify.New(repo, &staticResolver{}, &recordingPusher{}, 1, 16)
	defer f.Close()

	f.Enqueue(testMessage(), "hello", []int64{1})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, repo.snapshot())
}

func TestFanoutDirectoryFailureLeavesSnapshotEmpty(t *testing.T) {
	repo := &recordingNotificationRepo{}
	f := notify.New(repo, &staticResolver{entry: nil}, &recordingPusher{}, 1, 16)
	defer f.Close()

	f.Enqueue(testMessage(), "hello", []int64{1, 2})

	require.Eventually(t, func() bool {
		return len(repo.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	created := repo.snapshot()[0]
	assert.Empty(t, created.FromUsername)
	assert.EqualValues(t, 1, created.FromUserID)
}

func TestFanoutRecipientFailuresAreIsolated(t *testing.T) {
	repo := &recordingNotificationRepo{failFor: 2}
	pusher := &recordingPusher{}
	f := notify.New(repo, &staticResolver{entry: &directory.Entry{UserID: 1}}, pusher, 1, 16)
	defer f.Close()

	msg := testMessage()
	f.Enqueue(msg, "hello", []int64{1, 2, 3})

	require.Eventually(t, func() bool {
		return pusher.count(3) == 1
	}, time.Second, 10*time.Millisecond)

	created := repo.snapshot()
	require.Len(t, created, 1)
	assert.EqualValues(t, 3, created[0].RecipientID)
	assert.Zero(t, pusher.count(2))
}

func TestFanoutEnqueueAfterCloseIsNoop(t *testing.T) {
	repo := &recordingNotificationRepo{}
	f := notify.New(repo, &staticResolver{entry: &directory.Entry{UserID: 1}}, &recordingPusher{}, 1, 16)
	f.Close()

	f.Enqueue(testMessage(), "hello", []int64{1, 2})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, repo.snapshot())
}
