package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"huddle/internal/directory"
	"huddle/internal/domain"
	"huddle/internal/security"
	"huddle/internal/service"
)

// Mock mocks
type MockConversationRepo struct {
	mock.Mock
}

func (m *MockConversationRepo) CreateIfAbsent(ctx context.Context, c *domain.Conversation, participantIDs []int64) error {
	args := m.Called(ctx, c, participantIDs)
	return args.Error(0)
}

func (m *MockConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) UpdateOnNewMessage(ctx context.Context, id string, messageID int64, ts time.Time) error {
	args := m.Called(ctx, id, messageID, ts)
	return args.Error(0)
}

func (m *MockConversationRepo) MarkRead(ctx context.Context, conversationID string, userID int64) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *MockConversationRepo) UnreadCount(ctx context.Context, conversationID string, userID int64) (int, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockConversationRepo) Watermarks(ctx context.Context, conversationID string) (map[int64]*time.Time, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]*time.Time), args.Error(1)
}

type MockParticipantRepo struct {
	mock.Mock
}

func (m *MockParticipantRepo) ParticipantIDs(ctx context.Context, conversationID string) ([]int64, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockParticipantRepo) IsParticipant(ctx context.Context, conversationID string, userID int64) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListForConversation(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Resolve(ctx context.Context, userID int64) (*directory.Entry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directory.Entry), args.Error(1)
}

func (m *MockDirectory) ResolveMany(ctx context.Context, userIDs []int64) map[int64]*directory.Entry {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return map[int64]*directory.Entry{}
	}
	return args.Get(0).(map[int64]*directory.Entry)
}

type MockFanout struct {
	mock.Mock
}

func (m *MockFanout) Enqueue(msg *domain.Message, preview string, participantIDs []int64) {
	m.Called(msg, preview, participantIDs)
}

func newTestEncryptor(t *testing.T) *security.Encryptor {
	t.Helper()
	enc, err := security.NewEncryptor([]byte("unit-test-key"))
	require.NoError(t, err)
	return enc
}

func TestResolveOrCreate(t *testing.T) {
	enc := newTestEncryptor(t)

	t.Run("SelfConversationRejected", func(t *testing.T) {
		svc := service.NewConversationService(new(MockConversationRepo), new(MockParticipantRepo), new(MockMessageRepo), new(MockDirectory), enc)

		conv, err := svc.ResolveOrCreate(context.Background(), 7, 7)
		assert.Nil(t, conv)
		assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	})

	t.Run("ExistingConversationSkipsDirectory", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		dir := new(MockDirectory)
		svc := service.NewConversationService(convRepo, new(MockParticipantRepo), new(MockMessageRepo), dir, enc)

		id := domain.PairKey(1, 2)
		existing := &domain.Conversation{ID: id}
		convRepo.On("GetByID", mock.Anything, id).Return(existing, nil)

		conv, err := svc.ResolveOrCreate(context.Background(), 2, 1)
		require.NoError(t, err)
		assert.Equal(t, id, conv.ID)
		dir.AssertNotCalled(t, "Resolve")
		convRepo.AssertNotCalled(t, "CreateIfAbsent")
	})

	t.Run("UnregisteredRecipientCreatesNothing", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		dir := new(MockDirectory)
		svc := service.NewConversationService(convRepo, new(MockParticipantRepo), new(MockMessageRepo), dir, enc)

		id := domain.PairKey(1, 2)
		convRepo.On("GetByID", mock.Anything, id).Return(nil, nil)
		dir.On("Resolve", mock.Anything, int64(2)).Return(&directory.Entry{UserID: 2, IsRegistered: false}, nil)

		conv, err := svc.ResolveOrCreate(context.Background(), 1, 2)
		assert.Nil(t, conv)
		assert.Equal(t, domain.CodeRecipientNotRegistered, domain.CodeOf(err))

		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.EqualValues(t, 2, appErr.RecipientID)
		convRepo.AssertNotCalled(t, "CreateIfAbsent")
	})

	t.Run("CreatesAndReadsBackCanonicalRow", func(t *testing.T) {
		convRepo := new(MockConversationRepo)
		dir := new(MockDirectory)
		svc := service.NewConversationService(convRepo, new(MockParticipantRepo), new(MockMessageRepo), dir, enc)

		id := domain.PairKey(1, 2)
		created := &domain.Conversation{ID: id, CreatedAt: time.Now().UTC()}

		convRepo.On("GetByID", mock.Anything, id).Return(nil, nil).Once()
		dir.On("Resolve", mock.Anything, int64(2)).Return(&directory.Entry{UserID: 2, IsRegistered: true}, nil)
		convRepo.On("CreateIfAbsent", mock.Anything, mock.MatchedBy(func(c *domain.Conversation) bool {
			return c.ID == id
		}), []int64{1, 2}).Return(nil)
		convRepo.On("GetByID", mock.Anything, id).Return(created, nil).Once()

		conv, err := svc.ResolveOrCreate(context.Background(), 1, 2)
		require.NoError(t, err)
		assert.Equal(t, created, conv)
		convRepo.AssertExpectations(t)
	})
}

func TestMarkReadRequiresMembership(t *testing.T) {
	enc := newTestEncryptor(t)
	convRepo := new(MockConversationRepo)
	partRepo := new(MockParticipantRepo)
	svc := service.NewConversationService(convRepo, partRepo, new(MockMessageRepo), new(MockDirectory), enc)

	partRepo.On("IsParticipant", mock.Anything, "dm:1:2", int64(9)).Return(false, nil)

	err := svc.MarkRead(context.Background(), "dm:1:2", 9)
	assert.Equal(t, domain.CodeAccessDenied, domain.CodeOf(err))
	convRepo.AssertNotCalled(t, "MarkRead")
}
