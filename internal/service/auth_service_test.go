package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"huddle/internal/domain"
	"huddle/internal/security"
	"huddle/internal/service"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	return nil, nil // Not used in auth tests
}

func (m *MockUserRepo) SetOnlineStatus(ctx context.Context, userID int64, isOnline bool) error {
	args := m.Called(ctx, userID, isOnline)
	return args.Error(0)
}

func (m *MockUserRepo) Heartbeat(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(userID int64) {}

func TestRegister(t *testing.T) {
	tokenSvc := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4) // low cost for tests

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := service.NewAuthService(mockRepo, tokenSvc, hasher, noopInvalidator{})

		mockRepo.On("GetByUsername", mock.Anything, "newuser").Return(nil, nil)
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "newuser" && u.IsRegistered
		})).Return(nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Username:    "newuser",
			DisplayName: "New User",
			Password:    "Password1!",
		})
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "newuser", user.Username)
		assert.True(t, user.IsRegistered)
	})

	t.Run("NoDisplayNameStaysUnregistered", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := service.NewAuthService(mockRepo, tokenSvc, hasher, noopInvalidator{})

		mockRepo.On("GetByUsername", mock.Anything, "imported").Return(nil, nil)
		mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "imported",
			Password: "Password1!",
		})
		require.NoError(t, err)
		assert.False(t, user.IsRegistered)
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := service.NewAuthService(mockRepo, tokenSvc, hasher, noopInvalidator{})

		existing := &domain.User{Username: "existing"}
		mockRepo.On("GetByUsername", mock.Anything, "existing").Return(existing, nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "existing",
			Password: "Password1!",
		})
		assert.Nil(t, user)
		assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
	})
}

func TestLogin(t *testing.T) {
	tokenSvc := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4)

	hashed, err := hasher.Hash("Password1!")
	require.NoError(t, err)

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := service.NewAuthService(mockRepo, tokenSvc, hasher, noopInvalidator{})

		user := &domain.User{ID: 1, Username: "alice", HashedPassword: hashed, IsActive: true}
		mockRepo.On("GetByUsername", mock.Anything, "alice").Return(user, nil)
		mockRepo.On("SetOnlineStatus", mock.Anything, int64(1), true).Return(nil)

		res, err := svc.Login(context.Background(), service.LoginInput{Username: "alice", Password: "Password1!"})
		require.NoError(t, err)
		assert.NotEmpty(t, res.AccessToken)
		assert.Equal(t, "bearer", res.TokenType)

		// The token round-trips through the parser.
		uid, err := tokenSvc.ParseSubject(res.AccessToken)
		require.NoError(t, err)
		assert.EqualValues(t, 1, uid)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := service.NewAuthService(mockRepo, tokenSvc, hasher, noopInvalidator{})

		user := &domain.User{ID: 1, Username: "alice", HashedPassword: hashed, IsActive: true}
		mockRepo.On("GetByUsername", mock.Anything, "alice").Return(user, nil)

		res, err := svc.Login(context.Background(), service.LoginInput{Username: "alice", Password: "nope"})
		assert.Nil(t, res)
		assert.Equal(t, domain.CodeUnauthenticated, domain.CodeOf(err))
	})

	t.Run("UnknownUser", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := service.NewAuthService(mockRepo, tokenSvc, hasher, noopInvalidator{})

		mockRepo.On("GetByUsername", mock.Anything, "ghost").Return(nil, nil)

		res, err := svc.Login(context.Background(), service.LoginInput{Username: "ghost", Password: "x"})
		assert.Nil(t, res)
		assert.Equal(t, domain.CodeUnauthenticated, domain.CodeOf(err))
	})
}
