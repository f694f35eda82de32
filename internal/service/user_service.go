package service

import (
	"context"

	"huddle/internal/domain"
)

// Invalidator is the write-through invalidation hook into the directory
// cache; writers of user records call it after every mutation.
type Invalidator interface {
	Invalidate(userID int64)
}

// UserService provides user-related operations around presence.
type UserService struct {
	users domain.UserRepository
	cache Invalidator
}

func NewUserService(users domain.UserRepository, cache Invalidator) *UserService {
	return &UserService{users: users, cache: cache}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	return s.users.ListActive(ctx, offset, limit)
}

// Heartbeat records "last seen now" for the user and invalidates the
// directory entry so readers pick the fresh value up before the TTL.
func (s *UserService) Heartbeat(ctx context.Context, userID int64) error {
	if err := s.users.Heartbeat(ctx, userID); err != nil {
		return domain.StoreUnavailable(err)
	}
	s.cache.Invalidate(userID)
	return nil
}

// SetOnlineStatus flips presence (login/logout) and invalidates the cache.
func (s *UserService) SetOnlineStatus(ctx context.Context, userID int64, isOnline bool) error {
	if err := s.users.SetOnlineStatus(ctx, userID, isOnline); err != nil {
		return domain.StoreUnavailable(err)
	}
	s.cache.Invalidate(userID)
	return nil
}
