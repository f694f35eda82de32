package service

import (
	"context"
	"strings"

	"huddle/internal/domain"
	"huddle/internal/security"
)

// AuthService handles registration, login, and logout.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
	hash   *security.PasswordHasher
	cache  Invalidator
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher, cache Invalidator) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hash:   hash,
		cache:  cache,
	}
}

type RegisterInput struct {
	Username    string
	DisplayName string
	Email       *string
	Password    string
}

type LoginInput struct {
	Username string
	Password string
}

type TokenResponse struct {
	AccessToken string
	TokenType   string
	User        *domain.User
}

// Register creates a user account. A user counts as registered once they
// provided a display name; accounts imported from the platform's identity
// provider may exist without one and stay unregistered until onboarding
// completes.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, domain.Validation("username and password are required")
	}

	if existing, err := s.users.GetByUsername(ctx, in.Username); err != nil {
		return nil, domain.StoreUnavailable(err)
	} else if existing != nil {
		return nil, domain.Conflict("username already registered")
	}

	if in.Email != nil && *in.Email != "" {
		if existing, err := s.users.GetByEmail(ctx, *in.Email); err != nil {
			return nil, domain.StoreUnavailable(err)
		} else if existing != nil {
			return nil, domain.Conflict("email already registered")
		}
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, domain.Internal("failed to hash password")
	}

	user := &domain.User{
		Username:       in.Username,
		DisplayName:    strings.TrimSpace(in.DisplayName),
		Email:          in.Email,
		HashedPassword: hashed,
		IsRegistered:   strings.TrimSpace(in.DisplayName) != "",
		IsActive:       true,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, domain.StoreUnavailable(err)
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, domain.StoreUnavailable(err)
	}
	if user == nil {
		return nil, domain.Unauthenticated("incorrect username or password")
	}
	if !user.IsActive {
		return nil, domain.Unauthenticated("user account is inactive")
	}

	if err := s.hash.Verify(in.Password, user.HashedPassword); err != nil {
		return nil, domain.Unauthenticated("incorrect username or password")
	}

	if err := s.users.SetOnlineStatus(ctx, user.ID, true); err != nil {
		return nil, domain.StoreUnavailable(err)
	}
	s.cache.Invalidate(user.ID)

	token, err := s.tokens.CreateForUser(user.ID)
	if err != nil {
		return nil, domain.Internal("failed to create token")
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	if err := s.users.SetOnlineStatus(ctx, userID, false); err != nil {
		return domain.StoreUnavailable(err)
	}
	s.cache.Invalidate(userID)
	return nil
}
