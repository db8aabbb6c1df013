package auth

import (
	"errors"

	"github.com/parlor-chat/parlor/internal/store"
)

var (
	// ErrUnknownUser is returned when a valid token names a user that no
	// longer exists.
	ErrUnknownUser = errors.New("user not found")
	// ErrInactiveAccount is returned when the account is deactivated.
	ErrInactiveAccount = errors.New("user account is deactivated")
	// ErrInvalidCredentials is returned on a failed email/password login.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Identity is the authenticated principal attached to a connection. It is
// resolved once at connection time and immutable afterwards.
type Identity struct {
	UserID   uint
	Username string
	Active   bool
}

// UserDirectory is the subset of the store the authenticator needs.
type UserDirectory interface {
	UserByEmail(email string) (*store.User, error)
	UserByID(id uint) (*store.User, error)
}

// Service validates credentials and issues tokens.
type Service struct {
	tokens *JWTManager
	hasher *PasswordHasher
	users  UserDirectory
}

// NewService creates an authentication service backed by the given user
// directory.
func NewService(tokens *JWTManager, hasher *PasswordHasher, users UserDirectory) *Service {
	return &Service{tokens: tokens, hasher: hasher, users: users}
}

// Resolve validates a bearer credential and returns the identity it names.
// Failures are one of ErrInvalidToken, ErrExpiredToken, ErrUnknownUser, or
// ErrInactiveAccount.
func (s *Service) Resolve(credential string) (*Identity, error) {
	claims, err := s.tokens.ValidateAccessToken(credential)
	if err != nil {
		return nil, err
	}

	user, err := s.users.UserByEmail(claims.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	return &Identity{UserID: user.ID, Username: user.Username, Active: user.IsActive}, nil
}

// Authenticate checks an email/password pair and returns the matching user.
func (s *Service) Authenticate(email, password string) (*store.User, error) {
	user, err := s.users.UserByEmail(email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, user.HashedPassword) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}
	return user, nil
}

// IssueTokens generates an access/refresh token pair for the user.
func (s *Service) IssueTokens(user *store.User) (access, refresh string, err error) {
	access, err = s.tokens.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.tokens.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Refresh validates a refresh token and returns the user it belongs to.
func (s *Service) Refresh(refreshToken string) (*store.User, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.UserByEmail(claims.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}
	return user, nil
}

// HashPassword hashes a plain text password for storage.
func (s *Service) HashPassword(password string) (string, error) {
	return s.hasher.Hash(password)
}
