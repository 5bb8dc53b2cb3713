package services

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/quillpress/apiserver/internal/store"
	"github.com/quillpress/apiserver/types"
)

// LoginInput identifies a user by email or username. Email wins when both
// are given.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// AuthService issues, verifies and revokes access tokens.
type AuthService struct {
	users     UserRepository
	tokens    *TokenIssuer
	blacklist *BlacklistService
}

func NewAuthService(users UserRepository, tokens *TokenIssuer, blacklist *BlacklistService) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		blacklist: blacklist,
	}
}

// Login checks the credentials and returns a signed access token. Unknown
// users and wrong passwords both yield ErrIncorrectCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (string, error) {
	var (
		user types.User
		err  error
	)
	if strings.TrimSpace(in.Email) != "" {
		user, err = s.users.GetByEmail(ctx, types.NormalizeEmail(in.Email))
	} else {
		user, err = s.users.GetByUsername(ctx, types.NormalizeUsername(in.Username))
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrIncorrectCredentials
		}
		return "", err
	}

	password := strings.TrimSpace(in.Password)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), bcryptInput(password)); err != nil {
		return "", ErrIncorrectCredentials
	}

	return s.tokens.Issue(user)
}

// Logout blacklists token until its natural expiry. The token is not
// verified first.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.blacklist.Revoke(ctx, token, s.tokens.ExpiresAt(token))
}

// Authenticate resolves a bearer token to the caller's identity. Revoked
// tokens yield ErrUnauthorized; malformed, forged or expired ones wrap
// ErrInvalidToken.
func (s *AuthService) Authenticate(ctx context.Context, token string) (types.Identity, error) {
	revoked, err := s.blacklist.IsRevoked(ctx, token)
	if err != nil {
		return types.Identity{}, err
	}
	if revoked {
		return types.Identity{}, ErrUnauthorized
	}
	return s.tokens.Verify(token)
}
