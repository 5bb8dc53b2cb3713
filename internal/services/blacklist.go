package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillpress/apiserver/types"
)

// BlacklistRepository defines persistence operations for revoked tokens.
type BlacklistRepository interface {
	Add(ctx context.Context, entry types.BlacklistedToken) error
	Exists(ctx context.Context, token string) (bool, error)
}

// TokenCache is an optional fast path in front of the blacklist collection.
type TokenCache interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

// BlacklistService revokes tokens and answers whether a token is revoked.
type BlacklistService struct {
	repo  BlacklistRepository
	cache TokenCache
	now   func() time.Time
}

// NewBlacklistService constructs the service. cache may be nil.
func NewBlacklistService(repo BlacklistRepository, cache TokenCache) *BlacklistService {
	return &BlacklistService{repo: repo, cache: cache, now: time.Now}
}

// Revoke records token as unusable until expiresAt.
func (s *BlacklistService) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	now := s.now().UTC()
	entry := types.BlacklistedToken{
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}
	if err := s.repo.Add(ctx, entry); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Add(ctx, token, expiresAt.Sub(now)); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("cache revoked token")
		}
	}
	return nil
}

// IsRevoked reports whether token has been blacklisted.
func (s *BlacklistService) IsRevoked(ctx context.Context, token string) (bool, error) {
	if s.cache != nil {
		hit, err := s.cache.Contains(ctx, token)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("token cache lookup")
		} else if hit {
			return true, nil
		}
	}
	return s.repo.Exists(ctx, token)
}
