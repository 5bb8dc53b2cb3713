package services

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/quillpress/apiserver/types"
)

func TestTokenIssueVerify(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	user := types.User{ID: primitive.NewObjectID(), IsAdmin: true}

	token, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	identity, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.UserID != user.ID || !identity.IsAdmin {
		t.Fatalf("identity = %+v", identity)
	}

	claims := Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ID != user.ID.Hex() {
		t.Fatalf("_id claim = %q", claims.ID)
	}
}

func TestTokenVerifyRejects(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer("secret", time.Hour)
	issuer.now = func() time.Time { return now }

	token, err := issuer.Issue(types.User{ID: primitive.NewObjectID()})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	forged, _ := NewTokenIssuer("other", time.Hour).Issue(types.User{ID: primitive.NewObjectID()})
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: primitive.NewObjectID().Hex()}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"garbage":        "not.a.token",
		"wrong secret":   forged,
		"none algorithm": none,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("err = %v", err)
			}
		})
	}

	now = now.Add(2 * time.Hour)
	_, err = issuer.Verify(token)
	if !errors.Is(err, ErrInvalidToken) || !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expired: %v", err)
	}
}

func TestTokenExpiresAt(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer("secret", 30*time.Minute)
	issuer.now = func() time.Time { return now }

	token, _ := issuer.Issue(types.User{ID: primitive.NewObjectID()})
	if got := issuer.ExpiresAt(token); !got.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("ExpiresAt = %s", got)
	}
	if got := issuer.ExpiresAt("garbage"); !got.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("fallback ExpiresAt = %s", got)
	}
}

func TestNewTokenIssuerDefaultTTL(t *testing.T) {
	if issuer := NewTokenIssuer("secret", 0); issuer.ttl != DefaultTokenTTL {
		t.Fatalf("ttl = %s", issuer.ttl)
	}
}
