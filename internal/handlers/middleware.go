package handlers

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/quillpress/apiserver/internal/services"
	"github.com/quillpress/apiserver/types"
)

const (
	msgUnauthorized  = "Unauthorized"
	msgInvalidToken  = "Token is not valid!"
	msgInternalError = "Internal server error"
)

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.Identity, error)
}

// RequireAuth rejects requests without a valid, unrevoked bearer token and
// stores the caller's identity and raw token in the request context.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			token := bearerToken(header)
			if token == "" {
				writeMessage(w, http.StatusForbidden, msgInvalidToken)
				return
			}

			identity, err := auth.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, services.ErrUnauthorized):
				writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
				return
			case errors.Is(err, services.ErrInvalidToken):
				writeMessage(w, http.StatusForbidden, msgInvalidToken)
				return
			default:
				writeErrors(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity, token)))
		})
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityFromContext(r.Context())
		if !ok || !identity.IsAdmin {
			writeMessage(w, http.StatusForbidden, msgUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Recoverer turns panics into a JSON 500 and logs the stack.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			hlog.FromRequest(r).Error().
				Interface("panic", rvr).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic")
			writeError(w, http.StatusInternalServerError, msgInternalError)
		}()
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
