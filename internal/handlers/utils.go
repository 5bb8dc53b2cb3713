package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/quillpress/apiserver/internal/store"
	"github.com/quillpress/apiserver/types"
)

const (
	msgInvalidID         = "Invalid ID"
	msgExpectationFailed = "Expectation Failed"
)

type contextKey string

const (
	contextIdentityKey contextKey = "identity"
	contextTokenKey    contextKey = "token"
)

// MessageResponse is the payload of most successes and handled failures.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrorsResponse carries field-keyed validation messages.
type ErrorsResponse struct {
	Errors map[string]string `json:"errors"`
}

func withIdentity(ctx context.Context, identity types.Identity, token string) context.Context {
	ctx = context.WithValue(ctx, contextIdentityKey, identity)
	return context.WithValue(ctx, contextTokenKey, token)
}

func identityFromContext(ctx context.Context) (types.Identity, bool) {
	identity, ok := ctx.Value(contextIdentityKey).(types.Identity)
	return identity, ok
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(contextTokenKey).(string)
	return token
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeErrors reports err as a field-keyed map. Server failures are logged
// and answered with 500, everything else with 400.
func writeErrors(w http.ResponseWriter, r *http.Request, err error) {
	fields := normalizeError(err)
	status := http.StatusBadRequest
	if _, ok := fields[fieldServer]; ok {
		status = http.StatusInternalServerError
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, ErrorsResponse{Errors: fields})
}

// writeNotModified answers 304, which carries no body.
func writeNotModified(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotModified)
}

func parseID(r *http.Request) (primitive.ObjectID, error) {
	return store.ParseID("id", chi.URLParam(r, "id"))
}

// decodeJSON decodes the request body into dst. An empty body leaves dst
// untouched.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
