package handlers

import (
	"encoding/json"
	"errors"
	"maps"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/quillpress/apiserver/internal/services"
	"github.com/quillpress/apiserver/internal/storage"
	"github.com/quillpress/apiserver/internal/store"
)

const fieldServer = "server"

// normalizeError turns any failure into a field-keyed message map.
func normalizeError(err error) map[string]string {
	var (
		validation *store.ValidationError
		invalidID  *store.InvalidIDError
		input      *services.InputError
		syntaxErr  *json.SyntaxError
		typeErr    *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &validation):
		return maps.Clone(validation.Fields)
	case mongo.IsDuplicateKeyError(err):
		field := store.DuplicateField(err)
		return map[string]string{field: field + " already exists"}
	case errors.As(err, &invalidID):
		return map[string]string{invalidID.Field: "Invalid " + invalidID.Field}
	case errors.Is(err, primitive.ErrInvalidHex):
		return map[string]string{"_id": "Invalid _id"}
	case errors.Is(err, services.ErrUnauthorized):
		return map[string]string{"token": "Unauthorized"}
	case errors.Is(err, services.ErrInvalidToken), isJWTError(err):
		return map[string]string{"token": "Invalid token"}
	case errors.As(err, &input):
		return map[string]string{"customError": input.Message}
	case errors.As(err, &syntaxErr):
		return map[string]string{"syntaxError": syntaxErr.Error()}
	case errors.As(err, &typeErr):
		return map[string]string{"typeError": typeErr.Error()}
	case errors.Is(err, storage.ErrInvalidImageType):
		return map[string]string{"image": "Invalid image type"}
	default:
		return map[string]string{fieldServer: "Internal Server Error"}
	}
}

func isJWTError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenExpired,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenInvalidClaims,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
