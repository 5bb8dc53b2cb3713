package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BlacklistedToken is a bearer token revoked before its natural expiry.
type BlacklistedToken struct {
	ID    primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Token string             `json:"token" bson:"token"`

	// ExpiresAt is when the token would have expired anyway; the entry can
	// be purged after that.
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Identity is the authenticated caller decoded from a bearer token.
type Identity struct {
	UserID  primitive.ObjectID
	IsAdmin bool
}
