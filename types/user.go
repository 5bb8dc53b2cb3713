package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents an account in the system.
// It contains identity, profile, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID primitive.ObjectID `json:"_id" bson:"_id,omitempty"`

	// Firstname is an optional given name, at most 32 characters.
	Firstname string `json:"firstname" bson:"firstname"`

	// Surname is an optional family name, at most 32 characters.
	Surname string `json:"surname" bson:"surname"`

	// Username is the unique login name. It is stored normalized:
	// trimmed, lowercased, with all whitespace removed.
	Username string `json:"username" bson:"username"`

	// Email is the unique, lowercased email address of the user.
	Email string `json:"email" bson:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" bson:"password"`

	// ProfilePicture is the absolute URL of the uploaded profile picture.
	ProfilePicture string `json:"profilePicture" bson:"profilePicture"`

	// IsAdmin grants access to the category administration routes.
	IsAdmin bool `json:"isAdmin" bson:"isAdmin"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UserSummary is the list projection of a user.
type UserSummary struct {
	ID             primitive.ObjectID `json:"_id"`
	Username       string             `json:"username"`
	Email          string             `json:"email"`
	ProfilePicture string             `json:"profilePicture"`
	IsAdmin        bool               `json:"isAdmin"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// Summary projects the user for list responses.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		ProfilePicture: u.ProfilePicture,
		IsAdmin:        u.IsAdmin,
		CreatedAt:      u.CreatedAt,
	}
}

// UserRef is the username-only projection used when a post embeds its
// author or the users who liked it.
type UserRef struct {
	Username string `json:"username"`
}

// UserUpdate carries the optional fields of a self-service profile update.
// Nil fields are left unchanged.
type UserUpdate struct {
	Firstname      *string
	Surname        *string
	Username       *string
	Email          *string
	PasswordHash   *string
	ProfilePicture *string
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Firstname == nil && u.Surname == nil && u.Username == nil &&
		u.Email == nil && u.PasswordHash == nil && u.ProfilePicture == nil
}
