package store

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/quillpress/apiserver/types"
)

const (
	MaxUsernameLength = 20
	MaxNameLength     = 32
	MinPasswordLength = 6
	MaxTitleLength    = 100
)

// ValidateUser checks the schema constraints of a new user. password is the
// plaintext as submitted; it is validated before hashing.
func ValidateUser(user types.User, password string) error {
	verr := NewValidationError()

	switch {
	case user.Username == "":
		verr.Add("username", "username is required")
	case utf8.RuneCountInString(user.Username) > MaxUsernameLength:
		verr.Add("username", "username field must not exceed 20 characters")
	}

	switch {
	case user.Email == "":
		verr.Add("email", "email address is required")
	case !IsEmail(user.Email):
		verr.Add("email", "invalid email address")
	}

	switch password = strings.TrimSpace(password); {
	case password == "":
		verr.Add("password", "password is required")
	case utf8.RuneCountInString(password) < MinPasswordLength:
		verr.Add("password", "enter at least 6 characters")
	}

	if utf8.RuneCountInString(user.Firstname) > MaxNameLength {
		verr.Add("firstname", "firstname field must not exceed 32 characters")
	}
	if utf8.RuneCountInString(user.Surname) > MaxNameLength {
		verr.Add("surname", "surname field must not exceed 32 characters")
	}

	return verr.OrNil()
}

// ValidateCategory checks the schema constraints of a category.
func ValidateCategory(category types.Category) error {
	verr := NewValidationError()
	if category.Name == "" {
		verr.Add("name", "name is required")
	}
	return verr.OrNil()
}

// ValidatePost checks the schema constraints of a new post.
func ValidatePost(post types.Post) error {
	verr := NewValidationError()

	switch {
	case strings.TrimSpace(post.Title) == "":
		verr.Add("title", "Title is required")
	case utf8.RuneCountInString(post.Title) > MaxTitleLength:
		verr.Add("title", "title field must not exceed 100 characters")
	}
	if strings.TrimSpace(post.Content) == "" {
		verr.Add("content", "content is required")
	}
	if post.Author.IsZero() {
		verr.Add("author", "author is required")
	}
	if post.Category == "" {
		verr.Add("category", "category is required")
	}
	if post.Image == "" {
		verr.Add("image", "image is required")
	}

	return verr.OrNil()
}

// IsEmail reports whether value is a bare address with a dotted domain.
func IsEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(value, "@")
	if at < 1 {
		return false
	}
	domain := value[at+1:]
	dot := strings.LastIndex(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
