package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillpress/apiserver/internal/store"
	"github.com/quillpress/apiserver/types"
)

const (
	passwordCost      = bcrypt.DefaultCost
	maxBcryptPassword = 72
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context) ([]types.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, id primitive.ObjectID, update types.UserUpdate) (types.User, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// ImageRemover deletes uploaded images. Implemented by *storage.Storage.
type ImageRemover interface {
	RemoveImage(ctx context.Context, url string)
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	IsAdmin  bool
}

// UpdateUserInput carries a self-service profile update. Nil fields are
// left unchanged.
type UpdateUserInput struct {
	Firstname      *string
	Surname        *string
	Username       *string
	Email          *string
	Password       *string
	ProfilePicture *string
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo   UserRepository
	images ImageRemover
	events EventPublisher
}

func NewUserService(repo UserRepository, images ImageRemover, events EventPublisher) *UserService {
	return &UserService{
		repo:   repo,
		images: images,
		events: eventsOrNoop(events),
	}
}

// Register validates and stores a new account with a bcrypt-hashed password.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	user := types.User{
		Username: types.NormalizeUsername(in.Username),
		Email:    types.NormalizeEmail(in.Email),
		IsAdmin:  in.IsAdmin,
	}
	password := strings.TrimSpace(in.Password)
	if err := store.ValidateUser(user, password); err != nil {
		return types.User{}, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return types.User{}, err
	}
	user.PasswordHash = hash

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return types.User{}, err
	}
	s.events.Publish(ctx, EventUserRegistered, created.Summary())
	return created, nil
}

func (s *UserService) List(ctx context.Context) ([]types.UserSummary, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]types.UserSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, user.Summary())
	}
	return summaries, nil
}

func (s *UserService) Get(ctx context.Context, id primitive.ObjectID) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// Update applies a profile update for the caller. Checks run in a fixed
// order and the first failure is returned as an *InputError.
func (s *UserService) Update(ctx context.Context, id primitive.ObjectID, in UpdateUserInput) (types.User, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, err
	}

	update := types.UserUpdate{
		Firstname:      in.Firstname,
		Surname:        in.Surname,
		ProfilePicture: in.ProfilePicture,
	}

	if tooLong(in.Firstname, store.MaxNameLength) || tooLong(in.Surname, store.MaxNameLength) {
		return types.User{}, inputError("firstname and surname fields must not exceed 32 characters")
	}

	if in.Username != nil && strings.TrimSpace(*in.Username) != "" {
		if tooLong(in.Username, store.MaxUsernameLength) {
			return types.User{}, inputError("username field must not exceed 20 characters")
		}
		username := types.NormalizeUsername(*in.Username)
		taken, err := s.usedByOther(ctx, id, func(ctx context.Context) (types.User, error) {
			return s.repo.GetByUsername(ctx, username)
		})
		if err != nil {
			return types.User{}, err
		}
		if taken {
			return types.User{}, inputError("username already exists, choose a different username")
		}
		update.Username = &username
	}

	if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
		email := types.NormalizeEmail(*in.Email)
		if !store.IsEmail(email) {
			return types.User{}, inputError("Invalid email address")
		}
		taken, err := s.usedByOther(ctx, id, func(ctx context.Context) (types.User, error) {
			return s.repo.GetByEmail(ctx, email)
		})
		if err != nil {
			return types.User{}, err
		}
		if taken {
			return types.User{}, inputError("email already exists, choose a different email")
		}
		update.Email = &email
	}

	if in.Password != nil && *in.Password != "" {
		password := strings.TrimSpace(*in.Password)
		if utf8.RuneCountInString(password) < store.MinPasswordLength {
			return types.User{}, inputError("enter at least 6 characters for the password")
		}
		hash, err := hashPassword(password)
		if err != nil {
			return types.User{}, err
		}
		update.PasswordHash = &hash
	}

	if update.Empty() {
		return types.User{}, ErrNotModified
	}

	updated, err := s.repo.Update(ctx, id, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotModified
		}
		return types.User{}, err
	}

	if update.ProfilePicture != nil && current.ProfilePicture != "" && current.ProfilePicture != updated.ProfilePicture {
		s.removeImage(ctx, current.ProfilePicture)
	}
	s.events.Publish(ctx, EventUserUpdated, updated.Summary())
	return updated, nil
}

// Delete removes the caller's account.
func (s *UserService) Delete(ctx context.Context, id primitive.ObjectID) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeleteFailed
		}
		return err
	}

	s.removeImage(ctx, user.ProfilePicture)
	s.events.Publish(ctx, EventUserDeleted, user.Summary())
	return nil
}

func (s *UserService) usedByOther(ctx context.Context, self primitive.ObjectID, lookup func(context.Context) (types.User, error)) (bool, error) {
	other, err := lookup(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return other.ID != self, nil
}

func (s *UserService) removeImage(ctx context.Context, url string) {
	if s.images != nil && url != "" {
		s.images.RemoveImage(ctx, url)
	}
}

// bcryptInput returns the bytes handed to bcrypt. Passwords longer than
// bcrypt's 72-byte limit are replaced by their base64 SHA-256 digest.
func bcryptInput(password string) []byte {
	if len(password) <= maxBcryptPassword {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func tooLong(value *string, limit int) bool {
	return value != nil && utf8.RuneCountInString(*value) > limit
}
