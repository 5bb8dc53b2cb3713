package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/quillpress/apiserver/internal/store"
	"github.com/quillpress/apiserver/types"
)

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]types.Category, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (types.Category, error)
	GetByName(ctx context.Context, name string) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	Rename(ctx context.Context, id primitive.ObjectID, name string) (types.Category, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// CategoryRenamer moves posts from one category name to another.
type CategoryRenamer interface {
	RenameCategory(ctx context.Context, from, to string) (int64, error)
}

// CategoryService encapsulates category administration.
type CategoryService struct {
	repo   CategoryRepository
	posts  CategoryRenamer
	events EventPublisher
}

func NewCategoryService(repo CategoryRepository, posts CategoryRenamer, events EventPublisher) *CategoryService {
	return &CategoryService{
		repo:   repo,
		posts:  posts,
		events: eventsOrNoop(events),
	}
}

func (s *CategoryService) List(ctx context.Context) ([]types.Category, error) {
	return s.repo.List(ctx)
}

func (s *CategoryService) Get(ctx context.Context, id primitive.ObjectID) (types.Category, error) {
	return s.repo.GetByID(ctx, id)
}

// Create stores a category under its normalized name.
func (s *CategoryService) Create(ctx context.Context, name string) (types.Category, error) {
	category := types.Category{Name: types.NormalizeCategory(name)}
	if err := store.ValidateCategory(category); err != nil {
		return types.Category{}, err
	}

	created, err := s.repo.Create(ctx, category)
	if err != nil {
		return types.Category{}, err
	}
	s.events.Publish(ctx, EventCategoryCreated, created)
	return created, nil
}

// Rename changes a category's name and refiles its posts under the new one.
func (s *CategoryService) Rename(ctx context.Context, id primitive.ObjectID, name string) (types.Category, error) {
	name = types.NormalizeCategory(name)

	other, err := s.repo.GetByName(ctx, name)
	switch {
	case err == nil && other.ID != id:
		return types.Category{}, ErrCategoryNameTaken
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return types.Category{}, err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Category{}, err
	}
	if current.Name == name {
		return types.Category{}, ErrNotModified
	}

	renamed, err := s.repo.Rename(ctx, id, name)
	if err != nil {
		return types.Category{}, err
	}

	if s.posts != nil {
		moved, err := s.posts.RenameCategory(ctx, current.Name, renamed.Name)
		if err != nil {
			return types.Category{}, err
		}
		zerolog.Ctx(ctx).Debug().Int64("posts", moved).Str("from", current.Name).Str("to", renamed.Name).Msg("category renamed")
	}
	s.events.Publish(ctx, EventCategoryUpdated, renamed)
	return renamed, nil
}

func (s *CategoryService) Delete(ctx context.Context, id primitive.ObjectID) error {
	category, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeleteFailed
		}
		return err
	}
	s.events.Publish(ctx, EventCategoryDeleted, category)
	return nil
}
