package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/quillpress/apiserver/internal/store"
	"github.com/quillpress/apiserver/types"
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	List(ctx context.Context) ([]types.Post, error)
	ListByCategory(ctx context.Context, category string) ([]types.Post, error)
	Get(ctx context.Context, id primitive.ObjectID) (types.Post, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Update(ctx context.Context, id primitive.ObjectID, update types.PostUpdate) (types.Post, error)
	ToggleLike(ctx context.Context, id, userID primitive.ObjectID) (types.Post, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// CreatePostInput is the payload of a new post. Image is the public URL of
// an already stored upload.
type CreatePostInput struct {
	Title    string
	Content  string
	Category string
	Image    string
}

// UpdatePostInput carries a partial post update. Nil or blank fields are
// left unchanged.
type UpdatePostInput struct {
	Title    *string
	Content  *string
	Category *string
	Image    *string
}

// PostService encapsulates post use-cases.
type PostService struct {
	posts      PostRepository
	users      UserRepository
	categories CategoryRepository
	images     ImageRemover
	events     EventPublisher
}

func NewPostService(
	posts PostRepository,
	users UserRepository,
	categories CategoryRepository,
	images ImageRemover,
	events EventPublisher,
) *PostService {
	return &PostService{
		posts:      posts,
		users:      users,
		categories: categories,
		images:     images,
		events:     eventsOrNoop(events),
	}
}

// List returns every post, newest first, with users resolved to usernames.
func (s *PostService) List(ctx context.Context) ([]types.PostView, error) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, posts)
}

// ListByCategory returns the posts filed under the normalized form of
// category. A blank category places no filter and lists every post.
func (s *PostService) ListByCategory(ctx context.Context, category string) ([]types.PostView, error) {
	normalized := types.NormalizeCategory(category)
	if normalized == "" {
		return s.List(ctx)
	}
	posts, err := s.posts.ListByCategory(ctx, normalized)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, posts)
}

func (s *PostService) Get(ctx context.Context, id primitive.ObjectID) (types.PostView, error) {
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		return types.PostView{}, err
	}
	views, err := s.views(ctx, []types.Post{post})
	if err != nil {
		return types.PostView{}, err
	}
	return views[0], nil
}

func (s *PostService) Count(ctx context.Context) (int64, error) {
	return s.posts.Count(ctx)
}

// Create files a new post by author. A given category must already exist.
func (s *PostService) Create(ctx context.Context, author primitive.ObjectID, in CreatePostInput) (types.Post, error) {
	if err := s.requireUser(ctx, author); err != nil {
		return types.Post{}, err
	}

	post := types.Post{
		Title:   strings.TrimSpace(in.Title),
		Content: strings.TrimSpace(in.Content),
		Author:  author,
		Image:   in.Image,
	}
	if strings.TrimSpace(in.Category) != "" {
		category, err := s.category(ctx, in.Category)
		if err != nil {
			return types.Post{}, err
		}
		post.Category = category
	}
	if err := store.ValidatePost(post); err != nil {
		return types.Post{}, err
	}

	created, err := s.posts.Create(ctx, post)
	if err != nil {
		return types.Post{}, err
	}
	s.events.Publish(ctx, EventPostCreated, created)
	return created, nil
}

// Update changes the supplied fields of a post owned by caller.
func (s *PostService) Update(ctx context.Context, caller, id primitive.ObjectID, in UpdatePostInput) (types.Post, error) {
	if err := s.requireUser(ctx, caller); err != nil {
		return types.Post{}, err
	}
	current, err := s.owned(ctx, caller, id)
	if err != nil {
		return types.Post{}, err
	}

	var update types.PostUpdate
	if title, ok := supplied(in.Title); ok {
		if utf8.RuneCountInString(title) > store.MaxTitleLength {
			return types.Post{}, inputError("title field must not exceed 100 characters")
		}
		update.Title = &title
	}
	if content, ok := supplied(in.Content); ok {
		update.Content = &content
	}
	if raw, ok := supplied(in.Category); ok {
		category, err := s.category(ctx, raw)
		if err != nil {
			return types.Post{}, err
		}
		update.Category = &category
	}
	if image, ok := supplied(in.Image); ok {
		update.Image = &image
	}

	if update.Empty() {
		return types.Post{}, ErrNotModified
	}

	updated, err := s.posts.Update(ctx, id, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Post{}, ErrNotModified
		}
		return types.Post{}, err
	}

	if update.Image != nil && current.Image != updated.Image {
		s.removeImage(ctx, current.Image)
	}
	s.events.Publish(ctx, EventPostUpdated, updated)
	return updated, nil
}

// ToggleLike adds caller to the post's likes, or removes them if present.
func (s *PostService) ToggleLike(ctx context.Context, caller, id primitive.ObjectID) (types.Post, error) {
	if err := s.requireUser(ctx, caller); err != nil {
		return types.Post{}, err
	}

	post, err := s.posts.ToggleLike(ctx, id, caller)
	if err != nil {
		return types.Post{}, err
	}

	event := EventPostUnliked
	if slices.Contains(post.Likes, caller) {
		event = EventPostLiked
	}
	s.events.Publish(ctx, event, map[string]string{
		"post": post.ID.Hex(),
		"user": caller.Hex(),
	})
	return post, nil
}

// TotalLikes returns how many users like the post.
func (s *PostService) TotalLikes(ctx context.Context, id primitive.ObjectID) (int, error) {
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return len(post.Likes), nil
}

// Delete removes a post owned by caller together with its image.
func (s *PostService) Delete(ctx context.Context, caller, id primitive.ObjectID) error {
	if err := s.requireUser(ctx, caller); err != nil {
		return err
	}
	post, err := s.owned(ctx, caller, id)
	if err != nil {
		return err
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeleteFailed
		}
		return err
	}

	s.removeImage(ctx, post.Image)
	s.events.Publish(ctx, EventPostDeleted, post)
	return nil
}

func (s *PostService) requireUser(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// owned loads a post and hides posts of other authors behind ErrNotAuthor.
func (s *PostService) owned(ctx context.Context, caller, id primitive.ObjectID) (types.Post, error) {
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Post{}, ErrNotAuthor
		}
		return types.Post{}, err
	}
	if post.Author != caller {
		return types.Post{}, ErrNotAuthor
	}
	return post, nil
}

func (s *PostService) category(ctx context.Context, raw string) (string, error) {
	category, err := s.categories.GetByName(ctx, types.NormalizeCategory(raw))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrCategoryNotFound
		}
		return "", err
	}
	return category.Name, nil
}

func (s *PostService) views(ctx context.Context, posts []types.Post) ([]types.PostView, error) {
	seen := make(map[primitive.ObjectID]struct{})
	ids := make([]primitive.ObjectID, 0)
	collect := func(id primitive.ObjectID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, post := range posts {
		collect(post.Author)
		for _, id := range post.Likes {
			collect(id)
		}
	}

	usernames := make(map[primitive.ObjectID]string, len(ids))
	if len(ids) > 0 {
		users, err := s.users.GetByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, user := range users {
			usernames[user.ID] = user.Username
		}
	}

	views := make([]types.PostView, 0, len(posts))
	for _, post := range posts {
		view := types.PostView{
			ID:        post.ID,
			Title:     post.Title,
			Content:   post.Content,
			Category:  post.Category,
			Image:     post.Image,
			Likes:     make([]types.UserRef, 0, len(post.Likes)),
			CreatedAt: post.CreatedAt,
		}
		if username, ok := usernames[post.Author]; ok {
			view.Author = &types.UserRef{Username: username}
		}
		for _, id := range post.Likes {
			if username, ok := usernames[id]; ok {
				view.Likes = append(view.Likes, types.UserRef{Username: username})
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *PostService) removeImage(ctx context.Context, url string) {
	if s.images != nil && url != "" {
		s.images.RemoveImage(ctx, url)
	}
}

func supplied(value *string) (string, bool) {
	if value == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*value)
	return trimmed, trimmed != ""
}
