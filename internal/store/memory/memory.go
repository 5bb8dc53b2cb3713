// Package memory provides in-process implementations of the repositories.
// They honour the same uniqueness and not-found contracts as the MongoDB
// repositories and back the development "memory" store and the tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/quillpress/apiserver/internal/store"
	"github.com/quillpress/apiserver/types"
)

// Store holds every collection behind one lock.
type Store struct {
	mu         sync.RWMutex
	users      map[primitive.ObjectID]types.User
	categories map[primitive.ObjectID]types.Category
	posts      map[primitive.ObjectID]types.Post
	blacklist  map[string]types.BlacklistedToken
	now        func() time.Time
	last       time.Time
}

func New() *Store {
	return &Store{
		users:      make(map[primitive.ObjectID]types.User),
		categories: make(map[primitive.ObjectID]types.Category),
		posts:      make(map[primitive.ObjectID]types.Post),
		blacklist:  make(map[string]types.BlacklistedToken),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// tick returns a strictly increasing creation timestamp so newest-first
// ordering is stable for records created within the same clock tick.
func (s *Store) tick() time.Time {
	now := s.now()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

func (s *Store) Users() *UserRepository          { return &UserRepository{s: s} }
func (s *Store) Categories() *CategoryRepository { return &CategoryRepository{s: s} }
func (s *Store) Posts() *PostRepository          { return &PostRepository{s: s} }
func (s *Store) Blacklist() *BlacklistRepository { return &BlacklistRepository{s: s} }

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// UserRepository is the in-memory users collection.
type UserRepository struct {
	s *Store
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make([]types.User, 0, len(r.s.users))
	for _, user := range r.s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var users []types.User
	for _, id := range ids {
		if user, ok := r.s.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.findFirst(func(u types.User) bool { return u.Username == username })
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.findFirst(func(u types.User) bool { return u.Email == email })
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.users)), nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.checkUnique(primitive.NilObjectID, user.Username, user.Email); err != nil {
		return types.User{}, err
	}

	now := r.s.tick()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, id primitive.ObjectID, update types.UserUpdate) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}

	if update.Firstname != nil {
		user.Firstname = *update.Firstname
	}
	if update.Surname != nil {
		user.Surname = *update.Surname
	}
	if update.Username != nil {
		user.Username = *update.Username
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	if update.ProfilePicture != nil {
		user.ProfilePicture = *update.ProfilePicture
	}
	if err := r.checkUnique(id, user.Username, user.Email); err != nil {
		return types.User{}, err
	}

	user.UpdatedAt = r.s.now()
	r.s.users[id] = user
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (r *UserRepository) checkUnique(self primitive.ObjectID, username, email string) error {
	for id, other := range r.s.users {
		if id == self {
			continue
		}
		if other.Username == username {
			return store.DuplicateError("username")
		}
		if other.Email == email {
			return store.DuplicateError("email")
		}
	}
	return nil
}

func (r *UserRepository) findFirst(match func(types.User) bool) (types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, user := range r.s.users {
		if match(user) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

// CategoryRepository is the in-memory categories collection.
type CategoryRepository struct {
	s *Store
}

func (r *CategoryRepository) List(ctx context.Context) ([]types.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	categories := make([]types.Category, 0, len(r.s.categories))
	for _, category := range r.s.categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].CreatedAt.After(categories[j].CreatedAt) })
	return categories, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id primitive.ObjectID) (types.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	category, ok := r.s.categories[id]
	if !ok {
		return types.Category{}, store.ErrNotFound
	}
	return category, nil
}

func (r *CategoryRepository) GetByName(ctx context.Context, name string) (types.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, category := range r.s.categories {
		if category.Name == name {
			return category, nil
		}
	}
	return types.Category{}, store.ErrNotFound
}

func (r *CategoryRepository) Create(ctx context.Context, category types.Category) (types.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.nameTaken(primitive.NilObjectID, category.Name) {
		return types.Category{}, store.DuplicateError("name")
	}

	now := r.s.tick()
	category.ID = primitive.NewObjectID()
	category.CreatedAt = now
	category.UpdatedAt = now
	r.s.categories[category.ID] = category
	return category, nil
}

func (r *CategoryRepository) Rename(ctx context.Context, id primitive.ObjectID, name string) (types.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	category, ok := r.s.categories[id]
	if !ok {
		return types.Category{}, store.ErrNotFound
	}
	if r.nameTaken(id, name) {
		return types.Category{}, store.DuplicateError("name")
	}

	category.Name = name
	category.UpdatedAt = r.s.now()
	r.s.categories[id] = category
	return category, nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.categories, id)
	return nil
}

func (r *CategoryRepository) nameTaken(self primitive.ObjectID, name string) bool {
	for id, other := range r.s.categories {
		if id != self && other.Name == name {
			return true
		}
	}
	return false
}

// PostRepository is the in-memory posts collection.
type PostRepository struct {
	s *Store
}

func (r *PostRepository) List(ctx context.Context) ([]types.Post, error) {
	return r.filter(func(types.Post) bool { return true }), nil
}

func (r *PostRepository) ListByCategory(ctx context.Context, category string) ([]types.Post, error) {
	return r.filter(func(p types.Post) bool { return p.Category == category }), nil
}

func (r *PostRepository) Get(ctx context.Context, id primitive.ObjectID) (types.Post, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	post, ok := r.s.posts[id]
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	return clonePost(post), nil
}

func (r *PostRepository) Count(ctx context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.posts)), nil
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.tick()
	post.ID = primitive.NewObjectID()
	post.CreatedAt = now
	post.UpdatedAt = now
	post = clonePost(post)
	r.s.posts[post.ID] = post
	return clonePost(post), nil
}

func (r *PostRepository) Update(ctx context.Context, id primitive.ObjectID, update types.PostUpdate) (types.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	post, ok := r.s.posts[id]
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	if update.Title != nil {
		post.Title = *update.Title
	}
	if update.Content != nil {
		post.Content = *update.Content
	}
	if update.Category != nil {
		post.Category = *update.Category
	}
	if update.Image != nil {
		post.Image = *update.Image
	}
	post.UpdatedAt = r.s.now()
	r.s.posts[id] = post
	return clonePost(post), nil
}

func (r *PostRepository) ToggleLike(ctx context.Context, id, userID primitive.ObjectID) (types.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	post, ok := r.s.posts[id]
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	likes := clonePost(post).Likes
	if i := slices.Index(likes, userID); i >= 0 {
		likes = slices.Delete(likes, i, i+1)
	} else {
		likes = append(likes, userID)
	}
	post.Likes = likes
	post.UpdatedAt = r.s.now()
	r.s.posts[id] = post
	return clonePost(post), nil
}

func (r *PostRepository) RenameCategory(ctx context.Context, from, to string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var modified int64
	for id, post := range r.s.posts {
		if post.Category == from {
			post.Category = to
			post.UpdatedAt = r.s.now()
			r.s.posts[id] = post
			modified++
		}
	}
	return modified, nil
}

func (r *PostRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.posts, id)
	return nil
}

func (r *PostRepository) filter(match func(types.Post) bool) []types.Post {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	posts := make([]types.Post, 0)
	for _, post := range r.s.posts {
		if match(post) {
			posts = append(posts, clonePost(post))
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts
}

func clonePost(post types.Post) types.Post {
	likes := make([]primitive.ObjectID, len(post.Likes))
	copy(likes, post.Likes)
	post.Likes = likes
	return post
}

// BlacklistRepository is the in-memory token blacklist. Entries past their
// expiry are dropped lazily on lookup.
type BlacklistRepository struct {
	s *Store
}

func (r *BlacklistRepository) Add(ctx context.Context, entry types.BlacklistedToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.blacklist[entry.Token]; exists {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.s.now()
	}
	entry.ID = primitive.NewObjectID()
	r.s.blacklist[entry.Token] = entry
	return nil
}

func (r *BlacklistRepository) Exists(ctx context.Context, token string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry, ok := r.s.blacklist[token]
	if !ok {
		return false, nil
	}
	if !entry.ExpiresAt.IsZero() && r.s.now().After(entry.ExpiresAt) {
		delete(r.s.blacklist, token)
		return false, nil
	}
	return true, nil
}
