package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is a blog entry written by a user and filed under a category.
type Post struct {
	// ID is the unique identifier of the post.
	ID primitive.ObjectID `json:"_id" bson:"_id,omitempty"`

	// Title is required and at most 100 characters long.
	Title string `json:"title" bson:"title"`

	// Content is the body of the post.
	Content string `json:"content" bson:"content"`

	// Author references the user who created the post. It never changes
	// after creation.
	Author primitive.ObjectID `json:"author" bson:"author"`

	// Category holds the normalized name of an existing category.
	Category string `json:"category" bson:"category"`

	// Image is the absolute URL of the uploaded post image.
	Image string `json:"image" bson:"image"`

	// Likes is the set of users who liked the post.
	Likes []primitive.ObjectID `json:"likes" bson:"likes"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// PostView is a post with its author and likes resolved to usernames.
type PostView struct {
	ID        primitive.ObjectID `json:"_id"`
	Title     string             `json:"title"`
	Content   string             `json:"content"`
	Author    *UserRef           `json:"author"`
	Category  string             `json:"category"`
	Image     string             `json:"image"`
	Likes     []UserRef          `json:"likes"`
	CreatedAt time.Time          `json:"createdAt"`
}

// PostUpdate carries the optional fields of a post update.
// Nil fields are left unchanged.
type PostUpdate struct {
	Title    *string
	Content  *string
	Category *string
	Image    *string
}

// Empty reports whether the update changes nothing.
func (u PostUpdate) Empty() bool {
	return u.Title == nil && u.Content == nil && u.Category == nil && u.Image == nil
}
