package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category is a named tag that posts are filed under.
type Category struct {
	// ID is the unique identifier of the category.
	ID primitive.ObjectID `json:"_id" bson:"_id,omitempty"`

	// Name is unique and stored normalized (see NormalizeCategory).
	Name string `json:"name" bson:"name"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
