package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/quillpress/apiserver/types"
)

const BlacklistCollection = "tokenblacklists"

// BlacklistRepository stores revoked bearer tokens.
type BlacklistRepository struct {
	col *mongo.Collection
}

func NewBlacklistRepository(db *mongo.Database) *BlacklistRepository {
	return &BlacklistRepository{col: db.Collection(BlacklistCollection)}
}

// Add records token as revoked. Revoking the same token twice is not an error.
func (r *BlacklistRepository) Add(ctx context.Context, entry types.BlacklistedToken) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := r.col.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return err
	}
	return nil
}

func (r *BlacklistRepository) Exists(ctx context.Context, token string) (bool, error) {
	err := r.col.FindOne(ctx, bson.M{"token": token}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
