// internal/domain/cart/repository.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/minishop/storefront-backend/internal/pkg/apperrors"
)

// ErrOwnerExists is returned by Create when another writer inserted the
// owner's cart first.
var ErrOwnerExists = errors.New("cart already exists for owner")

// Repository is the cart persistence surface. Every item mutation also
// adjusts total_amount and updated_at in the same atomic update.
type Repository interface {
	GetByOwner(ctx context.Context, ownerID int64) (*Cart, error)
	Create(ctx context.Context, c *Cart) error
	Replace(ctx context.Context, ownerID int64, fresh *Cart) error
	PushItem(ctx context.Context, ownerID int64, item Item) error
	IncLineQuantity(ctx context.Context, ownerID int64, productID, variantID string, delta int, amountDelta int64) error
	SetItemQuantity(ctx context.Context, ownerID int64, itemID string, quantity int, amountDelta int64) error
	PullItem(ctx context.Context, ownerID int64, itemID string, amountDelta int64) error
	Clear(ctx context.Context, ownerID int64) error
	Delete(ctx context.Context, ownerID int64) error
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]Cart, error)
	ClearIfUntouched(ctx context.Context, ownerID int64, seenUpdatedAt time.Time) (bool, error)
}

type mongoRepository struct {
	carts *mongo.Collection
}

// NewMongoRepository creates a cart repository over the carts collection
func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{carts: db.Collection("carts")}
}

func (r *mongoRepository) GetByOwner(ctx context.Context, ownerID int64) (*Cart, error) {
	var c Cart
	err := r.carts.FindOne(ctx, bson.M{"user_id": ownerID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}
	return &c, nil
}

func (r *mongoRepository) Create(ctx context.Context, c *Cart) error {
	result, err := r.carts.InsertOne(ctx, c)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrOwnerExists
		}
		return fmt.Errorf("failed to create cart: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		c.ID = oid
	}
	return nil
}

func (r *mongoRepository) Replace(ctx context.Context, ownerID int64, fresh *Cart) error {
	_, err := r.carts.ReplaceOne(ctx, bson.M{"user_id": ownerID}, fresh,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to replace cart: %w", err)
	}
	return nil
}

func (r *mongoRepository) PushItem(ctx context.Context, ownerID int64, item Item) error {
	result, err := r.carts.UpdateOne(ctx,
		bson.M{"user_id": ownerID},
		bson.M{
			"$push": bson.M{"items": item},
			"$inc":  bson.M{"total_amount": item.Price * int64(item.Quantity)},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to push cart item: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrCartNotFound
	}
	return nil
}

func (r *mongoRepository) IncLineQuantity(ctx context.Context, ownerID int64, productID, variantID string, delta int, amountDelta int64) error {
	result, err := r.carts.UpdateOne(ctx,
		bson.M{
			"user_id": ownerID,
			"items": bson.M{"$elemMatch": bson.M{
				"product_id": productID,
				"variant_id": variantID,
			}},
		},
		bson.M{
			"$inc": bson.M{"items.$.quantity": delta, "total_amount": amountDelta},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to change cart line quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrItemNotFound
	}
	return nil
}

func (r *mongoRepository) SetItemQuantity(ctx context.Context, ownerID int64, itemID string, quantity int, amountDelta int64) error {
	result, err := r.carts.UpdateOne(ctx,
		bson.M{"user_id": ownerID, "items.id": itemID},
		bson.M{
			"$set": bson.M{"items.$.quantity": quantity, "updated_at": time.Now().UTC()},
			"$inc": bson.M{"total_amount": amountDelta},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to set cart item quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrItemNotFound
	}
	return nil
}

func (r *mongoRepository) PullItem(ctx context.Context, ownerID int64, itemID string, amountDelta int64) error {
	result, err := r.carts.UpdateOne(ctx,
		bson.M{"user_id": ownerID, "items.id": itemID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"id": itemID}},
			"$inc":  bson.M{"total_amount": amountDelta},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrItemNotFound
	}
	return nil
}

func (r *mongoRepository) Clear(ctx context.Context, ownerID int64) error {
	result, err := r.carts.UpdateOne(ctx,
		bson.M{"user_id": ownerID},
		bson.M{"$set": bson.M{
			"items":        []Item{},
			"total_amount": int64(0),
			"updated_at":   time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrCartNotFound
	}
	return nil
}

func (r *mongoRepository) Delete(ctx context.Context, ownerID int64) error {
	_, err := r.carts.DeleteOne(ctx, bson.M{"user_id": ownerID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (r *mongoRepository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]Cart, error) {
	cursor, err := r.carts.Find(ctx,
		bson.M{
			"updated_at": bson.M{"$lte": cutoff},
			"items.0":    bson.M{"$exists": true},
		},
		options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "updated_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale carts: %w", err)
	}
	defer cursor.Close(ctx)

	var carts []Cart
	if err := cursor.All(ctx, &carts); err != nil {
		return nil, fmt.Errorf("failed to decode stale carts: %w", err)
	}
	return carts, nil
}

// ClearIfUntouched empties the cart only if nobody wrote to it since it
// was fetched. A concurrent customer write changes updated_at and wins.
func (r *mongoRepository) ClearIfUntouched(ctx context.Context, ownerID int64, seenUpdatedAt time.Time) (bool, error) {
	result, err := r.carts.UpdateOne(ctx,
		bson.M{"user_id": ownerID, "updated_at": seenUpdatedAt},
		bson.M{"$set": bson.M{
			"items":        []Item{},
			"total_amount": int64(0),
			"updated_at":   time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to clear stale cart: %w", err)
	}
	return result.ModifiedCount > 0, nil
}
