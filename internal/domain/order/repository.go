// internal/domain/order/repository.go
package order

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

// Repository is the order persistence surface. Status changes go
// through Transition, which is guarded on the expected current status
// so concurrent admins cannot apply the same change twice.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Order, error)
	FindByOwner(ctx context.Context, ownerID int64) ([]Order, error)
	FindPage(ctx context.Context, status Status, before primitive.ObjectID, limit int) ([]Order, error)
	Transition(ctx context.Context, id primitive.ObjectID, from, to Status, reason string) (bool, error)
	MarkDeleted(ctx context.Context, id primitive.ObjectID) (bool, error)
	FindPurgeable(ctx context.Context, cutoff time.Time) ([]Order, error)
	Remove(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

type mongoRepository struct {
	orders *mongo.Collection
}

// NewMongoRepository creates an order repository over the orders
// collection
func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{orders: db.Collection("orders")}
}

func (r *mongoRepository) Insert(ctx context.Context, o *Order) error {
	result, err := r.orders.InsertOne(ctx, o)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		o.ID = oid
	}
	return nil
}

func (r *mongoRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Order, error) {
	var o Order
	err := r.orders.FindOne(ctx, bson.M{"_id": id, "is_deleted": false}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &o, nil
}

func (r *mongoRepository) FindByOwner(ctx context.Context, ownerID int64) ([]Order, error) {
	cursor, err := r.orders.Find(ctx,
		bson.M{"user_id": ownerID, "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// FindPage walks _id descending from the given cursor position. A zero
// before starts at the newest order.
func (r *mongoRepository) FindPage(ctx context.Context, status Status, before primitive.ObjectID, limit int) ([]Order, error) {
	filter := bson.M{"is_deleted": false}
	if status != "" {
		filter["status"] = status
	}
	if !before.IsZero() {
		filter["_id"] = bson.M{"$lt": before}
	}

	cursor, err := r.orders.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

func (r *mongoRepository) Transition(ctx context.Context, id primitive.ObjectID, from, to Status, reason string) (bool, error) {
	set := bson.M{"status": to, "updated_at": time.Now().UTC()}
	update := bson.M{"$set": set}
	if to == StatusRejected {
		set["rejection_reason"] = reason
	}
	if from == StatusRejected {
		update["$unset"] = bson.M{"rejection_reason": ""}
	}

	result, err := r.orders.UpdateOne(ctx,
		bson.M{"_id": id, "status": from, "is_deleted": false},
		update,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (r *mongoRepository) MarkDeleted(ctx context.Context, id primitive.ObjectID) (bool, error) {
	result, err := r.orders.UpdateOne(ctx,
		bson.M{"_id": id, "is_deleted": false},
		bson.M{"$set": bson.M{"is_deleted": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete order: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoRepository) FindPurgeable(ctx context.Context, cutoff time.Time) ([]Order, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"is_deleted": true},
		bson.M{
			"status":     bson.M{"$in": bson.A{StatusDone, StatusRejected}},
			"updated_at": bson.M{"$lt": cutoff},
		},
	}}

	cursor, err := r.orders.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query purgeable orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode purgeable orders: %w", err)
	}
	return orders, nil
}

func (r *mongoRepository) Remove(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	result, err := r.orders.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete orders: %w", err)
	}
	return result.DeletedCount, nil
}
