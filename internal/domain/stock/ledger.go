// internal/domain/stock/ledger.go

// Package stock owns every movement of variant inventory. All
// reservations go through the conditional decrement; nothing else in
// the codebase writes variant quantities.
package stock

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/minishop/storefront-backend/internal/pkg/apperrors"
)

// Ledger performs atomic stock movements on product documents
type Ledger struct {
	products *mongo.Collection
	logger   *logrus.Logger
}

// NewLedger creates a stock ledger over the products collection
func NewLedger(db *mongo.Database, logger *logrus.Logger) *Ledger {
	return &Ledger{
		products: db.Collection("products"),
		logger:   logger,
	}
}

// Decrement reserves qty units of a variant. The filter matches only
// when the variant still has at least qty units, so the decrement and
// the availability check are one atomic operation and the quantity can
// never go below zero, no matter how many callers race.
//
// Returns false when nothing matched: missing product, missing variant
// and insufficient stock are indistinguishable here, and all of them
// mean the reservation did not happen.
func (l *Ledger) Decrement(ctx context.Context, productID, variantID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, &apperrors.ValidationError{Field: "quantity", Message: "must be positive"}
	}
	oid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return false, nil
	}

	result, err := l.products.UpdateOne(ctx,
		bson.M{
			"_id": oid,
			"variants": bson.M{"$elemMatch": bson.M{
				"id":       variantID,
				"quantity": bson.M{"$gte": qty},
			}},
		},
		bson.M{"$inc": bson.M{"variants.$.quantity": -qty}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	if result.ModifiedCount == 0 {
		return false, nil
	}

	l.refreshAvailability(ctx, oid)
	return true, nil
}

// Increment returns qty units of a variant to stock. Giving stock back
// cannot meaningfully fail from the caller's point of view, so errors
// are logged here and swallowed.
func (l *Ledger) Increment(ctx context.Context, productID, variantID string, qty int) {
	if qty <= 0 {
		return
	}
	oid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		l.logger.WithField("product_id", productID).Error("stock increment with invalid product id")
		return
	}

	result, err := l.products.UpdateOne(ctx,
		bson.M{"_id": oid, "variants.id": variantID},
		bson.M{"$inc": bson.M{"variants.$.quantity": qty}},
	)
	if err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"product_id": productID,
			"variant_id": variantID,
			"quantity":   qty,
		}).Error("failed to restore stock")
		return
	}
	if result.ModifiedCount == 0 {
		l.logger.WithFields(logrus.Fields{
			"product_id": productID,
			"variant_id": variantID,
		}).Warn("stock restore matched no variant")
		return
	}

	l.refreshAvailability(ctx, oid)
}

// refreshAvailability re-derives the product's available flag from its
// variant quantities in a single pipeline update. Failure here only
// delays the flag; the next movement corrects it.
func (l *Ledger) refreshAvailability(ctx context.Context, oid primitive.ObjectID) {
	_, err := l.products.UpdateOne(ctx,
		bson.M{"_id": oid},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.M{
				"available": bson.M{"$gt": bson.A{
					bson.M{"$max": "$variants.quantity"},
					0,
				}},
			}}},
		},
	)
	if err != nil {
		l.logger.WithError(err).WithField("product_id", oid.Hex()).Warn("failed to refresh product availability")
	}
}
