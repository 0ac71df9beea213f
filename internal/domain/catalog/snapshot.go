// internal/domain/catalog/snapshot.go
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Builder loads the catalog from MongoDB and produces immutable snapshots
type Builder struct {
	categories *mongo.Collection
	products   *mongo.Collection
	logger     *logrus.Logger
}

// NewBuilder creates a snapshot builder over the given database
func NewBuilder(db *mongo.Database, logger *logrus.Logger) *Builder {
	return &Builder{
		categories: db.Collection("categories"),
		products:   db.Collection("products"),
		logger:     logger,
	}
}

// Build loads categories and products and assembles a snapshot.
// Malformed product records are skipped and counted, never fatal.
func (b *Builder) Build(ctx context.Context, onlyAvailable bool) (*Snapshot, error) {
	snapshot := &Snapshot{
		Categories: []CategoryEntry{},
		Products:   []Entry{},
	}

	catCursor, err := b.categories.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	defer catCursor.Close(ctx)

	var categories []Category
	if err := catCursor.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	for _, c := range categories {
		snapshot.Categories = append(snapshot.Categories, CategoryEntry{
			ID:        c.ID.Hex(),
			Name:      c.Name,
			SortOrder: c.SortOrder,
		})
	}

	filter := bson.M{}
	if onlyAvailable {
		filter["available"] = true
	}
	projection := bson.M{
		"name":        1,
		"description": 1,
		"category_id": 1,
		"images":      1,
		"image_id":    1,
		"available":   1,
		"variants":    1,
	}
	prodCursor, err := b.products.Find(ctx, filter,
		options.Find().SetProjection(projection).SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	defer prodCursor.Close(ctx)

	for prodCursor.Next(ctx) {
		var raw bson.M
		if err := prodCursor.Decode(&raw); err != nil {
			snapshot.SkippedCount++
			b.logger.WithError(err).Warn("skipping undecodable product record")
			continue
		}
		result := DecodeProduct(raw)
		if result.Skipped {
			snapshot.SkippedCount++
			b.logger.WithFields(logrus.Fields{
				"reason":     result.SkipReason,
				"product_id": raw["_id"],
			}).Warn("skipping malformed product record")
			continue
		}
		snapshot.Products = append(snapshot.Products, result.Entry)
	}
	if err := prodCursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	hash, err := hashSnapshot(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to hash snapshot: %w", err)
	}
	snapshot.Hash = hash

	if snapshot.SkippedCount > 0 {
		b.logger.WithField("skipped", snapshot.SkippedCount).Warn("catalog snapshot built with skipped records")
	}

	return snapshot, nil
}

// hashSnapshot computes the content hash used as the ETag. The JSON
// encoding of the struct body is deterministic: fields in declaration
// order, slices in query order.
func hashSnapshot(s *Snapshot) (string, error) {
	body, err := json.Marshal(struct {
		Categories []CategoryEntry `json:"categories"`
		Products   []Entry         `json:"products"`
	}{s.Categories, s.Products})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// EmptySnapshot returns the snapshot served when the catalog cannot be
// read and there is nothing cached to fall back to.
func EmptySnapshot() *Snapshot {
	s := &Snapshot{Categories: []CategoryEntry{}, Products: []Entry{}}
	s.Hash, _ = hashSnapshot(s)
	return s
}
