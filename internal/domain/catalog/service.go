// internal/domain/catalog/service.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/minishop/storefront-backend/internal/infrastructure/blob"
	"github.com/minishop/storefront-backend/internal/pkg/apperrors"
)

// Service manages catalog content. Every mutation bumps the cache
// version before returning, so no client observes a stale catalog after
// a write it was told succeeded; a mutation whose bump cannot be
// written is reported as failed even though the document write is
// already durable.
type Service struct {
	categories *mongo.Collection
	products   *mongo.Collection
	cache      *Cache
	blobs      blob.Store
	logger     *logrus.Logger
}

// NewService creates a new catalog service
func NewService(db *mongo.Database, cache *Cache, blobs blob.Store, logger *logrus.Logger) *Service {
	return &Service{
		categories: db.Collection("categories"),
		products:   db.Collection("products"),
		cache:      cache,
		blobs:      blobs,
		logger:     logger,
	}
}

// CategoryInput carries category fields for create and update
type CategoryInput struct {
	Name      string `json:"name" binding:"required"`
	SortOrder int    `json:"sort_order"`
}

// VariantInput carries one variant definition
type VariantInput struct {
	ID       string `json:"id"`
	Label    string `json:"label" binding:"required"`
	Price    int64  `json:"price" binding:"min=0"`
	Quantity int    `json:"quantity" binding:"min=0"`
}

// ProductInput carries product fields for create and update
type ProductInput struct {
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	CategoryID  string         `json:"category_id" binding:"required"`
	Variants    []VariantInput `json:"variants" binding:"required,min=1"`
}

// CreateCategory creates a category with a unique name
func (s *Service) CreateCategory(ctx context.Context, input CategoryInput) (*Category, error) {
	now := time.Now().UTC()
	category := &Category{
		Name:      input.Name,
		SortOrder: input.SortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	result, err := s.categories.InsertOne(ctx, category)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperrors.ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	category.ID = result.InsertedID.(primitive.ObjectID)

	if err := s.bumpCatalog(ctx, "category create"); err != nil {
		return nil, err
	}
	return category, nil
}

// UpdateCategory updates a category's fields
func (s *Service) UpdateCategory(ctx context.Context, id string, input CategoryInput) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.ErrCategoryNotFound
	}
	result, err := s.categories.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"name":       input.Name,
			"sort_order": input.SortOrder,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrDuplicateName
		}
		return fmt.Errorf("failed to update category: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrCategoryNotFound
	}

	return s.bumpCatalog(ctx, "category update")
}

// DeleteCategory removes a category together with its products and
// their image blobs
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.ErrCategoryNotFound
	}

	result, err := s.categories.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if result.DeletedCount == 0 {
		return apperrors.ErrCategoryNotFound
	}

	cursor, err := s.products.Find(ctx, bson.M{"category_id": oid})
	if err != nil {
		return fmt.Errorf("failed to load category products for cascade: %w", err)
	}
	var orphans []Product
	if err := cursor.All(ctx, &orphans); err != nil {
		return fmt.Errorf("failed to decode category products for cascade: %w", err)
	}
	for _, p := range orphans {
		s.deleteImages(ctx, p.ID.Hex(), p.Images)
	}
	if _, err := s.products.DeleteMany(ctx, bson.M{"category_id": oid}); err != nil {
		return fmt.Errorf("failed to cascade delete products: %w", err)
	}

	return s.bumpCatalog(ctx, "category delete")
}

// CreateProduct creates a product under an existing category
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	categoryID, err := primitive.ObjectIDFromHex(input.CategoryID)
	if err != nil {
		return nil, &apperrors.ValidationError{Field: "category_id", Message: "invalid category id"}
	}
	if err := s.requireCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product := &Product{
		Name:        input.Name,
		Description: input.Description,
		CategoryID:  categoryID,
		Variants:    buildVariants(input.Variants),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	product.Available = product.HasStock()

	result, err := s.products.InsertOne(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	product.ID = result.InsertedID.(primitive.ObjectID)

	if err := s.bumpCatalog(ctx, "product create"); err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct replaces a product's editable fields
func (s *Service) UpdateProduct(ctx context.Context, id string, input ProductInput) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.ErrProductNotFound
	}
	categoryID, err := primitive.ObjectIDFromHex(input.CategoryID)
	if err != nil {
		return &apperrors.ValidationError{Field: "category_id", Message: "invalid category id"}
	}
	if err := s.requireCategory(ctx, categoryID); err != nil {
		return err
	}

	variants := buildVariants(input.Variants)
	available := false
	for _, v := range variants {
		if v.Quantity > 0 {
			available = true
			break
		}
	}

	result, err := s.products.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"name":        input.Name,
			"description": input.Description,
			"category_id": categoryID,
			"variants":    variants,
			"available":   available,
			"updated_at":  time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrProductNotFound
	}

	return s.bumpCatalog(ctx, "product update")
}

// DeleteProduct removes a product and its image blob
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.ErrProductNotFound
	}

	var product Product
	err = s.products.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperrors.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.deleteImages(ctx, id, product.Images)

	return s.bumpCatalog(ctx, "product delete")
}

// GetProduct loads one product document
func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrProductNotFound
	}
	var product Product
	err = s.products.FindOne(ctx, bson.M{"_id": oid}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &product, nil
}

// AddProductImage appends an image blob to the end of the product's
// image list
func (s *Service) AddProductImage(ctx context.Context, id, blobID string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.ErrProductNotFound
	}

	result, err := s.products.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$push": bson.M{"images": blobID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to attach product image: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrProductNotFound
	}

	return s.bumpCatalog(ctx, "product image add")
}

// RemoveProductImage pulls an image blob from the product's image list
// and deletes it from blob storage
func (s *Service) RemoveProductImage(ctx context.Context, id, blobID string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.ErrProductNotFound
	}

	result, err := s.products.UpdateOne(ctx,
		bson.M{"_id": oid, "images": blobID},
		bson.M{
			"$pull": bson.M{"images": blobID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to detach product image: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrProductNotFound
	}

	s.deleteImages(ctx, id, []string{blobID})

	return s.bumpCatalog(ctx, "product image remove")
}

// deleteImages removes image blobs best-effort; a leaked blob is logged,
// not fatal
func (s *Service) deleteImages(ctx context.Context, productID string, blobIDs []string) {
	for _, blobID := range blobIDs {
		if err := s.blobs.Delete(ctx, blobID); err != nil {
			s.logger.WithError(err).WithField("product_id", productID).Warn("failed to delete product image")
		}
	}
}

// bumpCatalog invalidates the cache after a mutation, retrying once
// before reporting the mutation as failed
func (s *Service) bumpCatalog(ctx context.Context, cause string) error {
	err := s.cache.Invalidate(ctx)
	if err == nil {
		return nil
	}
	s.logger.WithError(err).WithField("cause", cause).Warn("catalog version bump failed, retrying")
	if err = s.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("catalog changed but version bump failed: %w", err)
	}
	return nil
}

func (s *Service) requireCategory(ctx context.Context, id primitive.ObjectID) error {
	err := s.categories.FindOne(ctx, bson.M{"_id": id}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperrors.ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	return nil
}

func buildVariants(inputs []VariantInput) []Variant {
	variants := make([]Variant, 0, len(inputs))
	for _, in := range inputs {
		v := Variant{
			ID:       in.ID,
			Label:    in.Label,
			Price:    in.Price,
			Quantity: in.Quantity,
		}
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		variants = append(variants, v)
	}
	return variants
}
