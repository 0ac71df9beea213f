// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/minishop/storefront-backend/internal/domain/catalog"
	"github.com/minishop/storefront-backend/internal/pkg/apperrors"
)

// ProductCatalog loads product documents for reservation checks
type ProductCatalog interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
}

// StockLedger moves variant inventory
type StockLedger interface {
	Decrement(ctx context.Context, productID, variantID string, qty int) (bool, error)
	Increment(ctx context.Context, productID, variantID string, qty int)
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// UpdateCartItemRequest represents update cart item request
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// Service coordinates cart mutations with stock reservations.
//
// Every stock-affecting operation touches the ledger first and the cart
// second, compensating the ledger when the cart write fails. A crash
// between the two leaves either stock reserved with no cart line
// (reclaimed by the sweeper) or stock released with the line still
// present (double-restored when the line goes away), never a line whose
// reserved units vanished from the ledger.
type Service struct {
	repo     Repository
	products ProductCatalog
	ledger   StockLedger
	lifetime time.Duration
	logger   *logrus.Logger
}

// NewService creates a new cart service
func NewService(repo Repository, products ProductCatalog, ledger StockLedger, lifetime time.Duration, logger *logrus.Logger) *Service {
	return &Service{
		repo:     repo,
		products: products,
		ledger:   ledger,
		lifetime: lifetime,
		logger:   logger,
	}
}

// Get returns the owner's cart, creating one if missing and replacing
// it if expired
func (s *Service) Get(ctx context.Context, ownerID int64) (*Cart, error) {
	return s.liveCart(ctx, ownerID)
}

// liveCart implements get-or-create with expiry handling. The unique
// owner index turns the create race into a duplicate-key error; the
// loser re-fetches the winner's cart.
func (s *Service) liveCart(ctx context.Context, ownerID int64) (*Cart, error) {
	existing, err := s.repo.GetByOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, apperrors.ErrCartNotFound) {
		return nil, err
	}

	if err == nil {
		if !existing.ExpiredAt(time.Now(), s.lifetime) {
			return existing, nil
		}
		// Expired: give the old reservations back, then swap in a fresh
		// cart.
		s.release(ctx, existing.Items)
		fresh := newCart(ownerID)
		if err := s.repo.Replace(ctx, ownerID, fresh); err != nil {
			s.unrelease(ctx, existing.Items)
			return nil, err
		}
		return fresh, nil
	}

	fresh := newCart(ownerID)
	if err := s.repo.Create(ctx, fresh); err != nil {
		if errors.Is(err, ErrOwnerExists) {
			return s.repo.GetByOwner(ctx, ownerID)
		}
		return nil, err
	}
	return fresh, nil
}

// AddItem reserves qty units of a variant and records them in the cart
func (s *Service) AddItem(ctx context.Context, ownerID int64, req AddToCartRequest) (*Cart, error) {
	if req.Quantity < 1 {
		return nil, &apperrors.ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	product, err := s.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	variant, ok := product.Variant(req.VariantID)
	if !ok {
		return nil, apperrors.ErrVariantNotFound
	}

	current, err := s.liveCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	inCart := current.QuantityOf(req.ProductID, req.VariantID)

	// Live stock must cover what the owner already holds plus the
	// request.
	if variant.Quantity < inCart+req.Quantity {
		return nil, &apperrors.InsufficientStockError{Available: variant.Quantity, InCart: inCart}
	}

	reserved, err := s.ledger.Decrement(ctx, req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		return nil, err
	}
	if !reserved {
		// Lost a race since the read above; report fresh numbers.
		return nil, s.insufficientNow(ctx, req.ProductID, req.VariantID, inCart)
	}

	if err := s.recordLine(ctx, ownerID, product, variant, req.Quantity, inCart > 0); err != nil {
		s.ledger.Increment(ctx, req.ProductID, req.VariantID, req.Quantity)
		return nil, err
	}

	return s.repo.GetByOwner(ctx, ownerID)
}

// recordLine merges qty into an existing cart line or pushes a new one
func (s *Service) recordLine(ctx context.Context, ownerID int64, product *catalog.Product, variant *catalog.Variant, qty int, merge bool) error {
	amount := variant.Price * int64(qty)
	if merge {
		err := s.repo.IncLineQuantity(ctx, ownerID, product.ID.Hex(), variant.ID, qty, amount)
		if err == nil || !errors.Is(err, apperrors.ErrItemNotFound) {
			return err
		}
		// The line vanished between the read and the update; push a new
		// one instead.
	}
	return s.repo.PushItem(ctx, ownerID, Item{
		ID:           uuid.New().String(),
		ProductID:    product.ID.Hex(),
		VariantID:    variant.ID,
		Name:         product.Name,
		VariantLabel: variant.Label,
		Image:        product.PrimaryImage(),
		Price:        variant.Price,
		Quantity:     qty,
	})
}

// UpdateItemQuantity changes a line to an absolute quantity, moving the
// difference through the ledger
func (s *Service) UpdateItemQuantity(ctx context.Context, ownerID int64, itemID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, &apperrors.ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	current, err := s.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	item, ok := current.ItemByID(itemID)
	if !ok {
		return nil, apperrors.ErrItemNotFound
	}

	diff := quantity - item.Quantity
	if diff == 0 {
		return current, nil
	}
	amountDelta := item.Price * int64(diff)

	if diff > 0 {
		reserved, err := s.ledger.Decrement(ctx, item.ProductID, item.VariantID, diff)
		if err != nil {
			return nil, err
		}
		if !reserved {
			return nil, s.insufficientNow(ctx, item.ProductID, item.VariantID, item.Quantity)
		}
		if err := s.repo.SetItemQuantity(ctx, ownerID, itemID, quantity, amountDelta); err != nil {
			s.ledger.Increment(ctx, item.ProductID, item.VariantID, diff)
			return nil, err
		}
	} else {
		// Shrinking: give the difference back first, then shrink the line.
		released := Item{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: -diff}
		s.ledger.Increment(ctx, item.ProductID, item.VariantID, -diff)
		if err := s.repo.SetItemQuantity(ctx, ownerID, itemID, quantity, amountDelta); err != nil {
			s.unrelease(ctx, []Item{released})
			return nil, err
		}
	}

	return s.repo.GetByOwner(ctx, ownerID)
}

// RemoveItem drops a line and returns its units to stock
func (s *Service) RemoveItem(ctx context.Context, ownerID int64, itemID string) (*Cart, error) {
	current, err := s.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	item, ok := current.ItemByID(itemID)
	if !ok {
		return nil, apperrors.ErrItemNotFound
	}

	s.ledger.Increment(ctx, item.ProductID, item.VariantID, item.Quantity)
	if err := s.repo.PullItem(ctx, ownerID, itemID, -item.Price*int64(item.Quantity)); err != nil {
		s.unrelease(ctx, []Item{*item})
		return nil, err
	}

	return s.repo.GetByOwner(ctx, ownerID)
}

// Clear empties the cart and returns every line's units to stock
func (s *Service) Clear(ctx context.Context, ownerID int64) error {
	current, err := s.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrCartNotFound) {
			return nil
		}
		return err
	}
	if len(current.Items) == 0 {
		return nil
	}

	s.release(ctx, current.Items)
	if err := s.repo.Clear(ctx, ownerID); err != nil {
		s.unrelease(ctx, current.Items)
		return err
	}
	return nil
}

// Discard deletes the cart document without releasing stock. Used at
// checkout, where the reservations transfer to the order.
func (s *Service) Discard(ctx context.Context, ownerID int64) error {
	return s.repo.Delete(ctx, ownerID)
}

// insufficientNow re-reads the product to report current availability
func (s *Service) insufficientNow(ctx context.Context, productID, variantID string, inCart int) error {
	available := 0
	if product, err := s.products.GetProduct(ctx, productID); err == nil {
		if variant, ok := product.Variant(variantID); ok {
			available = variant.Quantity
		}
	}
	return &apperrors.InsufficientStockError{Available: available, InCart: inCart}
}

// release returns reserved units to the ledger
func (s *Service) release(ctx context.Context, items []Item) {
	for _, item := range items {
		s.ledger.Increment(ctx, item.ProductID, item.VariantID, item.Quantity)
	}
}

// unrelease takes just-released units back after the cart write they
// were released for failed. Losing the race for them is logged, not
// fatal: the line still sits in the cart and releases again later.
func (s *Service) unrelease(ctx context.Context, items []Item) {
	for _, item := range items {
		ok, err := s.ledger.Decrement(ctx, item.ProductID, item.VariantID, item.Quantity)
		if err != nil || !ok {
			s.logger.WithFields(logrus.Fields{
				"product_id": item.ProductID,
				"variant_id": item.VariantID,
				"quantity":   item.Quantity,
			}).Warn("failed to re-reserve stock after aborted release")
		}
	}
}

func newCart(ownerID int64) *Cart {
	now := time.Now().UTC()
	return &Cart{
		UserID:      ownerID,
		Items:       []Item{},
		TotalAmount: 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
