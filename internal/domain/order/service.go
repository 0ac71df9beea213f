// internal/domain/order/service.go
package order

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/minishop/storefront-backend/internal/domain/cart"
	"github.com/minishop/storefront-backend/internal/infrastructure/blob"
	"github.com/minishop/storefront-backend/internal/pkg/apperrors"
)

// CartSource reads and discards customer carts
type CartSource interface {
	Get(ctx context.Context, ownerID int64) (*cart.Cart, error)
	Discard(ctx context.Context, ownerID int64) error
}

// StockLedger moves variant inventory for status reconciliation
type StockLedger interface {
	Decrement(ctx context.Context, productID, variantID string, qty int) (bool, error)
	Increment(ctx context.Context, productID, variantID string, qty int)
}

// StoreGate answers whether the store is accepting orders
type StoreGate interface {
	IsOpen(ctx context.Context) (bool, string)
}

// Notifier delivers fire-and-forget admin notifications
type Notifier interface {
	NotifyAdmins(ctx context.Context, text string)
}

// CreateOrderRequest represents order creation data
type CreateOrderRequest struct {
	CustomerName    string `form:"customer_name" binding:"required"`
	Phone           string `form:"phone" binding:"required"`
	DeliveryAddress string `form:"delivery_address" binding:"required"`
	Comment         string `form:"comment"`
	DeliveryType    string `form:"delivery_type" binding:"required"`
	PaymentType     string `form:"payment_type" binding:"required"`
}

// Receipt is an uploaded payment receipt
type Receipt struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UpdateStatusRequest represents an admin status change
type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

var allowedReceiptTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/heic":      true,
	"application/pdf": true,
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// Service finalizes carts into orders and manages their lifecycle
type Service struct {
	repo          Repository
	carts         CartSource
	ledger        StockLedger
	gate          StoreGate
	blobs         blob.Store
	notifier      Notifier
	maxReceipt    int64
	retainDecided time.Duration
	logger        *logrus.Logger
}

// NewService creates a new order service
func NewService(db *mongo.Database, carts CartSource, ledger StockLedger, gate StoreGate, blobs blob.Store, notifier Notifier, maxReceipt int64, retainDecided time.Duration, logger *logrus.Logger) *Service {
	return &Service{
		repo:          NewMongoRepository(db),
		carts:         carts,
		ledger:        ledger,
		gate:          gate,
		blobs:         blobs,
		notifier:      notifier,
		maxReceipt:    maxReceipt,
		retainDecided: retainDecided,
		logger:        logger,
	}
}

// Checkout snapshots the owner's cart into a new order. No stock moves
// here: the cart's reservations simply become the order's. The cart is
// deleted afterwards in the background; if that delete is lost, the
// sweeper reclaims nothing (the cart is empty of meaning but its items
// still reference reserved stock) only until its expiry passes, and the
// order keeps its own copy either way.
func (s *Service) Checkout(ctx context.Context, ownerID int64, req CreateOrderRequest, receipt *Receipt) (*Order, error) {
	if open, message := s.gate.IsOpen(ctx); !open {
		if message != "" {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrStoreClosed, message)
		}
		return nil, apperrors.ErrStoreClosed
	}
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	c, err := s.carts.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, &apperrors.ValidationError{Field: "cart", Message: "cart is empty"}
	}

	receiptID := ""
	if receipt != nil {
		receiptID, err = s.storeReceipt(ctx, ownerID, receipt)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	o := &Order{
		UserID:          ownerID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		Phone:           normalizePhone(req.Phone),
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		Comment:         strings.TrimSpace(req.Comment),
		Status:          StatusNew,
		Items:           copyItems(c.Items),
		TotalAmount:     c.TotalAmount,
		ReceiptID:       receiptID,
		DeliveryType:    req.DeliveryType,
		PaymentType:     req.PaymentType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, o); err != nil {
		if receiptID != "" {
			if delErr := s.blobs.Delete(ctx, receiptID); delErr != nil {
				s.logger.WithError(delErr).Warn("failed to delete receipt after aborted checkout")
			}
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.finishCheckoutAsync(ownerID, o)
	return o, nil
}

// finishCheckoutAsync runs the fire-and-forget tail of checkout: cart
// deletion and the admin ping. Both are logged on failure and never
// reported to the customer.
func (s *Service) finishCheckoutAsync(ownerID int64, o *Order) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := s.carts.Discard(ctx, ownerID); err != nil {
			s.logger.WithError(err).WithField("user_id", ownerID).Error("failed to delete cart after checkout")
		}
		s.notifier.NotifyAdmins(ctx, fmt.Sprintf("New order %s from %s, total %d", o.ID.Hex(), o.CustomerName, o.TotalAmount))
	}()
}

func (s *Service) storeReceipt(ctx context.Context, ownerID int64, receipt *Receipt) (string, error) {
	if !allowedReceiptTypes[receipt.ContentType] {
		return "", &apperrors.ValidationError{Field: "receipt", Message: "unsupported file type"}
	}
	if receipt.Size > s.maxReceipt {
		return "", &apperrors.ValidationError{Field: "receipt", Message: "file too large"}
	}
	name := fmt.Sprintf("receipt-%d-%d", ownerID, time.Now().UnixNano())
	id, err := s.blobs.Put(ctx, name, receipt.ContentType, io.LimitReader(receipt.Reader, s.maxReceipt))
	if err != nil {
		return "", fmt.Errorf("failed to store receipt: %w", err)
	}
	return id, nil
}

// ListMine returns the owner's orders, newest first
func (s *Service) ListMine(ctx context.Context, ownerID int64) ([]Order, error) {
	return s.repo.FindByOwner(ctx, ownerID)
}

// ListParams filters the admin order listing
type ListParams struct {
	Status Status
	Cursor string
	Limit  int
}

// List returns order summaries for admins with cursor pagination.
// Cursor is the last seen order id; pages walk _id descending.
func (s *Service) List(ctx context.Context, params ListParams) ([]Summary, string, error) {
	if params.Limit < 1 || params.Limit > 100 {
		params.Limit = 20
	}
	if params.Status != "" && !params.Status.Valid() {
		return nil, "", &apperrors.ValidationError{Field: "status", Message: "unknown status"}
	}

	before := primitive.NilObjectID
	if params.Cursor != "" {
		oid, err := primitive.ObjectIDFromHex(params.Cursor)
		if err != nil {
			return nil, "", &apperrors.ValidationError{Field: "cursor", Message: "invalid cursor"}
		}
		before = oid
	}

	// One extra row decides whether another page exists.
	orders, err := s.repo.FindPage(ctx, params.Status, before, params.Limit+1)
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(orders) > params.Limit {
		orders = orders[:params.Limit]
		nextCursor = orders[len(orders)-1].ID.Hex()
	}

	summaries := make([]Summary, 0, len(orders))
	for _, o := range orders {
		summaries = append(summaries, Summary{
			ID:           o.ID.Hex(),
			UserID:       o.UserID,
			CustomerName: o.CustomerName,
			Status:       o.Status,
			TotalAmount:  o.TotalAmount,
			ItemsCount:   len(o.Items),
			CreatedAt:    o.CreatedAt,
		})
	}
	return summaries, nextCursor, nil
}

// Get loads one order
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrOrderNotFound
	}
	return s.repo.FindByID(ctx, oid)
}

// UpdateStatus transitions an order and reconciles stock with the
// target status. Entering rejected releases every line exactly once;
// leaving rejected re-reserves every line or fails without changing the
// order.
func (s *Service) UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*Order, error) {
	if !req.Status.Valid() {
		return nil, &apperrors.ValidationError{Field: "status", Message: "unknown status"}
	}

	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == req.Status {
		return o, nil
	}

	switch {
	case req.Status == StatusRejected:
		if strings.TrimSpace(req.Reason) == "" {
			return nil, &apperrors.ValidationError{Field: "reason", Message: "rejection requires a reason"}
		}
		return s.reject(ctx, o, strings.TrimSpace(req.Reason))
	case o.Status == StatusRejected:
		return s.unreject(ctx, o, req.Status)
	default:
		return s.flip(ctx, o, req.Status, "")
	}
}

// reject flips the status with a guard on the current one, then gives
// the stock back. The guard is what makes the release exactly-once:
// concurrent rejects race on the flip and only the winner releases.
func (s *Service) reject(ctx context.Context, o *Order, reason string) (*Order, error) {
	flipped, err := s.repo.Transition(ctx, o.ID, o.Status, StatusRejected, reason)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, apperrors.ErrConflict
	}

	for _, item := range o.Items {
		s.ledger.Increment(ctx, item.ProductID, item.VariantID, item.Quantity)
	}
	return s.Get(ctx, o.ID.Hex())
}

// unreject re-reserves the order's stock before leaving rejected. Any
// line that cannot be reserved rolls the taken ones back and fails the
// transition.
func (s *Service) unreject(ctx context.Context, o *Order, target Status) (*Order, error) {
	taken := make([]Item, 0, len(o.Items))
	for _, item := range o.Items {
		reserved, err := s.ledger.Decrement(ctx, item.ProductID, item.VariantID, item.Quantity)
		if err == nil && reserved {
			taken = append(taken, item)
			continue
		}
		for _, t := range taken {
			s.ledger.Increment(ctx, t.ProductID, t.VariantID, t.Quantity)
		}
		if err != nil {
			return nil, err
		}
		return nil, &apperrors.InsufficientStockError{Available: 0}
	}

	updated, err := s.flip(ctx, o, target, "")
	if err != nil {
		// The flip lost a concurrent race; the reservations we just
		// took belong to nobody, give them back.
		for _, t := range taken {
			s.ledger.Increment(ctx, t.ProductID, t.VariantID, t.Quantity)
		}
		return nil, err
	}
	return updated, nil
}

func (s *Service) flip(ctx context.Context, o *Order, target Status, reason string) (*Order, error) {
	flipped, err := s.repo.Transition(ctx, o.ID, o.Status, target, reason)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, apperrors.ErrConflict
	}
	return s.Get(ctx, o.ID.Hex())
}

// QuickAccept moves a new order to accepted in one guarded update
func (s *Service) QuickAccept(ctx context.Context, id string) (*Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrOrderNotFound
	}

	flipped, err := s.repo.Transition(ctx, oid, StatusNew, StatusAccepted, "")
	if err != nil {
		return nil, err
	}
	if !flipped {
		// Either missing or already processed; tell them apart.
		if _, err := s.repo.FindByID(ctx, oid); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrConflict
	}
	return s.repo.FindByID(ctx, oid)
}

// SoftDelete hides the order from every listing without destroying it
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.ErrOrderNotFound
	}
	found, err := s.repo.MarkDeleted(ctx, oid)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.ErrOrderNotFound
	}
	return nil
}

// RunPurge permanently deletes soft-deleted and aged decided orders on
// an interval, until ctx is cancelled
func (s *Service) RunPurge(ctx context.Context, interval time.Duration) {
	s.logger.WithField("interval", interval.String()).Info("order purge loop started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("order purge loop stopped")
			return
		case <-ticker.C:
			s.Purge(ctx)
		}
	}
}

// Purge runs one purge pass
func (s *Service) Purge(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retainDecided)
	doomed, err := s.repo.FindPurgeable(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("order purge query failed")
		return
	}
	if len(doomed) == 0 {
		return
	}

	ids := make([]primitive.ObjectID, 0, len(doomed))
	for _, o := range doomed {
		if o.ReceiptID != "" {
			if err := s.blobs.Delete(ctx, o.ReceiptID); err != nil {
				s.logger.WithError(err).WithField("order_id", o.ID.Hex()).Warn("failed to delete receipt during purge")
			}
		}
		ids = append(ids, o.ID)
	}

	deleted, err := s.repo.Remove(ctx, ids)
	if err != nil {
		s.logger.WithError(err).Error("order purge delete failed")
		return
	}
	s.logger.WithField("orders", deleted).Info("purged old orders")
}

func validateCheckout(req CreateOrderRequest) error {
	if strings.TrimSpace(req.CustomerName) == "" {
		return &apperrors.ValidationError{Field: "customer_name", Message: "required"}
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return &apperrors.ValidationError{Field: "delivery_address", Message: "required"}
	}
	if !phonePattern.MatchString(normalizePhone(req.Phone)) {
		return &apperrors.ValidationError{Field: "phone", Message: "invalid phone number"}
	}
	return nil
}

func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

func copyItems(items []cart.Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{
			ID:           it.ID,
			ProductID:    it.ProductID,
			VariantID:    it.VariantID,
			Name:         it.Name,
			VariantLabel: it.VariantLabel,
			Image:        it.Image,
			Price:        it.Price,
			Quantity:     it.Quantity,
		})
	}
	return out
}
