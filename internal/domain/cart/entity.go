// internal/domain/cart/entity.go
package cart

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Item represents one reserved line in a cart
type Item struct {
	ID           string `bson:"id" json:"id"` // uuid hex
	ProductID    string `bson:"product_id" json:"product_id"`
	VariantID    string `bson:"variant_id" json:"variant_id"`
	Name         string `bson:"name" json:"name"`
	VariantLabel string `bson:"variant_label" json:"variant_label"`
	Image        string `bson:"image,omitempty" json:"image,omitempty"`
	Price        int64  `bson:"price" json:"price"` // Price at time of adding
	Quantity     int    `bson:"quantity" json:"quantity"`
}

// Cart represents a user's cart document. Exactly one cart exists per
// owner, enforced by the unique index on user_id.
type Cart struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      int64              `bson:"user_id" json:"user_id"`
	Items       []Item             `bson:"items" json:"items"`
	TotalAmount int64              `bson:"total_amount" json:"total_amount"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// LastTouched returns the timestamp expiry is measured from
func (c *Cart) LastTouched() time.Time {
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.CreatedAt
}

// ExpiredAt reports whether the cart is past its lifetime at the given
// moment
func (c *Cart) ExpiredAt(now time.Time, lifetime time.Duration) bool {
	return now.Sub(c.LastTouched()) > lifetime
}

// QuantityOf returns how many units of the given variant the cart
// already holds
func (c *Cart) QuantityOf(productID, variantID string) int {
	total := 0
	for _, item := range c.Items {
		if item.ProductID == productID && item.VariantID == variantID {
			total += item.Quantity
		}
	}
	return total
}

// ItemByID returns the line with the given item id
func (c *Cart) ItemByID(itemID string) (*Item, bool) {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i], true
		}
	}
	return nil, false
}
