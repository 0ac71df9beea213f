// internal/domain/order/entity.go
package order

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status represents the order status
type Status string

const (
	StatusNew      Status = "new"
	StatusAccepted Status = "accepted"
	StatusDone     Status = "done"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusAccepted, StatusDone, StatusRejected:
		return true
	}
	return false
}

// Item is a snapshot of one cart line at checkout time
type Item struct {
	ID           string `bson:"id" json:"id"`
	ProductID    string `bson:"product_id" json:"product_id"`
	VariantID    string `bson:"variant_id" json:"variant_id"`
	Name         string `bson:"name" json:"name"`
	VariantLabel string `bson:"variant_label" json:"variant_label"`
	Image        string `bson:"image,omitempty" json:"image,omitempty"`
	Price        int64  `bson:"price" json:"price"`
	Quantity     int    `bson:"quantity" json:"quantity"`
}

// Order represents an order document. Items and total are frozen copies
// of the cart at checkout; later catalog edits do not touch them.
type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          int64              `bson:"user_id" json:"user_id"`
	CustomerName    string             `bson:"customer_name" json:"customer_name"`
	Phone           string             `bson:"phone" json:"phone"`
	DeliveryAddress string             `bson:"delivery_address" json:"delivery_address"`
	Comment         string             `bson:"comment,omitempty" json:"comment,omitempty"`
	Status          Status             `bson:"status" json:"status"`
	Items           []Item             `bson:"items" json:"items"`
	TotalAmount     int64              `bson:"total_amount" json:"total_amount"`
	ReceiptID       string             `bson:"payment_receipt_id,omitempty" json:"payment_receipt_id,omitempty"`
	DeliveryType    string             `bson:"delivery_type" json:"delivery_type"`
	PaymentType     string             `bson:"payment_type" json:"payment_type"`
	RejectionReason string             `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	IsDeleted       bool               `bson:"is_deleted" json:"-"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

// Summary is the admin list projection
type Summary struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	CustomerName string    `json:"customer_name"`
	Status       Status    `json:"status"`
	TotalAmount  int64     `json:"total_amount"`
	ItemsCount   int       `json:"items_count"`
	CreatedAt    time.Time `json:"created_at"`
}
