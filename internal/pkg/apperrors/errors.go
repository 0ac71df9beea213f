// Package apperrors defines the error taxonomy shared by domain services
// and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrItemNotFound     = errors.New("item not found in cart")
	ErrProductNotFound  = errors.New("product not found")
	ErrVariantNotFound  = errors.New("variant not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateName    = errors.New("name already in use")
	ErrConflict         = errors.New("resource changed concurrently")
	ErrStoreClosed      = errors.New("store is closed")
	ErrStoreUnavailable = errors.New("store backend unavailable")
)

// InsufficientStockError reports a failed reservation together with the
// capacity hint shown to the customer.
type InsufficientStockError struct {
	Available int // units currently in stock
	InCart    int // units this owner already holds
}

func (e *InsufficientStockError) Error() string {
	if e.InCart > 0 {
		return fmt.Sprintf("insufficient stock: %d available, %d already in cart", e.Available, e.InCart)
	}
	return fmt.Sprintf("insufficient stock: %d available", e.Available)
}

// Remaining returns how many more units the owner could still add.
func (e *InsufficientStockError) Remaining() int {
	r := e.Available - e.InCart
	if r < 0 {
		return 0
	}
	return r
}

// ValidationError reports rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCartNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrVariantNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}
