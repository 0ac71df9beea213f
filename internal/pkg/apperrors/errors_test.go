package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientStockError(t *testing.T) {
	err := &InsufficientStockError{Available: 5, InCart: 2}
	assert.Equal(t, "insufficient stock: 5 available, 2 already in cart", err.Error())
	assert.Equal(t, 3, err.Remaining())

	err = &InsufficientStockError{Available: 1}
	assert.Equal(t, "insufficient stock: 1 available", err.Error())
	assert.Equal(t, 1, err.Remaining())

	// More in the cart than in stock clamps to zero.
	err = &InsufficientStockError{Available: 1, InCart: 4}
	assert.Equal(t, 0, err.Remaining())
}

func TestValidationError(t *testing.T) {
	assert.Equal(t, "quantity: must be at least 1", (&ValidationError{Field: "quantity", Message: "must be at least 1"}).Error())
	assert.Equal(t, "bad input", (&ValidationError{Message: "bad input"}).Error())
}

func TestIsNotFound(t *testing.T) {
	for _, err := range []error{
		ErrCartNotFound, ErrItemNotFound, ErrProductNotFound,
		ErrVariantNotFound, ErrCategoryNotFound, ErrOrderNotFound,
	} {
		assert.True(t, IsNotFound(err))
		assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", err)))
	}
	assert.False(t, IsNotFound(ErrConflict))
	assert.False(t, IsNotFound(errors.New("other")))
}
