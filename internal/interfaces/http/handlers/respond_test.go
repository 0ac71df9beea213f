// internal/interfaces/http/handlers/respond_test.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minishop/storefront-backend/internal/pkg/apperrors"
)

func respondWith(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	respondError(c, err)
	return rec
}

func TestRespondErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"cart not found", apperrors.ErrCartNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", apperrors.ErrProductNotFound), http.StatusNotFound},
		{"duplicate name", apperrors.ErrDuplicateName, http.StatusConflict},
		{"conflict", apperrors.ErrConflict, http.StatusConflict},
		{"store closed", apperrors.ErrStoreClosed, http.StatusServiceUnavailable},
		{"store unavailable", apperrors.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"validation", &apperrors.ValidationError{Field: "quantity", Message: "must be at least 1"}, http.StatusBadRequest},
		{"insufficient stock", &apperrors.InsufficientStockError{Available: 1}, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := respondWith(tt.err)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRespondErrorStockPayload(t *testing.T) {
	rec := respondWith(&apperrors.InsufficientStockError{Available: 5, InCart: 2})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Available int `json:"available"`
		InCart    int `json:"in_cart"`
		Remaining int `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Available)
	assert.Equal(t, 2, body.InCart)
	assert.Equal(t, 3, body.Remaining)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := respondWith(errors.New("dial tcp 10.0.0.1: connection refused"))
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
}
