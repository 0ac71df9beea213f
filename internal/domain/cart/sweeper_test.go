// internal/domain/cart/sweeper_test.go
package cart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedCartAt(repo *mockRepo, ownerID int64, touched time.Time, items ...Item) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	total := int64(0)
	for _, item := range items {
		total += item.Price * int64(item.Quantity)
	}
	repo.carts[ownerID] = &Cart{
		ID:          primitive.NewObjectID(),
		UserID:      ownerID,
		Items:       items,
		TotalAmount: total,
		CreatedAt:   touched,
		UpdatedAt:   touched,
	}
}

func TestSweepReleasesExpiredCarts(t *testing.T) {
	repo := newMockRepo()
	ledger := newMockLedger()
	sweeper := NewSweeper(repo, ledger, 15*time.Minute, time.Minute, 50, testLogger())

	line := Item{ID: "line-1", ProductID: "p1", VariantID: "v1", Price: 500, Quantity: 3}
	seedCartAt(repo, 42, time.Now().UTC().Add(-time.Hour), line)

	sweeper.Sweep(context.Background())

	assert.Equal(t, 3, ledger.remaining("p1", "v1"))
	got, err := repo.GetByOwner(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Equal(t, int64(0), got.TotalAmount)
}

func TestSweepIgnoresFreshCarts(t *testing.T) {
	repo := newMockRepo()
	ledger := newMockLedger()
	sweeper := NewSweeper(repo, ledger, 15*time.Minute, time.Minute, 50, testLogger())

	line := Item{ID: "line-1", ProductID: "p1", VariantID: "v1", Price: 500, Quantity: 2}
	seedCartAt(repo, 42, time.Now().UTC().Add(-time.Minute), line)

	sweeper.Sweep(context.Background())

	assert.Equal(t, 0, ledger.remaining("p1", "v1"))
	got, err := repo.GetByOwner(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
}

func TestSweepLosesToConcurrentWrite(t *testing.T) {
	repo := newMockRepo()
	ledger := newMockLedger()
	sweeper := NewSweeper(repo, ledger, 15*time.Minute, time.Minute, 50, testLogger())

	line := Item{ID: "line-1", ProductID: "p1", VariantID: "v1", Price: 500, Quantity: 2}
	seedCartAt(repo, 42, time.Now().UTC().Add(-time.Hour), line)

	// A customer touched the cart just before the cycle started.
	repo.mu.Lock()
	repo.carts[42].UpdatedAt = time.Now().UTC()
	repo.mu.Unlock()

	sweeper.Sweep(context.Background())

	// FindStale no longer matches, and even a raced guarded clear would
	// have lost; nothing is released.
	assert.Equal(t, 0, ledger.remaining("p1", "v1"))
}

func TestSweepGuardedClearRace(t *testing.T) {
	repo := newMockRepo()
	ledger := newMockLedger()

	line := Item{ID: "line-1", ProductID: "p1", VariantID: "v1", Price: 500, Quantity: 2}
	stale := time.Now().UTC().Add(-time.Hour)
	seedCartAt(repo, 42, stale, line)

	// Simulate a write landing after the sweeper fetched the cart: the
	// guarded clear sees a different updated_at and must not release.
	snapshot := Cart{UserID: 42, UpdatedAt: stale, Items: []Item{line}}
	repo.mu.Lock()
	repo.carts[42].UpdatedAt = time.Now().UTC()
	repo.mu.Unlock()

	cleared, err := repo.ClearIfUntouched(context.Background(), snapshot.UserID, snapshot.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, cleared)
	assert.Equal(t, 0, ledger.remaining("p1", "v1"))
}

func TestSweepReclaimsWhenGuardLoses(t *testing.T) {
	repo := newMockRepo()
	ledger := newMockLedger()
	sweeper := NewSweeper(repo, ledger, 15*time.Minute, time.Minute, 50, testLogger())

	line := Item{ID: "line-1", ProductID: "p1", VariantID: "v1", Price: 500, Quantity: 2}
	seedCartAt(repo, 42, time.Now().UTC().Add(-time.Hour), line)

	// A customer write lands between the fetch and the guarded clear.
	// The units released up front belong to the live cart again.
	repo.beforeClearGuard = func() {
		repo.mu.Lock()
		repo.carts[42].UpdatedAt = time.Now().UTC()
		repo.mu.Unlock()
	}

	sweeper.Sweep(context.Background())

	assert.Equal(t, 0, ledger.remaining("p1", "v1"))
	got, err := repo.GetByOwner(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
}

func TestSweepAbortsOnQueryFailure(t *testing.T) {
	repo := newMockRepo()
	ledger := newMockLedger()
	sweeper := NewSweeper(repo, ledger, 15*time.Minute, time.Minute, 50, testLogger())

	line := Item{ID: "line-1", ProductID: "p1", VariantID: "v1", Price: 500, Quantity: 2}
	seedCartAt(repo, 42, time.Now().UTC().Add(-time.Hour), line)
	repo.failFindStale = true

	sweeper.Sweep(context.Background())

	assert.Equal(t, 0, ledger.remaining("p1", "v1"))
}

func TestCartExpiry(t *testing.T) {
	now := time.Now()
	c := &Cart{CreatedAt: now.Add(-20 * time.Minute)}
	assert.True(t, c.ExpiredAt(now, 15*time.Minute))

	// updated_at wins over created_at when present.
	c.UpdatedAt = now.Add(-5 * time.Minute)
	assert.False(t, c.ExpiredAt(now, 15*time.Minute))
}
