// internal/domain/cart/sweeper.go
package cart

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper reclaims reservations held by abandoned carts. It is the
// recovery path for every orphaned reservation the coordinator's
// ordering rule can produce.
type Sweeper struct {
	repo     Repository
	ledger   StockLedger
	lifetime time.Duration
	interval time.Duration
	batch    int
	logger   *logrus.Logger
}

// NewSweeper creates a cart sweeper
func NewSweeper(repo Repository, ledger StockLedger, lifetime, interval time.Duration, batch int, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		repo:     repo,
		ledger:   ledger,
		lifetime: lifetime,
		interval: interval,
		batch:    batch,
		logger:   logger,
	}
}

// Run executes sweep cycles until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.WithFields(logrus.Fields{
		"interval": s.interval.String(),
		"batch":    s.batch,
	}).Info("cart sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cart sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cycle. A query failure aborts the whole cycle (the
// store is likely down and retrying per cart would just hammer it);
// per-cart failures are logged and skipped.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now()
	stale, err := s.repo.FindStale(ctx, now.Add(-s.lifetime), s.batch)
	if err != nil {
		s.logger.WithError(err).Error("cart sweep query failed, skipping cycle")
		return
	}

	released := 0
	for _, c := range stale {
		// The query only saw updated_at; re-check the full expiry rule
		// on the fetched document.
		if !c.ExpiredAt(now, s.lifetime) {
			continue
		}

		// Release first, then empty the cart. A crash in between leaves
		// the units restored twice at worst; emptying first could drop
		// the only record of how much to restore.
		for _, item := range c.Items {
			s.ledger.Increment(ctx, item.ProductID, item.VariantID, item.Quantity)
		}

		// The guarded clear loses to any concurrent customer write; a
		// cart that came back to life keeps its reservations.
		cleared, err := s.repo.ClearIfUntouched(ctx, c.UserID, c.UpdatedAt)
		if err != nil || !cleared {
			if err != nil {
				s.logger.WithError(err).WithField("user_id", c.UserID).Warn("failed to clear expired cart")
			}
			s.reclaim(ctx, c.Items)
			continue
		}
		released++
	}

	if released > 0 {
		s.logger.WithField("carts", released).Info("released expired cart reservations")
	}
}

// reclaim re-reserves units released for a cart the guarded clear did
// not empty
func (s *Sweeper) reclaim(ctx context.Context, items []Item) {
	for _, item := range items {
		ok, err := s.ledger.Decrement(ctx, item.ProductID, item.VariantID, item.Quantity)
		if err != nil || !ok {
			s.logger.WithFields(logrus.Fields{
				"product_id": item.ProductID,
				"variant_id": item.VariantID,
				"quantity":   item.Quantity,
			}).Warn("failed to re-reserve stock for live cart")
		}
	}
}
