// internal/domain/order/service_test.go
package order

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/minishop/storefront-backend/internal/domain/cart"
	"github.com/minishop/storefront-backend/internal/infrastructure/blob"
	"github.com/minishop/storefront-backend/internal/pkg/apperrors"
)

type fakeOrders struct {
	mu               sync.Mutex
	orders           map[primitive.ObjectID]*Order
	beforeTransition func()
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[primitive.ObjectID]*Order)}
}

func (f *fakeOrders) Insert(_ context.Context, o *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.ID = primitive.NewObjectID()
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	f.orders[o.ID] = &cp
	return nil
}

func (f *fakeOrders) FindByID(_ context.Context, id primitive.ObjectID) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.IsDeleted {
		return nil, apperrors.ErrOrderNotFound
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp, nil
}

func (f *fakeOrders) FindByOwner(_ context.Context, ownerID int64) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Order{}
	for _, o := range f.orders {
		if o.UserID == ownerID && !o.IsDeleted {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeOrders) FindPage(_ context.Context, status Status, before primitive.ObjectID, limit int) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.orders {
		if o.IsDeleted {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		if !before.IsZero() && o.ID.Hex() >= before.Hex() {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() > out[j].ID.Hex() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeOrders) Transition(_ context.Context, id primitive.ObjectID, from, to Status, reason string) (bool, error) {
	if f.beforeTransition != nil {
		f.beforeTransition()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.IsDeleted || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	if to == StatusRejected {
		o.RejectionReason = reason
	}
	if from == StatusRejected {
		o.RejectionReason = ""
	}
	return true, nil
}

func (f *fakeOrders) MarkDeleted(_ context.Context, id primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.IsDeleted {
		return false, nil
	}
	o.IsDeleted = true
	return true, nil
}

func (f *fakeOrders) FindPurgeable(_ context.Context, cutoff time.Time) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.orders {
		decided := o.Status == StatusDone || o.Status == StatusRejected
		if o.IsDeleted || (decided && o.UpdatedAt.Before(cutoff)) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) Remove(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := int64(0)
	for _, id := range ids {
		if _, ok := f.orders[id]; ok {
			delete(f.orders, id)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeOrders) seed(o *Order) primitive.ObjectID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	f.orders[o.ID] = o
	return o.ID
}

type fakeCarts struct {
	cart *cart.Cart
	err  error
}

func (f *fakeCarts) Get(_ context.Context, _ int64) (*cart.Cart, error) {
	return f.cart, f.err
}

func (f *fakeCarts) Discard(_ context.Context, _ int64) error { return nil }

type fakeLedger struct {
	mu    sync.Mutex
	stock map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{stock: make(map[string]int)}
}

func (f *fakeLedger) Decrement(_ context.Context, productID, variantID string, qty int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := productID + ":" + variantID
	if f.stock[key] < qty {
		return false, nil
	}
	f.stock[key] -= qty
	return true, nil
}

func (f *fakeLedger) Increment(_ context.Context, productID, variantID string, qty int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[productID+":"+variantID] += qty
}

func (f *fakeLedger) remaining(productID, variantID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[productID+":"+variantID]
}

type fakeGate struct {
	open    bool
	message string
}

func (f *fakeGate) IsOpen(_ context.Context) (bool, string) { return f.open, f.message }

type fakeBlobs struct {
	puts    int
	deleted []string
}

func (f *fakeBlobs) Put(_ context.Context, _, _ string, r io.Reader) (string, error) {
	io.Copy(io.Discard, r)
	f.puts++
	return "blob-1", nil
}

func (f *fakeBlobs) Open(_ context.Context, _ string) (io.ReadCloser, *blob.Meta, error) {
	return io.NopCloser(strings.NewReader("")), &blob.Meta{}, nil
}

func (f *fakeBlobs) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type nopNotifier struct{}

func (nopNotifier) NotifyAdmins(context.Context, string) {}

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		CustomerName:    "Ada",
		Phone:           "+7 (900) 123-45-67",
		DeliveryAddress: "1 Main St",
		DeliveryType:    "courier",
		PaymentType:     "card",
	}
}

func testService(gate *fakeGate, carts *fakeCarts, ledger *fakeLedger, blobs *fakeBlobs) (*Service, *fakeOrders) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	repo := newFakeOrders()
	return &Service{
		repo:          repo,
		carts:         carts,
		ledger:        ledger,
		gate:          gate,
		blobs:         blobs,
		notifier:      nopNotifier{},
		maxReceipt:    1 << 20,
		retainDecided: 24 * time.Hour,
		logger:        logger,
	}, repo
}

func TestCheckoutClosedStore(t *testing.T) {
	svc, _ := testService(&fakeGate{open: false, message: "back tomorrow"}, &fakeCarts{}, newFakeLedger(), &fakeBlobs{})

	_, err := svc.Checkout(context.Background(), 42, validRequest(), nil)
	assert.ErrorIs(t, err, apperrors.ErrStoreClosed)
	assert.Contains(t, err.Error(), "back tomorrow")
}

func TestCheckoutValidation(t *testing.T) {
	svc, _ := testService(&fakeGate{open: true}, &fakeCarts{}, newFakeLedger(), &fakeBlobs{})
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateOrderRequest)
		field  string
	}{
		{"blank name", func(r *CreateOrderRequest) { r.CustomerName = "  " }, "customer_name"},
		{"blank address", func(r *CreateOrderRequest) { r.DeliveryAddress = "" }, "delivery_address"},
		{"short phone", func(r *CreateOrderRequest) { r.Phone = "123" }, "phone"},
		{"alpha phone", func(r *CreateOrderRequest) { r.Phone = "phone me" }, "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := svc.Checkout(ctx, 42, req, nil)
			var vErr *apperrors.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	carts := &fakeCarts{cart: &cart.Cart{UserID: 42, Items: []cart.Item{}}}
	svc, _ := testService(&fakeGate{open: true}, carts, newFakeLedger(), &fakeBlobs{})

	_, err := svc.Checkout(context.Background(), 42, validRequest(), nil)
	var vErr *apperrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "cart", vErr.Field)
}

func TestCheckoutPersistsOrder(t *testing.T) {
	carts := &fakeCarts{cart: &cart.Cart{
		UserID: 42,
		Items: []cart.Item{
			{ID: "l1", ProductID: "p1", VariantID: "v1", Name: "Beans", VariantLabel: "250g", Image: "img-1", Price: 1200, Quantity: 2},
		},
		TotalAmount: 2400,
	}}
	svc, repo := testService(&fakeGate{open: true}, carts, newFakeLedger(), &fakeBlobs{})

	o, err := svc.Checkout(context.Background(), 42, validRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusNew, o.Status)
	assert.Equal(t, "+79001234567", o.Phone)
	assert.Equal(t, int64(2400), o.TotalAmount)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "img-1", o.Items[0].Image)

	stored, err := repo.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalAmount, stored.TotalAmount)
}

func TestCheckoutReceiptValidation(t *testing.T) {
	carts := &fakeCarts{cart: &cart.Cart{
		UserID:      42,
		Items:       []cart.Item{{ID: "l1", ProductID: "p1", VariantID: "v1", Price: 100, Quantity: 1}},
		TotalAmount: 100,
	}}
	blobs := &fakeBlobs{}
	svc, _ := testService(&fakeGate{open: true}, carts, newFakeLedger(), blobs)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, 42, validRequest(), &Receipt{
		Name:        "receipt.gif",
		ContentType: "image/gif",
		Size:        100,
		Reader:      strings.NewReader("gif"),
	})
	var vErr *apperrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "receipt", vErr.Field)

	_, err = svc.Checkout(ctx, 42, validRequest(), &Receipt{
		Name:        "receipt.pdf",
		ContentType: "application/pdf",
		Size:        2 << 20,
		Reader:      strings.NewReader("pdf"),
	})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "receipt", vErr.Field)
	assert.Zero(t, blobs.puts)
}

func TestRejectReleasesStockExactlyOnce(t *testing.T) {
	ledger := newFakeLedger()
	svc, repo := testService(&fakeGate{open: true}, &fakeCarts{}, ledger, &fakeBlobs{})
	ctx := context.Background()

	id := repo.seed(&Order{
		Status: StatusNew,
		Items:  []Item{{ProductID: "p1", VariantID: "v1", Quantity: 2}},
	})

	rejected, err := svc.UpdateStatus(ctx, id.Hex(), UpdateStatusRequest{Status: StatusRejected, Reason: "out of stock"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "out of stock", rejected.RejectionReason)
	assert.Equal(t, 2, ledger.remaining("p1", "v1"))

	// Rejecting an already-rejected order must not restore again.
	again, err := svc.UpdateStatus(ctx, id.Hex(), UpdateStatusRequest{Status: StatusRejected, Reason: "still out"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, again.Status)
	assert.Equal(t, 2, ledger.remaining("p1", "v1"))
}

func TestRejectRequiresReason(t *testing.T) {
	svc, repo := testService(&fakeGate{open: true}, &fakeCarts{}, newFakeLedger(), &fakeBlobs{})
	id := repo.seed(&Order{Status: StatusNew})

	_, err := svc.UpdateStatus(context.Background(), id.Hex(), UpdateStatusRequest{Status: StatusRejected, Reason: "  "})
	var vErr *apperrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "reason", vErr.Field)
}

func TestRejectLosesGuardedFlip(t *testing.T) {
	ledger := newFakeLedger()
	svc, repo := testService(&fakeGate{open: true}, &fakeCarts{}, ledger, &fakeBlobs{})
	ctx := context.Background()

	id := repo.seed(&Order{
		Status: StatusNew,
		Items:  []Item{{ProductID: "p1", VariantID: "v1", Quantity: 2}},
	})

	// Another admin accepts the order between our read and the guarded
	// flip; the loser must not release anything.
	repo.beforeTransition = func() {
		repo.beforeTransition = nil
		repo.mu.Lock()
		repo.orders[id].Status = StatusAccepted
		repo.mu.Unlock()
	}

	_, err := svc.UpdateStatus(ctx, id.Hex(), UpdateStatusRequest{Status: StatusRejected, Reason: "oos"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 0, ledger.remaining("p1", "v1"))
}

func TestUnrejectReReservesAndClearsReason(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stock["p1:v1"] = 3
	svc, repo := testService(&fakeGate{open: true}, &fakeCarts{}, ledger, &fakeBlobs{})

	id := repo.seed(&Order{
		Status:          StatusRejected,
		RejectionReason: "out of stock",
		Items:           []Item{{ProductID: "p1", VariantID: "v1", Quantity: 2}},
	})

	updated, err := svc.UpdateStatus(context.Background(), id.Hex(), UpdateStatusRequest{Status: StatusAccepted})
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, updated.Status)
	assert.Empty(t, updated.RejectionReason)
	assert.Equal(t, 1, ledger.remaining("p1", "v1"))
}

func TestUnrejectRollsBackOnPartialStock(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stock["p1:v1"] = 2
	svc, _ := testService(&fakeGate{open: true}, &fakeCarts{}, ledger, &fakeBlobs{})

	o := &Order{
		Status: StatusRejected,
		Items: []Item{
			{ProductID: "p1", VariantID: "v1", Quantity: 2},
			{ProductID: "p2", VariantID: "v1", Quantity: 1},
		},
	}

	_, err := svc.unreject(context.Background(), o, StatusAccepted)
	var stockErr *apperrors.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	// The first line was taken and must be given back.
	assert.Equal(t, 2, ledger.remaining("p1", "v1"))
	assert.Equal(t, 0, ledger.remaining("p2", "v1"))
}

func TestQuickAcceptGuard(t *testing.T) {
	svc, repo := testService(&fakeGate{open: true}, &fakeCarts{}, newFakeLedger(), &fakeBlobs{})
	ctx := context.Background()

	id := repo.seed(&Order{Status: StatusNew})
	accepted, err := svc.QuickAccept(ctx, id.Hex())
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)

	// Already processed: the guard refuses a second accept.
	_, err = svc.QuickAccept(ctx, id.Hex())
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = svc.QuickAccept(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestSoftDeleteHidesOrder(t *testing.T) {
	svc, repo := testService(&fakeGate{open: true}, &fakeCarts{}, newFakeLedger(), &fakeBlobs{})
	ctx := context.Background()

	id := repo.seed(&Order{Status: StatusDone})
	require.NoError(t, svc.SoftDelete(ctx, id.Hex()))

	_, err := svc.Get(ctx, id.Hex())
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
	assert.ErrorIs(t, svc.SoftDelete(ctx, id.Hex()), apperrors.ErrOrderNotFound)
}

func TestListPaginatesWithCursor(t *testing.T) {
	svc, repo := testService(&fakeGate{open: true}, &fakeCarts{}, newFakeLedger(), &fakeBlobs{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		repo.seed(&Order{Status: StatusNew, CustomerName: "Ada"})
	}

	first, cursor, err := svc.List(ctx, ListParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, first, 2)
	require.NotEmpty(t, cursor)

	rest, next, err := svc.List(ctx, ListParams{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	assert.Empty(t, next)

	_, _, err = svc.List(ctx, ListParams{Cursor: "not-hex"})
	var vErr *apperrors.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestPurgeRemovesAgedDecidedOrders(t *testing.T) {
	blobs := &fakeBlobs{}
	svc, repo := testService(&fakeGate{open: true}, &fakeCarts{}, newFakeLedger(), blobs)
	ctx := context.Background()

	aged := repo.seed(&Order{
		Status:    StatusRejected,
		ReceiptID: "receipt-blob",
		UpdatedAt: time.Now().UTC().Add(-48 * time.Hour),
	})
	fresh := repo.seed(&Order{Status: StatusDone, UpdatedAt: time.Now().UTC()})

	svc.Purge(ctx)

	_, err := repo.FindByID(ctx, aged)
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
	_, err = repo.FindByID(ctx, fresh)
	assert.NoError(t, err)
	assert.Contains(t, blobs.deleted, "receipt-blob")
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+79001234567", normalizePhone(" +7 (900) 123-45-67 "))
	assert.Equal(t, "74951234567", normalizePhone("7 495 123 45 67"))
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusNew, StatusAccepted, StatusDone, StatusRejected} {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("shipped").Valid())
	assert.False(t, Status("").Valid())
}

func TestCopyItemsSnapshotsCartLines(t *testing.T) {
	src := []cart.Item{{
		ID: "l1", ProductID: "p1", VariantID: "v1",
		Name: "Beans", VariantLabel: "250g", Image: "img-1", Price: 1200, Quantity: 2,
	}}
	out := copyItems(src)
	require.Len(t, out, 1)
	assert.Equal(t, "l1", out[0].ID)
	assert.Equal(t, "img-1", out[0].Image)
	assert.Equal(t, int64(1200), out[0].Price)
	assert.Equal(t, 2, out[0].Quantity)

	// Mutating the cart afterwards must not touch the copy.
	src[0].Quantity = 99
	assert.Equal(t, 2, out[0].Quantity)
}
