package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdv-labs/pos-gateway/internal/cart"
	"github.com/pdv-labs/pos-gateway/internal/catalog"
	"github.com/pdv-labs/pos-gateway/internal/erp"
)

// --- Mock implementations ---

type mockBackend struct {
	mu sync.Mutex

	order     *erp.Order
	createErr error
	uploadErr error

	lastSubmission *erp.SaleSubmission
	createCalls    int

	uploadedName string
	uploadedDoc  []byte
	uploadCalls  int

	// When set, CreateOrder blocks until released. Used to exercise the
	// one-submission-at-a-time guard.
	block chan struct{}
}

func (m *mockBackend) CreateOrder(_ context.Context, sub erp.SaleSubmission) (*erp.Order, error) {
	m.mu.Lock()
	m.createCalls++
	m.lastSubmission = &sub
	block := m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.order != nil {
		return m.order, nil
	}
	return &erp.Order{ID: 42, Status: erp.StatusFinalized, Total: sub.Total}, nil
}

func (m *mockBackend) UploadReceipt(_ context.Context, _ int64, filename string, document []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadCalls++
	m.uploadedName = filename
	m.uploadedDoc = document
	return m.uploadErr
}

func (m *mockBackend) uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadCalls
}

type mockCatalog struct {
	products  map[int64]erp.Product
	customers map[int64]erp.Customer

	mu      sync.Mutex
	reloads int
}

func (m *mockCatalog) Product(id int64) (erp.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return erp.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (m *mockCatalog) Customer(id int64) (erp.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return erp.Customer{}, catalog.ErrCustomerNotFound
	}
	return c, nil
}

func (m *mockCatalog) ReloadProducts(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads++
	return nil
}

func (m *mockCatalog) reloadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloads
}

// --- Helpers ---

func newTestCatalog() *mockCatalog {
	return &mockCatalog{
		products: map[int64]erp.Product{
			1: {ID: 1, Name: "Caixa de Som", SalePrice: decimal.RequireFromString("450.00")},
			2: {ID: 2, Name: "Cabo HDMI", SalePrice: decimal.RequireFromString("25.00")},
		},
		customers: map[int64]erp.Customer{
			7: {ID: 7, Name: "Maria Souza"},
		},
	}
}

func newLoadedLedger(t *testing.T, cat *mockCatalog) *cart.Ledger {
	t.Helper()
	ledger := cart.NewLedger(cat)
	_, err := ledger.Add(1, 1)
	require.NoError(t, err)
	_, err = ledger.Add(2, 2)
	require.NoError(t, err)
	return ledger
}

// --- Tests ---

func TestSubmit_NoCustomerSelected(t *testing.T) {
	cat := newTestCatalog()
	orch := New(&mockBackend{}, cat, newLoadedLedger(t, cat), zap.NewNop())

	_, err := orch.Submit(context.Background(), Request{PaymentMethod: erp.PaymentPix})
	require.ErrorIs(t, err, ErrNoCustomerSelected)
	assert.Equal(t, StateIdle, orch.State())
}

func TestSubmit_EmptyCart(t *testing.T) {
	cat := newTestCatalog()
	orch := New(&mockBackend{}, cat, cart.NewLedger(cat), zap.NewNop())

	_, err := orch.Submit(context.Background(), Request{CustomerID: 7})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestSubmit_InvalidPaymentMethod(t *testing.T) {
	cat := newTestCatalog()
	orch := New(&mockBackend{}, cat, newLoadedLedger(t, cat), zap.NewNop())

	_, err := orch.Submit(context.Background(), Request{
		CustomerID:    7,
		PaymentMethod: "CHEQUE",
	})
	require.ErrorIs(t, err, ErrInvalidPayment)
}

func TestSubmit_UnknownCustomer(t *testing.T) {
	cat := newTestCatalog()
	orch := New(&mockBackend{}, cat, newLoadedLedger(t, cat), zap.NewNop())

	_, err := orch.Submit(context.Background(), Request{CustomerID: 99})
	require.ErrorIs(t, err, catalog.ErrCustomerNotFound)
}

func TestSubmit_Success(t *testing.T) {
	backend := &mockBackend{}
	cat := newTestCatalog()
	ledger := newLoadedLedger(t, cat)
	orch := New(backend, cat, ledger, zap.NewNop())

	summary, err := orch.Submit(context.Background(), Request{
		CustomerID:    7,
		PaymentMethod: erp.PaymentPix,
	})
	require.NoError(t, err)

	sub := backend.lastSubmission
	require.NotNil(t, sub)
	assert.Equal(t, int64(7), sub.ClientID)
	assert.Equal(t, erp.StatusFinalized, sub.Status)
	assert.Equal(t, DefaultDescription, sub.Description)
	assert.Equal(t, erp.PaymentPix, sub.PaymentMethod)
	assert.True(t, decimal.RequireFromString("500.00").Equal(sub.Total))
	require.Len(t, sub.Items, 2)
	assert.True(t, decimal.RequireFromString("50.00").Equal(sub.Items[1].Total))

	// Submitted timestamps carry no zone suffix.
	_, perr := time.ParseInLocation(erp.TimeLayout, sub.Date, time.Local)
	require.NoError(t, perr)

	assert.Equal(t, int64(42), summary.OrderID)
	assert.Equal(t, "Maria Souza", summary.Customer.Name)
	assert.True(t, decimal.RequireFromString("500.00").Equal(summary.Total))
	require.Len(t, summary.Items, 2)
	assert.Equal(t, "Caixa de Som", summary.Items[0].Name)

	assert.True(t, ledger.Empty())
	assert.Equal(t, StateSucceeded, orch.State())
	assert.Equal(t, 1, cat.reloadCount())
}

func TestSubmit_DefaultsToCashPayment(t *testing.T) {
	backend := &mockBackend{}
	cat := newTestCatalog()
	orch := New(backend, cat, newLoadedLedger(t, cat), zap.NewNop())

	_, err := orch.Submit(context.Background(), Request{CustomerID: 7})
	require.NoError(t, err)
	assert.Equal(t, erp.PaymentCash, backend.lastSubmission.PaymentMethod)
}

func TestSubmit_FailureKeepsCart(t *testing.T) {
	backend := &mockBackend{createErr: errors.Wrap(erp.ErrUnreachable, "connect")}
	cat := newTestCatalog()
	ledger := newLoadedLedger(t, cat)
	orch := New(backend, cat, ledger, zap.NewNop())

	_, err := orch.Submit(context.Background(), Request{CustomerID: 7})
	require.ErrorIs(t, err, erp.ErrUnreachable)

	assert.Equal(t, StateFailed, orch.State())
	assert.Len(t, ledger.Lines(), 2)
	assert.Equal(t, 0, cat.reloadCount())

	// After acknowledging the failure, a retry goes through.
	orch.Acknowledge()
	assert.Equal(t, StateIdle, orch.State())

	backend.createErr = nil
	_, err = orch.Submit(context.Background(), Request{CustomerID: 7})
	require.NoError(t, err)
	assert.True(t, ledger.Empty())
}

func TestSubmit_RefusesConcurrentSubmission(t *testing.T) {
	backend := &mockBackend{block: make(chan struct{})}
	cat := newTestCatalog()
	orch := New(backend, cat, newLoadedLedger(t, cat), zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := orch.Submit(context.Background(), Request{CustomerID: 7})
		done <- err
	}()

	require.Eventually(t, func() bool {
		return orch.State() == StateSubmitting
	}, time.Second, 5*time.Millisecond)

	_, err := orch.Submit(context.Background(), Request{CustomerID: 7})
	require.ErrorIs(t, err, ErrSubmitting)

	close(backend.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, backend.createCalls)
}

func TestSubmit_UploadsReceiptInBackground(t *testing.T) {
	backend := &mockBackend{}
	cat := newTestCatalog()
	orch := New(backend, cat, newLoadedLedger(t, cat), zap.NewNop())

	_, err := orch.Submit(context.Background(), Request{CustomerID: 7})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return backend.uploads() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "comprovante-venda-42.html", backend.uploadedName)
	assert.Contains(t, string(backend.uploadedDoc), "Maria Souza")
	assert.Contains(t, string(backend.uploadedDoc), "Caixa de Som")
}

func TestSubmit_UploadFailureDoesNotAffectSale(t *testing.T) {
	backend := &mockBackend{uploadErr: errors.New("boom")}
	cat := newTestCatalog()
	ledger := newLoadedLedger(t, cat)
	orch := New(backend, cat, ledger, zap.NewNop())

	summary, err := orch.Submit(context.Background(), Request{CustomerID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(42), summary.OrderID)
	assert.True(t, ledger.Empty())

	require.Eventually(t, func() bool {
		return backend.uploads() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateSucceeded, orch.State())
}

func TestSubmit_NoUploadWithoutOrderID(t *testing.T) {
	// Some backend versions answer 201 with an empty body.
	backend := &mockBackend{order: &erp.Order{}}
	cat := newTestCatalog()
	orch := New(backend, cat, newLoadedLedger(t, cat), zap.NewNop())

	summary, err := orch.Submit(context.Background(), Request{CustomerID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.OrderID)

	// The fallback summary is built from the cart.
	require.Len(t, summary.Items, 2)
	assert.True(t, decimal.RequireFromString("500.00").Equal(summary.Total))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, backend.uploads())
}

func TestSubmit_PrefersServerEchoedItems(t *testing.T) {
	backend := &mockBackend{order: &erp.Order{
		ID:     99,
		Date:   "2026-08-29T14:30:00",
		Total:  decimal.RequireFromString("500.00"),
		Status: erp.StatusFinalized,
		Items: []erp.OrderItem{
			{
				Product:   &erp.Product{ID: 1, Name: "Caixa de Som Premium"},
				Quantity:  1,
				UnitPrice: decimal.RequireFromString("450.00"),
			},
			{
				FlatProductID: 2,
				Quantity:      2,
				UnitPrice:     decimal.RequireFromString("25.00"),
			},
		},
	}}
	cat := newTestCatalog()
	orch := New(backend, cat, newLoadedLedger(t, cat), zap.NewNop())

	summary, err := orch.Submit(context.Background(), Request{CustomerID: 7})
	require.NoError(t, err)

	assert.Equal(t, int64(99), summary.OrderID)
	assert.Equal(t, time.Date(2026, 8, 29, 14, 30, 0, 0, time.Local), summary.Date)
	require.Len(t, summary.Items, 2)
	// Echoed nested product wins; flat IDs resolve through the catalog.
	assert.Equal(t, "Caixa de Som Premium", summary.Items[0].Name)
	assert.Equal(t, "Cabo HDMI", summary.Items[1].Name)
	assert.True(t, decimal.RequireFromString("50.00").Equal(summary.Items[1].Total))
}

func TestSubmit_TotalMatchesItemsUnderConcurrentAdds(t *testing.T) {
	backend := &mockBackend{}
	cat := newTestCatalog()
	ledger := cart.NewLedger(cat)
	orch := New(backend, cat, ledger, zap.NewNop())

	// Hammer the cart from another terminal action while sales go out. The
	// submitted valorTotal must always equal the sum of the submitted lines,
	// no matter where the add lands.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = ledger.Add(2, 1)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		_, err := ledger.Add(1, 1)
		require.NoError(t, err)

		_, err = orch.Submit(context.Background(), Request{CustomerID: 7})
		require.NoError(t, err)
		orch.Acknowledge()

		sub := backend.lastSubmission
		require.NotNil(t, sub)
		sum := decimal.Zero
		for _, it := range sub.Items {
			sum = sum.Add(it.Total)
		}
		require.True(t, sub.Total.Equal(sum),
			"valorTotal %s != sum of itensVendas %s", sub.Total, sum)
	}

	close(stop)
	wg.Wait()
}

func TestAcknowledge_NoopWhileIdle(t *testing.T) {
	cat := newTestCatalog()
	orch := New(&mockBackend{}, cat, cart.NewLedger(cat), zap.NewNop())

	orch.Acknowledge()
	assert.Equal(t, StateIdle, orch.State())
}
