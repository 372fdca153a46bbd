package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdv-labs/pos-gateway/internal/erp"
)

// --- Mock implementations ---

type mockBackend struct {
	totals    map[string]decimal.Decimal
	totalsErr error

	orders    []erp.Order
	ordersErr error

	services    []erp.Service
	servicesErr error

	lastStart string
	lastEnd   string
}

func (m *mockBackend) DashboardTotals(_ context.Context, start, end string) (map[string]decimal.Decimal, error) {
	m.lastStart, m.lastEnd = start, end
	if m.totalsErr != nil {
		return nil, m.totalsErr
	}
	return m.totals, nil
}

func (m *mockBackend) ListOrders(_ context.Context, _, _ string) ([]erp.Order, error) {
	if m.ordersErr != nil {
		return nil, m.ordersErr
	}
	return m.orders, nil
}

func (m *mockBackend) ListServices(_ context.Context) ([]erp.Service, error) {
	if m.servicesErr != nil {
		return nil, m.servicesErr
	}
	return m.services, nil
}

type mockCounts struct {
	products  int
	customers int
}

func (m *mockCounts) Products() []erp.Product {
	return make([]erp.Product, m.products)
}

func (m *mockCounts) Customers() []erp.Customer {
	return make([]erp.Customer, m.customers)
}

// --- Helpers ---

func testRange() (time.Time, time.Time) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.Local)
	end := time.Date(2026, 8, 31, 23, 59, 59, 0, time.Local)
	return start, end
}

// --- Tests ---

func TestTotals_PrefersSummaryEndpoint(t *testing.T) {
	backend := &mockBackend{
		totals: map[string]decimal.Decimal{
			"DINHEIRO": decimal.RequireFromString("100.00"),
		},
		// Orders would give a different answer; they must not be consulted.
		orders: []erp.Order{
			{Status: erp.StatusFinalized, PaymentMethod: erp.PaymentPix, Total: decimal.RequireFromString("999.00")},
		},
	}
	svc := New(backend, &mockCounts{}, zap.NewNop())

	start, end := testRange()
	totals, err := svc.Totals(context.Background(), start, end)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("100.00").Equal(totals["DINHEIRO"]))
	assert.NotContains(t, totals, "PIX")
	assert.Equal(t, "2026-08-01T00:00:00", backend.lastStart)
	assert.Equal(t, "2026-08-31T23:59:59", backend.lastEnd)
}

func TestTotals_FallsBackToOrderAggregation(t *testing.T) {
	backend := &mockBackend{
		totalsErr: &erp.APIError{Status: 404, Message: "not found"},
		orders: []erp.Order{
			{Status: "FINALIZADA", PaymentMethod: "DINHEIRO", Total: decimal.RequireFromString("100.00")},
			{Status: "FINALIZADO", PaymentMethod: "pix", Total: decimal.RequireFromString("50.00")},
			{Status: "FINALIZADA", PaymentMethod: "CARTAO_CREDITO", Total: decimal.RequireFromString("200.00")},
			// Non-finalized orders are excluded from the aggregation.
			{Status: "PENDENTE", PaymentMethod: "DINHEIRO", Total: decimal.RequireFromString("999.00")},
			{Status: "CANCELADA", PaymentMethod: "PIX", Total: decimal.RequireFromString("999.00")},
		},
	}
	svc := New(backend, &mockCounts{}, zap.NewNop())

	start, end := testRange()
	totals, err := svc.Totals(context.Background(), start, end)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("100.00").Equal(totals["DINHEIRO"]))
	assert.True(t, decimal.RequireFromString("50.00").Equal(totals["PIX"]))
	assert.True(t, decimal.RequireFromString("200.00").Equal(totals["CARTAO_CREDITO"]))
	assert.True(t, decimal.RequireFromString("150.00").Equal(totals[TotalCashPixKey]))
}

func TestTotals_FallbackSeedsCashAndPix(t *testing.T) {
	backend := &mockBackend{
		totalsErr: errors.New("boom"),
		orders:    nil,
	}
	svc := New(backend, &mockCounts{}, zap.NewNop())

	start, end := testRange()
	totals, err := svc.Totals(context.Background(), start, end)
	require.NoError(t, err)

	// Zero-valued keys are present so the overview cards always render.
	assert.True(t, totals["DINHEIRO"].IsZero())
	assert.True(t, totals["PIX"].IsZero())
	assert.True(t, totals[TotalCashPixKey].IsZero())
}

func TestTotals_BothSourcesFail(t *testing.T) {
	backend := &mockBackend{
		totalsErr: errors.New("summary down"),
		ordersErr: errors.Wrap(erp.ErrUnreachable, "connect"),
	}
	svc := New(backend, &mockCounts{}, zap.NewNop())

	start, end := testRange()
	_, err := svc.Totals(context.Background(), start, end)
	require.ErrorIs(t, err, erp.ErrUnreachable)
}

func TestOverview(t *testing.T) {
	backend := &mockBackend{
		totals: map[string]decimal.Decimal{
			"DINHEIRO": decimal.RequireFromString("10.00"),
		},
		services: []erp.Service{{ID: 1}, {ID: 2}},
	}
	svc := New(backend, &mockCounts{products: 12, customers: 4}, zap.NewNop())
	svc.now = func() time.Time {
		return time.Date(2026, 8, 29, 10, 0, 0, 0, time.Local)
	}

	out := svc.Overview(context.Background())

	assert.Equal(t, 12, out.Products)
	assert.Equal(t, 4, out.Customers)
	assert.Equal(t, 2, out.Services)
	assert.True(t, decimal.RequireFromString("10.00").Equal(out.Totals["DINHEIRO"]))
	// Month-to-date window in local time.
	assert.Equal(t, "2026-08-01T00:00:00", backend.lastStart)
	assert.Equal(t, "2026-08-29T23:59:59", backend.lastEnd)
}

func TestOverview_DegradesPerFigure(t *testing.T) {
	backend := &mockBackend{
		totalsErr:   errors.New("summary down"),
		ordersErr:   errors.New("orders down"),
		servicesErr: errors.New("services down"),
	}
	svc := New(backend, &mockCounts{products: 3}, zap.NewNop())

	out := svc.Overview(context.Background())

	// Counts from the local snapshot still render.
	assert.Equal(t, 3, out.Products)
	assert.Equal(t, 0, out.Services)
	assert.NotNil(t, out.Totals)
	assert.Empty(t, out.Totals)
}
