package catalog

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdv-labs/pos-gateway/internal/erp"
)

// --- Mock implementations ---

type mockSource struct {
	products []erp.Product
	clients  []erp.Customer

	productsErr error
	clientsErr  error

	productCalls int
	clientCalls  int
}

func (m *mockSource) ListProducts(_ context.Context) ([]erp.Product, error) {
	m.productCalls++
	if m.productsErr != nil {
		return nil, m.productsErr
	}
	return m.products, nil
}

func (m *mockSource) ListClients(_ context.Context) ([]erp.Customer, error) {
	m.clientCalls++
	if m.clientsErr != nil {
		return nil, m.clientsErr
	}
	return m.clients, nil
}

// --- Helpers ---

func testSource() *mockSource {
	return &mockSource{
		products: []erp.Product{
			{ID: 1, Name: "Caixa de Som", SalePrice: decimal.RequireFromString("450.00")},
			{ID: 2, Name: "Cabo HDMI", SalePrice: decimal.RequireFromString("25.00")},
		},
		clients: []erp.Customer{
			{ID: 7, Name: "Maria Souza"},
		},
	}
}

// --- Tests ---

func TestLoad_PopulatesBothSnapshots(t *testing.T) {
	cache := New(testSource())

	require.NoError(t, cache.Load(context.Background()))

	assert.Len(t, cache.Products(), 2)
	assert.Len(t, cache.Customers(), 1)

	p, err := cache.Product(1)
	require.NoError(t, err)
	assert.Equal(t, "Caixa de Som", p.Name)

	c, err := cache.Customer(7)
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", c.Name)
}

func TestLoad_PartialFailureKeepsHealthySide(t *testing.T) {
	src := testSource()
	src.clientsErr = errors.New("erp: 502")
	cache := New(src)

	err := cache.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load clients")

	// Products still loaded despite the client failure.
	assert.Len(t, cache.Products(), 2)
	assert.Empty(t, cache.Customers())

	_, err = cache.Customer(7)
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestLoad_TotalFailureReportsBoth(t *testing.T) {
	src := testSource()
	src.productsErr = errors.New("products down")
	src.clientsErr = errors.New("clients down")
	cache := New(src)

	err := cache.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "products down")
	assert.Contains(t, err.Error(), "clients down")
	assert.Empty(t, cache.Products())
	assert.Empty(t, cache.Customers())
}

func TestLookup_NotFound(t *testing.T) {
	cache := New(testSource())
	require.NoError(t, cache.Load(context.Background()))

	_, err := cache.Product(99)
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = cache.Customer(99)
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestReloadProducts_OnlyTouchesProducts(t *testing.T) {
	src := testSource()
	cache := New(src)
	require.NoError(t, cache.Load(context.Background()))

	stock := 3
	src.products = []erp.Product{
		{ID: 1, Name: "Caixa de Som", SalePrice: decimal.RequireFromString("450.00"), Stock: &stock},
	}
	require.NoError(t, cache.ReloadProducts(context.Background()))

	assert.Len(t, cache.Products(), 1)
	assert.Len(t, cache.Customers(), 1)
	assert.Equal(t, 2, src.productCalls)
	assert.Equal(t, 1, src.clientCalls)

	p, err := cache.Product(1)
	require.NoError(t, err)
	require.NotNil(t, p.Stock)
	assert.Equal(t, 3, *p.Stock)
}

func TestReloadProducts_FailureKeepsOldSnapshot(t *testing.T) {
	src := testSource()
	cache := New(src)
	require.NoError(t, cache.Load(context.Background()))

	src.productsErr = errors.New("erp: timeout")
	require.Error(t, cache.ReloadProducts(context.Background()))

	// The previous snapshot survives a failed explicit reload.
	assert.Len(t, cache.Products(), 2)
}

func TestReloadCustomers(t *testing.T) {
	src := testSource()
	cache := New(src)
	require.NoError(t, cache.Load(context.Background()))

	src.clients = append(src.clients, erp.Customer{ID: 8, Name: "João Lima"})
	require.NoError(t, cache.ReloadCustomers(context.Background()))

	assert.Len(t, cache.Customers(), 2)
	c, err := cache.Customer(8)
	require.NoError(t, err)
	assert.Equal(t, "João Lima", c.Name)
}
