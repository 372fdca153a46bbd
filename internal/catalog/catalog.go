// Package catalog keeps an in-memory snapshot of the ERP's products and
// customers for the point-of-sale flow. Lookups are served from the last
// completed load; there is no TTL, only explicit reloads.
package catalog

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/pdv-labs/pos-gateway/internal/erp"
)

// Sentinel errors for cache lookups.
var (
	ErrProductNotFound  = errors.New("product not found in catalog")
	ErrCustomerNotFound = errors.New("customer not found in catalog")
)

// Source provides the catalog lists. Implemented by *erp.Client.
type Source interface {
	ListProducts(ctx context.Context) ([]erp.Product, error)
	ListClients(ctx context.Context) ([]erp.Customer, error)
}

// Cache is the snapshot store. Safe for concurrent use: loads swap whole
// snapshots under the write lock, lookups take the read lock.
type Cache struct {
	src Source

	mu        sync.RWMutex
	products  []erp.Product
	customers []erp.Customer
	prodByID  map[int64]*erp.Product
	custByID  map[int64]*erp.Customer
}

// New creates an empty Cache backed by src.
func New(src Source) *Cache {
	return &Cache{
		src:      src,
		prodByID: make(map[int64]*erp.Product),
		custByID: make(map[int64]*erp.Customer),
	}
}

// Load fetches both lists concurrently and replaces the snapshots. The two
// fetches degrade independently: when one fails, the other snapshot is
// still replaced and the failure is reported in the returned error. A
// failed fetch resets its snapshot to empty.
func (c *Cache) Load(ctx context.Context) error {
	var (
		products  []erp.Product
		customers []erp.Customer
		prodErr   error
		custErr   error
	)

	// A failed fetch must not cancel the other one; both outcomes are
	// collected regardless.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		products, prodErr = c.src.ListProducts(ctx)
	}()
	go func() {
		defer wg.Done()
		customers, custErr = c.src.ListClients(ctx)
	}()
	wg.Wait()

	c.mu.Lock()
	c.setProductsLocked(products)
	c.setCustomersLocked(customers)
	c.mu.Unlock()

	switch {
	case prodErr != nil && custErr != nil:
		return errors.Wrapf(prodErr, "load catalog (clients also failed: %v)", custErr)
	case prodErr != nil:
		return errors.Wrap(prodErr, "load products")
	case custErr != nil:
		return errors.Wrap(custErr, "load clients")
	}
	return nil
}

// ReloadProducts refreshes only the product snapshot. Used after a
// successful sale to pick up the server-side stock decrement.
func (c *Cache) ReloadProducts(ctx context.Context) error {
	products, err := c.src.ListProducts(ctx)
	if err != nil {
		return errors.Wrap(err, "reload products")
	}

	c.mu.Lock()
	c.setProductsLocked(products)
	c.mu.Unlock()
	return nil
}

// ReloadCustomers refreshes only the customer snapshot, after client
// registration or removal.
func (c *Cache) ReloadCustomers(ctx context.Context) error {
	customers, err := c.src.ListClients(ctx)
	if err != nil {
		return errors.Wrap(err, "reload clients")
	}

	c.mu.Lock()
	c.setCustomersLocked(customers)
	c.mu.Unlock()
	return nil
}

func (c *Cache) setProductsLocked(products []erp.Product) {
	c.products = products
	c.prodByID = make(map[int64]*erp.Product, len(products))
	for i := range products {
		c.prodByID[products[i].ID] = &products[i]
	}
}

func (c *Cache) setCustomersLocked(customers []erp.Customer) {
	c.customers = customers
	c.custByID = make(map[int64]*erp.Customer, len(customers))
	for i := range customers {
		c.custByID[customers[i].ID] = &customers[i]
	}
}

// Product returns the cached product with the given ID.
func (c *Cache) Product(id int64) (erp.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.prodByID[id]
	if !ok {
		return erp.Product{}, errors.Wrapf(ErrProductNotFound, "id %d", id)
	}
	return *p, nil
}

// Customer returns the cached customer with the given ID.
func (c *Cache) Customer(id int64) (erp.Customer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cu, ok := c.custByID[id]
	if !ok {
		return erp.Customer{}, errors.Wrapf(ErrCustomerNotFound, "id %d", id)
	}
	return *cu, nil
}

// Products returns the current product snapshot.
func (c *Cache) Products() []erp.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.products
}

// Customers returns the current customer snapshot.
func (c *Cache) Customers() []erp.Customer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.customers
}
