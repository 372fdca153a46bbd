// Package cart owns the in-progress sale: an ordered ledger of line items
// with quantity-merge semantics and a stock guard against the catalog
// snapshot. The guard is advisory; the ERP backend is the final arbiter
// at submission time.
package cart

import (
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pdv-labs/pos-gateway/internal/erp"
)

// ErrInvalidQuantity rejects non-positive quantities before any lookup.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// InsufficientStockError indicates the prospective quantity (already in the
// cart plus requested) exceeds the catalog's known stock for the product.
type InsufficientStockError struct {
	ProductID int64
	Requested int // prospective total quantity
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Line is one product entry in the ledger. Name and UnitPrice are
// snapshotted from the catalog when the line is first created and never
// re-synced.
type Line struct {
	ProductID int64
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total is the line total, always recomputed as Quantity × UnitPrice.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Catalog provides product lookups for add-time snapshots and the stock
// guard. Implemented by *catalog.Cache.
type Catalog interface {
	Product(id int64) (erp.Product, error)
}

// Ledger is the working collection of lines for a sale in progress.
// At most one line exists per product; re-adding merges quantities.
type Ledger struct {
	catalog Catalog

	mu    sync.Mutex
	lines []Line
}

// NewLedger creates an empty Ledger that snapshots from cat.
func NewLedger(cat Catalog) *Ledger {
	return &Ledger{catalog: cat}
}

// Add puts qty units of the product into the ledger. The product must
// resolve in the catalog and pass the stock guard; on rejection the ledger
// is left untouched. When a line for the product already exists, quantities
// merge and the unit price captured at first insertion is kept.
func (l *Ledger) Add(productID int64, qty int) (Line, error) {
	if qty <= 0 {
		return Line{}, errors.Wrapf(ErrInvalidQuantity, "product %d", productID)
	}

	p, err := l.catalog.Product(productID)
	if err != nil {
		return Line{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing := 0
	idx := -1
	for i := range l.lines {
		if l.lines[i].ProductID == productID {
			existing = l.lines[i].Quantity
			idx = i
			break
		}
	}

	if err := guardStock(p, existing, qty); err != nil {
		return Line{}, err
	}

	if idx >= 0 {
		l.lines[idx].Quantity += qty
		return l.lines[idx], nil
	}

	line := Line{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  qty,
		UnitPrice: p.SalePrice,
	}
	l.lines = append(l.lines, line)
	return line, nil
}

// guardStock is the stock guard: with tracked stock, the prospective total
// quantity must not exceed it; untracked stock (nil) always passes.
func guardStock(p erp.Product, existing, requested int) error {
	if p.Stock == nil {
		return nil
	}
	prospective := existing + requested
	if prospective > *p.Stock {
		return &InsufficientStockError{
			ProductID: p.ID,
			Requested: prospective,
			Available: *p.Stock,
		}
	}
	return nil
}

// Remove deletes the line for the product. Removing an absent product is a
// no-op; it reports whether a line was removed.
func (l *Ledger) Remove(productID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.lines {
		if l.lines[i].ProductID == productID {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
			return true
		}
	}
	return false
}

// Lines returns a copy of the current lines in insertion order.
func (l *Ledger) Lines() []Line {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Line, len(l.lines))
	copy(out, l.lines)
	return out
}

// Total folds the line totals. It is never cached, so it cannot drift from
// the lines themselves.
func (l *Ledger) Total() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := decimal.Zero
	for _, line := range l.lines {
		total = total.Add(line.Total())
	}
	return total
}

// Empty reports whether the ledger has no lines.
func (l *Ledger) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines) == 0
}

// Clear empties the ledger. Called by checkout after a confirmed
// submission.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = nil
}
