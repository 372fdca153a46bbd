// Package checkout drives a sale from cart to confirmed order: local
// precondition checks, submission to the ERP, receipt construction, and
// the best-effort receipt upload.
package checkout

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pdv-labs/pos-gateway/internal/cart"
	"github.com/pdv-labs/pos-gateway/internal/erp"
	"github.com/pdv-labs/pos-gateway/internal/receipt"
)

// DefaultDescription is used when a sale is submitted without one.
const DefaultDescription = "Venda realizada"

// Local validation errors, checked before any network call. Each carries a
// distinct reason so the operator knows what to fix.
var (
	ErrNoCustomerSelected = errors.New("no client selected for the sale")
	ErrEmptyCart          = errors.New("cart has no items")
	ErrInvalidPayment     = errors.New("unknown payment method")
	ErrSubmitting         = errors.New("a submission is already in progress")
)

// State of the orchestrator.
type State int32

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Backend is the slice of the ERP client the orchestrator needs.
type Backend interface {
	CreateOrder(ctx context.Context, sub erp.SaleSubmission) (*erp.Order, error)
	UploadReceipt(ctx context.Context, orderID int64, filename string, document []byte) error
}

// Catalog provides the lookups and the post-sale stock refresh.
type Catalog interface {
	Customer(id int64) (erp.Customer, error)
	Product(id int64) (erp.Product, error)
	ReloadProducts(ctx context.Context) error
}

// Request is the operator's input for finalizing the sale.
type Request struct {
	CustomerID    int64
	Description   string
	PaymentMethod string
}

// Orchestrator finalizes sales. One submission may be in flight at a time;
// a second Submit while submitting is refused, which guards against
// duplicate order creation.
type Orchestrator struct {
	backend Backend
	catalog Catalog
	ledger  *cart.Ledger
	lg      *zap.Logger

	now   func() time.Time
	state atomic.Int32
}

// New creates an Orchestrator in the idle state.
func New(backend Backend, cat Catalog, ledger *cart.Ledger, lg *zap.Logger) *Orchestrator {
	return &Orchestrator{
		backend: backend,
		catalog: cat,
		ledger:  ledger,
		lg:      lg,
		now:     time.Now,
	}
}

// State returns the current orchestrator state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Acknowledge returns a terminal state (succeeded or failed) to idle.
// It is a no-op while submitting or already idle.
func (o *Orchestrator) Acknowledge() {
	s := o.state.Load()
	if s == int32(StateSucceeded) || s == int32(StateFailed) {
		o.state.CompareAndSwap(s, int32(StateIdle))
	}
}

// Submit finalizes the current cart as a sale. On success the cart is
// cleared, product stock figures are refreshed, and the rendered receipt
// is uploaded in the background; upload failure is a logged warning, never
// a rollback. On failure the cart and selections are left untouched for a
// retry.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*receipt.Summary, error) {
	if req.CustomerID == 0 {
		return nil, ErrNoCustomerSelected
	}
	if o.ledger.Empty() {
		return nil, ErrEmptyCart
	}

	method := req.PaymentMethod
	if method == "" {
		method = erp.PaymentCash
	}
	if !erp.ValidPaymentMethod(method) {
		return nil, errors.Wrapf(ErrInvalidPayment, "%q", req.PaymentMethod)
	}

	customer, err := o.catalog.Customer(req.CustomerID)
	if err != nil {
		return nil, err
	}

	// Only one submission at a time: refuse re-entry while submitting,
	// allow a fresh attempt from any settled state.
	prev := o.state.Load()
	if prev == int32(StateSubmitting) || !o.state.CompareAndSwap(prev, int32(StateSubmitting)) {
		return nil, ErrSubmitting
	}

	desc := req.Description
	if desc == "" {
		desc = DefaultDescription
	}

	// One ledger snapshot: the grand total is folded from the same lines
	// that become the wire items, so a concurrent add can never desync
	// valorTotal from itensVendas.
	lines := o.ledger.Lines()
	items := make([]erp.SaleItem, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		items[i] = erp.SaleItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total(),
		}
		total = total.Add(line.Total())
	}

	submittedAt := o.now().Truncate(time.Second)
	sub := erp.SaleSubmission{
		ClientID:      req.CustomerID,
		Description:   desc,
		PaymentMethod: method,
		Status:        erp.StatusFinalized,
		Total:         total,
		Date:          submittedAt.Format(erp.TimeLayout),
		Items:         items,
	}

	order, err := o.backend.CreateOrder(ctx, sub)
	if err != nil {
		o.state.Store(int32(StateFailed))
		return nil, errors.Wrap(err, "create order")
	}

	summary := o.buildSummary(order, sub, customer, lines, submittedAt)

	o.ledger.Clear()
	o.state.Store(int32(StateSucceeded))

	// Pick up the server-side stock decrement. Non-fatal: the next explicit
	// reload will catch up.
	if err := o.catalog.ReloadProducts(ctx); err != nil {
		o.lg.Warn("product refresh after sale failed", zap.Error(err))
	}

	if order.ID != 0 {
		go o.uploadReceipt(context.WithoutCancel(ctx), order.ID, *summary)
	}

	return summary, nil
}

// buildSummary assembles the receipt view, preferring server-echoed values
// and falling back to what was known locally at submission time.
func (o *Orchestrator) buildSummary(
	order *erp.Order,
	sub erp.SaleSubmission,
	customer erp.Customer,
	lines []cart.Line,
	submittedAt time.Time,
) *receipt.Summary {
	date := submittedAt
	if order.Date != "" {
		if parsed, err := time.ParseInLocation(erp.TimeLayout, order.Date, time.Local); err == nil {
			date = parsed
		}
	}

	total := sub.Total
	if !order.Total.IsZero() {
		total = order.Total
	}

	var items []receipt.Item
	if len(order.Items) > 0 {
		items = make([]receipt.Item, len(order.Items))
		for i, it := range order.Items {
			items[i] = receipt.Item{
				Quantity:  it.Quantity,
				Name:      o.itemName(it, lines),
				UnitPrice: it.UnitPrice,
				Total:     it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
			}
		}
	} else {
		items = make([]receipt.Item, len(lines))
		for i, line := range lines {
			items[i] = receipt.Item{
				Quantity:  line.Quantity,
				Name:      line.Name,
				UnitPrice: line.UnitPrice,
				Total:     line.Total(),
			}
		}
	}

	return &receipt.Summary{
		OrderID:       order.ID,
		Customer:      &customer,
		Date:          date,
		Items:         items,
		Total:         total,
		PaymentMethod: sub.PaymentMethod,
	}
}

// itemName restores the display name for a server-echoed item: the nested
// product when echoed, then the catalog, then the cart's own snapshot.
func (o *Orchestrator) itemName(it erp.OrderItem, lines []cart.Line) string {
	if it.Product != nil && it.Product.Name != "" {
		return it.Product.Name
	}
	if p, err := o.catalog.Product(it.ProductID()); err == nil {
		return p.Name
	}
	for _, line := range lines {
		if line.ProductID == it.ProductID() {
			return line.Name
		}
	}
	return fmt.Sprintf("Produto %d", it.ProductID())
}

// uploadReceipt renders the document and attaches it to the order.
// Failures are warnings: the sale itself is already confirmed.
func (o *Orchestrator) uploadReceipt(ctx context.Context, orderID int64, s receipt.Summary) {
	doc := receipt.Render(s)
	name := fmt.Sprintf("comprovante-venda-%d.html", orderID)

	if err := o.backend.UploadReceipt(ctx, orderID, name, doc); err != nil {
		o.lg.Warn("receipt upload failed",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
		return
	}
	o.lg.Info("receipt uploaded", zap.Int64("order_id", orderID))
}
