// Package api is the JSON surface of the gateway: catalog browsing, cart
// mutation, checkout, sales history, and the dashboard. The screens of
// the point-of-sale, as endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/pdv-labs/pos-gateway/internal/cart"
	"github.com/pdv-labs/pos-gateway/internal/catalog"
	"github.com/pdv-labs/pos-gateway/internal/checkout"
	"github.com/pdv-labs/pos-gateway/internal/dashboard"
	"github.com/pdv-labs/pos-gateway/internal/erp"
	"github.com/pdv-labs/pos-gateway/internal/receipt"
)

// Backend is the slice of the ERP client the handlers proxy directly
// (entity CRUD and history). Cart and checkout go through their own
// packages.
type Backend interface {
	CreateProduct(ctx context.Context, p erp.Product) (*erp.Product, error)
	UpdateProduct(ctx context.Context, p erp.Product) (*erp.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	CreateClient(ctx context.Context, c erp.Customer) (*erp.Customer, error)
	DeleteClient(ctx context.Context, id int64) error
	ListServices(ctx context.Context) ([]erp.Service, error)
	ListOrders(ctx context.Context, start, end string) ([]erp.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// Handler wires the domain components to HTTP routes.
type Handler struct {
	backend    Backend
	catalog    *catalog.Cache
	ledger     *cart.Ledger
	orch       *checkout.Orchestrator
	dashboards *dashboard.Service

	lastReceipt atomic.Pointer[receipt.Summary]
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	backend Backend,
	cat *catalog.Cache,
	ledger *cart.Ledger,
	orch *checkout.Orchestrator,
	dashboards *dashboard.Service,
) *Handler {
	return &Handler{
		backend:    backend,
		catalog:    cat,
		ledger:     ledger,
		orch:       orch,
		dashboards: dashboards,
	}
}

// Register attaches all API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/catalog/products", h.listProducts)
	mux.HandleFunc("GET /api/catalog/clients", h.listClients)
	mux.HandleFunc("GET /api/catalog/services", h.listServices)
	mux.HandleFunc("POST /api/catalog/reload", h.reloadCatalog)

	mux.HandleFunc("POST /api/products", h.createProduct)
	mux.HandleFunc("PUT /api/products/{id}", h.updateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", h.deleteProduct)
	mux.HandleFunc("POST /api/clients", h.createClient)
	mux.HandleFunc("DELETE /api/clients/{id}", h.deleteClient)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.removeCartItem)

	mux.HandleFunc("POST /api/checkout", h.submitCheckout)
	mux.HandleFunc("GET /api/receipt", h.getReceipt)

	mux.HandleFunc("GET /api/sales", h.listSales)
	mux.HandleFunc("DELETE /api/sales/{id}", h.deleteSale)

	mux.HandleFunc("GET /api/dashboard", h.getDashboard)
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses: local validation is
// rejected with 4xx before any upstream call, upstream rejections surface
// as 502 carrying the server's own message, and an unreachable backend is
// 503.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var stockErr *cart.InsufficientStockError
	var apiErr *erp.APIError

	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrCustomerNotFound):
		status = http.StatusNotFound
	case errors.As(err, &stockErr),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrNoCustomerSelected),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidPayment):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, checkout.ErrSubmitting):
		status = http.StatusConflict
	case errors.Is(err, erp.ErrUnreachable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse id")
	}
	return id, nil
}
