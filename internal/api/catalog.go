package api

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/pdv-labs/pos-gateway/internal/erp"
)

// listProducts serves the cached product snapshot.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products := h.catalog.Products()
	if products == nil {
		products = []erp.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// listClients serves the cached customer snapshot.
func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	customers := h.catalog.Customers()
	if customers == nil {
		customers = []erp.Customer{}
	}
	writeJSON(w, http.StatusOK, customers)
}

// listServices proxies the service catalog; services are not part of the
// cart flow and are not cached.
func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.backend.ListServices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

// reloadResult reports a catalog reload. Warning is set when one of the
// fetches failed and its snapshot degraded to empty.
type reloadResult struct {
	Products int    `json:"products"`
	Clients  int    `json:"clients"`
	Warning  string `json:"warning,omitempty"`
}

// reloadCatalog re-fetches both snapshots. A partial failure degrades the
// affected snapshot and is reported as a warning, not as a failed request.
func (h *Handler) reloadCatalog(w http.ResponseWriter, r *http.Request) {
	res := reloadResult{}
	if err := h.catalog.Load(r.Context()); err != nil {
		zctx.From(r.Context()).Warn("catalog reload degraded", zap.Error(err))
		res.Warning = err.Error()
	}
	res.Products = len(h.catalog.Products())
	res.Clients = len(h.catalog.Customers())
	writeJSON(w, http.StatusOK, res)
}

// createProduct registers a product and refreshes the snapshot.
func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p erp.Product
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	created, err := h.backend.CreateProduct(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.refreshProducts(r)
	writeJSON(w, http.StatusCreated, created)
}

// updateProduct saves a product; the ERP client negotiates the verb the
// backend accepts.
func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	var p erp.Product
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	p.ID = id

	updated, err := h.backend.UpdateProduct(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.refreshProducts(r)
	writeJSON(w, http.StatusOK, updated)
}

// deleteProduct removes a product and refreshes the snapshot.
func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	if err := h.backend.DeleteProduct(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.refreshProducts(r)
	w.WriteHeader(http.StatusNoContent)
}

// createClient registers a customer and refreshes the snapshot.
func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var c erp.Customer
	if err := decodeBody(r, &c); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	created, err := h.backend.CreateClient(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.refreshCustomers(r)
	writeJSON(w, http.StatusCreated, created)
}

// deleteClient removes a customer and refreshes the snapshot.
func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	if err := h.backend.DeleteClient(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.refreshCustomers(r)
	w.WriteHeader(http.StatusNoContent)
}

// refreshProducts re-fetches the product snapshot after a mutating proxy
// call. Best-effort: the stale snapshot stays serviceable on failure.
func (h *Handler) refreshProducts(r *http.Request) {
	if err := h.catalog.ReloadProducts(r.Context()); err != nil {
		zctx.From(r.Context()).Warn("product snapshot refresh failed", zap.Error(err))
	}
}

func (h *Handler) refreshCustomers(r *http.Request) {
	if err := h.catalog.ReloadCustomers(r.Context()); err != nil {
		zctx.From(r.Context()).Warn("customer snapshot refresh failed", zap.Error(err))
	}
}
