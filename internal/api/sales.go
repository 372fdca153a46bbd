package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pdv-labs/pos-gateway/internal/erp"
	"github.com/pdv-labs/pos-gateway/internal/receipt"
)

// saleView is one row of the sales history.
type saleView struct {
	ID            int64           `json:"id"`
	ClientID      int64           `json:"clienteId,omitempty"`
	ClientName    string          `json:"nomeCliente"`
	PaymentMethod string          `json:"formaPagamento"`
	Status        string          `json:"status"`
	Date          string          `json:"dataVenda"`
	Total         decimal.Decimal `json:"valorTotal"`
	Items         []erp.OrderItem `json:"itensVendas,omitempty"`
}

// listSales serves historical orders, newest first. An optional ?q= term
// filters by order id, client name, or payment method, case-insensitively.
func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := h.backend.ListOrders(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]saleView, 0, len(orders))
	for _, o := range orders {
		views = append(views, saleView{
			ID:            o.ID,
			ClientID:      clientID(o),
			ClientName:    h.clientName(o),
			PaymentMethod: o.PaymentMethod,
			Status:        o.Status,
			Date:          o.Date,
			Total:         o.Total,
			Items:         o.Items,
		})
	}

	sort.Slice(views, func(i, j int) bool { return views[i].ID > views[j].ID })

	if term := strings.ToLower(strings.TrimSpace(q.Get("q"))); term != "" {
		filtered := views[:0]
		for _, v := range views {
			if strings.Contains(strconv.FormatInt(v.ID, 10), term) ||
				strings.Contains(strings.ToLower(v.ClientName), term) ||
				strings.Contains(strings.ToLower(v.PaymentMethod), term) {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}

	writeJSON(w, http.StatusOK, views)
}

func clientID(o erp.Order) int64 {
	if o.Customer != nil {
		return o.Customer.ID
	}
	return 0
}

// clientName resolves a display name for the order's customer: the echoed
// entity first, then the catalog snapshot, then the walk-in placeholder.
func (h *Handler) clientName(o erp.Order) string {
	if o.Customer != nil && o.Customer.Name != "" {
		return o.Customer.Name
	}
	if o.Customer != nil {
		if c, err := h.catalog.Customer(o.Customer.ID); err == nil {
			return c.Name
		}
	}
	return receipt.WalkInCustomer
}

// deleteSale removes an order from the history.
func (h *Handler) deleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	if err := h.backend.DeleteOrder(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getDashboard serves entity counts and month-to-date totals.
func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dashboards.Overview(r.Context()))
}
