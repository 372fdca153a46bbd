package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/pdv-labs/pos-gateway/internal/checkout"
	"github.com/pdv-labs/pos-gateway/internal/erp"
	"github.com/pdv-labs/pos-gateway/internal/receipt"
)

// checkoutRequest is the body for POST /api/checkout.
type checkoutRequest struct {
	ClientID      int64  `json:"clienteId"`
	Description   string `json:"descricao"`
	PaymentMethod string `json:"formaPagamento"`
}

// receiptItemView is one line of the receipt summary response.
type receiptItemView struct {
	Quantity  int             `json:"quantidade"`
	Name      string          `json:"nomeProduto"`
	UnitPrice decimal.Decimal `json:"precoUnitario"`
	Total     decimal.Decimal `json:"precoTotal"`
}

// receiptView is the confirmed sale returned to the terminal.
type receiptView struct {
	OrderID       int64             `json:"id,omitempty"`
	Client        *erp.Customer     `json:"cliente,omitempty"`
	Date          string            `json:"dataVenda"`
	PaymentMethod string            `json:"formaPagamento"`
	Items         []receiptItemView `json:"itens"`
	Total         decimal.Decimal   `json:"valorTotal"`
	TotalDisplay  string            `json:"valorTotalFormatado"`
}

func summaryView(s *receipt.Summary) receiptView {
	items := make([]receiptItemView, len(s.Items))
	for i, it := range s.Items {
		items[i] = receiptItemView{
			Quantity:  it.Quantity,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Total:     it.Total,
		}
	}
	return receiptView{
		OrderID:       s.OrderID,
		Client:        s.Customer,
		Date:          s.Date.Format(erp.TimeLayout),
		PaymentMethod: s.PaymentMethod,
		Items:         items,
		Total:         s.Total,
		TotalDisplay:  receipt.FormatBRL(s.Total),
	}
}

// submitCheckout finalizes the current cart as a sale. The orchestrator's
// terminal state is acknowledged immediately so the terminal can start the
// next sale without an extra round trip.
func (h *Handler) submitCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	summary, err := h.orch.Submit(r.Context(), checkout.Request{
		CustomerID:    req.ClientID,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.orch.Acknowledge()
		writeError(w, r, err)
		return
	}

	h.lastReceipt.Store(summary)
	h.orch.Acknowledge()
	writeJSON(w, http.StatusCreated, summaryView(summary))
}

// getReceipt serves the rendered document for the most recent sale of this
// terminal session, for preview, print, or download.
func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	summary := h.lastReceipt.Load()
	if summary == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no completed sale in this session"})
		return
	}

	doc := receipt.Render(*summary)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Last-Modified", summary.Date.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
