package api

import (
	"net/http"

	"github.com/shopspring/decimal"
)

// cartLineView is one ledger line in API responses.
type cartLineView struct {
	ProductID int64           `json:"produtoId"`
	Name      string          `json:"nomeProduto"`
	Quantity  int             `json:"quantidade"`
	UnitPrice decimal.Decimal `json:"precoUnitario"`
	Total     decimal.Decimal `json:"precoTotal"`
}

// cartView is the full cart in API responses.
type cartView struct {
	Items []cartLineView  `json:"itens"`
	Total decimal.Decimal `json:"valorTotal"`
}

func (h *Handler) currentCart() cartView {
	lines := h.ledger.Lines()
	view := cartView{
		Items: make([]cartLineView, len(lines)),
		Total: h.ledger.Total(),
	}
	for i, line := range lines {
		view.Items[i] = cartLineView{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total(),
		}
	}
	return view
}

// getCart serves the current ledger.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currentCart())
}

// addItemRequest is the body for POST /api/cart/items.
type addItemRequest struct {
	ProductID int64 `json:"produtoId"`
	Quantity  int   `json:"quantidade"`
}

// addCartItem adds (or merges) a line and returns the updated cart. Stock
// guard rejections come back as 422 with the available amount in the
// message; the ledger is untouched.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	if _, err := h.ledger.Add(req.ProductID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.currentCart())
}

// removeCartItem deletes the line for the product; removing an absent
// product is a no-op, matching cart semantics.
func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	h.ledger.Remove(id)
	writeJSON(w, http.StatusOK, h.currentCart())
}
