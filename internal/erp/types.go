package erp

import (
	"github.com/shopspring/decimal"
)

// Payment methods accepted by the backend.
const (
	PaymentCash       = "DINHEIRO"
	PaymentCreditCard = "CARTAO_CREDITO"
	PaymentDebitCard  = "CARTAO_DEBITO"
	PaymentPix        = "PIX"
)

// Sale statuses known to the backend. The gateway only ever submits
// StatusFinalized; the others show up in historical orders.
const (
	StatusFinalized = "FINALIZADA"
	StatusPending   = "PENDENTE"
	StatusCancelled = "CANCELADA"
)

// ValidPaymentMethod reports whether method is one of the accepted
// payment method codes.
func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentPix:
		return true
	}
	return false
}

// Product is a catalog item as served by the backend. Stock is a pointer
// because the backend omits quantidade_estoque for untracked inventory.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"nome"`
	SalePrice   decimal.Decimal `json:"precoVenda"`
	CostPrice   decimal.Decimal `json:"precoCusto"`
	Stock       *int            `json:"quantidadeEstoque,omitempty"`
	Description string          `json:"descricao,omitempty"`
}

// Customer is a registered client of the store.
type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"nome"`
	Email string `json:"email,omitempty"`
	Phone string `json:"telefone,omitempty"`
	CPF   string `json:"cpf,omitempty"`
}

// Service is a service offering from the catalog.
type Service struct {
	ID          int64           `json:"id"`
	Name        string          `json:"nome"`
	Description string          `json:"descricao,omitempty"`
	BasePrice   decimal.Decimal `json:"valorBase"`
	Duration    *int            `json:"duracao,omitempty"`
}

// SaleItem is the wire shape of one line in a sale submission. The
// denormalized product name kept by the cart is dropped here.
type SaleItem struct {
	ProductID int64           `json:"produtoId"`
	Quantity  int             `json:"quantidade"`
	UnitPrice decimal.Decimal `json:"precoUnitario"`
	Total     decimal.Decimal `json:"precoTotal"`
}

// SaleSubmission is the POST /ordens-venda request body.
type SaleSubmission struct {
	ClientID      int64           `json:"clienteId"`
	Description   string          `json:"descricao"`
	PaymentMethod string          `json:"formaPagamento"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"valorTotal"`
	Date          string          `json:"dataVenda"`
	Items         []SaleItem      `json:"itensVendas"`
}

// OrderItem is a confirmed line item echoed by the backend. The backend
// nests the full product rather than echoing a flat product ID, so both
// shapes are modelled and ProductID resolves whichever is present.
type OrderItem struct {
	ID            int64           `json:"id,omitempty"`
	Product       *Product        `json:"produto,omitempty"`
	FlatProductID int64           `json:"produtoId,omitempty"`
	Quantity      int             `json:"quantidade"`
	UnitPrice     decimal.Decimal `json:"precoUnitario"`
}

// ProductID returns the product identifier regardless of which wire shape
// the backend used.
func (i OrderItem) ProductID() int64 {
	if i.Product != nil {
		return i.Product.ID
	}
	return i.FlatProductID
}

// Order is a persisted sale as returned by the backend.
type Order struct {
	ID            int64           `json:"id"`
	Description   string          `json:"descricao,omitempty"`
	Total         decimal.Decimal `json:"valorTotal"`
	Date          string          `json:"dataVenda"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"formaPagamento"`
	Customer      *Customer       `json:"cliente,omitempty"`
	Items         []OrderItem     `json:"itensVendas,omitempty"`
}
