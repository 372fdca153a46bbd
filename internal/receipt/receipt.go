// Package receipt renders a completed sale into a self-contained HTML
// document for preview, print, and archival upload. Rendering is a pure
// transformation: identical input produces byte-identical output.
package receipt

import (
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pdv-labs/pos-gateway/internal/erp"
)

// WalkInCustomer is the placeholder shown when a sale has no customer
// attached.
const WalkInCustomer = "Consumidor Final"

// Item is one rendered line of the receipt.
type Item struct {
	Quantity  int
	Name      string
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// Summary is the confirmed-or-reconstructed view of a completed sale.
// It exists only for rendering and is never persisted by the gateway.
type Summary struct {
	OrderID       int64 // 0 when the server did not assign one
	Customer      *erp.Customer
	Date          time.Time
	Items         []Item
	Total         decimal.Decimal
	PaymentMethod string
}

// FormatBRL formats a monetary value as Brazilian Real: two decimal
// places, comma decimal separator, dot thousands separator.
// 1234.5 → "R$ 1.234,50".
func FormatBRL(v decimal.Decimal) string {
	s := v.StringFixed(2)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := "R$ " + b.String() + "," + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// formatDate renders the sale timestamp for local display.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("02/01/2006 15:04")
}

// Render produces the receipt document. All styling is inline; the output
// depends only on the summary.
func Render(s Summary) []byte {
	var b strings.Builder

	b.WriteString(`<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>Comprovante de Venda</title>
<style>
body { font-family: Arial, Helvetica, sans-serif; color: #222; padding: 18px; }
h2 { margin-bottom: 6px; }
table { width: 100%; border-collapse: collapse; margin-top: 12px; }
th, td { border-bottom: 1px solid #eee; }
th { text-align: left; padding: 8px; background: #f8f8f8; }
td { padding: 6px 8px; }
tfoot td { padding: 8px; font-weight: 700; border-top: 2px solid #ddd; }
</style>
</head>
<body>
<h2>Comprovante de Venda</h2>
`)

	b.WriteString("<div><strong>Cliente:</strong> ")
	if s.Customer != nil {
		b.WriteString(html.EscapeString(s.Customer.Name))
		if s.Customer.Email != "" {
			b.WriteString(" &bull; " + html.EscapeString(s.Customer.Email))
		}
		if s.Customer.Phone != "" {
			b.WriteString(" &bull; " + html.EscapeString(s.Customer.Phone))
		}
	} else {
		b.WriteString(WalkInCustomer)
	}
	b.WriteString("</div>\n")

	b.WriteString("<div><strong>Data:</strong> " + formatDate(s.Date) + "</div>\n")

	method := s.PaymentMethod
	if method == "" {
		method = "—"
	}
	b.WriteString("<div><strong>Forma Pagamento:</strong> " + html.EscapeString(method) + "</div>\n")

	b.WriteString(`<table>
<thead>
<tr>
<th style="width:10%;">Qtd</th>
<th>Produto</th>
<th style="width:18%;text-align:right;">Valor unit.</th>
<th style="width:18%;text-align:right;">Valor total</th>
</tr>
</thead>
<tbody>
`)

	for _, item := range s.Items {
		b.WriteString("<tr>")
		b.WriteString(`<td style="text-align:center;">` + strconv.Itoa(item.Quantity) + "</td>")
		b.WriteString("<td>" + html.EscapeString(item.Name) + "</td>")
		b.WriteString(`<td style="text-align:right;">` + FormatBRL(item.UnitPrice) + "</td>")
		b.WriteString(`<td style="text-align:right;">` + FormatBRL(item.Total) + "</td>")
		b.WriteString("</tr>\n")
	}

	b.WriteString(`</tbody>
<tfoot>
<tr>
<td></td>
<td style="text-align:right;">TOTAL</td>
<td></td>
<td style="text-align:right;">` + FormatBRL(s.Total) + `</td>
</tr>
</tfoot>
</table>
</body>
</html>
`)

	return []byte(b.String())
}
