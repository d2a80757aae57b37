// Package receipt renders a transaction for the customer and the printer.
// Both renderers are pure projections of the stored record; the ephemeral
// change amount is passed in because it is never persisted.
package receipt

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kelontongpos/internal/domain"
)

// Render produces the plain-text receipt, one slice element per printed line.
func Render(tx *domain.Transaction, change decimal.Decimal) []string {
	title := "STRUK PENJUALAN"
	if tx.IsReturn {
		title = "STRUK RETUR"
	}

	lines := []string{
		"KelontongPOS",
		title,
		"========================",
		"No: " + tx.Number,
	}
	if tx.TerminalID != "" {
		lines = append(lines, "Terminal: "+tx.TerminalID)
	}
	lines = append(lines,
		"Tanggal: "+tx.CreatedAt.Format("2006-01-02 15:04:05"),
		"------------------------",
	)

	for _, item := range tx.Lines {
		lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Qty))
		amount := item.NetAmount()
		if tx.IsReturn {
			amount = amount.Neg()
		}
		lines = append(lines, fmt.Sprintf("  %s @ %s = %s",
			item.UnitPrice.StringFixed(2),
			item.TaxRatePercent.StringFixed(0)+"%",
			amount.StringFixed(2)))
	}

	lines = append(lines,
		"------------------------",
		"Subtotal : "+tx.Subtotal.StringFixed(2),
		"Diskon   : "+tx.DiscountAmount.StringFixed(2),
		"Pajak    : "+tx.TaxAmount.StringFixed(2),
		"Total    : "+tx.Total.StringFixed(2),
		"Bayar    : "+paymentLabel(tx.PaymentMethod),
	)
	if tx.PaymentMethod == domain.PaymentCash && !tx.IsReturn {
		lines = append(lines, "Kembali  : "+change.StringFixed(2))
	}
	if tx.IsReturn && tx.OriginalTransactionID != "" {
		lines = append(lines, "Ref      : "+tx.OriginalTransactionID)
	}
	lines = append(lines,
		"========================",
		"Terima kasih",
		"",
	)
	return lines
}

// Escpos wraps the rendered lines in printer control codes: initialize,
// text, then a partial cut. Output goes to the local printer bridge.
func Escpos(lines []string) []byte {
	out := []byte{0x1b, 0x40}
	for _, line := range lines {
		out = append(out, []byte(line)...)
		out = append(out, '\n')
	}
	out = append(out, 0x1d, 0x56, 0x41, 0x10)
	return out
}

// Text joins the rendered lines into one printable block.
func Text(lines []string) string {
	return strings.Join(lines, "\n")
}

func paymentLabel(method string) string {
	switch method {
	case domain.PaymentCash:
		return "Tunai"
	case domain.PaymentCard:
		return "Kartu"
	case domain.PaymentMobile:
		return "Dompet Digital"
	case domain.PaymentLoyaltyPoints:
		return "Poin Loyalti"
	default:
		return method
	}
}
