package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog record a barcode or search resolves to. Stock is
// cached here for fast reads; the stock_movements ledger is the source of
// truth and the two are kept consistent by the inventory service.
type Product struct {
	ID              string          `json:"id"`
	Barcode         string          `json:"barcode,omitempty"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	CostPrice       decimal.Decimal `json:"cost_price"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
	TaxRatePercent  decimal.Decimal `json:"tax_rate_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	CurrentStock    int             `json:"current_stock"`
	ReorderLevel    int             `json:"reorder_level"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Customer struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	LoyaltyPoints int64     `json:"loyalty_points"`
	CreatedAt     time.Time `json:"created_at"`
}

// CartLine is one product entry in a cart. Price, tax rate and discount are
// snapshots taken when the item was added, so a mid-transaction catalog price
// change never affects an open cart.
type CartLine struct {
	ProductID       string          `json:"product_id"`
	Barcode         string          `json:"barcode,omitempty"`
	Name            string          `json:"name"`
	Qty             int             `json:"qty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TaxRatePercent  decimal.Decimal `json:"tax_rate_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// GrossAmount is unit price times quantity, before any discount.
func (l CartLine) GrossAmount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// DiscountAmount is the line-level discount, banker's-rounded to 2 decimals.
func (l CartLine) DiscountAmount() decimal.Decimal {
	if l.DiscountPercent.IsZero() {
		return decimal.Zero
	}
	return l.GrossAmount().Mul(l.DiscountPercent).Div(decimal.NewFromInt(100)).RoundBank(2)
}

// NetAmount is the line total shown on the receipt.
func (l CartLine) NetAmount() decimal.Decimal {
	return l.GrossAmount().Sub(l.DiscountAmount())
}

const (
	PaymentCash          = "cash"
	PaymentCard          = "card"
	PaymentMobile        = "mobile"
	PaymentLoyaltyPoints = "loyalty_points"
)

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Transaction is the record of one sale attempt. It is created pending when
// payment starts and never changes again once it reaches completed; a return
// is a new transaction with IsReturn set and a back-reference, never an edit.
type Transaction struct {
	ID                    string          `json:"id"`
	Number                string          `json:"number"`
	CustomerID            string          `json:"customer_id,omitempty"`
	TerminalID            string          `json:"terminal_id,omitempty"`
	Lines                 []CartLine      `json:"lines"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	TaxAmount             decimal.Decimal `json:"tax_amount"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	Total                 decimal.Decimal `json:"total"`
	PaymentMethod         string          `json:"payment_method"`
	PaymentReference      string          `json:"payment_reference,omitempty"`
	PromotionID           string          `json:"promotion_id,omitempty"`
	Status                string          `json:"status"`
	IsReturn              bool            `json:"is_return"`
	OriginalTransactionID string          `json:"original_transaction_id,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
}

const (
	MovementSale       = "sale"
	MovementReturn     = "return"
	MovementAdjustment = "adjustment"
	MovementWaste      = "waste"
	MovementPurchase   = "purchase"
)

// StockMovement is one entry in the append-only stock ledger. Delta is signed:
// negative for sales, positive for returns and purchases.
type StockMovement struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	Delta         int       `json:"delta"`
	Type          string    `json:"type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	PromoPercentage  = "percentage"
	PromoFixedAmount = "fixed_amount"
	PromoBOGO        = "bogo"
	PromoBulk        = "bulk_discount"
)

// Promotion is a cart-level discount rule. At most one promotion applies per
// sale; when several qualify the largest customer benefit wins, ties broken
// by creation order.
type Promotion struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Type               string          `json:"type"`
	Value              decimal.Decimal `json:"value"`
	MinimumPurchase    decimal.Decimal `json:"minimum_purchase"`
	ApplicableProducts []string        `json:"applicable_products,omitempty"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"created_at"`
}
