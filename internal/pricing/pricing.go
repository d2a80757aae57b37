// Package pricing computes sale totals from cart lines and active promotions.
// Everything here is a pure function of its inputs: calling it twice on the
// same cart state yields identical decimals.
package pricing

import (
	"github.com/shopspring/decimal"

	"kelontongpos/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type Totals struct {
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	Total             decimal.Decimal `json:"total"`
	PromotionID       string          `json:"promotion_id,omitempty"`
	PromotionDiscount decimal.Decimal `json:"promotion_discount"`
}

// Compute prices the given lines. Subtotal is the gross sum of unit price
// times quantity; DiscountAmount aggregates line-level discounts and the
// single winning cart-level promotion; tax is computed per line at that
// product's own rate on the discounted line amount, summed, then
// banker's-rounded to 2 decimals. Total never goes below zero.
func Compute(lines []domain.CartLine, promotions []domain.Promotion) Totals {
	subtotal := decimal.Zero
	lineDiscounts := decimal.Zero
	tax := decimal.Zero

	for _, line := range lines {
		subtotal = subtotal.Add(line.GrossAmount())
		lineDiscounts = lineDiscounts.Add(line.DiscountAmount())
		tax = tax.Add(line.NetAmount().Mul(line.TaxRatePercent).Div(hundred))
	}
	tax = tax.RoundBank(2)

	promoID, promoDiscount := bestPromotion(lines, subtotal.Sub(lineDiscounts), promotions)

	totals := Totals{
		Subtotal:          subtotal,
		TaxAmount:         tax,
		DiscountAmount:    lineDiscounts.Add(promoDiscount),
		PromotionID:       promoID,
		PromotionDiscount: promoDiscount,
	}

	total := subtotal.Add(tax).Sub(totals.DiscountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	totals.Total = total.RoundBank(2)
	return totals
}

// bestPromotion evaluates every active promotion against the final line
// quantities and picks the one with the largest customer benefit. Ties go to
// the promotion created first. Base is the subtotal net of line discounts.
func bestPromotion(lines []domain.CartLine, base decimal.Decimal, promotions []domain.Promotion) (string, decimal.Decimal) {
	bestID := ""
	best := decimal.Zero
	var bestCreated int64

	for _, promo := range promotions {
		if !promo.Active {
			continue
		}
		benefit := promotionBenefit(lines, base, promo)
		if !benefit.IsPositive() {
			continue
		}
		if benefit.GreaterThan(base) {
			benefit = base
		}
		created := promo.CreatedAt.UnixNano()
		switch {
		case benefit.GreaterThan(best):
		case benefit.Equal(best) && bestID != "" && created < bestCreated:
		default:
			continue
		}
		bestID = promo.ID
		best = benefit
		bestCreated = created
	}

	return bestID, best
}

func promotionBenefit(lines []domain.CartLine, base decimal.Decimal, promo domain.Promotion) decimal.Decimal {
	if base.LessThan(promo.MinimumPurchase) {
		return decimal.Zero
	}

	switch promo.Type {
	case domain.PromoPercentage, domain.PromoBulk:
		return base.Mul(promo.Value).Div(hundred).RoundBank(2)
	case domain.PromoFixedAmount:
		return decimal.Min(promo.Value, base)
	case domain.PromoBOGO:
		benefit := decimal.Zero
		for _, line := range lines {
			if !promoApplies(promo, line.ProductID) {
				continue
			}
			free := int64(line.Qty / 2)
			if free > 0 {
				benefit = benefit.Add(line.UnitPrice.Mul(decimal.NewFromInt(free)))
			}
		}
		return benefit.RoundBank(2)
	default:
		return decimal.Zero
	}
}

func promoApplies(promo domain.Promotion, productID string) bool {
	if len(promo.ApplicableProducts) == 0 {
		return true
	}
	for _, id := range promo.ApplicableProducts {
		if id == productID {
			return true
		}
	}
	return false
}
