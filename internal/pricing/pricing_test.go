package pricing

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"kelontongpos/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func line(productID string, qty int, unitPrice, taxRate, discount string) domain.CartLine {
	return domain.CartLine{
		ProductID:       productID,
		Name:            productID,
		Qty:             qty,
		UnitPrice:       dec(unitPrice),
		TaxRatePercent:  dec(taxRate),
		DiscountPercent: dec(discount),
	}
}

func TestComputeSingleLineWithTax(t *testing.T) {
	totals := Compute([]domain.CartLine{line("p1", 2, "3.99", "10", "0")}, nil)

	if !totals.Subtotal.Equal(dec("7.98")) {
		t.Fatalf("subtotal = %s, want 7.98", totals.Subtotal)
	}
	if !totals.TaxAmount.Equal(dec("0.80")) {
		t.Fatalf("tax = %s, want 0.80", totals.TaxAmount)
	}
	if !totals.DiscountAmount.IsZero() {
		t.Fatalf("discount = %s, want 0", totals.DiscountAmount)
	}
	if !totals.Total.Equal(dec("8.78")) {
		t.Fatalf("total = %s, want 8.78", totals.Total)
	}
}

func TestComputeTaxUsesBankersRounding(t *testing.T) {
	// 1.25 at 10% is 0.125, which rounds half-to-even down to 0.12.
	totals := Compute([]domain.CartLine{line("p1", 1, "1.25", "10", "0")}, nil)
	if !totals.TaxAmount.Equal(dec("0.12")) {
		t.Fatalf("tax = %s, want 0.12", totals.TaxAmount)
	}

	// 1.75 at 10% is 0.175, which rounds half-to-even up to 0.18.
	totals = Compute([]domain.CartLine{line("p1", 1, "1.75", "10", "0")}, nil)
	if !totals.TaxAmount.Equal(dec("0.18")) {
		t.Fatalf("tax = %s, want 0.18", totals.TaxAmount)
	}
}

func TestComputeLineDiscountReducesTaxBase(t *testing.T) {
	// 10.00 with 20% line discount leaves 8.00 taxable at 10%.
	totals := Compute([]domain.CartLine{line("p1", 1, "10.00", "10", "20")}, nil)

	if !totals.Subtotal.Equal(dec("10.00")) {
		t.Fatalf("subtotal = %s, want gross 10.00", totals.Subtotal)
	}
	if !totals.DiscountAmount.Equal(dec("2.00")) {
		t.Fatalf("discount = %s, want 2.00", totals.DiscountAmount)
	}
	if !totals.TaxAmount.Equal(dec("0.80")) {
		t.Fatalf("tax = %s, want 0.80", totals.TaxAmount)
	}
	if !totals.Total.Equal(dec("8.80")) {
		t.Fatalf("total = %s, want 8.80", totals.Total)
	}
}

func TestComputeEmptyCart(t *testing.T) {
	totals := Compute(nil, nil)
	if !totals.Subtotal.IsZero() || !totals.TaxAmount.IsZero() || !totals.DiscountAmount.IsZero() || !totals.Total.IsZero() {
		t.Fatalf("empty cart must price to all zeros, got %+v", totals)
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	lines := []domain.CartLine{
		line("p1", 3, "3.99", "10", "5"),
		line("p2", 1, "12.50", "0", "0"),
	}
	first := Compute(lines, nil)
	second := Compute(lines, nil)

	if !first.Total.Equal(second.Total) || !first.TaxAmount.Equal(second.TaxAmount) {
		t.Fatalf("repeated pricing differs: %+v vs %+v", first, second)
	}
}

func promo(id string, kind string, value, minimum string, created time.Time) domain.Promotion {
	return domain.Promotion{
		ID:              id,
		Name:            id,
		Type:            kind,
		Value:           dec(value),
		MinimumPurchase: dec(minimum),
		Active:          true,
		CreatedAt:       created,
	}
}

func TestBestPromotionWins(t *testing.T) {
	now := time.Now()
	lines := []domain.CartLine{line("p1", 1, "100.00", "0", "0")}
	promotions := []domain.Promotion{
		promo("five-pct", domain.PromoPercentage, "5", "0", now),
		promo("ten-flat", domain.PromoFixedAmount, "10.00", "0", now),
	}

	totals := Compute(lines, promotions)
	if totals.PromotionID != "ten-flat" {
		t.Fatalf("promotion = %s, want ten-flat", totals.PromotionID)
	}
	if !totals.PromotionDiscount.Equal(dec("10.00")) {
		t.Fatalf("promotion discount = %s, want 10.00", totals.PromotionDiscount)
	}
	if !totals.Total.Equal(dec("90.00")) {
		t.Fatalf("total = %s, want 90.00", totals.Total)
	}
}

func TestPromotionTieBreaksOnCreation(t *testing.T) {
	now := time.Now()
	lines := []domain.CartLine{line("p1", 1, "100.00", "0", "0")}
	promotions := []domain.Promotion{
		promo("younger", domain.PromoPercentage, "10", "0", now),
		promo("older", domain.PromoFixedAmount, "10.00", "0", now.Add(-time.Hour)),
	}

	totals := Compute(lines, promotions)
	if totals.PromotionID != "older" {
		t.Fatalf("promotion = %s, want the earlier-created older", totals.PromotionID)
	}
}

func TestPromotionMinimumPurchaseGate(t *testing.T) {
	lines := []domain.CartLine{line("p1", 1, "20.00", "0", "0")}
	promotions := []domain.Promotion{
		promo("bulk", domain.PromoBulk, "5", "25.00", time.Now()),
	}

	totals := Compute(lines, promotions)
	if totals.PromotionID != "" {
		t.Fatalf("promotion applied below minimum purchase: %s", totals.PromotionID)
	}
}

func TestBogoDiscountsFloorOfHalfQuantity(t *testing.T) {
	lines := []domain.CartLine{line("p1", 5, "2.00", "0", "0")}
	promotions := []domain.Promotion{
		{ID: "bogo", Name: "bogo", Type: domain.PromoBOGO, ApplicableProducts: []string{"p1"}, Active: true, CreatedAt: time.Now()},
	}

	totals := Compute(lines, promotions)
	// 5 units pays for 3: two free units at 2.00.
	if !totals.PromotionDiscount.Equal(dec("4.00")) {
		t.Fatalf("bogo discount = %s, want 4.00", totals.PromotionDiscount)
	}
}

func TestFixedPromotionCappedAtBase(t *testing.T) {
	lines := []domain.CartLine{line("p1", 1, "4.00", "10", "0")}
	promotions := []domain.Promotion{
		promo("huge", domain.PromoFixedAmount, "50.00", "0", time.Now()),
	}

	totals := Compute(lines, promotions)
	if !totals.PromotionDiscount.Equal(dec("4.00")) {
		t.Fatalf("promotion discount = %s, want capped 4.00", totals.PromotionDiscount)
	}
	if totals.Total.IsNegative() {
		t.Fatalf("total went negative: %s", totals.Total)
	}
}

func TestProperty_TotalsAlwaysConsistent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("total is never negative and subtotal matches the lines", prop.ForAll(
		func(qtys []int, cents []int, taxPick int) bool {
			if len(qtys) == 0 || len(cents) == 0 {
				return true
			}
			lines := make([]domain.CartLine, 0, len(qtys))
			for i, q := range qtys {
				price := decimal.NewFromInt(int64(cents[i%len(cents)])).Div(decimal.NewFromInt(100))
				lines = append(lines, domain.CartLine{
					ProductID:      "p" + string(rune('a'+i%26)),
					Qty:            q,
					UnitPrice:      price,
					TaxRatePercent: decimal.NewFromInt(int64(taxPick)),
				})
			}

			totals := Compute(lines, nil)
			expected := decimal.Zero
			for _, l := range lines {
				expected = expected.Add(l.GrossAmount())
			}
			return !totals.Total.IsNegative() && totals.Subtotal.Equal(expected)
		},
		gen.SliceOfN(4, gen.IntRange(1, 20)),
		gen.SliceOfN(4, gen.IntRange(1, 100000)),
		gen.IntRange(0, 25),
	))

	properties.TestingRun(t)
}
