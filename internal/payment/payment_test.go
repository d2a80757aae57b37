package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kelontongpos/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPointsRequiredRoundsUp(t *testing.T) {
	cases := []struct {
		total string
		want  int64
	}{
		{"8.78", 878},
		{"8.781", 879},
		{"0.01", 1},
		{"0", 0},
		{"10.00", 1000},
	}
	for _, tc := range cases {
		if got := PointsRequired(dec(tc.total)); got != tc.want {
			t.Fatalf("PointsRequired(%s) = %d, want %d", tc.total, got, tc.want)
		}
	}
}

func TestValidateBranches(t *testing.T) {
	p := NewProcessor(nil, nil, time.Second, nil)
	total := dec("8.78")

	if err := p.Validate(Request{Method: domain.PaymentCash, CashTendered: dec("10.00")}, total, ""); err != nil {
		t.Fatalf("cash ok: %v", err)
	}
	if err := p.Validate(Request{Method: domain.PaymentCash, CashTendered: dec("5.00")}, total, ""); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("short cash: got %v, want ErrInsufficientPayment", err)
	}
	if err := p.Validate(Request{Method: domain.PaymentLoyaltyPoints, PointsOffered: 900}, total, ""); !errors.Is(err, ErrNoCustomerAttached) {
		t.Fatalf("loyalty without customer: got %v, want ErrNoCustomerAttached", err)
	}
	if err := p.Validate(Request{Method: domain.PaymentLoyaltyPoints, PointsOffered: 800}, total, "cust-1"); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("short points: got %v, want ErrInsufficientPoints", err)
	}
	if err := p.Validate(Request{Method: domain.PaymentLoyaltyPoints, PointsOffered: 878}, total, "cust-1"); err != nil {
		t.Fatalf("exact points: %v", err)
	}
	if err := p.Validate(Request{Method: "cheque"}, total, ""); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("unknown method: got %v, want ErrUnsupportedMethod", err)
	}
}

func TestChangeOnlyForCash(t *testing.T) {
	p := NewProcessor(nil, nil, time.Second, nil)
	total := dec("8.78")

	change := p.Change(Request{Method: domain.PaymentCash, CashTendered: dec("10.00")}, total)
	if !change.Equal(dec("1.22")) {
		t.Fatalf("change = %s, want 1.22", change)
	}
	if !p.Change(Request{Method: domain.PaymentCard}, total).IsZero() {
		t.Fatalf("card change must be zero")
	}
}

func TestSimulatedGatewayDeclinesMarkedTokens(t *testing.T) {
	g := NewSimulatedGateway("card")
	ctx := context.Background()

	if _, err := g.Charge(ctx, dec("1.00"), GatewayDetails{Token: "DECLINE-42"}); !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("err = %v, want ErrPaymentDeclined", err)
	}
	ref, err := g.Charge(ctx, dec("1.00"), GatewayDetails{Token: "tok-42"})
	if err != nil || ref == "" {
		t.Fatalf("charge: ref=%q err=%v", ref, err)
	}
	if err := g.Void(ctx, ref); err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided := g.Voided(); len(voided) != 1 || voided[0] != ref {
		t.Fatalf("voided = %v, want [%s]", voided, ref)
	}
}

func TestChargeTimeoutMapsToUnavailable(t *testing.T) {
	p := NewProcessor(blockingGateway{}, nil, 10*time.Millisecond, nil)

	_, err := p.Charge(context.Background(), Request{Method: domain.PaymentCard, Gateway: GatewayDetails{Token: "tok"}}, dec("1.00"))
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
}

type blockingGateway struct{}

func (blockingGateway) Charge(ctx context.Context, _ decimal.Decimal, _ GatewayDetails) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingGateway) Void(_ context.Context, _ string) error { return nil }
