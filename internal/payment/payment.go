package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kelontongpos/internal/domain"
)

var (
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrPaymentDeclined     = errors.New("payment declined")
	// ErrGatewayUnavailable means the gateway could not be reached in time.
	// Unlike a decline, the caller may retry with a fresh attempt.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	ErrNoCustomerAttached = errors.New("no customer attached")
	ErrUnsupportedMethod  = errors.New("unsupported payment method")
)

// PointsPerDollar is the loyalty conversion rate: 100 points = $1.00.
const PointsPerDollar = 100

// PointsRequired converts a monetary total to loyalty points, rounding up so
// the store never undercollects on fractional cents.
func PointsRequired(total decimal.Decimal) int64 {
	return total.Mul(decimal.NewFromInt(PointsPerDollar)).Ceil().IntPart()
}

// GatewayDetails is opaque to the engine; it is handed through to the
// external gateway unmodified.
type GatewayDetails struct {
	Token    string `json:"token"`
	Provider string `json:"provider,omitempty"`
}

// Request carries the method choice and its method-specific data for one sale.
type Request struct {
	Method        string          `json:"method"`
	CashTendered  decimal.Decimal `json:"cash_tendered"`
	Gateway       GatewayDetails  `json:"gateway"`
	PointsOffered int64           `json:"points_offered"`
}

// Gateway is the external card/mobile charge collaborator. Charge returns a
// gateway reference on approval; a charge is an authorization and stays
// voidable until captured.
type Gateway interface {
	Charge(ctx context.Context, amount decimal.Decimal, details GatewayDetails) (string, error)
	Void(ctx context.Context, reference string) error
}

type Processor struct {
	card          Gateway
	mobile        Gateway
	chargeTimeout time.Duration
	log           *zap.Logger
}

func NewProcessor(card Gateway, mobile Gateway, chargeTimeout time.Duration, log *zap.Logger) *Processor {
	if chargeTimeout <= 0 {
		chargeTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{card: card, mobile: mobile, chargeTimeout: chargeTimeout, log: log}
}

// Validate runs the local, side-effect-free checks for the chosen method.
// Nothing external is touched; a validation failure leaves no trace.
func (p *Processor) Validate(req Request, total decimal.Decimal, customerID string) error {
	switch req.Method {
	case domain.PaymentCash:
		if req.CashTendered.LessThan(total) {
			return ErrInsufficientPayment
		}
		return nil
	case domain.PaymentCard, domain.PaymentMobile:
		return nil
	case domain.PaymentLoyaltyPoints:
		if customerID == "" {
			return ErrNoCustomerAttached
		}
		if req.PointsOffered < PointsRequired(total) {
			return ErrInsufficientPoints
		}
		return nil
	default:
		return ErrUnsupportedMethod
	}
}

// Change is what the cashier hands back on a cash sale. Ephemeral: shown on
// the receipt, never persisted.
func (p *Processor) Change(req Request, total decimal.Decimal) decimal.Decimal {
	if req.Method != domain.PaymentCash {
		return decimal.Zero
	}
	return req.CashTendered.Sub(total)
}

// Charge authorizes the total against the card or mobile gateway under the
// configured timeout. A deadline maps to ErrGatewayUnavailable; a decline
// surfaces as ErrPaymentDeclined. Other methods charge nothing.
func (p *Processor) Charge(ctx context.Context, req Request, total decimal.Decimal) (string, error) {
	var gw Gateway
	switch req.Method {
	case domain.PaymentCard:
		gw = p.card
	case domain.PaymentMobile:
		gw = p.mobile
	default:
		return "", nil
	}
	if gw == nil {
		return "", ErrGatewayUnavailable
	}

	chargeCtx, cancel := context.WithTimeout(ctx, p.chargeTimeout)
	defer cancel()

	reference, err := gw.Charge(chargeCtx, total, req.Gateway)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			p.log.Warn("gateway charge timed out", zap.String("method", req.Method), zap.Error(err))
			return "", ErrGatewayUnavailable
		}
		if errors.Is(err, ErrPaymentDeclined) {
			return "", ErrPaymentDeclined
		}
		p.log.Warn("gateway charge failed", zap.String("method", req.Method), zap.Error(err))
		return "", ErrGatewayUnavailable
	}
	return reference, nil
}

// Void reverses an authorization after a downstream failure, so the customer
// is never charged for goods that could not be fulfilled.
func (p *Processor) Void(ctx context.Context, method string, reference string) error {
	var gw Gateway
	switch method {
	case domain.PaymentCard:
		gw = p.card
	case domain.PaymentMobile:
		gw = p.mobile
	default:
		return nil
	}
	if gw == nil || reference == "" {
		return nil
	}

	voidCtx, cancel := context.WithTimeout(ctx, p.chargeTimeout)
	defer cancel()
	return gw.Void(voidCtx, reference)
}
