// Package sales drives a sale from a priced cart to a finalized transaction.
// Ordering rule: stock is reserved before anything irreversible happens to
// the customer's money. Card and mobile charges are authorizations, voidable
// until capture, so the engine authorizes first, reserves stock, and voids
// the authorization if the reservation loses a concurrent stock race.
package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kelontongpos/internal/cart"
	"kelontongpos/internal/domain"
	"kelontongpos/internal/inventory"
	"kelontongpos/internal/payment"
	"kelontongpos/internal/pricing"
	"kelontongpos/internal/store"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrReturnExceedsOriginal means the requested quantity, together with
	// prior returns, is more than the original sale contained.
	ErrReturnExceedsOriginal = errors.New("return exceeds original quantity")
	ErrNotReturnable         = errors.New("transaction is not returnable")
)

type Engine struct {
	repo      store.Repository
	inventory *inventory.Service
	payments  *payment.Processor
	log       *zap.Logger
}

func NewEngine(repo store.Repository, inv *inventory.Service, payments *payment.Processor, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{repo: repo, inventory: inv, payments: payments, log: log}
}

// Result is what the terminal needs after a sale: the immutable record,
// the ephemeral change for cash, and the points actually deducted.
type Result struct {
	Transaction *domain.Transaction `json:"transaction"`
	Change      decimal.Decimal     `json:"change"`
	PointsSpent int64               `json:"points_spent,omitempty"`
}

// ReturnLine identifies how much of one product comes back in a return.
type ReturnLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// CompleteSale freezes the cart, prices it, validates the payment method
// locally, persists a pending transaction, then runs payment and stock in the
// safe order for the method. On any failure the transaction is marked failed,
// every side effect already taken is compensated, and the typed error is
// returned. The caller clears the cart after success.
func (e *Engine) CompleteSale(ctx context.Context, c *cart.Cart, req payment.Request, terminalID string) (*Result, error) {
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	lines := c.Lines()
	customerID := c.CustomerID()

	promotions, err := e.repo.ListActivePromotions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	totals := pricing.Compute(lines, promotions)

	// Local validation first. A cart that cannot pay leaves no record and
	// moves no stock.
	if err := e.payments.Validate(req, totals.Total, customerID); err != nil {
		return nil, err
	}
	if req.Method == domain.PaymentLoyaltyPoints {
		if _, err := e.repo.GetCustomerByID(ctx, customerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, payment.ErrNoCustomerAttached
			}
			return nil, fmt.Errorf("load customer: %w", err)
		}
	}

	now := time.Now().UTC()
	tx := domain.Transaction{
		ID:             uuid.NewString(),
		Number:         newNumber("TXN", now),
		CustomerID:     customerID,
		TerminalID:     terminalID,
		Lines:          lines,
		Subtotal:       totals.Subtotal,
		TaxAmount:      totals.TaxAmount,
		DiscountAmount: totals.DiscountAmount,
		Total:          totals.Total,
		PaymentMethod:  req.Method,
		PromotionID:    totals.PromotionID,
		Status:         domain.TxStatusPending,
		CreatedAt:      now,
	}
	created, err := e.repo.CreateTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	reference, err := e.payments.Charge(ctx, req, totals.Total)
	if err != nil {
		e.fail(ctx, created.ID)
		return nil, err
	}
	if reference != "" {
		if refErr := e.repo.SetTransactionPaymentReference(ctx, created.ID, reference); refErr != nil {
			e.log.Warn("could not record payment reference",
				zap.String("transaction_id", created.ID), zap.Error(refErr))
		}
		created.PaymentReference = reference
	}

	if _, err := e.inventory.ApplySale(ctx, created.ID, lines); err != nil {
		// An authorized charge must not survive an unfulfillable sale.
		if voidErr := e.payments.Void(ctx, req.Method, reference); voidErr != nil {
			e.log.Error("void after stock exhaustion failed",
				zap.String("transaction_id", created.ID),
				zap.String("reference", reference),
				zap.Error(voidErr))
		}
		e.fail(ctx, created.ID)
		return nil, err
	}

	var pointsSpent int64
	if req.Method == domain.PaymentLoyaltyPoints {
		pointsSpent = payment.PointsRequired(totals.Total)
		if err := e.repo.DeductLoyaltyPoints(ctx, customerID, pointsSpent); err != nil {
			if _, relErr := e.inventory.Release(ctx, created.ID, lines); relErr != nil {
				e.log.Error("stock release after points failure failed",
					zap.String("transaction_id", created.ID), zap.Error(relErr))
			}
			e.fail(ctx, created.ID)
			if errors.Is(err, store.ErrInsufficientPoints) {
				return nil, payment.ErrInsufficientPoints
			}
			return nil, fmt.Errorf("deduct points: %w", err)
		}
	}

	completed, err := e.repo.SetTransactionStatus(ctx, created.ID, domain.TxStatusCompleted, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("finalize transaction: %w", err)
	}
	completed.PaymentReference = created.PaymentReference

	e.log.Info("sale completed",
		zap.String("number", completed.Number),
		zap.String("method", completed.PaymentMethod),
		zap.String("total", completed.Total.StringFixed(2)))

	return &Result{
		Transaction: completed,
		Change:      e.payments.Change(req, totals.Total),
		PointsSpent: pointsSpent,
	}, nil
}

// ProcessReturn creates a new return transaction against a completed sale.
// Quantities are validated net of prior returns; the original record is never
// modified. Amounts on the return are negative mirrors of what the customer
// paid for those lines, and stock flows back through return movements.
func (e *Engine) ProcessReturn(ctx context.Context, originalID string, returnLines []ReturnLine) (*domain.Transaction, error) {
	if len(returnLines) == 0 {
		return nil, store.ErrInvalidArgument
	}

	original, err := e.repo.FindTransactionByID(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if original.Status != domain.TxStatusCompleted || original.IsReturn {
		return nil, ErrNotReturnable
	}

	alreadyReturned, err := e.repo.GetReturnedQtyByTransaction(ctx, originalID)
	if err != nil {
		return nil, fmt.Errorf("prior returns: %w", err)
	}

	originalByProduct := make(map[string]domain.CartLine, len(original.Lines))
	for _, l := range original.Lines {
		originalByProduct[l.ProductID] = l
	}

	lines := make([]domain.CartLine, 0, len(returnLines))
	for _, rl := range returnLines {
		if rl.Qty < 1 {
			return nil, store.ErrInvalidArgument
		}
		origLine, ok := originalByProduct[rl.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", rl.ProductID, ErrReturnExceedsOriginal)
		}
		if rl.Qty+alreadyReturned[rl.ProductID] > origLine.Qty {
			return nil, fmt.Errorf("product %s: %w", rl.ProductID, ErrReturnExceedsOriginal)
		}
		line := origLine
		line.Qty = rl.Qty
		lines = append(lines, line)
	}

	// Refund amounts come from the original snapshots. The cart-level
	// promotion is not clawed back on partial returns.
	subtotal := decimal.Zero
	discount := decimal.Zero
	tax := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.GrossAmount())
		discount = discount.Add(l.DiscountAmount())
		tax = tax.Add(l.NetAmount().Mul(l.TaxRatePercent).Div(decimal.NewFromInt(100)))
	}
	tax = tax.RoundBank(2)
	total := subtotal.Add(tax).Sub(discount).RoundBank(2)

	now := time.Now().UTC()
	ret := domain.Transaction{
		ID:                    uuid.NewString(),
		Number:                newNumber("RET", now),
		CustomerID:            original.CustomerID,
		TerminalID:            original.TerminalID,
		Lines:                 lines,
		Subtotal:              subtotal.Neg(),
		TaxAmount:             tax.Neg(),
		DiscountAmount:        discount.Neg(),
		Total:                 total.Neg(),
		PaymentMethod:         original.PaymentMethod,
		Status:                domain.TxStatusPending,
		IsReturn:              true,
		OriginalTransactionID: original.ID,
		CreatedAt:             now,
	}
	created, err := e.repo.CreateTransaction(ctx, ret)
	if err != nil {
		return nil, fmt.Errorf("create return: %w", err)
	}

	if _, err := e.inventory.ApplyReturn(ctx, created.ID, lines); err != nil {
		e.fail(ctx, created.ID)
		return nil, err
	}

	// A sale paid in points refunds points, truncating fractional cents so a
	// series of partial returns never refunds more than was deducted.
	if original.PaymentMethod == domain.PaymentLoyaltyPoints && original.CustomerID != "" {
		points := total.Mul(decimal.NewFromInt(payment.PointsPerDollar)).IntPart()
		if points > 0 {
			if err := e.repo.RefundLoyaltyPoints(ctx, original.CustomerID, points); err != nil {
				e.log.Error("loyalty refund failed",
					zap.String("transaction_id", created.ID), zap.Error(err))
			}
		}
	}

	completed, err := e.repo.SetTransactionStatus(ctx, created.ID, domain.TxStatusCompleted, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("finalize return: %w", err)
	}

	e.log.Info("return completed",
		zap.String("number", completed.Number),
		zap.String("original", original.Number),
		zap.String("refund", completed.Total.StringFixed(2)))
	return completed, nil
}

// Find returns one transaction by id.
func (e *Engine) Find(ctx context.Context, id string) (*domain.Transaction, error) {
	return e.repo.FindTransactionByID(ctx, id)
}

// List returns transactions in a date range, newest first.
func (e *Engine) List(ctx context.Context, from, to time.Time, limit int) ([]domain.Transaction, error) {
	return e.repo.ListTransactions(ctx, from, to, limit)
}

func (e *Engine) fail(ctx context.Context, id string) {
	if _, err := e.repo.SetTransactionStatus(ctx, id, domain.TxStatusFailed, time.Now().UTC()); err != nil {
		e.log.Error("could not mark transaction failed", zap.String("transaction_id", id), zap.Error(err))
	}
}

// newNumber builds the human-facing receipt number, e.g. TXN-20260828-4F9C21.
func newNumber(prefix string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), suffix)
}
