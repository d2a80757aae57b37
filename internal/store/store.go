package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kelontongpos/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrImmutableTransaction = errors.New("transaction already finalized")
	ErrInsufficientPoints   = errors.New("insufficient loyalty points")
)

// StockExhaustedError reports which product lost the stock race. The whole
// batch it belonged to has been rolled back.
type StockExhaustedError struct {
	ProductID string
	Name      string
}

func (e *StockExhaustedError) Error() string {
	return fmt.Sprintf("stock exhausted for product %s (%s)", e.Name, e.ProductID)
}

// StockDelta is one product's share of a batch stock mutation, always a
// positive quantity; the movement type decides the sign.
type StockDelta struct {
	ProductID string
	Qty       int
}

type Repository interface {
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	SearchProducts(ctx context.Context, query string, category string, limit int) ([]domain.Product, error)

	// ApplySaleStock decrements stock for every delta and appends sale
	// movements, all-or-nothing. A product that would go negative fails the
	// whole batch with *StockExhaustedError.
	ApplySaleStock(ctx context.Context, transactionID string, deltas []StockDelta) ([]domain.StockMovement, error)
	ApplyReturnStock(ctx context.Context, transactionID string, deltas []StockDelta) ([]domain.StockMovement, error)
	// ReleaseSaleStock compensates a reserved sale whose payment failed,
	// restoring stock with adjustment movements.
	ReleaseSaleStock(ctx context.Context, transactionID string, deltas []StockDelta) ([]domain.StockMovement, error)
	ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// SetTransactionPaymentReference records the gateway reference on a still
	// pending transaction, before it is finalized.
	SetTransactionPaymentReference(ctx context.Context, id string, reference string) error
	// SetTransactionStatus moves a pending transaction to completed or failed.
	// Completed and failed are terminal: a second transition fails with
	// ErrImmutableTransaction.
	SetTransactionStatus(ctx context.Context, id string, status string, at time.Time) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error)
	// GetReturnedQtyByTransaction sums, per product, the quantities already
	// returned against the given original transaction.
	GetReturnedQtyByTransaction(ctx context.Context, originalTransactionID string) (map[string]int, error)

	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	// DeductLoyaltyPoints is a compare-and-set: it fails with
	// ErrInsufficientPoints when the balance is below points.
	DeductLoyaltyPoints(ctx context.Context, customerID string, points int64) error
	RefundLoyaltyPoints(ctx context.Context, customerID string, points int64) error

	ListActivePromotions(ctx context.Context) ([]domain.Promotion, error)
}
