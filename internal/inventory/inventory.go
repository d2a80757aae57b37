// Package inventory mediates every stock mutation through the movement
// ledger, so the cached current_stock on products and the ledger running sum
// never drift apart.
package inventory

import (
	"context"

	"go.uber.org/zap"

	"kelontongpos/internal/domain"
	"kelontongpos/internal/store"
)

type Service struct {
	repo store.Repository
	log  *zap.Logger
}

func New(repo store.Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log}
}

// deltasFromLines aggregates cart lines into one positive delta per distinct
// product. Lines for a product should already be merged by the cart, but a
// frozen return slice may repeat products.
func deltasFromLines(lines []domain.CartLine) []store.StockDelta {
	idx := make(map[string]int, len(lines))
	deltas := make([]store.StockDelta, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.ProductID]; ok {
			deltas[i].Qty += l.Qty
			continue
		}
		idx[l.ProductID] = len(deltas)
		deltas = append(deltas, store.StockDelta{ProductID: l.ProductID, Qty: l.Qty})
	}
	return deltas
}

// ApplySale reserves stock for a sale, all products or none. The store layer
// does the compare-and-set; a failed batch surfaces *store.StockExhaustedError
// with no partial decrement.
func (s *Service) ApplySale(ctx context.Context, transactionID string, lines []domain.CartLine) ([]domain.StockMovement, error) {
	movements, err := s.repo.ApplySaleStock(ctx, transactionID, deltasFromLines(lines))
	if err != nil {
		return nil, err
	}
	s.log.Debug("stock reserved",
		zap.String("transaction_id", transactionID),
		zap.Int("products", len(movements)))
	return movements, nil
}

// ApplyReturn restocks returned goods and appends return movements.
func (s *Service) ApplyReturn(ctx context.Context, transactionID string, lines []domain.CartLine) ([]domain.StockMovement, error) {
	return s.repo.ApplyReturnStock(ctx, transactionID, deltasFromLines(lines))
}

// Release compensates a reservation whose payment fell through afterwards.
// Recorded as adjustment movements so the ledger shows both sides.
func (s *Service) Release(ctx context.Context, transactionID string, lines []domain.CartLine) ([]domain.StockMovement, error) {
	movements, err := s.repo.ReleaseSaleStock(ctx, transactionID, deltasFromLines(lines))
	if err != nil {
		s.log.Error("stock release failed, ledger needs manual adjustment",
			zap.String("transaction_id", transactionID), zap.Error(err))
		return nil, err
	}
	return movements, nil
}

// Movements lists the ledger for one product, newest first.
func (s *Service) Movements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListStockMovements(ctx, productID, limit)
}
