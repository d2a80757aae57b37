package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kelontongpos/internal/domain"
	"kelontongpos/internal/store"
)

// Store is the in-memory repository used for dev mode and tests. A single
// mutex guards every map, which also makes the batch stock mutations
// all-or-nothing without extra machinery.
type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	productByBarcode map[string]string
	movements        []domain.StockMovement
	transactionsByID map[string]*domain.Transaction
	customersByID    map[string]domain.Customer
	promotionsByID   map[string]domain.Promotion
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		productByBarcode: make(map[string]string),
		movements:        make([]domain.StockMovement, 0, 256),
		transactionsByID: make(map[string]*domain.Transaction),
		customersByID:    make(map[string]domain.Customer),
		promotionsByID:   make(map[string]domain.Promotion),
	}
}

// NewSeeded returns a store preloaded with a small grocery catalog and demo
// customers, used when no DATABASE_URL is configured.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seed := []domain.Product{
		{ID: uuid.NewString(), Barcode: "8991001101234", Name: "Mie Goreng Instan", Category: "grocery", CostPrice: dec("0.27"), SellingPrice: dec("0.35"), TaxRatePercent: dec("10"), CurrentStock: 120, ReorderLevel: 24},
		{ID: uuid.NewString(), Barcode: "8991001205678", Name: "Telur 10 Butir", Category: "grocery", CostPrice: dec("2.30"), SellingPrice: dec("2.65"), TaxRatePercent: dec("0"), CurrentStock: 80, ReorderLevel: 12},
		{ID: uuid.NewString(), Barcode: "8991001309012", Name: "Susu UHT 1L", Category: "dairy", CostPrice: dec("1.36"), SellingPrice: dec("1.89"), TaxRatePercent: dec("10"), CurrentStock: 60, ReorderLevel: 10},
		{ID: uuid.NewString(), Barcode: "8991001403456", Name: "Roti Tawar", Category: "bakery", CostPrice: dec("1.25"), SellingPrice: dec("1.78"), TaxRatePercent: dec("10"), CurrentStock: 40, ReorderLevel: 8},
		{ID: uuid.NewString(), Barcode: "8991001507890", Name: "Kopi Sachet", Category: "beverage", CostPrice: dec("0.17"), SellingPrice: dec("0.26"), TaxRatePercent: dec("10"), DiscountPercent: dec("5"), CurrentStock: 200, ReorderLevel: 40},
		{ID: uuid.NewString(), Barcode: "8991001601122", Name: "Gula 1kg", Category: "grocery", CostPrice: dec("1.53"), SellingPrice: dec("1.74"), TaxRatePercent: dec("0"), CurrentStock: 90, ReorderLevel: 15},
		{ID: uuid.NewString(), Barcode: "8991001705544", Name: "Air Mineral 600ml", Category: "beverage", CostPrice: dec("0.32"), SellingPrice: dec("0.39"), TaxRatePercent: dec("10"), CurrentStock: 300, ReorderLevel: 48},
		{ID: uuid.NewString(), Barcode: "8991001809988", Name: "Sabun Mandi", Category: "household", CostPrice: dec("0.50"), SellingPrice: dec("0.74"), TaxRatePercent: dec("10"), CurrentStock: 70, ReorderLevel: 10},
	}
	for _, p := range seed {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.PutProduct(p)
	}

	s.PutCustomer(domain.Customer{ID: uuid.NewString(), Code: "CUST-0001", Name: "Ibu Sari", LoyaltyPoints: 2500, CreatedAt: now})
	s.PutCustomer(domain.Customer{ID: uuid.NewString(), Code: "CUST-0002", Name: "Pak Budi", LoyaltyPoints: 120, CreatedAt: now})

	s.PutPromotion(domain.Promotion{
		ID:              uuid.NewString(),
		Name:            "Diskon belanja 5%",
		Type:            domain.PromoBulk,
		Value:           dec("5"),
		MinimumPurchase: dec("25.00"),
		Active:          true,
		CreatedAt:       now,
	})

	return s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// PutProduct inserts or replaces a product. Test and seed helper, not part of
// the Repository contract.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.products[p.ID]; ok && prev.Barcode != "" {
		delete(s.productByBarcode, prev.Barcode)
	}
	s.products[p.ID] = p
	if p.Barcode != "" {
		s.productByBarcode[p.Barcode] = p.ID
	}
}

func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customersByID[c.ID] = c
}

func (s *Store) PutPromotion(p domain.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotionsByID[p.ID] = p
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok || !p.Active {
		return nil, store.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productByBarcode[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}
	p, ok := s.products[id]
	if !ok || !p.Active {
		return nil, store.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, category string, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	result := make([]domain.Product, 0, 32)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Category == result[j].Category {
			return result[i].Name < result[j].Name
		}
		return result[i].Category < result[j].Category
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ApplySaleStock(_ context.Context, transactionID string, deltas []store.StockDelta) ([]domain.StockMovement, error) {
	return s.applyBatch(transactionID, deltas, domain.MovementSale, -1)
}

func (s *Store) ApplyReturnStock(_ context.Context, transactionID string, deltas []store.StockDelta) ([]domain.StockMovement, error) {
	return s.applyBatch(transactionID, deltas, domain.MovementReturn, +1)
}

func (s *Store) ReleaseSaleStock(_ context.Context, transactionID string, deltas []store.StockDelta) ([]domain.StockMovement, error) {
	return s.applyBatch(transactionID, deltas, domain.MovementAdjustment, +1)
}

// applyBatch validates every delta before touching anything, so a failing
// product leaves the whole batch unapplied.
func (s *Store) applyBatch(transactionID string, deltas []store.StockDelta, movementType string, sign int) ([]domain.StockMovement, error) {
	if len(deltas) == 0 {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range deltas {
		if d.Qty < 1 {
			return nil, store.ErrInvalidArgument
		}
		p, ok := s.products[d.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if sign < 0 && p.CurrentStock < d.Qty {
			return nil, &store.StockExhaustedError{ProductID: p.ID, Name: p.Name}
		}
	}

	now := time.Now().UTC()
	movements := make([]domain.StockMovement, 0, len(deltas))
	for _, d := range deltas {
		p := s.products[d.ProductID]
		p.CurrentStock += sign * d.Qty
		p.UpdatedAt = now
		s.products[d.ProductID] = p

		m := domain.StockMovement{
			ID:            uuid.NewString(),
			ProductID:     d.ProductID,
			Delta:         sign * d.Qty,
			Type:          movementType,
			TransactionID: transactionID,
			CreatedAt:     now,
		}
		s.movements = append(s.movements, m)
		movements = append(movements, m)
	}
	return movements, nil
}

func (s *Store) ListStockMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(result) < limit; i-- {
		if productID != "" && s.movements[i].ProductID != productID {
			continue
		}
		result = append(result, s.movements[i])
	}
	return result, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || tx.Number == "" || len(tx.Lines) == 0 {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrInvalidArgument
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusPending
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	stored := cloneTransaction(tx)
	s.transactionsByID[tx.ID] = &stored
	result := cloneTransaction(stored)
	return &result, nil
}

func (s *Store) SetTransactionPaymentReference(_ context.Context, id string, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	if tx.Status != domain.TxStatusPending {
		return store.ErrImmutableTransaction
	}
	tx.PaymentReference = reference
	return nil
}

func (s *Store) SetTransactionStatus(_ context.Context, id string, status string, at time.Time) (*domain.Transaction, error) {
	if status != domain.TxStatusCompleted && status != domain.TxStatusFailed {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status != domain.TxStatusPending {
		return nil, store.ErrImmutableTransaction
	}
	tx.Status = status
	if status == domain.TxStatusCompleted {
		completedAt := at.UTC()
		tx.CompletedAt = &completedAt
	}
	result := cloneTransaction(*tx)
	return &result, nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := cloneTransaction(*tx)
	return &result, nil
}

func (s *Store) ListTransactions(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Transaction, 0, limit)
	for _, tx := range s.transactionsByID {
		if !from.IsZero() && tx.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !tx.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneTransaction(*tx))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetReturnedQtyByTransaction(_ context.Context, originalTransactionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	returned := make(map[string]int)
	for _, tx := range s.transactionsByID {
		if !tx.IsReturn || tx.OriginalTransactionID != originalTransactionID {
			continue
		}
		if tx.Status != domain.TxStatusCompleted {
			continue
		}
		for _, line := range tx.Lines {
			returned[line.ProductID] += line.Qty
		}
	}
	return returned, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (s *Store) DeductLoyaltyPoints(_ context.Context, customerID string, points int64) error {
	if points < 1 {
		return store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customersByID[customerID]
	if !ok {
		return store.ErrNotFound
	}
	if c.LoyaltyPoints < points {
		return store.ErrInsufficientPoints
	}
	c.LoyaltyPoints -= points
	s.customersByID[customerID] = c
	return nil
}

func (s *Store) RefundLoyaltyPoints(_ context.Context, customerID string, points int64) error {
	if points < 1 {
		return store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customersByID[customerID]
	if !ok {
		return store.ErrNotFound
	}
	c.LoyaltyPoints += points
	s.customersByID[customerID] = c
	return nil
}

func (s *Store) ListActivePromotions(_ context.Context) ([]domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Promotion, 0, len(s.promotionsByID))
	for _, p := range s.promotionsByID {
		if !p.Active {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func cloneTransaction(tx domain.Transaction) domain.Transaction {
	lines := make([]domain.CartLine, len(tx.Lines))
	copy(lines, tx.Lines)
	tx.Lines = lines
	if tx.CompletedAt != nil {
		at := *tx.CompletedAt
		tx.CompletedAt = &at
	}
	return tx
}
