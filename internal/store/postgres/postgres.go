package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"kelontongpos/internal/domain"
	"kelontongpos/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies any pending schema migrations from the embedded set.
func (s *Store) Migrate() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const productColumns = `id, COALESCE(barcode, ''), name, category, cost_price, selling_price,
	tax_rate_percent, discount_percent, current_stock, reorder_level, active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Barcode, &p.Name, &p.Category, &p.CostPrice, &p.SellingPrice,
		&p.TaxRatePercent, &p.DiscountPercent, &p.CurrentStock, &p.ReorderLevel, &p.Active,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND active = true
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE barcode = $1 AND active = true
	`, barcode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1) AND active = true
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = *p
	}
	return result, rows.Err()
}

func (s *Store) SearchProducts(ctx context.Context, query string, category string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		  AND ($1 = '' OR lower(name) LIKE '%' || lower($1) || '%')
		  AND ($2 = '' OR category = $2)
		ORDER BY category, name
		LIMIT $3
	`, query, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) ApplySaleStock(ctx context.Context, transactionID string, deltas []store.StockDelta) ([]domain.StockMovement, error) {
	return s.applyBatch(ctx, transactionID, deltas, domain.MovementSale, -1)
}

func (s *Store) ApplyReturnStock(ctx context.Context, transactionID string, deltas []store.StockDelta) ([]domain.StockMovement, error) {
	return s.applyBatch(ctx, transactionID, deltas, domain.MovementReturn, +1)
}

func (s *Store) ReleaseSaleStock(ctx context.Context, transactionID string, deltas []store.StockDelta) ([]domain.StockMovement, error) {
	return s.applyBatch(ctx, transactionID, deltas, domain.MovementAdjustment, +1)
}

// applyBatch mutates stock for every delta inside one database transaction.
// Decrements are conditional updates: zero rows affected means another
// terminal took the last units, and the whole batch rolls back.
func (s *Store) applyBatch(ctx context.Context, transactionID string, deltas []store.StockDelta, movementType string, sign int) ([]domain.StockMovement, error) {
	if len(deltas) == 0 {
		return nil, store.ErrInvalidArgument
	}
	for _, d := range deltas {
		if d.Qty < 1 {
			return nil, store.ErrInvalidArgument
		}
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbtx.Rollback() }()

	now := time.Now().UTC()
	movements := make([]domain.StockMovement, 0, len(deltas))
	for _, d := range deltas {
		var res sql.Result
		if sign < 0 {
			res, err = dbtx.ExecContext(ctx, `
				UPDATE products
				SET current_stock = current_stock - $2, updated_at = $3
				WHERE id = $1 AND current_stock >= $2
			`, d.ProductID, d.Qty, now)
		} else {
			res, err = dbtx.ExecContext(ctx, `
				UPDATE products
				SET current_stock = current_stock + $2, updated_at = $3
				WHERE id = $1
			`, d.ProductID, d.Qty, now)
		}
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			var name string
			if scanErr := s.db.QueryRowContext(ctx, `SELECT name FROM products WHERE id = $1`, d.ProductID).Scan(&name); scanErr != nil {
				if errors.Is(scanErr, sql.ErrNoRows) {
					return nil, store.ErrNotFound
				}
				return nil, scanErr
			}
			return nil, &store.StockExhaustedError{ProductID: d.ProductID, Name: name}
		}

		m := domain.StockMovement{
			ID:            uuid.NewString(),
			ProductID:     d.ProductID,
			Delta:         sign * d.Qty,
			Type:          movementType,
			TransactionID: transactionID,
			CreatedAt:     now,
		}
		if _, err := dbtx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, delta, type, transaction_id, created_at)
			VALUES ($1,$2,$3,$4,NULLIF($5,'')::uuid,$6)
		`, m.ID, m.ProductID, m.Delta, m.Type, m.TransactionID, m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}

	if err := dbtx.Commit(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, delta, type, COALESCE(transaction_id::text, ''), created_at
		FROM stock_movements
		WHERE $1 = '' OR product_id::text = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Delta, &m.Type, &m.TransactionID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

const transactionColumns = `id, number, COALESCE(customer_id::text, ''), terminal_id, lines,
	subtotal, tax_amount, discount_amount, total, payment_method, payment_reference, promotion_id,
	status, is_return, COALESCE(original_transaction_id::text, ''), created_at, completed_at`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var tx domain.Transaction
	var linesJSON []byte
	var completedAt sql.NullTime
	err := row.Scan(&tx.ID, &tx.Number, &tx.CustomerID, &tx.TerminalID, &linesJSON,
		&tx.Subtotal, &tx.TaxAmount, &tx.DiscountAmount, &tx.Total, &tx.PaymentMethod,
		&tx.PaymentReference, &tx.PromotionID, &tx.Status, &tx.IsReturn,
		&tx.OriginalTransactionID, &tx.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(linesJSON, &tx.Lines); err != nil {
		return nil, fmt.Errorf("decode transaction lines: %w", err)
	}
	if completedAt.Valid {
		at := completedAt.Time
		tx.CompletedAt = &at
	}
	return &tx, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || tx.Number == "" || len(tx.Lines) == 0 {
		return nil, store.ErrInvalidArgument
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusPending
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	linesJSON, err := json.Marshal(tx.Lines)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, number, customer_id, terminal_id, lines, subtotal,
			tax_amount, discount_amount, total, payment_method, payment_reference, promotion_id,
			status, is_return, original_transaction_id, created_at)
		VALUES ($1,$2,NULLIF($3,'')::uuid,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NULLIF($15,'')::uuid,$16)
	`, tx.ID, tx.Number, tx.CustomerID, tx.TerminalID, linesJSON, tx.Subtotal,
		tx.TaxAmount, tx.DiscountAmount, tx.Total, tx.PaymentMethod, tx.PaymentReference,
		tx.PromotionID, tx.Status, tx.IsReturn, tx.OriginalTransactionID, tx.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := tx
	return &created, nil
}

func (s *Store) SetTransactionPaymentReference(ctx context.Context, id string, reference string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET payment_reference = $2
		WHERE id = $1 AND status = 'pending'
	`, id, reference)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, findErr := s.FindTransactionByID(ctx, id); findErr != nil {
			return findErr
		}
		return store.ErrImmutableTransaction
	}
	return nil
}

func (s *Store) SetTransactionStatus(ctx context.Context, id string, status string, at time.Time) (*domain.Transaction, error) {
	if status != domain.TxStatusCompleted && status != domain.TxStatusFailed {
		return nil, store.ErrInvalidArgument
	}

	var completedAt any
	if status == domain.TxStatusCompleted {
		completedAt = at.UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, status, completedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, findErr := s.FindTransactionByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, store.ErrImmutableTransaction
	}
	return s.FindTransactionByID(ctx, id)
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return tx, err
}

func (s *Store) ListTransactions(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

func (s *Store) GetReturnedQtyByTransaction(ctx context.Context, originalTransactionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line->>'product_id', (line->>'qty')::int
		FROM transactions, jsonb_array_elements(lines) AS line
		WHERE original_transaction_id = $1 AND is_return = true AND status = 'completed'
	`, originalTransactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returned := make(map[string]int)
	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		returned[productID] += qty
	}
	return returned, rows.Err()
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, loyalty_points, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Code, &c.Name, &c.LoyaltyPoints, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) DeductLoyaltyPoints(ctx context.Context, customerID string, points int64) error {
	if points < 1 {
		return store.ErrInvalidArgument
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET loyalty_points = loyalty_points - $2
		WHERE id = $1 AND loyalty_points >= $2
	`, customerID, points)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, findErr := s.GetCustomerByID(ctx, customerID); findErr != nil {
			return findErr
		}
		return store.ErrInsufficientPoints
	}
	return nil
}

func (s *Store) RefundLoyaltyPoints(ctx context.Context, customerID string, points int64) error {
	if points < 1 {
		return store.ErrInvalidArgument
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET loyalty_points = loyalty_points + $2
		WHERE id = $1
	`, customerID, points)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListActivePromotions(ctx context.Context) ([]domain.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, value, minimum_purchase, applicable_products, active, created_at
		FROM promotions
		WHERE active = true
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promotions := make([]domain.Promotion, 0, 16)
	for rows.Next() {
		var p domain.Promotion
		var productsJSON []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.Value, &p.MinimumPurchase, &productsJSON, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(productsJSON, &p.ApplicableProducts); err != nil {
			return nil, fmt.Errorf("decode applicable products: %w", err)
		}
		promotions = append(promotions, p)
	}
	return promotions, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
