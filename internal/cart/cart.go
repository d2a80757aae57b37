package cart

import (
	"errors"

	"kelontongpos/internal/domain"
)

var (
	// ErrInvalidQuantity covers quantities that would drop to zero or below,
	// or exceed the stock level known at add time. The stock check is
	// advisory; the authoritative check happens at payment completion.
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrNotInCart       = errors.New("product not in cart")
)

// Cart is the mutable item collection for one in-progress sale. It belongs to
// a single terminal session and is not safe for concurrent use; the shared
// state (stock) is guarded at the store level instead.
type Cart struct {
	customerID string
	lines      []domain.CartLine
}

func New() *Cart {
	return &Cart{lines: make([]domain.CartLine, 0, 8)}
}

// AttachCustomer links the sale to a loyalty customer. Required for
// loyalty-point payment.
func (c *Cart) AttachCustomer(customerID string) {
	c.customerID = customerID
}

func (c *Cart) CustomerID() string {
	return c.customerID
}

// AddItem merges into an existing line for the same product or appends a new
// one, snapshotting price, tax rate and discount at this moment. The first
// add for a product decides the snapshot; later merges only grow quantity.
func (c *Cart) AddItem(product domain.Product, qty int) error {
	if qty == 0 {
		return ErrInvalidQuantity
	}

	for i := range c.lines {
		if c.lines[i].ProductID != product.ID {
			continue
		}
		newQty := c.lines[i].Qty + qty
		if newQty <= 0 || newQty > product.CurrentStock {
			return ErrInvalidQuantity
		}
		c.lines[i].Qty = newQty
		return nil
	}

	if qty < 0 || qty > product.CurrentStock {
		return ErrInvalidQuantity
	}
	c.lines = append(c.lines, domain.CartLine{
		ProductID:       product.ID,
		Barcode:         product.Barcode,
		Name:            product.Name,
		Qty:             qty,
		UnitPrice:       product.SellingPrice,
		TaxRatePercent:  product.TaxRatePercent,
		DiscountPercent: product.DiscountPercent,
	})
	return nil
}

// UpdateQuantity overwrites a line's quantity; zero or below removes the line.
func (c *Cart) UpdateQuantity(productID string, qty int) error {
	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}
		if qty <= 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return nil
		}
		c.lines[i].Qty = qty
		return nil
	}
	return ErrNotInCart
}

// RemoveItem is idempotent: removing an absent product is a no-op.
func (c *Cart) RemoveItem(productID string) {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

func (c *Cart) Clear() {
	c.lines = c.lines[:0]
	c.customerID = ""
}

// Lines returns a defensive copy in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	snapshot := make([]domain.CartLine, len(c.lines))
	copy(snapshot, c.lines)
	return snapshot
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}
