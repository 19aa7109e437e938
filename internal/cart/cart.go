// Package cart is the in-memory register cart. Stock numbers are the snapshot
// the lines were added with, not a reservation.
package cart

import (
	"fmt"

	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrOutOfStock    = apperr.Validation("product is out of stock")
	ErrStockExceeded = apperr.Validation("quantity exceeds available stock")
	ErrLineNotFound  = apperr.Validation("product is not in the cart")
	ErrBadQuantity   = apperr.Validation("quantity must be positive")
)

// Line is a product snapshot plus the requested quantity. ProductID is kept
// as text because not every line has to reference a stored product.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Weight    string          `json:"weight"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Quantity  int             `json:"quantity"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func LineFromProduct(p models.Product, quantity int) Line {
	return Line{
		ProductID: p.ID.String(),
		Name:      p.Name,
		Weight:    p.Weight,
		Price:     p.Price,
		Stock:     p.Stock,
		Quantity:  quantity,
	}
}

type Cart struct {
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

// Add puts one unit of p in the cart, or one more unit if it is already there.
func (c *Cart) Add(p models.Product) error {
	if p.Stock <= 0 {
		return fmt.Errorf("%s: %w", p.Name, ErrOutOfStock)
	}

	id := p.ID.String()
	if i := c.index(id); i >= 0 {
		if c.lines[i].Quantity+1 > p.Stock {
			return fmt.Errorf("%s (stock %d): %w", p.Name, p.Stock, ErrStockExceeded)
		}
		c.lines[i].Quantity++
		c.lines[i].Stock = p.Stock
		return nil
	}

	c.lines = append(c.lines, LineFromProduct(p, 1))
	return nil
}

// AddQuantity puts n units of p in the cart. A line already holding p is
// grown, and the merged quantity must still fit p.Stock.
func (c *Cart) AddQuantity(p models.Product, n int) error {
	if n <= 0 {
		return fmt.Errorf("%s: %w", p.Name, ErrBadQuantity)
	}

	i := c.index(p.ID.String())
	held := 0
	if i >= 0 {
		held = c.lines[i].Quantity
	}
	if held+n > p.Stock {
		return fmt.Errorf("%s (stock %d): %w", p.Name, p.Stock, ErrStockExceeded)
	}

	if i >= 0 {
		c.lines[i].Quantity += n
		c.lines[i].Stock = p.Stock
		return nil
	}
	c.lines = append(c.lines, LineFromProduct(p, n))
	return nil
}

// AddCustom appends a line that references no stored product. Custom lines
// are never merged.
func (c *Cart) AddCustom(l Line) {
	l.ProductID = ""
	c.lines = append(c.lines, l)
}

// SetQuantity changes a line's quantity. n <= 0 removes the line.
func (c *Cart) SetQuantity(productID string, n int) error {
	i := c.index(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	if n <= 0 {
		c.removeAt(i)
		return nil
	}
	if n > c.lines[i].Stock {
		return fmt.Errorf("%s (stock %d): %w", c.lines[i].Name, c.lines[i].Stock, ErrStockExceeded)
	}
	c.lines[i].Quantity = n
	return nil
}

func (c *Cart) Remove(productID string) {
	if i := c.index(productID); i >= 0 {
		c.removeAt(i)
	}
}

func (c *Cart) Clear() {
	c.lines = nil
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Total() decimal.Decimal {
	return Total(c.lines)
}

// Change is tendered minus total. It may be negative.
func (c *Cart) Change(tendered decimal.Decimal) decimal.Decimal {
	return tendered.Sub(c.Total())
}

// RefreshStock copies newer stock and price figures from a catalog snapshot
// into matching lines. Quantities are left alone.
func (c *Cart) RefreshStock(products []models.Product) {
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID.String()] = p
	}
	for i := range c.lines {
		if p, ok := byID[c.lines[i].ProductID]; ok {
			c.lines[i].Stock = p.Stock
			c.lines[i].Price = p.Price
			c.lines[i].Name = p.Name
			c.lines[i].Weight = p.Weight
		}
	}
}

// Total sums price times quantity over lines.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (c *Cart) index(productID string) int {
	for i, l := range c.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
}
