// Package cart holds the shopper's local cart. It is advisory: stock figures are the last values
// seen in the catalog and the server re-validates everything at checkout.
package cart

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is the catalog snapshot used when adding to the cart.
type Item struct {
	SweetID uuid.UUID
	Name    string
	Price   decimal.Decimal
	Image   string
	Stock   int
}

// Line is one entry of the cart.
type Line struct {
	SweetID  uuid.UUID       `json:"sweet_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image,omitempty"`
	Stock    int             `json:"stock"`
	Quantity int             `json:"quantity"`
}

// CheckoutLine is the (sweet, quantity) pair submitted when placing an order.
type CheckoutLine struct {
	SweetID  uuid.UUID `json:"sweet_id"`
	Quantity int       `json:"quantity"`
}

// StockWarning explains why a quantity change was refused.
type StockWarning struct {
	SweetID   uuid.UUID
	Name      string
	Requested int
	Available int
}

func (w *StockWarning) Error() string {
	return w.Message()
}

// Message is the text shown to the shopper.
func (w *StockWarning) Message() string {
	if w.Available <= 0 {
		return fmt.Sprintf("%s is out of stock", w.Name)
	}
	return fmt.Sprintf("only %d of %s in stock", w.Available, w.Name)
}

// Cart is an ordered list of lines with at most one line per sweet.
type Cart struct {
	lines []Line
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// FromLines rebuilds a cart from persisted lines, dropping invalid entries and merging repeats.
func FromLines(lines []Line) *Cart {
	c := New()
	for _, line := range lines {
		if line.SweetID == uuid.Nil || line.Quantity <= 0 {
			continue
		}
		if i := c.index(line.SweetID); i >= 0 {
			c.lines[i].Quantity += line.Quantity
			continue
		}
		c.lines = append(c.lines, line)
	}
	return c
}

// Lines returns a copy of the cart contents in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Line returns the line for id, if present.
func (c *Cart) Line(id uuid.UUID) (Line, bool) {
	if i := c.index(id); i >= 0 {
		return c.lines[i], true
	}
	return Line{}, false
}

// AddItem adds one unit: an existing line is incremented, otherwise a line with quantity 1 is
// appended. Stock is not checked here.
func (c *Cart) AddItem(item Item) {
	if i := c.index(item.SweetID); i >= 0 {
		c.lines[i].Quantity++
		return
	}
	c.lines = append(c.lines, Line{
		SweetID:  item.SweetID,
		Name:     item.Name,
		Price:    item.Price,
		Image:    item.Image,
		Stock:    item.Stock,
		Quantity: 1,
	})
}

// SetQuantity sets the quantity of an existing line. qty <= 0 removes the line. A qty above the
// last observed stock leaves the line unchanged and returns a warning. The bool reports whether
// the cart changed.
func (c *Cart) SetQuantity(id uuid.UUID, qty int) (bool, *StockWarning) {
	i := c.index(id)
	if i < 0 {
		return false, nil
	}
	if qty <= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
		return true, nil
	}
	line := c.lines[i]
	if qty > line.Stock {
		return false, &StockWarning{
			SweetID:   line.SweetID,
			Name:      line.Name,
			Requested: qty,
			Available: line.Stock,
		}
	}
	c.lines[i].Quantity = qty
	return true, nil
}

// Remove drops the line for id.
func (c *Cart) Remove(id uuid.UUID) bool {
	changed, _ := c.SetQuantity(id, 0)
	return changed
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.lines = nil
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// TotalItems is the sum of line quantities.
func (c *Cart) TotalItems() int {
	total := 0
	for _, line := range c.lines {
		total += line.Quantity
	}
	return total
}

// TotalPrice is the sum of price times quantity using the cached prices.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// Refresh updates cached name, price, image and stock from a fresh catalog read. Quantities are
// left as they are; lines whose sweet no longer exists get a stock of zero.
func (c *Cart) Refresh(catalog []Item) {
	byID := make(map[uuid.UUID]Item, len(catalog))
	for _, item := range catalog {
		byID[item.SweetID] = item
	}
	for i := range c.lines {
		item, ok := byID[c.lines[i].SweetID]
		if !ok {
			c.lines[i].Stock = 0
			continue
		}
		c.lines[i].Name = item.Name
		c.lines[i].Price = item.Price
		c.lines[i].Image = item.Image
		c.lines[i].Stock = item.Stock
	}
}

// Overstocked lists lines whose quantity exceeds the last observed stock.
func (c *Cart) Overstocked() []StockWarning {
	var out []StockWarning
	for _, line := range c.lines {
		if line.Quantity > line.Stock {
			out = append(out, StockWarning{
				SweetID:   line.SweetID,
				Name:      line.Name,
				Requested: line.Quantity,
				Available: line.Stock,
			})
		}
	}
	return out
}

// CheckoutItems returns the lines as order items in cart order.
func (c *Cart) CheckoutItems() []CheckoutLine {
	out := make([]CheckoutLine, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, CheckoutLine{SweetID: line.SweetID, Quantity: line.Quantity})
	}
	return out
}

func (c *Cart) index(id uuid.UUID) int {
	for i, line := range c.lines {
		if line.SweetID == id {
			return i
		}
	}
	return -1
}
