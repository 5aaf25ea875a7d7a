package cart

import (
	"github.com/google/uuid"

	"github.com/snapprint/snapprint/internal/domain"
)

// ItemMeta describes a new line item before it gets an ID and derived prices.
type ItemMeta struct {
	FileName      string
	FileType      string
	FileSizeBytes int64
	PrintSize     string
	Quantity      int
}

// ItemUpdate carries a partial change to an existing line item. Nil fields
// are left untouched. Derived values (unit price, line total) are always
// rederived from the resulting size and quantity, never accepted from the
// caller.
type ItemUpdate struct {
	PrintSize *string
	Quantity  *int
}

// Cart accumulates line items for an in-progress print order. Item order is
// insertion order. The total is always rederived from the item list.
type Cart struct {
	items []domain.OrderItem
	total int64
}

// New creates an empty cart.
func New() *Cart {
	return &Cart{}
}

// AddItem appends a line item with a fresh ID, derives its unit price from
// the print size and recomputes the total. It returns the stored item.
func (c *Cart) AddItem(meta ItemMeta) domain.OrderItem {
	item := domain.OrderItem{
		ID:            uuid.New().String(),
		FileName:      meta.FileName,
		FileType:      meta.FileType,
		FileSizeBytes: meta.FileSizeBytes,
		PrintSize:     meta.PrintSize,
		Quantity:      meta.Quantity,
	}
	item.UnitPrice = domain.PriceFor(item.PrintSize)
	item.LineTotal = item.UnitPrice * int64(item.Quantity)

	c.items = append(c.items, item)
	c.recompute()
	return item
}

// UpdateItem merges the given changes into the item with the given ID and
// rederives its prices. Updating an unknown ID is a silent no-op since the
// caller may race with a removal.
func (c *Cart) UpdateItem(id string, upd ItemUpdate) {
	for i := range c.items {
		if c.items[i].ID != id {
			continue
		}
		if upd.PrintSize != nil {
			c.items[i].PrintSize = *upd.PrintSize
		}
		if upd.Quantity != nil {
			c.items[i].Quantity = *upd.Quantity
		}
		c.items[i].UnitPrice = domain.PriceFor(c.items[i].PrintSize)
		c.items[i].LineTotal = c.items[i].UnitPrice * int64(c.items[i].Quantity)
		c.recompute()
		return
	}
}

// RemoveItem removes the item with the given ID and recomputes the total.
// The caller is responsible for evicting the matching file store entry, or
// should use RemoveItemAndPayload.
func (c *Cart) RemoveItem(id string) {
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.recompute()
			return
		}
	}
}

// RemoveItemAndPayload removes the item and its file payload in one call,
// closing the gap between the two stores.
func (c *Cart) RemoveItemAndPayload(id string, files *FileStore) {
	c.RemoveItem(id)
	files.Delete(id)
}

// Clear empties the cart and zeroes the total.
func (c *Cart) Clear() {
	c.items = nil
	c.total = 0
}

// Items returns a copy of the current line items in insertion order.
func (c *Cart) Items() []domain.OrderItem {
	out := make([]domain.OrderItem, len(c.items))
	copy(out, c.items)
	return out
}

// TotalAmount returns the sum of all line totals.
func (c *Cart) TotalAmount() int64 {
	return c.total
}

// Len returns the number of line items.
func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) recompute() {
	var total int64
	for i := range c.items {
		total += c.items[i].LineTotal
	}
	c.total = total
}
