package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string          `bson:"_id,omitempty" json:"id"`
	UserID    string          `bson:"user_id" json:"usuario"`
	Items     []CartItem      `bson:"items" json:"items"`
	Total     decimal.Decimal `bson:"total" json:"total"`
	CreatedAt time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `bson:"updated_at" json:"updatedAt"`
}

type CartItem struct {
	ProductID string          `bson:"product_id" json:"productoId"`
	Quantity  int             `bson:"quantity" json:"cantidad"`
	UnitPrice decimal.Decimal `bson:"unit_price" json:"precio"`
	Subtotal  decimal.Decimal `bson:"subtotal" json:"subtotal"`
	AddedAt   time.Time       `bson:"added_at" json:"addedAt"`
}

// NewCart returns an empty cart for the user.
func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:    userID,
		Items:     []CartItem{},
		Total:     decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ComputeSubtotal returns quantity * unit price.
func (i CartItem) ComputeSubtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ComputeTotal sums the line subtotals as currently computed from quantity and price.
func (c *Cart) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.ComputeSubtotal())
	}
	return total
}

// Recalculate refreshes every line subtotal and the cached total.
// Every code path that mutates lines calls it before persisting.
func (c *Cart) Recalculate() {
	for i := range c.Items {
		c.Items[i].Subtotal = c.Items[i].ComputeSubtotal()
	}
	c.Total = c.ComputeTotal()
}

// Find returns the index of the line holding productID.
func (c *Cart) Find(productID string) (int, bool) {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

// Remove deletes the line at index i, keeping the order of the others.
func (c *Cart) Remove(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

// Clear drops all lines and zeroes the total.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.Total = decimal.Zero
}

// ProductIDs lists the products referenced by the cart, in line order.
func (c *Cart) ProductIDs() []string {
	ids := make([]string, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	return ids
}

func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = make([]CartItem, len(c.Items))
	copy(out.Items, c.Items)
	return &out
}
