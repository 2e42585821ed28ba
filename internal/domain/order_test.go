package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo_Table(t *testing.T) {
	allowed := map[OrderStatus]map[OrderStatus]bool{
		OrderStatusPending:      {OrderStatusInProduction: true, OrderStatusCancelled: true},
		OrderStatusInProduction: {OrderStatusShipping: true, OrderStatusCancelled: true},
		OrderStatusShipping:     {OrderStatusDelivered: true},
		OrderStatusDelivered:    {},
		OrderStatusCancelled:    {},
	}

	for _, from := range OrderStatuses() {
		for _, to := range OrderStatuses() {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionTo_UnknownStatus(t *testing.T) {
	assert.False(t, OrderStatusPending.CanTransitionTo("paid"))
	assert.False(t, OrderStatus("paid").CanTransitionTo(OrderStatusCancelled))
	assert.False(t, OrderStatus("paid").Valid())
	assert.True(t, OrderStatusShipping.Valid())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.Empty(t, OrderStatusDelivered.AllowedNext())
	assert.Empty(t, OrderStatusCancelled.AllowedNext())
}

func TestAllowedNext_ReturnsCopy(t *testing.T) {
	next := OrderStatusPending.AllowedNext()
	next[0] = OrderStatusDelivered

	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusInProduction))
	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusDelivered))
}

func TestShippingAddress_NormalizeAndMissing(t *testing.T) {
	addr := ShippingAddress{Street: "  Calle 1 ", City: "Lima", PostalCode: "   ", Country: ""}.Normalize()

	assert.Equal(t, "Calle 1", addr.Street)
	assert.Equal(t, []string{"codigoPostal", "pais"}, addr.MissingFields())
	assert.Empty(t, ShippingAddress{Street: "a", City: "b", PostalCode: "c", Country: "d"}.MissingFields())
}

func TestSumItems(t *testing.T) {
	items := []OrderItem{
		{Quantity: 2, UnitPrice: decimal.NewFromInt(100), Subtotal: decimal.NewFromInt(200)},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("0.5"), Subtotal: decimal.RequireFromString("0.5")},
	}

	assert.True(t, SumItems(items).Equal(decimal.RequireFromString("200.5")))
	assert.True(t, SumItems(nil).IsZero())
}

func TestProductApplyStock(t *testing.T) {
	p := &Product{Stock: 3, State: ProductAvailable}

	p.ApplyStock(0)
	assert.Equal(t, ProductOutOfStock, p.State)

	p.ApplyStock(2)
	assert.Equal(t, ProductAvailable, p.State)

	d := &Product{Stock: 1, State: ProductDiscontinued}
	d.ApplyStock(0)
	assert.Equal(t, ProductDiscontinued, d.State)
	d.ApplyStock(5)
	assert.Equal(t, ProductDiscontinued, d.State)
	assert.False(t, d.Sellable())
}
