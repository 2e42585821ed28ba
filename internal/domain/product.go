package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductState is the catalog lifecycle state of a product
type ProductState string

const (
	ProductAvailable    ProductState = "available"
	ProductOutOfStock   ProductState = "out_of_stock"
	ProductDiscontinued ProductState = "discontinued"
)

// Product is the part of the catalog entry the cart and order flows depend on.
type Product struct {
	ID        string          `bson:"_id" json:"id"`
	Name      string          `bson:"name" json:"nombre"`
	Price     decimal.Decimal `bson:"price" json:"precio"`
	Image     string          `bson:"image" json:"imagen"`
	Stock     int             `bson:"stock" json:"stock"`
	State     ProductState    `bson:"state" json:"estado"`
	UpdatedAt time.Time       `bson:"updated_at" json:"updatedAt"`
}

// Sellable reports whether the product may be put in a cart or ordered at all.
func (p *Product) Sellable() bool {
	return p.State != ProductDiscontinued
}

// ApplyStock sets the stock level and moves the product between available and
// out_of_stock accordingly. Discontinued products keep their state.
func (p *Product) ApplyStock(stock int) {
	p.Stock = stock
	switch {
	case stock == 0 && p.State == ProductAvailable:
		p.State = ProductOutOfStock
	case stock > 0 && p.State == ProductOutOfStock:
		p.State = ProductAvailable
	}
}
