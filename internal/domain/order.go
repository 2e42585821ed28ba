package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ShippingAddress struct {
	Street     string `bson:"street" json:"calle"`
	City       string `bson:"city" json:"ciudad"`
	PostalCode string `bson:"postal_code" json:"codigoPostal"`
	Country    string `bson:"country" json:"pais"`
}

// Normalize trims surrounding whitespace from each field.
func (a ShippingAddress) Normalize() ShippingAddress {
	return ShippingAddress{
		Street:     strings.TrimSpace(a.Street),
		City:       strings.TrimSpace(a.City),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}

// MissingFields names the empty fields of the address.
func (a ShippingAddress) MissingFields() []string {
	var missing []string
	if a.Street == "" {
		missing = append(missing, "calle")
	}
	if a.City == "" {
		missing = append(missing, "ciudad")
	}
	if a.PostalCode == "" {
		missing = append(missing, "codigoPostal")
	}
	if a.Country == "" {
		missing = append(missing, "pais")
	}
	return missing
}

// OrderItem is the snapshot of a cart line taken when the order is placed.
type OrderItem struct {
	ProductID    string          `bson:"product_id" json:"productoId"`
	ProductName  string          `bson:"product_name" json:"nombreProducto"`
	ProductImage string          `bson:"product_image" json:"imagenProducto"`
	Quantity     int             `bson:"quantity" json:"cantidad"`
	UnitPrice    decimal.Decimal `bson:"unit_price" json:"precio"`
	Subtotal     decimal.Decimal `bson:"subtotal" json:"subtotal"`
}

type StatusChange struct {
	Status OrderStatus `bson:"status" json:"estado"`
	At     time.Time   `bson:"at" json:"fecha"`
}

type Order struct {
	ID              string          `bson:"_id" json:"id"`
	UserID          string          `bson:"user_id" json:"usuario"`
	Items           []OrderItem     `bson:"items" json:"items"`
	Total           decimal.Decimal `bson:"total" json:"total"`
	Status          OrderStatus     `bson:"status" json:"estado"`
	ShippingAddress ShippingAddress `bson:"shipping_address" json:"direccionEnvio"`
	Phone           string          `bson:"phone" json:"telefono"`
	StatusHistory   []StatusChange  `bson:"status_history" json:"historialEstados"`
	CreatedAt       time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `bson:"updated_at" json:"updatedAt"`
}

// SumItems returns the sum of the order line subtotals.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID == userID
}

func (o *Order) Clone() *Order {
	out := *o
	out.Items = make([]OrderItem, len(o.Items))
	copy(out.Items, o.Items)
	out.StatusHistory = make([]StatusChange, len(o.StatusHistory))
	copy(out.StatusHistory, o.StatusHistory)
	return &out
}
