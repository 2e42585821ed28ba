package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is published after an order is placed or changes status.
type OrderEvent struct {
	Type           string          `json:"event_type"`
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	Status         OrderStatus     `json:"status"`
	PreviousStatus OrderStatus     `json:"previous_status,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Items          []OrderItem     `json:"items,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func NewOrderCreatedEvent(o *Order) OrderEvent {
	return OrderEvent{
		Type:       EventOrderCreated,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		Total:      o.Total,
		Items:      o.Items,
		OccurredAt: o.CreatedAt,
	}
}

func NewOrderStatusChangedEvent(o *Order, previous OrderStatus) OrderEvent {
	return OrderEvent{
		Type:           EventOrderStatusChanged,
		OrderID:        o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		PreviousStatus: previous,
		Total:          o.Total,
		OccurredAt:     o.UpdatedAt,
	}
}
