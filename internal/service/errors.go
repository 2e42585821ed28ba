package service

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrItemNotFound        = errors.New("product is not in the cart")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	ErrInvalidShippingInfo = errors.New("invalid shipping info")
	ErrOrderNotFound       = errors.New("order not found")
	ErrForbidden           = errors.New("not allowed to access this order")
	ErrInvalidTransition   = errors.New("illegal transition of order status")
	ErrDuplicateRequest    = errors.New("duplicate request in progress")
)

func insufficientStock(productID string, available, requested int) error {
	return fmt.Errorf("%w: %d available, %d requested (product %s)", ErrInsufficientStock, available, requested, productID)
}
