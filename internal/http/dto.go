package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-playground/validator/v10"
)

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}

func invalidf(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

type AddItemRequestDTO struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  *int   `json:"cantidad" validate:"required,min=1"`
}

func (r *AddItemRequestDTO) normalize() {
	r.ProductID = strings.TrimSpace(r.ProductID)
	if r.Quantity == nil {
		one := 1
		r.Quantity = &one
	}
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"cantidad" validate:"required"`
}

type ShippingAddressDTO struct {
	Street     string `json:"calle"`
	City       string `json:"ciudad"`
	PostalCode string `json:"codigoPostal"`
	Country    string `json:"pais"`
}

// CreateOrderRequestDTO only checks the shape. Empty address fields are
// reported by the order service, which trims them first.
type CreateOrderRequestDTO struct {
	ShippingAddress *ShippingAddressDTO `json:"direccionEnvio" validate:"required"`
	Phone           string              `json:"telefono"`
}

func (r *CreateOrderRequestDTO) Address() domain.ShippingAddress {
	return domain.ShippingAddress{
		Street:     r.ShippingAddress.Street,
		City:       r.ShippingAddress.City,
		PostalCode: r.ShippingAddress.PostalCode,
		Country:    r.ShippingAddress.Country,
	}
}

type UpdateStatusRequestDTO struct {
	Status string `json:"estado" validate:"required"`
}

func (r *UpdateStatusRequestDTO) normalize() {
	r.Status = strings.TrimSpace(r.Status)
}

// normalizer is implemented by DTOs that fill defaults or trim input
// before validation.
type normalizer interface {
	normalize()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the validate tags of dst and reports the first
// failing field by its JSON name.
func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return invalidf("invalid request body")
	}
	vErr := vErrs[0]
	switch vErr.Tag() {
	case "required":
		return invalidf("%s is required", vErr.Field())
	case "min":
		return invalidf("%s must be at least %s", vErr.Field(), vErr.Param())
	default:
		return invalidf("%s is invalid", vErr.Field())
	}
}

// decodeJSON reads exactly one JSON object into dst, rejecting unknown
// fields and bodies over maxBytes, then normalizes and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &maxErr):
			return invalidf("request body must not be larger than %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return invalidf("request body must not be empty")
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return invalidf("invalid JSON body")
		case errors.As(err, &typeErr):
			return invalidf("field %s has the wrong type", typeErr.Field)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return invalidf("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		default:
			return invalidf("invalid JSON body")
		}
	}
	if dec.More() {
		return invalidf("request body must contain a single JSON object")
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	return validateStruct(dst)
}
