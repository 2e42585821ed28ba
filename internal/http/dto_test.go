package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, body string, dst any) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return decodeJSON(httptest.NewRecorder(), req, 1<<20, dst)
}

func TestDecodeJSON_Validation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		dst    any
		errMsg string
	}{
		{"blank product id", `{"productId":"  ","cantidad":1}`, &AddItemRequestDTO{}, "productId is required"},
		{"zero quantity", `{"productId":"p1","cantidad":0}`, &AddItemRequestDTO{}, "cantidad must be at least 1"},
		{"missing quantity", `{}`, &UpdateQuantityRequestDTO{}, "cantidad is required"},
		{"missing address", `{"telefono":"600"}`, &CreateOrderRequestDTO{}, "direccionEnvio is required"},
		{"blank status", `{"estado":"   "}`, &UpdateStatusRequestDTO{}, "estado is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeBody(t, tt.body, tt.dst)
			require.Error(t, err)
			var vErr *validationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.errMsg, vErr.Error())
		})
	}
}

func TestDecodeJSON_Normalizes(t *testing.T) {
	var add AddItemRequestDTO
	require.NoError(t, decodeBody(t, `{"productId":" p1 "}`, &add))
	assert.Equal(t, "p1", add.ProductID)
	require.NotNil(t, add.Quantity)
	assert.Equal(t, 1, *add.Quantity)

	var qty UpdateQuantityRequestDTO
	require.NoError(t, decodeBody(t, `{"cantidad":0}`, &qty))
	assert.Equal(t, 0, *qty.Quantity)

	var status UpdateStatusRequestDTO
	require.NoError(t, decodeBody(t, `{"estado":" shipped "}`, &status))
	assert.Equal(t, "shipped", status.Status)

	var order CreateOrderRequestDTO
	require.NoError(t, decodeBody(t, `{"direccionEnvio":{}}`, &order))
	assert.NotNil(t, order.ShippingAddress)
}
