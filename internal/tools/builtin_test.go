package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryContainsBuiltins(t *testing.T) {
	reg, err := Registry()
	require.NoError(t, err)
	for _, name := range []string{"check_id", "get_menu", "place_order"} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, name)
	}
}

func TestGetMenuReturnsItems(t *testing.T) {
	out, err := GetMenu().Handler(context.Background(), nil)
	require.NoError(t, err)
	m, ok := out.(map[string]any)
	require.True(t, ok)
	items, ok := m["items"].([]MenuItem)
	require.True(t, ok)
	assert.NotEmpty(t, items)
}

func TestPlaceOrder(t *testing.T) {
	out, err := PlaceOrder().Handler(context.Background(), map[string]any{
		"item":     "Margarita",
		"quantity": float64(2),
	})
	require.NoError(t, err)
	order := out.(map[string]any)
	assert.Equal(t, "Margarita", order["item"])
	assert.Equal(t, 2, order["quantity"])
	assert.Equal(t, "placed", order["status"])
	assert.NotEmpty(t, order["order_id"])
}

func TestPlaceOrderRequiresItem(t *testing.T) {
	_, err := PlaceOrder().Handler(context.Background(), map[string]any{})
	require.Error(t, err)
}

func TestPlaceOrderDefaultsQuantity(t *testing.T) {
	out, err := PlaceOrder().Handler(context.Background(), map[string]any{"item": "Old Fashioned"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.(map[string]any)["quantity"])
}
