// Package tools holds the built-in functions the agent can call during a
// session. They are deliberately small: the agent narrates around the
// returned JSON, so handlers return data, not prose.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/barkeep/voicelink/internal/domain"
)

type MenuItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

var defaultMenu = []MenuItem{
	{Name: "Margarita", Price: 12.99},
	{Name: "Old Fashioned", Price: 14.99},
}

func CheckID() domain.Tool {
	return domain.Tool{
		Schema: domain.ToolSchema{
			Name:        "check_id",
			Description: "Verify the customer's ID before serving alcohol.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"status": "id_checked", "valid": true}, nil
		},
	}
}

func GetMenu() domain.Tool {
	return domain.Tool{
		Schema: domain.ToolSchema{
			Name:        "get_menu",
			Description: "List the drinks currently on the menu with prices.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"items": defaultMenu}, nil
		},
	}
}

func PlaceOrder() domain.Tool {
	return domain.Tool{
		Schema: domain.ToolSchema{
			Name:        "place_order",
			Description: "Place a drink order for the customer.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"item": map[string]any{
						"type":        "string",
						"description": "Drink name from the menu",
					},
					"quantity": map[string]any{
						"type":    "integer",
						"minimum": 1,
					},
				},
				"required": []string{"item"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			item, _ := args["item"].(string)
			if item == "" {
				return nil, fmt.Errorf("order needs an item")
			}
			quantity := 1
			if q, ok := args["quantity"].(float64); ok && q >= 1 {
				quantity = int(q)
			}
			return map[string]any{
				"order_id": fmt.Sprintf("ORD-%s", time.Now().Format("20060102150405")),
				"item":     item,
				"quantity": quantity,
				"status":   "placed",
			}, nil
		},
	}
}

// Registry bundles every built-in tool.
func Registry() (*domain.ToolRegistry, error) {
	return domain.NewToolRegistry(CheckID(), GetMenu(), PlaceOrder())
}
