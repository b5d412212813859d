package cart

import (
	cartdto "github.com/angelmondragon/storefront-core/api/controllers/cart/dto"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
)

const defaultAddQuantity = 1

func toLineUpdates(payload cartdto.UpdateLinesRequest) []shopify.LineUpdate {
	lines := make([]shopify.LineUpdate, 0, len(payload.Lines))
	for _, line := range payload.Lines {
		lines = append(lines, shopify.LineUpdate{ID: line.ID, Quantity: line.Quantity})
	}
	return lines
}

func addQuantity(payload cartdto.AddLineRequest) int {
	if payload.Quantity <= 0 {
		return defaultAddQuantity
	}
	return payload.Quantity
}
