package cart

import (
	"net/url"
	"strings"

	"github.com/angelmondragon/storefront-core/pkg/enums"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
	"github.com/shopspring/decimal"
)

// Snapshot is a point-in-time copy of an engine's read model.
type Snapshot struct {
	DeviceID   string
	State      enums.CartState
	CartID     string
	Cart       *shopify.Cart
	Shadow     map[string]int
	LocalTotal decimal.Decimal
	Stale      bool
}

// Quantity is the quantity a consumer should display for a line.
func (s Snapshot) Quantity(line shopify.CartLine) int {
	if qty, ok := s.Shadow[line.ID]; ok {
		return qty
	}
	return line.Quantity
}

// IsCheckoutComplete recognises the URLs Shopify lands on after a
// successful checkout: a thank-you page or an order status page.
func IsCheckoutComplete(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	path := raw
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		path = parsed.Path
	}
	path = strings.ToLower(path)
	for _, segment := range strings.Split(path, "/") {
		if segment == "thank_you" || segment == "thank-you" {
			return true
		}
	}
	return strings.Contains(path, "/orders/")
}
