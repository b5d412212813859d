package entries

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-core/internal/promotion"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
)

var (
	minorUnitThreshold = decimal.NewFromInt(100)
	minorUnitDivisor   = decimal.NewFromInt(100)
)

// OrderOptions tunes how historical orders are valued.
type OrderOptions struct {
	// MinorUnitHeuristic treats integral unit prices of 100 or more as cents.
	MinorUnitHeuristic bool
}

// DefaultOrderOptions matches how the order history has been valued so far.
func DefaultOrderOptions() OrderOptions {
	return OrderOptions{MinorUnitHeuristic: true}
}

// ComputeOrder values a historical order with the default options.
func ComputeOrder(order shopify.Order, window promotion.Window, tags []string) int64 {
	return ComputeOrderWith(order, window, tags, DefaultOrderOptions())
}

// ComputeOrderWith counts an order placed inside the window that was not
// refunded. The configured multiplier applies even after the window closes.
func ComputeOrderWith(order shopify.Order, window promotion.Window, tags []string, opts OrderOptions) int64 {
	if !window.Contains(order.EffectiveDate) {
		return 0
	}
	if enums.FinancialStatusFromLabel(order.FinancialStatus) == enums.FinancialStatusRefunded {
		return 0
	}
	return Compute(OrderSubtotal(order, opts), window.Multiplier, tags, 1)
}

// OrderSubtotal is the merchandise basis of an order, excluding shipping and tax.
func OrderSubtotal(order shopify.Order, opts OrderOptions) decimal.Decimal {
	if order.Subtotal.Present && order.Subtotal.Value.IsPositive() {
		return order.Subtotal.Value
	}
	sum := decimal.Zero
	for _, line := range order.Lines {
		if line.Quantity <= 0 || !line.UnitPrice.Present {
			continue
		}
		price := unitPrice(line.UnitPrice, opts)
		if price.IsNegative() {
			continue
		}
		sum = sum.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return sum
}

func unitPrice(amount shopify.Amount, opts OrderOptions) decimal.Decimal {
	if opts.MinorUnitHeuristic && amount.Integral && amount.Value.GreaterThanOrEqual(minorUnitThreshold) {
		return amount.Value.Div(minorUnitDivisor)
	}
	return amount.Value
}
