package shopify

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is an amount in major units with its ISO currency code.
type Money struct {
	Amount       decimal.Decimal
	CurrencyCode string
}

type Image struct {
	URL     string
	AltText string
}

type Product struct {
	Title  string
	Images []Image
}

// Merchandise is the product variant a cart line points at.
type Merchandise struct {
	ID             string
	Title          string
	Price          Money
	CompareAtPrice *Money
	Product        Product
}

type CartLine struct {
	ID          string
	Quantity    int
	Merchandise Merchandise
}

// Cart is the authoritative remote cart. Lines keep server order.
type Cart struct {
	ID            string
	Lines         []CartLine
	CheckoutURL   string
	EstimatedCost Money
}

// Clone returns a deep copy so callers never share line slices with the engine.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = make([]CartLine, len(c.Lines))
	for i, line := range c.Lines {
		cp := line
		if line.Merchandise.CompareAtPrice != nil {
			price := *line.Merchandise.CompareAtPrice
			cp.Merchandise.CompareAtPrice = &price
		}
		cp.Merchandise.Product.Images = append([]Image(nil), line.Merchandise.Product.Images...)
		out.Lines[i] = cp
	}
	return &out
}

// Line looks up a line by id.
func (c *Cart) Line(id string) (CartLine, bool) {
	if c == nil {
		return CartLine{}, false
	}
	for _, line := range c.Lines {
		if line.ID == id {
			return line, true
		}
	}
	return CartLine{}, false
}

// Quantities maps every line id to its remote quantity.
func (c *Cart) Quantities() map[string]int {
	out := map[string]int{}
	if c == nil {
		return out
	}
	for _, line := range c.Lines {
		out[line.ID] = line.Quantity
	}
	return out
}

// LineUpdate is one entry of a batched quantity update. Quantity 0 removes the line.
type LineUpdate struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type CheckoutLine struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// PromotionInfo is the promotional config as served, before date normalisation.
type PromotionInfo struct {
	Multiplier string
	StartDate  string
	EndDate    string
}

// Amount is a loosely typed upstream number. Integral records that it was
// written without a fractional part, which matters for the minor-unit guess.
type Amount struct {
	Value    decimal.Decimal
	Integral bool
	Present  bool
}

type OrderLine struct {
	Title     string
	Quantity  int
	UnitPrice Amount
}

// Order is a historical order used for entries review.
type Order struct {
	ID              string
	Name            string
	EffectiveDate   time.Time
	FinancialStatus string
	Subtotal        Amount
	Lines           []OrderLine
}
