package cartdto

import "github.com/shopspring/decimal"

type AddLineRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"omitempty,gte=1,lte=99"`
}

type LineUpdate struct {
	ID       string `json:"id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0,lte=99"`
}

type UpdateLinesRequest struct {
	Lines []LineUpdate `json:"lines" validate:"required,min=1,dive"`
}

type SetQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0,lte=99"`
}

type CompleteCheckoutRequest struct {
	URL string `json:"url" validate:"required"`
}

type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code,omitempty"`
}

type CartLine struct {
	ID             string `json:"id"`
	VariantID      string `json:"variant_id"`
	Title          string `json:"title"`
	ProductTitle   string `json:"product_title"`
	ImageURL       string `json:"image_url,omitempty"`
	Quantity       int    `json:"quantity"`
	RemoteQuantity int    `json:"remote_quantity"`
	Price          Money  `json:"price"`
	CompareAtPrice *Money `json:"compare_at_price,omitempty"`
	LineTotal      Money  `json:"line_total"`
}

// Cart is the device's cart as the client should render it. Quantities are
// the optimistic local values; RemoteQuantity is what the cart service holds.
type Cart struct {
	DeviceID       string          `json:"device_id"`
	State          string          `json:"state"`
	CartID         string          `json:"cart_id,omitempty"`
	Stale          bool            `json:"stale"`
	Lines          []CartLine      `json:"lines"`
	ItemCount      int             `json:"item_count"`
	LocalTotal     decimal.Decimal `json:"local_total"`
	EstimatedTotal *Money          `json:"estimated_total,omitempty"`
	CheckoutURL    string          `json:"checkout_url,omitempty"`
}

type SyncResponse struct {
	Synced bool `json:"synced"`
	Cart   Cart `json:"cart"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

type CompleteCheckoutResponse struct {
	Completed bool `json:"completed"`
}
