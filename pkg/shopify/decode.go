package shopify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

var stockErrorCodes = map[string]struct{}{
	"MERCHANDISE_NOT_ENOUGH_STOCK": {},
	"MERCHANDISE_OUT_OF_STOCK":     {},
	"NOT_ENOUGH_IN_STOCK":          {},
}

// connection accepts either a plain JSON array or a GraphQL {nodes}/{edges} wrapper.
type connection[T any] []T

func (c *connection[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = nil
		return nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*c = items
		return nil
	}
	var wrapped struct {
		Nodes []T `json:"nodes"`
		Edges []struct {
			Node T `json:"node"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return err
	}
	items := wrapped.Nodes
	for _, edge := range wrapped.Edges {
		items = append(items, edge.Node)
	}
	if items == nil {
		items = []T{}
	}
	*c = items
	return nil
}

// wireMoney accepts {amount, currencyCode} or a bare scalar amount.
type wireMoney struct {
	Amount       string
	CurrencyCode string
}

func (m *wireMoney) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			Amount       json.RawMessage `json:"amount"`
			CurrencyCode string          `json:"currencyCode"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		m.Amount = scalarText(obj.Amount)
		m.CurrencyCode = obj.CurrencyCode
		return nil
	}
	m.Amount = scalarText(trimmed)
	return nil
}

func (m *wireMoney) decode(path string) (Money, error) {
	if m == nil {
		return Money{}, malformed(path, "missing")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(m.Amount))
	if err != nil {
		return Money{}, malformed(path, fmt.Sprintf("invalid amount %q", m.Amount))
	}
	return Money{Amount: amount, CurrencyCode: m.CurrencyCode}, nil
}

type wireImage struct {
	URL     string `json:"url"`
	Src     string `json:"src"`
	AltText string `json:"altText"`
}

type wireProduct struct {
	Title         string                `json:"title"`
	Images        connection[wireImage] `json:"images"`
	FeaturedImage *wireImage            `json:"featuredImage"`
}

type wireMerchandise struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Price          *wireMoney  `json:"price"`
	PriceV2        *wireMoney  `json:"priceV2"`
	CompareAtPrice *wireMoney  `json:"compareAtPrice"`
	Product        wireProduct `json:"product"`
}

type wireLine struct {
	ID          string           `json:"id"`
	Quantity    *int             `json:"quantity"`
	Merchandise *wireMerchandise `json:"merchandise"`
}

type wireCost struct {
	TotalAmount    *wireMoney `json:"totalAmount"`
	SubtotalAmount *wireMoney `json:"subtotalAmount"`
}

type wireCart struct {
	ID            string                `json:"id"`
	Lines         *connection[wireLine] `json:"lines"`
	CheckoutURL   string                `json:"checkoutUrl"`
	EstimatedCost *wireCost             `json:"estimatedCost"`
	Cost          *wireCost             `json:"cost"`
}

type userError struct {
	Code    string   `json:"code"`
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// envelope is the outer shape the cloud functions reply with. A bare cart is
// also accepted, in which case Cart is empty and the body itself is the cart.
type envelope struct {
	Cart       json.RawMessage `json:"cart"`
	UserErrors []userError     `json:"userErrors"`
	Warnings   []userError     `json:"warnings"`
	Error      string          `json:"error"`
	Code       string          `json:"code"`
}

func decodeCart(body []byte) (*Cart, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "cart response is not json")
	}
	if err := env.failure(); err != nil {
		return nil, err
	}

	raw := body
	if len(bytes.TrimSpace(env.Cart)) > 0 && !bytes.Equal(bytes.TrimSpace(env.Cart), []byte("null")) {
		raw = env.Cart
	}

	var wc wireCart
	if err := json.Unmarshal(raw, &wc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "cart payload could not be decoded")
	}
	return wc.toCart()
}

func (wc wireCart) toCart() (*Cart, error) {
	if strings.TrimSpace(wc.ID) == "" {
		return nil, malformed("cart.id", "missing")
	}
	if wc.Lines == nil {
		return nil, malformed("cart.lines", "missing")
	}

	cart := &Cart{
		ID:          wc.ID,
		CheckoutURL: wc.CheckoutURL,
		Lines:       make([]CartLine, 0, len(*wc.Lines)),
	}
	for i, wl := range *wc.Lines {
		line, err := wl.toLine(fmt.Sprintf("cart.lines[%d]", i))
		if err != nil {
			return nil, err
		}
		cart.Lines = append(cart.Lines, line)
	}

	cost, err := wc.estimatedTotal()
	if err != nil {
		return nil, err
	}
	cart.EstimatedCost = cost
	return cart, nil
}

func (wc wireCart) estimatedTotal() (Money, error) {
	for _, cost := range []*wireCost{wc.EstimatedCost, wc.Cost} {
		if cost == nil || cost.TotalAmount == nil {
			continue
		}
		return cost.TotalAmount.decode("cart.estimatedCost.totalAmount")
	}
	// Not every function returns cost; fall back to the line sum.
	total := decimal.Zero
	currency := ""
	for _, wl := range *wc.Lines {
		if wl.Merchandise == nil || wl.Quantity == nil {
			continue
		}
		price := wl.Merchandise.Price
		if price == nil {
			price = wl.Merchandise.PriceV2
		}
		money, err := price.decode("cart.lines.merchandise.price")
		if err != nil {
			continue
		}
		if currency == "" {
			currency = money.CurrencyCode
		}
		total = total.Add(money.Amount.Mul(decimal.NewFromInt(int64(*wl.Quantity))))
	}
	return Money{Amount: total, CurrencyCode: currency}, nil
}

func (wl wireLine) toLine(path string) (CartLine, error) {
	if strings.TrimSpace(wl.ID) == "" {
		return CartLine{}, malformed(path+".id", "missing")
	}
	if wl.Quantity == nil {
		return CartLine{}, malformed(path+".quantity", "missing")
	}
	if *wl.Quantity < 0 {
		return CartLine{}, malformed(path+".quantity", "negative")
	}
	if wl.Merchandise == nil || strings.TrimSpace(wl.Merchandise.ID) == "" {
		return CartLine{}, malformed(path+".merchandise.id", "missing")
	}

	wm := wl.Merchandise
	priceSrc := wm.Price
	if priceSrc == nil {
		priceSrc = wm.PriceV2
	}
	price, err := priceSrc.decode(path + ".merchandise.price")
	if err != nil {
		return CartLine{}, err
	}

	merch := Merchandise{
		ID:    wm.ID,
		Title: wm.Title,
		Price: price,
		Product: Product{
			Title: wm.Product.Title,
		},
	}
	if wm.CompareAtPrice != nil && strings.TrimSpace(wm.CompareAtPrice.Amount) != "" {
		compareAt, err := wm.CompareAtPrice.decode(path + ".merchandise.compareAtPrice")
		if err != nil {
			return CartLine{}, err
		}
		merch.CompareAtPrice = &compareAt
	}
	images := []wireImage(wm.Product.Images)
	if len(images) == 0 && wm.Product.FeaturedImage != nil {
		images = []wireImage{*wm.Product.FeaturedImage}
	}
	for _, img := range images {
		url := img.URL
		if url == "" {
			url = img.Src
		}
		if url == "" {
			continue
		}
		merch.Product.Images = append(merch.Product.Images, Image{URL: url, AltText: img.AltText})
	}

	return CartLine{ID: wl.ID, Quantity: *wl.Quantity, Merchandise: merch}, nil
}

// failure turns userErrors, stock warnings and function-level errors into typed errors.
func (e envelope) failure() error {
	problems := append([]userError{}, e.UserErrors...)
	if e.Error != "" || e.Code != "" {
		problems = append(problems, userError{Code: e.Code, Message: e.Error})
	}
	for _, w := range e.Warnings {
		if isStockProblem(w) {
			problems = append(problems, w)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return classifyProblems(problems)
}

func classifyProblems(problems []userError) error {
	messages := make([]string, 0, len(problems))
	for _, p := range problems {
		messages = append(messages, strings.TrimSpace(p.Message))
	}
	details := map[string]any{"messages": messages}

	for _, p := range problems {
		if isStockProblem(p) {
			return pkgerrors.New(pkgerrors.CodeStockExhausted, "not enough stock for requested quantity").WithDetails(details)
		}
	}
	for _, p := range problems {
		if isMissingLineProblem(p) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
	}
	return pkgerrors.New(pkgerrors.CodeDependency, "cart service rejected the request").WithDetails(details)
}

func isStockProblem(p userError) bool {
	if _, ok := stockErrorCodes[strings.ToUpper(strings.TrimSpace(p.Code))]; ok {
		return true
	}
	return strings.Contains(strings.ToLower(p.Message), "stock")
}

func isMissingLineProblem(p userError) bool {
	code := strings.ToUpper(strings.TrimSpace(p.Code))
	if code != "NOT_FOUND" && code != "INVALID" {
		return false
	}
	msg := strings.ToLower(p.Message)
	if strings.Contains(msg, "line") {
		return true
	}
	for _, f := range p.Field {
		if strings.Contains(strings.ToLower(f), "line") {
			return true
		}
	}
	return false
}

func malformed(path, problem string) error {
	return pkgerrors.New(pkgerrors.CodeMalformedResponse, fmt.Sprintf("%s: %s", path, problem))
}

// scalarText renders a JSON string or number as its textual value.
func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(trimmed)
}
