package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

const (
	fnCreateCart         = "createCart"
	fnGetCart            = "getCart"
	fnAddToCart          = "addToCart"
	fnUpdateCart         = "updateCart"
	fnDeleteCartLine     = "deleteCartLine"
	fnCreateCheckout     = "createCheckout"
	fnGetPromotionInfo   = "getPromotionInfo"
	fnGetCustomerOrders  = "getCustomerOrders"
	apiKeyHeader         = "X-Storefront-Api-Key"
	defaultHTTPTimeout   = 10 * time.Second
	maxResponseBodyBytes = 4 << 20
)

var errLoggerRequired = errors.New("shopify logger is required")

// Observer receives one sample per remote function call.
type Observer interface {
	ObserveCall(function, outcome string, duration time.Duration)
}

// Client talks to the cloud functions that wrap the Shopify Storefront and Admin APIs.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
	observer   Observer
	orderLoc   *time.Location
}

// Option tweaks a Client built by NewClient.
type Option func(*Client)

// WithOrderLocation sets the zone for order timestamps that carry no offset.
// The default is UTC.
func WithOrderLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.orderLoc = loc
		}
	}
}

// NewClient validates the functions URL and builds a client with a bounded HTTP timeout.
func NewClient(cfg config.ShopifyConfig, logg *logger.Logger, observer Observer, opts ...Option) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.FunctionsURL), "/")
	if base == "" {
		return nil, errors.New("shopify functions url is required")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c := &Client{
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logg,
		observer:   observer,
		orderLoc:   time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateCart asks the remote service for a fresh cart and returns its id.
func (c *Client) CreateCart(ctx context.Context) (string, error) {
	body, err := c.call(ctx, fnCreateCart, struct{}{})
	if err != nil {
		return "", err
	}
	var resp struct {
		ID     string `json:"id"`
		CartID string `json:"cartId"`
		Cart   *struct {
			ID string `json:"id"`
		} `json:"cart"`
		UserErrors []userError `json:"userErrors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "create cart response could not be decoded")
	}
	if len(resp.UserErrors) > 0 {
		return "", classifyProblems(resp.UserErrors)
	}
	id := firstNonEmpty(resp.ID, resp.CartID)
	if id == "" && resp.Cart != nil {
		id = strings.TrimSpace(resp.Cart.ID)
	}
	if id == "" {
		return "", malformed("createCart.id", "missing")
	}
	return id, nil
}

// FetchCart retrieves the cart by id.
func (c *Client) FetchCart(ctx context.Context, cartID string) (*Cart, error) {
	if err := requireCartID(cartID); err != nil {
		return nil, err
	}
	body, err := c.call(ctx, fnGetCart, map[string]any{"cartId": cartID})
	if err != nil {
		return nil, err
	}
	return decodeCart(body)
}

// AddToCart adds a variant and returns the full updated cart.
func (c *Client) AddToCart(ctx context.Context, cartID, variantID string, quantity int) (*Cart, error) {
	if err := requireCartID(cartID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(variantID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	body, err := c.call(ctx, fnAddToCart, map[string]any{
		"cartId":    cartID,
		"variantId": variantID,
		"quantity":  quantity,
	})
	if err != nil {
		return nil, err
	}
	return decodeCart(body)
}

// UpdateCart applies a batch of line quantities. Quantity 0 removes a line.
func (c *Client) UpdateCart(ctx context.Context, cartID string, lines []LineUpdate) (*Cart, error) {
	if err := requireCartID(cartID); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	for _, line := range lines {
		if strings.TrimSpace(line.ID) == "" || line.Quantity < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line updates need an id and a non-negative quantity")
		}
	}
	body, err := c.call(ctx, fnUpdateCart, map[string]any{
		"cartId": cartID,
		"lines":  lines,
	})
	if err != nil {
		return nil, err
	}
	return decodeCart(body)
}

// DeleteCartLine removes a single line and returns the full updated cart.
func (c *Client) DeleteCartLine(ctx context.Context, cartID, lineID string) (*Cart, error) {
	if err := requireCartID(cartID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(lineID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "line id is required")
	}
	body, err := c.call(ctx, fnDeleteCartLine, map[string]any{
		"cartId": cartID,
		"lineId": lineID,
	})
	if err != nil {
		return nil, err
	}
	return decodeCart(body)
}

// CreateCheckout requests a hosted checkout session and returns its URL.
func (c *Client) CreateCheckout(ctx context.Context, lines []CheckoutLine) (string, error) {
	if len(lines) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	body, err := c.call(ctx, fnCreateCheckout, map[string]any{"lines": lines})
	if err != nil {
		return "", err
	}
	var resp struct {
		CheckoutURL string      `json:"checkoutUrl"`
		WebURL      string      `json:"webUrl"`
		URL         string      `json:"url"`
		UserErrors  []userError `json:"userErrors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "checkout response could not be decoded")
	}
	if len(resp.UserErrors) > 0 {
		return "", classifyProblems(resp.UserErrors)
	}
	checkoutURL := firstNonEmpty(resp.CheckoutURL, resp.WebURL, resp.URL)
	if checkoutURL == "" {
		return "", malformed("createCheckout.checkoutUrl", "missing")
	}
	return checkoutURL, nil
}

// FetchPromotionInfo returns the raw promotional config.
func (c *Client) FetchPromotionInfo(ctx context.Context) (PromotionInfo, error) {
	body, err := c.call(ctx, fnGetPromotionInfo, struct{}{})
	if err != nil {
		return PromotionInfo{}, err
	}
	var resp struct {
		Multiplier json.RawMessage `json:"multiplier"`
		StartDate  string          `json:"startDate"`
		EndDate    string          `json:"endDate"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return PromotionInfo{}, pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "promotion response could not be decoded")
	}
	return PromotionInfo{
		Multiplier: scalarText(resp.Multiplier),
		StartDate:  strings.TrimSpace(resp.StartDate),
		EndDate:    strings.TrimSpace(resp.EndDate),
	}, nil
}

// FetchCustomerOrders lists a customer's historical orders by email.
func (c *Client) FetchCustomerOrders(ctx context.Context, email string) ([]Order, error) {
	if strings.TrimSpace(email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	body, err := c.call(ctx, fnGetCustomerOrders, map[string]any{"email": email})
	if err != nil {
		return nil, err
	}
	return decodeOrders(body, c.orderLoc)
}

// call POSTs the payload to a function and returns the body of a 2xx reply.
func (c *Client) call(ctx context.Context, function string, payload any) ([]byte, error) {
	start := time.Now()
	body, err := c.do(ctx, function, payload)
	c.observe(function, err, time.Since(start))
	if err != nil {
		c.log(ctx, "error", function, map[string]any{"error": err.Error(), "duration_ms": time.Since(start).Milliseconds()})
		return nil, err
	}
	c.log(ctx, "response", function, map[string]any{"duration_ms": time.Since(start).Milliseconds()})
	return body, nil
}

func (c *Client) do(ctx context.Context, function string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", function, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+function, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", function, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, function+" request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, function+" response could not be read")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(function, resp.StatusCode, body)
	}
	return body, nil
}

// classifyStatus maps a non-2xx reply. Bodies carrying userErrors win over the status.
func classifyStatus(function string, status int, body []byte) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if failure := env.failure(); failure != nil {
			if typed := pkgerrors.As(failure); typed != nil && typed.Code() != pkgerrors.CodeDependency {
				return failure
			}
		}
	}
	if status == http.StatusNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, function+" target not found")
	}
	return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("%s returned status %d", function, status)).
		WithDetails(map[string]any{"function": function, "status": status})
}

func (c *Client) observe(function string, err error, duration time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		if typed := pkgerrors.As(err); typed != nil {
			outcome = strings.ToLower(string(typed.Code()))
		}
	}
	c.observer.ObserveCall(function, outcome, duration)
}

func (c *Client) log(ctx context.Context, phase, function string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"function": function,
		"phase":    phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Warn(ctx, fmt.Sprintf("shopify %s failed", function))
	default:
		c.logger.Debug(ctx, fmt.Sprintf("shopify %s", phase))
	}
}

func requireCartID(cartID string) error {
	if strings.TrimSpace(cartID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
