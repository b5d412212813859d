package shopify

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

// Field names seen across the order payload's history, tried in order.
var (
	orderDateFields     = []string{"processedAt", "createdAt", "processed_at", "created_at"}
	orderStatusFields   = []string{"financialStatus", "financial_status", "financial_status_label", "displayFinancialStatus"}
	orderSubtotalFields = []string{"subtotal", "subtotalPrice", "subtotal_price", "currentSubtotalPrice"}
	orderLinesFields    = []string{"lineItems", "line_items"}
	lineUnitPriceFields = []string{"unitPrice", "price", "originalUnitPrice", "unit_price", "original_price"}
	lineQuantityFields  = []string{"quantity", "currentQuantity"}
)

// Layouts without an offset are read in the client's order location, the
// same zone that expands date-only promotion bounds.
var (
	offsetDateLayouts = []string{time.RFC3339Nano, time.RFC3339}
	localDateLayouts  = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
)

type rawObject map[string]json.RawMessage

func decodeOrders(body []byte, loc *time.Location) ([]Order, error) {
	trimmed := bytes.TrimSpace(body)
	var list connection[rawObject]
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Orders *connection[rawObject] `json:"orders"`
			Error  string                 `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "orders response could not be decoded")
		}
		if wrapped.Error != "" {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders lookup failed").WithDetails(map[string]any{"messages": []string{wrapped.Error}})
		}
		if wrapped.Orders == nil {
			return nil, malformed("orders", "missing")
		}
		list = *wrapped.Orders
	} else if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "orders response could not be decoded")
	}

	orders := make([]Order, 0, len(list))
	for _, raw := range list {
		if raw == nil {
			continue
		}
		orders = append(orders, raw.toOrder(loc))
	}
	return orders, nil
}

func (o rawObject) toOrder(loc *time.Location) Order {
	order := Order{
		ID:              o.firstString("id", "order_id"),
		Name:            o.firstString("name", "order_number"),
		FinancialStatus: o.firstString(orderStatusFields...),
		Subtotal:        o.firstAmount(orderSubtotalFields...),
	}
	if raw := o.firstString(orderDateFields...); raw != "" {
		order.EffectiveDate = parseOrderDate(raw, loc)
	}
	for _, key := range orderLinesFields {
		value, ok := o[key]
		if !ok {
			continue
		}
		var lines connection[rawObject]
		if err := json.Unmarshal(value, &lines); err != nil {
			continue
		}
		for _, line := range lines {
			if line == nil {
				continue
			}
			order.Lines = append(order.Lines, OrderLine{
				Title:     line.firstString("title", "name"),
				Quantity:  line.firstInt(lineQuantityFields...),
				UnitPrice: line.firstAmount(lineUnitPriceFields...),
			})
		}
		break
	}
	return order
}

func (o rawObject) firstString(keys ...string) string {
	for _, key := range keys {
		if v := scalarText(o[key]); v != "" {
			return v
		}
	}
	return ""
}

func (o rawObject) firstInt(keys ...string) int {
	for _, key := range keys {
		text := scalarText(o[key])
		if text == "" {
			continue
		}
		if n, err := strconv.Atoi(text); err == nil {
			return n
		}
		if d, err := decimal.NewFromString(text); err == nil {
			return int(d.IntPart())
		}
	}
	return 0
}

func (o rawObject) firstAmount(keys ...string) Amount {
	for _, key := range keys {
		if amt := parseAmount(o[key]); amt.Present {
			return amt
		}
	}
	return Amount{}
}

// parseAmount reads a scalar or a money object ({amount} or {shopMoney:{amount}}).
func parseAmount(raw json.RawMessage) Amount {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Amount{}
	}
	if trimmed[0] == '{' {
		var obj struct {
			Amount    json.RawMessage `json:"amount"`
			ShopMoney json.RawMessage `json:"shopMoney"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return Amount{}
		}
		if amt := parseAmount(obj.Amount); amt.Present {
			return amt
		}
		return parseAmount(obj.ShopMoney)
	}
	text := scalarText(trimmed)
	if text == "" {
		return Amount{}
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return Amount{}
	}
	return Amount{
		Value:    value,
		Integral: !strings.ContainsAny(text, ".eE"),
		Present:  true,
	}
}

func parseOrderDate(raw string, loc *time.Location) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range offsetDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localDateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}
