package entries

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
	"github.com/angelmondragon/storefront-core/api/validators"
	"github.com/angelmondragon/storefront-core/internal/customers"
	entriessvc "github.com/angelmondragon/storefront-core/internal/entries"
	"github.com/angelmondragon/storefront-core/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/shopspring/decimal"
)

type profileReader interface {
	Get(ctx context.Context, deviceID string) (customers.Profile, error)
}

type multiplierSource interface {
	EffectiveMultiplier() decimal.Decimal
}

// QuoteRequest carries a price as the storefront renders it: a string, a
// JSON number or a money object's amount. Tags default to the cached profile.
type QuoteRequest struct {
	Amount   json.RawMessage `json:"amount"`
	Tags     []string        `json:"tags,omitempty" validate:"omitempty,max=50,dive,max=64"`
	Quantity int             `json:"quantity" validate:"omitempty,gte=1,lte=999"`
}

type QuoteResponse struct {
	Entries        int64           `json:"entries"`
	Multiplier     decimal.Decimal `json:"multiplier"`
	TierMultiplier int64           `json:"tier_multiplier"`
	Quantity       int             `json:"quantity"`
}

type OrderEntries struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Date            *time.Time      `json:"date,omitempty"`
	FinancialStatus string          `json:"financial_status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Entries         int64           `json:"entries"`
}

type ReviewResponse struct {
	Email      string          `json:"email"`
	Multiplier decimal.Decimal `json:"multiplier"`
	StartDate  *time.Time      `json:"start_date,omitempty"`
	EndDate    *time.Time      `json:"end_date,omitempty"`
	Orders     []OrderEntries  `json:"orders"`
	Total      int64           `json:"total"`
}

// EntriesQuote values an amount with the live multiplier and the device's tier.
func EntriesQuote(profiles profileReader, multipliers multiplierSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if profiles == nil || multipliers == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entries service unavailable"))
			return
		}
		deviceID := middleware.DeviceIDFromContext(r.Context())
		if deviceID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		var payload QuoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tags := payload.Tags
		if tags == nil {
			profile, err := profiles.Get(r.Context(), deviceID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			tags = profile.Tags
		}
		quantity := payload.Quantity
		if quantity == 0 {
			quantity = 1
		}

		multiplier := multipliers.EffectiveMultiplier()
		responses.WriteSuccess(w, QuoteResponse{
			Entries:        entriessvc.ComputeRaw(rawAmount(payload.Amount), multiplier, tags, quantity),
			Multiplier:     multiplier,
			TierMultiplier: entriessvc.TierMultiplier(tags),
			Quantity:       quantity,
		})
	}
}

// EntriesOrders lists the signed-in customer's orders with the entries each earned.
func EntriesOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		deviceID := middleware.DeviceIDFromContext(r.Context())
		if deviceID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
			return
		}

		review, err := svc.Review(r.Context(), deviceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReviewResponse(review))
	}
}

// rawAmount turns the request's amount into something ParseAmount understands.
// Anything else yields nil, which values to zero entries.
func rawAmount(raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return s
	case '{':
		var money struct {
			Amount json.RawMessage `json:"amount"`
		}
		if err := json.Unmarshal(raw, &money); err != nil || len(money.Amount) == 0 || money.Amount[0] == '{' {
			return nil
		}
		return rawAmount(money.Amount)
	default:
		return json.Number(raw)
	}
}

func newReviewResponse(review orders.Review) ReviewResponse {
	out := ReviewResponse{
		Email:      review.Email,
		Multiplier: review.Multiplier,
		StartDate:  optionalTime(review.StartDate),
		EndDate:    optionalTime(review.EndDate),
		Orders:     make([]OrderEntries, 0, len(review.Orders)),
		Total:      review.Total,
	}
	for _, order := range review.Orders {
		out.Orders = append(out.Orders, OrderEntries{
			ID:              order.ID,
			Name:            order.Name,
			Date:            optionalTime(order.Date),
			FinancialStatus: order.FinancialStatus,
			Subtotal:        order.Subtotal,
			Entries:         order.Entries,
		})
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
