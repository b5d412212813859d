package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-core/api/responses"
	"github.com/angelmondragon/storefront-core/internal/promotion"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/shopspring/decimal"
)

type promotionSource interface {
	Snapshot() promotion.State
}

type promotionResponse struct {
	Loaded              bool            `json:"loaded"`
	Active              bool            `json:"active"`
	Multiplier          decimal.Decimal `json:"multiplier"`
	EffectiveMultiplier decimal.Decimal `json:"effective_multiplier"`
	StartDate           *time.Time      `json:"start_date,omitempty"`
	EndDate             *time.Time      `json:"end_date,omitempty"`
	EvaluatedAt         time.Time       `json:"evaluated_at"`
}

// PromotionCurrent serves the promotional window evaluated at request time.
func PromotionCurrent(tracker promotionSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tracker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion tracker unavailable"))
			return
		}
		state := tracker.Snapshot()
		resp := promotionResponse{
			Loaded:              state.Loaded,
			Active:              state.Active,
			Multiplier:          state.Multiplier,
			EffectiveMultiplier: state.EffectiveMultiplier,
			EvaluatedAt:         state.EvaluatedAt,
		}
		if !state.StartDate.IsZero() {
			start := state.StartDate
			resp.StartDate = &start
		}
		if !state.EndDate.IsZero() {
			end := state.EndDate
			resp.EndDate = &end
		}
		responses.WriteSuccess(w, resp)
	}
}
