package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
	"github.com/angelmondragon/storefront-core/api/validators"
	"github.com/angelmondragon/storefront-core/internal/customers"
	"github.com/angelmondragon/storefront-core/internal/entries"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

type customerProfileRequest struct {
	Email string   `json:"email" validate:"required,email,max=254"`
	Tags  []string `json:"tags" validate:"max=50,dive,max=64"`
}

type customerProfileResponse struct {
	Email          string   `json:"email"`
	Tags           []string `json:"tags"`
	TierMultiplier int64    `json:"tier_multiplier"`
}

func newCustomerProfileResponse(p customers.Profile) customerProfileResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return customerProfileResponse{
		Email:          p.Email,
		Tags:           tags,
		TierMultiplier: entries.TierMultiplier(tags),
	}
}

func CustomerProfileGet(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID, ok := requireDevice(w, r, svc != nil, logg)
		if !ok {
			return
		}
		profile, err := svc.Get(r.Context(), deviceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCustomerProfileResponse(profile))
	}
}

// CustomerProfilePut caches the signed-in customer's email and tier tags for the device.
func CustomerProfilePut(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID, ok := requireDevice(w, r, svc != nil, logg)
		if !ok {
			return
		}
		var payload customerProfileRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profile, err := svc.Save(r.Context(), deviceID, customers.Profile{
			Email: validators.SanitizeString(payload.Email, 254),
			Tags:  payload.Tags,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCustomerProfileResponse(profile))
	}
}

func CustomerProfileDelete(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID, ok := requireDevice(w, r, svc != nil, logg)
		if !ok {
			return
		}
		if err := svc.Clear(r.Context(), deviceID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func requireDevice(w http.ResponseWriter, r *http.Request, available bool, logg *logger.Logger) (string, bool) {
	if !available {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
		return "", false
	}
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing"))
		return "", false
	}
	return deviceID, true
}
