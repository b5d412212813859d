package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
	pkgAuth "github.com/angelmondragon/storefront-core/pkg/auth"
	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/google/uuid"
)

type deviceSessionResponse struct {
	DeviceID    string    `json:"device_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Renewed     bool      `json:"renewed"`
}

// DeviceSession mints a device token. A request carrying a previous token,
// expired or not, keeps that device id so the device keeps its cart.
func DeviceSession(cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := uuid.New()
		renewed := false

		if token := middleware.BearerToken(r); token != "" {
			claims, err := pkgAuth.ParseDeviceTokenAllowExpired(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeUnauthorized, err, "invalid token"))
				return
			}
			deviceID = claims.DeviceID
			renewed = true
		}

		now := time.Now().UTC()
		token, err := pkgAuth.MintDeviceToken(cfg, now, pkgAuth.DeviceTokenPayload{DeviceID: deviceID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeInternal, err, "mint device token"))
			return
		}

		if logg != nil {
			ctx := logg.WithField(logg.WithDeviceID(r.Context(), deviceID.String()), "renewed", renewed)
			logg.Info(ctx, "device session issued")
		}

		status := http.StatusCreated
		if renewed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, deviceSessionResponse{
			DeviceID:    deviceID.String(),
			AccessToken: token,
			ExpiresAt:   now.Add(cfg.TokenTTL()),
			Renewed:     renewed,
		})
	}
}
