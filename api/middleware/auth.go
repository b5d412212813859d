package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-core/api/responses"
	pkgAuth "github.com/angelmondragon/storefront-core/pkg/auth"
	"github.com/angelmondragon/storefront-core/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

// DeviceAuth admits requests carrying a valid device token and records the
// device id on the request and log contexts.
func DeviceAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(cfg, r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			deviceID := claims.DeviceID.String()
			ctx := WithDeviceID(r.Context(), deviceID)
			if logg != nil {
				ctx = logg.WithDeviceID(ctx, deviceID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(cfg config.JWTConfig, r *http.Request) (*pkgAuth.DeviceTokenClaims, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := pkgAuth.ParseDeviceToken(cfg, token)
	switch {
	case err == nil:
		return claims, nil
	case pkgAuth.IsExpired(err):
		// Clients renew through POST /devices/session with the same token.
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "token expired").
			WithDetails(map[string]any{"renew": "/api/v1/devices/session"})
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
}

// BearerToken returns the Authorization credential. The "Bearer" scheme is
// optional.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, rest, ok := strings.Cut(raw, " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	return raw
}
