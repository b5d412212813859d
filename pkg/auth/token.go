// Package auth mints and verifies the HS256 device tokens that identify an
// anonymous storefront client.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrMissingDevice = errors.New("token is missing a device id")
)

var signingMethod = jwt.SigningMethodHS256

// DeviceTokenPayload is the input to MintDeviceToken. An empty JTI is
// replaced with a random one.
type DeviceTokenPayload struct {
	DeviceID uuid.UUID
	JTI      string
}

// DeviceTokenClaims is the decoded form of a device token.
type DeviceTokenClaims struct {
	DeviceID uuid.UUID `json:"device_id"`
	jwt.RegisteredClaims
}

func MintDeviceToken(cfg config.JWTConfig, now time.Time, payload DeviceTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrMissingSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.DeviceID == uuid.Nil:
		return "", ErrMissingDevice
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := DeviceTokenClaims{
		DeviceID: payload.DeviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.DeviceID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL())),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign device token: %w", err)
	}
	return signed, nil
}

// ParseDeviceToken verifies signature, issuer and expiry.
func ParseDeviceToken(cfg config.JWTConfig, token string) (*DeviceTokenClaims, error) {
	return verify(cfg, token, false)
}

// ParseDeviceTokenAllowExpired verifies signature and issuer only. Session
// renewal uses it so a lapsed token still resolves to its device.
func ParseDeviceTokenAllowExpired(cfg config.JWTConfig, token string) (*DeviceTokenClaims, error) {
	return verify(cfg, token, true)
}

// IsExpired reports whether err came from an otherwise valid token whose
// exp has passed.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

func verify(cfg config.JWTConfig, token string, allowExpired bool) (*DeviceTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{signingMethod.Alg()})}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	} else {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
	}

	claims := &DeviceTokenClaims{}
	if _, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}

	// WithoutClaimsValidation also skips the issuer check.
	if claims.Issuer != cfg.Issuer {
		return nil, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.DeviceID == uuid.Nil {
		return nil, ErrMissingDevice
	}
	return claims, nil
}
