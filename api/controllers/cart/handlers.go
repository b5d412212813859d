package cart

import (
	"net/http"
	"net/url"
	"strings"

	cartdto "github.com/angelmondragon/storefront-core/api/controllers/cart/dto"
	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
	"github.com/angelmondragon/storefront-core/api/validators"
	cartsvc "github.com/angelmondragon/storefront-core/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type snapshotFunc func(r *http.Request, deviceID string) (cartsvc.Snapshot, error)

// snapshotHandler wraps the shared device lookup and snapshot rendering.
func snapshotHandler(svc cartsvc.Service, logg *logger.Logger, status int, fn snapshotFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		deviceID, err := deviceIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := fn(r, deviceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, newCartView(snap))
	}
}

// CartInitialize restores the device's cart or creates one.
func CartInitialize(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return snapshotHandler(svc, logg, http.StatusOK, func(r *http.Request, deviceID string) (cartsvc.Snapshot, error) {
		return svc.Initialize(r.Context(), deviceID)
	})
}

// CartFetch refreshes the cart from the cart service. A failed refresh
// serves the last known cart flagged stale.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return snapshotHandler(svc, logg, http.StatusOK, func(r *http.Request, deviceID string) (cartsvc.Snapshot, error) {
		return svc.Details(r.Context(), deviceID)
	})
}

func CartAddLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return snapshotHandler(svc, logg, http.StatusCreated, func(r *http.Request, deviceID string) (cartsvc.Snapshot, error) {
		var payload cartdto.AddLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return cartsvc.Snapshot{}, err
		}
		variantID := validators.SanitizeString(payload.VariantID, maxIDLength)
		return svc.AddLine(r.Context(), deviceID, variantID, addQuantity(payload))
	})
}

func CartUpdateLines(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return snapshotHandler(svc, logg, http.StatusOK, func(r *http.Request, deviceID string) (cartsvc.Snapshot, error) {
		var payload cartdto.UpdateLinesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return cartsvc.Snapshot{}, err
		}
		return svc.UpdateLines(r.Context(), deviceID, toLineUpdates(payload))
	})
}

func CartRemoveLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return snapshotHandler(svc, logg, http.StatusOK, func(r *http.Request, deviceID string) (cartsvc.Snapshot, error) {
		lineID, err := lineIDParam(r)
		if err != nil {
			return cartsvc.Snapshot{}, err
		}
		return svc.RemoveLine(r.Context(), deviceID, lineID)
	})
}

// CartSetQuantity records a local quantity without pushing it; the next
// sync or quantity push sends it.
func CartSetQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return snapshotHandler(svc, logg, http.StatusOK, func(r *http.Request, deviceID string) (cartsvc.Snapshot, error) {
		lineID, err := lineIDParam(r)
		if err != nil {
			return cartsvc.Snapshot{}, err
		}
		var payload cartdto.SetQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return cartsvc.Snapshot{}, err
		}
		return svc.SetLocalQuantity(r.Context(), deviceID, lineID, payload.Quantity)
	})
}

func CartIncrement(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return snapshotHandler(svc, logg, http.StatusOK, func(r *http.Request, deviceID string) (cartsvc.Snapshot, error) {
		lineID, err := lineIDParam(r)
		if err != nil {
			return cartsvc.Snapshot{}, err
		}
		return svc.Increment(r.Context(), deviceID, lineID)
	})
}

func CartDecrement(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return snapshotHandler(svc, logg, http.StatusOK, func(r *http.Request, deviceID string) (cartsvc.Snapshot, error) {
		lineID, err := lineIDParam(r)
		if err != nil {
			return cartsvc.Snapshot{}, err
		}
		return svc.Decrement(r.Context(), deviceID, lineID)
	})
}

// CartSync pushes pending local quantities, typically when the cart screen closes.
func CartSync(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		deviceID, err := deviceIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, synced, err := svc.Sync(r.Context(), deviceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartdto.SyncResponse{Synced: synced, Cart: newCartView(snap)})
	}
}

func CartCheckout(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		deviceID, err := deviceIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		checkoutURL, err := svc.BeginCheckout(r.Context(), deviceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, cartdto.CheckoutResponse{CheckoutURL: checkoutURL})
	}
}

// CartCompleteCheckout receives the URL the checkout web view navigated to
// and resets the cart when it is a completion page.
func CartCompleteCheckout(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		deviceID, err := deviceIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cartdto.CompleteCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		completed, err := svc.CompleteCheckout(r.Context(), deviceID, payload.URL)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartdto.CompleteCheckoutResponse{Completed: completed})
	}
}

func CartReset(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		deviceID, err := deviceIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Reset(r.Context(), deviceID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

const maxIDLength = 256

func deviceIDFromContext(r *http.Request) (string, error) {
	if r == nil {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing")
	}
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "device context missing")
	}
	return deviceID, nil
}

// lineIDParam unescapes the path segment; Shopify line ids are gids that
// clients must percent-encode.
func lineIDParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "lineID")
	lineID, err := url.PathUnescape(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line id")
	}
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "line id is required")
	}
	if len(lineID) > maxIDLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "line id is too long")
	}
	return lineID, nil
}
