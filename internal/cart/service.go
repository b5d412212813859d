package cart

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
)

// Service exposes device-scoped cart operations to the HTTP layer.
type Service interface {
	Initialize(ctx context.Context, deviceID string) (Snapshot, error)
	Details(ctx context.Context, deviceID string) (Snapshot, error)
	AddLine(ctx context.Context, deviceID, variantID string, quantity int) (Snapshot, error)
	UpdateLines(ctx context.Context, deviceID string, lines []shopify.LineUpdate) (Snapshot, error)
	RemoveLine(ctx context.Context, deviceID, lineID string) (Snapshot, error)
	SetLocalQuantity(ctx context.Context, deviceID, lineID string, quantity int) (Snapshot, error)
	Increment(ctx context.Context, deviceID, lineID string) (Snapshot, error)
	Decrement(ctx context.Context, deviceID, lineID string) (Snapshot, error)
	Sync(ctx context.Context, deviceID string) (Snapshot, bool, error)
	BeginCheckout(ctx context.Context, deviceID string) (string, error)
	CompleteCheckout(ctx context.Context, deviceID, checkoutURL string) (bool, error)
	Reset(ctx context.Context, deviceID string) error
}

type service struct {
	manager *Manager
	logg    *logger.Logger
}

// NewService builds the cart service over a manager.
func NewService(manager *Manager, logg *logger.Logger) (Service, error) {
	if manager == nil {
		return nil, fmt.Errorf("cart manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{manager: manager, logg: logg}, nil
}

// withEngine runs fn against the device's engine, initializing it first so
// a device whose cart was reset gets a fresh cart on its next action.
func (s *service) withEngine(ctx context.Context, deviceID string, ensure bool, fn func(*Engine) error) (*Engine, error) {
	if deviceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "device id required")
	}
	engine, release, err := s.manager.Acquire(deviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquire cart engine")
	}
	defer release()
	if ensure && engine.State() == enums.CartStateUninitialized {
		if err := engine.Initialize(ctx); err != nil {
			return engine, err
		}
	}
	if fn == nil {
		return engine, nil
	}
	return engine, fn(engine)
}

func (s *service) snapshot(ctx context.Context, deviceID string, fn func(context.Context, *Engine) error) (Snapshot, error) {
	engine, err := s.withEngine(ctx, deviceID, true, func(e *Engine) error { return fn(ctx, e) })
	if err != nil {
		return Snapshot{}, err
	}
	return engine.Snapshot(), nil
}

func (s *service) Initialize(ctx context.Context, deviceID string) (Snapshot, error) {
	return s.snapshot(ctx, deviceID, func(context.Context, *Engine) error { return nil })
}

// Details refreshes the cart. Read failures are logged and the last known
// good cart is returned flagged stale.
func (s *service) Details(ctx context.Context, deviceID string) (Snapshot, error) {
	engine, err := s.withEngine(ctx, deviceID, true, nil)
	if err != nil {
		return Snapshot{}, err
	}
	if err := engine.FetchDetails(ctx); err != nil {
		snap := engine.Snapshot()
		if snap.Cart == nil {
			return Snapshot{}, err
		}
		s.logg.Error(s.logg.WithDeviceID(ctx, deviceID), "cart refresh failed; serving last known cart", err)
		snap.Stale = true
		return snap, nil
	}
	return engine.Snapshot(), nil
}

func (s *service) AddLine(ctx context.Context, deviceID, variantID string, quantity int) (Snapshot, error) {
	return s.snapshot(ctx, deviceID, func(ctx context.Context, e *Engine) error {
		return e.AddLine(ctx, variantID, quantity)
	})
}

func (s *service) UpdateLines(ctx context.Context, deviceID string, lines []shopify.LineUpdate) (Snapshot, error) {
	return s.snapshot(ctx, deviceID, func(ctx context.Context, e *Engine) error {
		return e.UpdateLines(ctx, lines)
	})
}

func (s *service) RemoveLine(ctx context.Context, deviceID, lineID string) (Snapshot, error) {
	return s.snapshot(ctx, deviceID, func(ctx context.Context, e *Engine) error {
		return e.RemoveLine(ctx, lineID)
	})
}

func (s *service) SetLocalQuantity(ctx context.Context, deviceID, lineID string, quantity int) (Snapshot, error) {
	return s.snapshot(ctx, deviceID, func(_ context.Context, e *Engine) error {
		return e.SetLocalQuantity(lineID, quantity)
	})
}

func (s *service) Increment(ctx context.Context, deviceID, lineID string) (Snapshot, error) {
	return s.snapshot(ctx, deviceID, func(ctx context.Context, e *Engine) error {
		return e.Increment(ctx, lineID)
	})
}

func (s *service) Decrement(ctx context.Context, deviceID, lineID string) (Snapshot, error) {
	return s.snapshot(ctx, deviceID, func(ctx context.Context, e *Engine) error {
		return e.Decrement(ctx, lineID)
	})
}

func (s *service) Sync(ctx context.Context, deviceID string) (Snapshot, bool, error) {
	var synced bool
	snap, err := s.snapshot(ctx, deviceID, func(ctx context.Context, e *Engine) error {
		var syncErr error
		synced, syncErr = e.SyncOnExit(ctx)
		return syncErr
	})
	return snap, synced, err
}

func (s *service) BeginCheckout(ctx context.Context, deviceID string) (string, error) {
	var checkoutURL string
	_, err := s.withEngine(ctx, deviceID, true, func(e *Engine) error {
		var checkoutErr error
		checkoutURL, checkoutErr = e.BeginCheckout(ctx)
		return checkoutErr
	})
	return checkoutURL, err
}

func (s *service) CompleteCheckout(ctx context.Context, deviceID, checkoutURL string) (bool, error) {
	var reset bool
	_, err := s.withEngine(ctx, deviceID, false, func(e *Engine) error {
		var completeErr error
		reset, completeErr = e.CompleteCheckout(ctx, checkoutURL)
		return completeErr
	})
	return reset, err
}

func (s *service) Reset(ctx context.Context, deviceID string) error {
	_, err := s.withEngine(ctx, deviceID, false, func(e *Engine) error {
		return e.ResetAfterCheckout(ctx)
	})
	return err
}
