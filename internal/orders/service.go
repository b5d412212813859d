package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-core/internal/customers"
	"github.com/angelmondragon/storefront-core/internal/entries"
	"github.com/angelmondragon/storefront-core/internal/promotion"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
	"github.com/shopspring/decimal"
)

type profileReader interface {
	Get(ctx context.Context, deviceID string) (customers.Profile, error)
}

type orderFetcher interface {
	FetchCustomerOrders(ctx context.Context, email string) ([]shopify.Order, error)
}

type windowSource interface {
	Window() (promotion.Window, bool)
}

// OrderEntries is one historical order with the entries it earned.
type OrderEntries struct {
	ID              string
	Name            string
	Date            time.Time
	FinancialStatus string
	Subtotal        decimal.Decimal
	Entries         int64
}

// Review summarises the entries a customer's orders earned in the current promotion.
type Review struct {
	Email      string
	Multiplier decimal.Decimal
	StartDate  time.Time
	EndDate    time.Time
	Orders     []OrderEntries
	Total      int64
}

// Service reviews order history against the promotional window.
type Service interface {
	Review(ctx context.Context, deviceID string) (Review, error)
}

// ServiceParams configures the order review service.
type ServiceParams struct {
	Logger   *logger.Logger
	Profiles profileReader
	Orders   orderFetcher
	Windows  windowSource
	Options  entries.OrderOptions
}

type service struct {
	logg     *logger.Logger
	profiles profileReader
	orders   orderFetcher
	windows  windowSource
	opts     entries.OrderOptions
}

func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order fetcher required")
	}
	if params.Windows == nil {
		return nil, fmt.Errorf("promotion window source required")
	}
	return &service{
		logg:     params.Logger,
		profiles: params.Profiles,
		orders:   params.Orders,
		windows:  params.Windows,
		opts:     params.Options,
	}, nil
}

// Review values every order with the configured window, so orders placed
// during a promotion keep their entries after it ends.
func (s *service) Review(ctx context.Context, deviceID string) (Review, error) {
	profile, err := s.profiles.Get(ctx, deviceID)
	if err != nil {
		return Review{}, err
	}
	if profile.Anonymous() {
		return Review{}, pkgerrors.New(pkgerrors.CodeValidation, "customer email required to review orders")
	}

	history, err := s.orders.FetchCustomerOrders(ctx, profile.Email)
	if err != nil {
		return Review{}, err
	}

	window, _ := s.windows.Window()
	review := Review{
		Email:      profile.Email,
		Multiplier: window.Multiplier,
		StartDate:  window.Start,
		EndDate:    window.End,
		Orders:     make([]OrderEntries, 0, len(history)),
	}
	for _, order := range history {
		earned := entries.ComputeOrderWith(order, window, profile.Tags, s.opts)
		review.Orders = append(review.Orders, OrderEntries{
			ID:              order.ID,
			Name:            order.Name,
			Date:            order.EffectiveDate,
			FinancialStatus: order.FinancialStatus,
			Subtotal:        entries.OrderSubtotal(order, s.opts),
			Entries:         earned,
		})
		review.Total += earned
	}

	logCtx := s.logg.WithFields(s.logg.WithDeviceID(ctx, deviceID), map[string]any{
		"orders":  len(history),
		"entries": review.Total,
	})
	s.logg.Info(logCtx, "order entries reviewed")
	return review, nil
}
