package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-core/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-core/api/controllers/cart"
	entrycontrollers "github.com/angelmondragon/storefront-core/api/controllers/entries"
	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/customers"
	"github.com/angelmondragon/storefront-core/internal/orders"
	"github.com/angelmondragon/storefront-core/internal/promotion"
	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-core/pkg/redis"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the Redis surface the HTTP layer needs directly.
type Store interface {
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Services groups the domain services mounted under /api/v1.
type Services struct {
	Cart      cart.Service
	Customers customers.Service
	Orders    orders.Service
	Promotion *promotion.Tracker
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store Store,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	sessionPolicy := middleware.NewRateLimitPolicy(
		"session",
		cfg.RateLimit.SessionWindow,
		cfg.RateLimit.SessionLimit,
	)
	idem := middleware.Idempotency(store, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, store, logg))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(sessionPolicy, store, logg)).Post("/devices/session", controllers.DeviceSession(cfg.JWT, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.DeviceAuth(cfg.JWT, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Post("/", cartcontrollers.CartInitialize(svcs.Cart, logg))
				r.Get("/", cartcontrollers.CartFetch(svcs.Cart, logg))
				r.Delete("/", cartcontrollers.CartReset(svcs.Cart, logg))
				r.With(idem).Post("/lines", cartcontrollers.CartAddLine(svcs.Cart, logg))
				r.Put("/lines", cartcontrollers.CartUpdateLines(svcs.Cart, logg))
				r.Delete("/lines/{lineID}", cartcontrollers.CartRemoveLine(svcs.Cart, logg))
				r.Put("/lines/{lineID}/quantity", cartcontrollers.CartSetQuantity(svcs.Cart, logg))
				r.With(idem).Post("/lines/{lineID}/increment", cartcontrollers.CartIncrement(svcs.Cart, logg))
				r.With(idem).Post("/lines/{lineID}/decrement", cartcontrollers.CartDecrement(svcs.Cart, logg))
				r.Post("/sync", cartcontrollers.CartSync(svcs.Cart, logg))
				r.With(idem).Post("/checkout", cartcontrollers.CartCheckout(svcs.Cart, logg))
				r.With(idem).Post("/checkout/complete", cartcontrollers.CartCompleteCheckout(svcs.Cart, logg))
			})

			r.Route("/entries", func(r chi.Router) {
				r.Post("/quote", entrycontrollers.EntriesQuote(svcs.Customers, svcs.Promotion, logg))
				r.Get("/orders", entrycontrollers.EntriesOrders(svcs.Orders, logg))
			})

			r.Get("/promotion", controllers.PromotionCurrent(svcs.Promotion, logg))

			r.Route("/customer/profile", func(r chi.Router) {
				r.Get("/", controllers.CustomerProfileGet(svcs.Customers, logg))
				r.Put("/", controllers.CustomerProfilePut(svcs.Customers, logg))
				r.Delete("/", controllers.CustomerProfileDelete(svcs.Customers, logg))
			})
		})
	})

	return r
}
