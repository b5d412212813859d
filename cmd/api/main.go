package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/storefront-core/api/routes"
	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/cron"
	"github.com/angelmondragon/storefront-core/internal/customers"
	"github.com/angelmondragon/storefront-core/internal/entries"
	"github.com/angelmondragon/storefront-core/internal/orders"
	"github.com/angelmondragon/storefront-core/internal/promotion"
	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/instance"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	"github.com/angelmondragon/storefront-core/pkg/redis"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName     = "storefront-api"
	shutdownTimeout = 10 * time.Second
	cronJobTimeout  = 30 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "storefront api stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	remoteMetrics := metrics.NewRemoteCallMetrics(registry)
	cartMetrics := metrics.NewCartMetrics(registry)
	promotionMetrics := metrics.NewPromotionMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	shopifyClient, err := shopify.NewClient(cfg.Shopify, logg, remoteMetrics, shopify.WithOrderLocation(cfg.Promotion.Location()))
	if err != nil {
		return err
	}

	idStore, err := cart.NewRedisIDStore(redisClient, cfg.Cart.CartIDTTL)
	if err != nil {
		return err
	}
	manager, err := cart.NewManager(cart.ManagerParams{
		Remote:       shopifyClient,
		Store:        idStore,
		Logger:       logg,
		Recorder:     cartMetrics,
		CallTimeout:  cfg.Cart.CallTimeout,
		PushDebounce: cfg.Cart.PushDebounce,
	})
	if err != nil {
		return err
	}
	cartService, err := cart.NewService(manager, logg)
	if err != nil {
		return err
	}

	customerService, err := customers.NewService(redisClient)
	if err != nil {
		return err
	}

	tracker := promotion.NewTracker()
	orderService, err := orders.NewService(orders.ServiceParams{
		Logger:   logg,
		Profiles: customerService,
		Orders:   shopifyClient,
		Windows:  tracker,
		Options:  entries.DefaultOrderOptions(),
	})
	if err != nil {
		return err
	}

	scheduler, err := newScheduler(cfg, logg, shopifyClient, tracker, promotionMetrics, cronMetrics, manager)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr: listenAddr(cfg),
		Handler: routes.NewRouter(cfg, logg, redisClient, registry, httpMetrics, routes.Services{
			Cart:      cartService,
			Customers: customerService,
			Orders:    orderService,
			Promotion: tracker,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     server.Addr,
		"instance": instance.GetID(),
	})
	logg.Info(logCtx, "starting storefront api")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := scheduler.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logg.Info(logCtx, "storefront api shut down gracefully")
	return nil
}

func newScheduler(
	cfg *config.Config,
	logg *logger.Logger,
	shopifyClient *shopify.Client,
	tracker *promotion.Tracker,
	promotionMetrics *metrics.PromotionMetrics,
	cronMetrics *metrics.CronJobMetrics,
	manager *cart.Manager,
) (*cron.Service, error) {
	refreshJob, err := promotion.NewRefreshJob(promotion.RefreshJobParams{
		Logger:   logg,
		Fetcher:  shopifyClient,
		Tracker:  tracker,
		Location: cfg.Promotion.Location(),
		Interval: cfg.Promotion.RefreshInterval,
	})
	if err != nil {
		return nil, err
	}
	evaluateJob, err := promotion.NewEvaluateJob(promotion.EvaluateJobParams{
		Logger:   logg,
		Tracker:  tracker,
		Recorder: promotionMetrics,
	})
	if err != nil {
		return nil, err
	}

	jobs := []cron.Job{refreshJob, evaluateJob}
	if cfg.Cron.SweepEnabled {
		sweepJob, err := cart.NewSweepJob(cart.SweepJobParams{
			Logger:  logg,
			Manager: manager,
			IdleTTL: cfg.Cart.EngineIdleTTL,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, sweepJob)
	}

	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       cron.NewLocalLock(),
		Metrics:    cronMetrics,
		Interval:   cfg.Promotion.EvaluateInterval,
		JobTimeout: cronJobTimeout,
	})
}

func listenAddr(cfg *config.Config) string {
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	return ":" + port
}
