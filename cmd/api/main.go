package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskhive/taskhive-backend/api/routes"
	authsvc "github.com/taskhive/taskhive-backend/internal/auth"
	"github.com/taskhive/taskhive-backend/internal/billing"
	subscriptionsvc "github.com/taskhive/taskhive-backend/internal/subscriptions"
	todolistsvc "github.com/taskhive/taskhive-backend/internal/todolists"
	todosvc "github.com/taskhive/taskhive-backend/internal/todos"
	"github.com/taskhive/taskhive-backend/internal/users"
	webhooksvc "github.com/taskhive/taskhive-backend/internal/webhooks"
	"github.com/taskhive/taskhive-backend/pkg/config"
	"github.com/taskhive/taskhive-backend/pkg/db"
	"github.com/taskhive/taskhive-backend/pkg/logger"
	"github.com/taskhive/taskhive-backend/pkg/metrics"
	"github.com/taskhive/taskhive-backend/pkg/migrate"
	"github.com/taskhive/taskhive-backend/pkg/redis"
	"github.com/taskhive/taskhive-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to initialize stripe", err)
		os.Exit(1)
	}
	gateway := billing.NewStripeGateway(stripeClient)

	userRepo := users.NewRepository(dbClient.DB())
	listRepo := todolistsvc.NewRepository(dbClient.DB())
	todoRepo := todosvc.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	authService, err := authsvc.NewService(authsvc.ServiceParams{
		Logger:   logg,
		Users:    userRepo,
		JWT:      cfg.JWT,
		Password: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	todoListService, err := todolistsvc.NewService(todolistsvc.ServiceParams{
		Logger: logg,
		Lists:  listRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create todo list service", err)
		os.Exit(1)
	}

	todoService, err := todosvc.NewService(todosvc.ServiceParams{
		Logger:       logg,
		Todos:        todoRepo,
		Lists:        listRepo,
		Users:        userRepo,
		Subscription: cfg.Subscription,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create todo service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptionsvc.NewService(subscriptionsvc.ServiceParams{
		Logger:       logg,
		Users:        userRepo,
		Todos:        todoRepo,
		Gateway:      gateway,
		Stripe:       cfg.Stripe,
		Subscription: cfg.Subscription,
		FrontendURL:  cfg.App.FrontendBaseURL(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	webhookGuard := webhooksvc.NewIdempotencyGuard(redisClient, cfg.Subscription.WebhookGuardTTL)
	webhookService, err := webhooksvc.NewService(webhooksvc.ServiceParams{
		Logger:  logg,
		Users:   userRepo,
		Billing: billingRepo,
		Tx:      dbClient,
		Guard:   webhookGuard,
		Metrics: webhookMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			stripeClient,
			webhookMetrics,
			authService,
			todoListService,
			todoService,
			subscriptionService,
			webhookService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
