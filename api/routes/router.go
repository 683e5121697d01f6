package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskhive/taskhive-backend/api/controllers"
	webhookcontrollers "github.com/taskhive/taskhive-backend/api/controllers/webhooks"
	"github.com/taskhive/taskhive-backend/api/middleware"
	authsvc "github.com/taskhive/taskhive-backend/internal/auth"
	subscriptionsvc "github.com/taskhive/taskhive-backend/internal/subscriptions"
	todolistsvc "github.com/taskhive/taskhive-backend/internal/todolists"
	todosvc "github.com/taskhive/taskhive-backend/internal/todos"
	webhooksvc "github.com/taskhive/taskhive-backend/internal/webhooks"
	"github.com/taskhive/taskhive-backend/pkg/config"
	"github.com/taskhive/taskhive-backend/pkg/db"
	"github.com/taskhive/taskhive-backend/pkg/logger"
	"github.com/taskhive/taskhive-backend/pkg/metrics"
	"github.com/taskhive/taskhive-backend/pkg/redis"
	"github.com/taskhive/taskhive-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	stripeClient *stripe.Client,
	webhookMetrics *metrics.WebhookMetrics,
	authService *authsvc.Service,
	todoListService *todolistsvc.Service,
	todoService *todosvc.Service,
	subscriptionService *subscriptionsvc.Service,
	webhookService *webhooksvc.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	// The webhook endpoint authenticates by signature, not bearer token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhookService, stripeClient, webhookMetrics, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.AuthRegister(authService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.With(middleware.Auth(cfg.JWT, logg)).Get("/me", controllers.AuthMe(authService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/lists", func(r chi.Router) {
			r.Post("/", controllers.TodoListCreate(todoListService, logg))
			r.Get("/", controllers.TodoListIndex(todoListService, logg))
			r.Route("/{listID}", func(r chi.Router) {
				r.Get("/", controllers.TodoListGet(todoListService, logg))
				r.Put("/", controllers.TodoListRename(todoListService, logg))
				r.Delete("/", controllers.TodoListDelete(todoListService, logg))

				r.Post("/todos", controllers.TodoCreate(todoService, logg))
				r.Get("/todos", controllers.TodoIndex(todoService, logg))
			})
		})

		r.Route("/todos/{todoID}", func(r chi.Router) {
			r.Get("/", controllers.TodoGet(todoService, logg))
			r.Put("/", controllers.TodoUpdate(todoService, logg))
			r.Delete("/", controllers.TodoDelete(todoService, logg))
		})

		r.Route("/subscription", func(r chi.Router) {
			r.Get("/status", controllers.SubscriptionStatus(subscriptionService, logg))
			r.Post("/checkout", controllers.SubscriptionCheckout(subscriptionService, logg))
			r.Post("/cancel", controllers.SubscriptionCancel(subscriptionService, logg))
			r.Post("/portal", controllers.SubscriptionPortal(subscriptionService, logg))
			r.Post("/verify-session", controllers.SubscriptionVerifySession(subscriptionService, logg))
		})
	})

	return r
}
