package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/churnguard-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/churnguard-backend/api/controllers/webhooks"
	"github.com/angelmondragon/churnguard-backend/api/middleware"
	stripewebhook "github.com/angelmondragon/churnguard-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/churnguard-backend/pkg/config"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/churnguard-backend/pkg/redis"
)

const multipartOverhead = 64 << 10

// RedisStore is the subset of the redis client the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type signingClient interface {
	SigningSecret() string
}

type webhookGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.ClaimState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

// Dependencies wires services into the router. Nil services produce 500s on
// their routes rather than panics.
type Dependencies struct {
	DB             controllers.Pinger
	Redis          RedisStore
	Metrics        http.Handler
	Accounts       controllers.AccountService
	ImportStarter  controllers.ImportStarter
	ImportReader   controllers.ImportReader
	OpenProvider   controllers.ProviderSourceFactory
	Subscriptions  controllers.AtRiskLister
	StripeClient   signingClient
	StripeWebhooks webhookcontrollers.StripeWebhookService
	WebhookGuard   webhookGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	ready := map[string]controllers.Pinger{}
	if deps.DB != nil {
		ready["postgres"] = deps.DB
	}
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhooks, deps.StripeClient, deps.WebhookGuard, logg))
	})

	importPolicy := middleware.RateLimitPolicy{
		Name:   "imports",
		Limit:  cfg.Imports.RateLimit,
		Window: cfg.Imports.RateWindow,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/me", controllers.AccountProvision(deps.Accounts, logg))
			r.Get("/me", controllers.AccountGet(deps.Accounts, logg))
		})

		r.Route("/imports", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(chimw.RequestSize(cfg.Imports.MaxUpload + multipartOverhead))
				r.Use(middleware.Idempotency(deps.Redis, cfg.Webhooks.IdempotencyTTL, logg))
				r.Use(middleware.UserRateLimit(importPolicy, deps.Redis, logg))
				r.Post("/csv", controllers.ImportCSVUpload(deps.ImportStarter, cfg.Imports.MaxUpload, logg))
				r.Post("/stripe", controllers.ImportStripeSync(deps.ImportStarter, deps.OpenProvider, logg))
			})
			r.Get("/", controllers.ImportList(deps.ImportReader, logg))
			r.Get("/{batchId}", controllers.ImportDetail(deps.ImportReader, logg))
		})

		r.Get("/subscriptions/at-risk", controllers.AtRiskSubscriptions(deps.Subscriptions, logg))
	})

	return r
}
