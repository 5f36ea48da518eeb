package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-inventory/api/controllers"
	inventorycontrollers "github.com/angelmondragon/storefront-inventory/api/controllers/inventory"
	"github.com/angelmondragon/storefront-inventory/api/middleware"
	"github.com/angelmondragon/storefront-inventory/pkg/config"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
	"github.com/angelmondragon/storefront-inventory/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-inventory/pkg/redis"
)

// redisStore is the redis surface the API edge depends on.
type redisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.SessionStore
	pkgredis.RateLimiter
	Ping(context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient redisStore,
	inventoryService inventorycontrollers.Service,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	deps := map[string]controllers.Pinger{"db": dbP}
	if redisClient != nil {
		deps["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	var (
		sessions    pkgredis.SessionStore
		idemStore   pkgredis.IdempotencyStore
		rateLimiter pkgredis.RateLimiter
	)
	if redisClient != nil {
		sessions, idemStore, rateLimiter = redisClient, redisClient, redisClient
	}

	read := middleware.RequireCapability(enums.CapabilityInventoryRead, logg)
	reserve := middleware.RequireCapability(enums.CapabilityInventoryReserve, logg)
	system := middleware.RequireCapability(enums.CapabilityInventorySystem, logg)
	admin := middleware.RequireCapability(enums.CapabilityInventoryAdmin, logg)
	idempotent := middleware.Idempotency(idemStore, middleware.StandardReplayTTL, logg)
	deductOnce := middleware.Idempotency(idemStore, middleware.DeductReplayTTL, logg)
	reserveLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy("reserve", cfg.HTTP.ReserveRateLimit, cfg.HTTP.ReserveRateWindow),
		rateLimiter,
		logg,
	)

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))

		r.With(read).Post("/batch", inventorycontrollers.Batch(inventoryService, logg))
		r.With(admin).Get("/low-stock", inventorycontrollers.LowStock(inventoryService, logg))
		r.With(admin).Post("/cleanup/expired-reservations", inventorycontrollers.Cleanup(inventoryService, logg))
		r.With(system, deductOnce).Post("/deduct", inventorycontrollers.Deduct(inventoryService, logg))

		r.Route("/reserve", func(r chi.Router) {
			r.Use(reserve)
			r.With(reserveLimit, idempotent).Post("/cart", inventorycontrollers.ReserveCart(inventoryService, logg))
			r.With(reserveLimit, idempotent).Post("/order", inventorycontrollers.ReserveOrder(inventoryService, logg))
			r.Delete("/cart", inventorycontrollers.ReleaseCart(inventoryService, logg))
			r.Delete("/order/{order_id}", inventorycontrollers.ReleaseOrder(inventoryService, logg))
		})
		r.With(reserve).Get("/reservations/cart", inventorycontrollers.CartReservations(inventoryService, logg))

		r.Route("/{product_id}", func(r chi.Router) {
			r.With(read).Get("/", inventorycontrollers.Get(inventoryService, logg))
			r.With(read).Get("/transactions", inventorycontrollers.Transactions(inventoryService, logg))
			r.With(admin, idempotent).Put("/adjust", inventorycontrollers.Adjust(inventoryService, logg))
			r.With(admin, idempotent).Post("/receive", inventorycontrollers.Receive(inventoryService, logg))
			r.With(admin).Put("/threshold", inventorycontrollers.Threshold(inventoryService, logg))
			r.With(admin).Get("/reconcile", inventorycontrollers.Reconcile(inventoryService, logg))
		})
	})

	return r
}
