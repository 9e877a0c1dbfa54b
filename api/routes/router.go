package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farmolink/farmolink-backend/api/controllers"
	"github.com/farmolink/farmolink-backend/api/middleware"
	"github.com/farmolink/farmolink-backend/internal/notifications"
	"github.com/farmolink/farmolink-backend/internal/orders"
	"github.com/farmolink/farmolink-backend/internal/pharmacies"
	"github.com/farmolink/farmolink-backend/internal/prescriptions"
	"github.com/farmolink/farmolink-backend/internal/settlement"
	"github.com/farmolink/farmolink-backend/pkg/config"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/redis"
)

// requestStore backs the per-user rate limit and HTTP idempotency replay.
// A nil store disables both.
type requestStore interface {
	redis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	registry *prometheus.Registry,
	httpMetrics *metrics.HTTP,
	readiness map[string]controllers.Pinger,
	store requestStore,
	pharmacyService pharmacies.Service,
	prescriptionService prescriptions.Service,
	ordersService orders.Service,
	settlementService settlement.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	customer := middleware.RequireRole(logg, enums.ActorRoleCustomer)
	pharmacy := middleware.RequireRole(logg, enums.ActorRolePharmacy)
	participant := middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRolePharmacy)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if store != nil {
			r.Use(middleware.RateLimit(store, cfg.RateLimit, logg))
			r.Use(middleware.Idempotency(store, cfg.Eventing.HTTPIdempotencyTTL, logg))
		}

		r.Get("/pharmacies", controllers.ListPharmacies(pharmacyService, logg))

		r.Route("/prescriptions", func(r chi.Router) {
			r.With(customer).Post("/", controllers.SubmitPrescription(prescriptionService, logg))
			r.With(participant).Get("/", controllers.ListPrescriptions(prescriptionService, logg))
			r.Get("/{prescriptionId}", controllers.GetPrescription(prescriptionService, logg))
			r.With(customer).Delete("/{prescriptionId}", controllers.DeletePrescription(prescriptionService, logg))
			r.With(pharmacy).Post("/{prescriptionId}/quotes", controllers.SubmitQuote(prescriptionService, logg))
			r.With(pharmacy).Post("/{prescriptionId}/rejections", controllers.SubmitRejection(prescriptionService, logg))
		})

		r.Route("/quotes/{quoteId}", func(r chi.Router) {
			r.Use(customer)
			r.Post("/accept", controllers.AcceptQuote(prescriptionService, logg))
			r.Post("/reject", controllers.RejectQuote(prescriptionService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(participant)
			r.With(customer).Post("/", controllers.CreateOrder(ordersService, logg))
			r.Get("/", controllers.ListOrders(ordersService, logg))
			r.Get("/{orderId}", controllers.GetOrder(ordersService, logg))
			r.Post("/{orderId}/status", controllers.AdvanceOrder(ordersService, logg))
		})

		r.Route("/settlements", func(r chi.Router) {
			r.With(pharmacy).Get("/", controllers.PharmacyStatements(settlementService, logg))
			r.With(pharmacy).Post("/report", controllers.ReportPayment(settlementService, logg))
			r.Get("/history", controllers.SettlementHistory(settlementService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.Get("/settlements", controllers.AdminStatements(settlementService, logg))
			r.Post("/settlements/confirm", controllers.AdminConfirmPayment(settlementService, logg))
			r.Patch("/pharmacies/{pharmacyId}/commission", controllers.AdminUpdateCommissionRate(pharmacyService, logg))
		})
	})

	return r
}
