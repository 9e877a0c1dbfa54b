package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/api/controllers"
	"github.com/farmolink/farmolink-backend/api/routes"
	"github.com/farmolink/farmolink-backend/internal/bootstrap"
	"github.com/farmolink/farmolink-backend/internal/dupguard"
	"github.com/farmolink/farmolink-backend/internal/media"
	"github.com/farmolink/farmolink-backend/internal/notifications"
	"github.com/farmolink/farmolink-backend/internal/orders"
	"github.com/farmolink/farmolink-backend/internal/pharmacies"
	"github.com/farmolink/farmolink-backend/internal/prescriptions"
	"github.com/farmolink/farmolink-backend/internal/settlement"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
)

const shutdownTimeout = 15 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// pharmacyLookup adapts the directory repository to the order service's
// per-transaction lookup.
type pharmacyLookup struct {
	repo pharmacies.Repository
	tx   *gorm.DB
}

func (l pharmacyLookup) FindByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error) {
	return l.repo.WithTx(l.tx).FindByID(ctx, id)
}

func main() {
	app, err := bootstrap.New("api")
	if err != nil {
		bootstrap.Fatal(nil, "failed to load config", err)
	}
	err = run(app)
	if closeErr := app.Close(); closeErr != nil {
		app.Logger.Error(context.Background(), "error releasing resources", closeErr)
	}
	if err != nil {
		bootstrap.Fatal(app.Logger, "api server stopped unexpectedly", err)
	}
}

type services struct {
	pharmacies    pharmacies.Service
	prescriptions prescriptions.Service
	orders        orders.Service
	settlement    settlement.Service
	notifications notifications.Service
}

func run(app *bootstrap.App) error {
	sigCtx, stop := app.SignalContext()
	defer stop()
	cfg, logg := app.Config, app.Logger

	dbClient, err := app.Database(sigCtx)
	if err != nil {
		return err
	}
	redisClient, err := app.Redis(sigCtx)
	if err != nil {
		return err
	}
	gcsClient, err := app.Storage(sigCtx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	uploader, err := media.NewUploader(gcsClient, cfg.GCS.UploadMaxBytes, logg)
	if err != nil {
		return fmt.Errorf("create media uploader: %w", err)
	}
	svc, err := buildServices(app, dbClient.DB(), dbClient, uploader, metrics.NewMarketplace(registry))
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(
			cfg,
			logg,
			registry,
			metrics.NewHTTP(registry),
			map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
				"gcs":      gcsClient,
			},
			redisClient,
			svc.pharmacies,
			svc.prescriptions,
			svc.orders,
			svc.settlement,
			svc.notifications,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx := logg.WithField(sigCtx, "addr", server.Addr)

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	logg.Info(ctx, "api server stopped")
	return nil
}

func buildServices(app *bootstrap.App, conn *gorm.DB, runner txRunner, uploader *media.Uploader, marketplace *metrics.Marketplace) (*services, error) {
	cfg, logg := app.Config, app.Logger
	defaultRate, err := decimal.NewFromString(cfg.Orders.DefaultCommissionRate)
	if err != nil {
		return nil, fmt.Errorf("invalid default commission rate: %w", err)
	}
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

	pharmacyRepo := pharmacies.NewRepository(conn)
	pharmacyService, err := pharmacies.NewService(pharmacyRepo)
	if err != nil {
		return nil, fmt.Errorf("create pharmacy service: %w", err)
	}
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:   orders.NewRepository(conn),
		Tx:     runner,
		Outbox: outboxService,
		Pharmacies: func(tx *gorm.DB) orders.PharmacyLookup {
			return pharmacyLookup{repo: pharmacyRepo, tx: tx}
		},
		Guard:       dupguard.New(cfg.Orders.DuplicateWindow),
		DefaultRate: defaultRate,
		Metrics:     marketplace,
		Logger:      logg,
	})
	if err != nil {
		return nil, fmt.Errorf("create orders service: %w", err)
	}
	prescriptionService, err := prescriptions.NewService(prescriptions.ServiceParams{
		Repo:       prescriptions.NewRepository(conn),
		Tx:         runner,
		Outbox:     outboxService,
		Pharmacies: pharmacyService,
		Orders:     ordersService,
		Uploader:   uploader,
		Metrics:    marketplace,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("create prescription service: %w", err)
	}
	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Repo:          settlement.NewRepository(conn),
		Tx:            runner,
		Outbox:        outboxService,
		DefaultRate:   defaultRate,
		RequireReport: cfg.Settlement.RequireReport,
		Metrics:       marketplace,
		Logger:        logg,
	})
	if err != nil {
		return nil, fmt.Errorf("create settlement service: %w", err)
	}
	notificationsService, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("create notifications service: %w", err)
	}
	return &services{
		pharmacies:    pharmacyService,
		prescriptions: prescriptionService,
		orders:        ordersService,
		settlement:    settlementService,
		notifications: notificationsService,
	}, nil
}
