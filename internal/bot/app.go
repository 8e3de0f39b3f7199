// Package bot initializes and runs the bot process: it wires the
// transport, the record store, the caches and the handlers together,
// runs the update poll loop and drains background work on shutdown.
package bot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsafonov/proofdesk/internal/archive"
	"github.com/nsafonov/proofdesk/internal/audit"
	"github.com/nsafonov/proofdesk/internal/bot/catalog"
	"github.com/nsafonov/proofdesk/internal/bot/config"
	"github.com/nsafonov/proofdesk/internal/bot/entitlements"
	"github.com/nsafonov/proofdesk/internal/bot/handlers"
	"github.com/nsafonov/proofdesk/internal/bot/pending"
	"github.com/nsafonov/proofdesk/internal/bot/services"
	"github.com/nsafonov/proofdesk/internal/bot/session"
	"github.com/nsafonov/proofdesk/internal/logging"
	"github.com/nsafonov/proofdesk/internal/recordstore"
	"github.com/nsafonov/proofdesk/internal/transport"
	"github.com/nsafonov/proofdesk/internal/transport/telegram"
	"github.com/nsafonov/proofdesk/internal/worker"
)

const pollTimeoutSeconds = 30

type App struct {
	config *config.Config
	logger logging.Logger

	client *telegram.Client
	pool   *worker.Pool
	proof  *handlers.ProofHandler
	review *handlers.ReviewHandler
	admin  *handlers.AdminHandler

	auditDB *sql.DB

	// stop asks the run loop to exit; set in Run.
	stop context.CancelFunc
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	app := &App{config: cfg, logger: logger}

	// long polling holds the request open for pollTimeoutSeconds, the
	// client timeout must exceed it
	app.client = telegram.New(cfg.TransportEndpoint, cfg.TransportToken,
		(pollTimeoutSeconds+10)*time.Second)

	store := recordstore.NewHTTPStore(cfg.StoreEndpoint, cfg.StoreToken, cfg.StoreTimeout)

	recorder, err := app.initAudit(cfg)
	if err != nil {
		return nil, err
	}

	var archiver archive.Archiver = archive.Nop{}
	if cfg.S3Bucket != "" {
		archiver = archive.NewS3Archiver(archive.S3Config{
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Bucket:       cfg.S3Bucket,
		}, app.client)
	}

	sess := session.NewStore(cfg.AwaitProofTTL)
	pend := pending.NewStore(cfg.PendingTTL, cfg.PendingMaxItems)
	ents := entitlements.New(store, cfg.PaymentsCollection, cfg.EntitlementCacheTTL, logger)
	descriptors := catalog.NewDescriptors(store, cfg.DescriptorsCollection, cfg.DescriptorCacheTTL, logger)
	methods := catalog.NewMethods(store, cfg.MethodsCollection, cfg.MethodCacheTTL, logger)

	app.pool = worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueSize, logger)

	payments := services.NewPayments(app.client, store, pend, ents, recorder, archiver,
		services.Collections{
			Payments:  cfg.PaymentsCollection,
			Products:  cfg.ProductsCollection,
			Users:     cfg.UsersCollection,
			Purchases: cfg.PurchasesCollection,
		},
		cfg.ReviewerIDs, logger)

	app.proof = handlers.NewProofHandler(app.client, sess, payments, app.pool, logger)
	app.review = handlers.NewReviewHandler(app.client, pend, payments, cfg.ReviewerIDs, logger)
	app.admin = handlers.NewAdminHandler(app.client, descriptors, methods, ents, app.pool,
		recorder, cfg.AdminIDs, func() { app.requestStop() }, logger)

	return app, nil
}

func (app *App) initAudit(cfg *config.Config) (audit.Recorder, error) {
	if cfg.AuditDSN == "" {
		return audit.Nop{}, nil
	}

	db, err := sql.Open("pgx", cfg.AuditDSN)
	if err != nil {
		return nil, fmt.Errorf("audit db init error: %w", err)
	}
	if err := audit.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit migrations error: %w", err)
	}
	app.auditDB = db
	return audit.NewPostgresRepository(db), nil
}

func (app *App) requestStop() {
	if app.stop != nil {
		app.stop()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) dispatch(ctx context.Context, u transport.Update) {
	switch {
	case u.Message != nil:
		if app.admin.HandleMessage(ctx, u.Message) {
			return
		}
		app.proof.HandleMessage(ctx, u.Message)
	case u.Callback != nil:
		if app.review.HandleCallback(ctx, u.Callback) {
			return
		}
		app.proof.HandleCallback(ctx, u.Callback)
	}
}

// Run polls for updates until the context is cancelled or a shutdown is
// requested, then drains the background pool.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	app.stop = cancelFunc

	app.logger.Info(ctx, "starting bot")
	app.initSignalHandler(cancelFunc)

	var offset int64
	for {
		updates, err := app.client.GetUpdates(ctx, offset, pollTimeoutSeconds)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			app.logger.Error(ctx, "polling updates failed", "error", err)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
			}
			continue
		}
		for _, u := range updates {
			if u.ID >= offset {
				offset = u.ID + 1
			}
			app.dispatch(ctx, u)
		}
		if ctx.Err() != nil {
			break
		}
	}

	app.confirmUpdates(offset)
	app.shutdown()
}

// confirmUpdates acknowledges the already-dispatched updates server-side.
// The transport only marks updates confirmed when it sees the advanced
// offset on a later poll; without this call the final batch is redelivered
// on the next boot, so a /restart command would restart the bot forever.
func (app *App) confirmUpdates(offset int64) {
	if offset == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := app.client.GetUpdates(ctx, offset, 0); err != nil {
		app.logger.Warn(ctx, "confirming processed updates failed", "offset", offset, "error", err)
	}
}

func (app *App) shutdown() {
	ctx := context.Background()
	app.logger.Info(ctx, "draining background work", "in_flight", app.pool.InFlight())

	drainCtx, cancel := context.WithTimeout(ctx, app.config.DrainTimeout)
	defer cancel()
	if err := app.pool.Drain(drainCtx); err != nil {
		app.logger.Warn(ctx, "drain timed out, some work may be lost",
			"in_flight", app.pool.InFlight(), "error", err)
	}

	if app.auditDB != nil {
		if err := app.auditDB.Close(); err != nil {
			app.logger.Warn(ctx, "closing audit db failed", "error", err)
		}
	}
	app.logger.Info(ctx, "bot stopped")
}
