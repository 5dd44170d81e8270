package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbooks/backend/internal/application/reconcile"
	"github.com/openbooks/backend/internal/domain/catalog"
	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/payment"
	"github.com/openbooks/backend/internal/domain/purchase"
	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/infrastructure/cache"
	"github.com/openbooks/backend/internal/infrastructure/config"
	"github.com/openbooks/backend/internal/infrastructure/event"
	"github.com/openbooks/backend/internal/infrastructure/logger"
	"github.com/openbooks/backend/internal/infrastructure/persistence"
	"github.com/openbooks/backend/internal/infrastructure/signing"
	"github.com/openbooks/backend/internal/infrastructure/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting application",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	ctx := context.Background()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shut down tracer provider", zap.Error(err))
		}
	}()

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	idempotencyStore := newIdempotencyStore(cfg, log)
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Failed to close idempotency store", zap.Error(err))
		}
	}()

	// Repositories
	productRepo := persistence.NewGormProductRepository(db.DB)
	accountRepo := persistence.NewGormAccountRepository(db.DB)
	periodRepo := persistence.NewGormAccountingPeriodRepository(db.DB)
	seriesRepo := persistence.NewGormVerificationSeriesRepository(db.DB)
	verificationRepo := persistence.NewGormVerificationRepository(db.DB)
	purchaseRepo := persistence.NewGormPurchaseRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	providerRepo := persistence.NewGormProviderRepository(db.DB)
	recalculator := persistence.NewSQLBalanceRecalculator(db.DB)
	ocrSequence := persistence.NewGormOCRSequence(db.DB)

	// Catalog snapshots with event-driven invalidation
	snapshotCache := cache.NewInMemorySnapshotCache(log)
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(cache.NewSnapshotInvalidationHandler(snapshotCache, log))
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(ctx); err != nil {
			log.Error("Failed to stop event bus", zap.Error(err))
		}
	}()

	snapshotBuilder := catalog.NewSnapshotBuilder(productRepo, accountRepo)
	snapshots := catalog.NewSnapshotService(snapshotBuilder, snapshotCache)

	// Ticket issuance
	signer, err := newQRSigner(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize QR signer", zap.Error(err))
	}
	issuer := purchase.NewTicketIssuer(cfg.Tickets.BaseURL, signer)

	refunders := payment.NewRefunderRegistry()
	refunders.Register(payment.ChannelSimulator, payment.SimulatorRefunder{})

	// Application services
	suggestions := reconcile.NewSuggestionService(purchaseRepo, providerRepo, accountRepo, seriesRepo, snapshots)
	approvals := reconcile.NewApprovalService(paymentRepo, periodRepo, seriesRepo, verificationRepo, suggestions, recalculator, eventBus)
	reconciler := reconcile.NewReconcileService(purchaseRepo, paymentRepo, providerRepo, periodRepo, ocrSequence, refunders, issuer, idempotencyStore, approvals, eventBus)

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	if cfg.Approval.Enabled {
		go runApprovalLoop(loopCtx, cfg.Approval.Interval, periodRepo, approvals, reconciler, log)
	}

	log.Info("Application started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Shutting down", zap.String("signal", sig.String()))

	stopLoop()
	log.Info("Application stopped")
}

// newIdempotencyStore connects to Redis when configured and falls back
// to the in-memory store, which is fine for single-instance deployments.
func newIdempotencyStore(cfg *config.Config, log *zap.Logger) shared.IdempotencyStore {
	if cfg.Redis.Host != "" {
		store, err := cache.NewRedisIdempotencyStore(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err == nil {
			log.Info("Using Redis idempotency store", zap.String("addr", cfg.Redis.RedisAddr()))
			return store
		}
		log.Warn("Redis unavailable, falling back to in-memory idempotency store", zap.Error(err))
	}
	return cache.NewInMemoryIdempotencyStore()
}

// newQRSigner derives the ticket signer from the configured seed. Without
// a seed a random one is generated, so signatures do not survive restarts.
func newQRSigner(cfg *config.Config, log *zap.Logger) (*signing.NaClSigner, error) {
	if cfg.Tickets.SigningKeySeed != "" {
		return signing.NewNaClSignerFromHex(cfg.Tickets.SigningKeySeed)
	}

	seed := make([]byte, signing.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generating signing seed: %w", err)
	}
	log.Warn("No ticket signing seed configured, generated an ephemeral one",
		zap.String("hint", "set tickets.signing_key_seed to "+hex.EncodeToString(seed)+" to keep it"))
	return signing.NewNaClSigner(seed)
}

// runApprovalLoop periodically sweeps every accounting period that covers
// the current date, approves the unapproved payments inside it and
// reports invoices past their expiry date.
func runApprovalLoop(
	ctx context.Context,
	interval time.Duration,
	periodRepo ledger.AccountingPeriodRepository,
	approvals *reconcile.ApprovalService,
	reconciler *reconcile.ReconcileService,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("Approval loop started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			log.Info("Approval loop stopped")
			return
		case <-ticker.C:
			sweepApprovals(ctx, periodRepo, approvals, reconciler, log)
		}
	}
}

func sweepApprovals(
	ctx context.Context,
	periodRepo ledger.AccountingPeriodRepository,
	approvals *reconcile.ApprovalService,
	reconciler *reconcile.ReconcileService,
	log *zap.Logger,
) {
	periods, err := periodRepo.FindAll(ctx, shared.Filter{Page: 1, PageSize: 1000})
	if err != nil {
		log.Error("Approval sweep failed to list periods", zap.Error(err))
		return
	}

	now := time.Now()
	seenOrgs := make(map[uuid.UUID]bool)
	for i := range periods {
		period := &periods[i]
		if now.Before(period.Start) || now.After(period.End) {
			continue
		}

		result, err := approvals.ApprovePayments(ctx, reconcile.ApproveRequest{
			OrgID:    period.OrgID,
			PeriodID: period.ID,
		})
		if err != nil {
			log.Error("Approval sweep failed",
				zap.String("org_id", period.OrgID.String()),
				zap.String("period", period.Name),
				zap.Error(err))
			continue
		}
		if len(result.Approved) > 0 || len(result.Skipped) > 0 {
			log.Info("Approval sweep completed",
				zap.String("org_id", period.OrgID.String()),
				zap.String("period", period.Name),
				zap.Int("approved", len(result.Approved)),
				zap.Int("skipped", len(result.Skipped)),
				zap.Int("touched_accounts", result.TouchedAccounts))
		}

		if seenOrgs[period.OrgID] {
			continue
		}
		seenOrgs[period.OrgID] = true

		overdue, err := reconciler.OverdueInvoices(ctx, period.OrgID)
		if err != nil {
			log.Error("Overdue invoice check failed",
				zap.String("org_id", period.OrgID.String()),
				zap.Error(err))
			continue
		}
		if len(overdue) > 0 {
			log.Warn("Unpaid invoices past expiry",
				zap.String("org_id", period.OrgID.String()),
				zap.Int("count", len(overdue)))
		}
	}
}
