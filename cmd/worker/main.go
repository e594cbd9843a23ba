package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-folio/internal/app"
	"github.com/odyssey-erp/odyssey-folio/internal/cityledger"
	"github.com/odyssey-erp/odyssey-folio/internal/folio"
	"github.com/odyssey-erp/odyssey-folio/internal/jobqueue"
	jobmetrics "github.com/odyssey-erp/odyssey-folio/internal/jobs"
	"github.com/odyssey-erp/odyssey-folio/internal/nightaudit"
	"github.com/odyssey-erp/odyssey-folio/internal/observability"
	"github.com/odyssey-erp/odyssey-folio/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-folio/internal/platform/db"
	"github.com/odyssey-erp/odyssey-folio/internal/repair"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
	"github.com/odyssey-erp/odyssey-folio/internal/tax"
	"github.com/odyssey-erp/odyssey-folio/jobs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions("folio-worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics(version)
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	redisOpts := cfg.AsynqRedis()

	auditLogger := shared.NewAuditLogger(pool)
	cityCache := cityledger.NewCache(redisClient, cfg.CityLedgerCacheTTL)
	cityRepo := cityledger.NewRepository(pool)
	cityLedger := cityledger.NewService(cityRepo, cityRepo, cityCache, logger)

	ledger := folio.NewService(folio.NewRepository(pool), tax.NewService(tax.NewRepository(pool)), auditLogger, logger)
	ledger.WithNotifier(cityCache)

	asynqClient := asynq.NewClient(redisOpts)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	auditRepo := nightaudit.NewRepository(pool)
	processor := nightaudit.NewProcessor(
		auditRepo,
		auditRepo,
		ledger,
		nightaudit.NewRedisLocker(redislock.New(redisClient)),
		jobs.NewReportClient(asynqClient, cfg.NightAuditReport),
		nightaudit.Config{LockTTL: cfg.NightAuditLockTTL},
		logger,
	)
	processor.WithAudit(auditLogger)
	processor.WithNotifier(cityCache)

	repairer := repair.NewService(repair.NewFinder(pool), ledger, logger)

	queue := jobqueue.NewRepository(pool)
	worker := jobqueue.NewWorker(queue, jobqueue.Config{PollInterval: cfg.JobPollInterval}, jobMetrics, logger)
	worker.Register(jobqueue.TypeNightAudit, jobqueue.NightAuditHandler(processor))
	worker.Register(jobqueue.TypeLedgerRepair, jobqueue.LedgerRepairHandler(repairer, logger))
	worker.Register(jobqueue.TypeFolioRecalculate, jobqueue.FolioRecalculateHandler(ledger))

	scheduler := jobqueue.NewScheduler(queue, cfg.SystemUserID, logger)
	monitor := jobqueue.NewMonitor(queue, cfg.JobStuckThreshold, jobMetrics, logger)
	monitor.WatchTypes(queue, worker.Types())

	integrityTask, err := jobs.NewIntegrityScanTask(jobs.IntegrityScanPayload{})
	if err != nil {
		logger.Error("build integrity scan task", slog.Any("error", err))
		os.Exit(1)
	}
	summaryJob := &jobs.DailySummaryJob{Mailer: jobs.LogMailer{Logger: logger}, Recipients: cfg.NightAuditReport, Logger: logger, Metrics: jobMetrics}
	integrityJob := jobs.NewIntegrityScanJob(repairer, logger, jobMetrics)
	scheduleJob := &jobs.NightAuditScheduleJob{Scheduler: scheduler, Metrics: jobMetrics}

	taskWorker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDailySummaryReport, Handler: summaryJob.Handle},
			{Type: jobs.TaskLedgerIntegrityScan, Handler: integrityJob.Handle},
			{Type: jobs.TaskNightAuditSchedule, Handler: scheduleJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.NightAuditCron, Task: jobs.NewNightAuditScheduleTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.LedgerIntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init task worker", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr: cfg.OpsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:     logger,
			Config:     cfg,
			JobHandler: jobs.NewHandler(inspector, monitor, logger),
			CityLedger: cityledger.NewHandler(cityLedger, logger),
			Metrics:    metrics,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx, cfg.JobStuckCheck) })
	g.Go(func() error { return taskWorker.Run(gctx) })
	g.Go(func() error {
		logger.Info("ops server listening", slog.String("addr", cfg.OpsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
