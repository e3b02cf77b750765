// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"docbatch/internal/config"
	"docbatch/internal/domain/model"
	"docbatch/internal/infra/adapters/extraction"
	"docbatch/internal/infra/api"
	pg "docbatch/internal/infra/db/postgres"
	"docbatch/internal/infra/logging"
	"docbatch/internal/infra/metrics"
	red "docbatch/internal/infra/redis"
	"docbatch/internal/infra/sched"
	"docbatch/internal/infra/security"
	"docbatch/internal/infra/storage"
	"docbatch/internal/infra/worker"
	"docbatch/internal/usecase"
)

// Set with -ldflags at build time.
var (
	version = "dev"
	commit  = ""
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted secrets)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exited with error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, cfg.Extraction.Provider)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	logger.Info().Str("database", logging.Redact(cfg.Database.URL, cfg.Runtime.Dev)).Msg("postgres connected")

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	// ---- Adapters ----
	store, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	extractor, err := extraction.New(&cfg.Extraction, logger)
	if err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	policy, err := model.ParsePagePolicy(cfg.Billing.PagePolicy)
	if err != nil {
		return err
	}
	logger.Info().
		Str("storage", cfg.Storage.Backend).
		Str("extractor", extractor.Name()).
		Str("page_policy", string(policy)).
		Int64("credits_per_page", cfg.Billing.CreditsPerPage).
		Msg("adapters ready")

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewBatchJobRepo(pool)
	fileRepo := pg.NewBatchFileRepo(pool)
	recordRepo := pg.NewProcessingRecordRepo(pool)
	outputRepo := pg.NewBatchOutputRepo(pool)
	accountRepo := pg.NewAccountRepo(pool)
	chargeRepo := pg.NewUsageChargeRepo(pool)

	// ---- Use cases ----
	ledger := usecase.NewUsageLedger(accountRepo, chargeRepo, tm, cfg.Billing.CreditsPerPage, logger)
	processor := usecase.NewFileProcessor(fileRepo, recordRepo, store, extractor, tm, policy, logger)
	batchUC := usecase.NewBatchUseCase(
		jobRepo, fileRepo, store,
		extraction.NewPDFValidator(cfg.Pipeline.MaxFileBytes),
		red.NewLocker(redisClient),
		processor, ledger, tm,
		usecase.BatchOptions{
			MaxFilesPerJob:   cfg.Pipeline.MaxFilesPerJob,
			MaxFilesPerSweep: cfg.Pipeline.MaxFilesPerSweep,
			SweepLockTTL:     cfg.Pipeline.SweepLockTTL,
			Policy:           policy,
		},
		logger,
	)
	links := usecase.NewDownloadLinkIssuer(outputRepo, security.NewTokenService(), cfg.Output.DownloadTTL, logger)
	mergeUC := usecase.NewMergeUseCase(jobRepo, fileRepo, recordRepo, outputRepo, links, tm, cfg.Output.TempDir, logger)

	// ---- HTTP ----
	srv := api.NewServer(batchUC, mergeUC, links, api.NewAuthManager(cfg.Auth.JWTSecret), api.ServerOptions{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PublicBaseURL:  cfg.Server.PublicBaseURL,
	}, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ---- Background workers ----
	workers := worker.NewPool(cfg.Pipeline.ResumeWorkers, logger)
	resumer := worker.NewResumeWorker(jobRepo, batchUC, worker.ResumeOptions{
		Interval:    cfg.Pipeline.ResumeInterval,
		ResumeAfter: cfg.Pipeline.ResumeAfter,
	}, logger)
	janitor := sched.NewArtifactJanitor(cfg.Output.JanitorInterval, 100, links, pool.Stat, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutdown requested")
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		workers.Start(gctx)
		defer workers.Stop()
		return ignoreCanceled(resumer.Run(gctx, workers))
	})
	g.Go(func() error {
		return ignoreCanceled(janitor.Run(gctx))
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
