package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"masterpost/internal/adapter/repo"
	"masterpost/internal/credits"
	"masterpost/internal/domain"
	"masterpost/internal/infra"
	"masterpost/internal/processing"
	"masterpost/internal/providers/segment"
	"masterpost/internal/storage"
)

const jobPollInterval = 2 * time.Second

type jobWorker struct {
	ctx     context.Context
	jobs    domain.JobRepository
	manager *processing.Manager
	logger  infra.Logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	store, err := storage.NewFileStore(cfg.UploadDir, cfg.ProcessedDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	jobs := repo.NewJobRepository(pool)
	creditRepo := repo.NewCreditRepository(pool)
	settler := credits.NewService(creditRepo, logger)

	segmenter := segment.NewClient(segment.Options{
		BaseURL: cfg.DashScopeBaseURL,
		APIKey:  cfg.DashScopeAPIKey,
		Timeout: cfg.TaskTimeout,
	})
	if cfg.DashScopeAPIKey == "" {
		logger.Warn().Msg("worker: dashscope api key missing, premium jobs will rely on the local fallback")
	}

	taskPool := processing.NewPool(cfg.MaxPoolWorkers, cfg.TaskTimeout, logger)
	manager := processing.NewManager(processing.ManagerOptions{
		Jobs:            jobs,
		Settler:         settler,
		Store:           store,
		Pool:            taskPool,
		Segmenter:       segmenter,
		BatchSize:       cfg.BatchSize,
		BatchPause:      cfg.BatchPause,
		PremiumFallback: cfg.PremiumFallback,
		Logger:          logger,
	})

	worker := &jobWorker{ctx: ctx, jobs: jobs, manager: manager, logger: logger}
	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run polls for uploaded jobs and drives each claimed job to a terminal
// state. Claims are atomic, so several workers can share one queue.
func (w *jobWorker) Run() error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		job, err := w.jobs.ClaimUploaded(w.ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				w.logger.Error().Err(err).Msg("worker: failed to claim job")
			}
			select {
			case <-w.ctx.Done():
				return w.ctx.Err()
			case <-time.After(jobPollInterval):
			}
			continue
		}

		w.logger.Info().Str("job_id", job.ID).Str("pipeline", job.Pipeline).Msg("worker: picked job")
		w.manager.Run(w.ctx, job)
	}
}
