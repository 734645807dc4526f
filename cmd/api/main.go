package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"masterpost/internal/adapter/repo"
	"masterpost/internal/credits"
	"masterpost/internal/editor"
	"masterpost/internal/http/handlers"
	"masterpost/internal/http/httpapi"
	"masterpost/internal/infra"
	"masterpost/internal/processing"
	"masterpost/internal/providers/segment"
	"masterpost/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store, err := storage.NewFileStore(cfg.UploadDir, cfg.ProcessedDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	jobs := repo.NewJobRepository(dbpool)
	creditRepo := repo.NewCreditRepository(dbpool)
	settler := credits.NewService(creditRepo, logger)

	segmenter := segment.NewClient(segment.Options{
		BaseURL: cfg.DashScopeBaseURL,
		APIKey:  cfg.DashScopeAPIKey,
		Timeout: cfg.TaskTimeout,
	})

	pool := processing.NewPool(cfg.MaxPoolWorkers, cfg.TaskTimeout, logger)
	manager := processing.NewManager(processing.ManagerOptions{
		Jobs:            jobs,
		Settler:         settler,
		Store:           store,
		Pool:            pool,
		Segmenter:       segmenter,
		BatchSize:       cfg.BatchSize,
		BatchPause:      cfg.BatchPause,
		PremiumFallback: cfg.PremiumFallback,
		Logger:          logger,
	})

	editorMgr, err := editor.NewManager(cfg.ProcessedDir, cfg.EditorSessionTTL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure editor")
	}
	go editorMgr.RunSweeper(ctx, cfg.EditorSessionTTL/4)

	app := &handlers.App{
		Jobs:    jobs,
		Manager: manager,
		Credits: settler,
		Store:   store,
		Editor:  editorMgr,
		Logger:  logger,
	}
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
