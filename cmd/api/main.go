package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/card-segments/internal/api/handlers"
	"github.com/dvloznov/card-segments/internal/app"
	"github.com/dvloznov/card-segments/internal/config"
	"github.com/dvloznov/card-segments/internal/jobs"
	"github.com/dvloznov/card-segments/internal/jobs/inmemory"
	"github.com/dvloznov/card-segments/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("SEGMENTS_CONFIG"), "Path to YAML config (or set SEGMENTS_CONFIG env)")
		port       = flag.String("port", "", "HTTP server port, overrides server.port")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log := app.NewLogger(cfg.Log)
	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	if err := a.LoadCurrent(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load canonical table")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Server.QueueSize, jobStore, inmemory.WithMaxRetries(cfg.Server.MaxRetries))

	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	log.Info().Msg("Starting rebuild worker")
	if err := jobQueue.Start(workerCtx, a.RebuildHandler()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start rebuild worker")
	}

	if cfg.Server.RebuildOnStart || a.Lookup.Len() == 0 {
		job := &jobs.RebuildJob{Reason: "startup"}
		if err := jobQueue.PublishRebuild(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to enqueue startup rebuild")
		}
	}

	handler := handlers.NewRouter(handlers.Deps{
		Lookup:    a.Lookup,
		Publisher: jobQueue,
		JobStore:  jobStore,
		Metrics:   a.Metrics,
		Log:       log,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Int("accounts", a.Lookup.Len()).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let an in-flight rebuild finish before cancelling it.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
