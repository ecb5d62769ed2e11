package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoldenRal/modSTR/api/routes"
	"github.com/GoldenRal/modSTR/internal/ai"
	"github.com/GoldenRal/modSTR/internal/metadata"
	"github.com/GoldenRal/modSTR/internal/pipeline"
	"github.com/GoldenRal/modSTR/internal/projects"
	"github.com/GoldenRal/modSTR/internal/quota"
	"github.com/GoldenRal/modSTR/internal/reports"
	usagescheduler "github.com/GoldenRal/modSTR/internal/schedulers/usage"
	"github.com/GoldenRal/modSTR/pkg/config"
	"github.com/GoldenRal/modSTR/pkg/db"
	"github.com/GoldenRal/modSTR/pkg/gemini"
	"github.com/GoldenRal/modSTR/pkg/logger"
	"github.com/GoldenRal/modSTR/pkg/metrics"
	"github.com/GoldenRal/modSTR/pkg/migrate"
	"github.com/GoldenRal/modSTR/pkg/redis"
)

const shutdownGrace = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	geminiClient, err := gemini.NewClient(context.Background(), cfg.Gemini, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gemini client", err)
		os.Exit(1)
	}
	gateway, err := ai.NewGateway(geminiClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ai gateway", err)
		os.Exit(1)
	}

	store, err := projects.NewStore(projects.StoreParams{
		Redis:  redisClient,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create project store", err)
		os.Exit(1)
	}

	quotaService, err := quota.NewService(quota.Params{
		Repo:          quota.NewRepository(dbClient),
		Logger:        logg,
		DefaultPlanID: cfg.Usage.DefaultPlanID,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create quota service", err)
		os.Exit(1)
	}

	deriver, err := metadata.NewDeriver(metadata.DeriverParams{
		Store:   store,
		Gateway: gateway,
		Quota:   quotaService,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create metadata deriver", err)
		os.Exit(1)
	}

	queue := pipeline.NewQueue()
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	worker, err := pipeline.NewWorker(pipeline.WorkerParams{
		Queue:   queue,
		Store:   store,
		Gateway: gateway,
		Quota:   quotaService,
		Deriver: deriver,
		Metrics: pipelineMetrics,
		Logger:  logg,
		Config:  cfg.Pipeline,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pipeline worker", err)
		os.Exit(1)
	}

	uploader, err := pipeline.NewUploader(pipeline.UploaderParams{
		Store:   store,
		Queue:   queue,
		Metrics: pipelineMetrics,
		Logger:  logg,
		Config:  cfg.Pipeline,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create uploader", err)
		os.Exit(1)
	}

	reportService, err := reports.NewService(reports.Params{
		Store:   store,
		Gateway: gateway,
		Quota:   quotaService,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create report service", err)
		os.Exit(1)
	}

	schedulerLock, err := usagescheduler.NewRedisLock(redisClient, redisClient.LockKey("usage-rollover"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler lock", err)
		os.Exit(1)
	}
	scheduler, err := usagescheduler.NewScheduler(usagescheduler.SchedulerParams{
		Logger:   logg,
		Quota:    quotaService,
		Lock:     schedulerLock,
		Metrics:  metrics.NewSchedulerMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Usage.ResetCheckInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go worker.Run(ctx)
	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "usage scheduler stopped unexpectedly", err)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, store, uploader, quotaService, deriver, reportService, redisClient),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shut down gracefully")
}
