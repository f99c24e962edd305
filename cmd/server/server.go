package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axellelanca/trafficstats/cmd"
	"github.com/axellelanca/trafficstats/internal/api"
	"github.com/axellelanca/trafficstats/internal/auth"
	"github.com/axellelanca/trafficstats/internal/cache"
	"github.com/axellelanca/trafficstats/internal/database"
	"github.com/axellelanca/trafficstats/internal/monitor"
	"github.com/axellelanca/trafficstats/internal/repository"
	"github.com/axellelanca/trafficstats/internal/scheduler"
	"github.com/axellelanca/trafficstats/internal/services"
	"github.com/axellelanca/trafficstats/internal/workers"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server and the writers.
const shutdownTimeout = 10 * time.Second

// RunServerCmd represents the 'run-server' command.
// It is the entry point that starts the tracking API and the background processes.
var RunServerCmd = &cobra.Command{
	Use:   "run-server",
	Short: "Start the traffic API server and its background processes.",
	Long: `This command opens and migrates the database, sets up the tracking middleware
and the report endpoints, starts the traffic writers, the session monitor and
the maintenance scheduler, then serves HTTP until SIGINT or SIGTERM.`,
	RunE: func(c *cobra.Command, _ []string) error {
		return run(c.Context())
	},
}

func run(parent context.Context) error {
	cfg := cmd.Cfg
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	gin.SetMode(cfg.Server.Mode)

	db, err := cmd.OpenDatabase()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Warn("failed to close database", slog.Any("error", err))
		}
	}()

	userRepo := repository.NewUserRepository(db)
	visitorRepo := repository.NewVisitorRepository(db)
	trafficRepo := repository.NewTrafficRepository(db)
	slog.Info("repositories initialized", slog.String("driver", cfg.Database.Driver))

	if cfg.Auth.JWTSecret == "" {
		secret, err := auth.GenerateSecret(32)
		if err != nil {
			return fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		cfg.Auth.JWTSecret = secret
		slog.Warn("auth.jwt_secret is not set, tokens will not survive a restart")
	}

	reportCache := cache.NewWithFallback(ctx, cache.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB))
	defer reportCache.Close()

	var recorder services.Recorder = services.NewSyncRecorder(trafficRepo)
	var asyncRecorder *workers.AsyncRecorder
	if cfg.Tracking.Mode == "async" {
		asyncRecorder = workers.NewAsyncRecorder(cfg.Tracking.BufferSize, cfg.Tracking.WorkerCount, trafficRepo)
		recorder = asyncRecorder
		slog.Info("traffic writers started",
			slog.Int("buffer", cfg.Tracking.BufferSize),
			slog.Int("workers", cfg.Tracking.WorkerCount))
	}

	deps := api.Dependencies{
		Config:   cfg,
		Location: loc,
		Users:    userRepo,
		Tracking: services.NewTrackingService(visitorRepo, cfg.Session.Timeout),
		Recorder: recorder,
		Reports: services.NewReportService(trafficRepo, reportCache, services.ReportOptions{
			Location: loc,
			Locale:   services.NewLocale(cfg.App.Locale),
			CacheTTL: cfg.Cache.ReportTTL,
		}),
		Activity:   services.NewActivityService(visitorRepo),
		Presence:   services.NewUserActivityService(userRepo, visitorRepo, trafficRepo, cfg.Presence.OnlineWindow, cfg.Session.Timeout, loc),
		RequestLog: services.NewRequestLogService(userRepo, trafficRepo, loc),
	}
	slog.Info("services initialized",
		slog.String("cache", string(cache.TypeOf(reportCache))),
		slog.String("timezone", loc.String()),
		slog.String("locale", cfg.App.Locale))

	sessionMonitor := monitor.NewSessionMonitor(visitorRepo, trafficRepo,
		cfg.Presence.SweepInterval, cfg.Session.Timeout, cfg.Presence.OnlineWindow)
	deps.Online = sessionMonitor

	router := gin.New()
	if err := api.SetupRoutes(router, deps); err != nil {
		return err
	}

	go sessionMonitor.Start(ctx)

	sched := scheduler.NewScheduler(trafficRepo, cfg.Retention.Days, cfg.Retention.Cron)
	if _, err := sched.RegisterJobs(); err != nil {
		return err
	}
	sched.Start()

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", slog.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err, ok := <-serverErr:
		if ok {
			sched.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.Any("error", err))
	}
	if asyncRecorder != nil {
		if err := asyncRecorder.Close(shutdownCtx); err != nil {
			slog.Error("traffic writers did not drain", slog.Any("error", err))
		}
	}
	sched.Stop()
	cancel()

	slog.Info("server stopped")
	return nil
}

func init() {
	cmd.RootCmd.AddCommand(RunServerCmd)
}
