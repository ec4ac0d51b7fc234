// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"delivery-pipeline/internal/campaign"
	"delivery-pipeline/internal/channel"
	"delivery-pipeline/internal/common/aws"
	"delivery-pipeline/internal/common/clock"
	"delivery-pipeline/internal/common/config"
	"delivery-pipeline/internal/common/database"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/handler"
	"delivery-pipeline/internal/models"
	"delivery-pipeline/internal/queue"
	"delivery-pipeline/internal/render"
	"delivery-pipeline/internal/retry"
	"delivery-pipeline/internal/store"
	"delivery-pipeline/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting API server...")

	ctx := context.Background()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres init failed", zap.Error(err))
	}
	if err := pg.Ping(ctx); err != nil {
		zapLog.Fatal("postgres unreachable", zap.Error(err))
	}
	defer pg.Close()

	clk := clock.System()

	taskStore := store.NewTaskStore(pg.DB, clk)
	campaignStore := store.NewCampaignStore(pg.DB, clk)
	templateStore := store.NewTemplateStore(pg.DB, clk)
	logStore := store.NewLogStore(pg.DB, clk)
	trackingStore := store.NewTrackingStore(pg.DB)
	prefStore := store.NewPreferenceStore(pg.DB)
	inAppStore := store.NewInAppMessageStore(pg.DB)

	registry := channel.NewRegistry()
	registry.Register(models.ChannelInApp, channel.NewInAppSender(inAppStore, clk))

	var emailSender channel.Sender
	if cfg.Channels.Email.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Channels.AWS.Region)
		if err != nil {
			zapLog.Fatal("SES client failed", zap.Error(err))
		}
		emailSender = channel.NewEmailSender(sesClient, cfg.Channels.Email.FromEmail,
			cfg.Channels.Email.RatePerSecond, cfg.Channels.Email.Timeout, log)
		registry.Register(models.ChannelEmail, emailSender)
	} else {
		zapLog.Fatal("email channel must be enabled for the API server")
	}

	// Scheduling and cancellation go through the engine; ticks run in
	// the worker binary, so no locker is needed here.
	engine := queue.NewEngine(taskStore, prefStore, registry, render.New(log), retry.Policy{}, nil, clk, log, queue.Config{
		BatchLimit:  cfg.Queue.BatchLimit,
		MaxAttempts: cfg.Queue.MaxAttempts,
	})

	injector := tracking.NewInjector(cfg.Campaigns.TrackingBaseURL, clk)
	dispatcher := campaign.NewDispatcher(campaignStore, templateStore, logStore, trackingStore,
		emailSender, injector, clk, log, campaign.Defaults{
			BatchSize:   cfg.Campaigns.DefaultBatchSize,
			SendDelayMs: cfg.Campaigns.DefaultSendDelayMs,
		})

	router := handler.NewRouter(
		handler.NewCampaignHandler(dispatcher, log),
		handler.NewQueueHandler(engine, log),
		handler.NewTrackingHandler(trackingStore, clk, log),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Server.MetricsAddress, mux); err != nil && err != http.ErrServerClosed {
			zapLog.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	zapLog.Info("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("shutdown failed", zap.Error(err))
	}
	zapLog.Info("API server stopped")
}
