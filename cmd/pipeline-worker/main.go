// cmd/pipeline-worker/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"delivery-pipeline/internal/campaign"
	"delivery-pipeline/internal/channel"
	"delivery-pipeline/internal/common/aws"
	"delivery-pipeline/internal/common/clock"
	"delivery-pipeline/internal/common/config"
	"delivery-pipeline/internal/common/database"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/models"
	"delivery-pipeline/internal/queue"
	"delivery-pipeline/internal/render"
	"delivery-pipeline/internal/retry"
	"delivery-pipeline/internal/store"
	"delivery-pipeline/internal/tracking"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline worker...")

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	clk := clock.System()

	// --- Stores ---
	taskStore := store.NewTaskStore(pg.DB, clk)
	campaignStore := store.NewCampaignStore(pg.DB, clk)
	templateStore := store.NewTemplateStore(pg.DB, clk)
	logStore := store.NewLogStore(pg.DB, clk)
	trackingStore := store.NewTrackingStore(pg.DB)
	prefStore := store.NewPreferenceStore(pg.DB)
	inAppStore := store.NewInAppMessageStore(pg.DB)

	// --- Channel senders ---
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
	}
	if cfg.Channels.SMS.Enabled || cfg.Channels.Push.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Channels.AWS.Region)
		if err != nil {
			zapLog.Fatal("SNS client failed", zap.Error(err))
		}
		if cfg.Channels.SMS.Enabled {
			registry.Register(models.ChannelSMS, channel.NewSMSSender(snsClient, cfg.Channels.SMS.SenderID, log))
		}
		if cfg.Channels.Push.Enabled {
			registry.Register(models.ChannelPush, channel.NewPushSender(snsClient, log))
		}
	}

	// --- Queue engine ---
	locker := queue.NewRedisLocker(redisClient.Client, "")
	engine := queue.NewEngine(taskStore, prefStore, registry, render.New(log), retry.Policy{}, locker, clk, log, queue.Config{
		BatchLimit:  cfg.Queue.BatchLimit,
		MaxAttempts: cfg.Queue.MaxAttempts,
		LockTTL:     cfg.Queue.LockTTL,
	})

	// --- Campaign dispatcher ---
	var dispatcher *campaign.Dispatcher
	if emailSender != nil {
		injector := tracking.NewInjector(cfg.Campaigns.TrackingBaseURL, clk)
		dispatcher = campaign.NewDispatcher(campaignStore, templateStore, logStore, trackingStore,
			emailSender, injector, clk, log, campaign.Defaults{
				BatchSize:   cfg.Campaigns.DefaultBatchSize,
				SendDelayMs: cfg.Campaigns.DefaultSendDelayMs,
			})
	} else {
		zapLog.Warn("email channel disabled, campaign launcher not started")
	}

	// --- Scheduled ticks ---
	scheduler := cron.New()
	scheduler.Schedule(cron.Every(cfg.Queue.TickInterval), cron.FuncJob(func() {
		if _, err := engine.Tick(ctx); err != nil {
			zapLog.Error("queue tick failed", zap.Error(err))
		}
	}))
	if dispatcher != nil {
		scheduler.Schedule(cron.Every(time.Minute), cron.FuncJob(func() {
			if err := dispatcher.LaunchDue(ctx); err != nil {
				zapLog.Error("scheduled campaign launch failed", zap.Error(err))
			}
		}))
	}
	scheduler.Start()
	zapLog.Info("scheduler started",
		zap.Duration("tickInterval", cfg.Queue.TickInterval),
	)

	// --- Metrics and pprof ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/debug/", http.DefaultServeMux)
		if err := http.ListenAndServe(cfg.Server.MetricsAddress, mux); err != nil && err != http.ErrServerClosed {
			zapLog.Error("metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	zapLog.Info("Shutting down pipeline worker...")
	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
		zapLog.Warn("scheduler jobs still running at shutdown deadline")
	}
	zapLog.Info("Pipeline worker stopped")
}
