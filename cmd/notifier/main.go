package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	contracts "shiftnotify/contracts/mq"
	"shiftnotify/internal/config"
	"shiftnotify/internal/mqhandler"
	"shiftnotify/internal/notify"
	"shiftnotify/internal/repository"
	"shiftnotify/internal/service"
	"shiftnotify/pkg/db"
	"shiftnotify/pkg/logger"
	"shiftnotify/pkg/mq"
	"shiftnotify/pkg/redis"
	"shiftnotify/pkg/util"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting notifier...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("send_spec", cfg.Schedule.SendSpec),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis (event dedup)
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)

	// MQ publisher for sent/failed events
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	preferenceRepo := repository.NewPreferenceRepository(dbConn, log)

	// Delivery provider client
	notifyClient := notify.NewHTTPClient(cfg.Notify)

	// Services
	notificationService := service.NewNotificationService(
		notificationRepo,
		preferenceRepo,
		notifyClient,
		publisher,
		cfg.Notify.EmailTemplateID,
		cfg.Notify.SmsTemplateID,
		cfg.Query.DefaultMonths,
		time.Now,
		log,
	)

	// MQ consumer for shift.changed
	shiftChangedHandler := mqhandler.NewShiftChangedHandler(notificationRepo, deduper, log)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "shift.changed.q", contracts.RoutingKeyShiftChanged, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(shiftChangedHandler.Handle)

	go func() {
		log.Info("Starting shift.changed consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("shift.changed consumer failed", zap.Error(err))
		}
	}()

	// Scheduled send job
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Schedule.SendSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := notificationService.SendNotifications(ctx); err != nil {
			log.Error("Send run failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal("Failed to schedule send job", zap.Error(err))
	}
	scheduler.Start()

	// Metrics endpoint
	metricsSrv := &http.Server{
		Addr:    ":" + cfg.Server.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		log.Info("Metrics server starting", zap.String("port", cfg.Server.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Metrics server failed", zap.Error(err))
		}
	}()

	log.Info("notifier is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notifier gracefully...")

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server shutdown error", zap.Error(err))
	}

	log.Info("notifier shutdown complete")
}
