package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iyhunko/price-tracker/internal/config"
	"github.com/iyhunko/price-tracker/internal/logger"
	"github.com/iyhunko/price-tracker/internal/metrics"
	"github.com/iyhunko/price-tracker/internal/service"
	sqspkg "github.com/iyhunko/price-tracker/internal/sqs"
	"github.com/iyhunko/price-tracker/internal/telegram"
)

func main() {
	conf, err := config.LoadFromEnv()
	handleErr("loading config", err)
	handleErr("validating notifier config", conf.ValidateNotifier())
	logger.InitJSONLogger(conf.DebugMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier, err := telegram.NewNotifier(conf.Telegram)
	handleErr("connecting to telegram", err)
	alerts := service.NewAlertService(notifier)

	sqsClient, err := sqspkg.NewClient(ctx, conf.AWS)
	handleErr("loading AWS config", err)
	consumer := sqspkg.NewConsumer(sqsClient, conf.AWS.SQSQueueURL, alerts.HandlePriceChange)

	metricsServer := metrics.StartMetricsServer(conf)

	// Start consuming messages
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Consumer error", slog.Any("err", err))
		}
	}()

	slog.Info("Notifier started. Listening for price events...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("Shutting down gracefully...")
	cancel()
	<-done

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to stop metrics server", slog.Any("err", err))
	}
}

func handleErr(msg string, err error) {
	if err != nil {
		slog.Error("error while "+msg, slog.Any("err", err))
		os.Exit(1)
	}
}
