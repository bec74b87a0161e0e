package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iyhunko/price-tracker/internal/config"
	httpAPI "github.com/iyhunko/price-tracker/internal/http"
	"github.com/iyhunko/price-tracker/internal/http/controller"
	"github.com/iyhunko/price-tracker/internal/logger"
	"github.com/iyhunko/price-tracker/internal/metrics"
	"github.com/iyhunko/price-tracker/internal/repository/sql"
	"github.com/iyhunko/price-tracker/internal/service"
	sqspkg "github.com/iyhunko/price-tracker/internal/sqs"
	"github.com/iyhunko/price-tracker/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

func main() {
	conf, err := config.LoadFromEnv()
	handleErr("loading config", err)
	logger.InitJSONLogger(conf.DebugMode)

	ctx := context.Background()
	db, err := sql.StartDB(ctx, conf.Database)
	handleErr("starting database", err)
	defer db.Close()

	productRepository := sql.NewProductRepository(db)

	// Price drop events are optional for the tracker
	var publisher service.PriceEventPublisher
	if conf.AWS.SQSQueueURL != "" {
		sqsClient, err := sqspkg.NewClient(ctx, conf.AWS)
		handleErr("loading AWS config", err)
		publisher = sqspkg.NewPublisher(sqsClient, conf.AWS.SQSQueueURL)
	} else {
		slog.Info("SQS queue is not configured, price drop events are disabled")
	}

	// Report delivery is optional as well
	var documents service.DocumentSender
	notifier, err := telegram.NewNotifier(conf.Telegram)
	switch {
	case errors.Is(err, telegram.ErrNotConfigured):
		slog.Info("Telegram is not configured, report delivery is disabled")
	case err != nil:
		handleErr("connecting to telegram", err)
	default:
		documents = notifier
	}

	trackerService := service.NewTrackerService(productRepository, publisher, documents, conf.PriceDropThreshold)

	if !conf.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	ctr := controller.New(db)
	productCtr := controller.NewProductController(trackerService)
	router := httpAPI.InitRouter(gin.New(), ctr, productCtr)

	httpServer := &http.Server{
		Addr:              ":" + conf.HTTPServer.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("HTTP server starting", slog.String("port", conf.HTTPServer.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			handleErr("listening to HTTP requests", err)
		}
	}()

	metricsServer := metrics.StartMetricsServer(conf)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to stop HTTP server", slog.Any("err", err))
	}
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
