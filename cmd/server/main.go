package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invoice-service/config"
	"invoice-service/internal/api"
	"invoice-service/internal/auth"
	"invoice-service/internal/broker"
	"invoice-service/internal/redisclient"
	"invoice-service/internal/service"
	"invoice-service/internal/store"
	"invoice-service/internal/util"
	"invoice-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting invoice service", zap.String("broker", cfg.Broker.Driver))

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer("invoice-service", cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	readyChecks := map[string]api.ReadinessCheck{"database": db.Ping}

	// The product cache is optional; without Redis every read goes to Postgres.
	var cache service.ProductCache
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ProductTTL)
	if err != nil {
		logger.Warn("Redis unavailable, running without product cache", zap.Error(err))
	} else {
		defer redisClient.Close()
		cache = redisClient
		readyChecks["redis"] = redisClient.Ping
		logger.Info("Redis connected")
	}

	publisher, consumer, err := newBroker(cfg.Broker)
	if err != nil {
		logger.Fatal("Failed to initialize broker", zap.Error(err))
	}
	defer publisher.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	invoiceService := service.NewInvoiceService(db, cache, broker.NewEventPublisher(publisher), cfg.Business.OrderMaxRetries)
	catalogService := service.NewCatalogService(db, cache)
	accountService := service.NewAccountService(db, tokens)

	var stockWorker *worker.StockWorker
	if consumer != nil {
		stockWorker = worker.NewStockWorker(consumer, service.NewStockMonitor(db, cfg.Business.LowStockThreshold))
		go func() {
			if err := stockWorker.Start(context.Background()); err != nil {
				logger.Error("Stock worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Config{
		Invoices:      invoiceService,
		Catalog:       catalogService,
		Accounts:      accountService,
		Tokens:        tokens,
		AdminRoleID:   cfg.Auth.AdminRoleID,
		ManagerRoleID: cfg.Auth.ManagerRoleID,
		ReadyChecks:   readyChecks,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if stockWorker != nil {
		if err := stockWorker.Stop(); err != nil {
			logger.Error("Error stopping stock worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// newBroker builds the publisher and, when events are consumed, the consumer
// for the configured driver
func newBroker(cfg config.BrokerConfig) (broker.Publisher, broker.Consumer, error) {
	switch cfg.Driver {
	case "kafka":
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicInvoice)
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicInvoice, cfg.Kafka.ConsumerGroup)
		return producer, consumer, nil
	case "rabbitmq":
		publisher, err := broker.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, nil, err
		}
		consumer, err := broker.NewAMQPConsumer(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue)
		if err != nil {
			publisher.Close()
			return nil, nil, err
		}
		return publisher, consumer, nil
	case "none":
		return broker.NopPublisher{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}
