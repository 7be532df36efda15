package app

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	platformlogging "github.com/billjohnathan8/CS302-DonDonDevOps/platform/logging"
	platformobservability "github.com/billjohnathan8/CS302-DonDonDevOps/platform/observability"
	platformshutdown "github.com/billjohnathan8/CS302-DonDonDevOps/platform/shutdown"

	httpapi "github.com/billjohnathan8/CS302-DonDonDevOps/internal/api/http"
	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/config"
	eventkafka "github.com/billjohnathan8/CS302-DonDonDevOps/internal/event/kafka"
	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository"
	memorystore "github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository/memory"
	mongostore "github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository/mongo"
	redisstore "github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository/redis"
	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/service"
)

// App содержит все зависимости для запуска и корректного shutdown Promotions Service
type App struct {
	logger            *zap.Logger
	httpServer        *http.Server
	lowStockConsumer  *eventkafka.LowStockConsumer
	restockedConsumer *eventkafka.RestockedConsumer
	shutdownMgr       *platformshutdown.Manager
	wg                sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Promotions Service
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "promotions",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("op", op))
	logger.Info("Building Promotions service",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("processed_backend", cfg.ProcessedBackend),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.String("promotion_events_topic", cfg.PromotionEventsTopic),
		zap.String("notifications_topic", cfg.NotificationTopic),
	)

	// OpenTelemetry (noop если выключено)
	otelShutdown, err := platformobservability.Init(context.Background(), platformobservability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           "promotions",
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return nil, err
	}

	// Создаём shutdown manager
	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	shutdownMgr.Add("otel", otelShutdown)

	// Хранилище промоакций: memory или mongo
	var store repository.PromotionStore
	readiness := func() bool { return true }

	switch cfg.StoreBackend {
	case config.StoreBackendMongo:
		logger.Info("Connecting to MongoDB")
		client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, err
		}
		if err := client.Ping(context.Background(), nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info("MongoDB connection established")

		store = mongostore.NewStore(client, cfg.MongoDBName)
		readiness = func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(ctx, nil) == nil
		}
		shutdownMgr.Add("mongo_client", platformshutdown.DisconnectMongo(client))
	default:
		logger.Info("Using in-memory promotion store")
		store = memorystore.NewStore()
	}

	// Хранилище обработанных событий (дедупликация low_stock): memory или redis
	var processed service.ProcessedEventsStore
	switch cfg.ProcessedBackend {
	case config.ProcessedBackendRedis:
		logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, err
		}
		logger.Info("Redis connection established")

		processed = redisstore.NewProcessedEventsStore(redisClient, logger)
		shutdownMgr.Add("redis_client", platformshutdown.CloseClient(redisClient))
	default:
		logger.Info("Using in-memory processed events store")
		processed = service.NewMemoryProcessedEventsStore()
	}

	// Publisher доменных событий: два независимых канала (домен + уведомления)
	publisher := eventkafka.NewPromotionEventPublisher(
		logger,
		cfg.KafkaBrokers,
		cfg.PromotionEventsTopic,
		cfg.NotificationTopic,
	)
	shutdownMgr.Add("event_publisher", platformshutdown.CloseClient(publisher))

	// Service слой
	promotionService := service.NewPromotionService(logger, store, publisher)
	linkService := service.NewProductPromotionService(logger, store, publisher)
	lowStockService := service.NewLowStockPromotionService(logger, promotionService, linkService, processed)
	restockService := service.NewRestockPromotionService(logger, store, promotionService)

	// DLQ publisher для необрабатываемых сообщений
	dlqPublisher := eventkafka.NewDLQPublisher(logger, cfg.KafkaBrokers, cfg.DLQTopic)

	// Kafka consumers входящих событий склада
	lowStockConsumer := eventkafka.NewLowStockConsumer(
		logger,
		cfg.KafkaBrokers,
		cfg.LowStockGroupID,
		cfg.LowStockTopic,
		lowStockService,
		dlqPublisher,
		cfg.KafkaRetryMaxAttempts,
		cfg.KafkaRetryBackoffBase,
	)

	restockedConsumer := eventkafka.NewRestockedConsumer(
		logger,
		cfg.KafkaBrokers,
		cfg.RestockedGroupID,
		cfg.RestockedTopic,
		restockService,
		dlqPublisher,
		cfg.KafkaRetryMaxAttempts,
		cfg.KafkaRetryBackoffBase,
	)

	// HTTP сервер
	handler := httpapi.NewHandler(logger, promotionService)
	linkHandler := httpapi.NewProductPromotionHandler(logger, linkService)
	router := httpapi.NewRouter(handler, linkHandler, readiness, logger)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Shutdown в обратном порядке регистрации: сперва HTTP, потом consumers, потом клиенты
	shutdownMgr.Add("dlq_publisher", platformshutdown.CloseClient(dlqPublisher))
	shutdownMgr.Add("kafka_restocked_consumer", platformshutdown.CloseClient(restockedConsumer))
	shutdownMgr.Add("kafka_low_stock_consumer", platformshutdown.CloseClient(lowStockConsumer))
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))

	return &App{
		logger:            logger,
		httpServer:        httpServer,
		lowStockConsumer:  lowStockConsumer,
		restockedConsumer: restockedConsumer,
		shutdownMgr:       shutdownMgr,
	}, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting Promotions service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// HTTP сервер
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	a.logger.Info("HTTP server listening", zap.String("addr", a.httpServer.Addr))

	// Consumers входящих событий склада
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.lowStockConsumer.Start(ctx); err != nil {
			a.logger.Error("kafka low stock consumer error", zap.Error(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.restockedConsumer.Start(ctx); err != nil {
			a.logger.Error("kafka restocked consumer error", zap.Error(err))
		}
	}()

	a.logger.Info("Kafka consumers started")

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait()

	cancel()
	a.wg.Wait()

	a.logger.Info("Promotions service stopped")
	return nil
}
