package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	catalogcache "github.com/hireloop/entitlements-engine/cache"
	tracerConfig "github.com/hireloop/entitlements-engine/config"
	"github.com/hireloop/entitlements-engine/config/database"
	"github.com/hireloop/entitlements-engine/config/kafka"
	"github.com/hireloop/entitlements-engine/config/redis"
	"github.com/hireloop/entitlements-engine/engine"
	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/server"
	"github.com/hireloop/entitlements-engine/utils"
)

const (
	envEnv                      = "ENV"
	envSentryDsn                = "SENTRY_DSN"
	envOtelExporterOtlpEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOtelInsecure             = "OTEL_INSECURE"
	envOtelServiceName          = "OTEL_SERVICE_NAME"

	// Datadog environment variable
	envDatadogAgentHost = "DD_AGENT_HOST"
	envDatadogAgentPort = "DD_TRACE_AGENT_PORT"
	envDatadogService   = "DD_SERVICE_NAME"

	envEntitlementsAdminServerAddr         = "ENTITLEMENTS_ADMIN_SERVER_ADDR"
	envEntitlementsCatalogCacheEnabled     = "ENTITLEMENTS_CATALOG_CACHE_ENABLED"
	envEntitlementsCatalogCdcTopicPrefix   = "ENTITLEMENTS_CATALOG_CDC_TOPIC_PREFIX"
	envEntitlementsDatabaseMaxConnections  = "ENTITLEMENTS_DATABASE_MAX_CONNECTIONS"
	envEntitlementsKafkaBootstrapServers   = "ENTITLEMENTS_KAFKA_BOOTSTRAP_SERVERS"
	envEntitlementsKafkaNotificationsTopic = "ENTITLEMENTS_KAFKA_NOTIFICATIONS_TOPIC"
	envEntitlementsKafkaPassword           = "ENTITLEMENTS_KAFKA_PASSWORD"
	envEntitlementsKafkaScramAlgorithm     = "ENTITLEMENTS_KAFKA_SCRAM_ALGORITHM"
	envEntitlementsKafkaTLS                = "ENTITLEMENTS_KAFKA_TLS"
	envEntitlementsKafkaUsername           = "ENTITLEMENTS_KAFKA_USERNAME"
	envEntitlementsRedisCacheDB            = "ENTITLEMENTS_REDIS_CACHE_DB"
	envEntitlementsRedisCachePassword      = "ENTITLEMENTS_REDIS_CACHE_PASSWORD"
	envEntitlementsRedisCacheTLS           = "ENTITLEMENTS_REDIS_CACHE_TLS"
	envEntitlementsRedisCacheURL           = "ENTITLEMENTS_REDIS_CACHE_URL"
	envEntitlementsRedisStoreDB            = "ENTITLEMENTS_REDIS_STORE_DB"
	envEntitlementsRedisStorePassword      = "ENTITLEMENTS_REDIS_STORE_PASSWORD"
	envEntitlementsRedisStoreTLS           = "ENTITLEMENTS_REDIS_STORE_TLS"
	envEntitlementsRedisStoreURL           = "ENTITLEMENTS_REDIS_STORE_URL"
	envEntitlementsRefreshFlagSet          = "ENTITLEMENTS_REFRESH_FLAG_SET"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).
		With("service", "entitlements")
	slog.SetDefault(logger)

	setupGracefulShutdown(cancel, logger)

	if os.Getenv(envDatadogAgentHost) != "" {
		initDatadog(logger)
		defer tracer.Stop()
	}

	otelEndpoint := os.Getenv(envOtelExporterOtlpEndpoint)
	if otelEndpoint != "" {
		telemetryCfg := tracerConfig.TracerConfig{
			ServiceName: os.Getenv(envOtelServiceName),
			EndpointURL: otelEndpoint,
			Insecure:    os.Getenv(envOtelInsecure),
		}
		tracerConfig.InitOTLPTracer(telemetryCfg)
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              os.Getenv(envSentryDsn),
		Environment:      os.Getenv(envEnv),
		Debug:            false,
		AttachStacktrace: true,
	})

	if err != nil {
		fmt.Printf("Sentry initialization failed: %v\n", err)
	}

	defer sentry.Flush(2 * time.Second)

	run(ctx, logger, otelEndpoint != "")
}

func run(ctx context.Context, logger *slog.Logger, useTelemetry bool) {
	serverBrokers := utils.ParseBrokersEnv(os.Getenv(envEntitlementsKafkaBootstrapServers))
	if len(serverBrokers) == 0 {
		logger.Error("brokers not found")
		panic("brokers not found")
	}

	kafkaConfig := kafka.ServerConfig{
		ScramAlgorithm: os.Getenv(envEntitlementsKafkaScramAlgorithm),
		TLS:            os.Getenv(envEntitlementsKafkaTLS) == "true",
		Servers:        serverBrokers,
		UseTelemetry:   useTelemetry,
		UserName:       os.Getenv(envEntitlementsKafkaUsername),
		Password:       os.Getenv(envEntitlementsKafkaPassword),
	}

	notificationsProducerResult := initProducer(ctx, kafkaConfig, envEntitlementsKafkaNotificationsTopic)
	if notificationsProducerResult.Failure() {
		logger.Error(notificationsProducerResult.ErrorMsg())
		utils.CaptureErrorResult(notificationsProducerResult)
		panic(notificationsProducerResult.ErrorMsg())
	}

	maxConns, err := utils.GetEnvAsInt(envEntitlementsDatabaseMaxConnections, 200)
	if err != nil {
		logger.Error("Error converting max connections into integer", slog.String("error", err.Error()))
		utils.CaptureError(err)
		panic(err.Error())
	}

	dbConfig := database.DBConfig{
		Url:      os.Getenv("DATABASE_URL"),
		MaxConns: int32(maxConns),
	}

	db, err := database.NewConnection(dbConfig)
	if err != nil {
		logger.Error("Error connecting to the database", slog.String("error", err.Error()))
		utils.CaptureError(err)
		panic(err.Error())
	}
	apiStore := models.NewApiStore(db)
	defer db.Close()

	flagSetName := utils.GetEnv(envEntitlementsRefreshFlagSet, "entitlements_refreshed")

	flagger, err := initFlagStore(ctx, flagSetName)
	if err != nil {
		logger.Error("Error connecting to the flag store", slog.String("error", err.Error()))
		utils.CaptureError(err)
		panic(err.Error())
	}
	defer flagger.Close()

	usageCache, err := initUsageCache(ctx)
	if err != nil {
		logger.Error("Error connecting to the usage cache store", slog.String("error", err.Error()))
		utils.CaptureError(err)
		panic(err.Error())
	}
	defer usageCache.CacheStore.Close()

	var catalog models.CatalogReader = apiStore
	if utils.GetEnvAsBool(envEntitlementsCatalogCacheEnabled, false) {
		cc, err := initCatalogCache(ctx, logger, kafkaConfig, apiStore)
		if err != nil {
			logger.Error("Error starting the catalog cache", slog.String("error", err.Error()))
			utils.CaptureError(err)
			panic(err.Error())
		}
		defer cc.Close()
		catalog = cc
	}

	notifier := engine.NewProvisioningNotifier(notificationsProducerResult.Value(), logger)
	resolver := engine.NewSubscriptionResolver(apiStore, notifier, logger)
	checker := engine.NewEntitlementChecker(apiStore, catalog)
	committer := engine.NewConsumptionCommitter(apiStore, checker, usageCache, logger)
	admin := engine.NewAdminService(apiStore, catalog, resolver, usageCache, flagger, logger)
	eng := engine.NewEngine(resolver, checker, committer, admin)

	addr := utils.GetEnv(envEntitlementsAdminServerAddr, ":8090")

	handlers := server.NewHandlers(eng.Admin(), logger)
	srv := server.NewServer(addr, handlers, logger)

	if err := srv.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("admin server stopped", slog.String("error", err.Error()))
		utils.CaptureError(err)
	}
}

func initProducer(ctx context.Context, kafkaConfig kafka.ServerConfig, topicEnv string) utils.Result[*kafka.Producer] {
	if os.Getenv(topicEnv) == "" {
		return utils.FailedResult[*kafka.Producer](fmt.Errorf("%s variable is required", topicEnv))
	}

	topic := os.Getenv(topicEnv)

	producer, err := kafka.NewProducer(
		kafkaConfig,
		&kafka.ProducerConfig{
			Topic: topic,
		})
	if err != nil {
		return utils.FailedResult[*kafka.Producer](err)
	}

	err = producer.Ping(ctx)
	if err != nil {
		return utils.FailedResult[*kafka.Producer](err)
	}

	return utils.SuccessResult(producer)
}

func initFlagStore(ctx context.Context, name string) (*models.FlagStore, error) {
	redisDb, err := utils.GetEnvAsInt(envEntitlementsRedisStoreDB, 0)
	if err != nil {
		return nil, err
	}

	redisConfig := redis.RedisConfig{
		Address:  os.Getenv(envEntitlementsRedisStoreURL),
		Password: os.Getenv(envEntitlementsRedisStorePassword),
		DB:       redisDb,
		UseTLS:   utils.GetEnvAsBool(envEntitlementsRedisStoreTLS, false),
	}

	db, err := redis.NewRedisDB(ctx, redisConfig)
	if err != nil {
		return nil, err
	}

	return models.NewFlagStore(ctx, db, name), nil
}

func initUsageCache(ctx context.Context) (*models.UsageCache, error) {
	redisDb, err := utils.GetEnvAsInt(envEntitlementsRedisCacheDB, 0)
	if err != nil {
		return nil, err
	}

	redisConfig := redis.RedisConfig{
		Address:  os.Getenv(envEntitlementsRedisCacheURL),
		Password: os.Getenv(envEntitlementsRedisCachePassword),
		DB:       redisDb,
		UseTLS:   utils.GetEnvAsBool(envEntitlementsRedisCacheTLS, false),
	}

	db, err := redis.NewRedisDB(ctx, redisConfig)
	if err != nil {
		return nil, err
	}

	cacheStore := models.NewCacheStore(ctx, db)
	var store models.Cacher = cacheStore

	return models.NewUsageCache(&store), nil
}

func initCatalogCache(ctx context.Context, logger *slog.Logger, kafkaConfig kafka.ServerConfig, store *models.ApiStore) (*catalogcache.Cache, error) {
	topicPrefix := utils.GetEnv(envEntitlementsCatalogCdcTopicPrefix, "entitlements_cdc")

	cc, err := catalogcache.NewCache(catalogcache.CacheConfig{
		Context:     ctx,
		Logger:      logger,
		Kafka:       kafkaConfig,
		TopicPrefix: topicPrefix,
	})
	if err != nil {
		return nil, err
	}

	cc.LoadInitialSnapshot(store)
	cc.ConsumeChanges()

	return cc, nil
}

func setupGracefulShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	signChan := make(chan os.Signal, 1)
	signal.Notify(signChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()
}

func initDatadog(logger *slog.Logger) {
	serviceName := utils.GetEnv(envDatadogService, "entitlements-engine")
	env := utils.GetEnv(envEnv, "development")

	options := []tracer.StartOption{
		tracer.WithServiceName(serviceName),
		tracer.WithEnv(env),
	}

	agentHost := os.Getenv(envDatadogAgentHost)
	agentPort := utils.GetEnv(envDatadogAgentPort, "8126")
	options = append(options, tracer.WithAgentAddr(fmt.Sprintf("%s:%s", agentHost, agentPort)))

	tracer.Start(options...)
	logger.Info("Datadog tracer started",
		slog.String("service", serviceName),
	)
}
