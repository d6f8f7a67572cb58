package main

import (
	"context"
	"strings"
	"time"

	"github.com/lifeinbox/intake/internal/dump"
	"github.com/lifeinbox/intake/internal/enrich"
	"github.com/lifeinbox/intake/internal/handlers"
	"github.com/lifeinbox/intake/internal/hooks"
	"github.com/lifeinbox/intake/internal/pipeline"
	"github.com/lifeinbox/intake/pkg/cache"
	"github.com/lifeinbox/intake/pkg/config"
	"github.com/lifeinbox/intake/pkg/database"
	"github.com/lifeinbox/intake/pkg/kafka"
	"github.com/lifeinbox/intake/pkg/llm"
	"github.com/lifeinbox/intake/pkg/logging"
	"github.com/lifeinbox/intake/pkg/monitoring"
	"github.com/lifeinbox/intake/pkg/redis"
	"github.com/lifeinbox/intake/pkg/resilience"
	"github.com/lifeinbox/intake/pkg/server"
	"github.com/lifeinbox/intake/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("curator")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Curator (Content Intake API)")

	// Connect to database
	db := database.MustConnect(database.ConfigFromEnv(), logger)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("curator", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("curator", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": config.GetEnv("DATABASE_URL", ""),
	}))

	processed, stepDuration, fallbacks := metricsCollector.CreatePipelineMetrics()

	// Redis backs dedupe and suggestion fan-out. The service degrades
	// without it: duplicates slip through and UI notifications stop.
	var deduper *redis.Deduper
	var notifier hooks.Notifier
	redisClient, err := redis.NewUniversalClient(ctx, redis.ConfigFromEnv())
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without dedupe and notifications")
	} else {
		defer redisClient.Close()
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
		deduper = redis.NewDeduper(redisClient, "curator:dedupe",
			config.GetEnvDuration("DEDUPE_TTL", 24*time.Hour))
		notifier = redis.NewTypedPubSub[hooks.Notification](redisClient, logger)
	}

	// Kafka carries content events between the pipeline and the hooks.
	var producer *kafka.Producer
	brokers := splitBrokers(config.GetEnv("KAFKA_BROKERS", ""))
	if len(brokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, content events disabled and hooks running in-process")
	} else {
		producer, err = kafka.NewProducer(brokers, "curator", logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(producer.GetClient()))
	}

	// LLM provider backs semantic analysis. Required: without it every
	// dump would carry the placeholder summary.
	provider, err := llm.NewProvider(llm.LoadConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to create LLM provider")
	}
	analyzer := enrich.NewAnalyzer(provider, logger)

	var embedder pipeline.Embedder
	embeddingClient, err := llm.NewEmbeddingClient(llm.LoadEmbeddingConfig())
	if err != nil {
		logger.WithError(err).Warn("Embedding client unavailable, dumps will not be vectorized")
	} else {
		embedder = embeddingClient
	}

	registry := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: uint(config.GetEnvInt("BREAKER_FAILURE_THRESHOLD", 5)),
		ResetWindow:      config.GetEnvDuration("BREAKER_RESET_WINDOW", 60*time.Second),
	}, logger)

	retryOpts := resilience.DefaultOptions()
	retryOpts.MaxRetries = config.GetEnvInt("ENRICH_MAX_RETRIES", 3)
	retryOpts.AttemptTimeout = config.GetEnvDuration("ENRICH_ATTEMPT_TIMEOUT", 30*time.Second)

	store := dump.NewStore(db, logger)

	var publisher pipeline.Publisher
	if producer != nil {
		publisher = producer
	}

	// Hooks turn persisted dumps into suggestions. With Kafka they run off
	// the content_events topic; without it the pipeline invokes them
	// in-process so a single-node deployment keeps the same behavior.
	var hookProducer hooks.Publisher
	if producer != nil {
		hookProducer = producer
	}
	dispatcher := hooks.NewDispatcher(hooks.Config{
		Logger:   logger,
		Store:    store,
		Producer: hookProducer,
		Notifier: notifier,
		Source:   "curator",
	})
	defer dispatcher.Wait()

	var pipelineHooks pipeline.Hooks
	if len(brokers) == 0 {
		pipelineHooks = dispatcher
	}

	pipe := pipeline.New(pipeline.Deps{
		Logger:    logger,
		Registry:  registry,
		Store:     store,
		Analyzer:  analyzer,
		Embedder:  embedder,
		Publisher: publisher,
		Hooks:     pipelineHooks,
		Deduper:   deduper,
		Metrics: pipeline.Metrics{
			Processed:    processed,
			StepDuration: stepDuration,
			Fallbacks:    fallbacks,
		},
		Retry:  retryOpts,
		Source: "curator",
	})

	if len(brokers) > 0 {
		consumer, err := kafka.NewConsumer(brokers,
			config.GetEnv("KAFKA_GROUP_ID", "curator-hooks"), "curator", logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka consumer")
		}
		defer consumer.Close()
		consumer.SetDLQ(producer)
		consumer.AddHandler(kafka.TopicContentEvents,
			kafka.NewContentEventHandler(dispatcher.HandleContentEvent).HandleMessage)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.WithError(err).Error("Kafka consumer stopped")
			}
		}()
	}

	dumpCache := cache.New[*dump.Dump](cache.Options{
		TTL:                  config.GetEnvDuration("DUMP_CACHE_TTL", 30*time.Second),
		StaleWhileRevalidate: 5 * time.Second,
		NegativeTTL:          5 * time.Second,
		MaxEntries:           config.GetEnvInt("DUMP_CACHE_MAX_ENTRIES", 10000),
	}, cache.MetricsHooks{})

	// Initialize handlers
	handlers.Init(handlers.Dependencies{
		Logger:    logger,
		Pipeline:  pipe,
		Store:     store,
		Registry:  registry,
		DumpCache: dumpCache,
	})

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "curator", healthChecker, metricsCollector)
	handlers.RegisterRoutes(router)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("curator", "18090")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}

func splitBrokers(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
