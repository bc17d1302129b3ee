package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/internal/database/kafka"
	"github.com/bigballadanny/dwschatbot/internal/database/milvus"
	"github.com/bigballadanny/dwschatbot/internal/database/minio"
	"github.com/bigballadanny/dwschatbot/internal/database/mongo"
	"github.com/bigballadanny/dwschatbot/internal/database/mysql"
	"github.com/bigballadanny/dwschatbot/internal/discovery/etcd"
	"github.com/bigballadanny/dwschatbot/internal/embedding"
	"github.com/bigballadanny/dwschatbot/internal/llm"
	"github.com/bigballadanny/dwschatbot/internal/rag/embeddings"
	"github.com/bigballadanny/dwschatbot/internal/rag/extractors"
	"github.com/bigballadanny/dwschatbot/internal/rag/llms"
	"github.com/bigballadanny/dwschatbot/internal/rag/pipeline"
	"github.com/bigballadanny/dwschatbot/internal/rag/splitters"
	"github.com/bigballadanny/dwschatbot/internal/rag/storages/vectorstore"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/api"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/consumer"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/publisher"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/service"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/store"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/worker"
	"github.com/bigballadanny/dwschatbot/pkg/circuitbreaker"
	pkghttp "github.com/bigballadanny/dwschatbot/pkg/http"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
	"github.com/bigballadanny/dwschatbot/pkg/retry"
)

const (
	serviceName = "transcript_service"

	// etcdLeaseTTL is the registration lease in seconds; the keepalive
	// refreshes it until shutdown.
	etcdLeaseTTL = 10

	// milvusFlushInterval bounds how long a freshly embedded chunk can stay
	// unsearchable.
	milvusFlushInterval = 30 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	serviceLogger := logger.New("TranscriptService", "", "")

	stuckAfter := mustDuration(serviceLogger, "processing.stuckThreshold", cfg.Processing.StuckThreshold)
	sweepInterval := mustDuration(serviceLogger, "processing.sweepInterval", cfg.Processing.SweepInterval)

	// ctx ends on SIGINT/SIGTERM and stops the consumer, the workers and the
	// sweeper together with the HTTP server.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Backing stores
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to connect to MySQL: %v", err))
	}
	sqlStore := store.NewStore(db, cfg.Chunking.BatchSize)
	if err := sqlStore.Migrate(); err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to migrate MySQL schema: %v", err))
	}

	mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to connect to MongoDB: %v", err))
	}
	auditStore := store.NewMongoAuditStore(
		mongoClient.Database(cfg.Databases.MongoDB.Database),
		cfg.Databases.MongoDB.AuditCollection,
	)

	minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to connect to MinIO: %v", err))
	}
	if err := minio.EnsureBucket(ctx, cfg.Databases.MinIO.Bucket); err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to ensure MinIO bucket: %v", err))
	}
	objects := service.NewMinioObjects(minioClient, cfg.Databases.MinIO.Bucket)

	milvusClient, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to connect to Milvus: %v", err))
	}
	if err := milvusClient.EnsureCollection(ctx); err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to ensure Milvus collection: %v", err))
	}
	milvusClient.StartAutoFlush(milvusFlushInterval)

	vectors, err := vectorstore.NewMilvusStore(milvusClient, cfg.Databases.Milvus.Schema.CollectionName, serviceLogger)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to create vector store: %v", err))
	}

	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to connect to Kafka: %v", err))
	}
	events := publisher.NewEventPublisher(kafkaClient.Writer, serviceLogger)

	// Models
	embedModel, err := embedding.NewModel(ctx, cfg.Embedding)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to create embedding model: %v", err))
	}
	embedder := embeddings.NewBatcher(embedModel, cfg.Embedding.BatchSize, cfg.Embedding.Parallelism)

	provider, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to create LLM client: %v", err))
	}
	var breaker *circuitbreaker.Breaker
	if cb := cfg.Middleware.CircuitBreaker; cb.Enabled {
		cooldown := mustDuration(serviceLogger, "middleware.circuitBreaker.timeout", cb.Timeout)
		breaker = circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, cooldown)
	}
	llmClient := llms.NewClient(provider, breaker, cfg.Chat.MaxTokens)

	// Pipelines
	indexing := pipeline.NewIndexingPipeline(
		extractors.NewRegistry(),
		splitters.NewHierarchicalSplitter(cfg.Chunking.ParentThreshold, cfg.Chunking.MinChildWords),
		embedder,
		sqlStore,
		vectors,
		serviceLogger,
	)
	summarizer := pipeline.NewSummarizePipeline(llmClient, retry.Policy{}, serviceLogger)

	// Processing machinery
	connections := service.NewConnectionManager(serviceLogger)
	pool := worker.NewPool(cfg.Processing.Workers, cfg.Processing.QueueSize, serviceLogger)
	pool.Start(ctx)

	processor := service.NewProcessor(service.ProcessorConfig{
		Documents:  sqlStore,
		States:     sqlStore,
		Audits:     auditStore,
		Objects:    objects,
		Indexing:   indexing,
		Summarizer: summarizer,
		Events:     events,
		Progress:   connections,
		Topics:     cfg.Databases.Kafka.Topics,
		Retry: retry.Policy{
			MaxAttempts:    cfg.Processing.MaxRetries,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
		},
		StuckAfter: stuckAfter,
		Logger:     serviceLogger,
	})

	sweeper := service.NewSweeper(service.SweeperConfig{
		States:     sqlStore,
		Pool:       pool,
		Processor:  processor,
		Interval:   sweepInterval,
		StuckAfter: stuckAfter,
		MaxRetries: cfg.Processing.MaxRetries,
		Logger:     serviceLogger,
	})
	sweeper.Start(ctx)

	svc := service.NewTranscriptService(service.ServiceConfig{
		Documents:   sqlStore,
		States:      sqlStore,
		Audits:      auditStore,
		Chunks:      sqlStore,
		Objects:     objects,
		Indexing:    indexing,
		Processor:   processor,
		Pool:        pool,
		Events:      events,
		Connections: connections,
		Topics:      cfg.Databases.Kafka.Topics,
		StuckAfter:  stuckAfter,
		Logger:      serviceLogger,
	})

	uploadConsumer := consumer.NewUploadConsumer(kafkaClient.NewReader(cfg.Databases.Kafka.Topics.Uploaded), serviceLogger)
	uploadConsumer.Start(ctx, svc.HandleUploaded)
	serviceLogger.Info("Kafka upload consumer started")

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := api.RegisterRoutes(router, api.NewAPI(svc, serviceLogger), cfg.Middleware); err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to register routes: %v", err))
	}

	// Service registration
	sd, err := etcd.NewServiceDiscovery(&cfg.Databases.Etcd)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to create service discovery client: %v", err))
	}
	stopKeepAlive, err := sd.Register(serviceName, cfg.Services.Transcript.HTTPAddr, etcdLeaseTTL)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to register service: %v", err))
	}
	serviceLogger.Info(fmt.Sprintf("Service '%s' registered at '%s'", serviceName, cfg.Services.Transcript.HTTPAddr))

	srv := pkghttp.NewServer(router, pkghttp.WithAddress(cfg.Services.Transcript.HTTPAddr))
	serviceLogger.Info("Starting HTTP server on " + srv.Addr())
	if err := srv.Run(ctx); err != nil {
		serviceLogger.Error(fmt.Sprintf("HTTP server error: %v", err))
	}

	// Graceful shutdown: the canceled context has already told the consumer,
	// the sweeper and the workers to stop; wait for in-flight work and close
	// everything in dependency order.
	serviceLogger.Info("Shutting down...")
	pool.Wait()

	close(stopKeepAlive)
	if err := sd.Close(); err != nil {
		serviceLogger.Error(fmt.Sprintf("Error closing etcd client: %v", err))
	}
	if err := uploadConsumer.Close(); err != nil {
		serviceLogger.Error(fmt.Sprintf("Error closing Kafka consumer: %v", err))
	}
	if err := kafkaClient.Close(); err != nil {
		serviceLogger.Error(fmt.Sprintf("Error closing Kafka client: %v", err))
	}
	milvusClient.Close()
	if err := mongo.Close(context.Background()); err != nil {
		serviceLogger.Error(fmt.Sprintf("Error disconnecting from MongoDB: %v", err))
	}
	if err := mysql.Close(); err != nil {
		serviceLogger.Error(fmt.Sprintf("Error closing MySQL connection: %v", err))
	}
	minio.Close()

	serviceLogger.Info("Server gracefully stopped")
}

// mustDuration parses a duration from the config and exits on a bad value.
func mustDuration(log *logger.Logger, name, value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Fatal(fmt.Sprintf("Invalid %s value %q: %v", name, value, err))
	}
	return d
}
