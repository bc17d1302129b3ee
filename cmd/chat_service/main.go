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

	"github.com/bigballadanny/dwschatbot/internal/chat_service/api"
	"github.com/bigballadanny/dwschatbot/internal/chat_service/service"
	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/internal/database/kafka"
	"github.com/bigballadanny/dwschatbot/internal/database/milvus"
	"github.com/bigballadanny/dwschatbot/internal/database/redis"
	"github.com/bigballadanny/dwschatbot/internal/discovery/etcd"
	"github.com/bigballadanny/dwschatbot/internal/embedding"
	"github.com/bigballadanny/dwschatbot/internal/llm"
	"github.com/bigballadanny/dwschatbot/internal/rag/embeddings"
	"github.com/bigballadanny/dwschatbot/internal/rag/llms"
	"github.com/bigballadanny/dwschatbot/internal/rag/pipeline"
	"github.com/bigballadanny/dwschatbot/internal/rag/rerankers"
	"github.com/bigballadanny/dwschatbot/internal/rag/storages/vectorstore"
	"github.com/bigballadanny/dwschatbot/pkg/circuitbreaker"
	pkghttp "github.com/bigballadanny/dwschatbot/pkg/http"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
	"github.com/bigballadanny/dwschatbot/pkg/retry"
)

const (
	serviceName = "chat_service"

	// etcdLeaseTTL is the registration lease in seconds; the keepalive
	// refreshes it until shutdown.
	etcdLeaseTTL = 10
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
	serviceLogger := logger.New("ChatService", "", "")

	historyTTL := mustDuration(serviceLogger, "chat.historyTTL", cfg.Chat.HistoryTTL)
	cacheTTL := mustDuration(serviceLogger, "retrieval.cacheTTL", cfg.Retrieval.CacheTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Conversation history
	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	history := service.NewRedisHistory(redisClient, cfg.Chat.HistoryTurns, historyTTL, serviceLogger)

	// Retrieval over the transcript vectors. The collection is ensured here
	// too so the chat service can start before the first upload was processed.
	milvusClient, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to connect to Milvus: %v", err))
	}
	if err := milvusClient.EnsureCollection(ctx); err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to ensure Milvus collection: %v", err))
	}

	vectors, err := vectorstore.NewMilvusStore(milvusClient, cfg.Databases.Milvus.Schema.CollectionName, serviceLogger)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to create vector store: %v", err))
	}

	embedModel, err := embedding.NewModel(ctx, cfg.Embedding)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to create embedding model: %v", err))
	}
	embedder := embeddings.NewBatcher(embedModel, cfg.Embedding.BatchSize, cfg.Embedding.Parallelism)

	retriever := pipeline.NewRetrievalPipeline(
		embedder,
		vectors,
		rerankers.NewMMRReranker(cfg.Retrieval.Lambda),
		cfg.Retrieval.TopK,
		cfg.Retrieval.CandidateMultiplier,
		cfg.Retrieval.CacheSize,
		cacheTTL,
		serviceLogger,
	)

	// Answer generation
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
	answerer := pipeline.NewQAPipeline(llmClient, retry.Policy{}, serviceLogger)

	// Audit channel. Answering works without it, so a broken Kafka cluster
	// degrades to no audit records instead of refusing to start.
	var audit service.AuditLog
	var auditPublisher *kafka.LogPublisher
	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		serviceLogger.Warn(fmt.Sprintf("Audit publishing disabled, Kafka unavailable: %v", err))
	} else {
		auditPublisher = kafka.NewLogPublisher(kafkaClient)
		audit = auditPublisher
	}

	chatService := service.NewChatService(retriever, answerer, history, audit, serviceLogger)

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := api.RegisterRoutes(router, api.NewAPI(chatService, serviceLogger), cfg.Middleware); err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to register routes: %v", err))
	}

	// Service registration
	sd, err := etcd.NewServiceDiscovery(&cfg.Databases.Etcd)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to create service discovery client: %v", err))
	}
	stopKeepAlive, err := sd.Register(serviceName, cfg.Services.Chat.HTTPAddr, etcdLeaseTTL)
	if err != nil {
		serviceLogger.Fatal(fmt.Sprintf("Failed to register service: %v", err))
	}
	serviceLogger.Info(fmt.Sprintf("Service '%s' registered at '%s'", serviceName, cfg.Services.Chat.HTTPAddr))

	srv := pkghttp.NewServer(router, pkghttp.WithAddress(cfg.Services.Chat.HTTPAddr))
	serviceLogger.Info("Starting HTTP server on " + srv.Addr())
	if err := srv.Run(ctx); err != nil {
		serviceLogger.Error(fmt.Sprintf("HTTP server error: %v", err))
	}

	serviceLogger.Info("Shutting down...")

	close(stopKeepAlive)
	if err := sd.Close(); err != nil {
		serviceLogger.Error(fmt.Sprintf("Error closing etcd client: %v", err))
	}
	milvusClient.Close()
	if auditPublisher != nil {
		if err := auditPublisher.Close(); err != nil {
			serviceLogger.Error(fmt.Sprintf("Error closing audit publisher: %v", err))
		}
	}
	if err := kafkaClient.Close(); err != nil {
		serviceLogger.Error(fmt.Sprintf("Error closing Kafka client: %v", err))
	}
	if err := redis.Close(); err != nil {
		serviceLogger.Error(fmt.Sprintf("Error closing Redis connection: %v", err))
	}

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
