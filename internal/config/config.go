package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppInfo holds basic information about the running application.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"` // e.g. "development", "production"
}

// LoggerConfig controls the structured logger.
type LoggerConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

// FieldConfig describes one field of the Milvus collection schema.
type FieldConfig struct {
	Name         string `yaml:"name"`
	DataType     string `yaml:"dataType"` // "Int64", "VarChar", "FloatVector"
	IsPrimaryKey bool   `yaml:"isPrimaryKey"`
	IsAutoID     bool   `yaml:"isAutoID"`
	Dim          int    `yaml:"dim,omitempty"`       // vector types only
	MaxLength    int    `yaml:"maxLength,omitempty"` // VarChar only
}

// IndexConfig describes the vector index built on the collection.
type IndexConfig struct {
	FieldName  string                 `yaml:"fieldName"`
	IndexType  string                 `yaml:"indexType"`  // "IVF_FLAT", "HNSW", ...
	MetricType string                 `yaml:"metricType"` // "L2", "COSINE", ...
	Params     map[string]interface{} `yaml:"params"`     // e.g. {"nlist": 128}
}

// SchemaConfig describes the Milvus collection the chunk vectors live in.
type SchemaConfig struct {
	CollectionName string        `yaml:"collectionName"`
	Description    string        `yaml:"description"`
	VectorField    string        `yaml:"vectorField"`
	Fields         []FieldConfig `yaml:"fields"`
	Index          IndexConfig   `yaml:"index"`
}

// MilvusConfig holds connection and schema settings for Milvus.
type MilvusConfig struct {
	Address string       `yaml:"address"`
	Schema  SchemaConfig `yaml:"schema"`
}

// RedisConfig holds connection settings for Redis.
type RedisConfig struct {
	Address  string `yaml:"address"` // e.g. "localhost:6379"
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig holds connection settings for MySQL.
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
}

// MinIOConfig holds connection settings for the MinIO object store that
// keeps the raw transcript uploads.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// MongoConfig holds connection settings for MongoDB, which stores the
// processing audit trail.
type MongoConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	AuditCollection string `yaml:"auditCollection"`
}

// KafkaTopics names the topics the transcript pipeline communicates on.
type KafkaTopics struct {
	Uploaded  string `yaml:"uploaded"`  // transcript.uploaded
	Processed string `yaml:"processed"` // transcript.processed
	Failed    string `yaml:"failed"`    // transcript.failed
	Audit     string `yaml:"audit"`     // chat.audit
}

// KafkaConfig holds broker addresses and topic names.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	Topics        KafkaTopics `yaml:"topics"`
	ConsumerGroup string      `yaml:"consumerGroup"`
}

// EtcdConfig holds connection settings for etcd service discovery.
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

// DatabaseConfigs groups every backing store.
type DatabaseConfigs struct {
	MySQL   MySQLConfig  `yaml:"mysql"`
	Milvus  MilvusConfig `yaml:"milvus"`
	Redis   RedisConfig  `yaml:"redis"`
	MinIO   MinIOConfig  `yaml:"minio"`
	MongoDB MongoConfig  `yaml:"mongodb"`
	Kafka   KafkaConfig  `yaml:"kafka"`
	Etcd    EtcdConfig   `yaml:"etcd"`
}

// GeminiConfig holds credentials for the Gemini API.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// OpenAIConfig holds credentials for an OpenAI compatible API.
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"` // empty for api.openai.com
	Model   string `yaml:"model"`
}

// OllamaConfig holds the address of a local Ollama server.
type OllamaConfig struct {
	Address string `yaml:"address"` // e.g. "http://localhost:11434"
	Model   string `yaml:"model"`
}

// HuggingFaceConfig holds credentials for the Hugging Face Inference API.
type HuggingFaceConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"` // empty for the hosted Inference API
	Model   string `yaml:"model"`
}

// LLMConfig selects the generation provider.
type LLMConfig struct {
	Provider    string            `yaml:"provider"` // "gemini", "openai", "ollama", "huggingface"
	Gemini      GeminiConfig      `yaml:"gemini"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Ollama      OllamaConfig      `yaml:"ollama"`
	HuggingFace HuggingFaceConfig `yaml:"huggingface"`
}

// EmbeddingConfig selects the embedding provider and batching behavior.
type EmbeddingConfig struct {
	Provider    string            `yaml:"provider"` // "gemini", "openai", "ollama", "huggingface"
	Gemini      GeminiConfig      `yaml:"gemini"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Ollama      OllamaConfig      `yaml:"ollama"`
	HuggingFace HuggingFaceConfig `yaml:"huggingface"`
	Dimension   int               `yaml:"dimension"`   // must match the Milvus schema dim
	BatchSize   int               `yaml:"batchSize"`   // texts per embedding request
	Parallelism int               `yaml:"parallelism"` // concurrent embedding requests
}

// ChunkingConfig controls the hierarchical splitter.
type ChunkingConfig struct {
	ParentThreshold int `yaml:"parentThreshold"` // characters before a paragraph group closes
	MinChildWords   int `yaml:"minChildWords"`   // children below this word count are dropped
	BatchSize       int `yaml:"batchSize"`       // chunk rows written per insert
}

// RetrievalConfig controls similarity search and reranking.
type RetrievalConfig struct {
	TopK                int     `yaml:"topK"`
	CandidateMultiplier int     `yaml:"candidateMultiplier"` // candidates fetched = topK * multiplier
	Lambda              float64 `yaml:"lambda"`              // MMR relevance/diversity tradeoff
	CacheSize           int     `yaml:"cacheSize"`           // query embedding cache entries
	CacheTTL            string  `yaml:"cacheTTL"`            // e.g. "10m"
}

// ProcessingConfig controls the transcript pipeline workers.
type ProcessingConfig struct {
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queueSize"`
	MaxRetries     int    `yaml:"maxRetries"`     // per stage
	StuckThreshold string `yaml:"stuckThreshold"` // e.g. "5m"
	SweepInterval  string `yaml:"sweepInterval"`  // e.g. "1m"
}

// ChatConfig controls answer generation and conversation history.
type ChatConfig struct {
	MaxTokens    int32  `yaml:"maxTokens"`
	HistoryTurns int    `yaml:"historyTurns"`
	HistoryTTL   string `yaml:"historyTTL"` // e.g. "168h"
}

// ServiceConfig holds per-service listen settings.
type ServiceConfig struct {
	HTTPAddr string `yaml:"httpAddr"`
}

// ServicesConfig groups the two services of the system.
type ServicesConfig struct {
	Transcript ServiceConfig `yaml:"transcript"`
	Chat       ServiceConfig `yaml:"chat"`
}

// TokenBucketConfig sizes the token bucket rate limiter.
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // tokens per second
	Capacity int     `yaml:"capacity"`
}

// SlidingWindowConfig sizes the sliding window rate limiter.
type SlidingWindowConfig struct {
	Limit  int    `yaml:"limit"`  // requests per window
	Window string `yaml:"window"` // e.g. "1s"
}

// RateLimiterConfig controls per-user request limiting.
type RateLimiterConfig struct {
	Enabled       bool                `yaml:"enabled"`
	Algorithm     string              `yaml:"algorithm"` // "tokenBucket" (default), "slidingWindow"
	TokenBucket   TokenBucketConfig   `yaml:"tokenBucket"`
	SlidingWindow SlidingWindowConfig `yaml:"slidingWindow"`
}

// CircuitBreakerConfig controls the breaker guarding LLM calls.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // e.g. "30s"
}

// MiddlewareConfig groups middleware settings shared by both services.
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Processing ProcessingConfig `yaml:"processing"`
	Chat       ChatConfig       `yaml:"chat"`
	Services   ServicesConfig   `yaml:"services"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills in values the YAML file may omit.
func (c *AppConfig) applyDefaults() {
	if c.Chunking.ParentThreshold <= 0 {
		c.Chunking.ParentThreshold = 1500
	}
	if c.Chunking.MinChildWords <= 0 {
		c.Chunking.MinChildWords = 5
	}
	if c.Chunking.BatchSize <= 0 {
		c.Chunking.BatchSize = 50
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.Parallelism <= 0 {
		c.Embedding.Parallelism = 4
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 12
	}
	if c.Retrieval.CandidateMultiplier <= 0 {
		c.Retrieval.CandidateMultiplier = 3
	}
	if c.Retrieval.Lambda <= 0 {
		c.Retrieval.Lambda = 0.6
	}
	if c.Processing.Workers <= 0 {
		c.Processing.Workers = 4
	}
	if c.Processing.QueueSize <= 0 {
		c.Processing.QueueSize = 64
	}
	if c.Processing.MaxRetries <= 0 {
		c.Processing.MaxRetries = 3
	}
	if c.Processing.StuckThreshold == "" {
		c.Processing.StuckThreshold = "5m"
	}
	if c.Processing.SweepInterval == "" {
		c.Processing.SweepInterval = "1m"
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = 1024
	}
	if c.Chat.HistoryTurns <= 0 {
		c.Chat.HistoryTurns = 12
	}
	if c.Chat.HistoryTTL == "" {
		c.Chat.HistoryTTL = "168h"
	}
	if c.Databases.MongoDB.AuditCollection == "" {
		c.Databases.MongoDB.AuditCollection = "processing_audit"
	}
	if c.Databases.Kafka.Topics.Audit == "" {
		c.Databases.Kafka.Topics.Audit = "chat.audit"
	}
}
