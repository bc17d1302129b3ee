package milvus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/bigballadanny/dwschatbot/internal/config"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient bundles the Milvus client with its collection configuration.
type MilvusClient struct {
	Client client.Client
	Config *config.MilvusConfig

	cancelAutoFlush context.CancelFunc
}

// GetClient creates and returns a singleton Milvus client.
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("cannot connect to Milvus: %w", err)
			return
		}
		log.Println("✅ Connected to Milvus!")
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close stops the auto flush task and closes the Milvus connection.
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.StopAutoFlush(context.Background())
		c.Client.Close()
		log.Println("ℹ️ Milvus connection closed.")
	}
}

// HealthCheck verifies the Milvus connection by listing collections.
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// CreatePartition creates a partition in the configured collection.
func (c *MilvusClient) CreatePartition(ctx context.Context, partitionName string) error {
	collName := c.Config.Schema.CollectionName
	if err := c.Client.CreatePartition(ctx, collName, partitionName); err != nil {
		return fmt.Errorf("cannot create partition '%s' in collection '%s': %w", partitionName, collName, err)
	}
	log.Printf("✅ Created partition: %s", partitionName)
	return nil
}

// HasPartition reports whether the partition exists in the configured collection.
func (c *MilvusClient) HasPartition(ctx context.Context, partitionName string) (bool, error) {
	collName := c.Config.Schema.CollectionName
	partitions, err := c.Client.ShowPartitions(ctx, collName)
	if err != nil {
		return false, fmt.Errorf("cannot list partitions of collection '%s': %w", collName, err)
	}

	for _, p := range partitions {
		if p.Name == partitionName {
			return true, nil
		}
	}
	return false, nil
}

// FlushCollection flushes in-memory segments of the collection to storage.
func (c *MilvusClient) FlushCollection(ctx context.Context) error {
	collName := c.Config.Schema.CollectionName
	if err := c.Client.Flush(ctx, collName, false); err != nil {
		return fmt.Errorf("cannot flush collection '%s': %w", collName, err)
	}
	return nil
}

// StartAutoFlush starts a background task that flushes the collection at the
// given interval so freshly embedded chunks become searchable.
func (c *MilvusClient) StartAutoFlush(interval time.Duration) {
	if c.cancelAutoFlush != nil {
		log.Println("⚠️ Auto flush task is already running.")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelAutoFlush = cancel
	collName := c.Config.Schema.CollectionName

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Printf("🚀 Auto flush started, flushing collection '%s' every %s.", collName, interval)

		for {
			select {
			case <-ctx.Done():
				log.Println("ℹ️ Auto flush task stopped.")
				return
			case <-ticker.C:
				flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := c.Client.Flush(flushCtx, collName, false); err != nil {
					log.Printf("❌ Auto flush of collection '%s' failed: %v", collName, err)
				}
				flushCancel()
			}
		}
	}()
}

// StopAutoFlush cancels the auto flush task and runs one final flush so no
// buffered data is lost on shutdown.
func (c *MilvusClient) StopAutoFlush(ctx context.Context) {
	if c.cancelAutoFlush != nil {
		c.cancelAutoFlush()
		c.cancelAutoFlush = nil

		if err := c.FlushCollection(ctx); err != nil {
			log.Printf("❌ Final flush on shutdown failed: %v", err)
		}
	}
}

// EnsureCollection creates the configured collection and its index when they
// do not exist yet, then loads the collection into memory.
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.Schema.CollectionName
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("cannot check collection existence: %w", err)
	}
	if !exists {
		schemaFields := make([]*entity.Field, 0, len(c.Config.Schema.Fields))
		for _, fieldCfg := range c.Config.Schema.Fields {
			field := entity.NewField().WithName(fieldCfg.Name)

			if fieldCfg.IsPrimaryKey {
				field = field.WithIsPrimaryKey(true)
			}
			if fieldCfg.IsAutoID {
				field = field.WithIsAutoID(true)
			}

			switch fieldCfg.DataType {
			case "Int64":
				field = field.WithDataType(entity.FieldTypeInt64)
			case "VarChar":
				field = field.WithDataType(entity.FieldTypeVarChar).WithMaxLength(int64(fieldCfg.MaxLength))
			case "FloatVector":
				field = field.WithDataType(entity.FieldTypeFloatVector).WithDim(int64(fieldCfg.Dim))
			case "BinaryVector":
				field = field.WithDataType(entity.FieldTypeBinaryVector).WithDim(int64(fieldCfg.Dim))
			case "Float":
				field = field.WithDataType(entity.FieldTypeFloat)
			case "Double":
				field = field.WithDataType(entity.FieldTypeDouble)
			case "Bool":
				field = field.WithDataType(entity.FieldTypeBool)
			default:
				return fmt.Errorf("unsupported field data type: %s", fieldCfg.DataType)
			}

			schemaFields = append(schemaFields, field)
		}

		schema := entity.NewSchema().
			WithName(collName).
			WithDescription(c.Config.Schema.Description)

		for _, field := range schemaFields {
			schema = schema.WithField(field)
		}

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("cannot create collection: %w", err)
		}
		idx, err := c.buildIndexFromConfig()
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, collName, c.Config.Schema.Index.FieldName, idx, false); err != nil {
			return fmt.Errorf("cannot create index on field '%s': %w", c.Config.Schema.Index.FieldName, err)
		}
		log.Printf("✅ Created collection '%s' with index %s.", collName, c.Config.Schema.Index.IndexType)
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("cannot load collection '%s': %w", collName, err)
	}

	return nil
}

// buildIndexFromConfig constructs the index entity described in the config.
func (c *MilvusClient) buildIndexFromConfig() (entity.Index, error) {
	indexCfg := c.Config.Schema.Index
	metricType := entity.MetricType(indexCfg.MetricType)

	switch indexCfg.IndexType {
	case "IVF_FLAT":
		nlist, ok := indexCfg.Params["nlist"].(int)
		if !ok {
			nlist = 128
		}
		return entity.NewIndexIvfFlat(metricType, nlist)
	case "HNSW":
		M, ok := indexCfg.Params["M"].(int)
		if !ok {
			M = 8
		}
		efConstruction, ok := indexCfg.Params["efConstruction"].(int)
		if !ok {
			efConstruction = 96
		}
		return entity.NewIndexHNSW(metricType, M, efConstruction)
	case "IVF_SQ8":
		nlist, ok := indexCfg.Params["nlist"].(int)
		if !ok {
			nlist = 128
		}
		return entity.NewIndexIvfSQ8(metricType, nlist)
	case "IVF_PQ":
		nlist, ok := indexCfg.Params["nlist"].(int)
		if !ok {
			nlist = 128
		}
		m, ok := indexCfg.Params["m"].(int)
		if !ok {
			m = 16
		}
		nbits, ok := indexCfg.Params["nbits"].(int)
		if !ok {
			nbits = 8
		}
		return entity.NewIndexIvfPQ(metricType, nlist, m, nbits)
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(metricType)
	default:
		return nil, fmt.Errorf("unsupported index type: %s", indexCfg.IndexType)
	}
}
