package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/bigballadanny/dwschatbot/internal/database/milvus"
	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

// searchNProbe is the number of IVF cells probed per search.
const searchNProbe = 16

// MilvusStore adapts the shared Milvus client to the VectorStore interface.
// Owner isolation happens at the query layer: every search and delete
// carries a user_id filter expression, so a passage belonging to another
// user can never appear in a result set.
type MilvusStore struct {
	log        *logger.Logger
	client     client.Client
	collection string
}

// NewMilvusStore creates a new MilvusStore adapter on top of the project's
// Milvus client wrapper.
func NewMilvusStore(milvusClient *milvus.MilvusClient, collectionName string, log *logger.Logger) (*MilvusStore, error) {
	if milvusClient == nil || milvusClient.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	return &MilvusStore{
		log:        log,
		client:     milvusClient.Client,
		collection: collectionName,
	}, nil
}

// Upsert writes the passages with their vectors into the collection. Chunk
// ids are the primary key, so re-embedding a document overwrites its rows
// in place.
func (s *MilvusStore) Upsert(ctx context.Context, passages []*schema.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	ids := make([]string, len(passages))
	documentIDs := make([]string, len(passages))
	userIDs := make([]string, len(passages))
	chunkTypes := make([]string, len(passages))
	contents := make([]string, len(passages))
	topics := make([]string, len(passages))
	positions := make([]int64, len(passages))
	parentIDs := make([]string, len(passages))
	sources := make([]string, len(passages))
	embeddings := make([][]float32, len(passages))

	dim := 0
	for i, p := range passages {
		ids[i] = p.ID
		documentIDs[i] = p.DocumentID
		userIDs[i] = p.UserID
		chunkTypes[i] = p.ChunkType
		contents[i] = p.Content
		topics[i] = p.Topic
		positions[i] = int64(p.Position)
		parentIDs[i] = p.ParentID
		sources[i] = p.Source
		embeddings[i] = p.Embedding
		if len(p.Embedding) > dim {
			dim = len(p.Embedding)
		}
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(schema.FieldID, ids),
		entity.NewColumnVarChar(schema.FieldDocumentID, documentIDs),
		entity.NewColumnVarChar(schema.FieldUserID, userIDs),
		entity.NewColumnVarChar(schema.FieldChunkType, chunkTypes),
		entity.NewColumnVarChar(schema.FieldContent, contents),
		entity.NewColumnVarChar(schema.FieldTopic, topics),
		entity.NewColumnInt64(schema.FieldPosition, positions),
		entity.NewColumnVarChar(schema.FieldParentID, parentIDs),
		entity.NewColumnVarChar(schema.FieldSource, sources),
		entity.NewColumnFloatVector(schema.FieldEmbedding, dim, embeddings),
	}

	if _, err := s.client.Upsert(ctx, s.collection, "", columns...); err != nil {
		s.log.Error(fmt.Sprintf("Failed to upsert %d passages into Milvus: %v", len(passages), err))
		return fmt.Errorf("failed to upsert into Milvus: %w", err)
	}
	return nil
}

// Query runs a similarity search over the owner's passages and returns the
// topK closest ones, embeddings included so a reranker can compare them.
func (s *MilvusStore) Query(ctx context.Context, userID string, embedding []float32, topK int) ([]*schema.Passage, error) {
	expr := schema.FieldUserID + " == " + strconv.Quote(userID)

	searchParams, err := entity.NewIndexIvfFlatSearchParam(searchNProbe)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	outputFields := []string{
		schema.FieldID, schema.FieldDocumentID, schema.FieldUserID,
		schema.FieldChunkType, schema.FieldContent, schema.FieldTopic,
		schema.FieldPosition, schema.FieldParentID, schema.FieldSource,
		schema.FieldEmbedding,
	}

	searchResults, err := s.client.Search(
		ctx, s.collection, []string{}, expr, outputFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		schema.FieldEmbedding, entity.L2, topK, searchParams,
	)
	if err != nil {
		s.log.Error(fmt.Sprintf("Failed to search in Milvus: %v", err))
		return nil, fmt.Errorf("failed to search in Milvus: %w", err)
	}

	var results []*schema.Passage
	for _, res := range searchResults {
		findColumn := func(name string) entity.Column {
			for _, field := range res.Fields {
				if field.Name() == name {
					return field
				}
			}
			return nil
		}

		varcharData := func(name string) []string {
			if col, ok := findColumn(name).(*entity.ColumnVarChar); ok {
				return col.Data()
			}
			return nil
		}

		idData := varcharData(schema.FieldID)
		if idData == nil {
			s.log.Warn("Search result is missing the id field, skipping result set.")
			continue
		}
		documentIDData := varcharData(schema.FieldDocumentID)
		userIDData := varcharData(schema.FieldUserID)
		chunkTypeData := varcharData(schema.FieldChunkType)
		contentData := varcharData(schema.FieldContent)
		topicData := varcharData(schema.FieldTopic)
		parentIDData := varcharData(schema.FieldParentID)
		sourceData := varcharData(schema.FieldSource)

		var positionData []int64
		if col, ok := findColumn(schema.FieldPosition).(*entity.ColumnInt64); ok {
			positionData = col.Data()
		}
		var embeddingData [][]float32
		if col, ok := findColumn(schema.FieldEmbedding).(*entity.ColumnFloatVector); ok {
			embeddingData = col.Data()
		}

		at := func(data []string, i int) string {
			if i < len(data) {
				return data[i]
			}
			return ""
		}

		for i := 0; i < res.ResultCount; i++ {
			p := &schema.Passage{
				ID:         at(idData, i),
				DocumentID: at(documentIDData, i),
				UserID:     at(userIDData, i),
				ChunkType:  at(chunkTypeData, i),
				Content:    at(contentData, i),
				Topic:      at(topicData, i),
				ParentID:   at(parentIDData, i),
				Source:     at(sourceData, i),
				Score:      res.Scores[i],
			}
			if i < len(positionData) {
				p.Position = int(positionData[i])
			}
			if i < len(embeddingData) {
				p.Embedding = embeddingData[i]
			}
			results = append(results, p)
		}
	}

	return results, nil
}

// DeleteByDocument removes every passage of one document. The owner filter
// keeps a mis-addressed delete from touching another user's vectors.
func (s *MilvusStore) DeleteByDocument(ctx context.Context, userID, documentID string) error {
	expr := fmt.Sprintf("%s == %s and %s == %s",
		schema.FieldDocumentID, strconv.Quote(documentID),
		schema.FieldUserID, strconv.Quote(userID),
	)
	if err := s.client.Delete(ctx, s.collection, "", expr); err != nil {
		s.log.Error(fmt.Sprintf("Failed to delete passages from Milvus: %v", err))
		return fmt.Errorf("failed to delete from Milvus: %w", err)
	}
	return nil
}

// compile-time check to ensure MilvusStore implements the VectorStore interface
var _ interfaces.VectorStore = (*MilvusStore)(nil)
