package schema

// Column names of the vector index rows. The Milvus collection schema in the
// config must declare fields with these names.
const (
	FieldID         = "id"
	FieldDocumentID = "document_id"
	FieldUserID     = "user_id"
	FieldChunkType  = "chunk_type"
	FieldContent    = "content"
	FieldTopic      = "topic"
	FieldPosition   = "position"
	FieldParentID   = "parent_id"
	FieldSource     = "source"
	FieldEmbedding  = "embedding"
)

// Chunk types produced by the hierarchical splitter.
const (
	ChunkTypeParent = "parent"
	ChunkTypeChild  = "child"
)

// StrategyHierarchical tags chunks produced by the parent/child splitter so a
// future strategy can coexist with already-stored chunks.
const StrategyHierarchical = "hierarchical"

// Passage is the unit of text that flows through the pipeline: one chunk of
// a transcript together with its vector and retrieval metadata.
type Passage struct {
	// ID uniquely identifies the chunk.
	ID string

	// DocumentID and UserID tie the chunk to its transcript and owner.
	DocumentID string
	UserID     string

	// ChunkType is ChunkTypeParent or ChunkTypeChild.
	ChunkType string

	// Content is the chunk text.
	Content string

	// Topic is the heading or first line the chunk falls under, when known.
	Topic string

	// Position is the chunk's order within the document, counted separately
	// for parents and children.
	Position int

	// ParentID links a child to its parent chunk. Empty for parents.
	ParentID string

	// Strategy records which splitter produced the chunk.
	Strategy string

	// Source is the citation tag of the owning document, e.g. "Call 12".
	Source string

	// Embedding is the vector representation of Content.
	Embedding []float32

	// Score is the similarity score assigned during retrieval. Lower is
	// closer for L2, so consumers should treat it as metric dependent.
	Score float32
}
