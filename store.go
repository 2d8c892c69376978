package core

import "context"

// Store abstracts persistence for ingested documents and their chunks.
// It is the storage surface archive recall uses to ground non-text tool
// output (attachments, extracted files) that no longer fits in the
// sliding context window.
type Store interface {
	StoreDocument(ctx context.Context, doc Document, chunks []Chunk) error
	// ListDocuments returns ingested documents, most recent first. limit <= 0
	// means no limit.
	ListDocuments(ctx context.Context, limit int) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error
	// SearchChunks performs semantic similarity search over document chunks.
	// Results are sorted by Score descending. filters narrow the candidate
	// set by chunk metadata before scoring.
	SearchChunks(ctx context.Context, embedding []float32, topK int, filters ...ChunkFilter) ([]ScoredChunk, error)
	GetChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error)

	// --- Key-value config ---
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}

// KeywordSearcher is an optional Store capability for lexical (BM25/FTS)
// search over chunks, used alongside vector search in hybrid retrieval.
type KeywordSearcher interface {
	SearchChunksKeyword(ctx context.Context, query string, topK int, filters ...ChunkFilter) ([]ScoredChunk, error)
}

// GraphStore is an optional Store capability for the chunk relation graph
// built during ingestion (cross-document references, elaborations,
// dependencies) and consulted during graph-expanded retrieval.
type GraphStore interface {
	StoreEdges(ctx context.Context, edges []ChunkEdge) error
	GetEdges(ctx context.Context, chunkIDs []string) ([]ChunkEdge, error)
	GetIncomingEdges(ctx context.Context, chunkIDs []string) ([]ChunkEdge, error)
	PruneOrphanEdges(ctx context.Context) (int, error)
}

// Document is a source file ingested into the archive (PDF, docx, csv,
// json, plain text, markdown, HTML).
type Document struct {
	ID        string
	Title     string
	Source    string
	Content   string
	CreatedAt int64
}

// Chunk is a slice of a Document sized for embedding and retrieval.
type Chunk struct {
	ID         string
	DocumentID string
	ParentID   string
	Content    string
	ChunkIndex int
	Embedding  []float32
	Metadata   *ChunkMeta
}

// ChunkMeta carries extraction-time provenance for a chunk.
type ChunkMeta struct {
	SourceURL      string
	PageNumber     int
	SectionHeading string
	Images         []Image
}

// Image is an inline image extracted alongside a chunk's text.
type Image struct {
	MimeType string
	Base64   string
}

// FilterOp is a comparison operator applied to a chunk metadata field.
type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpGt  FilterOp = "gt"
	OpLt  FilterOp = "lt"
	OpIn  FilterOp = "in"
)

// ChunkFilter narrows a chunk search to those matching Field Op Value.
type ChunkFilter struct {
	Field string
	Op    FilterOp
	Value any
}

// ByExcludeDocument filters out chunks belonging to the given document ID.
func ByExcludeDocument(documentID string) ChunkFilter {
	return ChunkFilter{Field: "document_id", Op: OpNeq, Value: documentID}
}

// ScoredChunk pairs a Chunk with its relevance score from a search.
type ScoredChunk struct {
	Chunk
	Score float32
}

// RelationType classifies the edge between two chunks in the relation graph.
type RelationType string

const (
	RelReferences  RelationType = "references"
	RelElaborates  RelationType = "elaborates"
	RelDependsOn   RelationType = "depends_on"
	RelContradicts RelationType = "contradicts"
	RelPartOf      RelationType = "part_of"
	RelSimilarTo   RelationType = "similar_to"
	RelSequence    RelationType = "sequence"
	RelCausedBy    RelationType = "caused_by"
)

// ChunkEdge is a directed, typed relation between two chunks.
type ChunkEdge struct {
	ID          string
	SourceID    string
	TargetID    string
	Relation    RelationType
	Weight      float32
	Description string
}
