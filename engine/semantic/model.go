package semantic

// VectorRecord is a chunk's embedding plus its metadata payload, the unit
// written to a namespace. IDs are deterministic from (source id, chunk index)
// so re-ingestion overwrites rather than duplicates.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}

// Payload keys shared between the write and read paths.
const (
	PayloadContent    = "content"
	PayloadSourceID   = "source_id"
	PayloadDomain     = "domain"
	PayloadUserID     = "user_id"
	PayloadCategory   = "category"
	PayloadChunkIndex = "chunk_index"
)

// SearchResult is one similarity hit from a single namespace. Scores are
// comparable within a namespace only; the retrieval orchestrator normalizes
// before merging across namespaces.
type SearchResult struct {
	ID         string
	Score      float32
	Content    string
	SourceID   string
	Domain     string
	UserID     string
	Category   string
	ChunkIndex int
	Namespace  string
	Meta       map[string]string
}
