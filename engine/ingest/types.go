package ingest

import (
	"time"

	"github.com/VerityAI/verity-mvp/engine/domain"
)

// Chunk is a contiguous text span of one source document, the unit of
// embedding. Indexes are 0-based and contiguous per document.
type Chunk struct {
	SourceID  string
	Index     int
	Text      string
	Domain    domain.Domain
	UserScope string
	Category  string
}

// FailureRecord captures one document's failure inside a report.
type FailureRecord struct {
	ID        string `json:"id"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// Report aggregates per-document outcomes of one ingestion run.
// succeeded + failed always equals total submitted.
type Report struct {
	ID             string          `json:"id"`
	Namespace      string          `json:"namespace"`
	TotalSubmitted int             `json:"total_submitted"`
	Succeeded      int             `json:"succeeded"`
	Failed         int             `json:"failed"`
	TotalChunks    int             `json:"total_chunks"`
	Elapsed        time.Duration   `json:"elapsed"`
	StartedAt      time.Time       `json:"started_at"`
	Failures       []FailureRecord `json:"failures,omitempty"`
}

// FailedIDs returns the identifiers recorded as failures, for retry.
func (r *Report) FailedIDs() []string {
	ids := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		ids[i] = f.ID
	}
	return ids
}

// outcome is the per-document result collected by the batch loop.
type outcome struct {
	sourceID string
	chunks   int
	err      error
}
