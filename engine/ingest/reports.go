package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/VerityAI/verity-mvp/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ReportStore persists ingestion reports so the retry endpoint can operate on
// the failure list of an earlier run.
type ReportStore interface {
	Save(ctx context.Context, r *Report) error
	Get(ctx context.Context, id string) (*Report, error)
	List(ctx context.Context, offset, limit int) ([]*Report, error)
}

// reportNode is the flattened persisted form of a Report; the failure list is
// stored as a JSON property.
type reportNode struct {
	ID             string
	Namespace      string
	TotalSubmitted int64
	Succeeded      int64
	Failed         int64
	TotalChunks    int64
	ElapsedMs      int64
	StartedAt      string
	FailuresJSON   string
}

// Neo4jReportStore stores reports as IngestionReport nodes.
type Neo4jReportStore struct {
	repo repo.Repository[reportNode, string]
}

// NewNeo4jReportStore creates a report store backed by the given driver.
func NewNeo4jReportStore(driver neo4j.DriverWithContext) *Neo4jReportStore {
	return &Neo4jReportStore{
		repo: repo.NewNeo4jRepo[reportNode, string](driver, "IngestionReport", reportToMap, reportFromRecord),
	}
}

func (s *Neo4jReportStore) Save(ctx context.Context, r *Report) error {
	node, err := toReportNode(r)
	if err != nil {
		return fmt.Errorf("reports: encode %s: %w", r.ID, err)
	}
	if _, err := s.repo.Create(ctx, node); err != nil {
		return fmt.Errorf("reports: save %s: %w", r.ID, err)
	}
	return nil
}

func (s *Neo4jReportStore) Get(ctx context.Context, id string) (*Report, error) {
	node, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reports: get %s: %w", id, err)
	}
	return fromReportNode(node)
}

func (s *Neo4jReportStore) List(ctx context.Context, offset, limit int) ([]*Report, error) {
	nodes, err := s.repo.List(ctx, repo.ListOpts{Offset: offset, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("reports: list: %w", err)
	}
	out := make([]*Report, 0, len(nodes))
	for _, n := range nodes {
		r, err := fromReportNode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func toReportNode(r *Report) (reportNode, error) {
	failures, err := json.Marshal(r.Failures)
	if err != nil {
		return reportNode{}, err
	}
	return reportNode{
		ID:             r.ID,
		Namespace:      r.Namespace,
		TotalSubmitted: int64(r.TotalSubmitted),
		Succeeded:      int64(r.Succeeded),
		Failed:         int64(r.Failed),
		TotalChunks:    int64(r.TotalChunks),
		ElapsedMs:      r.Elapsed.Milliseconds(),
		StartedAt:      r.StartedAt.UTC().Format(time.RFC3339Nano),
		FailuresJSON:   string(failures),
	}, nil
}

func fromReportNode(n reportNode) (*Report, error) {
	var failures []FailureRecord
	if n.FailuresJSON != "" {
		if err := json.Unmarshal([]byte(n.FailuresJSON), &failures); err != nil {
			return nil, fmt.Errorf("reports: decode failures of %s: %w", n.ID, err)
		}
	}
	started, _ := time.Parse(time.RFC3339Nano, n.StartedAt)
	return &Report{
		ID:             n.ID,
		Namespace:      n.Namespace,
		TotalSubmitted: int(n.TotalSubmitted),
		Succeeded:      int(n.Succeeded),
		Failed:         int(n.Failed),
		TotalChunks:    int(n.TotalChunks),
		Elapsed:        time.Duration(n.ElapsedMs) * time.Millisecond,
		StartedAt:      started,
		Failures:       failures,
	}, nil
}

func reportToMap(n reportNode) map[string]any {
	return map[string]any{
		"id":              n.ID,
		"namespace":       n.Namespace,
		"total_submitted": n.TotalSubmitted,
		"succeeded":       n.Succeeded,
		"failed":          n.Failed,
		"total_chunks":    n.TotalChunks,
		"elapsed_ms":      n.ElapsedMs,
		"started_at":      n.StartedAt,
		"failures_json":   n.FailuresJSON,
	}
}

func reportFromRecord(rec *neo4j.Record) (reportNode, error) {
	node, ok := rec.Values[0].(neo4j.Node)
	if !ok {
		return reportNode{}, fmt.Errorf("reports: record is not a node")
	}
	n := reportNode{}
	props := node.Props
	if v, ok := props["id"].(string); ok {
		n.ID = v
	}
	if v, ok := props["namespace"].(string); ok {
		n.Namespace = v
	}
	if v, ok := props["total_submitted"].(int64); ok {
		n.TotalSubmitted = v
	}
	if v, ok := props["succeeded"].(int64); ok {
		n.Succeeded = v
	}
	if v, ok := props["failed"].(int64); ok {
		n.Failed = v
	}
	if v, ok := props["total_chunks"].(int64); ok {
		n.TotalChunks = v
	}
	if v, ok := props["elapsed_ms"].(int64); ok {
		n.ElapsedMs = v
	}
	if v, ok := props["started_at"].(string); ok {
		n.StartedAt = v
	}
	if v, ok := props["failures_json"].(string); ok {
		n.FailuresJSON = v
	}
	return n, nil
}
