// Package ingest implements the bulk ingestion pipeline: documents are
// validated, domain-tagged, chunked, embedded, and upserted into the vector
// store, with per-document isolation, bounded transient retry, and an
// aggregate report suitable for later retry of failures.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VerityAI/verity-mvp/engine/classify"
	"github.com/VerityAI/verity-mvp/engine/domain"
	"github.com/VerityAI/verity-mvp/engine/semantic"
	"github.com/VerityAI/verity-mvp/pkg/fn"
	"github.com/google/uuid"
)

// Embedder turns a batch of texts into embedding vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter is the write half of the vector store.
type VectorWriter interface {
	Upsert(ctx context.Context, namespace string, records []semantic.VectorRecord) error
}

// DocumentLoader resolves a document identifier back to its content, used by
// the retry entry point.
type DocumentLoader interface {
	Load(ctx context.Context, id string) (domain.SourceDocument, error)
}

// Options configures the ingestion pipeline.
type Options struct {
	// Namespace is the target partition for all documents in the run.
	Namespace string
	// ChunkSize and ChunkOverlap control the chunker, in approximate tokens.
	ChunkSize    int
	ChunkOverlap int
	// MaxVectorsPerRequest caps vectors per upsert call.
	MaxVectorsPerRequest int
	// Workers bounds document-level concurrency.
	Workers int
	// MaxRetries bounds transient retries per external call.
	MaxRetries int
	// RetryInitialWait and RetryMaxWait shape the exponential backoff.
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration
	// MirrorDomains also writes records of domain-tagged documents into the
	// matching per-domain partition, so domain-routed queries can search it.
	MirrorDomains bool
	// ExpectDims rejects vectors of any other length as permanent failures.
	// Zero disables the check.
	ExpectDims int
	// ClassifyHead is how much leading text the domain classifier sees when a
	// document arrives untagged.
	ClassifyHead int
}

// DefaultOptions returns sensible pipeline defaults.
func DefaultOptions() Options {
	return Options{
		Namespace:            domain.NamespaceDefault,
		ChunkSize:            DefaultChunkSize,
		ChunkOverlap:         DefaultOverlap,
		MaxVectorsPerRequest: 100,
		Workers:              4,
		MaxRetries:           3,
		RetryInitialWait:     time.Second,
		RetryMaxWait:         15 * time.Second,
		MirrorDomains:        true,
		ClassifyHead:         800,
	}
}

// Pipeline is the ingestion pipeline.
type Pipeline struct {
	embed  Embedder
	store  VectorWriter
	opts   Options
	logger *slog.Logger
}

// New creates an ingestion Pipeline.
func New(embed Embedder, store VectorWriter, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Namespace == "" {
		opts.Namespace = domain.NamespaceDefault
	}
	if opts.MaxVectorsPerRequest <= 0 {
		opts.MaxVectorsPerRequest = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.ClassifyHead <= 0 {
		opts.ClassifyHead = 800
	}
	return &Pipeline{embed: embed, store: store, opts: opts, logger: logger}
}

// WithNamespace returns a pipeline targeting another partition, sharing the
// embedder and store of the receiver.
func (p *Pipeline) WithNamespace(namespace string) *Pipeline {
	if namespace == "" || namespace == p.opts.Namespace {
		return p
	}
	opts := p.opts
	opts.Namespace = namespace
	return &Pipeline{embed: p.embed, store: p.store, opts: opts, logger: p.logger}
}

// Ingest runs the pipeline over a batch of documents. One document's failure
// never aborts the others; every submitted document appears in the report as
// either a success or a failure.
func (p *Pipeline) Ingest(ctx context.Context, docs []domain.SourceDocument) *Report {
	start := time.Now()
	report := &Report{
		ID:             uuid.NewString(),
		Namespace:      p.opts.Namespace,
		TotalSubmitted: len(docs),
		StartedAt:      start,
	}

	results := fn.ParMapResult(docs, p.opts.Workers, func(doc domain.SourceDocument) fn.Result[outcome] {
		// Honor cancellation between documents; the in-flight ones finish.
		if err := ctx.Err(); err != nil {
			return fn.Ok(outcome{sourceID: doc.ID, err: err})
		}
		chunks, err := p.processDocument(ctx, doc)
		return fn.Ok(outcome{sourceID: doc.ID, chunks: chunks, err: err})
	})

	for _, r := range results {
		o, _ := r.Unwrap()
		if o.err != nil {
			report.Failed++
			report.Failures = append(report.Failures, FailureRecord{
				ID:        o.sourceID,
				ErrorKind: domain.FailureKind(o.err),
				Message:   o.err.Error(),
			})
			p.logger.Warn("ingest: document failed", "source_id", o.sourceID, "kind", domain.FailureKind(o.err), "err", o.err)
			continue
		}
		report.Succeeded++
		report.TotalChunks += o.chunks
	}

	report.Elapsed = time.Since(start)
	p.logger.Info("ingest: batch done",
		"report_id", report.ID,
		"submitted", report.TotalSubmitted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"chunks", report.TotalChunks,
		"elapsed", report.Elapsed,
	)
	return report
}

// RetryFailed re-runs the pipeline for previously failed document IDs,
// producing a new report. IDs that can no longer be loaded are recorded as
// validation failures.
func (p *Pipeline) RetryFailed(ctx context.Context, loader DocumentLoader, failedIDs []string) *Report {
	docs := make([]domain.SourceDocument, 0, len(failedIDs))
	var unloadable []FailureRecord
	for _, id := range failedIDs {
		doc, err := loader.Load(ctx, id)
		if err != nil {
			unloadable = append(unloadable, FailureRecord{
				ID:        id,
				ErrorKind: domain.KindValidation,
				Message:   fmt.Sprintf("load document: %v", err),
			})
			continue
		}
		docs = append(docs, doc)
	}

	report := p.Ingest(ctx, docs)
	report.TotalSubmitted += len(unloadable)
	report.Failed += len(unloadable)
	report.Failures = append(report.Failures, unloadable...)
	return report
}

// processDocument runs validate → classify → chunk → embed → upsert for one
// document and returns its chunk count.
func (p *Pipeline) processDocument(ctx context.Context, doc domain.SourceDocument) (int, error) {
	if err := domain.ValidateDocument(doc); err != nil {
		return 0, err
	}

	// Untagged documents get the same keyword classification as queries,
	// applied to the leading text.
	if doc.Domain == "" || doc.Domain == domain.DomainUnknown {
		d, _ := classify.DomainOf(head(doc.Text, p.opts.ClassifyHead))
		doc.Domain = d
	}

	chunks := ChunkDocument(doc, p.opts.ChunkSize, p.opts.ChunkOverlap)

	embeddings, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("ingest %s: %w", doc.ID, err)
	}

	records := make([]semantic.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = semantic.VectorRecord{
			ID:        RecordID(c.SourceID, c.Index),
			Embedding: embeddings[i],
			Payload:   chunkPayload(c),
		}
	}

	// The embeddings are paid for at this point. The write phase runs
	// detached from the caller's cancellation so a cancel between upsert
	// batches cannot leave the document half-written; cancellation is
	// honored between documents instead.
	wctx := context.WithoutCancel(ctx)
	if err := p.upsert(wctx, p.opts.Namespace, records); err != nil {
		return 0, fmt.Errorf("ingest %s: %w", doc.ID, err)
	}

	if p.opts.MirrorDomains {
		if ns := domain.DomainNamespace(doc.Domain); ns != "" {
			if err := p.upsert(wctx, ns, records); err != nil {
				return 0, fmt.Errorf("ingest %s: mirror %s: %w", doc.ID, ns, err)
			}
		}
	}

	return len(chunks), nil
}

// embedChunks embeds all of a document's chunks in one batched call with
// bounded transient retry.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	texts := fn.Map(chunks, func(c Chunk) string { return c.Text })

	r := fn.RetryIf(ctx, p.retryOpts(), retryable, func(ctx context.Context) fn.Result[[][]float32] {
		return fn.FromPair(p.embed.EmbedBatch(ctx, texts))
	})
	embeddings, err := r.Unwrap()
	if err != nil {
		return nil, err
	}

	if len(embeddings) != len(chunks) {
		return nil, domain.Permanent("embed", fmt.Errorf("%w: %d vectors for %d chunks",
			domain.ErrDimensionMismatch, len(embeddings), len(chunks)))
	}
	if p.opts.ExpectDims > 0 {
		for i, e := range embeddings {
			if len(e) != p.opts.ExpectDims {
				return nil, domain.Permanent("embed", fmt.Errorf("%w: chunk %d has %d dims, want %d",
					domain.ErrDimensionMismatch, i, len(e), p.opts.ExpectDims))
			}
		}
	}
	return embeddings, nil
}

// upsert writes records in batches capped at MaxVectorsPerRequest, each with
// bounded transient retry.
func (p *Pipeline) upsert(ctx context.Context, namespace string, records []semantic.VectorRecord) error {
	for _, batch := range fn.Chunk(records, p.opts.MaxVectorsPerRequest) {
		r := fn.RetryIf(ctx, p.retryOpts(), retryable, func(ctx context.Context) fn.Result[struct{}] {
			if err := p.store.Upsert(ctx, namespace, batch); err != nil {
				return fn.Err[struct{}](err)
			}
			return fn.Ok(struct{}{})
		})
		if _, err := r.Unwrap(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) retryOpts() fn.RetryOpts {
	wait := p.opts.RetryInitialWait
	if wait <= 0 {
		wait = time.Second
	}
	maxWait := p.opts.RetryMaxWait
	if maxWait <= 0 {
		maxWait = 15 * time.Second
	}
	return fn.RetryOpts{
		MaxAttempts: p.opts.MaxRetries,
		InitialWait: wait,
		MaxWait:     maxWait,
		Jitter:      true,
	}
}

// retryable: permanent and validation errors are never retried; anything else
// from an external call is treated as transient.
func retryable(err error) bool {
	if domain.IsPermanent(err) {
		return false
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return false
	}
	return true
}

// RecordID derives the deterministic vector-store ID for a chunk, so
// re-ingesting a document overwrites its previous records.
func RecordID(sourceID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s-%d", sourceID, chunkIndex)).String()
}

func chunkPayload(c Chunk) map[string]any {
	payload := map[string]any{
		semantic.PayloadContent:    c.Text,
		semantic.PayloadSourceID:   c.SourceID,
		semantic.PayloadDomain:     string(c.Domain),
		semantic.PayloadChunkIndex: c.Index,
	}
	if c.UserScope != "" {
		payload[semantic.PayloadUserID] = c.UserScope
	}
	if c.Category != "" {
		payload[semantic.PayloadCategory] = c.Category
	}
	return payload
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
