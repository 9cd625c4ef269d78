package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VerityAI/verity-mvp/engine/domain"
	"github.com/VerityAI/verity-mvp/engine/semantic"
)

// --- mocks ---

type mockEmbedder struct {
	mu        sync.Mutex
	calls     int
	failFirst int   // fail this many calls with a transient error
	err       error // if set, always return this error
	dims      int
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.calls <= m.failFirst {
		return nil, domain.Transient("embed", errors.New("rate limited"))
	}
	dims := m.dims
	if dims == 0 {
		dims = 3
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dims)
		out[i][0] = float32(i)
	}
	return out, nil
}

type upsertCall struct {
	namespace string
	records   []semantic.VectorRecord
}

type mockWriter struct {
	mu    sync.Mutex
	calls []upsertCall
	err   error
}

func (m *mockWriter) Upsert(_ context.Context, namespace string, records []semantic.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, upsertCall{namespace: namespace, records: records})
	return nil
}

func (m *mockWriter) byNamespace() map[string][]semantic.VectorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]semantic.VectorRecord)
	for _, c := range m.calls {
		out[c.namespace] = append(out[c.namespace], c.records...)
	}
	return out
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Workers = 2
	opts.MaxRetries = 3
	opts.RetryInitialWait = time.Millisecond
	opts.RetryMaxWait = 2 * time.Millisecond
	return opts
}

func travelDoc(id string) domain.SourceDocument {
	return domain.SourceDocument{
		ID:     id,
		Text:   "Tokyo has two airports serving international flights. " + strings.Repeat("More details follow here. ", 5),
		Domain: domain.DomainTravel,
	}
}

// --- tests ---

func TestIngestIsolation(t *testing.T) {
	docs := make([]domain.SourceDocument, 0, 10)
	for i := 0; i < 9; i++ {
		docs = append(docs, travelDoc(fmt.Sprintf("docs/ok-%d.txt", i)))
	}
	docs = append(docs, domain.SourceDocument{ID: "docs/empty.txt", Text: "   "})

	w := &mockWriter{}
	p := New(&mockEmbedder{}, w, testOptions(), nil)
	report := p.Ingest(context.Background(), docs)

	if report.Succeeded != 9 || report.Failed != 1 {
		t.Fatalf("got succeeded=%d failed=%d", report.Succeeded, report.Failed)
	}
	if report.Succeeded+report.Failed != report.TotalSubmitted {
		t.Error("report counts do not add up")
	}
	if len(report.Failures) != 1 || report.Failures[0].ID != "docs/empty.txt" {
		t.Fatalf("failures: %+v", report.Failures)
	}
	if report.Failures[0].ErrorKind != domain.KindEmptyDocument {
		t.Errorf("kind = %q", report.Failures[0].ErrorKind)
	}
	if report.TotalChunks == 0 {
		t.Error("chunks of healthy documents should be counted")
	}
}

func TestIngestDeterministicIDs(t *testing.T) {
	if RecordID("docs/a.txt", 0) != RecordID("docs/a.txt", 0) {
		t.Error("same inputs should give same ID")
	}
	if RecordID("docs/a.txt", 0) == RecordID("docs/a.txt", 1) {
		t.Error("different chunk index should change ID")
	}
	if RecordID("docs/a.txt", 0) == RecordID("docs/b.txt", 0) {
		t.Error("different source should change ID")
	}
}

func TestIngestIdempotentRewrite(t *testing.T) {
	doc := travelDoc("docs/tokyo.txt")
	w := &mockWriter{}
	p := New(&mockEmbedder{}, w, testOptions(), nil)

	first := p.Ingest(context.Background(), []domain.SourceDocument{doc})
	second := p.Ingest(context.Background(), []domain.SourceDocument{doc})

	if first.TotalChunks != second.TotalChunks {
		t.Fatalf("chunk counts differ: %d vs %d", first.TotalChunks, second.TotalChunks)
	}

	records := w.byNamespace()[domain.NamespaceDefault]
	ids := make(map[string]int)
	for _, r := range records {
		ids[r.ID]++
	}
	for id, n := range ids {
		if n != 2 {
			t.Errorf("record %s written %d times, want the same ID on both runs", id, n)
		}
	}
}

func TestIngestTransientRetrySucceeds(t *testing.T) {
	e := &mockEmbedder{failFirst: 2}
	p := New(e, &mockWriter{}, testOptions(), nil)

	report := p.Ingest(context.Background(), []domain.SourceDocument{travelDoc("docs/a.txt")})
	if report.Succeeded != 1 {
		t.Fatalf("expected success after retries: %+v", report.Failures)
	}
	if e.calls != 3 {
		t.Errorf("expected 3 embed calls, got %d", e.calls)
	}
}

func TestIngestTransientExhausted(t *testing.T) {
	e := &mockEmbedder{err: domain.Transient("embed", errors.New("connection refused"))}
	p := New(e, &mockWriter{}, testOptions(), nil)

	report := p.Ingest(context.Background(), []domain.SourceDocument{travelDoc("docs/a.txt")})
	if report.Failed != 1 {
		t.Fatal("expected failure")
	}
	if report.Failures[0].ErrorKind != domain.KindTransientExhausted {
		t.Errorf("kind = %q", report.Failures[0].ErrorKind)
	}
	if e.calls != 3 {
		t.Errorf("expected MaxRetries calls, got %d", e.calls)
	}
}

func TestIngestPermanentNotRetried(t *testing.T) {
	e := &mockEmbedder{err: domain.Permanent("embed", domain.ErrDimensionMismatch)}
	p := New(e, &mockWriter{}, testOptions(), nil)

	report := p.Ingest(context.Background(), []domain.SourceDocument{travelDoc("docs/a.txt")})
	if report.Failed != 1 || report.Failures[0].ErrorKind != domain.KindPermanent {
		t.Fatalf("report: %+v", report.Failures)
	}
	if e.calls != 1 {
		t.Errorf("permanent error retried: %d calls", e.calls)
	}
}

func TestIngestDimensionCheck(t *testing.T) {
	opts := testOptions()
	opts.ExpectDims = 8
	p := New(&mockEmbedder{dims: 3}, &mockWriter{}, opts, nil)

	report := p.Ingest(context.Background(), []domain.SourceDocument{travelDoc("docs/a.txt")})
	if report.Failed != 1 || report.Failures[0].ErrorKind != domain.KindPermanent {
		t.Fatalf("report: %+v", report.Failures)
	}
	if !strings.Contains(report.Failures[0].Message, "dims") {
		t.Errorf("message: %s", report.Failures[0].Message)
	}
}

func TestIngestMirrorsDomainNamespace(t *testing.T) {
	w := &mockWriter{}
	p := New(&mockEmbedder{}, w, testOptions(), nil)
	p.Ingest(context.Background(), []domain.SourceDocument{travelDoc("docs/tokyo.txt")})

	by := w.byNamespace()
	if len(by[domain.NamespaceDefault]) == 0 {
		t.Error("no records in default namespace")
	}
	if len(by["domain_travel"]) != len(by[domain.NamespaceDefault]) {
		t.Errorf("domain mirror incomplete: %d vs %d", len(by["domain_travel"]), len(by[domain.NamespaceDefault]))
	}
}

func TestIngestClassifiesUntaggedDocuments(t *testing.T) {
	doc := domain.SourceDocument{
		ID:   "docs/untagged.txt",
		Text: "This hotel booking guide covers flights, visas, and itineraries for your vacation.",
	}
	w := &mockWriter{}
	p := New(&mockEmbedder{}, w, testOptions(), nil)
	p.Ingest(context.Background(), []domain.SourceDocument{doc})

	records := w.byNamespace()[domain.NamespaceDefault]
	if len(records) == 0 {
		t.Fatal("no records written")
	}
	if got := records[0].Payload[semantic.PayloadDomain]; got != "travel" {
		t.Errorf("domain payload = %v, want travel", got)
	}
	if len(w.byNamespace()["domain_travel"]) == 0 {
		t.Error("classified document should be mirrored into its domain partition")
	}
}

func TestIngestUpsertBatching(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Sentence with exactly six words here. ")
	}
	doc := domain.SourceDocument{ID: "docs/big.txt", Text: b.String(), Domain: domain.DomainTravel}

	opts := testOptions()
	opts.ChunkSize = 12
	opts.ChunkOverlap = 0
	opts.MaxVectorsPerRequest = 2
	opts.MirrorDomains = false

	w := &mockWriter{}
	p := New(&mockEmbedder{}, w, opts, nil)
	report := p.Ingest(context.Background(), []domain.SourceDocument{doc})

	if report.TotalChunks < 3 {
		t.Fatalf("test needs >2 chunks, got %d", report.TotalChunks)
	}
	for _, c := range w.calls {
		if len(c.records) > 2 {
			t.Errorf("upsert batch of %d exceeds cap", len(c.records))
		}
	}
}

// cancelAwareWriter refuses writes once its context is cancelled, the way a
// real store client would.
type cancelAwareWriter struct {
	mockWriter
}

func (w *cancelAwareWriter) Upsert(ctx context.Context, namespace string, records []semantic.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.mockWriter.Upsert(ctx, namespace, records)
}

// cancelAfterEmbed cancels the run's context as soon as embedding returns,
// simulating a caller that gives up mid-document.
type cancelAfterEmbed struct {
	inner  *mockEmbedder
	cancel context.CancelFunc
}

func (e *cancelAfterEmbed) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := e.inner.EmbedBatch(ctx, texts)
	e.cancel()
	return out, err
}

func TestIngestWritesSurviveCancelAfterEmbed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Sentence with exactly six words here. ")
	}
	doc := domain.SourceDocument{ID: "docs/big.txt", Text: b.String(), Domain: domain.DomainTravel}

	opts := testOptions()
	opts.ChunkSize = 12
	opts.ChunkOverlap = 0
	opts.MaxVectorsPerRequest = 2
	opts.MirrorDomains = false
	opts.Workers = 1

	w := &cancelAwareWriter{}
	p := New(&cancelAfterEmbed{inner: &mockEmbedder{}, cancel: cancel}, w, opts, nil)
	report := p.Ingest(ctx, []domain.SourceDocument{doc})

	// Once the embeddings exist, every one of the document's upsert batches
	// must land; a cancel between batches may not leave a partial write.
	if report.Succeeded != 1 {
		t.Fatalf("in-flight document should finish its writes: %+v", report.Failures)
	}
	if got := len(w.byNamespace()[domain.NamespaceDefault]); got != report.TotalChunks {
		t.Errorf("wrote %d of %d records", got, report.TotalChunks)
	}
}

func TestIngestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(&mockEmbedder{}, &mockWriter{}, testOptions(), nil)
	docs := []domain.SourceDocument{travelDoc("a"), travelDoc("b"), travelDoc("c")}
	report := p.Ingest(ctx, docs)

	if report.Succeeded+report.Failed != report.TotalSubmitted {
		t.Error("report counts do not add up under cancellation")
	}
	for _, f := range report.Failures {
		if f.ErrorKind != domain.KindCanceled {
			t.Errorf("kind = %q", f.ErrorKind)
		}
	}
}

// --- retry entry point ---

type mapLoader map[string]domain.SourceDocument

func (m mapLoader) Load(_ context.Context, id string) (domain.SourceDocument, error) {
	doc, ok := m[id]
	if !ok {
		return domain.SourceDocument{}, fmt.Errorf("document %s not found", id)
	}
	return doc, nil
}

func TestRetryFailed(t *testing.T) {
	loader := mapLoader{
		"docs/a.txt": travelDoc("docs/a.txt"),
		"docs/b.txt": travelDoc("docs/b.txt"),
	}

	w := &mockWriter{}
	p := New(&mockEmbedder{}, w, testOptions(), nil)
	report := p.RetryFailed(context.Background(), loader, []string{"docs/a.txt", "docs/b.txt", "docs/gone.txt"})

	if report.TotalSubmitted != 3 {
		t.Errorf("total = %d", report.TotalSubmitted)
	}
	if report.Succeeded != 2 || report.Failed != 1 {
		t.Errorf("succeeded=%d failed=%d", report.Succeeded, report.Failed)
	}
	if ids := report.FailedIDs(); len(ids) != 1 || ids[0] != "docs/gone.txt" {
		t.Errorf("failed ids: %v", ids)
	}
}

func TestReportNodeRoundTrip(t *testing.T) {
	r := &Report{
		ID:             "rep-1",
		Namespace:      "default",
		TotalSubmitted: 5,
		Succeeded:      3,
		Failed:         2,
		TotalChunks:    40,
		Elapsed:        1500 * time.Millisecond,
		StartedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Failures: []FailureRecord{
			{ID: "a", ErrorKind: domain.KindEmptyDocument, Message: "empty"},
			{ID: "b", ErrorKind: domain.KindTransientExhausted, Message: "timeout"},
		},
	}

	node, err := toReportNode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := fromReportNode(node)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if back.ID != r.ID || back.Succeeded != r.Succeeded || back.Failed != r.Failed {
		t.Errorf("counts lost: %+v", back)
	}
	if back.Elapsed != r.Elapsed {
		t.Errorf("elapsed lost: %v", back.Elapsed)
	}
	if !back.StartedAt.Equal(r.StartedAt) {
		t.Errorf("started lost: %v", back.StartedAt)
	}
	if len(back.Failures) != 2 || back.Failures[1].ID != "b" {
		t.Errorf("failures lost: %+v", back.Failures)
	}
}
