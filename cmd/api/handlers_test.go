package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/VerityAI/verity-mvp/engine/answer"
	"github.com/VerityAI/verity-mvp/engine/retrieval"
	"github.com/VerityAI/verity-mvp/engine/semantic"
	"github.com/VerityAI/verity-mvp/pkg/metrics"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, ns string, _ []float32, _ int, _ map[string]string) ([]semantic.SearchResult, error) {
	return []semantic.SearchResult{
		{ID: ns + "-1", SourceID: "docs/a.txt", Namespace: ns, Content: "text", Score: 0.9},
	}, nil
}

type downSearcher struct{}

func (downSearcher) Search(context.Context, string, []float32, int, map[string]string) ([]semantic.SearchResult, error) {
	return nil, errors.New("store unreachable")
}

// flakyChat answers the personal side and fails the general one.
type flakyChat struct{}

func (flakyChat) Chat(_ context.Context, system, _ string) (string, error) {
	if strings.Contains(system, "PERSONAL") {
		return "from your files", nil
	}
	return "", errors.New("model offline")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dualQueryBody() io.Reader {
	return strings.NewReader(`{"query":"What airlines fly to Tokyo?","user_scope":"u1","dual_answer":true}`)
}

func TestHandleQueryDualRecordsBranchOutcomes(t *testing.T) {
	met := metrics.New()
	s := &server{
		orchestrator: retrieval.New(stubEmbedder{}, stubSearcher{}, discardLogger()),
		composer:     answer.New(flakyChat{}, discardLogger()),
		metrics:      met,
		logger:       discardLogger(),
	}

	w := httptest.NewRecorder()
	s.handleQuery(w, httptest.NewRequest(http.MethodPost, "/api/query", dualQueryBody()))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	mw := httptest.NewRecorder()
	met.Handler().ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	exp := mw.Body.String()
	if !strings.Contains(exp, `verity_llm_calls_total{mode="general",outcome="failed"} 1`) {
		t.Error("degraded general side should count as failed")
	}
	if !strings.Contains(exp, `verity_llm_calls_total{mode="personal",outcome="ok"} 1`) {
		t.Error("healthy personal side should count as ok")
	}
}

func TestHandleQueryDualLogsRetrievalFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := &server{
		orchestrator: retrieval.New(stubEmbedder{}, downSearcher{}, discardLogger()),
		composer:     answer.New(flakyChat{}, discardLogger()),
		metrics:      metrics.New(),
		logger:       logger,
	}

	w := httptest.NewRecorder()
	s.handleQuery(w, httptest.NewRequest(http.MethodPost, "/api/query", dualQueryBody()))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(buf.String(), "dual retrieval pass failed") {
		t.Errorf("failed passes should be logged:\n%s", buf.String())
	}
}
