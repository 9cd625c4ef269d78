package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/VerityAI/verity-mvp/engine/answer"
	"github.com/VerityAI/verity-mvp/engine/classify"
	"github.com/VerityAI/verity-mvp/engine/domain"
	"github.com/VerityAI/verity-mvp/engine/ingest"
	"github.com/VerityAI/verity-mvp/engine/retrieval"
	"github.com/VerityAI/verity-mvp/pkg/fn"
	"github.com/VerityAI/verity-mvp/pkg/metrics"
)

type server struct {
	pipeline     *ingest.Pipeline
	orchestrator *retrieval.Orchestrator
	composer     *answer.Composer
	reports      ingest.ReportStore
	loader       ingest.DocumentLoader
	vectors      vectorDeleter
	metrics      *metrics.Set
	logger       *slog.Logger
}

// vectorDeleter is the slice of the vector store the delete endpoint needs.
type vectorDeleter interface {
	DeleteBySource(ctx context.Context, namespace, sourceID string) error
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	Query          string `json:"query"`
	UserScope      string `json:"user_scope,omitempty"`
	Domain         string `json:"domain,omitempty"` // overrides classification
	TopK           int    `json:"top_k,omitempty"`
	IncludeReports *bool  `json:"include_reports,omitempty"`
	DualAnswer     bool   `json:"dual_answer,omitempty"`
	DeadlineMs     int    `json:"deadline_ms,omitempty"`
}

// QueryResponse is the JSON response for single-mode queries.
type QueryResponse struct {
	Answer    string          `json:"answer"`
	Domain    domain.Domain   `json:"domain"`
	Intent    domain.Intent   `json:"intent"`
	Citations []answer.Source `json:"citations"`
	Grounded  bool            `json:"grounded"`
	ElapsedMs int64           `json:"elapsed_ms"`
}

// DualQueryResponse is the JSON response for dual-mode queries.
type DualQueryResponse struct {
	answer.DualAnswer
	Domain    domain.Domain `json:"domain"`
	Intent    domain.Intent `json:"intent"`
	ElapsedMs int64         `json:"elapsed_ms"`
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateQuery(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if req.DeadlineMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.DeadlineMs)*time.Millisecond)
		defer cancel()
	}

	cls := classify.Classify(req.Query)
	if d := domain.Domain(req.Domain); req.Domain != "" && domain.ValidDomains[d] {
		cls.Domain = d
	}

	opts := retrieval.DefaultOptions()
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.IncludeReports != nil {
		opts.IncludeReports = *req.IncludeReports
	}

	if req.DualAnswer {
		s.answerDual(w, ctx, req, cls, opts)
		return
	}
	s.answerSingle(w, ctx, req, cls, opts)
}

func (s *server) answerSingle(w http.ResponseWriter, ctx context.Context, req QueryRequest, cls classify.Classification, opts retrieval.Options) {
	opts.UserScopeID = req.UserScope

	start := time.Now()
	res, err := s.orchestrator.Retrieve(ctx, req.Query, cls, opts)
	s.metrics.RetrievalDuration.Observe(time.Since(start).Seconds())

	// With retrieval completely down the answer degrades to ungrounded
	// model knowledge instead of failing the request.
	var hits []retrieval.Hit
	grounded := true
	if err != nil {
		if !errors.Is(err, domain.ErrRetrievalUnavailable) {
			writeError(w, http.StatusInternalServerError, "retrieval failed")
			return
		}
		s.logger.Warn("retrieval unavailable, answering ungrounded", "err", err)
		grounded = false
	} else {
		hits = res.Hits
		s.recordBranches(res)
	}

	ans, err := s.composer.Compose(ctx, req.Query, hits)
	if err != nil {
		s.metrics.LLMCalls.WithLabelValues("single", "failed").Inc()
		s.logger.Error("compose failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "answer generation failed")
		return
	}
	s.metrics.LLMCalls.WithLabelValues("single", "ok").Inc()

	writeJSON(w, http.StatusOK, QueryResponse{
		Answer:    ans.Text,
		Domain:    cls.Domain,
		Intent:    cls.Intent,
		Citations: ans.Sources,
		Grounded:  grounded && len(hits) > 0,
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}

func (s *server) answerDual(w http.ResponseWriter, ctx context.Context, req QueryRequest, cls classify.Classification, opts retrieval.Options) {
	if req.UserScope == "" {
		writeError(w, http.StatusBadRequest, "dual_answer requires user_scope")
		return
	}

	personalOpts := opts
	personalOpts.UserScopeID = req.UserScope
	personalOpts.IncludeReports = false

	generalOpts := opts
	generalOpts.ExcludeUserScope = req.UserScope

	start := time.Now()
	type pass struct {
		name string
		res  *retrieval.Results
		err  error
	}
	retrieve := func(name string, opts retrieval.Options) func() pass {
		return func() pass {
			res, err := s.orchestrator.Retrieve(ctx, req.Query, cls, opts)
			return pass{name: name, res: res, err: err}
		}
	}
	passes := fn.FanOut(
		retrieve("personal", personalOpts),
		retrieve("general", generalOpts),
	)

	var personal, general []retrieval.Hit
	for _, p := range passes {
		if p.err != nil {
			s.logger.Warn("dual retrieval pass failed", "pass", p.name, "err", p.err)
			continue
		}
		s.recordBranches(p.res)
		if p.name == "personal" {
			personal = p.res.Hits
		} else {
			general = p.res.Hits
		}
	}

	out := s.composer.ComposeDual(ctx, req.Query, personal, general)
	// The personal side skips the model entirely when nothing was retrieved.
	if out.HasUserDocuments {
		s.metrics.LLMCalls.WithLabelValues("personal", llmOutcome(out.DocumentFailed)).Inc()
	}
	s.metrics.LLMCalls.WithLabelValues("general", llmOutcome(out.GeneralFailed)).Inc()
	s.metrics.RetrievalDuration.Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, DualQueryResponse{
		DualAnswer: *out,
		Domain:     cls.Domain,
		Intent:     cls.Intent,
		ElapsedMs:  time.Since(start).Milliseconds(),
	})
}

func llmOutcome(failed bool) string {
	if failed {
		return "failed"
	}
	return "ok"
}

func (s *server) recordBranches(res *retrieval.Results) {
	for _, ns := range res.Searched {
		outcome := "ok"
		if res.Failed[ns] != nil {
			outcome = "failed"
		}
		s.metrics.RetrievalBranches.WithLabelValues(ns, outcome).Inc()
	}
}

// IngestRequest is the JSON body for POST /api/ingest.
type IngestRequest struct {
	Documents []domain.SourceDocument `json:"documents"`
	Namespace string                  `json:"namespace,omitempty"`
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents is required")
		return
	}

	start := time.Now()
	report := s.pipeline.WithNamespace(req.Namespace).Ingest(r.Context(), req.Documents)
	s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	s.metrics.DocumentsIngested.WithLabelValues("ok").Add(float64(report.Succeeded))
	s.metrics.DocumentsIngested.WithLabelValues("failed").Add(float64(report.Failed))
	s.metrics.ChunksWritten.Add(float64(report.TotalChunks))

	if err := s.reports.Save(r.Context(), report); err != nil {
		s.logger.Error("save report failed", "report_id", report.ID, "err", err)
	}
	writeJSON(w, http.StatusOK, report)
}

// RetryRequest is the JSON body for POST /api/ingest/retry.
type RetryRequest struct {
	ReportID string `json:"report_id"`
}

func (s *server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReportID == "" {
		writeError(w, http.StatusBadRequest, "report_id is required")
		return
	}

	prev, err := s.reports.Get(r.Context(), req.ReportID)
	if err != nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if len(prev.Failures) == 0 {
		writeError(w, http.StatusBadRequest, "report has no failures to retry")
		return
	}

	report := s.pipeline.RetryFailed(r.Context(), s.loader, prev.FailedIDs())
	s.metrics.DocumentsIngested.WithLabelValues("ok").Add(float64(report.Succeeded))
	s.metrics.DocumentsIngested.WithLabelValues("failed").Add(float64(report.Failed))

	if err := s.reports.Save(r.Context(), report); err != nil {
		s.logger.Error("save report failed", "report_id", report.ID, "err", err)
	}
	writeJSON(w, http.StatusOK, report)
}

// handleDeleteDocument removes every record of a source document from the
// default namespace and the domain partitions it may have been mirrored to.
func (s *server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	namespaces := []string{
		domain.NamespaceDefault,
		domain.DomainNamespace(domain.DomainTravel),
		domain.DomainNamespace(domain.DomainRealEstate),
	}
	for _, ns := range namespaces {
		if err := s.vectors.DeleteBySource(r.Context(), ns, id); err != nil {
			s.logger.Error("delete document failed", "source_id", id, "namespace", ns, "err", err)
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *server) handleListReports(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	reports, err := s.reports.List(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list reports failed", "err", err)
		writeError(w, http.StatusInternalServerError, "listing reports failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
