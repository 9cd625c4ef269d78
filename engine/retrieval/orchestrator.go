// Package retrieval fans a query out across vector namespaces and merges
// the branch results into one ranked, deduplicated context set.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VerityAI/verity-mvp/engine/classify"
	"github.com/VerityAI/verity-mvp/engine/domain"
	"github.com/VerityAI/verity-mvp/engine/semantic"
	"github.com/VerityAI/verity-mvp/pkg/fn"
)

// Embedder turns a query into its vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a similarity search against one namespace.
type Searcher interface {
	Search(ctx context.Context, namespace string, embedding []float32, topK int, filters map[string]string) ([]semantic.SearchResult, error)
}

// Orchestrator coordinates the per-namespace search branches for a query.
type Orchestrator struct {
	embed  Embedder
	search Searcher
	logger *slog.Logger
}

// New builds an Orchestrator over the given embedder and search backend.
func New(embed Embedder, search Searcher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{embed: embed, search: search, logger: logger}
}

// Results carries the merged hits plus per-branch outcome detail.
type Results struct {
	Hits []Hit
	// Searched lists every namespace a branch was launched for.
	Searched []string
	// Failed maps namespaces whose branch errored or timed out to the cause.
	// A failed branch never fails the whole retrieval as long as at least
	// one branch delivered.
	Failed map[string]error
}

type branch struct {
	namespace string
	priority  int
	filters   map[string]string
}

type branchResult struct {
	namespace string
	priority  int
	hits      []semantic.SearchResult
	err       error
}

// Retrieve embeds the query once, searches every applicable namespace
// concurrently, and merges the results. Branches fail in isolation; only
// when every branch fails (or the query cannot be embedded) does Retrieve
// return domain.ErrRetrievalUnavailable.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, cls classify.Classification, opts Options) (*Results, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	vec, err := o.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w: %w", domain.ErrRetrievalUnavailable, err)
	}

	branches := o.plan(cls, opts)
	res := &Results{Failed: make(map[string]error)}
	for _, b := range branches {
		res.Searched = append(res.Searched, b.namespace)
	}

	results := o.fanOut(ctx, branches, vec, opts)

	var merged [][]Hit
	for _, br := range results {
		if br.err != nil {
			o.logger.Warn("retrieval branch failed",
				"namespace", br.namespace, "error", br.err)
			res.Failed[br.namespace] = br.err
			continue
		}
		merged = append(merged, normalize(br.hits, br.priority))
	}
	if len(merged) == 0 {
		return res, fmt.Errorf("retrieval: all %d branches failed: %w",
			len(branches), domain.ErrRetrievalUnavailable)
	}

	hits := merge(merged)
	hits = dedupe(hits, opts.AdjacentMergeMaxLen)
	res.Hits = diversify(hits, opts.DiversityCapPerSource, opts.TopK)
	return res, nil
}

// plan decides which namespaces to search. The default namespace is always
// included; the reports namespace and the domain partition join when
// enabled and when classification resolved a domain.
func (o *Orchestrator) plan(cls classify.Classification, opts Options) []branch {
	defFilters := make(map[string]string)
	if opts.UserScopeID != "" {
		defFilters[semantic.PayloadUserID] = opts.UserScopeID
	}
	if cls.Domain != domain.DomainUnknown {
		defFilters[semantic.PayloadDomain] = string(cls.Domain)
	}
	branches := []branch{{namespace: domain.NamespaceDefault, priority: 0, filters: defFilters}}

	if ns := domain.DomainNamespace(cls.Domain); ns != "" {
		branches = append(branches, branch{namespace: ns, priority: 1})
	}
	if opts.IncludeReports {
		branches = append(branches, branch{namespace: domain.NamespaceReports, priority: 2})
	}
	return branches
}

// fanOut launches one goroutine per branch with an independent timeout and
// collects whatever finished before the caller's context expired.
func (o *Orchestrator) fanOut(ctx context.Context, branches []branch, vec []float32, opts Options) []branchResult {
	ch := make(chan branchResult, len(branches))
	for _, b := range branches {
		go func(b branch) {
			bctx, cancel := context.WithTimeout(ctx, opts.BranchTimeout)
			defer cancel()

			search := fn.TracedStage("retrieval.search."+b.namespace,
				func(ctx context.Context, vec []float32) fn.Result[[]semantic.SearchResult] {
					return fn.FromPair(o.search.Search(ctx, b.namespace, vec, opts.TopK, b.filters))
				})
			// Equality filters cannot express "not this user", so the
			// exclusion runs as a post-search stage on every branch.
			stage := fn.Then(search, fn.Stage[[]semantic.SearchResult, []semantic.SearchResult](
				func(_ context.Context, hits []semantic.SearchResult) fn.Result[[]semantic.SearchResult] {
					if opts.ExcludeUserScope != "" {
						hits = withoutUser(hits, opts.ExcludeUserScope)
					}
					return fn.Ok(hits)
				}))

			start := time.Now()
			hits, err := stage(bctx, vec).Unwrap()
			if err == nil {
				o.logger.Debug("retrieval branch done",
					"namespace", b.namespace, "hits", len(hits),
					"elapsed", time.Since(start))
			}
			ch <- branchResult{namespace: b.namespace, priority: b.priority, hits: hits, err: err}
		}(b)
	}

	out := make([]branchResult, 0, len(branches))
	for range branches {
		select {
		case br := <-ch:
			out = append(out, br)
		case <-ctx.Done():
			// Mark every branch that has not reported yet as failed.
			for _, b := range branches {
				if !reported(out, b.namespace) {
					out = append(out, branchResult{
						namespace: b.namespace, priority: b.priority, err: ctx.Err(),
					})
				}
			}
			return out
		}
	}
	return out
}

func reported(results []branchResult, namespace string) bool {
	for _, r := range results {
		if r.namespace == namespace {
			return true
		}
	}
	return false
}

func withoutUser(hits []semantic.SearchResult, userID string) []semantic.SearchResult {
	out := hits[:0:0]
	for _, h := range hits {
		if h.UserID != userID {
			out = append(out, h)
		}
	}
	return out
}
