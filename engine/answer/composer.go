// Package answer turns retrieved context into grounded LLM answers, in
// either a single combined form or a dual personal/general form.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/VerityAI/verity-mvp/engine/retrieval"
	"github.com/VerityAI/verity-mvp/pkg/fn"
)

// LLM abstracts the chat model behind the composer.
type LLM interface {
	Chat(ctx context.Context, system, prompt string) (string, error)
}

// Composer builds answers from retrieval results.
type Composer struct {
	llm    LLM
	logger *slog.Logger
}

// New creates a Composer over the given chat model.
func New(llm LLM, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{llm: llm, logger: logger}
}

// Source is a citation backing an answer. One entry per source document,
// carrying its best-scoring chunk.
type Source struct {
	ID        string  `json:"source_id"`
	Namespace string  `json:"namespace"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

// Answer is the response for a single combined query.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// DualAnswer carries the two independent halves of a dual query: one
// grounded only in the caller's own documents, one in everything else.
type DualAnswer struct {
	DocumentAnswer      string   `json:"document_answer"`
	GeneralAnswer       string   `json:"general_answer"`
	UserSources         []Source `json:"user_sources"`
	GeneralSources      []Source `json:"general_sources"`
	HasUserDocuments    bool     `json:"has_user_documents"`
	HasGeneralKnowledge bool     `json:"has_general_knowledge"`

	// DocumentFailed and GeneralFailed record that the corresponding
	// generation errored and its text is fallback copy. Not serialized.
	DocumentFailed bool `json:"-"`
	GeneralFailed  bool `json:"-"`
}

// Compose answers a query from a single merged context set.
func (c *Composer) Compose(ctx context.Context, query string, hits []retrieval.Hit) (*Answer, error) {
	text, err := c.llm.Chat(ctx, singleSystemPrompt, buildPrompt(query, hits))
	if err != nil {
		return nil, fmt.Errorf("answer: compose: %w", err)
	}
	return &Answer{Text: text, Sources: sources(hits)}, nil
}

// ComposeDual produces the personal and general answers concurrently. The
// two generations are isolated: a failure on one side degrades that side
// to a fallback message instead of failing the whole response.
func (c *Composer) ComposeDual(ctx context.Context, query string, personal, general []retrieval.Hit) *DualAnswer {
	out := &DualAnswer{
		UserSources:         sources(personal),
		GeneralSources:      sources(general),
		HasUserDocuments:    len(personal) > 0,
		HasGeneralKnowledge: len(general) > 0,
	}

	var wg sync.WaitGroup
	if len(personal) == 0 {
		out.DocumentAnswer = NoPersonalDocuments
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := c.llm.Chat(ctx, personalSystemPrompt, buildPrompt(query, personal))
			if err != nil {
				c.logger.Warn("personal answer failed", "error", err)
				out.DocumentAnswer = "Your documents could not be analyzed right now."
				out.DocumentFailed = true
				return
			}
			out.DocumentAnswer = text
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		text, err := c.llm.Chat(ctx, generalSystemPrompt, buildPrompt(query, general))
		if err != nil {
			c.logger.Warn("general answer failed", "error", err)
			out.GeneralAnswer = "A general answer is unavailable right now."
			out.GeneralFailed = true
			return
		}
		out.GeneralAnswer = text
	}()

	wg.Wait()
	return out
}

// sources collapses hits to one citation per source document, keeping the
// highest-scoring chunk as the excerpt. Order follows the merged ranking.
func sources(hits []retrieval.Hit) []Source {
	unique := fn.UniqueBy(hits, func(h retrieval.Hit) string { return h.SourceID })
	return fn.Map(unique, func(h retrieval.Hit) Source {
		return Source{ID: h.SourceID, Namespace: h.Namespace, Content: h.Content, Score: h.NormScore}
	})
}
