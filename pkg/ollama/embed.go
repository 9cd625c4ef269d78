// Package ollama provides embedding and chat clients backed by Ollama's
// HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/VerityAI/verity-mvp/engine/domain"
)

// EmbedClient turns text into vectors via Ollama's /api/embeddings
// endpoint. Requests are rate limited so batch ingestion does not starve
// interactive queries of model capacity.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewEmbedClient creates an embedding client. rps caps requests per
// second; zero or negative disables the limit.
func NewEmbedClient(baseURL, model string, rps float64) *EmbedClient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &EmbedClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, 1),
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed embeds a single text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, _ := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, domain.Permanent("ollama embed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Transient("ollama embed", err)
	}
	defer resp.Body.Close()

	if err := statusErr("ollama embed", resp.StatusCode); err != nil {
		return nil, err
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.Transient("ollama embed decode", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// EmbedBatch embeds texts one by one. Ollama has no batch endpoint, so a
// failure aborts the batch and surfaces the failing index.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// statusErr maps an HTTP status to the transient/permanent error split.
// Overload and server-side failures are retryable; other non-200s are not.
func statusErr(op string, status int) error {
	switch {
	case status == 200:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.Transient(op, fmt.Errorf("status %d", status))
	default:
		return domain.Permanent(op, fmt.Errorf("status %d", status))
	}
}
