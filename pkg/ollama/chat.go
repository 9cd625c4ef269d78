package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/VerityAI/verity-mvp/engine/domain"
)

// ChatClient calls Ollama's /api/chat endpoint without streaming.
type ChatClient struct {
	baseURL     string
	model       string
	temperature float32
	client      *http.Client
}

// NewChatClient creates a chat client for the given model.
func NewChatClient(baseURL, model string, temperature float32) *ChatClient {
	return &ChatClient{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		client:      &http.Client{Timeout: 2 * time.Minute},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Chat sends a system and user message and returns the model's reply.
func (c *ChatClient) Chat(ctx context.Context, system, prompt string) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream:  false,
		Options: map[string]any{"temperature": c.temperature},
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", domain.Permanent("ollama chat", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.Transient("ollama chat", err)
	}
	defer resp.Body.Close()

	if err := statusErr("ollama chat", resp.StatusCode); err != nil {
		return "", err
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", domain.Transient("ollama chat decode", err)
	}
	return result.Message.Content, nil
}
