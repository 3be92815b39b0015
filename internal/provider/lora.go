package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chatwerk/replyengine/internal/pipeline"
)

// LoraClient talks to a self-hosted, OpenAI-compatible adapter server that
// serves the fine-tuned moderation model. The server is slow (CPU
// inference), so callers are expected to wrap calls in generous timeouts.
type LoraClient struct {
	api     chatCompleter
	http    *http.Client
	baseURL string
	model   string
}

// NewLoraClient points a go-openai client at the adapter server's /v1
// endpoint.
func NewLoraClient(baseURL, model string) (*LoraClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("provider: lora base url is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "chatmod-lora"
	}

	cfg := openai.DefaultConfig("unused")
	cfg.BaseURL = baseURL + "/v1"

	return &LoraClient{
		api:     openai.NewClientWithConfig(cfg),
		http:    &http.Client{Timeout: 5 * time.Second},
		baseURL: baseURL,
		model:   model,
	}, nil
}

// Complete sends a chat completion to the adapter server.
func (c *LoraClient) Complete(ctx context.Context, req pipeline.LLMRequest) (pipeline.LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req),
		MaxTokens:   int(req.MaxTokens),
		Temperature: req.Temperature,
	})
	if err != nil {
		return pipeline.LLMResponse{}, fmt.Errorf("provider: lora completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return pipeline.LLMResponse{}, errors.New("provider: lora returned no choices")
	}

	choice := resp.Choices[0]
	return pipeline.LLMResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Usage: pipeline.TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}

// Healthy probes the adapter server's /health endpoint and reports whether
// the model finished loading.
func (c *LoraClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var body struct {
		Status      string `json:"status"`
		ModelLoaded bool   `json:"model_loaded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "ok" && body.ModelLoaded
}
