// Package provider contains the LLMClient implementations the pipeline
// talks to: the OpenAI API, a self-hosted OpenAI-compatible LoRA adapter
// server, and Gemini as an additional corrector backend.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chatwerk/replyengine/internal/pipeline"
)

// chatCompleter is the slice of the go-openai client we use, kept narrow
// for tests.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient implements pipeline.LLMClient against the OpenAI chat API.
type OpenAIClient struct {
	api   chatCompleter
	model string
}

// NewOpenAIClient builds a client for the given API key and default model.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("provider: openai api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{api: openai.NewClient(apiKey), model: model}, nil
}

// Complete maps the internal request onto a chat completion call.
func (c *OpenAIClient) Complete(ctx context.Context, req pipeline.LLMRequest) (pipeline.LLMResponse, error) {
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
		return pipeline.LLMResponse{}, fmt.Errorf("provider: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return pipeline.LLMResponse{}, errors.New("provider: openai returned no choices")
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

// toOpenAIMessages flattens system prompts ahead of the conversation.
func toOpenAIMessages(req pipeline.LLMRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, sys := range req.System {
		if strings.TrimSpace(sys) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: sys,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case pipeline.ChatRoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case pipeline.ChatRoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return messages
}
