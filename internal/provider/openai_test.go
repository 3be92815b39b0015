package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwerk/replyengine/internal/pipeline"
)

type fakeCompleter struct {
	lastReq openai.ChatCompletionRequest
	resp    openai.ChatCompletionResponse
	err     error
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("  ", "")
	assert.Error(t, err)
}

func TestOpenAIComplete(t *testing.T) {
	api := &fakeCompleter{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "  Hallo du! Wie geht es dir?  "},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	client := &OpenAIClient{api: api, model: "gpt-4o-mini"}

	resp, err := client.Complete(context.Background(), pipeline.LLMRequest{
		System:      []string{"Du bist Lena.", ""},
		Messages:    pipeline.UserMessage("hallo"),
		MaxTokens:   200,
		Temperature: 0.7,
	})

	require.NoError(t, err)
	assert.Equal(t, "Hallo du! Wie geht es dir?", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.EqualValues(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o-mini", api.lastReq.Model)
	require.Len(t, api.lastReq.Messages, 2, "empty system sections are dropped")
	assert.Equal(t, openai.ChatMessageRoleSystem, api.lastReq.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, api.lastReq.Messages[1].Role)
}

func TestOpenAICompleteRequestModelOverride(t *testing.T) {
	api := &fakeCompleter{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}}
	client := &OpenAIClient{api: api, model: "gpt-4o-mini"}

	_, err := client.Complete(context.Background(), pipeline.LLMRequest{
		Model:    "gpt-4o",
		Messages: pipeline.UserMessage("hallo"),
	})

	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", api.lastReq.Model)
}

func TestOpenAICompleteErrors(t *testing.T) {
	client := &OpenAIClient{api: &fakeCompleter{err: errors.New("rate limited")}, model: "gpt-4o-mini"}
	_, err := client.Complete(context.Background(), pipeline.LLMRequest{Messages: pipeline.UserMessage("x")})
	assert.ErrorContains(t, err, "openai completion failed")

	client = &OpenAIClient{api: &fakeCompleter{}, model: "gpt-4o-mini"}
	_, err = client.Complete(context.Background(), pipeline.LLMRequest{Messages: pipeline.UserMessage("x")})
	assert.ErrorContains(t, err, "no choices")
}

func TestToOpenAIMessagesRoleMapping(t *testing.T) {
	messages := toOpenAIMessages(pipeline.LLMRequest{
		Messages: []pipeline.ChatMessage{
			{Role: pipeline.ChatRoleAssistant, Content: "a"},
			{Role: pipeline.ChatRoleUser, Content: "b"},
		},
	})

	require.Len(t, messages, 2)
	assert.Equal(t, openai.ChatMessageRoleAssistant, messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, messages[1].Role)
}

func TestLoraHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","model_loaded":true}`))
	}))
	defer srv.Close()

	client, err := NewLoraClient(srv.URL, "")
	require.NoError(t, err)
	assert.True(t, client.Healthy(context.Background()))
}

func TestLoraHealthyModelNotLoaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","model_loaded":false}`))
	}))
	defer srv.Close()

	client, err := NewLoraClient(srv.URL, "")
	require.NoError(t, err)
	assert.False(t, client.Healthy(context.Background()))
}

func TestLoraHealthyServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	client, err := NewLoraClient(srv.URL, "")
	require.NoError(t, err)
	assert.False(t, client.Healthy(context.Background()))
}

func TestNewLoraClientValidation(t *testing.T) {
	_, err := NewLoraClient("", "")
	assert.Error(t, err)
}
