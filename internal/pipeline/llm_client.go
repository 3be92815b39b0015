package pipeline

import (
	"context"
	"fmt"
	"time"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is the internal message representation shared by all
// provider clients.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports provider-side token accounting when available.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest is a uniform completion request across the generator, the
// classifier, the planner and each corrector backend.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
}

// LLMResponse carries the completion text plus usage metadata.
type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is the narrow provider contract consumed by every stage that
// talks to a model.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// UserMessage builds a single-user-turn message slice.
func UserMessage(content string) []ChatMessage {
	return []ChatMessage{{Role: ChatRoleUser, Content: content}}
}

// completeWithTimeout runs one provider call under its own deadline and
// maps the failure onto the provider error taxonomy. The underlying call
// may keep running after expiry; its result is abandoned, never consumed.
func completeWithTimeout(ctx context.Context, client LLMClient, req LLMRequest, timeout time.Duration) (LLMResponse, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		resp LLMResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := client.Complete(callCtx, req)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case <-callCtx.Done():
		return LLMResponse{}, fmt.Errorf("%w: %v", ErrProviderTimeout, callCtx.Err())
	case out := <-done:
		if out.err != nil {
			kind := classifyProviderErr(out.err)
			return LLMResponse{}, fmt.Errorf("%w: %v", kind, out.err)
		}
		return out.resp, nil
	}
}
