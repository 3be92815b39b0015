package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chatwerk/replyengine/pkg/logging"
)

// Planner asks a lightweight model for a short plan (tone, must-address
// points, must-avoid points) before generation. The plan is a hidden
// scratchpad; the counterpart never sees it.
type Planner struct {
	client    LLMClient
	timeout   time.Duration
	maxTokens int32
	logger    *logging.Logger
}

// NewPlanner wires the planner. A nil client disables planning entirely.
func NewPlanner(client LLMClient, timeout time.Duration, maxTokens int32, logger *logging.Logger) *Planner {
	if maxTokens <= 0 {
		maxTokens = 120
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Planner{client: client, timeout: timeout, maxTokens: maxTokens, logger: logger}
}

// Plan returns 2-4 sentences of guidance, or "" when the call fails or no
// client is configured. Failure here is non-fatal: the pipeline proceeds
// with an empty plan. The full current message is included
// untruncated so the plan reflects the whole request.
func (p *Planner) Plan(ctx context.Context, message string, tags []SituationTag, window []Turn) string {
	if p.client == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("You prepare a reply plan for a chat persona. Write 2-4 short sentences: the tone to strike, the points the reply must address, and the points it must avoid. Do not write the reply itself.\n")
	if len(tags) > 0 {
		names := make([]string, 0, len(tags))
		for _, t := range tags {
			names = append(names, string(t))
		}
		fmt.Fprintf(&sb, "\nDetected situations: %s\n", strings.Join(names, ", "))
	}
	if len(window) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, turn := range window {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Text)
		}
	}
	fmt.Fprintf(&sb, "\nCurrent customer message: %s", message)

	resp, err := completeWithTimeout(ctx, p.client, LLMRequest{
		Messages:    UserMessage(sb.String()),
		MaxTokens:   p.maxTokens,
		Temperature: 0.3,
	}, p.timeout)
	if err != nil {
		p.logger.Warn("planner call failed, continuing without plan", "error", err.Error())
		return ""
	}

	return strings.TrimSpace(resp.Text)
}
