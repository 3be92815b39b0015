package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chatwerk/replyengine/pkg/logging"
)

// CorrectorBackend is one entry in the ordered corrector chain. A nil
// client marks the backend as unconfigured and it is skipped.
type CorrectorBackend struct {
	Name   string
	Client LLMClient
}

// CorrectionInput is the full bundle every corrector receives, so all
// backends see identical policy context.
type CorrectionInput struct {
	Message    string
	Draft      string
	Plan       string
	Window     []Turn
	Example    string
	Rules      RuleSet
	Tags       []SituationTag
	Correction CorrectionContext
}

// CorrectorChain tries the configured backends in priority order to repair
// structural violations in the draft without discarding acceptable content.
type CorrectorChain struct {
	backends    []CorrectorBackend
	acceptRatio float64
	timeout     time.Duration
	maxTokens   int32
	logger      *logging.Logger
}

// NewCorrectorChain builds the chain. acceptRatio is the minimum fraction
// of the draft's length a corrected text must keep to be accepted; it
// stops a corrector from silently truncating the draft while still being
// logged as a success.
func NewCorrectorChain(backends []CorrectorBackend, acceptRatio float64, timeout time.Duration, maxTokens int32, logger *logging.Logger) *CorrectorChain {
	if acceptRatio <= 0 || acceptRatio > 1 {
		acceptRatio = 0.40
	}
	if maxTokens <= 0 {
		maxTokens = 200
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CorrectorChain{
		backends:    backends,
		acceptRatio: acceptRatio,
		timeout:     timeout,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

// Run returns the (possibly corrected) draft and the name of the backend
// whose output was accepted, or "" when the draft passed through
// unchanged. A backend whose output is near-identical to the draft is
// treated as a rejection, never reported as used.
func (c *CorrectorChain) Run(ctx context.Context, in CorrectionInput) (string, string) {
	draft := in.Draft
	for _, backend := range c.backends {
		if backend.Client == nil {
			continue
		}

		resp, err := completeWithTimeout(ctx, backend.Client, LLMRequest{
			System:      []string{correctorSystemPrompt},
			Messages:    UserMessage(c.buildPrompt(in)),
			MaxTokens:   c.maxTokens,
			Temperature: 0.4,
		}, c.timeout)
		if err != nil {
			c.logger.Warn("corrector backend failed", "backend", backend.Name, "error", err.Error())
			continue
		}

		candidate := strings.TrimSpace(resp.Text)
		if !c.accept(draft, candidate) {
			c.logger.Debug("corrector output rejected", "backend", backend.Name)
			continue
		}
		return candidate, backend.Name
	}
	return draft, ""
}

// accept applies the validation check: enough length retained and a real
// change rather than a whitespace/case echo of the draft.
func (c *CorrectorChain) accept(draft, candidate string) bool {
	if candidate == "" {
		return false
	}
	if float64(len([]rune(candidate))) < c.acceptRatio*float64(len([]rune(draft))) {
		return false
	}
	return normalizeForCompare(candidate) != normalizeForCompare(draft)
}

const correctorSystemPrompt = "Du korrigierst Chat-Antworten einer Persona. Behalte Inhalt und Ton bei und behebe nur Verstöße: fehlende Schlussfrage, Wiederholung der Kundennachricht, verbotene Wörter oder Regelverstöße. Gib ausschließlich die korrigierte Nachricht aus."

func (c *CorrectorChain) buildPrompt(in CorrectionInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Kundennachricht: %s\n\nEntwurf:\n%s\n", in.Message, in.Draft)
	if in.Plan != "" {
		fmt.Fprintf(&sb, "\nPlan für die Antwort: %s\n", in.Plan)
	}
	if len(in.Window) > 0 {
		sb.WriteString("\nLetzte Nachrichten:\n")
		for _, turn := range in.Window {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Text)
		}
	}
	if in.Example != "" {
		fmt.Fprintf(&sb, "\nBeispiel einer gelungenen Antwort: %s\n", in.Example)
	}
	if len(in.Rules.ForbiddenWords) > 0 {
		fmt.Fprintf(&sb, "\nVerbotene Wörter: %s\n", strings.Join(in.Rules.ForbiddenWords, ", "))
	}
	sb.WriteString("\nHinweise: ")
	fmt.Fprintf(&sb, "emotional=%t, erotik_erlaubt=%t, kontaktanfrage=%t, kein_profilbild=%t, genervt=%t",
		in.Correction.EmotionalTone,
		in.Correction.SexualAllowed,
		in.Correction.ContactRequested,
		in.Correction.NoProfileImage,
		in.Correction.IrritatedCustomer,
	)
	return sb.String()
}

// normalizeForCompare collapses whitespace and case so trivially reworded
// echoes compare equal.
func normalizeForCompare(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
