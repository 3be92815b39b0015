package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chatwerk/replyengine/pkg/logging"
)

// ClassifierStrategy labels a message with zero or more situation tags.
// Implementations are tried in fixed order; the first one that succeeds
// wins.
type ClassifierStrategy interface {
	Classify(ctx context.Context, message string, window []Turn) ([]SituationTag, error)
	Name() string
}

// SituationClassifier runs the configured strategies in order. The
// production setup is one LLM strategy followed by the deterministic
// keyword matcher, so a provider outage degrades quality but never blocks
// the pipeline.
type SituationClassifier struct {
	strategies []ClassifierStrategy
	logger     *logging.Logger
}

// NewSituationClassifier builds the ordered strategy chain.
func NewSituationClassifier(logger *logging.Logger, strategies ...ClassifierStrategy) *SituationClassifier {
	if len(strategies) == 0 {
		panic("pipeline: at least one classifier strategy required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SituationClassifier{strategies: strategies, logger: logger}
}

// Classify returns the union-capable tag list from the first strategy that
// succeeds. When every strategy fails the message carries no tags.
func (c *SituationClassifier) Classify(ctx context.Context, message string, window []Turn) []SituationTag {
	for _, s := range c.strategies {
		tags, err := s.Classify(ctx, message, window)
		if err != nil {
			c.logger.Warn("situation classifier strategy failed",
				"strategy", s.Name(),
				"error", err.Error(),
			)
			continue
		}
		return FilterTags(tags)
	}
	return nil
}

// LLMClassifier asks a model to pick tags from the closed vocabulary.
type LLMClassifier struct {
	client    LLMClient
	timeout   time.Duration
	maxTokens int32
}

// NewLLMClassifier builds the model-backed strategy.
func NewLLMClassifier(client LLMClient, timeout time.Duration, maxTokens int32) *LLMClassifier {
	if client == nil {
		panic("pipeline: classifier client cannot be nil")
	}
	if maxTokens <= 0 {
		maxTokens = 60
	}
	return &LLMClassifier{client: client, timeout: timeout, maxTokens: maxTokens}
}

func (c *LLMClassifier) Name() string { return "llm" }

// Classify issues one bounded model call and parses a JSON array of tag
// names. Anything outside the vocabulary is discarded by the caller.
func (c *LLMClassifier) Classify(ctx context.Context, message string, window []Turn) ([]SituationTag, error) {
	var sb strings.Builder
	sb.WriteString("Label the customer message with zero or more of these situations. Reply with a JSON array of situation names only, e.g. [\"meeting-request\"]. Use [] when none apply.\n\nSituations:\n")
	for _, tag := range tagOrder {
		fmt.Fprintf(&sb, "- %s: %s\n", tag, tagDefinitions[tag])
	}
	if len(window) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, turn := range window {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Text)
		}
	}
	fmt.Fprintf(&sb, "\nCustomer message: %s", message)

	resp, err := completeWithTimeout(ctx, c.client, LLMRequest{
		Messages:    UserMessage(sb.String()),
		MaxTokens:   c.maxTokens,
		Temperature: 0,
	}, c.timeout)
	if err != nil {
		return nil, err
	}

	return parseTagList(resp.Text)
}

// parseTagList extracts the JSON array from a possibly chatty completion.
func parseTagList(text string) ([]SituationTag, error) {
	content := strings.TrimSpace(text)
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("pipeline: no JSON array in classifier output")
	}

	var names []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &names); err != nil {
		return nil, fmt.Errorf("pipeline: decode classifier output: %w", err)
	}

	tags := make([]SituationTag, 0, len(names))
	for _, name := range names {
		tags = append(tags, SituationTag(strings.TrimSpace(name)))
	}
	return tags, nil
}

// keywordRules drive the deterministic fallback. The patterns mirror the
// phrasing seen in moderated traffic, German first.
var keywordRules = []struct {
	tag SituationTag
	re  *regexp.Regexp
}{
	{TagMeetingRequest, regexp.MustCompile(`(?i)(treffen|date\b|verabred|sehen\s+wir\s+uns|komm\s+vorbei|meet\s+(up|you|me)|bei\s+dir\s+oder\s+bei\s+mir)`)},
	{TagLocationQuestion, regexp.MustCompile(`(?i)(wo\s+wohnst|wo\s+lebst|woher\s+kommst|aus\s+welcher\s+stadt|where\s+do\s+you\s+live)`)},
	{TagPaymentTopic, regexp.MustCompile(`(?i)(coins?\b|credits?\b|kostet|teuer|geld|bezahl|abzock|euro|money|expensive)`)},
	{TagBotAccusation, regexp.MustCompile(`(?i)(\bbot\b|\bki\b|\bai\b|fake\s*profil|computer\s*programm|nicht\s+echt|bist\s+du\s+echt|roboter)`)},
	{TagContactRequest, regexp.MustCompile(`(?i)(whats\s*app|telegram|signal\b|handy\s*nummer|telefon\s*nummer|deine\s+nummer|phone\s+number|insta(gram)?\b|snap(chat)?\b|e-?mail)`)},
	{TagImageRequest, regexp.MustCompile(`(?i)(schick\s+(mir\s+)?(ein\s+)?(foto|bild)|kein\s+(foto|bild)|zeig\s+dich|send\s+(me\s+)?a\s+(pic|photo|picture)|nacktbild)`)},
	{TagSexualTopic, regexp.MustCompile(`(?i)(sex\b|ficken|geil\b|heiß\s+auf|nackt|intim|erotisch|horny|naughty)`)},
	{TagEmotional, regexp.MustCompile(`(?i)(einsam|traurig|vermisse|liebe\s+dich|verliebt|allein\b|weinen|depress|lonely|miss\s+you|love\s+you)`)},
}

// KeywordClassifier is the deterministic fallback over the same
// vocabulary. It never fails.
type KeywordClassifier struct{}

// NewKeywordClassifier constructs the fallback strategy.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Name() string { return "keyword" }

// Classify matches every rule; multiple tags may co-occur.
func (c *KeywordClassifier) Classify(_ context.Context, message string, _ []Turn) ([]SituationTag, error) {
	var tags []SituationTag
	for _, rule := range keywordRules {
		if rule.re.MatchString(message) {
			tags = append(tags, rule.tag)
		}
	}
	return tags, nil
}
