package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chatwerk/replyengine/pkg/logging"
)

// PostProcessorConfig bundles the deterministic normalization limits.
type PostProcessorConfig struct {
	MaxLength           int
	MinLengthAtBoundary int
	RepairTimeout       time.Duration
	RepairMaxTokens     int32
}

// PostProcessor applies deterministic text normalization to the corrected
// draft, plus one optional bounded repair call when the terminal question
// is missing.
type PostProcessor struct {
	repair LLMClient // nil disables question repair
	cfg    PostProcessorConfig
	logger *logging.Logger
}

// NewPostProcessor wires the processor. repair may be nil.
func NewPostProcessor(repair LLMClient, cfg PostProcessorConfig, logger *logging.Logger) *PostProcessor {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 480
	}
	if cfg.MinLengthAtBoundary <= 0 || cfg.MinLengthAtBoundary > cfg.MaxLength {
		cfg.MinLengthAtBoundary = cfg.MaxLength / 3
	}
	if cfg.RepairMaxTokens <= 0 {
		cfg.RepairMaxTokens = 160
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostProcessor{repair: repair, cfg: cfg, logger: logger}
}

// Process runs the transforms in fixed order and reports whether the
// question-repair call changed the message. Sentences mentioning a
// denylisted token are removed unconditionally; a draft consisting only
// of such sentences comes back empty.
func (p *PostProcessor) Process(ctx context.Context, draft, message string, placeDenylist []string) (string, bool) {
	text := stripMetaAndQuotes(draft)
	text = normalizeTypos(text)
	text = dehyphenate(text)
	text = stripDenylisted(text, placeDenylist)
	text = p.truncate(text)
	if text == "" {
		return "", false
	}

	if endsWithQuestion(text) {
		return text, false
	}
	repaired, ok := p.repairQuestion(ctx, text, message)
	if !ok {
		// Documented exception: rather than blocking the pipeline the
		// message goes out without a terminal question.
		return text, false
	}
	repaired = p.truncate(repaired)
	if !endsWithQuestion(repaired) {
		// The length cap cut the appended question off again.
		return text, false
	}
	return repaired, true
}

var (
	metaLineRe    = regexp.MustCompile(`(?m)^\s*([\(\[\*].*[\)\]\*]|Anmerkung:.*|Hinweis:.*|Note:.*)\s*$`)
	leadingLabelRe = regexp.MustCompile(`(?i)^\s*(antwort|reply|nachricht)\s*:\s*`)
)

// stripMetaAndQuotes removes commentary lines the model sometimes adds
// around the reply and unwraps surrounding quote marks.
func stripMetaAndQuotes(text string) string {
	text = metaLineRe.ReplaceAllString(text, "")
	text = leadingLabelRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	for _, pair := range [][2]string{{`"`, `"`}, {"„", "“"}, {"«", "»"}, {"'", "'"}} {
		if strings.HasPrefix(text, pair[0]) && strings.HasSuffix(text, pair[1]) && len(text) > len(pair[0])+len(pair[1]) {
			text = strings.TrimSpace(text[len(pair[0]) : len(text)-len(pair[1])])
		}
	}
	return text
}

// typoReplacements repairs double-encoded umlauts and the recurring typos
// seen in moderated traffic. Longest keys first so mojibake pairs win over
// their prefixes.
var typoReplacer = strings.NewReplacer(
	"Ã¤", "ä",
	"Ã¶", "ö",
	"Ã¼", "ü",
	"ÃŸ", "ß",
	"Ã„", "Ä",
	"Ã–", "Ö",
	"Ãœ", "Ü",
	"nciht", "nicht",
	"udn", "und",
	"dnan", "dann",
	"abre", "aber",
	"villeicht", "vielleicht",
	"vieleicht", "vielleicht",
	"wirklick", "wirklich",
)

func normalizeTypos(text string) string {
	return typoReplacer.Replace(text)
}

var (
	inWordHyphenRe = regexp.MustCompile(`(\p{L})-(\p{L})`)
	strayHyphenRe  = regexp.MustCompile(`\s+-\s+`)
)

// dehyphenate removes hyphenation inside words and hyphens used as loose
// punctuation. Em-style breaks become plain spaces.
func dehyphenate(text string) string {
	text = inWordHyphenRe.ReplaceAllString(text, "$1$2")
	return strayHyphenRe.ReplaceAllString(text, " ")
}

// stripDenylisted removes every sentence mentioning a denylisted place
// or time token. Matching is a case-insensitive substring test so
// compound forms ("Starbucks-Filiale") are caught too.
func stripDenylisted(text string, denylist []string) string {
	if len(denylist) == 0 {
		return text
	}
	var kept []string
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		hit := false
		for _, token := range denylist {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(token)) {
				hit = true
				break
			}
		}
		if !hit {
			kept = append(kept, sentence)
		}
	}
	return strings.TrimSpace(strings.Join(kept, ""))
}

// splitSentences cuts after each terminal punctuation mark, keeping the
// mark with its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		out = append(out, text[start:loc[1]])
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

var sentenceEndRe = regexp.MustCompile(`[.!?]`)

// truncate enforces the hard cap: cut at the last sentence boundary when
// at least MinLengthAtBoundary remains, otherwise at the cap itself.
func (p *PostProcessor) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= p.cfg.MaxLength {
		return text
	}
	head := string(runes[:p.cfg.MaxLength])

	boundary := -1
	for _, loc := range sentenceEndRe.FindAllStringIndex(head, -1) {
		boundary = loc[1]
	}
	if boundary >= 0 && len([]rune(head[:boundary])) >= p.cfg.MinLengthAtBoundary {
		return strings.TrimSpace(head[:boundary])
	}
	return strings.TrimSpace(head)
}

// endsWithQuestion reports whether the message closes with exactly one
// question mark, rejecting "??" and "?!" style runs.
func endsWithQuestion(text string) bool {
	trimmed := strings.TrimRight(text, " \t\n")
	if !strings.HasSuffix(trimmed, "?") {
		return false
	}
	runes := []rune(strings.TrimSuffix(trimmed, "?"))
	if len(runes) == 0 {
		return false
	}
	switch runes[len(runes)-1] {
	case '?', '!', '.':
		return false
	}
	return true
}

// repairQuestion issues the last-resort bounded call whose sole job is to
// append a short, topically relevant question.
func (p *PostProcessor) repairQuestion(ctx context.Context, text, message string) (string, bool) {
	if p.repair == nil {
		return "", false
	}

	prompt := fmt.Sprintf(
		"Die folgende Chat-Nachricht endet nicht mit einer Frage. Gib die Nachricht unverändert wieder und hänge eine kurze, zum Thema passende Frage an. Gib nur die vollständige Nachricht aus.\n\nKundennachricht: %s\n\nNachricht:\n%s",
		message, text,
	)
	resp, err := completeWithTimeout(ctx, p.repair, LLMRequest{
		Messages:    UserMessage(prompt),
		MaxTokens:   p.cfg.RepairMaxTokens,
		Temperature: 0.4,
	}, p.cfg.RepairTimeout)
	if err != nil {
		p.logger.Warn("question repair failed", "error", err.Error())
		return "", false
	}

	repaired := strings.TrimSpace(resp.Text)
	if len(repaired) <= len(text) || !endsWithQuestion(repaired) {
		return "", false
	}
	return repaired, true
}
