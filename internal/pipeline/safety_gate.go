package pipeline

import (
	"regexp"
	"strings"
)

// GateResult is the outcome of the hard content filter.
type GateResult struct {
	Blocked bool
	Reason  string
}

// gatePattern is a compiled filter rule with a reason label.
type gatePattern struct {
	re     *regexp.Regexp
	reason string
}

// Hard filters. A hit here is terminal: the message never reaches a model.
// German and English phrasings are both covered because the rule sets in
// production carry mixed-language traffic.
var gatePatterns = []gatePattern{
	// Minors in any sexual or meeting context, or self-identification as a minor.
	{regexp.MustCompile(`(?i)\b(minderjährig|minderjaehrig|underage|under\s*18)\b`), "safety:minor"},
	{regexp.MustCompile(`(?i)\bich\s+bin\s+(1[0-7]|[4-9])\s*(jahre|j\b)`), "safety:minor"},
	{regexp.MustCompile(`(?i)\bi('?m|\s+am)\s+(1[0-7]|[4-9])\s+years?\s+old\b`), "safety:minor"},

	// Self-harm and suicide signals are routed to humans, never to a generator.
	{regexp.MustCompile(`(?i)(umbringen|selbstmord|suizid|nicht\s+mehr\s+leben|kill\s+myself|end\s+my\s+life|suicide)`), "safety:self_harm"},

	// Violence and threats.
	{regexp.MustCompile(`(?i)(ich\s+bringe\s+dich\s+um|ich\s+töte|ich\s+toete|i('ll|\s+will)\s+kill\s+you)`), "safety:threat"},

	// Drugs and other illegal trade.
	{regexp.MustCompile(`(?i)\b(kokain|heroin|crystal\s*meth|drogen\s+(kaufen|verkaufen)|buy\s+drugs|sell\s+drugs)\b`), "safety:illegal"},
}

// SafetyGate rejects input before any model call. Pure function over the
// raw message text; failures here never fall through to generation.
type SafetyGate struct{}

// NewSafetyGate constructs the gate.
func NewSafetyGate() *SafetyGate {
	return &SafetyGate{}
}

// Check scans the raw message and returns the first matching hard filter.
func (g *SafetyGate) Check(message string) GateResult {
	if strings.TrimSpace(message) == "" {
		return GateResult{}
	}
	for _, p := range gatePatterns {
		if p.re.MatchString(message) {
			return GateResult{Blocked: true, Reason: p.reason}
		}
	}
	return GateResult{}
}
