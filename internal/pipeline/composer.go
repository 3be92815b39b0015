package pipeline

import (
	"fmt"
	"strings"
)

// ComposerConfig carries the structural constraints woven into every
// generation request.
type ComposerConfig struct {
	TargetLengthMin int
	TargetLengthMax int
	HistoryWindow   int
	MaxTokens       int32
	Temperature     float32
}

// ComposeInput is everything the composer needs. Assembly is pure: the
// same input always produces the same request, so the composer is testable
// without a model.
type ComposeInput struct {
	Mode        Mode
	Persona     Profile
	Counterpart Profile
	History     []Turn
	Message     string
	Rules       RuleSet
	Tags        []SituationTag
	Plan        string
	Examples    []ExampleRecord
	Correction  CorrectionContext
}

// Composer assembles the single generation request from persona rules,
// situational rules, retrieved examples, the plan and the structural
// directives.
type Composer struct {
	cfg ComposerConfig
}

// NewComposer validates the config and returns the composer.
func NewComposer(cfg ComposerConfig) *Composer {
	if cfg.TargetLengthMin <= 0 {
		cfg.TargetLengthMin = 120
	}
	if cfg.TargetLengthMax <= cfg.TargetLengthMin {
		cfg.TargetLengthMax = cfg.TargetLengthMin + 280
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 12
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	return &Composer{cfg: cfg}
}

// Compose builds the generation request for the selected mode.
func (c *Composer) Compose(in ComposeInput) LLMRequest {
	var system []string
	system = append(system, c.personaSection(in))
	system = append(system, c.modeSection(in))
	if rules := strings.TrimSpace(in.Rules.GeneralRules); rules != "" {
		system = append(system, "Allgemeine Regeln:\n"+rules)
	}
	if s := c.situationSection(in); s != "" {
		system = append(system, s)
	}
	system = append(system, c.structuralSection(in))
	if s := c.exampleSection(in.Examples); s != "" {
		system = append(system, s)
	}
	if plan := strings.TrimSpace(in.Plan); plan != "" {
		system = append(system, "Interner Plan für diese Antwort (niemals zitieren):\n"+plan)
	}

	return LLMRequest{
		System:      system,
		Messages:    c.conversationMessages(in),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
}

func (c *Composer) personaSection(in ComposeInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Du schreibst als %s", orFallback(in.Persona.Name, "die Persona"))
	if in.Persona.Gender != "" {
		fmt.Fprintf(&sb, " (%s)", in.Persona.Gender)
	}
	if in.Persona.City != "" {
		fmt.Fprintf(&sb, " aus %s", in.Persona.City)
	}
	sb.WriteString(" in einem privaten Chat.")
	if in.Counterpart.Name != "" {
		fmt.Fprintf(&sb, " Dein Gegenüber heißt %s", in.Counterpart.Name)
		if in.Counterpart.City != "" {
			fmt.Fprintf(&sb, " und kommt aus %s", in.Counterpart.City)
		}
		sb.WriteString(".")
	}
	if !in.Counterpart.HasImage {
		sb.WriteString(" Das Gegenüber hat kein Profilbild, beziehe dich also nie auf sein Aussehen.")
	}
	return sb.String()
}

func (c *Composer) modeSection(in ComposeInput) string {
	switch in.Mode {
	case ModeReactivation:
		return "Das Gegenüber hat keinen Text geschrieben, sondern nur ein Like oder einen Kuss gesendet. Schreibe eine neugierige, persönliche Nachricht, die das eingeschlafene Gespräch wieder in Gang bringt. Beziehe dich auf das Profil des Gegenübers, nicht auf eine Nachricht."
	case ModeFirstContact:
		return "Das ist deine allererste Nachricht an dieses Gegenüber. Stelle dich kurz vor, greife etwas aus seinem Profil oder seiner Nachricht auf und mache Lust auf eine Antwort."
	default:
		return "Antworte direkt auf die letzte Nachricht des Gegenübers und führe das Gespräch natürlich weiter."
	}
}

func (c *Composer) situationSection(in ComposeInput) string {
	if len(in.Tags) == 0 || len(in.Rules.SituationRules) == 0 {
		return ""
	}
	var parts []string
	// Fixed vocabulary order keeps assembly reproducible regardless of
	// classifier output order.
	for _, tag := range tagOrder {
		if !HasTag(in.Tags, tag) {
			continue
		}
		if rule, ok := in.Rules.SituationRules[tag]; ok && strings.TrimSpace(rule) != "" {
			parts = append(parts, fmt.Sprintf("Situation %s: %s", tag, strings.TrimSpace(rule)))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Situationsregeln:\n" + strings.Join(parts, "\n")
}

func (c *Composer) structuralSection(in ComposeInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Formale Vorgaben:\n- Länge zwischen %d und %d Zeichen.\n", c.cfg.TargetLengthMin, c.cfg.TargetLengthMax)
	sb.WriteString("- Die Nachricht endet mit genau einer Frage.\n")
	sb.WriteString("- Kein Meta-Kommentar über die Nachricht des Gegenübers und keine Anführungszeichen um die Antwort.\n")
	sb.WriteString("- Wiederhole die Nachricht des Gegenübers nicht.\n")
	if len(in.Rules.ForbiddenWords) > 0 {
		fmt.Fprintf(&sb, "- Diese Wörter niemals verwenden: %s.\n", strings.Join(in.Rules.ForbiddenWords, ", "))
	}
	if len(in.Rules.PreferredWords) > 0 {
		fmt.Fprintf(&sb, "- Bevorzugte Wörter, wenn sie passen: %s.\n", strings.Join(in.Rules.PreferredWords, ", "))
	}
	if HasTag(in.Tags, TagMeetingRequest) && len(in.Rules.PlaceDenylist) > 0 {
		fmt.Fprintf(&sb, "- Nenne niemals konkrete Orte, Lokale oder Uhrzeiten, insbesondere nicht: %s.\n", strings.Join(in.Rules.PlaceDenylist, ", "))
	}
	if HasTag(in.Tags, TagSexualTopic) {
		if in.Correction.SexualAllowed {
			fmt.Fprintf(&sb, "- Erotische Inhalte sind erlaubt; formuliere konsistent aus Sicht einer Person mit Geschlecht %q.\n", orFallback(in.Persona.Gender, "weiblich"))
		} else {
			sb.WriteString("- Keine expliziten sexuellen Inhalte; lenke charmant auf ein anderes Thema.\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *Composer) exampleSection(examples []ExampleRecord) string {
	if len(examples) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Beispiele für gelungene Antworten in ähnlichen Situationen:\n")
	for i, ex := range examples {
		fmt.Fprintf(&sb, "Beispiel %d:\nNachricht: %s\nAntwort: %s\n", i+1, ex.InputText, ex.ReplyText)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// conversationMessages maps the bounded transcript window onto chat roles
// and appends the current message.
func (c *Composer) conversationMessages(in ComposeInput) []ChatMessage {
	window := boundedWindow(in.History, c.cfg.HistoryWindow)
	messages := make([]ChatMessage, 0, len(window)+1)
	for _, turn := range window {
		role := ChatRoleUser
		if turn.Role == TurnRolePersona {
			role = ChatRoleAssistant
		}
		messages = append(messages, ChatMessage{Role: role, Content: turn.Text})
	}

	current := strings.TrimSpace(in.Message)
	if current == "" && in.Mode == ModeReactivation {
		current = "[Das Gegenüber hat ein Like gesendet.]"
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: current})
	return messages
}

// boundedWindow returns the last n turns.
func boundedWindow(history []Turn, n int) []Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func orFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
