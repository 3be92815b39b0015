package pipeline

// SituationTag labels the topical category of an inbound message. The
// vocabulary is closed; tags outside it are discarded wherever they enter
// the pipeline (classifier output and caller-supplied lists alike).
type SituationTag string

const (
	TagMeetingRequest   SituationTag = "meeting-request"
	TagLocationQuestion SituationTag = "location-question"
	TagPaymentTopic     SituationTag = "payment-topic"
	TagBotAccusation    SituationTag = "bot-accusation"
	TagContactRequest   SituationTag = "contact-request"
	TagImageRequest     SituationTag = "image-request"
	TagSexualTopic      SituationTag = "sexual-topic"
	TagEmotional        SituationTag = "emotional"
	TagReactivation     SituationTag = "reactivation-context"
)

// tagOrder fixes the iteration order for deterministic prompt assembly.
var tagOrder = []SituationTag{
	TagMeetingRequest,
	TagLocationQuestion,
	TagPaymentTopic,
	TagBotAccusation,
	TagContactRequest,
	TagImageRequest,
	TagSexualTopic,
	TagEmotional,
	TagReactivation,
}

// tagDefinitions feeds both the LLM classifier prompt and the API docs.
var tagDefinitions = map[SituationTag]string{
	TagMeetingRequest:   "the customer wants to meet in person or proposes a date, place or time",
	TagLocationQuestion: "the customer asks where the persona lives or comes from",
	TagPaymentTopic:     "coins, credits, costs of the platform or money in general",
	TagBotAccusation:    "the customer suspects they are talking to a bot or a fake profile",
	TagContactRequest:   "the customer asks for a phone number, WhatsApp, Telegram or other off-platform contact",
	TagImageRequest:     "the customer asks for a picture or comments on missing pictures",
	TagSexualTopic:      "explicitly sexual content or innuendo",
	TagEmotional:        "strong emotions: grief, loneliness, anger, declarations of love",
	TagReactivation:     "a passive signal (like, kiss) without message text",
}

// ValidTag reports whether t belongs to the closed vocabulary.
func ValidTag(t SituationTag) bool {
	_, ok := tagDefinitions[t]
	return ok
}

// FilterTags drops everything outside the closed vocabulary, preserving
// order and removing duplicates.
func FilterTags(tags []SituationTag) []SituationTag {
	seen := make(map[SituationTag]bool, len(tags))
	out := make([]SituationTag, 0, len(tags))
	for _, t := range tags {
		if ValidTag(t) && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// HasTag reports whether tags contains t.
func HasTag(tags []SituationTag, t SituationTag) bool {
	for _, candidate := range tags {
		if candidate == t {
			return true
		}
	}
	return false
}

// Profile describes one side of the conversation.
type Profile struct {
	Name     string `json:"name"`
	City     string `json:"city"`
	Gender   string `json:"gender"`
	HasImage bool   `json:"has_image"`
}

// Turn is one transcript entry. Role is "persona" or "customer".
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	TurnRolePersona  = "persona"
	TurnRoleCustomer = "customer"
)

// RuleSet carries the externally supplied business policy. It is read-only
// within the pipeline; hot reloads swap the whole value between requests.
type RuleSet struct {
	ForbiddenWords     []string                `json:"forbidden_words"`
	PreferredWords     []string                `json:"preferred_words"`
	GeneralRules       string                  `json:"general_rules"`
	SituationRules     map[SituationTag]string `json:"situation_rules"`
	AllowSexualContent bool                    `json:"allow_sexual_content"`
	PlaceDenylist      []string                `json:"place_denylist"`
}

// ExampleRecord is a stored (message, reply) pair with a precomputed
// embedding, used for few-shot retrieval.
type ExampleRecord struct {
	ID        string
	InputText string
	ReplyText string
	Embedding []float32
	Tags      []SituationTag
	SourceID  string
}

// CorrectionContext is computed once per request and handed unchanged to
// every corrector so that all of them apply the same policy decisions.
type CorrectionContext struct {
	EmotionalTone     bool
	SexualAllowed     bool
	ContactRequested  bool
	NoProfileImage    bool
	IrritatedCustomer bool
}

// Request is the pipeline input.
type Request struct {
	ConversationID string         `json:"conversation_id"`
	History        []Turn         `json:"history"`
	Message        string         `json:"message"`
	Persona        Profile        `json:"persona"`
	Counterpart    Profile        `json:"counterpart"`
	Rules          RuleSet        `json:"rules"`
	IsReactivation bool           `json:"is_reactivation"`
	IsFirstContact bool           `json:"is_first_contact"`
	Tags           []SituationTag `json:"tags,omitempty"` // optional, skips classification
}

// Diagnostics is observability payload attached to accepted results. It is
// never returned to the counterpart.
type Diagnostics struct {
	RequestID        string         `json:"request_id"`
	Mode             Mode           `json:"mode"`
	Tags             []SituationTag `json:"tags"`
	ExampleIDs       []string       `json:"example_ids"`
	CorrectorUsed    string         `json:"corrector_used"`
	PlanUsed         bool           `json:"plan_used"`
	QuestionRepaired bool           `json:"question_repaired"`
}

// Result is the terminal pipeline value: either blocked (with a reason and
// an escalation flag) or accepted with the final message.
type Result struct {
	Blocked      bool        `json:"blocked"`
	Reason       string      `json:"reason,omitempty"`
	Escalate     bool        `json:"escalate,omitempty"`
	FinalMessage string      `json:"final_message,omitempty"`
	Diagnostics  Diagnostics `json:"diagnostics"`
}
