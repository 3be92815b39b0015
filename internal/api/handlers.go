// Package api is the thin HTTP transport in front of the reply pipeline.
// Authentication and the configuration CRUD around rule sets live in a
// separate system; only generation, reload and health are exposed here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chatwerk/replyengine/internal/pipeline"
	"github.com/chatwerk/replyengine/pkg/logging"
)

// ReplyService runs the generation pipeline.
type ReplyService interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// RuleSource serves the active rule set and reloads it on demand.
type RuleSource interface {
	Current() pipeline.RuleSet
	Reload() error
}

// Reindexer refreshes the example index from the corpus.
type Reindexer interface {
	Sync(ctx context.Context) error
}

// HealthProber reports whether a provider is reachable.
type HealthProber interface {
	Healthy(ctx context.Context) bool
}

// Handler glues the HTTP surface to the pipeline.
type Handler struct {
	service ReplyService
	rules   RuleSource
	index   Reindexer    // optional
	prober  HealthProber // optional
	logger  *logging.Logger
}

// NewHandler wires the handler. Index and prober may be nil.
func NewHandler(service ReplyService, rules RuleSource, index Reindexer, prober HealthProber, logger *logging.Logger) *Handler {
	if service == nil {
		panic("api: reply service required")
	}
	if rules == nil {
		panic("api: rule source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, rules: rules, index: index, prober: prober, logger: logger}
}

type replyRequest struct {
	ConversationID string                  `json:"conversation_id"`
	History        []pipeline.Turn         `json:"history"`
	Message        string                  `json:"message"`
	Persona        pipeline.Profile        `json:"persona"`
	Counterpart    pipeline.Profile        `json:"counterpart"`
	IsReactivation bool                    `json:"is_reactivation"`
	IsFirstContact bool                    `json:"is_first_contact"`
	Tags           []pipeline.SituationTag `json:"tags,omitempty"`
	// Rules override the active rule set for this request. Most callers
	// leave it empty and run against the stored rules.
	Rules *pipeline.RuleSet `json:"rules,omitempty"`
}

// Reply handles POST /v1/reply.
func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	var body replyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Message == "" && !body.IsReactivation {
		writeError(w, http.StatusBadRequest, "message is required unless is_reactivation is set")
		return
	}

	rules := h.rules.Current()
	if body.Rules != nil {
		rules = *body.Rules
	}

	result, err := h.service.Run(r.Context(), pipeline.Request{
		ConversationID: body.ConversationID,
		History:        body.History,
		Message:        body.Message,
		Persona:        body.Persona,
		Counterpart:    body.Counterpart,
		Rules:          rules,
		IsReactivation: body.IsReactivation,
		IsFirstContact: body.IsFirstContact,
		Tags:           body.Tags,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrPipelineExhausted) {
			h.logger.Error("pipeline exhausted", "error", err.Error())
			writeError(w, http.StatusBadGateway, "generation failed")
			return
		}
		h.logger.Error("pipeline failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Reload handles POST /admin/reload: rule reload plus a hash-gated
// reindex of the example corpus.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.Reload(); err != nil {
		h.logger.Error("rule reload failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "rule reload failed")
		return
	}
	if h.index != nil {
		if err := h.index.Sync(r.Context()); err != nil {
			h.logger.Error("example reindex failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "example reindex failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"status": "ok"}
	if h.prober != nil {
		payload["lora_healthy"] = h.prober.Healthy(r.Context())
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
