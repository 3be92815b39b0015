package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chatwerk/replyengine/internal/observability/metrics"
	"github.com/chatwerk/replyengine/pkg/logging"
)

var tracer = otel.Tracer("replyengine.internal.pipeline")

// DuplicateLog is the append-only global log of previously emitted
// messages. Append is fire-and-forget from the pipeline's perspective.
type DuplicateLog interface {
	Contains(ctx context.Context, text string) (bool, error)
	Append(ctx context.Context, text string) error
}

// Config carries the pipeline-level knobs not owned by a single stage.
type Config struct {
	GeneratorTimeout   time.Duration
	GeneratorMaxTokens int32
	HistoryWindow      int
}

// Deps aggregates the stage implementations. Generator, gate, composer and
// post-processor are required; the rest degrade gracefully when absent.
type Deps struct {
	Gate       *SafetyGate
	Location   *LocationResolver
	Classifier *SituationClassifier
	Retriever  *ExampleRetriever
	Planner    *Planner
	Composer   *Composer
	Generator  LLMClient
	Correctors *CorrectorChain
	Post       *PostProcessor
	Duplicates DuplicateLog
	Metrics    *metrics.PipelineMetrics
	Logger     *logging.Logger
}

// Pipeline is the staged reply orchestrator. One request runs as one
// independent task; the only shared state lives behind the injected
// stores.
type Pipeline struct {
	gate       *SafetyGate
	location   *LocationResolver
	classifier *SituationClassifier
	retriever  *ExampleRetriever
	planner    *Planner
	composer   *Composer
	generator  LLMClient
	correctors *CorrectorChain
	post       *PostProcessor
	duplicates DuplicateLog
	metrics    *metrics.PipelineMetrics
	logger     *logging.Logger
	cfg        Config
}

// New wires the pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	if deps.Gate == nil {
		panic("pipeline: safety gate cannot be nil")
	}
	if deps.Composer == nil {
		panic("pipeline: composer cannot be nil")
	}
	if deps.Generator == nil {
		panic("pipeline: generator cannot be nil")
	}
	if deps.Post == nil {
		panic("pipeline: post processor cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if cfg.GeneratorTimeout <= 0 {
		cfg.GeneratorTimeout = 60 * time.Second
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 12
	}
	return &Pipeline{
		gate:       deps.Gate,
		location:   deps.Location,
		classifier: deps.Classifier,
		retriever:  deps.Retriever,
		planner:    deps.Planner,
		composer:   deps.Composer,
		generator:  deps.Generator,
		correctors: deps.Correctors,
		post:       deps.Post,
		duplicates: deps.Duplicates,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// Run executes the staged flow and returns the terminal result. The only
// error it returns is generator exhaustion; every other provider failure
// degrades the reply instead of failing the request.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	started := time.Now()
	diag := Diagnostics{
		RequestID: uuid.NewString(),
		Mode:      SelectMode(req.IsReactivation, req.IsFirstContact),
	}
	span.SetAttributes(attribute.String("pipeline.mode", string(diag.Mode)))
	logger := p.logger.With("request_id", diag.RequestID, "mode", string(diag.Mode))

	// Stage 1: hard content filter, before any external call.
	if gate := p.gate.Check(req.Message); gate.Blocked {
		p.metrics.ObserveBlocked(gate.Reason)
		logger.Info("message blocked by safety gate", "reason", gate.Reason)
		return &Result{Blocked: true, Reason: gate.Reason, Diagnostics: diag}, nil
	}

	// Stage 3: deterministic location answer, terminal on both paths.
	if p.location != nil && diag.Mode != ModeReactivation && IsLocationQuestion(req.Message) {
		diag.Tags = []SituationTag{TagLocationQuestion}
		answer, err := p.location.Resolve(req.ConversationID, req.Persona, req.Counterpart)
		if err != nil {
			p.metrics.ObserveBlocked("human_escalation")
			logger.Warn("location unresolved, escalating to human")
			return &Result{Blocked: true, Reason: "location unresolved", Escalate: true, Diagnostics: diag}, nil
		}
		p.emit(answer)
		p.metrics.ObserveAccepted(string(diag.Mode), "", time.Since(started))
		return &Result{FinalMessage: answer, Diagnostics: diag}, nil
	}

	window := boundedWindow(req.History, p.cfg.HistoryWindow)

	// Stage 4: situation tags, caller-supplied list short-circuits.
	if len(req.Tags) > 0 {
		diag.Tags = FilterTags(req.Tags)
	} else if p.classifier != nil && diag.Mode != ModeReactivation {
		classifyCtx, classifySpan := tracer.Start(ctx, "pipeline.classify")
		diag.Tags = p.classifier.Classify(classifyCtx, req.Message, window)
		classifySpan.End()
	}
	corr := buildCorrectionContext(req, diag.Tags)

	// Stage 5: few-shot retrieval.
	var examples []ExampleRecord
	if p.retriever != nil && diag.Mode != ModeReactivation {
		retrieveCtx, retrieveSpan := tracer.Start(ctx, "pipeline.retrieve")
		examples = p.retriever.Retrieve(retrieveCtx, req.Message, diag.Tags, !req.Rules.AllowSexualContent)
		retrieveSpan.End()
		for _, ex := range examples {
			diag.ExampleIDs = append(diag.ExampleIDs, ex.ID)
		}
	}

	// Stage 6: plan; empty on failure.
	var plan string
	if p.planner != nil {
		planCtx, planSpan := tracer.Start(ctx, "pipeline.plan")
		plan = p.planner.Plan(planCtx, req.Message, diag.Tags, window)
		planSpan.End()
		diag.PlanUsed = plan != ""
	}

	// Stages 7-8: compose and generate.
	genReq := p.composer.Compose(ComposeInput{
		Mode:        diag.Mode,
		Persona:     req.Persona,
		Counterpart: req.Counterpart,
		History:     req.History,
		Message:     req.Message,
		Rules:       req.Rules,
		Tags:        diag.Tags,
		Plan:        plan,
		Examples:    examples,
		Correction:  corr,
	})
	genReq.MaxTokens = p.cfg.GeneratorMaxTokens

	genCtx, genSpan := tracer.Start(ctx, "pipeline.generate")
	genResp, err := completeWithTimeout(genCtx, p.generator, genReq, p.cfg.GeneratorTimeout)
	genSpan.End()
	if err != nil {
		p.metrics.ObserveProviderFailure("generator")
		return nil, fmt.Errorf("%w: %v", ErrPipelineExhausted, err)
	}
	draft := strings.TrimSpace(genResp.Text)
	if draft == "" {
		p.metrics.ObserveProviderFailure("generator")
		return nil, fmt.Errorf("%w: empty draft", ErrPipelineExhausted)
	}

	// Stage 9: corrector chain.
	if p.correctors != nil {
		var example string
		if len(examples) > 0 {
			example = examples[0].ReplyText
		}
		correctCtx, correctSpan := tracer.Start(ctx, "pipeline.correct")
		draft, diag.CorrectorUsed = p.correctors.Run(correctCtx, CorrectionInput{
			Message:    req.Message,
			Draft:      draft,
			Plan:       plan,
			Window:     window,
			Example:    example,
			Rules:      req.Rules,
			Tags:       diag.Tags,
			Correction: corr,
		})
		correctSpan.End()
	}

	// Stage 10: deterministic normalization plus question repair. Place
	// names from the persona rules are only forbidden once the chat is
	// actually steering toward a meeting.
	var placeDenylist []string
	if HasTag(diag.Tags, TagMeetingRequest) {
		placeDenylist = req.Rules.PlaceDenylist
	}
	postCtx, postSpan := tracer.Start(ctx, "pipeline.postprocess")
	final, repaired := p.post.Process(postCtx, draft, req.Message, placeDenylist)
	postSpan.End()
	diag.QuestionRepaired = repaired
	if final == "" {
		p.metrics.ObserveBlocked("empty_after_postprocess")
		logger.Info("draft emptied by post-processing")
		return &Result{Blocked: true, Reason: "empty after post-processing", Diagnostics: diag}, nil
	}

	// Stage 11: global duplicate check; the append never blocks the caller.
	if p.duplicates != nil {
		dupCtx, dupSpan := tracer.Start(ctx, "pipeline.duplicate_check")
		dup, err := p.duplicates.Contains(dupCtx, final)
		dupSpan.End()
		if err != nil {
			logger.Warn("duplicate check failed, accepting message", "error", err.Error())
		} else if dup {
			p.metrics.ObserveBlocked("duplicate")
			logger.Info("message rejected as duplicate")
			return &Result{Blocked: true, Reason: "duplicate", Diagnostics: diag}, nil
		}
		p.emit(final)
	}

	p.metrics.ObserveAccepted(string(diag.Mode), diag.CorrectorUsed, time.Since(started))
	return &Result{FinalMessage: final, Diagnostics: diag}, nil
}

// emit appends to the duplicate log in the background. The log's writes
// are commutative, so ordering against concurrent reads is not required.
func (p *Pipeline) emit(text string) {
	if p.duplicates == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.duplicates.Append(ctx, text); err != nil {
			p.logger.Warn("duplicate log append failed", "error", err.Error())
		}
	}()
}

var irritationRe = regexp.MustCompile(`(?i)(nervt|nervig|verarsch|verarscht|abzocke|scheiß|lächerlich|genug\s+jetzt|hör\s+auf|annoying|ridiculous|stop\s+it|scam)`)

// buildCorrectionContext computes the per-request policy flags exactly
// once so every corrector applies the same decisions.
func buildCorrectionContext(req Request, tags []SituationTag) CorrectionContext {
	return CorrectionContext{
		EmotionalTone:     HasTag(tags, TagEmotional),
		SexualAllowed:     req.Rules.AllowSexualContent,
		ContactRequested:  HasTag(tags, TagContactRequest),
		NoProfileImage:    !req.Counterpart.HasImage,
		IrritatedCustomer: HasTag(tags, TagBotAccusation) || irritationRe.MatchString(req.Message),
	}
}
