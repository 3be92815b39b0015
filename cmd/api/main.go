package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/chatwerk/replyengine/internal/api"
	"github.com/chatwerk/replyengine/internal/config"
	"github.com/chatwerk/replyengine/internal/dedup"
	"github.com/chatwerk/replyengine/internal/examples"
	"github.com/chatwerk/replyengine/internal/geo"
	"github.com/chatwerk/replyengine/internal/observability/metrics"
	"github.com/chatwerk/replyengine/internal/pipeline"
	"github.com/chatwerk/replyengine/internal/provider"
	"github.com/chatwerk/replyengine/internal/rules"
	"github.com/chatwerk/replyengine/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Provider clients. The LoRA adapter and Gemini are optional; at least
	// one generator-capable provider must exist.
	clients := make(map[string]pipeline.LLMClient)
	var prober api.HealthProber

	if cfg.OpenAIAPIKey != "" {
		openaiClient, err := provider.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			logger.Error("openai client init failed", "error", err.Error())
			os.Exit(1)
		}
		clients["openai"] = openaiClient
	}
	if cfg.LoraBaseURL != "" {
		loraClient, err := provider.NewLoraClient(cfg.LoraBaseURL, cfg.LoraModel)
		if err != nil {
			logger.Error("lora client init failed", "error", err.Error())
			os.Exit(1)
		}
		clients["lora"] = loraClient
		prober = loraClient
	}
	if cfg.GeminiAPIKey != "" {
		geminiClient, err := provider.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("gemini client init failed", "error", err.Error())
			os.Exit(1)
		}
		defer geminiClient.Close()
		clients["gemini"] = geminiClient
	}

	generator, ok := clients[cfg.PrimaryProvider]
	if !ok {
		logger.Error("primary provider not configured", "provider", cfg.PrimaryProvider)
		os.Exit(1)
	}
	// The classifier, planner and question repair ride on the primary
	// provider; correctors follow the configured order.
	var backends []pipeline.CorrectorBackend
	for _, name := range cfg.CorrectorOrder {
		backends = append(backends, pipeline.CorrectorBackend{Name: name, Client: clients[name]})
	}

	// Rule store with optional hot reload.
	ruleStore, err := rules.NewStore(cfg.RulesPath, logger)
	if err != nil {
		logger.Error("rule store init failed", "error", err.Error())
		os.Exit(1)
	}
	defer ruleStore.Close()
	if cfg.WatchRulesFile {
		if err := ruleStore.Watch(); err != nil {
			logger.Warn("rules file watch unavailable", "error", err.Error())
		}
	}

	// Geo lookup.
	geoLookup := geo.NewStaticLookup()
	if cfg.GeoTablePath != "" {
		geoLookup, err = geo.NewStaticLookupFromFile(cfg.GeoTablePath)
		if err != nil {
			logger.Error("geo table load failed", "error", err.Error())
			os.Exit(1)
		}
	}

	// Example retrieval: embeddings always ride on OpenAI; the corpus
	// comes from Postgres when configured.
	var (
		retriever *pipeline.ExampleRetriever
		syncer    *examples.Syncer
	)
	if cfg.OpenAIAPIKey != "" && cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres connect failed", "error", err.Error())
			os.Exit(1)
		}
		defer pool.Close()

		embedder := examples.NewOpenAIEmbedder(openai.NewClient(cfg.OpenAIAPIKey), cfg.EmbeddingModel)
		index := examples.NewIndex(embedder, logger)
		syncer = examples.NewSyncer(examples.NewRepository(pool), index)
		if err := syncer.Sync(ctx); err != nil {
			logger.Error("initial corpus index failed", "error", err.Error())
			os.Exit(1)
		}
		retriever = pipeline.NewExampleRetriever(embedder, index, pipeline.RetrieverConfig{
			TopK:          cfg.RetrieverTopK,
			MinSimilarity: cfg.MinSimilarity,
		}, logger)
	} else {
		logger.Warn("example retrieval disabled, missing OPENAI_API_KEY or DATABASE_URL")
	}

	// Duplicate log: shared via Redis when available.
	thresholds := dedup.Thresholds{
		WordOverlap: cfg.DuplicateWordOverlap,
		CharOverlap: cfg.DuplicateCharOverlap,
	}
	var duplicates pipeline.DuplicateLog
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		duplicates = dedup.NewRedisLog(redisClient, cfg.DuplicateLogSize, thresholds)
	} else {
		duplicates = dedup.NewMemoryLog(cfg.DuplicateLogSize, thresholds)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(nil)

	engine := pipeline.New(pipeline.Deps{
		Gate:       pipeline.NewSafetyGate(),
		Location:   pipeline.NewLocationResolver(geoLookup),
		Classifier: pipeline.NewSituationClassifier(logger, pipeline.NewLLMClassifier(generator, cfg.ClassifierTimeout, int32(cfg.ClassifierMaxTokens)), pipeline.NewKeywordClassifier()),
		Retriever:  retriever,
		Planner:    pipeline.NewPlanner(generator, cfg.PlannerTimeout, int32(cfg.PlannerMaxTokens), logger),
		Composer: pipeline.NewComposer(pipeline.ComposerConfig{
			TargetLengthMin: cfg.TargetLengthMin,
			TargetLengthMax: cfg.TargetLengthMax,
			HistoryWindow:   cfg.HistoryWindowMessages,
		}),
		Generator:  generator,
		Correctors: pipeline.NewCorrectorChain(backends, cfg.CorrectorAcceptRatio, cfg.CorrectorTimeout, int32(cfg.GeneratorMaxTokens), logger),
		Post: pipeline.NewPostProcessor(generator, pipeline.PostProcessorConfig{
			MaxLength:           cfg.MaxMessageLength,
			MinLengthAtBoundary: cfg.MinLengthAtBoundary,
			RepairTimeout:       cfg.RepairTimeout,
			RepairMaxTokens:     int32(cfg.RepairMaxTokens),
		}, logger),
		Duplicates: duplicates,
		Metrics:    pipelineMetrics,
		Logger:     logger,
	}, pipeline.Config{
		GeneratorTimeout:   cfg.GeneratorTimeout,
		GeneratorMaxTokens: int32(cfg.GeneratorMaxTokens),
		HistoryWindow:      cfg.HistoryWindowMessages,
	})

	var reindexer api.Reindexer
	if syncer != nil {
		reindexer = syncer
	}
	handler := api.NewHandler(engine, ruleStore, reindexer, prober, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("reply engine listening", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err.Error())
	}
}
