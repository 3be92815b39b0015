package pipeline

import (
	"context"
	"strings"

	"github.com/chatwerk/replyengine/pkg/logging"
)

// SearchFilter narrows a similarity search over the example store.
type SearchFilter struct {
	Tags          []SituationTag
	ExcludeSexual bool
	TopK          int
	MinSimilarity float64
}

// ExampleSearcher is the store contract consumed by the retriever. The
// corpus-hash check and full-rebuild-on-mismatch policy live behind it.
type ExampleSearcher interface {
	Search(ctx context.Context, embedding []float32, filter SearchFilter) ([]ExampleRecord, error)
	Sample(n int) []ExampleRecord
	Size() int
}

// Embedder turns query text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrieverConfig carries the tuned retrieval thresholds.
type RetrieverConfig struct {
	TopK          int
	MinSimilarity float64
}

// ExampleRetriever embeds the message and performs cosine search over the
// indexed historical (message, reply) pairs.
type ExampleRetriever struct {
	embedder Embedder
	store    ExampleSearcher
	cfg      RetrieverConfig
	logger   *logging.Logger
}

// NewExampleRetriever wires the retriever.
func NewExampleRetriever(embedder Embedder, store ExampleSearcher, cfg RetrieverConfig, logger *logging.Logger) *ExampleRetriever {
	if embedder == nil {
		panic("pipeline: embedder cannot be nil")
	}
	if store == nil {
		panic("pipeline: example store cannot be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ExampleRetriever{embedder: embedder, store: store, cfg: cfg, logger: logger}
}

// Retrieve returns the top-K examples above the similarity floor. A
// tag-filtered search that yields nothing retries unfiltered; when even
// that produces nothing the store's representative sample is used, so a
// non-empty store never yields an empty result.
func (r *ExampleRetriever) Retrieve(ctx context.Context, message string, tags []SituationTag, excludeSexual bool) []ExampleRecord {
	if r.store.Size() == 0 {
		return nil
	}

	embedding, err := r.embedder.Embed(ctx, buildQuery(message, tags))
	if err != nil {
		r.logger.Warn("example retrieval embedding failed, using sample", "error", err.Error())
		return r.store.Sample(r.cfg.TopK)
	}

	filter := SearchFilter{
		Tags:          tags,
		ExcludeSexual: excludeSexual,
		TopK:          r.cfg.TopK,
		MinSimilarity: r.cfg.MinSimilarity,
	}

	records, err := r.store.Search(ctx, embedding, filter)
	if err != nil {
		r.logger.Warn("example search failed, using sample", "error", err.Error())
		return r.store.Sample(r.cfg.TopK)
	}
	if len(records) > 0 {
		return records
	}

	if len(filter.Tags) > 0 {
		filter.Tags = nil
		records, err = r.store.Search(ctx, embedding, filter)
		if err == nil && len(records) > 0 {
			return records
		}
	}

	return r.store.Sample(r.cfg.TopK)
}

// buildQuery prefixes the message with its situation tags to bias
// retrieval toward examples from the same situation.
func buildQuery(message string, tags []SituationTag) string {
	if len(tags) == 0 {
		return message
	}
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, " ") + ": " + message
}
