package examples

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chatwerk/replyengine/internal/pipeline"
	"github.com/chatwerk/replyengine/pkg/logging"
)

type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder produces fixed-length vectors via the embeddings API. It
// implements pipeline.Embedder.
type OpenAIEmbedder struct {
	client embeddingClient
	model  string
}

// NewOpenAIEmbedder wraps an embedding-capable client.
func NewOpenAIEmbedder(client embeddingClient, model string) *OpenAIEmbedder {
	if client == nil {
		panic("examples: embedding client cannot be nil")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{client: client, model: model}
}

// Embed returns the vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds several texts in one call, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.New("examples: embedding response size mismatch")
	}
	vectors := make([][]float32, len(texts))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

// batchEmbedder is what the index needs from an embedder.
type batchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index keeps embedded example records in memory and serves cosine
// similarity search. Rebuilds replace the whole record set in one swap so
// a partially indexed corpus is never visible.
type Index struct {
	embedder batchEmbedder
	logger   *logging.Logger

	mu      sync.RWMutex
	records []pipeline.ExampleRecord
	hash    string
}

// embedBatchSize bounds a single embeddings call.
const embedBatchSize = 64

// scoreChunkSize is the per-goroutine slice of candidates during search.
const scoreChunkSize = 256

// NewIndex creates an empty index.
func NewIndex(embedder batchEmbedder, logger *logging.Logger) *Index {
	if embedder == nil {
		panic("examples: embedder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Index{embedder: embedder, logger: logger}
}

// Reindex embeds the whole corpus and swaps the record set. When the
// corpus hash matches the indexed one the call is a no-op; incremental
// updates are deliberately unsupported to rule out stale embeddings.
func (idx *Index) Reindex(ctx context.Context, entries []CorpusEntry, corpusHash string) error {
	idx.mu.RLock()
	current := idx.hash
	idx.mu.RUnlock()
	if current != "" && current == corpusHash {
		idx.logger.Debug("corpus hash unchanged, skipping reindex", "hash", corpusHash)
		return nil
	}

	records := make([]pipeline.ExampleRecord, 0, len(entries))
	for start := 0; start < len(entries); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.InputText
		}
		vectors, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, e := range batch {
			records = append(records, pipeline.ExampleRecord{
				ID:        e.ID,
				InputText: e.InputText,
				ReplyText: e.ReplyText,
				Embedding: vectors[i],
				Tags:      e.Tags,
				SourceID:  e.SourceID,
			})
		}
	}

	idx.mu.Lock()
	idx.records = records
	idx.hash = corpusHash
	idx.mu.Unlock()

	idx.logger.Info("example index rebuilt", "records", len(records), "hash", corpusHash)
	return nil
}

// Size reports the number of indexed records.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// Sample returns the first n records in corpus order, the representative
// fallback when similarity search finds nothing.
func (idx *Index) Sample(n int) []pipeline.ExampleRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if n > len(idx.records) {
		n = len(idx.records)
	}
	out := make([]pipeline.ExampleRecord, n)
	copy(out, idx.records[:n])
	return out
}

// Search scores every candidate against the query embedding and returns
// the top-K above the similarity floor. Scoring fans out over goroutines;
// the record set is read-only for the duration.
func (idx *Index) Search(_ context.Context, embedding []float32, filter pipeline.SearchFilter) ([]pipeline.ExampleRecord, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := make([]pipeline.ExampleRecord, 0, len(idx.records))
	for _, rec := range idx.records {
		if filter.ExcludeSexual && pipeline.HasTag(rec.Tags, pipeline.TagSexualTopic) {
			continue
		}
		if len(filter.Tags) > 0 && !anyTagMatch(rec.Tags, filter.Tags) {
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(candidates))
	var wg sync.WaitGroup
	for start := 0; start < len(candidates); start += scoreChunkSize {
		end := start + scoreChunkSize
		if end > len(candidates) {
			end = len(candidates)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				scores[i] = cosineSimilarity(embedding, candidates[i].Embedding)
			}
		}(start, end)
	}
	wg.Wait()

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	topK := filter.TopK
	if topK <= 0 {
		topK = 4
	}
	out := make([]pipeline.ExampleRecord, 0, topK)
	for _, i := range order {
		if scores[i] < filter.MinSimilarity {
			break
		}
		out = append(out, candidates[i])
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func anyTagMatch(recordTags, filterTags []pipeline.SituationTag) bool {
	for _, t := range filterTags {
		if pipeline.HasTag(recordTags, t) {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
