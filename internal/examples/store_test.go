package examples

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwerk/replyengine/internal/pipeline"
)

// fakeBatchEmbedder maps each text to a scripted vector and counts calls.
type fakeBatchEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeBatchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func testCorpus() []CorpusEntry {
	return []CorpusEntry{
		{ID: "1", InputText: "wollen wir uns treffen", ReplyText: "lieber erst schreiben", Tags: []pipeline.SituationTag{pipeline.TagMeetingRequest}},
		{ID: "2", InputText: "bist du ein bot", ReplyText: "ich bin echt", Tags: []pipeline.SituationTag{pipeline.TagBotAccusation}},
		{ID: "3", InputText: "lust auf was heißes", ReplyText: "wer weiß", Tags: []pipeline.SituationTag{pipeline.TagSexualTopic}},
	}
}

func testEmbedder() *fakeBatchEmbedder {
	return &fakeBatchEmbedder{vectors: map[string][]float32{
		"wollen wir uns treffen": {1, 0, 0},
		"bist du ein bot":        {0, 1, 0},
		"lust auf was heißes":    {0.9, 0.1, 0},
	}}
}

func TestReindexAndSearch(t *testing.T) {
	embedder := testEmbedder()
	idx := NewIndex(embedder, nil)
	corpus := testCorpus()

	require.NoError(t, idx.Reindex(context.Background(), corpus, HashCorpus(corpus)))
	assert.Equal(t, 3, idx.Size())

	got, err := idx.Search(context.Background(), []float32{1, 0, 0}, pipeline.SearchFilter{TopK: 1, MinSimilarity: 0.5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestReindexSkipsUnchangedHash(t *testing.T) {
	embedder := testEmbedder()
	idx := NewIndex(embedder, nil)
	corpus := testCorpus()
	hash := HashCorpus(corpus)

	require.NoError(t, idx.Reindex(context.Background(), corpus, hash))
	require.NoError(t, idx.Reindex(context.Background(), corpus, hash))

	assert.Equal(t, 1, embedder.calls, "identical corpus hash must not re-embed")
}

func TestReindexRebuildsOnChangedHash(t *testing.T) {
	embedder := testEmbedder()
	idx := NewIndex(embedder, nil)
	corpus := testCorpus()

	require.NoError(t, idx.Reindex(context.Background(), corpus, HashCorpus(corpus)))

	grown := append(testCorpus(), CorpusEntry{ID: "4", InputText: "neu", ReplyText: "auch neu"})
	require.NoError(t, idx.Reindex(context.Background(), grown, HashCorpus(grown)))

	assert.Equal(t, 4, idx.Size())
	assert.Equal(t, 2, embedder.calls)
}

func TestReindexEmbedFailureKeepsOldRecords(t *testing.T) {
	embedder := testEmbedder()
	idx := NewIndex(embedder, nil)
	corpus := testCorpus()
	require.NoError(t, idx.Reindex(context.Background(), corpus, HashCorpus(corpus)))

	embedder.err = errors.New("embeddings down")
	grown := append(testCorpus(), CorpusEntry{ID: "4", InputText: "neu", ReplyText: "auch neu"})
	err := idx.Reindex(context.Background(), grown, HashCorpus(grown))

	require.Error(t, err)
	assert.Equal(t, 3, idx.Size(), "a failed rebuild must not leave a partial index")
}

func TestSearchExcludesSexualRecords(t *testing.T) {
	idx := NewIndex(testEmbedder(), nil)
	corpus := testCorpus()
	require.NoError(t, idx.Reindex(context.Background(), corpus, HashCorpus(corpus)))

	got, err := idx.Search(context.Background(), []float32{1, 0, 0}, pipeline.SearchFilter{TopK: 3, ExcludeSexual: true})
	require.NoError(t, err)
	for _, rec := range got {
		assert.False(t, pipeline.HasTag(rec.Tags, pipeline.TagSexualTopic))
	}
	assert.Len(t, got, 2)
}

func TestSearchTagFilter(t *testing.T) {
	idx := NewIndex(testEmbedder(), nil)
	corpus := testCorpus()
	require.NoError(t, idx.Reindex(context.Background(), corpus, HashCorpus(corpus)))

	got, err := idx.Search(context.Background(), []float32{0, 1, 0}, pipeline.SearchFilter{
		TopK: 3,
		Tags: []pipeline.SituationTag{pipeline.TagBotAccusation},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestSearchRespectsMinSimilarity(t *testing.T) {
	idx := NewIndex(testEmbedder(), nil)
	corpus := testCorpus()
	require.NoError(t, idx.Reindex(context.Background(), corpus, HashCorpus(corpus)))

	// Orthogonal query: nothing clears a 0.9 floor.
	got, err := idx.Search(context.Background(), []float32{0, 0, 1}, pipeline.SearchFilter{TopK: 3, MinSimilarity: 0.9})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSample(t *testing.T) {
	idx := NewIndex(testEmbedder(), nil)
	corpus := testCorpus()
	require.NoError(t, idx.Reindex(context.Background(), corpus, HashCorpus(corpus)))

	sample := idx.Sample(2)
	require.Len(t, sample, 2)
	assert.Equal(t, "1", sample[0].ID)
	assert.Equal(t, "2", sample[1].ID)

	assert.Len(t, idx.Sample(10), 3)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, cosineSimilarity(nil, nil))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestHashCorpusSensitivity(t *testing.T) {
	a := testCorpus()
	b := testCorpus()
	assert.Equal(t, HashCorpus(a), HashCorpus(b))

	b[1].ReplyText = "anders"
	assert.NotEqual(t, HashCorpus(a), HashCorpus(b))
}
