package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func rec(id string) ExampleRecord {
	return ExampleRecord{ID: id, InputText: "in-" + id, ReplyText: "out-" + id}
}

func TestRetrieveFilteredHit(t *testing.T) {
	store := &fakeStore{
		size:     10,
		filtered: []ExampleRecord{rec("a"), rec("b")},
		sample:   []ExampleRecord{rec("s")},
	}
	retriever := NewExampleRetriever(&fakeEmbedder{vector: []float32{1, 0}}, store, RetrieverConfig{TopK: 4}, nil)

	records := retriever.Retrieve(context.Background(), "Wollen wir uns treffen?", []SituationTag{TagMeetingRequest}, true)

	assert.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
}

func TestRetrieveFallsBackToUnfiltered(t *testing.T) {
	store := &fakeStore{
		size:       10,
		filtered:   nil,
		unfiltered: []ExampleRecord{rec("u")},
		sample:     []ExampleRecord{rec("s")},
	}
	retriever := NewExampleRetriever(&fakeEmbedder{vector: []float32{1, 0}}, store, RetrieverConfig{TopK: 4}, nil)

	records := retriever.Retrieve(context.Background(), "msg", []SituationTag{TagMeetingRequest}, false)

	assert.Len(t, records, 1)
	assert.Equal(t, "u", records[0].ID)
}

func TestRetrieveNeverEmptyOnNonEmptyStore(t *testing.T) {
	store := &fakeStore{
		size:   3,
		sample: []ExampleRecord{rec("s1"), rec("s2")},
	}
	retriever := NewExampleRetriever(&fakeEmbedder{vector: []float32{1, 0}}, store, RetrieverConfig{TopK: 4}, nil)

	records := retriever.Retrieve(context.Background(), "msg", []SituationTag{TagMeetingRequest}, false)

	assert.NotEmpty(t, records, "non-empty store must never yield an empty result")
}

func TestRetrieveEmptyStore(t *testing.T) {
	retriever := NewExampleRetriever(&fakeEmbedder{vector: []float32{1, 0}}, &fakeStore{size: 0}, RetrieverConfig{TopK: 4}, nil)
	assert.Empty(t, retriever.Retrieve(context.Background(), "msg", nil, false))
}

func TestRetrieveEmbeddingFailureUsesSample(t *testing.T) {
	store := &fakeStore{size: 5, sample: []ExampleRecord{rec("s")}}
	retriever := NewExampleRetriever(&fakeEmbedder{err: errors.New("embed down")}, store, RetrieverConfig{TopK: 4}, nil)

	records := retriever.Retrieve(context.Background(), "msg", nil, false)

	assert.Len(t, records, 1)
	assert.Equal(t, "s", records[0].ID)
}

func TestRetrieveSearchErrorUsesSample(t *testing.T) {
	store := &fakeStore{size: 5, searchErr: errors.New("boom"), sample: []ExampleRecord{rec("s")}}
	retriever := NewExampleRetriever(&fakeEmbedder{vector: []float32{1}}, store, RetrieverConfig{TopK: 4}, nil)

	records := retriever.Retrieve(context.Background(), "msg", nil, false)
	assert.Len(t, records, 1)
}

func TestBuildQueryTagPrefix(t *testing.T) {
	assert.Equal(t, "hallo", buildQuery("hallo", nil))
	assert.Equal(t, "meeting-request sexual-topic: hallo",
		buildQuery("hallo", []SituationTag{TagMeetingRequest, TagSexualTopic}))
}
