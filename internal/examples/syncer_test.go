package examples

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	entries []CorpusEntry
	err     error
}

func (f *fakeLoader) LoadCorpus(_ context.Context) ([]CorpusEntry, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.entries, HashCorpus(f.entries), nil
}

func TestSyncRebuildsIndex(t *testing.T) {
	idx := NewIndex(testEmbedder(), nil)
	syncer := NewSyncer(&fakeLoader{entries: testCorpus()}, idx)

	require.NoError(t, syncer.Sync(context.Background()))
	assert.Equal(t, 3, idx.Size())
}

func TestSyncPropagatesLoadError(t *testing.T) {
	idx := NewIndex(testEmbedder(), nil)
	syncer := NewSyncer(&fakeLoader{err: errors.New("db down")}, idx)

	assert.Error(t, syncer.Sync(context.Background()))
	assert.Zero(t, idx.Size())
}
