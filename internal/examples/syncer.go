package examples

import "context"

// corpusLoader is the repository surface the syncer needs.
type corpusLoader interface {
	LoadCorpus(ctx context.Context) ([]CorpusEntry, string, error)
}

// Syncer ties the corpus repository to the index: load, hash, rebuild
// when the hash moved.
type Syncer struct {
	loader corpusLoader
	index  *Index
}

// NewSyncer wires a syncer.
func NewSyncer(loader corpusLoader, index *Index) *Syncer {
	if loader == nil {
		panic("examples: corpus loader required")
	}
	if index == nil {
		panic("examples: index required")
	}
	return &Syncer{loader: loader, index: index}
}

// Sync loads the corpus and rebuilds the index when its content hash
// differs from the indexed one.
func (s *Syncer) Sync(ctx context.Context) error {
	entries, hash, err := s.loader.LoadCorpus(ctx)
	if err != nil {
		return err
	}
	return s.index.Reindex(ctx, entries, hash)
}
