// Package examples owns the retrieval corpus: loading historical
// (message, reply) pairs, embedding them and serving similarity search to
// the pipeline. Re-indexing is all-or-nothing, gated on a content hash of
// the underlying corpus.
package examples

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatwerk/replyengine/internal/pipeline"
)

// CorpusEntry is one raw training pair before embedding.
type CorpusEntry struct {
	ID        string
	InputText string
	ReplyText string
	Tags      []pipeline.SituationTag
	SourceID  string
}

type corpusQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository loads the corpus from Postgres.
type Repository struct {
	pool corpusQuerier
}

// NewRepository wraps a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("examples: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q corpusQuerier) *Repository {
	if q == nil {
		panic("examples: querier required")
	}
	return &Repository{pool: q}
}

// LoadCorpus reads all training pairs in stable order and returns them
// with the content hash that gates re-indexing.
func (r *Repository) LoadCorpus(ctx context.Context) ([]CorpusEntry, string, error) {
	query := `
		SELECT id, input_text, reply_text, tags, source_id
		FROM training_examples
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, "", fmt.Errorf("examples: load corpus: %w", err)
	}
	defer rows.Close()

	var entries []CorpusEntry
	for rows.Next() {
		var (
			entry CorpusEntry
			tags  []string
		)
		if err := rows.Scan(&entry.ID, &entry.InputText, &entry.ReplyText, &tags, &entry.SourceID); err != nil {
			return nil, "", fmt.Errorf("examples: scan corpus row: %w", err)
		}
		for _, t := range tags {
			entry.Tags = append(entry.Tags, pipeline.SituationTag(t))
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("examples: iterate corpus: %w", err)
	}

	return entries, HashCorpus(entries), nil
}

// HashCorpus computes the content hash used to detect corpus changes.
func HashCorpus(entries []CorpusEntry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.ID))
		h.Write([]byte{0})
		h.Write([]byte(e.InputText))
		h.Write([]byte{0})
		h.Write([]byte(e.ReplyText))
		h.Write([]byte{0})
		tagNames := make([]string, 0, len(e.Tags))
		for _, t := range e.Tags {
			tagNames = append(tagNames, string(t))
		}
		h.Write([]byte(strings.Join(tagNames, ",")))
		h.Write([]byte{0})
		h.Write([]byte(e.SourceID))
		h.Write([]byte{0xff})
	}
	return hex.EncodeToString(h.Sum(nil))
}
