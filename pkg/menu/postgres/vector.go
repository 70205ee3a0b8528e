package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/menu"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/embeddings"
)

// Compile-time check that *VectorIndex satisfies menu.Retriever.
var _ menu.Retriever = (*VectorIndex)(nil)

// VectorIndex retrieves menu context by embedding the customer query
// and running an approximate nearest-neighbour search (cosine distance,
// HNSW) over the menu_chunks table.
//
// Obtain one via [Store.Retrieval]. All methods are safe for concurrent
// use.
type VectorIndex struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// chunkFor derives the menu_chunks row for one catalog entry: the key
// carries the routed table so ids from different tables cannot collide,
// and the content is the same stanza the generator prompt uses.
func chunkFor(e menu.Entry) (key, content string) {
	return string(menu.Route(e.ID)) + ":" + e.ID, menu.FormatEntries([]menu.Entry{e})
}

// IndexEntries (re)embeds the formatted description of every entry and
// upserts one chunk per catalog item. Run at menu load time, not per
// turn.
func (v *VectorIndex) IndexEntries(ctx context.Context, entries []menu.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	keys := make([]string, len(entries))
	texts := make([]string, len(entries))
	for i, e := range entries {
		keys[i], texts[i] = chunkFor(e)
	}
	vectors, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("menu vector index: embed batch: %w", err)
	}
	if len(vectors) != len(entries) {
		return fmt.Errorf("menu vector index: embedder returned %d vectors for %d chunks", len(vectors), len(entries))
	}

	const q = `
		INSERT INTO menu_chunks (id, content, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
		    content   = EXCLUDED.content,
		    embedding = EXCLUDED.embedding`

	for i := range entries {
		if _, err := v.pool.Exec(ctx, q, keys[i], texts[i], pgvector.NewVector(vectors[i])); err != nil {
			return fmt.Errorf("menu vector index: upsert %q: %w", keys[i], err)
		}
	}
	return nil
}

// RetrieveContext implements [menu.Retriever]. Results are ordered by
// ascending cosine distance (most similar first) and joined with blank
// lines, matching the formatting of [menu.FormatEntries].
func (v *VectorIndex) RetrieveContext(ctx context.Context, query string, topK int) (string, error) {
	if topK <= 0 {
		return "", nil
	}

	embedding, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("menu vector index: embed query: %w", err)
	}

	const q = `
		SELECT content
		FROM   menu_chunks
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := v.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return "", fmt.Errorf("menu vector index: search: %w", err)
	}

	contents, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var content string
		err := row.Scan(&content)
		return content, err
	})
	if err != nil {
		return "", fmt.Errorf("menu vector index: collect: %w", err)
	}

	return strings.Join(contents, "\n\n"), nil
}
