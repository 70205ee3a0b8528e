// Package postgres provides a PostgreSQL-backed menu store: the three
// catalog tables consulted by the id-routing rule plus a pgvector chunk
// table used for semantic menu retrieval.
//
// The pgvector extension must be available in the target database;
// [Migrate] installs it automatically via CREATE EXTENSION IF NOT
// EXISTS.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn, embedder.Dimensions())
//	if err != nil { … }
//
//	entry, err := st.Resolve(ctx, "1001")
//	ctxBlock, err := st.Retrieval(embedder).RetrieveContext(ctx, "大冰紅", 50)
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/menu"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/embeddings"
)

// Compile-time check that *Store satisfies menu.Resolver.
var _ menu.Resolver = (*Store)(nil)

const ddlCatalog = `
CREATE TABLE IF NOT EXISTS combo_menu (
    id     TEXT NOT NULL PRIMARY KEY,
    class  TEXT NOT NULL DEFAULT '',
    name   TEXT NOT NULL,
    price  INT  NOT NULL,
    recommended BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS drink_menu (
    id       TEXT NOT NULL PRIMARY KEY,
    name     TEXT NOT NULL,
    m_price  INT  NOT NULL,
    l_price  INT  NOT NULL,
    recommended BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS main_menu (
    id     TEXT NOT NULL PRIMARY KEY,
    class  TEXT NOT NULL DEFAULT '',
    name   TEXT NOT NULL,
    price  INT  NOT NULL,
    recommended BOOLEAN NOT NULL DEFAULT FALSE
);
`

// Store is the PostgreSQL menu store. It holds a single [pgxpool.Pool]
// and is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection, and runs [Migrate].
//
// embeddingDimensions must match the embedder used to index menu
// chunks. Changing it after the first migration requires a manual
// schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("menu store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("menu store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("menu store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("menu store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate applies the catalog and chunk DDL. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		embeddingDimensions = 1536
	}
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlCatalog); err != nil {
		return fmt.Errorf("catalog ddl: %w", err)
	}
	chunkDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS menu_chunks (
    id         TEXT         NOT NULL PRIMARY KEY,
    content    TEXT         NOT NULL,
    embedding  VECTOR(%d)   NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_menu_chunks_embedding
    ON menu_chunks USING hnsw (embedding vector_cosine_ops);`, embeddingDimensions)
	if _, err := pool.Exec(ctx, chunkDDL); err != nil {
		return fmt.Errorf("chunk ddl: %w", err)
	}
	return nil
}

// Resolve implements [menu.Resolver]. The item reference routes to
// exactly one catalog table via [menu.Route].
func (s *Store) Resolve(ctx context.Context, itemRef string) (menu.Entry, error) {
	switch menu.Route(itemRef) {
	case menu.TableDrink:
		return s.resolveDrink(ctx, itemRef)
	case menu.TableCombo:
		return s.resolveFixed(ctx, "combo_menu", itemRef)
	default:
		return s.resolveFixed(ctx, "main_menu", itemRef)
	}
}

func (s *Store) resolveFixed(ctx context.Context, table, itemRef string) (menu.Entry, error) {
	q := fmt.Sprintf(`SELECT id, class, name, price, recommended FROM %s WHERE id = $1`, table)
	var (
		e     menu.Entry
		price int
	)
	err := s.pool.QueryRow(ctx, q, itemRef).Scan(&e.ID, &e.Class, &e.Name, &price, &e.Recommended)
	if errors.Is(err, pgx.ErrNoRows) {
		return menu.Entry{}, menu.ErrUnknownItem
	}
	if err != nil {
		return menu.Entry{}, fmt.Errorf("menu store: resolve %q in %s: %w", itemRef, table, err)
	}
	e.Price = &price
	return e, nil
}

func (s *Store) resolveDrink(ctx context.Context, itemRef string) (menu.Entry, error) {
	const q = `SELECT id, name, m_price, l_price, recommended FROM drink_menu WHERE id = $1`
	var e menu.Entry
	err := s.pool.QueryRow(ctx, q, itemRef).Scan(&e.ID, &e.Name, &e.M, &e.L, &e.Recommended)
	if errors.Is(err, pgx.ErrNoRows) {
		return menu.Entry{}, menu.ErrUnknownItem
	}
	if err != nil {
		return menu.Entry{}, fmt.Errorf("menu store: resolve drink %q: %w", itemRef, err)
	}
	return e, nil
}

// AllEntries loads every catalog row across the three tables. Used to
// build the lexical fallback index and ASR keyword hints at startup.
func (s *Store) AllEntries(ctx context.Context) ([]menu.Entry, error) {
	var entries []menu.Entry

	for _, table := range []string{"combo_menu", "main_menu"} {
		q := fmt.Sprintf(`SELECT id, class, name, price, recommended FROM %s ORDER BY id`, table)
		rows, err := s.pool.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("menu store: list %s: %w", table, err)
		}
		fixed, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (menu.Entry, error) {
			var (
				e     menu.Entry
				price int
			)
			if err := row.Scan(&e.ID, &e.Class, &e.Name, &price, &e.Recommended); err != nil {
				return menu.Entry{}, err
			}
			e.Price = &price
			return e, nil
		})
		if err != nil {
			return nil, fmt.Errorf("menu store: collect %s: %w", table, err)
		}
		entries = append(entries, fixed...)
	}

	rows, err := s.pool.Query(ctx, `SELECT id, name, m_price, l_price, recommended FROM drink_menu ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("menu store: list drink_menu: %w", err)
	}
	drinks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (menu.Entry, error) {
		var e menu.Entry
		err := row.Scan(&e.ID, &e.Name, &e.M, &e.L, &e.Recommended)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("menu store: collect drink_menu: %w", err)
	}
	entries = append(entries, drinks...)

	return entries, nil
}

// Retrieval returns a [menu.Retriever] that embeds queries with
// embedder and searches the menu_chunks table by cosine distance.
func (s *Store) Retrieval(embedder embeddings.Provider) *VectorIndex {
	return &VectorIndex{pool: s.pool, embedder: embedder}
}

// Ping probes the database connection. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
