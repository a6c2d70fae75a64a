package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/earshot/pkg/memory"
)

// Compile-time interface assertion.
var _ memory.Store = (*Store)(nil)

// Store is the PostgreSQL-backed conversation memory store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] to ensure
// the schema exists.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	if embeddingDimensions <= 0 {
		return nil, fmt.Errorf("postgres store: embedding dimensions %d must be positive", embeddingDimensions)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies that the database is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// AddExchange implements memory.Store.
func (s *Store) AddExchange(ctx context.Context, ex memory.Exchange) error {
	const q = `
		INSERT INTO exchanges
		    (id, user_id, session_id, transcript, response, tool_name, embedding, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
		    user_id    = EXCLUDED.user_id,
		    session_id = EXCLUDED.session_id,
		    transcript = EXCLUDED.transcript,
		    response   = EXCLUDED.response,
		    tool_name  = EXCLUDED.tool_name,
		    embedding  = EXCLUDED.embedding,
		    timestamp  = EXCLUDED.timestamp`

	_, err := s.pool.Exec(ctx, q,
		ex.ID,
		ex.UserID,
		ex.SessionID,
		ex.Transcript,
		ex.Response,
		ex.ToolName,
		embeddingParam(ex.Embedding),
		ex.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres store: add exchange: %w", err)
	}
	return nil
}

// Recent implements memory.Store. Exchanges are returned newest first.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]memory.Exchange, error) {
	const q = `
		SELECT id, user_id, session_id, transcript, response, tool_name, embedding, timestamp
		FROM   exchanges
		WHERE  session_id = $1
		ORDER  BY timestamp DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent: %w", err)
	}

	exchanges, err := pgx.CollectRows(rows, scanExchange)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if exchanges == nil {
		exchanges = []memory.Exchange{}
	}
	return exchanges, nil
}

// SearchSimilar implements memory.Store using pgvector cosine distance.
func (s *Store) SearchSimilar(ctx context.Context, userID string, embedding []float32, topK int) ([]memory.SearchResult, error) {
	const q = `
		SELECT id, user_id, session_id, transcript, response, tool_name, embedding, timestamp,
		       embedding <=> $2 AS distance
		FROM   exchanges
		WHERE  user_id = $1 AND embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, userID, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search similar: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.SearchResult, error) {
		var (
			sr  memory.SearchResult
			vec pgvector.Vector
		)
		if err := row.Scan(
			&sr.Exchange.ID,
			&sr.Exchange.UserID,
			&sr.Exchange.SessionID,
			&sr.Exchange.Transcript,
			&sr.Exchange.Response,
			&sr.Exchange.ToolName,
			&vec,
			&sr.Exchange.Timestamp,
			&sr.Distance,
		); err != nil {
			return memory.SearchResult{}, err
		}
		sr.Exchange.Embedding = vec.Slice()
		return sr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.SearchResult{}
	}
	return results, nil
}

// ClearSession implements memory.Store.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM exchanges WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("postgres store: clear session: %w", err)
	}
	return nil
}

// scanExchange scans one pgx row into an Exchange. The embedding column is
// nullable; exchanges stored without an embedder scan back with a nil slice.
func scanExchange(row pgx.CollectableRow) (memory.Exchange, error) {
	var (
		ex  memory.Exchange
		vec *pgvector.Vector
	)
	if err := row.Scan(
		&ex.ID,
		&ex.UserID,
		&ex.SessionID,
		&ex.Transcript,
		&ex.Response,
		&ex.ToolName,
		&vec,
		&ex.Timestamp,
	); err != nil {
		return memory.Exchange{}, err
	}
	if vec != nil {
		ex.Embedding = vec.Slice()
	}
	return ex, nil
}

// embeddingParam maps an embedding slice to its SQL value. pgvector rejects
// zero-dimension vectors, so an absent embedding is stored as NULL.
func embeddingParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
