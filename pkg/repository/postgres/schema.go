package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

// SchemaStatements returns the idempotent DDL for a vector column of the given dimension
func SchemaStatements(dimension int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS cases (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			UNIQUE (case_id, sequence)
		)`,
		// At most one active session per case
		`CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_active_per_case
			ON sessions (case_id) WHERE status = 'active'`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_blocks (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			case_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS memory_blocks_session_idx ON memory_blocks (session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS memory_blocks_case_idx ON memory_blocks (case_id, seq DESC)`,
		`CREATE INDEX IF NOT EXISTS memory_blocks_embedding_idx
			ON memory_blocks USING hnsw (embedding vector_cosine_ops)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			jurisdiction TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS rules_embedding_idx
			ON rules USING hnsw (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS agent_runs (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			case_id TEXT NOT NULL,
			invocation_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			reasoning TEXT[] NOT NULL DEFAULT '{}',
			result JSONB,
			error TEXT NOT NULL DEFAULT '',
			error_kind TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS agent_runs_case_idx ON agent_runs (case_id, created_at, seq)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			case_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			run_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`ALTER TABLE documents ADD COLUMN IF NOT EXISTS run_id TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS documents_case_idx ON documents (case_id, kind, seq)`,
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			case_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			context_used TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS conversation_messages_case_idx ON conversation_messages (case_id, seq)`,
	}
}

// Migrate creates the pgvector extension, tables and indexes. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return goerr.New("embedding dimension must be positive", goerr.V("dimension", dimension))
	}

	for _, stmt := range SchemaStatements(dimension) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return goerr.Wrap(err, "failed to apply schema statement", goerr.V("statement", stmt))
		}
	}
	return nil
}

// Migrate applies the schema on the repository's own pool
func (p *Postgres) Migrate(ctx context.Context, dimension int) error {
	return Migrate(ctx, p.pool, dimension)
}
