package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists agents in PostgreSQL. Profiles are stored as JSONB
// so the behavioral schema can grow without migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initAgentSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initAgentSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			occupation TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			voice JSONB NOT NULL,
			cognitive JSONB NOT NULL,
			emotional JSONB NOT NULL,
			system_prompt TEXT NOT NULL,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_created ON agents (created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init agent schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, a Agent) error {
	voice, err := json.Marshal(a.Voice)
	if err != nil {
		return fmt.Errorf("encode voice profile: %w", err)
	}
	cognitive, err := json.Marshal(a.Cognitive)
	if err != nil {
		return fmt.Errorf("encode cognitive profile: %w", err)
	}
	emotional, err := json.Marshal(a.Emotional)
	if err != nil {
		return fmt.Errorf("encode emotional profile: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agents (id, name, occupation, location, voice, cognitive, emotional, system_prompt, archived, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.Name, a.Occupation, a.Location, voice, cognitive, emotional, a.SystemPrompt, a.Archived, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, occupation, location, voice, cognitive, emotional, system_prompt, archived, created_at
		 FROM agents WHERE id=$1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("query agent: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context, includeArchived bool) ([]Agent, error) {
	query := `SELECT id, name, occupation, location, voice, cognitive, emotional, system_prompt, archived, created_at
	 FROM agents ORDER BY created_at`
	if !includeArchived {
		query = `SELECT id, name, occupation, location, voice, cognitive, emotional, system_prompt, archived, created_at
	 FROM agents WHERE NOT archived ORDER BY created_at`
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Archive(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE agents SET archived=TRUE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("archive agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (Agent, error) {
	var (
		a         Agent
		voice     []byte
		cognitive []byte
		emotional []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Occupation, &a.Location, &voice, &cognitive, &emotional, &a.SystemPrompt, &a.Archived, &a.CreatedAt); err != nil {
		return Agent{}, err
	}
	if err := json.Unmarshal(voice, &a.Voice); err != nil {
		return Agent{}, fmt.Errorf("decode voice profile: %w", err)
	}
	if err := json.Unmarshal(cognitive, &a.Cognitive); err != nil {
		return Agent{}, fmt.Errorf("decode cognitive profile: %w", err)
	}
	if err := json.Unmarshal(emotional, &a.Emotional); err != nil {
		return Agent{}, fmt.Errorf("decode emotional profile: %w", err)
	}
	return a, nil
}
