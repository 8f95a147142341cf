package convo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversations in PostgreSQL. Appends run in a
// transaction that row-locks the conversation, which gives the one logical
// writer per conversation the interface requires; the BIGSERIAL seq column
// is the arrival order.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initConvoSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initConvoSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			agent_ids TEXT[] NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			author TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			emotion TEXT NOT NULL DEFAULT '',
			delay_ms BIGINT NOT NULL DEFAULT 0,
			context_ref TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation_seq ON turns (conversation_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init conversation schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, agentIDs []string) (Conversation, error) {
	if len(agentIDs) == 0 {
		return Conversation{}, ErrNoParticipants
	}
	now := time.Now().UTC()
	c := Conversation{
		ID:             uuid.NewString(),
		AgentIDs:       append([]string(nil), agentIDs...),
		Status:         StatusOpen,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, agent_ids, status, created_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.AgentIDs, string(c.Status), c.CreatedAt, c.LastActivityAt,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, agent_ids, status, created_at, last_activity_at FROM conversations WHERE id=$1`, id,
	).Scan(&c.ID, &c.AgentIDs, &status, &c.CreatedAt, &c.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("query conversation: %w", err)
	}
	c.Status = Status(status)
	return c, nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, conversationID string, t Turn) (Turn, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Turn{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		status   string
		agentIDs []string
	)
	err = tx.QueryRow(ctx,
		`SELECT status, agent_ids FROM conversations WHERE id=$1 FOR UPDATE`, conversationID,
	).Scan(&status, &agentIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return Turn{}, ErrNotFound
	}
	if err != nil {
		return Turn{}, fmt.Errorf("lock conversation: %w", err)
	}
	if Status(status) != StatusOpen {
		return Turn{}, ErrConversationClosed
	}
	if t.Author == AuthorAgent {
		c := Conversation{AgentIDs: agentIDs}
		if !c.HasParticipant(t.AgentID) {
			return Turn{}, ErrNotParticipant
		}
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.ConversationID = conversationID

	err = tx.QueryRow(ctx,
		`INSERT INTO turns (id, conversation_id, author, agent_id, content, emotion, delay_ms, context_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING seq`,
		t.ID, t.ConversationID, string(t.Author), t.AgentID, t.Content, t.Emotion, t.DelayMS, t.ContextRef, t.CreatedAt,
	).Scan(&t.Seq)
	if err != nil {
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET last_activity_at=$1 WHERE id=$2`, t.CreatedAt, conversationID,
	); err != nil {
		return Turn{}, fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Turn{}, fmt.Errorf("commit append: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) RecentTurns(ctx context.Context, id string, limit int) ([]Turn, error) {
	if err := s.ensureExists(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT * FROM (
			SELECT seq, id, conversation_id, author, agent_id, content, emotion, delay_ms, context_ref, created_at
			FROM turns WHERE conversation_id=$1 ORDER BY seq DESC LIMIT $2
		 ) latest ORDER BY seq ASC`,
		id, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	return scanTurns(rows)
}

func (s *PostgresStore) Turns(ctx context.Context, id string, limit, offset int) ([]Turn, error) {
	if err := s.ensureExists(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx,
		`SELECT seq, id, conversation_id, author, agent_id, content, emotion, delay_ms, context_ref, created_at
		 FROM turns WHERE conversation_id=$1 ORDER BY seq ASC LIMIT $2 OFFSET $3`,
		id, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	return scanTurns(rows)
}

func (s *PostgresStore) AgentVisibleTurns(ctx context.Context, id, agentID string, limit int) ([]Turn, error) {
	if err := s.ensureExists(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT * FROM (
			SELECT seq, id, conversation_id, author, agent_id, content, emotion, delay_ms, context_ref, created_at
			FROM turns
			WHERE conversation_id=$1 AND (author <> 'agent' OR agent_id=$2)
			ORDER BY seq DESC LIMIT $3
		 ) latest ORDER BY seq ASC`,
		id, agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query visible turns: %w", err)
	}
	return scanTurns(rows)
}

func (s *PostgresStore) CloseConversation(ctx context.Context, id string) (Conversation, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET status='closed', last_activity_at=now() WHERE id=$1`, id,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("close conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Conversation{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) ensureExists(ctx context.Context, id string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM conversations WHERE id=$1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	return nil
}

func scanTurns(rows pgx.Rows) ([]Turn, error) {
	defer rows.Close()
	var out []Turn
	for rows.Next() {
		var (
			t      Turn
			author string
		)
		if err := rows.Scan(&t.Seq, &t.ID, &t.ConversationID, &author, &t.AgentID, &t.Content, &t.Emotion, &t.DelayMS, &t.ContextRef, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Author = AuthorKind(author)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return out, nil
}
