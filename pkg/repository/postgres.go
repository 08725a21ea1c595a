package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

// Postgres implements Repository on PostgreSQL
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and makes sure the schema exists
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect postgres")
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			content JSONB NOT NULL DEFAULT '{}'::jsonb,
			importance SMALLINT NOT NULL CHECK (importance BETWEEN 1 AND 5),
			emotion_context TEXT NOT NULL DEFAULT '',
			related_entities TEXT[] NOT NULL DEFAULT '{}',
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_records_recall ON memory_records (user_id, importance DESC, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_records_entities ON memory_records USING GIN (related_entities);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return goerr.Wrap(err, "failed to init schema", goerr.V("stmt", stmt))
		}
	}
	return nil
}

const memoryColumns = `id, user_id, memory_type, content, importance, emotion_context, related_entities, expires_at, created_at, updated_at`

func (r *Postgres) PutMemory(ctx context.Context, memory *model.MemoryRecord) error {
	if memory == nil {
		return goerr.New("memory is nil")
	}
	prepareRecord(memory)

	content := memory.Content
	if content == nil {
		content = map[string]any{}
	}
	entities := memory.RelatedEntities
	if entities == nil {
		entities = []string{}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO memory_records (`+memoryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(memory.ID),
		string(memory.UserID),
		string(memory.Type),
		content,
		int(memory.Importance),
		string(memory.EmotionContext),
		entities,
		memory.ExpiresAt,
		memory.CreatedAt,
		memory.UpdatedAt,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert memory", goerr.V("memory_id", memory.ID))
	}
	return nil
}

func (r *Postgres) GetMemory(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memory_records WHERE id=$1`, string(id))
	record, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrMemoryNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("memory_id", id))
	}
	return record, nil
}

func (r *Postgres) ListMemories(ctx context.Context, query *MemoryQuery) ([]*model.MemoryRecord, error) {
	if query == nil || query.UserID == "" {
		return nil, goerr.New("user ID is required for listing memories")
	}

	conds := []string{"user_id = $1"}
	args := []any{string(query.UserID)}
	if query.Type != "" {
		args = append(args, string(query.Type))
		conds = append(conds, fmt.Sprintf("memory_type = $%d", len(args)))
	}
	if query.Entity != "" {
		args = append(args, query.Entity)
		conds = append(conds, fmt.Sprintf("$%d = ANY(related_entities)", len(args)))
	}
	if !query.ActiveAt.IsZero() {
		args = append(args, query.ActiveAt)
		conds = append(conds, fmt.Sprintf("(expires_at IS NULL OR expires_at >= $%d)", len(args)))
	}

	sql := `SELECT ` + memoryColumns + ` FROM memory_records WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY importance DESC, created_at DESC`
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query memories", goerr.V("user_id", query.UserID))
	}
	defer rows.Close()

	result := make([]*model.MemoryRecord, 0)
	for rows.Next() {
		record, err := scanMemory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory row")
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate memory rows")
	}

	return result, nil
}

func (r *Postgres) DeleteMemory(ctx context.Context, userID model.UserID, id model.MemoryID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM memory_records WHERE id=$1 AND user_id=$2`, string(id), string(userID))
	if err != nil {
		return false, goerr.Wrap(err, "failed to delete memory",
			goerr.V("memory_id", id),
			goerr.V("user_id", userID))
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Postgres) DeleteMemoriesByUser(ctx context.Context, userID model.UserID) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM memory_records WHERE user_id=$1`, string(userID))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete memories", goerr.V("user_id", userID))
	}
	return int(tag.RowsAffected()), nil
}

func (r *Postgres) Close() error {
	r.pool.Close()
	return nil
}

func scanMemory(row pgx.Row) (*model.MemoryRecord, error) {
	var (
		id, userID, memoryType, emotion string
		importance                      int16
		m                               model.MemoryRecord
	)
	if err := row.Scan(
		&id,
		&userID,
		&memoryType,
		&m.Content,
		&importance,
		&emotion,
		&m.RelatedEntities,
		&m.ExpiresAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m.ID = model.MemoryID(id)
	m.UserID = model.UserID(userID)
	m.Type = model.MemoryType(memoryType)
	m.Importance = model.Importance(importance)
	m.EmotionContext = model.Emotion(emotion)
	return &m, nil
}
