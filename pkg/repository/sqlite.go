package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

// SQLite implements Repository on an embedded SQLite database. Timestamps are
// stored as unix nanoseconds so that ordering stays exact.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path with WAL journaling
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("path", path))
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite", goerr.V("path", path))
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to ping sqlite", goerr.V("path", path))
	}

	if err := initSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '{}',
			importance INTEGER NOT NULL CHECK (importance BETWEEN 1 AND 5),
			emotion_context TEXT NOT NULL DEFAULT '',
			related_entities TEXT NOT NULL DEFAULT '[]',
			expires_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_records_recall ON memory_records (user_id, importance DESC, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return goerr.Wrap(err, "failed to init schema", goerr.V("stmt", stmt))
		}
	}
	return nil
}

func (r *SQLite) PutMemory(ctx context.Context, memory *model.MemoryRecord) error {
	if memory == nil {
		return goerr.New("memory is nil")
	}
	prepareRecord(memory)

	content := memory.Content
	if content == nil {
		content = map[string]any{}
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal memory content", goerr.V("memory_id", memory.ID))
	}

	entities := memory.RelatedEntities
	if entities == nil {
		entities = []string{}
	}
	entitiesJSON, err := json.Marshal(entities)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal related entities", goerr.V("memory_id", memory.ID))
	}

	var expiresAt sql.NullInt64
	if memory.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: memory.ExpiresAt.UnixNano(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO memory_records (`+memoryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(memory.ID),
		string(memory.UserID),
		string(memory.Type),
		string(contentJSON),
		int(memory.Importance),
		string(memory.EmotionContext),
		string(entitiesJSON),
		expiresAt,
		memory.CreatedAt.UnixNano(),
		memory.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert memory", goerr.V("memory_id", memory.ID))
	}
	return nil
}

func (r *SQLite) GetMemory(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memory_records WHERE id = ?`, string(id))
	record, err := scanSQLiteMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrMemoryNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("memory_id", id))
	}
	return record, nil
}

func (r *SQLite) ListMemories(ctx context.Context, query *MemoryQuery) ([]*model.MemoryRecord, error) {
	if query == nil || query.UserID == "" {
		return nil, goerr.New("user ID is required for listing memories")
	}

	conds := []string{"user_id = ?"}
	args := []any{string(query.UserID)}
	if query.Type != "" {
		conds = append(conds, "memory_type = ?")
		args = append(args, string(query.Type))
	}
	if query.Entity != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(memory_records.related_entities) WHERE json_each.value = ?)")
		args = append(args, query.Entity)
	}
	if !query.ActiveAt.IsZero() {
		conds = append(conds, "(expires_at IS NULL OR expires_at >= ?)")
		args = append(args, query.ActiveAt.UnixNano())
	}

	stmt := `SELECT ` + memoryColumns + ` FROM memory_records WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY importance DESC, created_at DESC`
	if query.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query memories", goerr.V("user_id", query.UserID))
	}
	defer rows.Close()

	result := make([]*model.MemoryRecord, 0)
	for rows.Next() {
		record, err := scanSQLiteMemory(rows)
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

func (r *SQLite) DeleteMemory(ctx context.Context, userID model.UserID, id model.MemoryID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memory_records WHERE id = ? AND user_id = ?`, string(id), string(userID))
	if err != nil {
		return false, goerr.Wrap(err, "failed to delete memory",
			goerr.V("memory_id", id),
			goerr.V("user_id", userID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "failed to get affected rows")
	}
	return n > 0, nil
}

func (r *SQLite) DeleteMemoriesByUser(ctx context.Context, userID model.UserID) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memory_records WHERE user_id = ?`, string(userID))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete memories", goerr.V("user_id", userID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get affected rows")
	}
	return int(n), nil
}

func (r *SQLite) Close() error {
	if err := r.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close sqlite")
	}
	return nil
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMemory(row sqliteScanner) (*model.MemoryRecord, error) {
	var (
		id, userID, memoryType, emotion string
		contentJSON, entitiesJSON       string
		importance                      int
		expiresAt                       sql.NullInt64
		createdAt, updatedAt            int64
	)
	if err := row.Scan(
		&id,
		&userID,
		&memoryType,
		&contentJSON,
		&importance,
		&emotion,
		&entitiesJSON,
		&expiresAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	m := &model.MemoryRecord{
		ID:             model.MemoryID(id),
		UserID:         model.UserID(userID),
		Type:           model.MemoryType(memoryType),
		Importance:     model.Importance(importance),
		EmotionContext: model.Emotion(emotion),
		CreatedAt:      time.Unix(0, createdAt).UTC(),
		UpdatedAt:      time.Unix(0, updatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(contentJSON), &m.Content); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal memory content", goerr.V("memory_id", id))
	}
	if err := json.Unmarshal([]byte(entitiesJSON), &m.RelatedEntities); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal related entities", goerr.V("memory_id", id))
	}
	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64).UTC()
		m.ExpiresAt = &t
	}
	return m, nil
}
