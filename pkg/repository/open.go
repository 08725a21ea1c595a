package repository

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Open creates a Repository from a DSN. The scheme selects the backend:
//
//	""                           in-process memory
//	postgres://, postgresql://   PostgreSQL
//	sqlite://<path>, file:<path> SQLite
//	firestore://<project>[/<database>]
func Open(ctx context.Context, dsn string) (Repository, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "" || dsn == "memory://":
		return NewMemory(), nil

	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(ctx, dsn)

	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))

	case strings.HasPrefix(dsn, "file:"):
		return NewSQLite(ctx, strings.TrimPrefix(dsn, "file:"))

	case strings.HasPrefix(dsn, "firestore://"):
		project, database, _ := strings.Cut(strings.TrimPrefix(dsn, "firestore://"), "/")
		return NewFirestore(ctx, project, database)

	default:
		return nil, goerr.New("unsupported store DSN", goerr.V("dsn", redactDSN(dsn)))
	}
}

// redactDSN drops credentials from a DSN before it is logged or wrapped
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
