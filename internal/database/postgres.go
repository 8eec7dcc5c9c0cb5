package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	invalidTextRepr     = "22P02"
)

type PgCrabRepository struct {
	conn *sql.DB
}

func NewPgCrabRepository(dsn string) (*PgCrabRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgCrabRepository{conn: db}, nil
}

// DB exposes the underlying pool for schema migrations.
func (db *PgCrabRepository) DB() *sql.DB {
	return db.conn
}

func (db *PgCrabRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgCrabRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == uniqueViolation
}

// isMissingReference reports an id that cannot name an existing row: either
// it is not a valid uuid or a foreign key points nowhere.
func isMissingReference(err error) bool {
	code := pqCode(err)
	return code == invalidTextRepr || code == foreignKeyViolation
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) || isMissingReference(err) {
		return ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
