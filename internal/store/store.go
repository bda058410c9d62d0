// Package store is the PostgreSQL side of the survey: the reconciler's read
// interface, the question catalog, the submission write path and the chat
// evidence query.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrSubmissionFinalized = errors.New("submission already finalized")
	ErrQuestionNotFound    = errors.New("question not found")
)

type dbQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}
