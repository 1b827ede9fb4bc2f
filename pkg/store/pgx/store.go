// Package pgx implements store.Store on PostgreSQL through the queries in
// internal/db. Multi-row writes run in one transaction per call so a batch
// commits or fails as a unit.
package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/tagrel/internal/db"
	"github.com/OFFIS-RIT/tagrel/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/singleflight"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store is safe for concurrent use as long as conn is (a pool is).
type Store struct {
	conn      pgxIConn
	tagLookup singleflight.Group
	editChunk int
}

var _ store.Store = (*Store)(nil)

type StoreOption func(*Store)

// WithEditChunk bounds the number of posts locked per EditTags statement.
func WithEditChunk(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.editChunk = n
		}
	}
}

func New(conn pgxIConn, opts ...StoreOption) *Store {
	s := &Store{
		conn:      conn,
		editChunk: 500,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func (s *Store) queries() *db.Queries {
	return db.New(s.conn)
}

// inTx runs fn in a transaction and commits when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(qtx *db.Queries) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(db.New(s.conn).WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// notFound maps pgx.ErrNoRows to store.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgxv5.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes the LIKE wildcards of a tag name so it only matches
// itself as a substring.
func escapeLike(name string) string {
	return likeEscaper.Replace(name)
}
