package postgres

import (
	"context"
	"errors"
	"time"

	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxTxAttempts = 3

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repositories struct {
	users         *usersRepo
	campaigns     *campaignsRepo
	contributions *contributionsRepo
	auditLogs     *auditLogsRepo
}

func newRepositories(q querier) Repositories {
	return Repositories{
		users:         &usersRepo{q},
		campaigns:     &campaignsRepo{q},
		contributions: &contributionsRepo{q},
		auditLogs:     &auditLogsRepo{q},
	}
}

func (r Repositories) Users() repo.Users                 { return r.users }
func (r Repositories) Campaigns() repo.Campaigns         { return r.campaigns }
func (r Repositories) Contributions() repo.Contributions { return r.contributions }
func (r Repositories) AuditLogs() repo.AuditLogs         { return r.auditLogs }

type Store struct {
	Repositories
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Repositories: newRepositories(pool), pool: pool}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// WithTx runs fn in a serializable transaction, retrying on serialization
// failures and deadlocks.
func (s *Store) WithTx(ctx context.Context, fn func(repo.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return err
}

func (s *Store) WithTxOnce(ctx context.Context, fn func(repo.Tx) error) error {
	return s.runTx(ctx, fn)
}

func (s *Store) runTx(ctx context.Context, fn func(repo.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(newRepositories(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isInvalidText catches malformed uuid lookups, which can never match a row.
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// mapErr translates driver errors into repository sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows), isInvalidText(err):
		return repo.ErrNotFound
	case isUniqueViolation(err):
		return errors.Join(repo.ErrDuplicate, err)
	}
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
