// Package repository provides data access for keyword research runs.
//
// # Overview
//
// RunRepository tracks a run from pending to a terminal state and
// KeywordStore keeps the candidates it produced. PgRunRepository implements
// both on PostgreSQL.
//
// # Error Handling
//
// Methods return errors from the domain package:
//
//   - domain.ErrNotFound: the run does not exist
//   - domain.ErrAlreadyExists: unique constraint violation
//   - domain.ErrInvalidInput: invalid parameters or a disallowed status transition
//
// # Transactions
//
// Constructors accept DBTX, so a repository can be bound to a pgx.Tx:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    repo := repository.NewPgRunRepository(tx)
//	    if err := repo.MarkCompleted(ctx, id, len(cands)); err != nil {
//	        return err
//	    }
//	    return repo.SaveKeywords(ctx, id, cands)
//	})
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/keyword-hunter/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// applyPaginationDefaults normalizes limit and offset values for filter queries.
// It clamps limit to [1, maxFilterLimit] and ensures offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
