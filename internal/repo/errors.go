package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shaiso/Helmsman/internal/domain"
)

// uniqueViolation — SQLSTATE нарушения уникальности.
const uniqueViolation = "23505"

// querier — общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation сообщает, что запись нарушила уникальный индекс.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFound переводит pgx.ErrNoRows в domain.ErrNotFound.
func notFound(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", domain.ErrNotFound, what, id)
	}
	return fmt.Errorf("scan %s: %w", what, err)
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// deref возвращает значение или пустую строку для NULL.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
