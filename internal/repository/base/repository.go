package base

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier общий интерфейс пула и транзакции
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository базовый репозиторий с общими методами
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый базовый репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool возвращает пул соединений
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// QueryRow выполняет запрос и возвращает одну строку
func (r *Repository) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return r.pool.QueryRow(ctx, query, args...)
}

// Query выполняет запрос и возвращает множество строк
func (r *Repository) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return r.pool.Query(ctx, query, args...)
}

// ExecAffected выполняет команду и возвращает количество затронутых строк
func (r *Repository) ExecAffected(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InTx выполняет fn в транзакции. Commit только если fn вернула nil.
func (r *Repository) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation проверяет нарушение уникального индекса
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
