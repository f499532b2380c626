package expense

import (
	"context"
	"database/sql"

	"github.com/zombor/trip-expenses/internal/database"
)

// Conn hands out the shared database handle. *database.Manager satisfies it.
type Conn interface {
	Get() (*sql.DB, error)
}

// Store groups the repositories and queries that share one connection.
type Store struct {
	Trips      *TripRepository
	Expenses   *ExpenseRepository
	Categories *CategoryRepository
	Rules      *RuleRepository
	Queue      *QueueRepository
	Settings   *SettingsRepository
	Stats      *Queries
}

// NewStore creates every repository on top of conn
func NewStore(conn Conn) *Store {
	return &Store{
		Trips:      NewTripRepository(conn),
		Expenses:   NewExpenseRepository(conn),
		Categories: NewCategoryRepository(conn),
		Rules:      NewRuleRepository(conn),
		Queue:      NewQueueRepository(conn),
		Settings:   NewSettingsRepository(conn),
		Stats:      NewQueries(conn),
	}
}

// exec runs a mutating statement and wraps any storage error with entity and action.
func exec(ctx context.Context, conn Conn, entity, action, query string, args ...any) (sql.Result, error) {
	db, err := conn.Get()
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, database.Wrap(entity, action, err)
	}
	return res, nil
}

func selectRows(ctx context.Context, conn Conn, entity, action, query string, args ...any) ([]Row, error) {
	db, err := conn.Get()
	if err != nil {
		return nil, err
	}
	rows, err := queryRows(ctx, db, query, args...)
	if err != nil {
		return nil, database.Wrap(entity, action, err)
	}
	return rows, nil
}

func selectRow(ctx context.Context, conn Conn, entity, action, query string, args ...any) (Row, error) {
	db, err := conn.Get()
	if err != nil {
		return nil, err
	}
	row, err := queryRow(ctx, db, query, args...)
	if err != nil {
		return nil, database.Wrap(entity, action, err)
	}
	return row, nil
}

// insert executes an INSERT built from a and returns the generated row id.
func insert(ctx context.Context, conn Conn, entity, table string, a *database.Assignments) (int64, error) {
	query, args, err := a.Insert(table)
	if err != nil {
		return 0, database.Wrap(entity, "create", err)
	}
	res, err := exec(ctx, conn, entity, "create", query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		return 0, &database.CreationError{Entity: entity}
	}
	return id, nil
}

func count(ctx context.Context, conn Conn, entity, action, query string, args ...any) (int, error) {
	row, err := selectRow(ctx, conn, entity, action, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := row.int64("n")
	if err != nil {
		return 0, database.Wrap(entity, action, err)
	}
	return int(n), nil
}

func mapAll[T any](rows []Row, mapper func(Row) (*T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := mapper(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
