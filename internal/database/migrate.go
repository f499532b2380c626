package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// Migration is a single forward schema step. Apply must check the current schema
// shape before mutating it so a partially applied step can be re-run safely.
type Migration struct {
	From  int
	To    int
	Name  string
	Apply func(ctx context.Context, q Querier) error
}

// Migrations lists every schema step in version order.
var Migrations = []Migration{
	{
		From: 1,
		To:   2,
		Name: "add_trip_default_currency",
		Apply: func(ctx context.Context, q Querier) error {
			return addColumnIfMissing(ctx, q, "trip", "default_currency",
				"TEXT NOT NULL DEFAULT 'USD' CHECK (length(default_currency) = 3)")
		},
	},
	{
		From: 2,
		To:   3,
		Name: "add_expense_capture_columns",
		Apply: func(ctx context.Context, q Querier) error {
			if err := addColumnIfMissing(ctx, q, "expense", "thumbnail_path", "TEXT"); err != nil {
				return err
			}
			return addColumnIfMissing(ctx, q, "expense", "ai_service_id", "TEXT")
		},
	},
}

type beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// runMigrations applies every step between from and to inside one transaction and
// records the target version in the same transaction.
func runMigrations(ctx context.Context, db beginner, steps []Migration, from, to int) error {
	if to < from {
		return &MigrationError{From: from, To: to, Err: errors.New("downgrade is not supported")}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &MigrationError{From: from, To: to, Err: fmt.Errorf("beginning transaction: %w", err)}
	}
	defer tx.Rollback()

	for _, step := range steps {
		if step.To <= from || step.To > to {
			continue
		}
		slog.Info("Applying migration", "step", step.Name, "from", step.From, "to", step.To)
		if err := step.Apply(ctx, tx); err != nil {
			return &MigrationError{From: from, To: to, Step: step.Name, Err: err}
		}
	}

	if err := writeSchemaVersion(ctx, tx, to); err != nil {
		return &MigrationError{From: from, To: to, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &MigrationError{From: from, To: to, Err: fmt.Errorf("committing: %w", err)}
	}

	slog.Info("Schema migrated", "from", from, "to", to)
	return nil
}

func columnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspecting %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

func addColumnIfMissing(ctx context.Context, q Querier, table, column, definition string) error {
	if !validIdentifier(table) || !validIdentifier(column) {
		return fmt.Errorf("invalid identifier %s.%s", table, column)
	}

	exists, err := columnExists(ctx, q, table, column)
	if err != nil {
		return err
	}
	if exists {
		slog.Debug("Column already present", "table", table, "column", column)
		return nil
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("adding column %s.%s: %w", table, column, err)
	}
	return nil
}
