package expense

import (
	"context"
	"log/slog"

	"github.com/zombor/trip-expenses/internal/database"
)

const entityExpense = "expense"

const expenseOrder = " ORDER BY transaction_date DESC, transaction_time DESC, id DESC"

// ExpenseRepository stores expenses
type ExpenseRepository struct {
	conn Conn
}

// NewExpenseRepository creates an ExpenseRepository
func NewExpenseRepository(conn Conn) *ExpenseRepository {
	return &ExpenseRepository{conn: conn}
}

// Create inserts an expense and returns it as stored
func (r *ExpenseRepository) Create(ctx context.Context, m CreateExpenseModel) (*Expense, error) {
	if err := validateModel(entityExpense, m); err != nil {
		return nil, err
	}
	if m.TripID != nil {
		if err := r.requireTrip(ctx, *m.TripID); err != nil {
			return nil, err
		}
	}
	if m.CategoryID != 0 {
		if err := r.requireCategory(ctx, m.CategoryID); err != nil {
			return nil, err
		}
	}

	id, err := insert(ctx, r.conn, entityExpense, "expense", expenseInsert(m))
	if err != nil {
		return nil, err
	}

	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &database.CreationError{Entity: entityExpense}
	}
	slog.Info("Expense created", "id", e.ID, "merchant", e.MerchantName, "amount", e.Amount.String())
	return e, nil
}

// GetByID returns the expense or nil if it does not exist
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*Expense, error) {
	row, err := selectRow(ctx, r.conn, entityExpense, "get", "SELECT * FROM expense WHERE id = ?", id)
	if err != nil || row == nil {
		return nil, err
	}
	return mapExpense(row)
}

// GetAll lists expenses, most recent first, optionally restricted to one trip
func (r *ExpenseRepository) GetAll(ctx context.Context, tripID *int64) ([]Expense, error) {
	query := "SELECT * FROM expense"
	var args []any
	if tripID != nil {
		query += " WHERE trip_id = ?"
		args = append(args, *tripID)
	}
	rows, err := selectRows(ctx, r.conn, entityExpense, "list", query+expenseOrder, args...)
	if err != nil {
		return nil, err
	}
	return mapAll(rows, mapExpense)
}

// GetUnassigned lists expenses that belong to no trip
func (r *ExpenseRepository) GetUnassigned(ctx context.Context) ([]Expense, error) {
	rows, err := selectRows(ctx, r.conn, entityExpense, "list",
		"SELECT * FROM expense WHERE trip_id IS NULL"+expenseOrder)
	if err != nil {
		return nil, err
	}
	return mapAll(rows, mapExpense)
}

// Update changes only the supplied fields. With nothing supplied the stored
// expense is returned unchanged.
func (r *ExpenseRepository) Update(ctx context.Context, m UpdateExpenseModel) (*Expense, error) {
	if err := validateModel(entityExpense, m); err != nil {
		return nil, err
	}

	existing, err := r.GetByID(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &database.NotFoundError{Entity: entityExpense, ID: m.ID}
	}
	if tripID, ok := m.TripID.Get(); ok {
		if err := r.requireTrip(ctx, tripID); err != nil {
			return nil, err
		}
	}
	if m.CategoryID != nil {
		if err := r.requireCategory(ctx, *m.CategoryID); err != nil {
			return nil, err
		}
	}

	a := expenseUpdate(m)
	if a.Len() == 0 {
		return existing, nil
	}
	query, args, err := a.Update("expense", "id", m.ID)
	if err != nil {
		return nil, database.Wrap(entityExpense, "update", err)
	}
	if _, err := exec(ctx, r.conn, entityExpense, "update", query, args...); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, m.ID)
}

// Reassign moves every expense of trip from to trip to, or detaches them when to
// is nil. It returns the number of expenses moved.
func (r *ExpenseRepository) Reassign(ctx context.Context, from int64, to *int64) (int64, error) {
	for _, id := range []*int64{&from, to} {
		if id == nil {
			continue
		}
		if err := r.requireTrip(ctx, *id); err != nil {
			return 0, err
		}
	}

	res, err := exec(ctx, r.conn, entityExpense, "reassign",
		"UPDATE expense SET trip_id = ? WHERE trip_id = ?", nullable(to), from)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Wrap(entityExpense, "reassign", err)
	}
	slog.Info("Expenses reassigned", "from", from, "to", nullable(to), "count", n)
	return n, nil
}

func (r *ExpenseRepository) requireTrip(ctx context.Context, id int64) error {
	t, err := NewTripRepository(r.conn).GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return &database.NotFoundError{Entity: entityTrip, ID: id}
	}
	return nil
}

func (r *ExpenseRepository) requireCategory(ctx context.Context, id int64) error {
	c, err := NewCategoryRepository(r.conn).GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return &database.NotFoundError{Entity: entityCategory, ID: id}
	}
	return nil
}

// Delete removes an expense
func (r *ExpenseRepository) Delete(ctx context.Context, id int64) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return &database.NotFoundError{Entity: entityExpense, ID: id}
	}

	if _, err := exec(ctx, r.conn, entityExpense, "delete", "DELETE FROM expense WHERE id = ?", id); err != nil {
		return err
	}
	slog.Info("Expense deleted", "id", id)
	return nil
}
