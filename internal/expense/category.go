package expense

import (
	"context"

	"github.com/zombor/trip-expenses/internal/database"
)

const entityCategory = "category"

// CategoryRepository stores expense categories
type CategoryRepository struct {
	conn Conn
}

// NewCategoryRepository creates a CategoryRepository
func NewCategoryRepository(conn Conn) *CategoryRepository {
	return &CategoryRepository{conn: conn}
}

// GetAll lists active categories in display order
func (r *CategoryRepository) GetAll(ctx context.Context) ([]ExpenseCategory, error) {
	rows, err := selectRows(ctx, r.conn, entityCategory, "list",
		"SELECT * FROM expense_category WHERE is_active = 1 ORDER BY sort_order, name")
	if err != nil {
		return nil, err
	}
	return mapAll(rows, mapCategory)
}

// GetByID returns the category or nil if it does not exist
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*ExpenseCategory, error) {
	row, err := selectRow(ctx, r.conn, entityCategory, "get", "SELECT * FROM expense_category WHERE id = ?", id)
	if err != nil || row == nil {
		return nil, err
	}
	return mapCategory(row)
}

// Create adds a custom category
func (r *CategoryRepository) Create(ctx context.Context, m CreateCategoryModel) (*ExpenseCategory, error) {
	if err := validateModel(entityCategory, m); err != nil {
		return nil, err
	}

	a := &database.Assignments{}
	a.Set("name", m.Name).
		Set("type", string(CategoryCustom)).
		Set("icon", nullable(m.Icon)).
		Set("sort_order", m.SortOrder)

	id, err := insert(ctx, r.conn, entityCategory, "expense_category", a)
	if err != nil {
		return nil, err
	}
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &database.CreationError{Entity: entityCategory}
	}
	return c, nil
}

// Delete removes a category that no expense references. The reserved
// Uncategorized category cannot be removed.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	if id == database.UncategorizedCategoryID {
		return &database.ValidationError{Entity: entityCategory, Reason: "the Uncategorized category is reserved"}
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return &database.NotFoundError{Entity: entityCategory, ID: id}
	}

	n, err := count(ctx, r.conn, entityCategory, "delete", "SELECT COUNT(*) AS n FROM expense WHERE category_id = ?", id)
	if err != nil {
		return err
	}
	if n > 0 {
		return &database.ConstraintError{Entity: entityCategory, ID: id, Dependent: "expense", Dependents: n}
	}

	_, err = exec(ctx, r.conn, entityCategory, "delete", "DELETE FROM expense_category WHERE id = ?", id)
	return err
}
