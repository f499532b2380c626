package expense

import (
	"context"
	"strings"

	"github.com/zombor/trip-expenses/internal/database"
)

const entityRule = "categorisation rule"

// RuleRepository stores merchant-name categorisation rules
type RuleRepository struct {
	conn Conn
}

// NewRuleRepository creates a RuleRepository
func NewRuleRepository(conn Conn) *RuleRepository {
	return &RuleRepository{conn: conn}
}

// Create adds a rule. Patterns are stored trimmed.
func (r *RuleRepository) Create(ctx context.Context, m CreateRuleModel) (*CategorisationRule, error) {
	m.Pattern = strings.TrimSpace(m.Pattern)
	if err := validateModel(entityRule, m); err != nil {
		return nil, err
	}

	a := &database.Assignments{}
	a.Set("pattern", m.Pattern).
		Set("category_id", m.CategoryID).
		Set("priority", m.Priority)

	id, err := insert(ctx, r.conn, entityRule, "categorisation_rule", a)
	if err != nil {
		return nil, err
	}
	row, err := selectRow(ctx, r.conn, entityRule, "get", "SELECT * FROM categorisation_rule WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &database.CreationError{Entity: entityRule}
	}
	return mapRule(row)
}

// List returns every rule, highest priority first
func (r *RuleRepository) List(ctx context.Context) ([]CategorisationRule, error) {
	rows, err := selectRows(ctx, r.conn, entityRule, "list",
		"SELECT * FROM categorisation_rule ORDER BY priority DESC, id ASC")
	if err != nil {
		return nil, err
	}
	return mapAll(rows, mapRule)
}

// Delete removes a rule
func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	res, err := exec(ctx, r.conn, entityRule, "delete", "DELETE FROM categorisation_rule WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return database.Wrap(entityRule, "delete", err)
	}
	if n == 0 {
		return &database.NotFoundError{Entity: entityRule, ID: id}
	}
	return nil
}

// SuggestCategory returns the highest priority active rule whose pattern occurs
// in merchant, ignoring case, or nil when no rule matches.
func (r *RuleRepository) SuggestCategory(ctx context.Context, merchant string) (*CategorisationRule, error) {
	merchant = strings.TrimSpace(merchant)
	if merchant == "" {
		return nil, nil
	}
	row, err := selectRow(ctx, r.conn, entityRule, "match",
		`SELECT * FROM categorisation_rule
WHERE is_active = 1 AND instr(unicode_lower(?), unicode_lower(pattern)) > 0
ORDER BY priority DESC, length(pattern) DESC, id ASC
LIMIT 1`, merchant)
	if err != nil || row == nil {
		return nil, err
	}
	return mapRule(row)
}
