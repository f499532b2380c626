package database

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ErrNoAssignments is returned when an UPDATE is built without any column.
var ErrNoAssignments = errors.New("no columns to assign")

func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Assignments collects column/value pairs and renders them as parameterized
// INSERT or UPDATE statements. Column names are checked against a strict
// identifier pattern; values are always bound as parameters.
type Assignments struct {
	columns []string
	values  []any
	err     error
}

// Set appends a column assignment. Setting the same column twice is an error
// reported when the statement is built.
func (a *Assignments) Set(column string, value any) *Assignments {
	if a.err != nil {
		return a
	}
	if !validIdentifier(column) {
		a.err = fmt.Errorf("invalid column name %q", column)
		return a
	}
	for _, c := range a.columns {
		if c == column {
			a.err = fmt.Errorf("column %q assigned twice", column)
			return a
		}
	}
	a.columns = append(a.columns, column)
	a.values = append(a.values, value)
	return a
}

// Len returns the number of assigned columns
func (a *Assignments) Len() int {
	return len(a.columns)
}

// Columns returns the assigned column names in order
func (a *Assignments) Columns() []string {
	return append([]string(nil), a.columns...)
}

// Insert renders an INSERT statement for table.
func (a *Assignments) Insert(table string) (string, []any, error) {
	if a.err != nil {
		return "", nil, a.err
	}
	if !validIdentifier(table) {
		return "", nil, fmt.Errorf("invalid table name %q", table)
	}
	if len(a.columns) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table), nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(a.columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(a.columns, ", "), placeholders)
	return query, append([]any(nil), a.values...), nil
}

// Update renders an UPDATE statement for the row of table whose keyColumn equals key.
func (a *Assignments) Update(table, keyColumn string, key any) (string, []any, error) {
	if a.err != nil {
		return "", nil, a.err
	}
	if !validIdentifier(table) || !validIdentifier(keyColumn) {
		return "", nil, fmt.Errorf("invalid identifier %s.%s", table, keyColumn)
	}
	if len(a.columns) == 0 {
		return "", nil, ErrNoAssignments
	}

	sets := make([]string, len(a.columns))
	for i, c := range a.columns {
		sets[i] = c + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", table, strings.Join(sets, ", "), keyColumn)
	args := append(append([]any(nil), a.values...), key)
	return query, args, nil
}
