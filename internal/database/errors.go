package database

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports caller-supplied data that failed a pre-check.
// It is raised before any statement reaches storage.
type ValidationError struct {
	Entity string
	Fields map[string]string // field -> failed rule
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Reason)
	}
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s failed %q", field, rule))
	}
	sort.Strings(parts)
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, ", "))
}

// NotFoundError reports an operation that targeted a nonexistent id.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Entity, e.ID)
}

// ConstraintError reports a delete that would violate a restrict-on-delete rule.
type ConstraintError struct {
	Entity     string
	ID         int64
	Dependent  string
	Dependents int
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("cannot delete %s %d: %d %s record(s) still reference it",
		e.Entity, e.ID, e.Dependents, e.Dependent)
}

// CreationError reports an insert that did not yield a row identifier.
type CreationError struct {
	Entity string
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("creating %s: no identifier returned", e.Entity)
}

// MigrationError reports a failed migration step. Initialization is aborted.
type MigrationError struct {
	From int
	To   int
	Step string
	Err  error
}

func (e *MigrationError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("migrating schema v%d -> v%d: %v", e.From, e.To, e.Err)
	}
	return fmt.Sprintf("migrating schema v%d -> v%d: step %s: %v", e.From, e.To, e.Step, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// UninitializedError is returned when the connection is requested before Initialize completed.
type UninitializedError struct{}

func (e *UninitializedError) Error() string {
	return "database not initialized: call Initialize first"
}

// SchemaError names the catalog statement that failed during schema creation.
type SchemaError struct {
	Index     int
	Statement string
	Err       error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema statement %d failed (%s): %v", e.Index, firstLine(e.Statement), e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// OperationError wraps a raw storage error with the entity and action that failed.
type OperationError struct {
	Entity string
	Action string
	Err    error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.Entity, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Wrap returns err wrapped in an OperationError, passing nil and already-typed
// errors of the taxonomy through unchanged.
func Wrap(entity, action string, err error) error {
	switch err.(type) {
	case nil:
		return nil
	case *ValidationError, *NotFoundError, *ConstraintError, *CreationError,
		*MigrationError, *SchemaError, *UninitializedError, *OperationError:
		return err
	}
	return &OperationError{Entity: entity, Action: action, Err: err}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:60] + "..."
	}
	return s
}
