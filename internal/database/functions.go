package database

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"modernc.org/sqlite"
)

// foldFunction is the SQL name of the Unicode-aware lower-casing function.
// SQLite's built-in lower() only folds ASCII.
const foldFunction = "unicode_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldFunction, 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return strings.ToLower(fmt.Sprint(v)), nil
	}
}
