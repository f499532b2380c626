package expense

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

const entityStats = "statistics"

const detailSelect = `SELECT e.*, t.name AS trip_name, c.name AS category_name, c.icon AS category_icon
FROM expense e
LEFT JOIN trip t ON t.id = e.trip_id
JOIN expense_category c ON c.id = e.category_id`

const detailOrder = " ORDER BY e.transaction_date DESC, e.transaction_time DESC, e.id DESC"

// Queries runs read-only aggregate and joined queries
type Queries struct {
	conn Conn
}

// NewQueries creates Queries
func NewQueries(conn Conn) *Queries {
	return &Queries{conn: conn}
}

// TripStatistics counts and totals the expenses of one trip. A trip without
// expenses, or an unknown trip, yields zeroes.
func (q *Queries) TripStatistics(ctx context.Context, tripID int64) (TripStatistics, error) {
	row, err := selectRow(ctx, q.conn, entityStats, "trip statistics", `SELECT ? AS trip_id,
    COUNT(id) AS expense_count,
    COALESCE(SUM(amount), 0) AS total_amount
FROM expense WHERE trip_id = ?`, tripID, tripID)
	if err != nil {
		return TripStatistics{}, err
	}
	if row == nil {
		return TripStatistics{TripID: tripID, TotalAmount: decimal.Zero}, nil
	}
	return mapTripStatistics(row)
}

// AllTripsStatistics returns statistics for every trip in one grouped query,
// keyed by trip id. Trips without expenses are present with zeroes.
func (q *Queries) AllTripsStatistics(ctx context.Context) (map[int64]TripStatistics, error) {
	rows, err := selectRows(ctx, q.conn, entityStats, "all trip statistics", `SELECT t.id AS trip_id,
    COUNT(e.id) AS expense_count,
    COALESCE(SUM(e.amount), 0) AS total_amount
FROM trip t
LEFT JOIN expense e ON e.trip_id = t.id
GROUP BY t.id`)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]TripStatistics, len(rows))
	for _, row := range rows {
		s, err := mapTripStatistics(row)
		if err != nil {
			return nil, err
		}
		out[s.TripID] = s
	}
	return out, nil
}

// CategoryBreakdown groups the expenses of a trip by category, largest total
// first. Categories without expenses in the trip are left out.
func (q *Queries) CategoryBreakdown(ctx context.Context, tripID int64) ([]CategoryBreakdown, error) {
	rows, err := selectRows(ctx, q.conn, entityStats, "category breakdown", `SELECT c.id AS category_id,
    c.name AS category_name,
    c.icon AS category_icon,
    COUNT(e.id) AS expense_count,
    COALESCE(SUM(e.amount), 0) AS total_amount,
    COALESCE(AVG(e.amount), 0) AS average_amount
FROM expense_category c
JOIN expense e ON e.category_id = c.id
WHERE e.trip_id = ?
GROUP BY c.id
HAVING COUNT(e.id) > 0
ORDER BY total_amount DESC, c.sort_order ASC`, tripID)
	if err != nil {
		return nil, err
	}

	out := make([]CategoryBreakdown, 0, len(rows))
	for _, row := range rows {
		b, err := mapCategoryBreakdown(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// ExpensesWithDetails lists expenses joined with trip and category names,
// optionally restricted to one trip
func (q *Queries) ExpensesWithDetails(ctx context.Context, tripID *int64) ([]ExpenseWithDetails, error) {
	query := detailSelect
	var args []any
	if tripID != nil {
		query += " WHERE e.trip_id = ?"
		args = append(args, *tripID)
	}
	rows, err := selectRows(ctx, q.conn, entityExpense, "list details", query+detailOrder, args...)
	if err != nil {
		return nil, err
	}
	return mapAll(rows, mapExpenseWithDetails)
}

// Search matches term, case-insensitively, as a substring of the merchant name,
// the category name or the notes. Wildcards in term match literally.
func (q *Queries) Search(ctx context.Context, term string, tripID *int64) ([]ExpenseWithDetails, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(term))) + "%"
	query := detailSelect + `
WHERE (unicode_lower(e.merchant_name) LIKE ? ESCAPE '\'
    OR unicode_lower(c.name) LIKE ? ESCAPE '\'
    OR unicode_lower(COALESCE(e.notes, '')) LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern, pattern}
	if tripID != nil {
		query += " AND e.trip_id = ?"
		args = append(args, *tripID)
	}
	rows, err := selectRows(ctx, q.conn, entityExpense, "search", query+detailOrder, args...)
	if err != nil {
		return nil, err
	}
	return mapAll(rows, mapExpenseWithDetails)
}

// ExportData returns the expenses of a trip flattened for documents, oldest first.
func (q *Queries) ExportData(ctx context.Context, tripID int64) ([]ExportRow, error) {
	rows, err := selectRows(ctx, q.conn, entityExpense, "export", `SELECT e.id AS expense_id,
    t.name AS trip_name,
    t.destination AS trip_destination,
    e.transaction_date, e.transaction_time,
    e.merchant_name,
    c.name AS category_name,
    e.amount, e.currency, e.tax_amount, e.tax_type, e.tax_rate,
    e.notes, e.receipt_image_path, e.verification_status
FROM expense e
JOIN trip t ON t.id = e.trip_id
JOIN expense_category c ON c.id = e.category_id
WHERE e.trip_id = ?
ORDER BY e.transaction_date ASC, e.transaction_time ASC, e.id ASC`, tripID)
	if err != nil {
		return nil, err
	}

	out := make([]ExportRow, 0, len(rows))
	for _, row := range rows {
		x, err := mapExportRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// OverallSummary totals every expense regardless of trip
func (q *Queries) OverallSummary(ctx context.Context) (OverallSummary, error) {
	row, err := selectRow(ctx, q.conn, entityStats, "summary", `SELECT
    (SELECT COUNT(*) FROM trip) AS trip_count,
    (SELECT COUNT(*) FROM expense) AS expense_count,
    (SELECT COALESCE(SUM(amount), 0) FROM expense) AS total_amount,
    (SELECT COUNT(*) FROM expense WHERE trip_id IS NULL) AS unassigned_count,
    (SELECT COUNT(*) FROM processing_queue WHERE status = 'pending') AS pending_queue_size`)
	if err != nil {
		return OverallSummary{}, err
	}

	rr := &rowReader{row: row}
	s := OverallSummary{
		TripCount:        rr.int("trip_count"),
		ExpenseCount:     rr.int("expense_count"),
		TotalAmount:      roundSum(rr.decimal("total_amount")),
		UnassignedCount:  rr.int("unassigned_count"),
		PendingQueueSize: rr.int("pending_queue_size"),
	}
	return s, rr.err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
