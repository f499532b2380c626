package expense

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/trip-expenses/internal/database"
)

// Row is one result row keyed by column name. Mappers below are the only place
// that knows storage column names; keep them in step with the migrations in
// package database.
type Row map[string]any

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	out := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func queryRows(ctx context.Context, q database.Querier, query string, args ...any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// queryRow returns the first row of the result, or nil if there is none.
func queryRow(ctx context.Context, q database.Querier, query string, args ...any) (Row, error) {
	rows, err := queryRows(ctx, q, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r Row) int64(col string) (int64, error) {
	switch v := r[col].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}

func (r Row) nullInt64(col string) (*int64, error) {
	if r[col] == nil {
		return nil, nil
	}
	v, err := r.int64(col)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r Row) string(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) nullString(col string) *string {
	if r[col] == nil {
		return nil
	}
	s := r.string(col)
	return &s
}

func (r Row) bool(col string) (bool, error) {
	v, err := r.int64(col)
	return v != 0, err
}

func (r Row) decimal(col string) (decimal.Decimal, error) {
	switch v := r[col].(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(v)
	case []byte:
		return decimal.NewFromString(string(v))
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}

func (r Row) nullDecimal(col string) (decimal.NullDecimal, error) {
	if r[col] == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := r.decimal(col)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func (r Row) date(col string) (Date, error) {
	s := r.string(col)
	if s == "" {
		return Date{}, nil
	}
	// Older rows may carry a full timestamp; only the calendar date matters.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return ParseDate(s)
}

func (r Row) timestamp(col string) (time.Time, error) {
	if t, ok := r[col].(time.Time); ok {
		return t.UTC(), nil
	}
	s := r.string(col)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("column %s: unrecognised timestamp %q", col, s)
}

// roundSum drops the binary floating point noise SQLite adds when summing REAL columns.
func roundSum(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}

// rowReader accumulates the first conversion error so mappers read as a flat
// list of assignments.
type rowReader struct {
	row Row
	err error
}

func (rr *rowReader) int64(col string) int64 {
	v, err := rr.row.int64(col)
	rr.keep(col, err)
	return v
}

func (rr *rowReader) int(col string) int {
	return int(rr.int64(col))
}

func (rr *rowReader) nullInt64(col string) *int64 {
	v, err := rr.row.nullInt64(col)
	rr.keep(col, err)
	return v
}

func (rr *rowReader) bool(col string) bool {
	v, err := rr.row.bool(col)
	rr.keep(col, err)
	return v
}

func (rr *rowReader) decimal(col string) decimal.Decimal {
	v, err := rr.row.decimal(col)
	rr.keep(col, err)
	return v
}

func (rr *rowReader) nullDecimal(col string) decimal.NullDecimal {
	v, err := rr.row.nullDecimal(col)
	rr.keep(col, err)
	return v
}

func (rr *rowReader) date(col string) Date {
	v, err := rr.row.date(col)
	rr.keep(col, err)
	return v
}

func (rr *rowReader) timestamp(col string) time.Time {
	v, err := rr.row.timestamp(col)
	rr.keep(col, err)
	return v
}

func (rr *rowReader) keep(col string, err error) {
	if err != nil && rr.err == nil {
		rr.err = fmt.Errorf("mapping column %s: %w", col, err)
	}
}

func mapTrip(row Row) (*Trip, error) {
	rr := &rowReader{row: row}
	t := &Trip{
		ID:              rr.int64("id"),
		Name:            row.string("name"),
		StartDate:       rr.date("start_date"),
		EndDate:         rr.date("end_date"),
		Destination:     row.nullString("destination"),
		Purpose:         row.nullString("purpose"),
		Notes:           row.nullString("notes"),
		DefaultCurrency: row.string("default_currency"),
		Status:          TripStatus(row.string("status")),
		CreatedAt:       rr.timestamp("created_at"),
		UpdatedAt:       rr.timestamp("updated_at"),
	}
	if t.DefaultCurrency == "" {
		t.DefaultCurrency = DefaultCurrency
	}
	return t, rr.err
}

func mapExpense(row Row) (*Expense, error) {
	rr := &rowReader{row: row}
	e := &Expense{
		ID:                 rr.int64("id"),
		TripID:             rr.nullInt64("trip_id"),
		MerchantName:       row.string("merchant_name"),
		Amount:             rr.decimal("amount"),
		Currency:           row.string("currency"),
		TaxAmount:          rr.nullDecimal("tax_amount"),
		TaxRate:            rr.nullDecimal("tax_rate"),
		TransactionDate:    rr.date("transaction_date"),
		TransactionTime:    row.nullString("transaction_time"),
		CategoryID:         rr.int64("category_id"),
		ReceiptImagePath:   row.string("receipt_image_path"),
		ThumbnailPath:      row.nullString("thumbnail_path"),
		Notes:              row.nullString("notes"),
		CaptureMethod:      CaptureMethod(row.string("capture_method")),
		AIServiceID:        row.nullString("ai_service_id"),
		VerificationStatus: VerificationStatus(row.string("verification_status")),
		CreatedAt:          rr.timestamp("created_at"),
		UpdatedAt:          rr.timestamp("updated_at"),
	}
	if tt := row.nullString("tax_type"); tt != nil {
		taxType := TaxType(*tt)
		e.TaxType = &taxType
	}
	return e, rr.err
}

func mapExpenseWithDetails(row Row) (*ExpenseWithDetails, error) {
	e, err := mapExpense(row)
	if err != nil {
		return nil, err
	}
	return &ExpenseWithDetails{
		Expense:      *e,
		TripName:     row.nullString("trip_name"),
		CategoryName: row.string("category_name"),
		CategoryIcon: row.nullString("category_icon"),
	}, nil
}

func mapCategory(row Row) (*ExpenseCategory, error) {
	rr := &rowReader{row: row}
	c := &ExpenseCategory{
		ID:        rr.int64("id"),
		Name:      row.string("name"),
		Type:      CategoryType(row.string("type")),
		Icon:      row.nullString("icon"),
		SortOrder: rr.int("sort_order"),
		IsActive:  rr.bool("is_active"),
		CreatedAt: rr.timestamp("created_at"),
	}
	return c, rr.err
}

func mapRule(row Row) (*CategorisationRule, error) {
	rr := &rowReader{row: row}
	r := &CategorisationRule{
		ID:         rr.int64("id"),
		Pattern:    row.string("pattern"),
		CategoryID: rr.int64("category_id"),
		Priority:   rr.int("priority"),
		IsActive:   rr.bool("is_active"),
		CreatedAt:  rr.timestamp("created_at"),
	}
	return r, rr.err
}

func mapQueueItem(row Row) (*QueueItem, error) {
	rr := &rowReader{row: row}
	q := &QueueItem{
		ID:           rr.int64("id"),
		ImagePath:    row.string("image_path"),
		ContentType:  row.string("content_type"),
		Status:       QueueStatus(row.string("status")),
		Attempts:     rr.int("attempts"),
		ErrorMessage: row.nullString("error_message"),
		ExpenseID:    rr.nullInt64("expense_id"),
		CreatedAt:    rr.timestamp("created_at"),
		UpdatedAt:    rr.timestamp("updated_at"),
	}
	return q, rr.err
}

func mapTripStatistics(row Row) (TripStatistics, error) {
	rr := &rowReader{row: row}
	s := TripStatistics{
		TripID:       rr.int64("trip_id"),
		ExpenseCount: rr.int("expense_count"),
		TotalAmount:  rr.decimal("total_amount"),
	}
	s.TotalAmount = roundSum(s.TotalAmount)
	return s, rr.err
}

func mapCategoryBreakdown(row Row) (CategoryBreakdown, error) {
	rr := &rowReader{row: row}
	b := CategoryBreakdown{
		CategoryID:    rr.int64("category_id"),
		CategoryName:  row.string("category_name"),
		CategoryIcon:  row.nullString("category_icon"),
		ExpenseCount:  rr.int("expense_count"),
		TotalAmount:   rr.decimal("total_amount"),
		AverageAmount: rr.decimal("average_amount"),
	}
	b.TotalAmount = roundSum(b.TotalAmount)
	b.AverageAmount = b.AverageAmount.Round(2)
	return b, rr.err
}

func mapExportRow(row Row) (ExportRow, error) {
	rr := &rowReader{row: row}
	x := ExportRow{
		ExpenseID:          rr.int64("expense_id"),
		TripName:           row.string("trip_name"),
		TripDestination:    row.nullString("trip_destination"),
		TransactionDate:    rr.date("transaction_date"),
		TransactionTime:    row.nullString("transaction_time"),
		MerchantName:       row.string("merchant_name"),
		CategoryName:       row.string("category_name"),
		Amount:             rr.decimal("amount"),
		Currency:           row.string("currency"),
		TaxAmount:          rr.nullDecimal("tax_amount"),
		TaxRate:            rr.nullDecimal("tax_rate"),
		Notes:              row.nullString("notes"),
		ReceiptImagePath:   row.string("receipt_image_path"),
		VerificationStatus: VerificationStatus(row.string("verification_status")),
	}
	if tt := row.nullString("tax_type"); tt != nil {
		taxType := TaxType(*tt)
		x.TaxType = &taxType
	}
	return x, rr.err
}

// The functions below are the reverse direction: domain input to column
// assignments for INSERT and UPDATE statements.

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func decimalParam(d decimal.Decimal) any {
	return d.InexactFloat64()
}

func nullDecimalParam(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}

func setOptional[T any](a *database.Assignments, col string, o Optional[T], conv func(T) any) {
	if !o.Supplied() {
		return
	}
	v, ok := o.Get()
	if !ok {
		a.Set(col, nil)
		return
	}
	if conv == nil {
		a.Set(col, v)
		return
	}
	a.Set(col, conv(v))
}

func tripInsert(m CreateTripModel) *database.Assignments {
	a := &database.Assignments{}
	a.Set("name", m.Name).
		Set("start_date", m.StartDate.String()).
		Set("end_date", m.EndDate.String()).
		Set("destination", nullable(m.Destination)).
		Set("purpose", nullable(m.Purpose)).
		Set("notes", nullable(m.Notes))
	if m.DefaultCurrency != "" {
		a.Set("default_currency", m.DefaultCurrency)
	}
	if m.Status != "" {
		a.Set("status", string(m.Status))
	}
	return a
}

func tripUpdate(m UpdateTripModel) *database.Assignments {
	a := &database.Assignments{}
	if m.Name != nil {
		a.Set("name", *m.Name)
	}
	if m.StartDate != nil {
		a.Set("start_date", m.StartDate.String())
	}
	if m.EndDate != nil {
		a.Set("end_date", m.EndDate.String())
	}
	setOptional(a, "destination", m.Destination, nil)
	setOptional(a, "purpose", m.Purpose, nil)
	setOptional(a, "notes", m.Notes, nil)
	if m.DefaultCurrency != nil {
		a.Set("default_currency", *m.DefaultCurrency)
	}
	if m.Status != nil {
		a.Set("status", string(*m.Status))
	}
	return a
}

func expenseInsert(m CreateExpenseModel) *database.Assignments {
	a := &database.Assignments{}
	a.Set("trip_id", nullable(m.TripID)).
		Set("merchant_name", m.MerchantName).
		Set("amount", decimalParam(m.Amount)).
		Set("currency", m.Currency).
		Set("tax_amount", nullDecimalParam(m.TaxAmount)).
		Set("tax_rate", nullDecimalParam(m.TaxRate)).
		Set("transaction_date", m.TransactionDate.String()).
		Set("transaction_time", nullable(m.TransactionTime)).
		Set("receipt_image_path", m.ReceiptImagePath).
		Set("thumbnail_path", nullable(m.ThumbnailPath)).
		Set("notes", nullable(m.Notes)).
		Set("ai_service_id", nullable(m.AIServiceID))
	if m.TaxType != nil {
		a.Set("tax_type", string(*m.TaxType))
	}
	if m.CategoryID != 0 {
		a.Set("category_id", m.CategoryID)
	}
	if m.CaptureMethod != "" {
		a.Set("capture_method", string(m.CaptureMethod))
	}
	if m.VerificationStatus != "" {
		a.Set("verification_status", string(m.VerificationStatus))
	}
	return a
}

func expenseUpdate(m UpdateExpenseModel) *database.Assignments {
	a := &database.Assignments{}
	setOptional(a, "trip_id", m.TripID, nil)
	if m.MerchantName != nil {
		a.Set("merchant_name", *m.MerchantName)
	}
	if m.Amount != nil {
		a.Set("amount", decimalParam(*m.Amount))
	}
	if m.Currency != nil {
		a.Set("currency", *m.Currency)
	}
	setOptional(a, "tax_amount", m.TaxAmount, decimalParam)
	setOptional(a, "tax_type", m.TaxType, func(t TaxType) any { return string(t) })
	setOptional(a, "tax_rate", m.TaxRate, decimalParam)
	if m.TransactionDate != nil {
		a.Set("transaction_date", m.TransactionDate.String())
	}
	setOptional(a, "transaction_time", m.TransactionTime, nil)
	if m.CategoryID != nil {
		a.Set("category_id", *m.CategoryID)
	}
	if m.ReceiptImagePath != nil {
		a.Set("receipt_image_path", *m.ReceiptImagePath)
	}
	setOptional(a, "thumbnail_path", m.ThumbnailPath, nil)
	setOptional(a, "notes", m.Notes, nil)
	if m.CaptureMethod != nil {
		a.Set("capture_method", string(*m.CaptureMethod))
	}
	setOptional(a, "ai_service_id", m.AIServiceID, nil)
	if m.VerificationStatus != nil {
		a.Set("verification_status", string(*m.VerificationStatus))
	}
	return a
}
