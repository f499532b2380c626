// Package export writes trip expense reports as spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/trip-expenses/internal/expense"
)

const (
	// ContentTypeXLSX is the MIME type of WriteXLSX output
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	// ContentTypeCSV is the MIME type of WriteCSV output
	ContentTypeCSV = "text/csv"

	sheetName = "Expenses"
)

var header = []string{
	"Date", "Time", "Trip", "Destination", "Merchant", "Category",
	"Amount", "Currency", "Tax Amount", "Tax Type", "Tax Rate",
	"Notes", "Receipt", "Status",
}

// columns of numeric cells, zero based
const (
	amountCol    = 6
	taxAmountCol = 8
	taxRateCol   = 10
)

// Format is an export file format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts xlsx or csv in any case
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatXLSX, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q (supported: xlsx, csv)", s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatCSV {
		return ContentTypeCSV
	}
	return ContentTypeXLSX
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9\-_]+`)

// Filename builds a download name such as expenses_berlin_offsite.xlsx
func Filename(tripName string, f Format) string {
	name := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(tripName), "_"), "_")
	if name == "" {
		name = "trip"
	}
	return fmt.Sprintf("expenses_%s.%s", name, f)
}

// Write dispatches to WriteXLSX or WriteCSV
func Write(w io.Writer, f Format, rows []expense.ExportRow) error {
	if f == FormatCSV {
		return WriteCSV(w, rows)
	}
	return WriteXLSX(w, rows)
}

// record renders an export row as strings in header order
func record(r expense.ExportRow) []string {
	return []string{
		r.TransactionDate.String(),
		deref(r.TransactionTime),
		r.TripName,
		deref(r.TripDestination),
		r.MerchantName,
		r.CategoryName,
		r.Amount.StringFixed(2),
		r.Currency,
		nullFixed(r.TaxAmount, 2),
		string(derefTax(r.TaxType)),
		nullFixed(r.TaxRate, 2),
		deref(r.Notes),
		r.ReceiptImagePath,
		string(r.VerificationStatus),
	}
}

// WriteCSV writes rows as CSV with a header line
func WriteCSV(w io.Writer, rows []expense.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return fmt.Errorf("writing expense %d: %w", r.ExpenseID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// WriteXLSX writes rows as a single-sheet workbook followed by a total line per currency
func WriteXLSX(w io.Writer, rows []expense.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	// delete default sheet
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("deleting default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#305496"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("creating money style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: 4})
	if err != nil {
		return fmt.Errorf("creating total style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("creating stream writer: %w", err)
	}
	// column widths must be set before the first row
	if err := sw.SetColWidth(1, len(header), 16); err != nil {
		return fmt.Errorf("setting column width: %w", err)
	}
	if err := sw.SetColWidth(5, 5, 30); err != nil {
		return fmt.Errorf("setting column width: %w", err)
	}

	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", headerRow, excelize.RowOpts{Height: 20}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	totals := map[string]decimal.Decimal{}
	for n, r := range rows {
		values := record(r)
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		row[amountCol] = excelize.Cell{StyleID: moneyStyle, Value: r.Amount.InexactFloat64()}
		row[taxAmountCol] = nullCell(r.TaxAmount, moneyStyle)
		row[taxRateCol] = nullCell(r.TaxRate, 0)

		cell, _ := excelize.CoordinatesToCellName(1, n+2)
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("writing expense %d: %w", r.ExpenseID, err)
		}
		totals[r.Currency] = totals[r.Currency].Add(r.Amount)
	}

	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	// one blank row between the data and the totals
	next := len(rows) + 3
	for _, c := range currencies {
		row := make([]interface{}, amountCol+2)
		row[0] = excelize.Cell{StyleID: totalStyle, Value: "Total"}
		row[amountCol] = excelize.Cell{StyleID: totalStyle, Value: totals[c].InexactFloat64()}
		row[amountCol+1] = excelize.Cell{StyleID: totalStyle, Value: c}
		cell, _ := excelize.CoordinatesToCellName(1, next)
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("writing total for %s: %w", c, err)
		}
		next++
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flushing sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func nullCell(d decimal.NullDecimal, style int) interface{} {
	if !d.Valid {
		return nil
	}
	return excelize.Cell{StyleID: style, Value: d.Decimal.InexactFloat64()}
}

func nullFixed(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(places)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTax(t *expense.TaxType) expense.TaxType {
	if t == nil {
		return ""
	}
	return *t
}
