package legacy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/zombor/trip-expenses/internal/expense"
)

// Source is where legacy receipts come from
type Source interface {
	Receipts() ([]Receipt, error)
	Imported(receiptID string) (int64, bool, error)
	MarkImported(receiptID string, expenseID int64) error
}

// Expenses creates the imported expenses
type Expenses interface {
	Create(ctx context.Context, m expense.CreateExpenseModel) (*expense.Expense, error)
}

// Settings supplies the currency legacy amounts are recorded in
type Settings interface {
	DefaultCurrency(ctx context.Context) (string, error)
}

// Files stores copied receipt files
type Files interface {
	Save(name string, data []byte) (string, error)
}

// Options tunes an import
type Options struct {
	// TripID files every imported expense under this trip
	TripID *int64
	// ReceiptDir is the hsa-tracker upload directory. When set together with
	// Files the receipt files are copied alongside the expenses.
	ReceiptDir string
	Files      Files
}

// Result summarises an import run
type Result struct {
	Imported int
	Skipped  int
	Missing  int // receipt files that could not be copied
}

// Importer turns hsa-tracker receipts into expenses
type Importer struct {
	source   Source
	expenses Expenses
	settings Settings
	opts     Options
}

// NewImporter creates an Importer
func NewImporter(source Source, expenses Expenses, settings Settings, opts Options) *Importer {
	return &Importer{source: source, expenses: expenses, settings: settings, opts: opts}
}

// Import creates an expense for every receipt not imported before. Re-running
// an import skips receipts already recorded in the source.
func (i *Importer) Import(ctx context.Context) (Result, error) {
	var result Result

	receipts, err := i.source.Receipts()
	if err != nil {
		return result, fmt.Errorf("reading legacy receipts: %w", err)
	}
	sort.Slice(receipts, func(a, b int) bool {
		if !receipts[a].Date.Equal(receipts[b].Date) {
			return receipts[a].Date.Before(receipts[b].Date)
		}
		return receipts[a].ID < receipts[b].ID
	})

	currency, err := i.settings.DefaultCurrency(ctx)
	if err != nil {
		return result, fmt.Errorf("reading default currency: %w", err)
	}

	for _, r := range receipts {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if _, done, err := i.source.Imported(r.ID); err != nil {
			return result, err
		} else if done {
			result.Skipped++
			continue
		}

		imagePath, copied := i.copyFile(r)
		if !copied {
			result.Missing++
		}

		created, err := i.expenses.Create(ctx, i.model(r, currency, imagePath))
		if err != nil {
			return result, fmt.Errorf("importing receipt %s: %w", r.ID, err)
		}
		if err := i.source.MarkImported(r.ID, created.ID); err != nil {
			return result, fmt.Errorf("recording import of receipt %s: %w", r.ID, err)
		}
		result.Imported++
		slog.Debug("Imported legacy receipt", "receipt_id", r.ID, "expense_id", created.ID)
	}

	slog.Info("Legacy import finished", "imported", result.Imported, "skipped", result.Skipped, "missing_files", result.Missing)
	return result, nil
}

// maxMerchantRunes matches the merchant_name validation limit
const maxMerchantRunes = 200

func (i *Importer) model(r Receipt, currency, imagePath string) expense.CreateExpenseModel {
	merchant := strings.TrimSpace(r.Title)
	if merchant == "" {
		merchant = "Unknown Merchant"
	}
	if utf8.RuneCountInString(merchant) > maxMerchantRunes {
		merchant = string([]rune(merchant)[:maxMerchantRunes])
	}

	date := r.Date
	if date.IsZero() {
		date = r.CreatedAt
	}

	m := expense.CreateExpenseModel{
		TripID:             i.opts.TripID,
		MerchantName:       merchant,
		Amount:             decimal.New(int64(r.Amount), -2).Abs(),
		Currency:           currency,
		TransactionDate:    expense.NewDate(date.Year(), date.Month(), date.Day()),
		ReceiptImagePath:   imagePath,
		CaptureMethod:      expense.CaptureManual,
		VerificationStatus: expense.VerificationPending,
	}
	// reimbursed receipts were reviewed in hsa-tracker
	if r.ReimbursementID != "" {
		m.VerificationStatus = expense.VerificationVerified
		note := "Reimbursement " + r.ReimbursementID
		m.Notes = &note
	}
	return m
}

// copyFile copies the receipt file when a receipt directory is configured and
// returns the path to record on the expense.
func (i *Importer) copyFile(r Receipt) (string, bool) {
	legacyPath := path.Join("legacy", filepath.Base(r.Filename))
	if r.Filename == "" {
		return path.Join("legacy", r.ID), false
	}
	if i.opts.ReceiptDir == "" || i.opts.Files == nil {
		return legacyPath, true
	}

	data, err := os.ReadFile(filepath.Join(i.opts.ReceiptDir, filepath.Base(r.Filename)))
	if err != nil {
		slog.Warn("Legacy receipt file missing", "receipt_id", r.ID, "filename", r.Filename, "error", err)
		return legacyPath, false
	}
	saved, err := i.opts.Files.Save(legacyPath, data)
	if err != nil {
		slog.Warn("Failed to copy legacy receipt file", "receipt_id", r.ID, "error", err)
		return legacyPath, false
	}
	return saved, true
}
