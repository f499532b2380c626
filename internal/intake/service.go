package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/trip-expenses/internal/expense"
	"github.com/zombor/trip-expenses/internal/scanning"
)

const (
	receiptDir   = "receipts"
	thumbnailDir = "thumbnails"
)

// Queue is the part of the processing queue the service drives
type Queue interface {
	Enqueue(ctx context.Context, imagePath, contentType string) (*expense.QueueItem, error)
	ClaimNext(ctx context.Context) (*expense.QueueItem, error)
	Claim(ctx context.Context, id int64) (*expense.QueueItem, error)
	Complete(ctx context.Context, id, expenseID int64) error
	Fail(ctx context.Context, id int64, message string) error
}

// Expenses creates expenses from scanned receipts
type Expenses interface {
	Create(ctx context.Context, m expense.CreateExpenseModel) (*expense.Expense, error)
}

// Rules suggests a category for a merchant
type Rules interface {
	SuggestCategory(ctx context.Context, merchant string) (*expense.CategorisationRule, error)
}

// Settings supplies the fallback currency
type Settings interface {
	DefaultCurrency(ctx context.Context) (string, error)
}

// Trips lists trips so a receipt can be filed under the active trip it belongs to
type Trips interface {
	GetAll(ctx context.Context, status expense.TripStatus) ([]expense.Trip, error)
}

// Repositories bundles the storage the service writes to
type Repositories struct {
	Queue    Queue
	Expenses Expenses
	Rules    Rules
	Settings Settings
	Trips    Trips
}

// IDGenerator generates unique IDs for stored files
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service turns uploaded receipts into expenses
type Service struct {
	repos       Repositories
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service on top of the expense store
func NewService(store *expense.Store, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(Repositories{
		Queue:    store.Queue,
		Expenses: store.Expenses,
		Rules:    store.Rules,
		Settings: store.Settings,
		Trips:    store.Trips,
	}, scanner, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(repos Repositories, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		repos:       repos,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(path.Ext(filename))
	base := strings.TrimSuffix(filename, path.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = whitespace.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	// Truncate to reasonable length (50 chars for base, plus extension)
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	if unsafeChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	return base + ext
}

// thumbnailPath returns where the thumbnail of a stored receipt lives
func thumbnailPath(imagePath string) string {
	base := path.Base(imagePath)
	return path.Join(thumbnailDir, strings.TrimSuffix(base, path.Ext(base))+".jpg")
}

// Submit stores a receipt file under a unique name, writes its thumbnail and
// queues it for extraction.
func (s *Service) Submit(ctx context.Context, filename string, data []byte, contentType string) (*expense.QueueItem, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("receipt file is empty")
	}

	name := path.Join(receiptDir, fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename)))
	savedPath, err := s.storage.Save(name, data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	// A missing thumbnail only degrades the listing, so failures are logged
	if thumb, err := makeThumbnail(data, contentType); err != nil {
		slog.Warn("Failed to create thumbnail", "path", savedPath, "error", err)
	} else if _, err := s.storage.Save(thumbnailPath(savedPath), thumb); err != nil {
		slog.Warn("Failed to save thumbnail", "path", savedPath, "error", err)
	}

	item, err := s.repos.Queue.Enqueue(ctx, savedPath, contentType)
	if err != nil {
		s.removeFiles(savedPath)
		return nil, fmt.Errorf("queueing receipt: %w", err)
	}

	slog.Info("Receipt queued", "queue_id", item.ID, "path", savedPath, "size", len(data))
	return item, nil
}

// ProcessNext extracts the oldest pending receipt. It returns nil when the queue is empty.
func (s *Service) ProcessNext(ctx context.Context) (*expense.Expense, error) {
	item, err := s.repos.Queue.ClaimNext(ctx)
	if err != nil {
		return nil, fmt.Errorf("claiming queue item: %w", err)
	}
	if item == nil {
		return nil, nil
	}
	return s.process(ctx, item)
}

// ProcessReceipt stores, queues and immediately extracts a receipt
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string) (*expense.Expense, error) {
	queued, err := s.Submit(ctx, filename, data, contentType)
	if err != nil {
		return nil, err
	}
	item, err := s.repos.Queue.Claim(ctx, queued.ID)
	if err != nil {
		return nil, fmt.Errorf("claiming queue item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("queue item %d was claimed by another worker", queued.ID)
	}
	return s.process(ctx, item)
}

// Run processes the queue every interval until ctx is cancelled
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.drain(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain processes pending items until the queue is empty or ctx is cancelled
func (s *Service) drain(ctx context.Context) {
	for ctx.Err() == nil {
		item, err := s.repos.Queue.ClaimNext(ctx)
		if err != nil {
			slog.Error("Failed to claim queue item", "error", err)
			return
		}
		if item == nil {
			return
		}
		// a failed item is already marked; keep going with the rest
		if _, err := s.process(ctx, item); err != nil {
			slog.Error("Failed to process receipt", "queue_id", item.ID, "error", err)
		}
	}
}

// process scans a claimed item and creates its expense. Any failure marks the
// item failed and leaves the stored files in place for a retry.
func (s *Service) process(ctx context.Context, item *expense.QueueItem) (*expense.Expense, error) {
	created, err := s.extract(ctx, item)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"queue_id", item.ID,
			"path", item.ImagePath,
			"content_type", item.ContentType,
			"attempt", item.Attempts,
			"error", err,
		)
		if ferr := s.repos.Queue.Fail(context.WithoutCancel(ctx), item.ID, err.Error()); ferr != nil {
			return nil, errors.Join(err, fmt.Errorf("marking queue item failed: %w", ferr))
		}
		return nil, fmt.Errorf("processing queue item %d: %w", item.ID, err)
	}

	if err := s.repos.Queue.Complete(ctx, item.ID, created.ID); err != nil {
		return nil, fmt.Errorf("completing queue item %d: %w", item.ID, err)
	}
	slog.Info("Receipt processed", "queue_id", item.ID, "expense_id", created.ID, "merchant", created.MerchantName)
	return created, nil
}

func (s *Service) extract(ctx context.Context, item *expense.QueueItem) (*expense.Expense, error) {
	data, err := s.storage.Get(item.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("reading receipt file: %w", err)
	}

	receipt, err := s.scanner.ScanReceipt(ctx, data, item.ContentType)
	if err != nil {
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	model, err := s.buildModel(ctx, item, receipt)
	if err != nil {
		return nil, err
	}

	created, err := s.repos.Expenses.Create(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("creating expense: %w", err)
	}
	return created, nil
}

// buildModel converts scanner output into a pending, AI-captured expense
func (s *Service) buildModel(ctx context.Context, item *expense.QueueItem, receipt *scanning.ReceiptData) (expense.CreateExpenseModel, error) {
	date, err := expense.ParseDate(receipt.Date)
	if err != nil {
		now := s.timeSource.Now()
		date = expense.NewDate(now.Year(), now.Month(), now.Day())
	}

	currency := receipt.Currency
	if currency == "" {
		if currency, err = s.repos.Settings.DefaultCurrency(ctx); err != nil {
			return expense.CreateExpenseModel{}, fmt.Errorf("reading default currency: %w", err)
		}
	}

	model := expense.CreateExpenseModel{
		MerchantName:       receipt.Merchant,
		Amount:             decimal.NewFromFloat(receipt.Amount),
		Currency:           currency,
		TransactionDate:    date,
		ReceiptImagePath:   item.ImagePath,
		CaptureMethod:      expense.CaptureAIService,
		AIServiceID:        ptr(s.scanner.Name()),
		VerificationStatus: expense.VerificationPending,
	}
	if receipt.Time != "" {
		model.TransactionTime = ptr(receipt.Time)
	}
	if receipt.TaxAmount != nil {
		model.TaxAmount = decimal.NewNullDecimal(decimal.NewFromFloat(*receipt.TaxAmount))
	}
	if receipt.TaxRate != nil {
		model.TaxRate = decimal.NewNullDecimal(decimal.NewFromFloat(*receipt.TaxRate))
	}
	if receipt.TaxType != "" {
		model.TaxType = ptr(expense.TaxType(receipt.TaxType))
	}
	if thumb := thumbnailPath(item.ImagePath); s.storage.Exists(thumb) {
		model.ThumbnailPath = ptr(thumb)
	}

	rule, err := s.repos.Rules.SuggestCategory(ctx, receipt.Merchant)
	if err != nil {
		return expense.CreateExpenseModel{}, fmt.Errorf("suggesting category: %w", err)
	}
	if rule != nil {
		model.CategoryID = rule.CategoryID
	}

	trip, err := s.activeTripFor(ctx, date)
	if err != nil {
		return expense.CreateExpenseModel{}, err
	}
	if trip != nil {
		model.TripID = ptr(trip.ID)
	}
	return model, nil
}

// activeTripFor returns the active trip whose dates cover date. Receipts that
// match no trip, or more than one, stay unassigned.
func (s *Service) activeTripFor(ctx context.Context, date expense.Date) (*expense.Trip, error) {
	trips, err := s.repos.Trips.GetAll(ctx, expense.TripActive)
	if err != nil {
		return nil, fmt.Errorf("listing active trips: %w", err)
	}

	var match *expense.Trip
	for i := range trips {
		t := &trips[i]
		if date.Before(t.StartDate.Time) || date.After(t.EndDate.Time) {
			continue
		}
		if match != nil {
			return nil, nil
		}
		match = t
	}
	return match, nil
}

func (s *Service) removeFiles(imagePath string) {
	for _, p := range []string{imagePath, thumbnailPath(imagePath)} {
		if err := s.storage.Delete(p); err != nil {
			slog.Warn("Failed to delete file", "path", p, "error", err)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
