package expense

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TripStatus is the lifecycle state of a trip
type TripStatus string

const (
	TripActive    TripStatus = "active"
	TripCompleted TripStatus = "completed"
	TripArchived  TripStatus = "archived"
)

// TaxType is the kind of tax recorded on an expense
type TaxType string

const (
	TaxGST   TaxType = "GST"
	TaxHST   TaxType = "HST"
	TaxPST   TaxType = "PST"
	TaxVAT   TaxType = "VAT"
	TaxSales TaxType = "SALES_TAX"
	TaxOther TaxType = "OTHER"
	TaxNone  TaxType = "NONE"
)

// CaptureMethod records how the data of an expense was obtained
type CaptureMethod string

const (
	CaptureAIService  CaptureMethod = "ai_service"
	CaptureOfflineOCR CaptureMethod = "offline_ocr"
	CaptureManual     CaptureMethod = "manual"
)

// VerificationStatus is the review state of an expense
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationEdited   VerificationStatus = "edited"
)

// CategoryType distinguishes seeded categories from user-created ones
type CategoryType string

const (
	CategoryStandard CategoryType = "standard"
	CategoryCustom   CategoryType = "custom"
)

// QueueStatus is the state of a receipt waiting for extraction
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// DefaultCurrency is used when neither the caller nor the settings name one.
const DefaultCurrency = "USD"

const dateLayout = "2006-01-02"

// Date is a calendar date without time of day. It is stored and encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the date for the given year, month and day
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type optionalState uint8

const (
	absent optionalState = iota
	present
	null
)

// Optional is a partial-update field that distinguishes an absent value from an
// explicit null. The zero value is absent.
type Optional[T any] struct {
	value T
	state optionalState
}

// Some returns an Optional holding v
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, state: present}
}

// Null returns an Optional that clears the column
func Null[T any]() Optional[T] {
	return Optional[T]{state: null}
}

// Supplied reports whether the field was given at all, as a value or as null.
func (o Optional[T]) Supplied() bool {
	return o.state != absent
}

// IsNull reports whether the field was explicitly set to null
func (o Optional[T]) IsNull() bool {
	return o.state == null
}

// Get returns the value and whether one is held
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.state == present
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.state != present {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*o = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

func (o Optional[T]) validationValue() (any, bool) {
	if o.state != present {
		return nil, false
	}
	return o.value, true
}

// Trip is a business trip that groups expenses
type Trip struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	StartDate       Date       `json:"start_date"`
	EndDate         Date       `json:"end_date"`
	Destination     *string    `json:"destination,omitempty"`
	Purpose         *string    `json:"purpose,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	DefaultCurrency string     `json:"default_currency"`
	Status          TripStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Expense is a single spend record
type Expense struct {
	ID                 int64               `json:"id"`
	TripID             *int64              `json:"trip_id,omitempty"`
	MerchantName       string              `json:"merchant_name"`
	Amount             decimal.Decimal     `json:"amount"`
	Currency           string              `json:"currency"`
	TaxAmount          decimal.NullDecimal `json:"tax_amount"`
	TaxType            *TaxType            `json:"tax_type,omitempty"`
	TaxRate            decimal.NullDecimal `json:"tax_rate"`
	TransactionDate    Date                `json:"transaction_date"`
	TransactionTime    *string             `json:"transaction_time,omitempty"` // HH:MM or HH:MM:SS
	CategoryID         int64               `json:"category_id"`
	ReceiptImagePath   string              `json:"receipt_image_path"`
	ThumbnailPath      *string             `json:"thumbnail_path,omitempty"`
	Notes              *string             `json:"notes,omitempty"`
	CaptureMethod      CaptureMethod       `json:"capture_method"`
	AIServiceID        *string             `json:"ai_service_id,omitempty"`
	VerificationStatus VerificationStatus  `json:"verification_status"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// ExpenseCategory classifies expenses
type ExpenseCategory struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Type      CategoryType `json:"type"`
	Icon      *string      `json:"icon,omitempty"`
	SortOrder int          `json:"sort_order"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`
}

// CategorisationRule maps a merchant name pattern to a category
type CategorisationRule struct {
	ID         int64     `json:"id"`
	Pattern    string    `json:"pattern"`
	CategoryID int64     `json:"category_id"`
	Priority   int       `json:"priority"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// QueueItem is a stored receipt image waiting for, or done with, extraction
type QueueItem struct {
	ID           int64       `json:"id"`
	ImagePath    string      `json:"image_path"`
	ContentType  string      `json:"content_type"`
	Status       QueueStatus `json:"status"`
	Attempts     int         `json:"attempts"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	ExpenseID    *int64      `json:"expense_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// CreateTripModel is the input of TripRepository.Create
type CreateTripModel struct {
	Name            string     `json:"name" validate:"required,max=200"`
	StartDate       Date       `json:"start_date" validate:"required"`
	EndDate         Date       `json:"end_date" validate:"required"`
	Destination     *string    `json:"destination"`
	Purpose         *string    `json:"purpose"`
	Notes           *string    `json:"notes"`
	DefaultCurrency string     `json:"default_currency" validate:"omitempty,len=3,alpha"`
	Status          TripStatus `json:"status" validate:"omitempty,oneof=active completed archived"`
}

// UpdateTripModel carries the fields to change on a trip. Nil pointers and
// absent Optionals leave the column untouched.
type UpdateTripModel struct {
	ID              int64            `json:"id" validate:"required"`
	Name            *string          `json:"name" validate:"omitempty,min=1,max=200"`
	StartDate       *Date            `json:"start_date"`
	EndDate         *Date            `json:"end_date"`
	Destination     Optional[string] `json:"destination"`
	Purpose         Optional[string] `json:"purpose"`
	Notes           Optional[string] `json:"notes"`
	DefaultCurrency *string          `json:"default_currency" validate:"omitempty,len=3,alpha"`
	Status          *TripStatus      `json:"status" validate:"omitempty,oneof=active completed archived"`
}

// CreateExpenseModel is the input of ExpenseRepository.Create. A zero CategoryID
// files the expense as Uncategorized.
type CreateExpenseModel struct {
	TripID             *int64              `json:"trip_id"`
	MerchantName       string              `json:"merchant_name" validate:"required,max=200"`
	Amount             decimal.Decimal     `json:"amount" validate:"gte=0"`
	Currency           string              `json:"currency" validate:"required,len=3,alpha"`
	TaxAmount          decimal.NullDecimal `json:"tax_amount" validate:"omitempty,gte=0"`
	TaxType            *TaxType            `json:"tax_type" validate:"omitempty,oneof=GST HST PST VAT SALES_TAX OTHER NONE"`
	TaxRate            decimal.NullDecimal `json:"tax_rate" validate:"omitempty,gte=0,lte=100"`
	TransactionDate    Date                `json:"transaction_date" validate:"required"`
	TransactionTime    *string             `json:"transaction_time" validate:"omitempty,datetime=15:04|datetime=15:04:05"`
	CategoryID         int64               `json:"category_id" validate:"gte=0"`
	ReceiptImagePath   string              `json:"receipt_image_path" validate:"required"`
	ThumbnailPath      *string             `json:"thumbnail_path"`
	Notes              *string             `json:"notes"`
	CaptureMethod      CaptureMethod       `json:"capture_method" validate:"omitempty,oneof=ai_service offline_ocr manual"`
	AIServiceID        *string             `json:"ai_service_id"`
	VerificationStatus VerificationStatus  `json:"verification_status" validate:"omitempty,oneof=pending verified edited"`
}

// UpdateExpenseModel carries the fields to change on an expense
type UpdateExpenseModel struct {
	ID                 int64                     `json:"id" validate:"required"`
	TripID             Optional[int64]           `json:"trip_id" validate:"omitempty,gt=0"`
	MerchantName       *string                   `json:"merchant_name" validate:"omitempty,min=1,max=200"`
	Amount             *decimal.Decimal          `json:"amount" validate:"omitempty,gte=0"`
	Currency           *string                   `json:"currency" validate:"omitempty,len=3,alpha"`
	TaxAmount          Optional[decimal.Decimal] `json:"tax_amount" validate:"omitempty,gte=0"`
	TaxType            Optional[TaxType]         `json:"tax_type" validate:"omitempty,oneof=GST HST PST VAT SALES_TAX OTHER NONE"`
	TaxRate            Optional[decimal.Decimal] `json:"tax_rate" validate:"omitempty,gte=0,lte=100"`
	TransactionDate    *Date                     `json:"transaction_date"`
	TransactionTime    Optional[string]          `json:"transaction_time" validate:"omitempty,datetime=15:04|datetime=15:04:05"`
	CategoryID         *int64                    `json:"category_id" validate:"omitempty,gt=0"`
	ReceiptImagePath   *string                   `json:"receipt_image_path" validate:"omitempty,min=1"`
	ThumbnailPath      Optional[string]          `json:"thumbnail_path"`
	Notes              Optional[string]          `json:"notes"`
	CaptureMethod      *CaptureMethod            `json:"capture_method" validate:"omitempty,oneof=ai_service offline_ocr manual"`
	AIServiceID        Optional[string]          `json:"ai_service_id"`
	VerificationStatus *VerificationStatus       `json:"verification_status" validate:"omitempty,oneof=pending verified edited"`
}

// CreateCategoryModel is the input of CategoryRepository.Create
type CreateCategoryModel struct {
	Name      string  `json:"name" validate:"required,max=100"`
	Icon      *string `json:"icon"`
	SortOrder int     `json:"sort_order" validate:"gte=0"`
}

// CreateRuleModel is the input of RuleRepository.Create
type CreateRuleModel struct {
	Pattern    string `json:"pattern" validate:"required,max=200"`
	CategoryID int64  `json:"category_id" validate:"required,gt=0"`
	Priority   int    `json:"priority"`
}

// ExpenseWithDetails is an expense joined with its trip and category names
type ExpenseWithDetails struct {
	Expense
	TripName     *string `json:"trip_name,omitempty"`
	CategoryName string  `json:"category_name"`
	CategoryIcon *string `json:"category_icon,omitempty"`
}

// TripStatistics summarises the expenses of one trip
type TripStatistics struct {
	TripID       int64           `json:"trip_id"`
	ExpenseCount int             `json:"expense_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// CategoryBreakdown summarises the expenses of one trip in one category
type CategoryBreakdown struct {
	CategoryID    int64           `json:"category_id"`
	CategoryName  string          `json:"category_name"`
	CategoryIcon  *string         `json:"category_icon,omitempty"`
	ExpenseCount  int             `json:"expense_count"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AverageAmount decimal.Decimal `json:"average_amount"`
}

// ExportRow is one flattened expense line for document generation
type ExportRow struct {
	ExpenseID          int64               `json:"expense_id"`
	TripName           string              `json:"trip_name"`
	TripDestination    *string             `json:"trip_destination,omitempty"`
	TransactionDate    Date                `json:"transaction_date"`
	TransactionTime    *string             `json:"transaction_time,omitempty"`
	MerchantName       string              `json:"merchant_name"`
	CategoryName       string              `json:"category_name"`
	Amount             decimal.Decimal     `json:"amount"`
	Currency           string              `json:"currency"`
	TaxAmount          decimal.NullDecimal `json:"tax_amount"`
	TaxType            *TaxType            `json:"tax_type,omitempty"`
	TaxRate            decimal.NullDecimal `json:"tax_rate"`
	Notes              *string             `json:"notes,omitempty"`
	ReceiptImagePath   string              `json:"receipt_image_path"`
	VerificationStatus VerificationStatus  `json:"verification_status"`
}

// OverallSummary totals every stored expense
type OverallSummary struct {
	TripCount        int             `json:"trip_count"`
	ExpenseCount     int             `json:"expense_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	UnassignedCount  int             `json:"unassigned_count"`
	PendingQueueSize int             `json:"pending_queue_size"`
}
