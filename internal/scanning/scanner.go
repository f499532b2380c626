package scanning

import "context"

// ReceiptData contains the expense fields extracted from a receipt
type ReceiptData struct {
	Merchant  string   `json:"merchant"`
	Date      string   `json:"date"`               // YYYY-MM-DD
	Time      string   `json:"time,omitempty"`     // HH:MM, empty when not printed
	Amount    float64  `json:"amount"`             // Grand total in the receipt currency
	Currency  string   `json:"currency,omitempty"` // ISO 4217 code, empty when unknown
	TaxAmount *float64 `json:"tax_amount,omitempty"`
	TaxType   string   `json:"tax_type,omitempty"` // GST, HST, PST, VAT, SALES_TAX, OTHER or NONE
	TaxRate   *float64 `json:"tax_rate,omitempty"` // Percent, 0-100
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts expense fields
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	// Name identifies the backend and model, recorded on created expenses
	Name() string
	// Close closes the scanner and releases resources
	Close() error
}
