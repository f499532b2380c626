package scanning

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var timeFormats = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"03:04 PM",
}

var taxTypes = map[string]string{
	"GST":       "GST",
	"HST":       "HST",
	"PST":       "PST",
	"QST":       "PST",
	"VAT":       "VAT",
	"MWST":      "VAT",
	"TVA":       "VAT",
	"IVA":       "VAT",
	"SALES_TAX": "SALES_TAX",
	"SALES TAX": "SALES_TAX",
	"TAX":       "SALES_TAX",
	"NONE":      "NONE",
	"OTHER":     "OTHER",
}

// parseReceiptJSON parses the JSON object in an LLM response and normalises
// every field into the shapes the expense store accepts.
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data ReceiptData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Date = normaliseDate(data.Date)
	data.Time = normaliseTime(data.Time)

	data.Merchant = strings.TrimSpace(data.Merchant)
	if data.Merchant == "" {
		data.Merchant = "Unknown Merchant"
	}

	data.Amount = math.Abs(data.Amount)

	data.Currency = strings.ToUpper(strings.TrimSpace(data.Currency))
	if len(data.Currency) != 3 {
		data.Currency = ""
	}

	if data.TaxAmount != nil && *data.TaxAmount < 0 {
		data.TaxAmount = nil
	}
	if data.TaxRate != nil && (*data.TaxRate < 0 || *data.TaxRate > 100) {
		data.TaxRate = nil
	}

	data.TaxType = taxTypes[strings.ToUpper(strings.TrimSpace(data.TaxType))]
	if data.TaxType == "" && data.TaxAmount != nil {
		data.TaxType = "OTHER"
	}

	return &data, nil
}

// normaliseDate returns s as YYYY-MM-DD, or today when it cannot be read.
func normaliseDate(s string) string {
	s = strings.TrimSpace(s)
	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return time.Now().Format("2006-01-02")
}

// normaliseTime returns s as HH:MM, or empty when it cannot be read.
func normaliseTime(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, format := range timeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.Format("15:04")
		}
	}
	return ""
}
