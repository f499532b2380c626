package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// receiptScanPrompt is the shared prompt used by all LLM providers for scanning receipts
const receiptScanPrompt = `You are reading a receipt or invoice from a business trip. Read all text in the image and extract:

1. **Merchant**: the business name printed in the header, e.g. "Hilton Berlin", "Uber", "Starbucks".
2. **Date**: the transaction date, converted to YYYY-MM-DD.
3. **Time**: the transaction time in 24 hour HH:MM, if printed.
4. **Amount**: the final total actually paid (grand total, amount due), as a number.
5. **Currency**: the ISO 4217 code of the total, e.g. "USD", "EUR", "CAD". Infer it from symbols and the address if needed.
6. **Tax**: the tax amount, the tax type (one of GST, HST, PST, VAT, SALES_TAX, OTHER, NONE) and the tax rate in percent.

Return ONLY valid JSON in this exact format:
{
  "merchant": "Business Name",
  "date": "YYYY-MM-DD",
  "time": "HH:MM",
  "amount": 0.00,
  "currency": "USD",
  "tax_amount": 0.00,
  "tax_type": "VAT",
  "tax_rate": 0.0
}

Important:
- Numbers must be JSON numbers, not strings
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// pdfToImage renders the first page of a PDF; receipts are almost always one page.
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeImage decodes JPEG, PNG, GIF and HEIC/HEIF data. Go's image package has
// no HEIC decoder, so iPhone photos go through gen2brain/heic.
func decodeImage(data []byte, mimeType string) (image.Image, error) {
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("unsupported image format (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks the ISO-BMFF ftyp box for a HEIC/HEIF brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// convertToPNG converts PDFs and non-PNG images to PNG.
// Returns the PNG data and whether conversion occurred.
func convertToPNG(data []byte, mimeType string) ([]byte, bool, error) {
	var (
		img image.Image
		err error
	)
	switch {
	case mimeType == "application/pdf":
		img, err = pdfToImage(data)
		if err != nil {
			return nil, false, fmt.Errorf("converting PDF to image: %w", err)
		}
	case mimeType != "image/png" || isHEICFormat(data):
		img, err = decodeImage(data, mimeType)
		if err != nil {
			return nil, false, fmt.Errorf("converting image to PNG: %w", err)
		}
	default:
		return data, false, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), true, nil
}

// PrepareImage normalizes the MIME type and converts PDFs, HEIC and other
// image formats to PNG. Returns the PNG data and whether conversion occurred.
func PrepareImage(imageData []byte, contentType string) ([]byte, bool, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return convertToPNG(imageData, mimeType)
}
