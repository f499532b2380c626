// Package legacy imports receipts from an hsa-tracker BoltDB file.
package legacy

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucket  = "receipts"
	importedBucket = "imported"
)

// Receipt is a receipt as stored by hsa-tracker
type Receipt struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Date            time.Time `json:"date"`
	Amount          int       `json:"amount"` // Amount in cents
	Filename        string    `json:"filename"`
	ContentType     string    `json:"content_type"`
	ReimbursementID string    `json:"reimbursement_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BoltSource reads legacy receipts and tracks which ones were imported
type BoltSource struct {
	db *bbolt.DB
}

// OpenBolt opens an existing hsa-tracker database. The file is never created.
func OpenBolt(path string) (*BoltSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(receiptBucket)) == nil {
			return fmt.Errorf("bucket %q not found", receiptBucket)
		}
		_, err := tx.CreateBucketIfNotExists([]byte(importedBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing buckets: %w", err)
	}

	return &BoltSource{db: db}, nil
}

// Receipts returns every stored receipt
func (b *BoltSource) Receipts() ([]Receipt, error) {
	receipts := make([]Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt %s: %w", k, err)
			}
			if receipt.ID == "" {
				receipt.ID = string(k)
			}
			receipts = append(receipts, receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// Imported returns the expense id a receipt was imported as, or false
func (b *BoltSource) Imported(receiptID string) (int64, bool, error) {
	var (
		id    int64
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(importedBucket)).Get([]byte(receiptID))
		if v == nil {
			return nil
		}
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("parsing imported id for %s: %w", receiptID, err)
		}
		id, found = parsed, true
		return nil
	})
	return id, found, err
}

// MarkImported records that receiptID was imported as expenseID
func (b *BoltSource) MarkImported(receiptID string, expenseID int64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(importedBucket)).Put([]byte(receiptID), []byte(strconv.FormatInt(expenseID, 10)))
	})
}

// Close closes the database file
func (b *BoltSource) Close() error {
	return b.db.Close()
}
