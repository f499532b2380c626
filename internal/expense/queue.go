package expense

import (
	"context"
	"strings"

	"github.com/zombor/trip-expenses/internal/database"
)

const entityQueue = "queue item"

// QueueRepository tracks receipt images waiting for extraction
type QueueRepository struct {
	conn Conn
}

// NewQueueRepository creates a QueueRepository
func NewQueueRepository(conn Conn) *QueueRepository {
	return &QueueRepository{conn: conn}
}

// Enqueue records a stored image as pending
func (r *QueueRepository) Enqueue(ctx context.Context, imagePath, contentType string) (*QueueItem, error) {
	if strings.TrimSpace(imagePath) == "" {
		return nil, &database.ValidationError{Entity: entityQueue, Fields: map[string]string{"image_path": "required"}}
	}

	a := &database.Assignments{}
	a.Set("image_path", imagePath)
	if contentType != "" {
		a.Set("content_type", contentType)
	}
	id, err := insert(ctx, r.conn, entityQueue, "processing_queue", a)
	if err != nil {
		return nil, err
	}
	item, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &database.CreationError{Entity: entityQueue}
	}
	return item, nil
}

// Get returns the queue item or nil if it does not exist
func (r *QueueRepository) Get(ctx context.Context, id int64) (*QueueItem, error) {
	row, err := selectRow(ctx, r.conn, entityQueue, "get", "SELECT * FROM processing_queue WHERE id = ?", id)
	if err != nil || row == nil {
		return nil, err
	}
	return mapQueueItem(row)
}

// List returns queue items oldest first. An empty status lists every item.
func (r *QueueRepository) List(ctx context.Context, status QueueStatus) ([]QueueItem, error) {
	query := "SELECT * FROM processing_queue"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	rows, err := selectRows(ctx, r.conn, entityQueue, "list", query+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, err
	}
	return mapAll(rows, mapQueueItem)
}

// ClaimNext marks the oldest pending item as processing and returns it, or nil
// when nothing is pending. The claim is a single statement so two workers never
// receive the same item.
func (r *QueueRepository) ClaimNext(ctx context.Context) (*QueueItem, error) {
	return r.claim(ctx, "SELECT id FROM processing_queue WHERE status = 'pending' ORDER BY created_at, id LIMIT 1")
}

// Claim marks one specific pending item as processing. It returns nil when the
// item does not exist or is no longer pending.
func (r *QueueRepository) Claim(ctx context.Context, id int64) (*QueueItem, error) {
	return r.claim(ctx, "SELECT id FROM processing_queue WHERE id = ? AND status = 'pending'", id)
}

func (r *QueueRepository) claim(ctx context.Context, target string, args ...any) (*QueueItem, error) {
	row, err := selectRow(ctx, r.conn, entityQueue, "claim", `UPDATE processing_queue
SET status = 'processing', attempts = attempts + 1, error_message = NULL
WHERE id = (`+target+`)
RETURNING *`, args...)
	if err != nil || row == nil {
		return nil, err
	}
	return mapQueueItem(row)
}

// Complete marks an item as done and links the expense created from it
func (r *QueueRepository) Complete(ctx context.Context, id, expenseID int64) error {
	return r.finish(ctx, id, "complete",
		"UPDATE processing_queue SET status = 'completed', expense_id = ?, error_message = NULL WHERE id = ?",
		expenseID, id)
}

// Fail marks an item as failed with the reason
func (r *QueueRepository) Fail(ctx context.Context, id int64, message string) error {
	return r.finish(ctx, id, "fail",
		"UPDATE processing_queue SET status = 'failed', error_message = ? WHERE id = ?",
		message, id)
}

// Retry puts a failed item back in the pending state
func (r *QueueRepository) Retry(ctx context.Context, id int64) error {
	return r.finish(ctx, id, "retry",
		"UPDATE processing_queue SET status = 'pending' WHERE id = ? AND status = 'failed'",
		id)
}

func (r *QueueRepository) finish(ctx context.Context, id int64, action, query string, args ...any) error {
	res, err := exec(ctx, r.conn, entityQueue, action, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return database.Wrap(entityQueue, action, err)
	}
	if n == 0 {
		return &database.NotFoundError{Entity: entityQueue, ID: id}
	}
	return nil
}
