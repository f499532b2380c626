package expense

import (
	"context"
	"log/slog"

	"github.com/zombor/trip-expenses/internal/database"
)

const entityTrip = "trip"

// TripRepository stores trips
type TripRepository struct {
	conn Conn
}

// NewTripRepository creates a TripRepository
func NewTripRepository(conn Conn) *TripRepository {
	return &TripRepository{conn: conn}
}

// Create inserts a trip and returns it as stored
func (r *TripRepository) Create(ctx context.Context, m CreateTripModel) (*Trip, error) {
	if err := validateModel(entityTrip, m); err != nil {
		return nil, err
	}
	if err := checkDateRange(m.StartDate, m.EndDate); err != nil {
		return nil, err
	}

	id, err := insert(ctx, r.conn, entityTrip, "trip", tripInsert(m))
	if err != nil {
		return nil, err
	}

	trip, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, &database.CreationError{Entity: entityTrip}
	}
	slog.Info("Trip created", "id", trip.ID, "name", trip.Name)
	return trip, nil
}

// GetByID returns the trip or nil if it does not exist
func (r *TripRepository) GetByID(ctx context.Context, id int64) (*Trip, error) {
	row, err := selectRow(ctx, r.conn, entityTrip, "get", "SELECT * FROM trip WHERE id = ?", id)
	if err != nil || row == nil {
		return nil, err
	}
	return mapTrip(row)
}

// GetAll lists trips, most recent first. An empty status lists every trip.
func (r *TripRepository) GetAll(ctx context.Context, status TripStatus) ([]Trip, error) {
	query := "SELECT * FROM trip"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY start_date DESC, id DESC"

	rows, err := selectRows(ctx, r.conn, entityTrip, "list", query, args...)
	if err != nil {
		return nil, err
	}
	return mapAll(rows, mapTrip)
}

// Update changes only the supplied fields. With nothing supplied the stored trip
// is returned unchanged.
func (r *TripRepository) Update(ctx context.Context, m UpdateTripModel) (*Trip, error) {
	if err := validateModel(entityTrip, m); err != nil {
		return nil, err
	}

	existing, err := r.GetByID(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &database.NotFoundError{Entity: entityTrip, ID: m.ID}
	}

	start, end := existing.StartDate, existing.EndDate
	if m.StartDate != nil {
		start = *m.StartDate
	}
	if m.EndDate != nil {
		end = *m.EndDate
	}
	if err := checkDateRange(start, end); err != nil {
		return nil, err
	}

	a := tripUpdate(m)
	if a.Len() == 0 {
		return existing, nil
	}
	query, args, err := a.Update("trip", "id", m.ID)
	if err != nil {
		return nil, database.Wrap(entityTrip, "update", err)
	}
	if _, err := exec(ctx, r.conn, entityTrip, "update", query, args...); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, m.ID)
}

// Delete removes a trip. Trips that still own expenses are refused with a
// ConstraintError naming how many.
func (r *TripRepository) Delete(ctx context.Context, id int64) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return &database.NotFoundError{Entity: entityTrip, ID: id}
	}

	n, err := count(ctx, r.conn, entityTrip, "delete", "SELECT COUNT(*) AS n FROM expense WHERE trip_id = ?", id)
	if err != nil {
		return err
	}
	if n > 0 {
		return &database.ConstraintError{Entity: entityTrip, ID: id, Dependent: "expense", Dependents: n}
	}

	if _, err := exec(ctx, r.conn, entityTrip, "delete", "DELETE FROM trip WHERE id = ?", id); err != nil {
		return err
	}
	slog.Info("Trip deleted", "id", id)
	return nil
}
