// Package repository contains data access logic separated from HTTP handlers.
// This file defines repository methods for restaurants, including the
// transactional seat counter updates used by the reservation protocol.
package repository

import (
	"context"      // context allows passing deadlines and cancellation signals to DB operations
	"database/sql" // sql provides generic database operations and drivers
	"encoding/json"
	"errors"

	"github.com/iliyamo/table-reservation/internal/model"
)

// RestaurantRepo encapsulates all database queries related to restaurants.
type RestaurantRepo struct {
	db *sql.DB
}

// NewRestaurantRepo constructs a RestaurantRepo with the provided DB handle.
func NewRestaurantRepo(db *sql.DB) *RestaurantRepo {
	return &RestaurantRepo{db: db}
}

// DB exposes the underlying sql.DB so callers can begin transactions
// spanning multiple repositories.
func (r *RestaurantRepo) DB() *sql.DB { return r.db }

const restaurantColumns = `id, name, location, cuisine, total_seats, seats_available, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRestaurant(s rowScanner, rest *model.Restaurant) error {
	var cuisine []byte
	if err := s.Scan(&rest.ID, &rest.Name, &rest.Location, &cuisine,
		&rest.TotalSeats, &rest.SeatsAvailable, &rest.CreatedAt, &rest.UpdatedAt); err != nil {
		return err
	}
	return decodeCuisine(cuisine, rest)
}

// decodeCuisine fills rest.Cuisine from the raw JSON column value.  A
// NULL or empty column yields an empty, non-nil slice.
func decodeCuisine(raw []byte, rest *model.Restaurant) error {
	rest.Cuisine = []string{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &rest.Cuisine)
}

// Create inserts a new restaurant.  On success the ID and DB-default
// timestamps are populated on rest.  Callers are expected to have run
// rest.Validate() first.
func (r *RestaurantRepo) Create(ctx context.Context, rest *model.Restaurant) error {
	cuisine, err := json.Marshal(rest.Cuisine)
	if err != nil {
		return err
	}
	const q = `INSERT INTO restaurants (name, location, cuisine, total_seats, seats_available) VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, rest.Name, rest.Location, string(cuisine), rest.TotalSeats, rest.SeatsAvailable)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	// Query back the full row to populate timestamps
	const sel = `SELECT ` + restaurantColumns + ` FROM restaurants WHERE id = ?`
	return scanRestaurant(r.db.QueryRowContext(ctx, sel, id), rest)
}

// GetByID fetches a restaurant by id.  It returns ErrRestaurantNotFound
// when no row exists.
func (r *RestaurantRepo) GetByID(ctx context.Context, id uint64) (*model.Restaurant, error) {
	const q = `SELECT ` + restaurantColumns + ` FROM restaurants WHERE id = ?`
	var rest model.Restaurant
	if err := scanRestaurant(r.db.QueryRowContext(ctx, q, id), &rest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRestaurantNotFound
		}
		return nil, err
	}
	return &rest, nil
}

// ListAll returns every restaurant ordered by id.
func (r *RestaurantRepo) ListAll(ctx context.Context) ([]model.Restaurant, error) {
	const q = `SELECT ` + restaurantColumns + ` FROM restaurants ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Restaurant, 0)
	for rows.Next() {
		var rest model.Restaurant
		if err := scanRestaurant(rows, &rest); err != nil {
			return nil, err
		}
		out = append(out, rest)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetForUpdateTx reads the restaurant row and locks it until the
// transaction ends.  Concurrent reservations on the same restaurant
// serialize here.
func (r *RestaurantRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Restaurant, error) {
	const q = `SELECT ` + restaurantColumns + ` FROM restaurants WHERE id = ? FOR UPDATE`
	var rest model.Restaurant
	if err := scanRestaurant(tx.QueryRowContext(ctx, q, id), &rest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRestaurantNotFound
		}
		return nil, err
	}
	return &rest, nil
}

// DecrementSeatsTx atomically takes n seats.  The guard in the WHERE
// clause makes the statement a no-op when fewer than n seats remain, in
// which case ErrInsufficientSeats is returned.
func (r *RestaurantRepo) DecrementSeatsTx(ctx context.Context, tx *sql.Tx, id uint64, n uint32) error {
	const q = `UPDATE restaurants
	           SET seats_available = seats_available - ?
	           WHERE id = ? AND seats_available >= ?`
	res, err := tx.ExecContext(ctx, q, n, id, n)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return ErrInsufficientSeats
	}
	return nil
}

// IncrementSeatsTx atomically returns n seats.  It refuses to raise
// seats_available above total_seats and reports ErrSeatOverflow instead.
func (r *RestaurantRepo) IncrementSeatsTx(ctx context.Context, tx *sql.Tx, id uint64, n uint32) error {
	const q = `UPDATE restaurants
	           SET seats_available = seats_available + ?
	           WHERE id = ? AND seats_available + ? <= total_seats`
	res, err := tx.ExecContext(ctx, q, n, id, n)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return ErrSeatOverflow
	}
	return nil
}
