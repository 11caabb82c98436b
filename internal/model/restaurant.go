package model

import (
    "errors"
    "strings"
    "time"
)

// Restaurant represents a venue that accepts table reservations.  The
// system tracks capacity only as an aggregate seat count; there is no
// per-table layout.  SeatsAvailable is decremented when a booking is
// made and incremented when an active booking is cancelled.
//
// Fields:
//  ID             – primary key identifier.
//  Name           – display name.
//  Location       – free-form address or area.
//  Cuisine        – list of cuisine tags (stored as JSON).
//  TotalSeats     – seat capacity of the restaurant.
//  SeatsAvailable – seats not held by an active booking.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Restaurant struct {
    ID             uint64    `json:"id"`             // restaurants.id
    Name           string    `json:"name"`           // restaurants.name
    Location       string    `json:"location"`       // restaurants.location
    Cuisine        []string  `json:"cuisine"`        // restaurants.cuisine (JSON)
    TotalSeats     uint32    `json:"totalSeats"`     // restaurants.total_seats
    SeatsAvailable uint32    `json:"seatsAvailable"` // restaurants.seats_available
    CreatedAt      time.Time `json:"createdAt"`      // restaurants.created_at
    UpdatedAt      time.Time `json:"updatedAt"`      // restaurants.updated_at
}

// Validation failures reported by (*Restaurant).Validate.
var (
    ErrRestaurantName     = errors.New("name is required")
    ErrRestaurantLocation = errors.New("location is required")
    ErrRestaurantCuisine  = errors.New("at least one cuisine tag is required")
    ErrRestaurantCapacity = errors.New("totalSeats must be greater than zero")
    ErrSeatsOutOfRange    = errors.New("seatsAvailable must be between 0 and totalSeats")
)

// Validate normalises the restaurant's text fields and checks the seat
// invariant 0 <= SeatsAvailable <= TotalSeats.
func (r *Restaurant) Validate() error {
    r.Name = strings.TrimSpace(r.Name)
    r.Location = strings.TrimSpace(r.Location)
    if r.Name == "" {
        return ErrRestaurantName
    }
    if r.Location == "" {
        return ErrRestaurantLocation
    }
    tags := make([]string, 0, len(r.Cuisine))
    for _, c := range r.Cuisine {
        if c = strings.TrimSpace(c); c != "" {
            tags = append(tags, c)
        }
    }
    if len(tags) == 0 {
        return ErrRestaurantCuisine
    }
    r.Cuisine = tags
    if r.TotalSeats == 0 {
        return ErrRestaurantCapacity
    }
    if r.SeatsAvailable > r.TotalSeats {
        return ErrSeatsOutOfRange
    }
    return nil
}
