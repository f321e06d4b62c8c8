// Package vehicle holds the rentable fleet: reference data served to the
// map view and the snapshots carried on rides and reservations.
package vehicle

import "context"

// FuelType distinguishes how a car is powered. Electric cars get a different
// map marker and charge level display in the UI.
type FuelType string

const (
	Electric FuelType = "Electric"
	Petrol   FuelType = "Petrol"
)

// Vehicle represents a car which can be rented or reserved.
type Vehicle struct {
	// Brand is the display name of the car (e.g. "Renault Zoe")
	Brand string `db:"brand" json:"brand"`
	// Plate is the registration plate shown on the car (e.g. "AB 12345")
	Plate    string   `db:"plate" json:"plate"`
	FuelType FuelType `db:"fuel_type" json:"fuelType"`
	// FuelLeft is the display string for the remaining charge or fuel
	// (e.g. "54% battery")
	FuelLeft string `db:"fuel_left" json:"fuelLeft"`
	// PricePerMinute is the rental rate in kr. per minute
	PricePerMinute int    `db:"price_per_minute" json:"pricePerMinute"`
	PictureURL     string `db:"picture_url" json:"pictureUrl"`

	Lat float64 `db:"lat" json:"latitude"`
	Lng float64 `db:"lng" json:"longitude"`
}

// Snapshot is the subset of vehicle data carried on rides, reservations and
// receipts. It is copied at rent/reserve time and never refreshed.
type Snapshot struct {
	Brand          string `json:"brand"`
	Plate          string `json:"plate"`
	FuelLeft       string `json:"fuelLeft"`
	PricePerMinute int    `json:"pricePerMinute"`
	PictureURL     string `json:"pictureUrl"`
}

// Snap copies the fields of v that ride records keep.
func (v Vehicle) Snap() Snapshot {
	return Snapshot{
		Brand:          v.Brand,
		Plate:          v.Plate,
		FuelLeft:       v.FuelLeft,
		PricePerMinute: v.PricePerMinute,
		PictureURL:     v.PictureURL,
	}
}

// Source provides vehicle lookups for the API and the reservation registry.
type Source interface {
	GetVehicles(ctx context.Context) ([]Vehicle, error)
	GetVehicle(ctx context.Context, plate string) (Vehicle, error)
}
