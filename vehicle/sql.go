package vehicle

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/citydrive/carshare-backend/internal/database"
)

var ErrNotFound = errors.New("vehicle not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetVehicles(ctx context.Context) ([]Vehicle, error) {
	var vehicles []Vehicle
	err := r.db.SelectContext(ctx, &vehicles, r.db.Rebind(getVehicles))
	return vehicles, err
}

const getVehicles = `SELECT * FROM vehicles`

func (r *Repository) GetVehicle(ctx context.Context, plate string) (Vehicle, error) {
	var v Vehicle

	err := r.db.GetContext(ctx, &v, r.db.Rebind(getVehicle), plate)
	if database.IsNoRows(err) {
		return v, ErrNotFound
	}

	return v, err
}

const getVehicle = `SELECT * FROM vehicles WHERE plate = $1`

// Seed inserts the demo fleet into an empty vehicles table. Existing rows
// are left alone.
func (r *Repository) Seed(ctx context.Context) error {
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(countVehicles)); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	for _, v := range DemoFleet() {
		_, err := r.db.ExecContext(ctx, r.db.Rebind(insertVehicle),
			v.Plate, v.Brand, v.FuelType, v.FuelLeft, v.PricePerMinute, v.PictureURL, v.Lat, v.Lng)
		if err != nil && !database.IsUniqueViolation(err) {
			return err
		}
	}
	return nil
}

const countVehicles = `SELECT count(*) FROM vehicles`

const insertVehicle = `
INSERT INTO vehicles (plate, brand, fuel_type, fuel_left, price_per_minute, picture_url, lat, lng)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
