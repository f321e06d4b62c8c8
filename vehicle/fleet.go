package vehicle

import "context"

// Fleet is an in-memory Source backed by a fixed catalog. It serves the demo
// deployment and tests, where no database is wanted.
type Fleet struct {
	vehicles []Vehicle
}

func NewFleet(vehicles []Vehicle) *Fleet {
	return &Fleet{vehicles: vehicles}
}

func (f *Fleet) GetVehicles(_ context.Context) ([]Vehicle, error) {
	out := make([]Vehicle, len(f.vehicles))
	copy(out, f.vehicles)
	return out, nil
}

func (f *Fleet) GetVehicle(_ context.Context, plate string) (Vehicle, error) {
	for _, v := range f.vehicles {
		if v.Plate == plate {
			return v, nil
		}
	}
	return Vehicle{}, ErrNotFound
}

// DemoFleet returns the cars shown on the demo map.
func DemoFleet() []Vehicle {
	return []Vehicle{
		{
			Brand:          "Renault Zoe",
			Plate:          "AB 12345",
			FuelType:       Electric,
			FuelLeft:       "54% battery",
			PricePerMinute: 4,
			PictureURL:     "images/carPhoto.jpeg",
			Lat:            55.66006357924885,
			Lng:            12.591008245588563,
		},
		{
			Brand:          "VW e-Up!",
			Plate:          "CD 67890",
			FuelType:       Electric,
			FuelLeft:       "81% battery",
			PricePerMinute: 3,
			PictureURL:     "images/carPhoto2.jpeg",
			Lat:            55.676098,
			Lng:            12.568337,
		},
		{
			Brand:          "Toyota Aygo",
			Plate:          "EF 11223",
			FuelType:       Petrol,
			FuelLeft:       "23l",
			PricePerMinute: 2,
			PictureURL:     "images/carPhoto3.jpeg",
			Lat:            55.686724,
			Lng:            12.549616,
		},
	}
}
