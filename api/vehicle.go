package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/citydrive/carshare-backend/internal/middleware"
	"github.com/citydrive/carshare-backend/vehicle"
)

type vehicleResponse struct {
	Brand          string  `json:"brand"`
	Plate          string  `json:"plate"`
	FuelType       string  `json:"fuelType"`
	FuelLeft       string  `json:"fuelLeft"`
	PricePerMinute int     `json:"pricePerMinute"`
	PictureURL     string  `json:"pictureUrl"`
	Lat            float64 `json:"latitude"`
	Lng            float64 `json:"longitude"`
}

func toVehicleResponse(v vehicle.Vehicle) vehicleResponse {
	return vehicleResponse{
		Brand:          v.Brand,
		Plate:          v.Plate,
		FuelType:       string(v.FuelType),
		FuelLeft:       v.FuelLeft,
		PricePerMinute: v.PricePerMinute,
		PictureURL:     v.PictureURL,
		Lat:            v.Lat,
		Lng:            v.Lng,
	}
}

func (a *API) vehiclesNearbyHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	vehicles, err := a.cfg.Vehicles.GetVehicles(c.Request.Context())
	if err != nil {
		logger.Error("Failed to get vehicles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]vehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		responses = append(responses, toVehicleResponse(v))
	}
	c.JSON(http.StatusOK, responses)
}

func (a *API) vehicleHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	v, err := a.cfg.Vehicles.GetVehicle(c.Request.Context(), c.Param("plate"))
	if err != nil {
		if errors.Is(err, vehicle.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "VEHICLE_NOT_FOUND", "message": "Vehicle not found"})
			return
		}
		logger.Error("Failed to get vehicle", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toVehicleResponse(v))
}
