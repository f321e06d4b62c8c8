package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/citydrive/carshare-backend/account"
	"github.com/citydrive/carshare-backend/internal/middleware"
	"github.com/citydrive/carshare-backend/ride"
	"github.com/citydrive/carshare-backend/vehicle"
)

type startRideRequest struct {
	Plate string `json:"plate" binding:"required"`
}

type rideStateResponse struct {
	InProgress     bool              `json:"inProgress"`
	Vehicle        *vehicle.Snapshot `json:"vehicle,omitempty"`
	StartedAt      int64             `json:"startedAt,omitempty"`
	StartedDisplay string            `json:"startedDisplay,omitempty"`
	Elapsed        string            `json:"elapsed,omitempty"`
	RunningTotal   int               `json:"runningTotal,omitempty"`
}

type receiptResponse struct {
	Vehicle vehicle.Snapshot `json:"vehicle"`
	Elapsed string           `json:"elapsed"`
	Total   int              `json:"total"`
	Date    string           `json:"date"`
	EndedAt int64            `json:"endedAt"`
}

func toReceiptResponse(r account.Receipt) receiptResponse {
	return receiptResponse{
		Vehicle: r.Vehicle,
		Elapsed: r.Elapsed,
		Total:   r.Total,
		Date:    r.Date,
		EndedAt: r.EndedAt,
	}
}

func (a *API) startRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req startRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	userID, _ := middleware.GetUserID(c)

	v, err := a.cfg.Vehicles.GetVehicle(c.Request.Context(), req.Plate)
	if err != nil {
		if errors.Is(err, vehicle.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "VEHICLE_NOT_FOUND", "message": "Vehicle not found"})
			return
		}
		logger.Error("Failed to get vehicle", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	r, err := a.cfg.Rides.Start(c.Request.Context(), userID, v.Snap())
	if err != nil {
		if plate, ok := ride.PlateFromRideInProgressError(err); ok {
			logger.Info("User already has an active ride", "plate", plate)
			c.JSON(http.StatusConflict, gin.H{"code": "RIDE_IN_PROGRESS", "message": "Please end your current ride before starting a new"})
			return
		}
		logger.Error("Failed to start ride", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	middleware.RidesStarted.Inc()
	c.JSON(http.StatusOK, rideStateResponse{
		InProgress:     true,
		Vehicle:        &r.Vehicle,
		StartedAt:      r.StartedAt,
		StartedDisplay: r.StartedDisplay,
	})
}

func (a *API) currentRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	userID, _ := middleware.GetUserID(c)

	p, err := a.cfg.Rides.Progress(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ride.ErrNoActiveRide) {
			c.JSON(http.StatusOK, rideStateResponse{InProgress: false})
			return
		}
		logger.Error("Failed to get current ride", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, rideStateResponse{
		InProgress:     true,
		Vehicle:        &p.Vehicle,
		StartedAt:      p.StartedAt,
		StartedDisplay: p.StartedDisplay,
		Elapsed:        p.Elapsed,
		RunningTotal:   p.RunningTotal,
	})
}

func (a *API) endRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	userID, _ := middleware.GetUserID(c)

	rcpt, ended, err := a.cfg.Rides.End(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to end ride", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// Ending with no active ride is a no-op, not an error.
	if !ended {
		c.JSON(http.StatusOK, gin.H{"ended": false})
		return
	}

	middleware.RidesEnded.Inc()
	c.JSON(http.StatusOK, gin.H{"ended": true, "receipt": toReceiptResponse(rcpt)})
}

func (a *API) historyHandler(c *gin.Context) {
	acct, _, ok := a.getAccount(c)
	if !ok {
		return
	}

	responses := make([]receiptResponse, 0, len(acct.History))
	for _, r := range acct.History {
		responses = append(responses, toReceiptResponse(r))
	}
	c.JSON(http.StatusOK, responses)
}
