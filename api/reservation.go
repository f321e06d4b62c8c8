package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/citydrive/carshare-backend/account"
	"github.com/citydrive/carshare-backend/internal/middleware"
	"github.com/citydrive/carshare-backend/reservation"
	"github.com/citydrive/carshare-backend/ride"
	"github.com/citydrive/carshare-backend/vehicle"
)

type createReservationRequest struct {
	Plate  string `json:"plate" binding:"required"`
	Date   string `json:"date" binding:"required"`
	Hour   *int   `json:"hour" binding:"required"`
	Minute *int   `json:"minute" binding:"required"`
}

type editReservationRequest struct {
	Date   string `json:"date" binding:"required"`
	Hour   *int   `json:"hour" binding:"required"`
	Minute *int   `json:"minute" binding:"required"`
}

type reservationResponse struct {
	ID      uuid.UUID        `json:"id"`
	Vehicle vehicle.Snapshot `json:"vehicle"`
	Date    string           `json:"date"`
	Hour    int              `json:"hour"`
	Minute  int              `json:"minute"`
	Slot    string           `json:"slot"`
}

func toReservationResponse(r account.Reservation) reservationResponse {
	return reservationResponse{
		ID:      r.ID,
		Vehicle: r.Vehicle,
		Date:    r.Date,
		Hour:    r.Hour,
		Minute:  r.Minute,
		Slot:    r.Slot(),
	}
}

func (a *API) getReservationsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	userID, _ := middleware.GetUserID(c)

	reservations, err := a.cfg.Reservations.List(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to list reservations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]reservationResponse, 0, len(reservations))
	for _, r := range reservations {
		responses = append(responses, toReservationResponse(r))
	}
	c.JSON(http.StatusOK, responses)
}

func (a *API) createReservationHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req createReservationRequest
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

	res, err := a.cfg.Reservations.Reserve(c.Request.Context(), userID, v, req.Date, *req.Hour, *req.Minute)
	if err != nil {
		a.reservationError(c, err)
		return
	}

	middleware.ReservationsCreated.Inc()
	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (a *API) editReservationHandler(c *gin.Context) {
	var req editReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	id, ok := reservationID(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(c)

	res, err := a.cfg.Reservations.Edit(c.Request.Context(), userID, id, req.Date, *req.Hour, *req.Minute)
	if err != nil {
		a.reservationError(c, err)
		return
	}

	c.JSON(http.StatusOK, toReservationResponse(res))
}

func (a *API) cancelReservationHandler(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(c)

	if err := a.cfg.Reservations.Cancel(c.Request.Context(), userID, id); err != nil {
		a.reservationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) startReservationHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, ok := reservationID(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(c)

	r, err := a.cfg.Reservations.StartNow(c.Request.Context(), userID, id)
	if err != nil {
		if ride.IsRideInProgress(err) {
			c.JSON(http.StatusConflict, gin.H{"code": "RIDE_IN_PROGRESS", "message": "Please end your current ride before starting a new"})
			return
		}
		if errors.Is(err, reservation.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "RESERVATION_NOT_FOUND", "message": "Reservation not found"})
			return
		}
		logger.Error("Failed to start reserved ride", "error", err)
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

func (a *API) countdownHandler(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(c)

	remaining, err := a.cfg.Reservations.Countdown(c.Request.Context(), userID, id)
	if err != nil {
		a.reservationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"remainingSeconds": int64(remaining.Seconds())})
}

func reservationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid reservation id"})
		return uuid.Nil, false
	}
	return id, true
}

func (a *API) reservationError(c *gin.Context, err error) {
	logger := middleware.GetLogger(c)

	switch {
	case errors.Is(err, reservation.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "RESERVATION_NOT_FOUND", "message": "Reservation not found"})
	case errors.Is(err, reservation.ErrSlotTaken):
		c.JSON(http.StatusConflict, gin.H{"code": "SLOT_TAKEN", "message": "That time slot is already reserved"})
	case errors.Is(err, reservation.ErrInvalidSlot):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_SLOT", "message": "Invalid reservation time"})
	default:
		logger.Error("Reservation operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
