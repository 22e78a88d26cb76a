package handlers

import (
	"net/http"
	"strconv"
	"time"

	"eyeclinic_backend/internal/services"
	"eyeclinic_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ReservationHandler holds the reservation service.
type ReservationHandler struct {
	reservationService services.ReservationService
}

// NewReservationHandler creates a new ReservationHandler.
func NewReservationHandler(rs services.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: rs}
}

// Reserve places a soft hold on an item's available stock.
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var req services.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "Reserve: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}
	req.Actor = actorFrom(c, req.Actor)

	reservation, err := h.reservationService.Reserve(req)
	if err != nil {
		respondServiceError(c, err, "Reserve: Error from reservationService.Reserve")
		return
	}
	c.JSON(http.StatusCreated, reservation)
}

// GetReservation fetches one reservation with its lot allocation breakdown.
func (h *ReservationHandler) GetReservation(c *gin.Context) {
	reservation, err := h.reservationService.Get(c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "GetReservation: Error from reservationService.Get")
		return
	}
	c.JSON(http.StatusOK, reservation)
}

// ListByItem lists reservations of one item, newest first.
func (h *ReservationHandler) ListByItem(c *gin.Context) {
	itemID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	reservations, err := h.reservationService.ListByItem(itemID)
	if err != nil {
		respondServiceError(c, err, "ListByItem: Error from reservationService.ListByItem")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reservations})
}

// Release cancels an active reservation and returns its hold.
func (h *ReservationHandler) Release(c *gin.Context) {
	if err := h.reservationService.Release(c.Param("id"), actorFrom(c, "")); err != nil {
		respondServiceError(c, err, "Release: Error from reservationService.Release")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reservation released"})
}

type fulfillRequest struct {
	SalePrice *float64 `json:"sale_price,omitempty"`
}

// Fulfill converts an active hold into a real stock decrement.
func (h *ReservationHandler) Fulfill(c *gin.Context) {
	var req fulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.LogError(err, "Fulfill: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	if err := h.reservationService.Fulfill(c.Param("id"), actorFrom(c, ""), req.SalePrice); err != nil {
		respondServiceError(c, err, "Fulfill: Error from reservationService.Fulfill")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reservation fulfilled"})
}

// SweepExpired releases active reservations past expiry. Invoked by the
// external scheduler, not by interactive clients.
func (h *ReservationHandler) SweepExpired(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	released, err := h.reservationService.SweepExpired(time.Now(), limit)
	if err != nil {
		respondServiceError(c, err, "SweepExpired: Error from reservationService.SweepExpired")
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": released})
}
