package riders

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/models"
)

// RideFinder answers ride lookups for rider-facing endpoints. Implemented
// by the rides service.
type RideFinder interface {
	ActiveRideByRider(ctx context.Context, riderID uuid.UUID) (*models.Ride, error)
	RidesByRider(ctx context.Context, riderID uuid.UUID, status *models.RideStatus, limit, offset int) ([]models.Ride, int64, error)
}

// Handler exposes rider endpoints.
type Handler struct {
	service *Service
	rides   RideFinder
}

// NewHandler creates a riders handler.
func NewHandler(service *Service, rides RideFinder) *Handler {
	return &Handler{service: service, rides: rides}
}

// RegisterRoutes wires rider routes onto the v1 group.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.GET("/riders/:id", h.GetRider)
	v1.GET("/riders/:id/current-ride", h.CurrentRide)
	v1.GET("/riders/:id/rides", h.RideHistory)
}

func riderIDParam(c *gin.Context) (uuid.UUID, bool) {
	riderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid rider id", err))
		return uuid.Nil, false
	}
	return riderID, true
}

// GetRider returns a rider profile.
func (h *Handler) GetRider(c *gin.Context) {
	riderID, ok := riderIDParam(c)
	if !ok {
		return
	}

	rider, err := h.service.GetRider(c.Request.Context(), riderID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, rider)
}

// CurrentRide returns the rider's active ride, if any.
func (h *Handler) CurrentRide(c *gin.Context) {
	riderID, ok := riderIDParam(c)
	if !ok {
		return
	}

	ride, err := h.rides.ActiveRideByRider(c.Request.Context(), riderID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, ride)
}

// RideHistory lists the rider's rides, newest first.
func (h *Handler) RideHistory(c *gin.Context) {
	riderID, ok := riderIDParam(c)
	if !ok {
		return
	}

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	var status *models.RideStatus
	if v := c.Query("status"); v != "" {
		st := models.RideStatus(v)
		status = &st
	}

	rides, total, err := h.rides.RidesByRider(c.Request.Context(), riderID, status, limit, offset)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, gin.H{"rides": rides}, &common.Meta{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}
