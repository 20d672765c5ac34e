package drivers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/middleware"
	"github.com/richxcame/dispatch/pkg/models"
	"github.com/richxcame/dispatch/pkg/validation"
)

// RideFinder answers ride lookups for driver-facing endpoints. Implemented
// by the rides service.
type RideFinder interface {
	ActiveRideByDriver(ctx context.Context, driverID uuid.UUID) (*models.Ride, error)
	RidesByDriver(ctx context.Context, driverID uuid.UUID, status *models.RideStatus, limit, offset int) ([]models.Ride, int64, error)
}

// Handler exposes driver endpoints.
type Handler struct {
	service *Service
	rides   RideFinder
}

// NewHandler creates a drivers handler.
func NewHandler(service *Service, rides RideFinder) *Handler {
	return &Handler{service: service, rides: rides}
}

// RegisterRoutes wires driver routes onto the v1 group. Accept/decline and
// pending offers are registered by the dispatch handler.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.GET("/drivers/:id", h.GetDriver)
	v1.PATCH("/drivers/:id/status", h.UpdateStatus)
	v1.GET("/drivers/:id/current-ride", h.CurrentRide)
	v1.GET("/drivers/:id/rides", h.RideHistory)
}

func driverIDParam(c *gin.Context) (uuid.UUID, bool) {
	driverID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid driver id", err))
		return uuid.Nil, false
	}
	return driverID, true
}

// GetDriver returns a driver profile.
func (h *Handler) GetDriver(c *gin.Context) {
	driverID, ok := driverIDParam(c)
	if !ok {
		return
	}

	driver, err := h.service.GetDriver(c.Request.Context(), driverID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, driver)
}

// UpdateStatus moves a driver between online and offline.
func (h *Handler) UpdateStatus(c *gin.Context) {
	driverID, ok := driverIDParam(c)
	if !ok {
		return
	}

	if uid, err := middleware.GetUserID(c); err == nil && uid != driverID {
		common.HandleError(c, common.NewForbiddenError("cannot change status of another driver"))
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid request body", err))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		common.HandleError(c, common.NewValidationError(err.Error()))
		return
	}

	driver, err := h.service.UpdateStatus(c.Request.Context(), driverID, req.Status)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, driver)
}

// CurrentRide returns the driver's active ride, if any.
func (h *Handler) CurrentRide(c *gin.Context) {
	driverID, ok := driverIDParam(c)
	if !ok {
		return
	}

	ride, err := h.rides.ActiveRideByDriver(c.Request.Context(), driverID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, ride)
}

// RideHistory lists the driver's rides, newest first.
func (h *Handler) RideHistory(c *gin.Context) {
	driverID, ok := driverIDParam(c)
	if !ok {
		return
	}

	limit, offset := paginationParams(c)

	var status *models.RideStatus
	if v := c.Query("status"); v != "" {
		st := models.RideStatus(v)
		status = &st
	}

	rides, total, err := h.rides.RidesByDriver(c.Request.Context(), driverID, status, limit, offset)
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

func paginationParams(c *gin.Context) (limit, offset int) {
	limit = 20
	offset = 0
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
	return limit, offset
}
