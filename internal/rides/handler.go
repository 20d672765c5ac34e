package rides

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/middleware"
	"github.com/richxcame/dispatch/pkg/models"
)

// Handler exposes ride endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a rides handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires ride routes onto the v1 group. The idempotency
// middleware guards ride creation only.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup, idempotency gin.HandlerFunc) {
	v1.POST("/rides", idempotency, h.CreateRide)
	v1.GET("/rides/:id", h.GetRide)
	v1.POST("/rides/:id/cancel", h.CancelRide)
	v1.PATCH("/rides/:id/status", h.UpdateStatus)
}

func rideIDParam(c *gin.Context) (uuid.UUID, bool) {
	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid ride id", err))
		return uuid.Nil, false
	}
	return rideID, true
}

// CreateRide requests a new ride and returns it with the fare quote.
func (h *Handler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid request body", err))
		return
	}

	ride, err := h.service.CreateRide(c.Request.Context(), &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.CreatedResponse(c, ride)
}

// GetRide returns a ride by id.
func (h *Handler) GetRide(c *gin.Context) {
	rideID, ok := rideIDParam(c)
	if !ok {
		return
	}

	ride, err := h.service.GetRide(c.Request.Context(), rideID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, ride)
}

// CancelRide cancels a ride on behalf of the calling party.
func (h *Handler) CancelRide(c *gin.Context) {
	rideID, ok := rideIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional.
	_ = c.ShouldBindJSON(&req)

	cancelledBy := middleware.GetUserType(c)
	if cancelledBy == "" {
		cancelledBy = "system"
	}

	ride, err := h.service.CancelRide(c.Request.Context(), rideID, req.Reason, cancelledBy)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, ride)
}

// UpdateStatus advances the ride through the driver-progress states. Only
// en-route and arrived are settable here; assignment, trip start and
// completion have their own endpoints.
func (h *Handler) UpdateStatus(c *gin.Context) {
	rideID, ok := rideIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Status models.RideStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid request body", err))
		return
	}

	switch req.Status {
	case models.RideStatusDriverEnRoute, models.RideStatusDriverArrived:
	default:
		common.HandleError(c, common.NewBadRequestError("status not settable via this endpoint", nil))
		return
	}

	var expectedVersion *int64
	if v := c.Query("version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			common.HandleError(c, common.NewBadRequestError("invalid version", err))
			return
		}
		expectedVersion = &n
	}

	ride, err := h.service.Transition(c.Request.Context(), rideID, req.Status, expectedVersion)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, ride)
}
