package trips

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/validation"
)

// Handler exposes trip endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a trips handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires trip routes onto the v1 group.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.POST("/trips/start", h.StartTrip)
	v1.POST("/trips/:id/end", h.EndTrip)
	v1.GET("/trips/:id", h.GetTrip)
}

func tripIDParam(c *gin.Context) (uuid.UUID, bool) {
	tripID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid trip id", err))
		return uuid.Nil, false
	}
	return tripID, true
}

// StartTrip begins the physical trip once the driver has arrived.
func (h *Handler) StartTrip(c *gin.Context) {
	var req StartTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid request body", err))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		common.HandleError(c, common.NewValidationError(err.Error()))
		return
	}

	trip, err := h.service.StartTrip(c.Request.Context(), req.RideID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.CreatedResponse(c, trip)
}

// EndTrip completes a trip and returns it with the final fare breakdown.
func (h *Handler) EndTrip(c *gin.Context) {
	tripID, ok := tripIDParam(c)
	if !ok {
		return
	}

	var req EndTripRequest
	// Body is optional; all fields have fallbacks.
	_ = c.ShouldBindJSON(&req)
	if err := validation.ValidateStruct(&req); err != nil {
		common.HandleError(c, common.NewValidationError(err.Error()))
		return
	}

	trip, err := h.service.EndTrip(c.Request.Context(), tripID, &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, trip)
}

// GetTrip returns a trip by id.
func (h *Handler) GetTrip(c *gin.Context) {
	tripID, ok := tripIDParam(c)
	if !ok {
		return
	}

	trip, err := h.service.GetTrip(c.Request.Context(), tripID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, trip)
}
