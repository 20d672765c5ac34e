package dispatch

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/validation"
)

// Handler exposes dispatch endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a dispatch handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires dispatch routes onto the v1 group.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.POST("/rides/:id/match", h.MatchRide)
	v1.POST("/drivers/:id/accept", h.AcceptRide)
	v1.POST("/drivers/:id/decline", h.DeclineRide)
	v1.GET("/drivers/:id/pending-offers", h.PendingOffers)
}

// OfferActionRequest names the ride a driver is responding to.
type OfferActionRequest struct {
	RideID uuid.UUID `json:"ride_id" validate:"required"`
	Reason *string   `json:"reason,omitempty"`
}

func idParam(c *gin.Context, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid "+label+" id", err))
		return uuid.Nil, false
	}
	return id, true
}

// MatchRide triggers a matching round for a ride.
func (h *Handler) MatchRide(c *gin.Context) {
	rideID, ok := idParam(c, "ride")
	if !ok {
		return
	}

	result, err := h.service.FindDrivers(c.Request.Context(), rideID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, result)
}

// AcceptRide resolves a driver's acceptance of a pending offer.
func (h *Handler) AcceptRide(c *gin.Context) {
	driverID, ok := idParam(c, "driver")
	if !ok {
		return
	}

	var req OfferActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid request body", err))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		common.HandleError(c, common.NewValidationError(err.Error()))
		return
	}

	ride, err := h.service.Accept(c.Request.Context(), req.RideID, driverID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, ride)
}

// DeclineRide records a driver's refusal of a pending offer.
func (h *Handler) DeclineRide(c *gin.Context) {
	driverID, ok := idParam(c, "driver")
	if !ok {
		return
	}

	var req OfferActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid request body", err))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		common.HandleError(c, common.NewValidationError(err.Error()))
		return
	}

	if err := h.service.Decline(c.Request.Context(), req.RideID, driverID, req.Reason); err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"declined": true})
}

// PendingOffers lists a driver's live offers.
func (h *Handler) PendingOffers(c *gin.Context) {
	driverID, ok := idParam(c, "driver")
	if !ok {
		return
	}

	offers, err := h.service.PendingOffers(c.Request.Context(), driverID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, offers)
}
