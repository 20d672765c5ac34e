package geo

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/middleware"
	"github.com/richxcame/dispatch/pkg/models"
	"github.com/richxcame/dispatch/pkg/validation"
)

// Handler exposes location endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a geo handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires location routes onto the v1 group.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.POST("/drivers/:id/location", h.UpdateLocation)
	v1.GET("/drivers/nearby", h.Nearby)
}

// UpdateLocation ingests a driver telemetry sample over REST. The WebSocket
// command is the preferred path; this exists for clients without a socket.
func (h *Handler) UpdateLocation(c *gin.Context) {
	driverID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid driver id", err))
		return
	}

	if uid, err := middleware.GetUserID(c); err == nil && uid != driverID {
		common.HandleError(c, common.NewForbiddenError("cannot report location for another driver"))
		return
	}

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid request body", err))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		common.HandleError(c, common.NewValidationError(err.Error()))
		return
	}

	if err := h.service.UpdateLocation(c.Request.Context(), driverID, &req); err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"status": "accepted"})
}

// Nearby returns the closest online drivers of a vehicle class.
func (h *Handler) Nearby(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid lat", err))
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid lng", err))
		return
	}

	class := models.VehicleClass(c.DefaultQuery("vehicle_class", string(models.VehicleClassEconomy)))

	radiusKm := 5.0
	if v := c.Query("radius_km"); v != "" {
		if radiusKm, err = strconv.ParseFloat(v, 64); err != nil || radiusKm <= 0 {
			common.HandleError(c, common.NewBadRequestError("invalid radius_km", err))
			return
		}
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			common.HandleError(c, common.NewBadRequestError("invalid limit", err))
			return
		}
	}

	candidates, err := h.service.NearbyDrivers(c.Request.Context(), class, lat, lng, radiusKm, limit)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	type nearbyDriver struct {
		DriverID   uuid.UUID `json:"driver_id"`
		DistanceKm float64   `json:"distance_km"`
	}
	result := make([]nearbyDriver, 0, len(candidates))
	for _, cand := range candidates {
		result = append(result, nearbyDriver{DriverID: cand.DriverID, DistanceKm: cand.DistanceKm})
	}

	common.SuccessResponse(c, gin.H{"drivers": result})
}
