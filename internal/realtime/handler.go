package realtime

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/metrics"
	"github.com/richxcame/dispatch/pkg/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS layer in front.
		return true
	},
}

// Handler upgrades websocket connections and exposes hub stats.
type Handler struct {
	hub *websocket.Hub
}

// NewHandler creates a realtime handler.
func NewHandler(hub *websocket.Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes wires the websocket endpoint onto the engine root.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.Connect)
	router.GET("/ws/stats", h.Stats)
}

// Connect upgrades the request and registers the client under its user id.
// Identity comes from query parameters; role defaults to rider.
func (h *Handler) Connect(c *gin.Context) {
	userID := c.Query("user_id")
	if _, err := uuid.Parse(userID); err != nil {
		common.HandleError(c, common.NewBadRequestError("user_id query parameter must be a UUID", err))
		return
	}

	role := c.Query("user_type")
	if role != "driver" {
		role = "rider"
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := websocket.NewClient(userID, conn, h.hub, role)
	h.hub.Register <- client

	metrics.WebsocketConnections.Inc()
	go client.WritePump()
	go func() {
		defer metrics.WebsocketConnections.Dec()
		client.ReadPump()
	}()

	logger.Info("websocket client connected",
		zap.String("user_id", userID),
		zap.String("role", role),
	)
}

// Stats reports hub occupancy.
func (h *Handler) Stats(c *gin.Context) {
	common.SuccessResponse(c, gin.H{
		"clients": h.hub.GetClientCount(),
		"rooms":   h.hub.GetRoomCount(),
	})
}
