package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/internal/geo"
	"github.com/richxcame/dispatch/pkg/eventbus"
	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/websocket"
)

// route describes where one bus event type lands on the socket layer. The
// user target is the event key (the bus keys notifications by recipient);
// the ride target is the ride room named by the payload's ride_id.
type route struct {
	socketEvent string
	toUser      bool
	toRide      bool
}

// routes is the authoritative bus-to-websocket routing table.
var routes = map[string]route{
	eventbus.EventTypeRideOffer:         {socketEvent: "ride:offer", toUser: true},
	eventbus.EventTypeDriverAssigned:    {socketEvent: "ride:driver_assigned", toUser: true, toRide: true},
	eventbus.EventTypeRideDriverEnRoute: {socketEvent: "ride:driver_en_route", toRide: true},
	eventbus.EventTypeRideDriverArrived: {socketEvent: "ride:driver_arrived", toRide: true},
	eventbus.EventTypeDriverLocation:    {socketEvent: "driver:location:update", toUser: true, toRide: true},
	eventbus.EventTypeTripStarted:       {socketEvent: "trip:started", toRide: true},
	eventbus.EventTypeTripCompleted:     {socketEvent: "trip:completed", toRide: true},
	eventbus.EventTypePaymentCompleted:  {socketEvent: "payment:completed", toUser: true},
	eventbus.EventTypePaymentReceived:   {socketEvent: "payment:received", toUser: true},
	eventbus.EventTypeRideCancelled:     {socketEvent: "ride:cancelled", toUser: true, toRide: true},
}

// Subscriber attaches durable consumers to the bus.
type Subscriber interface {
	Subscribe(ctx context.Context, topic, consumerName string, handler eventbus.HandlerFunc) error
}

// Service bridges the notification stream onto websocket rooms and handles
// inbound socket messages from riders and drivers.
type Service struct {
	hub *websocket.Hub
	geo *geo.Service
}

// NewService creates the realtime service and installs its inbound message
// handlers on the hub.
func NewService(hub *websocket.Hub, geoService *geo.Service) *Service {
	s := &Service{hub: hub, geo: geoService}

	hub.RegisterHandler("register", s.handleRegister)
	hub.RegisterHandler("subscribe:ride", s.handleSubscribeRide)
	hub.RegisterHandler("unsubscribe:ride", s.handleUnsubscribeRide)
	hub.RegisterHandler("driver:location:update", s.handleDriverLocation)
	hub.RegisterHandler("ping", s.handlePing)

	return s
}

// Start attaches the notification consumer. One durable consumer fans every
// user-keyed notification onto the right rooms.
func (s *Service) Start(ctx context.Context, bus Subscriber) error {
	return bus.Subscribe(ctx, eventbus.TopicNotifications, "realtime-notifications", s.handleNotification)
}

// handleNotification routes one bus event onto websocket targets. Unknown
// event types are acked and dropped so a producer upgrade cannot wedge the
// consumer.
func (s *Service) handleNotification(ctx context.Context, event *eventbus.Event) error {
	r, ok := routes[event.Type]
	if !ok {
		logger.DebugContext(ctx, "unrouted notification", zap.String("type", event.Type))
		return nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.WarnContext(ctx, "malformed notification payload",
			zap.String("type", event.Type),
			zap.Error(err),
		)
		return nil
	}

	msg := &websocket.Message{
		Type:      r.socketEvent,
		Timestamp: event.Timestamp,
		Data:      payload,
	}
	if rideID, ok := payload["ride_id"].(string); ok {
		msg.RideID = rideID
	}

	if r.toUser && event.Key != "" {
		s.hub.SendToUser(event.Key, msg)
	}
	if r.toRide && msg.RideID != "" {
		s.hub.SendToRoom(websocket.RideRoom(msg.RideID), msg)
	}
	return nil
}

// handleRegister acks the client's identity. Registration proper happened at
// upgrade time; this lets clients confirm the session is live.
func (s *Service) handleRegister(client *websocket.Client, msg *websocket.Message) {
	client.SendMessage(&websocket.Message{
		Type:      "registered",
		UserID:    client.ID,
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"user_id": client.ID,
			"role":    client.Role,
		},
	})
}

func (s *Service) handleSubscribeRide(client *websocket.Client, msg *websocket.Message) {
	if msg.RideID == "" {
		s.sendError(client, "ride_id is required")
		return
	}
	s.hub.JoinRoom(client.ID, websocket.RideRoom(msg.RideID))
	client.SendMessage(&websocket.Message{
		Type:      "subscribed",
		RideID:    msg.RideID,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) handleUnsubscribeRide(client *websocket.Client, msg *websocket.Message) {
	if msg.RideID == "" {
		s.sendError(client, "ride_id is required")
		return
	}
	s.hub.LeaveRoom(client.ID, websocket.RideRoom(msg.RideID))
}

// handleDriverLocation ingests a driver position report arriving over the
// socket instead of REST. Same pipeline, same validation.
func (s *Service) handleDriverLocation(client *websocket.Client, msg *websocket.Message) {
	if client.Role != "driver" {
		s.sendError(client, "only drivers report locations")
		return
	}
	driverID, err := uuid.Parse(client.ID)
	if err != nil {
		s.sendError(client, "invalid driver id")
		return
	}

	lat, latOK := asFloat(msg.Data["latitude"])
	lng, lngOK := asFloat(msg.Data["longitude"])
	if !latOK || !lngOK {
		s.sendError(client, "latitude and longitude are required")
		return
	}

	req := &geo.UpdateLocationRequest{Latitude: lat, Longitude: lng}
	if heading, ok := asFloat(msg.Data["heading"]); ok {
		req.Heading = &heading
	}
	if speed, ok := asFloat(msg.Data["speed"]); ok {
		req.Speed = &speed
	}
	if accuracy, ok := asFloat(msg.Data["accuracy"]); ok {
		req.Accuracy = &accuracy
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.geo.UpdateLocation(ctx, driverID, req); err != nil {
		logger.Warn("socket location update rejected",
			zap.String("driver_id", client.ID),
			zap.Error(err),
		)
		s.sendError(client, "location update rejected")
		return
	}

	// Drivers mid-ride echo their position straight into the ride room.
	if msg.RideID != "" {
		s.hub.SendToRoom(websocket.RideRoom(msg.RideID), &websocket.Message{
			Type:      "driver:location:update",
			RideID:    msg.RideID,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"driver_id": client.ID,
				"latitude":  lat,
				"longitude": lng,
			},
		})
	}

	client.SendMessage(&websocket.Message{
		Type:      "location:ack",
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) handlePing(client *websocket.Client, msg *websocket.Message) {
	client.SendMessage(&websocket.Message{
		Type:      "pong",
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) sendError(client *websocket.Client, reason string) {
	client.SendMessage(&websocket.Message{
		Type:      "error",
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"message": reason},
	})
}

func asFloat(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
