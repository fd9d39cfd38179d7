package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/session"
)

const (
	// a client must present its credential within this window
	authTimeout  = 5 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler runs the per-connection state machine: authenticate, join
// the session registry, route inbound lifecycle events to the engine,
// and leave the registry on any disconnect.
type Handler struct {
	Verifier *auth.Verifier
	Registry *session.Registry
	Engine   *ride.Engine
	Logger   *slog.Logger
}

func NewHandler(v *auth.Verifier, reg *session.Registry, engine *ride.Engine, logger *slog.Logger) *Handler {
	return &Handler{Verifier: v, Registry: reg, Engine: engine, Logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("ws upgrade failed", "error", err)
		return
	}

	identity, err := h.authenticate(conn)
	if err != nil {
		observability.AuthFailures.Inc()
		h.Logger.Warn("ws auth failed", "remote", conn.RemoteAddr().String(), "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	c := newClient(conn, identity)
	h.Registry.Join(identity.UserID, c)
	observability.WSConnections.Inc()
	defer func() {
		// scoped cleanup: runs on peer close, read error, or panic
		// in a dispatch, never conditional on a clean handshake
		h.Registry.Leave(identity.UserID, c)
		_ = conn.Close()
		observability.WSConnections.Dec()
	}()

	if err := c.WriteEvent(models.EvConnected, models.ConnectedPayload{UserID: identity.UserID}); err != nil {
		return
	}
	h.Logger.Info("ws connected", "user_id", identity.UserID, "role", identity.Role)

	stop := make(chan struct{})
	defer close(stop)
	go c.pingLoop(stop)

	h.readLoop(c)
	h.Logger.Info("ws disconnected", "user_id", identity.UserID)
}

// authenticate waits for the first frame, {"token": "<credential>"},
// and verifies it. No session state exists until this succeeds.
func (h *Handler) authenticate(conn *websocket.Conn) (auth.Identity, error) {
	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))
	var hello struct {
		Token string `json:"token"`
	}
	if err := conn.ReadJSON(&hello); err != nil {
		return auth.Identity{}, errors.New("no credential presented")
	}
	return h.Verifier.Verify(hello.Token)
}

func (h *Handler) readLoop(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Logger.Warn("ws read error", "user_id", c.identity.UserID, "error", err)
			}
			return
		}
		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError("bad_envelope", "malformed event envelope", "")
			continue
		}
		h.dispatch(c, env)
	}
}

// dispatch routes one inbound event to the engine. Operations run on a
// background context so an in-flight transition completes even when
// this connection closes underneath it.
func (h *Handler) dispatch(c *client, env models.Envelope) {
	ctx := context.Background()
	switch env.Event {
	case models.EvRideRequest:
		if !c.requireRole(auth.RolePassenger) {
			return
		}
		var p models.RideRequestPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError("bad_payload", "malformed rideRequest payload", "")
			return
		}
		// the actor is the verified identity, never the payload
		_, err := h.Engine.Request(ctx, c.identity.UserID, p.PickupLocation, p.DropoffLocation, p.Fare)
		h.report(c, err, "")

	case models.EvAcceptRide:
		if !c.requireRole(auth.RoleDriver) {
			return
		}
		var p models.RideActionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError("bad_payload", "malformed acceptRide payload", "")
			return
		}
		_, err := h.Engine.Accept(ctx, p.RideID, c.identity.UserID)
		h.report(c, err, p.RideID)

	case models.EvConfirmRide:
		if !c.requireRole(auth.RoleDriver) {
			return
		}
		var p models.RideActionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError("bad_payload", "malformed confirmRide payload", "")
			return
		}
		_, err := h.Engine.Complete(ctx, p.RideID, c.identity.UserID)
		h.report(c, err, p.RideID)

	case models.EvCancelRide:
		var p models.RideActionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError("bad_payload", "malformed cancelRide payload", "")
			return
		}
		_, err := h.Engine.Cancel(ctx, p.RideID)
		h.report(c, err, p.RideID)

	default:
		c.sendError("unknown_event", "unknown event "+env.Event, "")
	}
}

// report sends operation failures back to the originating connection
// only; successes are announced by the engine's own emissions.
func (h *Handler) report(c *client, err error, rideID string) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, ride.ErrInvalidTransition):
		c.sendError("invalid_transition", "ride is not in the expected state", rideID)
	case errors.Is(err, ride.ErrNotFound):
		c.sendError("not_found", "unknown ride", rideID)
	case errors.Is(err, ride.ErrInvalidRequest):
		c.sendError("invalid_request", err.Error(), rideID)
	default:
		c.sendError("unavailable", "temporary backend failure, retry later", rideID)
	}
}
