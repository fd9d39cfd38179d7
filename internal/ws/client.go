package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/models"
)

// client is one live authenticated connection. It implements
// session.Conn; the mutex serializes data writes because the emitter
// may address this connection from many goroutines at once.
type client struct {
	conn     *websocket.Conn
	identity auth.Identity
	mu       sync.Mutex
}

func newClient(conn *websocket.Conn, identity auth.Identity) *client {
	return &client{conn: conn, identity: identity}
}

func (c *client) WriteEvent(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(models.Envelope{Event: event, Data: raw})
}

func (c *client) sendError(code, message, rideID string) {
	_ = c.WriteEvent(models.EvError, models.ErrorPayload{Code: code, Message: message, RideID: rideID})
}

// requireRole gates an event on the role the credential asserts;
// cancelRide stays open to both parties.
func (c *client) requireRole(role auth.Role) bool {
	if c.identity.Role == role {
		return true
	}
	c.sendError("forbidden", "event not permitted for role "+string(c.identity.Role), "")
	return false
}

// pingLoop keeps the connection's liveness check running until the
// read loop exits. WriteControl is safe alongside data writes.
func (c *client) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
