package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/emit"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/session"
	"github.com/example/ride-dispatch/internal/storage"
)

type testRig struct {
	srv      *httptest.Server
	verifier *auth.Verifier
	index    *geo.MemIndex
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := auth.NewVerifier("test-secret")
	registry := session.NewRegistry()
	emitter := emit.New(registry, logger)
	index := geo.NewMemIndex()
	engine := ride.NewEngine(storage.NewMemoryStore(), index, emitter, logger, 10000, 16)
	h := NewHandler(verifier, registry, engine, logger)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testRig{srv: srv, verifier: verifier, index: index}
}

func (r *testRig) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dialAs connects and completes the credential handshake for a user.
func (r *testRig) dialAs(t *testing.T, userID string, role auth.Role) *websocket.Conn {
	t.Helper()
	tok, err := r.verifier.Sign(auth.Identity{UserID: userID, Role: role}, time.Minute)
	require.NoError(t, err)

	conn := r.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]string{"token": tok}))

	env := readEvent(t, conn)
	require.Equal(t, models.EvConnected, env.Event)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.Envelope{Event: event, Data: raw}))
}

func TestRejectsBadCredential(t *testing.T) {
	rig := newTestRig(t)
	conn := rig.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"token": "garbage"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestRequestAcceptFlow(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.index.Upsert(context.Background(), models.Driver{
		ID: "d1", Loc: models.Coord{Lat: 0.01, Lon: 0}, Available: true,
	}))

	passenger := rig.dialAs(t, "p1", auth.RolePassenger)
	driver := rig.dialAs(t, "d1", auth.RoleDriver)

	sendEvent(t, passenger, models.EvRideRequest, models.RideRequestPayload{
		PickupLocation:  models.Coord{Lat: 0, Lon: 0},
		DropoffLocation: models.Coord{Lat: 1, Lon: 1},
		Fare:            12.50,
	})

	env := readEvent(t, passenger)
	require.Equal(t, models.EvRideRequested, env.Event)
	var r models.Ride
	require.NoError(t, json.Unmarshal(env.Data, &r))
	assert.Equal(t, models.StatusRequested, r.Status)
	assert.Equal(t, "p1", r.PassengerID)

	env = readEvent(t, driver)
	require.Equal(t, models.EvRideRequest, env.Event)
	var offered models.Ride
	require.NoError(t, json.Unmarshal(env.Data, &offered))
	require.Equal(t, r.ID, offered.ID)

	sendEvent(t, driver, models.EvAcceptRide, models.RideActionPayload{RideID: offered.ID})

	env = readEvent(t, driver)
	require.Equal(t, models.EvRideAccepted, env.Event)
	env = readEvent(t, passenger)
	require.Equal(t, models.EvRideAccepted, env.Event)
	var accepted models.Ride
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.Equal(t, "d1", accepted.DriverID)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
}

func TestOperationErrorsReturnToOriginOnly(t *testing.T) {
	rig := newTestRig(t)
	driver := rig.dialAs(t, "d1", auth.RoleDriver)

	sendEvent(t, driver, models.EvAcceptRide, models.RideActionPayload{RideID: "missing"})

	env := readEvent(t, driver)
	require.Equal(t, models.EvError, env.Event)
	var perr models.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &perr))
	assert.Equal(t, "not_found", perr.Code)
	assert.Equal(t, "missing", perr.RideID)
}

func TestInvalidFareReported(t *testing.T) {
	rig := newTestRig(t)
	passenger := rig.dialAs(t, "p1", auth.RolePassenger)

	sendEvent(t, passenger, models.EvRideRequest, models.RideRequestPayload{
		PickupLocation:  models.Coord{Lat: 0, Lon: 0},
		DropoffLocation: models.Coord{Lat: 1, Lon: 1},
		Fare:            -3,
	})

	env := readEvent(t, passenger)
	require.Equal(t, models.EvError, env.Event)
	var perr models.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &perr))
	assert.Equal(t, "invalid_request", perr.Code)
}

func TestPassengerCannotAcceptRide(t *testing.T) {
	rig := newTestRig(t)
	passenger := rig.dialAs(t, "p1", auth.RolePassenger)

	sendEvent(t, passenger, models.EvAcceptRide, models.RideActionPayload{RideID: "r1"})

	env := readEvent(t, passenger)
	require.Equal(t, models.EvError, env.Event)
	var perr models.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &perr))
	assert.Equal(t, "forbidden", perr.Code)
}

func TestDriverCannotRequestRide(t *testing.T) {
	rig := newTestRig(t)
	driver := rig.dialAs(t, "d1", auth.RoleDriver)

	sendEvent(t, driver, models.EvRideRequest, models.RideRequestPayload{
		PickupLocation:  models.Coord{Lat: 0, Lon: 0},
		DropoffLocation: models.Coord{Lat: 1, Lon: 1},
		Fare:            10,
	})

	env := readEvent(t, driver)
	require.Equal(t, models.EvError, env.Event)
	var perr models.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &perr))
	assert.Equal(t, "forbidden", perr.Code)
}

func TestUnknownEventReported(t *testing.T) {
	rig := newTestRig(t)
	conn := rig.dialAs(t, "p1", auth.RolePassenger)

	sendEvent(t, conn, "teleport", nil)
	env := readEvent(t, conn)
	assert.Equal(t, models.EvError, env.Event)
}
