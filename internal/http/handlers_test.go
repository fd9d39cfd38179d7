package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(config.ServerConfig{
		JWTSecret:       "test-secret",
		DispatchRadiusM: 10000,
		MaxCandidates:   16,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func postLocation(t *testing.T, srv *httptest.Server, d models.Driver) int {
	t.Helper()
	body, err := json.Marshal(d)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/internal/driver/locations", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestDriverLocationValidation(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	code := postLocation(t, srv, models.Driver{Loc: models.Coord{Lat: 0, Lon: 0}})
	assert.Equal(t, http.StatusBadRequest, code, "missing driver id")

	code = postLocation(t, srv, models.Driver{ID: "d1", Loc: models.Coord{Lat: 95, Lon: 0}})
	assert.Equal(t, http.StatusBadRequest, code, "out-of-range coordinate")

	code = postLocation(t, srv, models.Driver{ID: "d1", Loc: models.Coord{Lat: 0.01, Lon: 0}, Available: true})
	assert.Equal(t, http.StatusNoContent, code)
}

func TestAvailabilityGaugeMovesOncePerStateChange(t *testing.T) {
	s := newTestServer(t)
	base := testutil.ToFloat64(observability.DriversAvailable)

	// heartbeats repeating the same state must not move the gauge
	for i := 0; i < 3; i++ {
		s.trackAvailability(models.Driver{ID: "d1", Available: true})
	}
	assert.Equal(t, base+1, testutil.ToFloat64(observability.DriversAvailable))

	s.trackAvailability(models.Driver{ID: "d1", Available: false})
	s.trackAvailability(models.Driver{ID: "d1", Available: false})
	assert.Equal(t, base, testutil.ToFloat64(observability.DriversAvailable))

	// a driver first seen unavailable never counted toward the gauge
	s.trackAvailability(models.Driver{ID: "d2", Available: false})
	assert.Equal(t, base, testutil.ToFloat64(observability.DriversAvailable))

	s.trackAvailability(models.Driver{ID: "d1", Available: true})
	s.trackAvailability(models.Driver{ID: "d2", Available: true})
	assert.Equal(t, base+2, testutil.ToFloat64(observability.DriversAvailable))
}
