package emit

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-dispatch/internal/session"
)

type recordConn struct {
	events []string
	fail   bool
}

func (c *recordConn) WriteEvent(event string, data any) error {
	if c.fail {
		return errors.New("write failed")
	}
	c.events = append(c.events, event)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitToConnectedIdentity(t *testing.T) {
	reg := session.NewRegistry()
	c1, c2 := &recordConn{}, &recordConn{}
	reg.Join("p1", c1)
	reg.Join("p1", c2)

	e := New(reg, discardLogger())
	e.Emit("p1", "rideRequested", map[string]string{"id": "r1"})

	assert.Equal(t, []string{"rideRequested"}, c1.events)
	assert.Equal(t, []string{"rideRequested"}, c2.events)
}

func TestEmitToAbsentIdentityIsNoop(t *testing.T) {
	e := New(session.NewRegistry(), discardLogger())

	done := make(chan struct{})
	go func() {
		e.Emit("nobody", "rideAccepted", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit to absent identity blocked")
	}
}

func TestEmitSkipsFailingConnection(t *testing.T) {
	reg := session.NewRegistry()
	good, bad := &recordConn{}, &recordConn{fail: true}
	reg.Join("d1", bad)
	reg.Join("d1", good)

	e := New(reg, discardLogger())
	e.Emit("d1", "rideCompleted", nil)

	assert.Equal(t, []string{"rideCompleted"}, good.events)
}

func TestFallbackReceivesUndeliverable(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e := New(session.NewRegistry(), discardLogger())
	e.Fallback = NewHTTPPush(srv.URL + "/notify")
	e.Emit("offline-driver", "rideRequest", map[string]string{"id": "r9"})

	require.Equal(t, "/notify", got)
}
