package emit

import (
	"log/slog"

	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/session"
)

// Emitter delivers a named event to every live connection of an
// identity. Delivery is best-effort and at-most-once per currently
// connected session: no store-and-forward, no retry. An identity with
// no live connection is a counted no-op, optionally handed to the push
// fallback so an external notifier can cover the gap.
type Emitter struct {
	Registry *session.Registry
	Fallback Fallback // optional
	Logger   *slog.Logger
}

// Fallback receives events that found no live connection.
type Fallback interface {
	Deliver(identity, event string, data any) error
}

func New(reg *session.Registry, logger *slog.Logger) *Emitter {
	return &Emitter{Registry: reg, Logger: logger}
}

// Emit never blocks on an absent identity and never returns an error
// for one; real-time delivery is advisory by design.
func (e *Emitter) Emit(identity, event string, data any) {
	conns := e.Registry.ConnectionsFor(identity)
	if len(conns) == 0 {
		observability.EmitsDropped.Inc()
		if e.Fallback != nil {
			if err := e.Fallback.Deliver(identity, event, data); err != nil {
				e.Logger.Warn("push fallback failed", "identity", identity, "event", event, "error", err)
			}
		}
		return
	}
	delivered := false
	for _, c := range conns {
		if err := c.WriteEvent(event, data); err != nil {
			// the connection's own lifecycle will deregister it
			e.Logger.Warn("emit write failed", "identity", identity, "event", event, "error", err)
			continue
		}
		delivered = true
	}
	if delivered {
		observability.EmitsDelivered.Inc()
	}
}
