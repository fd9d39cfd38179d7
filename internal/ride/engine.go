package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

var (
	// ErrInvalidTransition means the ride was not in the state the
	// requested operation expects. The caller is told; nothing else
	// happens.
	ErrInvalidTransition = errors.New("invalid ride transition")
	// ErrNotFound means the ride id is unknown.
	ErrNotFound = errors.New("ride not found")
	// ErrInvalidRequest covers malformed ride parameters.
	ErrInvalidRequest = errors.New("invalid ride request")
	// ErrStoreUnavailable wraps persistence or index failures. The
	// engine does not retry; that is the caller's policy.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Index is the slice of the driver index the engine queries.
type Index interface {
	Nearby(ctx context.Context, at models.Coord, radiusM float64, limit int) ([]models.Driver, error)
}

// Emitter pushes a named event to every live connection of an identity.
type Emitter interface {
	Emit(identity, event string, data any)
}

// Engine owns the ride state machine. Transitions are validated and
// applied through the store's conditional update; concurrent attempts
// on one ride resolve to a single winner there, never in engine code.
type Engine struct {
	Store         storage.RideStore
	Drivers       Index
	Emitter       Emitter
	Logger        *slog.Logger
	RadiusM       float64
	MaxCandidates int
}

func NewEngine(store storage.RideStore, drivers Index, emitter Emitter, logger *slog.Logger, radiusM float64, maxCandidates int) *Engine {
	return &Engine{
		Store:         store,
		Drivers:       drivers,
		Emitter:       emitter,
		Logger:        logger,
		RadiusM:       radiusM,
		MaxCandidates: maxCandidates,
	}
}

// Request creates a ride in the requested state and fans the request
// out to available drivers near the pickup. Finding a driver is
// best-effort: zero candidates (or an index hiccup) still leaves a
// created ride and a notified passenger.
func (e *Engine) Request(ctx context.Context, passengerID string, pickup, dropoff models.Coord, fare float64) (*models.Ride, error) {
	if passengerID == "" {
		return nil, fmt.Errorf("%w: passenger id required", ErrInvalidRequest)
	}
	if fare <= 0 {
		return nil, fmt.Errorf("%w: fare must be positive", ErrInvalidRequest)
	}
	if !pickup.Valid() || !dropoff.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidRequest)
	}

	r := &models.Ride{
		PassengerID: passengerID,
		Pickup:      pickup,
		Dropoff:     dropoff,
		Fare:        fare,
		Status:      models.StatusRequested,
	}
	if err := e.Store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	observability.RidesRequested.Inc()

	candidates, err := e.Drivers.Nearby(ctx, pickup, e.RadiusM, e.MaxCandidates)
	if err != nil {
		// the ride exists either way; dispatch is advisory
		e.Logger.Warn("driver index query failed", "ride_id", r.ID, "error", err)
		candidates = nil
	}
	observability.DispatchCandidates.Observe(float64(len(candidates)))

	for _, d := range candidates {
		e.Emitter.Emit(d.ID, models.EvRideRequest, r)
	}
	e.Emitter.Emit(passengerID, models.EvRideRequested, r)

	e.Logger.Info("ride requested", "ride_id", r.ID, "passenger_id", passengerID, "candidates", len(candidates))
	return r, nil
}

// Accept applies requested -> accepted, binding the driver. With two
// drivers racing, the conditional update lets exactly one through; the
// loser gets ErrInvalidTransition and must be told.
func (e *Engine) Accept(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	if driverID == "" {
		return nil, fmt.Errorf("%w: driver id required", ErrInvalidRequest)
	}
	r, err := e.transition(ctx, rideID, []models.RideStatus{models.StatusRequested}, "", models.StatusAccepted, driverID)
	if err != nil {
		return nil, err
	}
	e.Emitter.Emit(r.PassengerID, models.EvRideAccepted, r)
	e.Emitter.Emit(r.DriverID, models.EvRideAccepted, r)
	e.Logger.Info("ride accepted", "ride_id", r.ID, "driver_id", driverID)
	return r, nil
}

// Complete applies accepted -> completed. The conditional update is
// additionally pinned to the assigned driver, so no other identity can
// complete the ride or rebind its driver.
func (e *Engine) Complete(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	if driverID == "" {
		return nil, fmt.Errorf("%w: driver id required", ErrInvalidRequest)
	}
	r, err := e.transition(ctx, rideID, []models.RideStatus{models.StatusAccepted}, driverID, models.StatusCompleted, driverID)
	if err != nil {
		return nil, err
	}
	e.Emitter.Emit(r.PassengerID, models.EvRideCompleted, r)
	e.Emitter.Emit(r.DriverID, models.EvRideCompleted, r)
	e.Logger.Info("ride completed", "ride_id", r.ID, "driver_id", driverID)
	return r, nil
}

// Cancel applies requested|accepted -> cancelled and unbinds the
// driver. An already-assigned driver is notified alongside the
// passenger so they stop heading to a dead pickup.
func (e *Engine) Cancel(ctx context.Context, rideID string) (*models.Ride, error) {
	// The lookup learns who to notify and pins the expected status;
	// the guard stays the conditional update. Pinning matters: a CAS
	// from {requested, accepted} would let a cancel win over an
	// accept that landed after the read, leaving the fresh driver
	// unnotified. On conflict we re-read and try again; the status
	// order is monotone so this settles within a bounded number of
	// rounds.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		prev, err := e.Store.FindByID(ctx, rideID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if prev.Status.Terminal() {
			return nil, fmt.Errorf("%w: ride already %s", ErrInvalidTransition, prev.Status)
		}

		r, err := e.transition(ctx, rideID, []models.RideStatus{prev.Status}, "", models.StatusCancelled, "")
		if errors.Is(err, ErrInvalidTransition) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		e.Emitter.Emit(r.PassengerID, models.EvRideCancelled, r)
		if prev.DriverID != "" {
			e.Emitter.Emit(prev.DriverID, models.EvRideCancelled, r)
		}
		e.Logger.Info("ride cancelled", "ride_id", r.ID, "had_driver", prev.DriverID != "")
		return r, nil
	}
	return nil, lastErr
}

func (e *Engine) transition(ctx context.Context, rideID string, expected []models.RideStatus, expectedDriver string, next models.RideStatus, driverID string) (*models.Ride, error) {
	r, err := e.Store.CompareAndSetStatus(ctx, rideID, expected, expectedDriver, next, driverID)
	if err != nil {
		err = mapStoreErr(err)
		observability.RideTransitions.WithLabelValues(string(next), outcome(err)).Inc()
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(string(next), "ok").Inc()
	return r, nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, storage.ErrStatusConflict):
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "conflict"
	default:
		return "error"
	}
}
