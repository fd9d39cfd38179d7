package storage

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	// ErrNotFound means no ride exists under the given id.
	ErrNotFound = errors.New("ride not found")
	// ErrStatusConflict means the ride exists but its current status
	// did not match the expected set of a conditional update.
	ErrStatusConflict = errors.New("ride status conflict")
)

// RideStore defines persistence for rides. The lifecycle engine never
// reads-then-writes: every transition goes through CompareAndSetStatus
// so concurrent transitions on one ride resolve to a single winner at
// the store.
type RideStore interface {
	// Create assigns an id and timestamps and persists the ride.
	Create(ctx context.Context, r *models.Ride) error
	// FindByID returns the ride or ErrNotFound.
	FindByID(ctx context.Context, id string) (*models.Ride, error)
	// CompareAndSetStatus atomically applies status=next and
	// driver=driverID iff the current status is in expected and,
	// when expectedDriver is non-empty, the currently bound driver
	// matches it. It returns the updated ride, ErrStatusConflict on
	// a status or driver mismatch, or ErrNotFound for an unknown id.
	CompareAndSetStatus(ctx context.Context, id string, expected []models.RideStatus, expectedDriver string, next models.RideStatus, driverID string) (*models.Ride, error)
}

// MemoryStore is the in-process RideStore used in tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	rides map[string]*models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride)}
}

func (m *MemoryStore) Create(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) CompareAndSetStatus(_ context.Context, id string, expected []models.RideStatus, expectedDriver string, next models.RideStatus, driverID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !slices.Contains(expected, r.Status) {
		return nil, ErrStatusConflict
	}
	if expectedDriver != "" && r.DriverID != expectedDriver {
		return nil, ErrStatusConflict
	}
	r.Status = next
	r.DriverID = driverID
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}
