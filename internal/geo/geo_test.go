package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	if d := Haversine(0, 0, 0, 0); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// one degree of latitude is ~111 km
	d := Haversine(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 100)
}

func TestNearbyFiltersAvailabilityAndRadius(t *testing.T) {
	idx := NewMemIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, models.Driver{ID: "near", Loc: models.Coord{Lat: 0.01, Lon: 0}, Available: true}))
	require.NoError(t, idx.Upsert(ctx, models.Driver{ID: "nearer", Loc: models.Coord{Lat: 0.001, Lon: 0}, Available: true}))
	require.NoError(t, idx.Upsert(ctx, models.Driver{ID: "offline", Loc: models.Coord{Lat: 0.01, Lon: 0}, Available: false}))
	require.NoError(t, idx.Upsert(ctx, models.Driver{ID: "far", Loc: models.Coord{Lat: 1, Lon: 1}, Available: true}))

	got, err := idx.Nearby(ctx, models.Coord{Lat: 0, Lon: 0}, 10000, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// sorted ascending by distance
	assert.Equal(t, "nearer", got[0].ID)
	assert.Equal(t, "near", got[1].ID)
	for _, d := range got {
		assert.True(t, d.Available)
	}
}

func TestNearbyHonorsLimit(t *testing.T) {
	idx := NewMemIndex()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, idx.Upsert(ctx, models.Driver{ID: id, Loc: models.Coord{Lat: 0.001, Lon: 0}, Available: true}))
	}
	got, err := idx.Nearby(ctx, models.Coord{Lat: 0, Lon: 0}, 10000, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
