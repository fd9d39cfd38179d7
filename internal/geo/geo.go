package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Index is the query contract the dispatch engine needs: which
// available drivers sit within a radius of a point. Results are sorted
// ascending by distance from the query point; callers may rely on
// that. Maintenance of the underlying structure belongs to the driver
// location flow, not to dispatch.
type Index interface {
	Nearby(ctx context.Context, at models.Coord, radiusM float64, limit int) ([]models.Driver, error)
	Upsert(ctx context.Context, d models.Driver) error
}

// MemIndex is a mutex-guarded linear-scan index. It serves tests and
// single-node local runs; production uses the Redis implementation.
type MemIndex struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewMemIndex() *MemIndex {
	return &MemIndex{drivers: make(map[string]models.Driver)}
}

func (g *MemIndex) Upsert(_ context.Context, d models.Driver) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = time.Now()
	g.drivers[d.ID] = d
	return nil
}

func (g *MemIndex) Nearby(_ context.Context, at models.Coord, radiusM float64, limit int) ([]models.Driver, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.Driver
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, d := range g.drivers {
		if !d.Available {
			continue
		}
		dist := Haversine(at.Lat, at.Lon, d.Loc.Lat, d.Loc.Lon)
		if dist > radiusM {
			continue
		}
		arr = append(arr, pair{d, dist})
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].dist < arr[j].dist })
	if limit > 0 && len(arr) > limit {
		arr = arr[:limit]
	}
	out := make([]models.Driver, 0, len(arr))
	for _, p := range arr {
		out = append(out, p.d)
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
