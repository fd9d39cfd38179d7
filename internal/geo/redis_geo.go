package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisGeo implements Index over Redis GEO commands. The geo set holds
// positions; a per-driver hash holds availability and freshness. Both
// are written by the location consumer and read here.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, d models.Driver) error {
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Err(); err != nil {
		return err
	}
	return r.client.HSet(ctx, MetaKey(d.ID), map[string]interface{}{
		"available": strconv.FormatBool(d.Available),
		"updated":   time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) Nearby(ctx context.Context, at models.Coord, radiusM float64, limit int) ([]models.Driver, error) {
	res, err := r.client.GeoRadius(ctx, r.key, at.Lon, at.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusM,
		Unit:      "m",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Driver, 0, len(res))
	for _, g := range res {
		d := models.Driver{ID: g.Name}
		d.Loc.Lat = g.Latitude
		d.Loc.Lon = g.Longitude
		m, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result()
		if err != nil {
			return nil, err
		}
		d.Available = m["available"] == "true"
		if !d.Available {
			// position is stale relative to the meta hash; skip
			continue
		}
		if ts, ok := m["updated"]; ok {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				d.Updated = t
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// MetaKey names the hash holding a driver's availability metadata.
// Shared with the location consumer.
func MetaKey(id string) string { return "driver:meta:" + id }
