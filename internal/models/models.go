package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies on the globe.
func (c Coord) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// RideStatus is the lifecycle state of a ride.
// requested -> accepted -> completed, with cancelled reachable from
// requested and accepted. completed and cancelled are terminal.
type RideStatus string

const (
	StatusRequested RideStatus = "requested"
	StatusAccepted  RideStatus = "accepted"
	StatusCompleted RideStatus = "completed"
	StatusCancelled RideStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Ride struct {
	ID          string     `json:"id"`
	PassengerID string     `json:"passenger_id"`
	DriverID    string     `json:"driver_id,omitempty"` // set iff accepted or completed
	Pickup      Coord      `json:"pickup"`
	Dropoff     Coord      `json:"dropoff"`
	Fare        float64    `json:"fare"`
	Status      RideStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Driver is the read-only projection consumed at dispatch time.
// Location and availability are maintained by the driver-side update
// flow (ingest + consumer), never by the dispatch core.
type Driver struct {
	ID        string    `json:"id"`
	Loc       Coord     `json:"loc"`
	Available bool      `json:"available"`
	Updated   time.Time `json:"updated"`
}
