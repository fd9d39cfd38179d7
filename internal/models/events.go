package models

import "encoding/json"

// Event names carried over the WebSocket envelope, client to server.
const (
	EvRideRequest = "rideRequest"
	EvAcceptRide  = "acceptRide"
	EvConfirmRide = "confirmRide" // "complete" in client vocabulary
	EvCancelRide  = "cancelRide"
)

// Event names, server to client.
const (
	EvConnected     = "connected"
	EvRideRequested = "rideRequested"
	EvRideAccepted  = "rideAccepted"
	EvRideCompleted = "rideCompleted"
	EvRideCancelled = "rideCancelled"
	EvError         = "error"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type RideRequestPayload struct {
	PassengerID     string  `json:"passengerId"`
	PickupLocation  Coord   `json:"pickupLocation"`
	DropoffLocation Coord   `json:"dropoffLocation"`
	Fare            float64 `json:"fare"`
}

type RideActionPayload struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId,omitempty"`
}

type ConnectedPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload reports an operation-level failure back to the
// originating connection only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RideID  string `json:"rideId,omitempty"`
}
