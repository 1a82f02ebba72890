package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event names on the dispatch channel. Outbound unless noted.
const (
	EvRegisterDriver       = "registerDriver"
	EvDriverLocationUpdate = "driverLocationUpdate"
	EvAcceptRide           = "acceptRide"
	EvRejectRide           = "rejectRide"
	EvDriverAcceptedRide   = "driverAcceptedRide"
	EvGetUserData          = "getUserDataForDriver"
	EvDriverStartedRide    = "driverStartedRide"
	EvDriverCompletedRide  = "driverCompletedRide"
	EvCompleteRide         = "completeRide"
	EvDriverRideCancelled  = "driverRideCancelled"

	// inbound
	EvNewRideRequest      = "newRideRequest"
	EvUserLiveLocation    = "userLiveLocationUpdate"
	EvUserDataForDriver   = "userDataForDriver"
	EvRideOTP             = "rideOTP"
	EvRideCancelled       = "rideCancelled"
	EvRideAlreadyAccepted = "rideAlreadyAccepted"
)

// Outbound payloads. Field names are the backend's wire contract.

type RegisterDriverPayload struct {
	DriverID    string  `json:"driverId"`
	DriverName  string  `json:"driverName"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	VehicleType string  `json:"vehicleType"`
}

type LocationUpdatePayload struct {
	DriverID  string  `json:"driverId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Status    string  `json:"status"`
	RideID    *string `json:"rideId"`
}

type AcceptRidePayload struct {
	RideID     string `json:"rideId"`
	DriverID   string `json:"driverId"`
	DriverName string `json:"driverName"`
}

type RejectRidePayload struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId"`
}

type RideNoticePayload struct {
	RideID         string `json:"rideId"`
	DriverID       string `json:"driverId"`
	UserID         string `json:"userId"`
	DriverLocation Coord  `json:"driverLocation"`
}

type GetUserDataPayload struct {
	RideID string `json:"rideId"`
}

type RideCompletedPayload struct {
	RideID   string  `json:"rideId"`
	DriverID string  `json:"driverId"`
	UserID   string  `json:"userId,omitempty"`
	Distance float64 `json:"distance"`
}

type RideCancelledNoticePayload struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId"`
	UserID   string `json:"userId"`
}

// AcceptAck is the acknowledgement the backend returns for acceptRide.
type AcceptAck struct {
	Success    bool       `json:"success"`
	UserID     string     `json:"userId"`
	UserName   string     `json:"userName"`
	UserMobile string     `json:"userMobile"`
	Pickup     *flexPoint `json:"pickup"`
}

// PickupCoord returns the ack's pickup coordinate when present.
func (a AcceptAck) PickupCoord() (Coord, bool) {
	if a.Pickup == nil {
		return Coord{}, false
	}
	c, err := a.Pickup.coord()
	return c, err == nil
}

type RideOTPEvent struct {
	RideID string `json:"rideId"`
	OTP    string `json:"otp"`
}

type RideCancelledEvent struct {
	RideID string `json:"rideId"`
}

type RideAlreadyAcceptedEvent struct {
	RideID  string `json:"rideId"`
	Message string `json:"message"`
}

type UserDataEvent struct {
	UserID          string     `json:"userId"`
	CurrentLocation *flexPoint `json:"userCurrentLocation"`
}

// flexPoint tolerates the backend's historical field-name drift
// (lat/latitude, lng/lon/longitude). Normalization happens exactly once,
// here at the boundary; everything past it works with Coord.
type flexPoint struct {
	Lat       *float64 `json:"lat"`
	Latitude  *float64 `json:"latitude"`
	Lng       *float64 `json:"lng"`
	Lon       *float64 `json:"lon"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

func (p *flexPoint) coord() (Coord, error) {
	if p == nil {
		return Coord{}, fmt.Errorf("point missing")
	}
	var c Coord
	switch {
	case p.Lat != nil:
		c.Lat = *p.Lat
	case p.Latitude != nil:
		c.Lat = *p.Latitude
	default:
		return Coord{}, fmt.Errorf("latitude missing")
	}
	switch {
	case p.Lng != nil:
		c.Lng = *p.Lng
	case p.Lon != nil:
		c.Lng = *p.Lon
	case p.Longitude != nil:
		c.Lng = *p.Longitude
	default:
		return Coord{}, fmt.Errorf("longitude missing")
	}
	return c, nil
}

func (p *flexPoint) address() string {
	if p == nil || strings.TrimSpace(p.Address) == "" {
		return "unknown"
	}
	return p.Address
}

type rawRideRequest struct {
	RideID      string     `json:"rideId"`
	SecondaryID string     `json:"bookingId"`
	Pickup      *flexPoint `json:"pickup"`
	Drop        *flexPoint `json:"drop"`
	Fare        float64    `json:"fare"`
	Distance    string     `json:"distance"`
	OTP         string     `json:"otp"`
}

// DecodeRideRequest normalizes an inbound newRideRequest payload. Payloads
// without a ride id or with unparseable pickup/drop coordinates are rejected
// outright rather than defaulted to zero, so a backend bug cannot masquerade
// as a valid ride at (0,0). A missing address is still tolerated.
func DecodeRideRequest(data json.RawMessage) (Ride, error) {
	var raw rawRideRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return Ride{}, fmt.Errorf("decode ride request: %w", err)
	}
	if raw.RideID == "" {
		return Ride{}, fmt.Errorf("ride request without rideId")
	}
	pickup, err := raw.Pickup.coord()
	if err != nil {
		return Ride{}, fmt.Errorf("ride %s pickup: %w", raw.RideID, err)
	}
	drop, err := raw.Drop.coord()
	if err != nil {
		return Ride{}, fmt.Errorf("ride %s drop: %w", raw.RideID, err)
	}
	return Ride{
		ID:            raw.RideID,
		SecondaryID:   raw.SecondaryID,
		OTP:           raw.OTP,
		Pickup:        pickup,
		PickupAddress: raw.Pickup.address(),
		Drop:          drop,
		DropAddress:   raw.Drop.address(),
		Fare:          raw.Fare,
		DistanceLabel: raw.Distance,
	}, nil
}

// DecodeUserLocation normalizes an inbound userLiveLocationUpdate payload.
func DecodeUserLocation(data json.RawMessage) (Coord, error) {
	var p flexPoint
	if err := json.Unmarshal(data, &p); err != nil {
		return Coord{}, fmt.Errorf("decode user location: %w", err)
	}
	return p.coord()
}

// DecodeUserData normalizes an inbound userDataForDriver payload.
func DecodeUserData(data json.RawMessage) (string, Coord, error) {
	var ev UserDataEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", Coord{}, fmt.Errorf("decode user data: %w", err)
	}
	c, err := ev.CurrentLocation.coord()
	if err != nil {
		return "", Coord{}, err
	}
	return ev.UserID, c, nil
}
