package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RideStatus is the lifecycle state of the one ride a controller may hold.
type RideStatus int

const (
	StatusIdle RideStatus = iota
	StatusOffered
	StatusAccepted
	StatusStarted
	StatusCompleted
)

func (s RideStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusOffered:
		return "offered"
	case StatusAccepted:
		return "accepted"
	case StatusStarted:
		return "started"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Availability is the driver's dispatchability, independent of any one ride.
type Availability string

const (
	Offline Availability = "offline"
	Online  Availability = "online"
	OnRide  Availability = "onRide"
)

// DeriveAvailability computes availability from ride status and channel
// connectivity, so the two can never contradict each other.
func DeriveAvailability(status RideStatus, connected bool) Availability {
	if !connected {
		return Offline
	}
	switch status {
	case StatusAccepted, StatusStarted:
		return OnRide
	default:
		return Online
	}
}

// Ride is one passenger transport request, held from offer to completion.
// OTP stays empty until the backend delivers it; PickupRoute is attached
// once the driver->pickup polyline has been fetched.
type Ride struct {
	ID            string
	SecondaryID   string
	OTP           string
	Pickup        Coord
	PickupAddress string
	Drop          Coord
	DropAddress   string
	PickupRoute   []Coord
	Fare          float64
	DistanceLabel string
}

type Passenger struct {
	ID     string
	Name   string
	Mobile string
}

// RouteProgress tracks one navigation leg: Full is computed once per leg,
// Visible is Full truncated at the vertex nearest the driver with the live
// position prepended.
type RouteProgress struct {
	Full       []Coord
	Visible    []Coord
	NearestIdx int
}

type LocationSample struct {
	Coord Coord
	Time  time.Time
}
