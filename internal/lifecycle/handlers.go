package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/driver-agent/internal/geo"
	"github.com/example/driver-agent/internal/location"
	"github.com/example/driver-agent/internal/models"
	"github.com/example/driver-agent/internal/observability"
)

// handleRideRequest is the idle -> offered edge. Malformed payloads are
// dropped and counted rather than defaulted to zero coordinates.
func (c *Controller) handleRideRequest(data json.RawMessage) {
	ride, err := models.DecodeRideRequest(data)
	if err != nil {
		observability.EventsDroppedTotal.Inc()
		c.log.Warn("ride request dropped", "err", err)
		return
	}
	c.mu.Lock()
	if c.closed || c.status != models.StatusIdle {
		status := c.status
		c.mu.Unlock()
		c.log.Info("ride request ignored, not idle", "rideId", ride.ID, "status", status.String())
		return
	}
	c.ride = &ride
	c.status = models.StatusOffered
	c.mu.Unlock()

	observability.RidesOfferedTotal.Inc()
	c.log.Info("ride offered", "rideId", ride.ID, "fare", ride.Fare, "distance", ride.DistanceLabel)
	if c.dep.Offers != nil {
		c.dep.Offers.PresentOffer(ride)
	} else {
		c.notify("info", "new ride request "+ride.ID)
	}
}

func (c *Controller) handleRideOTP(data json.RawMessage) {
	var ev models.RideOTPEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		observability.EventsDroppedTotal.Inc()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ride == nil || c.ride.ID != ev.RideID {
		return
	}
	c.ride.OTP = ev.OTP
}

// handleRideCancelled is the backend pre-empting an active ride. The ride
// id must match the held ride; stale cancellations for other rides are
// no-ops.
func (c *Controller) handleRideCancelled(data json.RawMessage) {
	var ev models.RideCancelledEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		observability.EventsDroppedTotal.Inc()
		return
	}
	c.mu.Lock()
	if c.closed || c.ride == nil || c.ride.ID != ev.RideID {
		c.mu.Unlock()
		return
	}
	ride := *c.ride
	userID := ""
	if c.passenger != nil {
		userID = c.passenger.ID
	}
	distance := c.travelled
	holdID := c.fareHoldID
	c.resetLocked()
	c.mu.Unlock()

	c.emit(models.EvDriverRideCancelled, models.RideCancelledNoticePayload{
		RideID: ride.ID, DriverID: c.id.DriverID, UserID: userID,
	})
	observability.RidesCancelledTotal.Inc()
	c.releaseFare(holdID, ride.ID)
	c.journal(ride, userID, distance, "cancelled")
	c.notify("info", "ride was cancelled")
}

// handleAlreadyAccepted resets silently: the decision was made elsewhere,
// there is nothing to tell the backend.
func (c *Controller) handleAlreadyAccepted(data json.RawMessage) {
	var ev models.RideAlreadyAcceptedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		observability.EventsDroppedTotal.Inc()
		return
	}
	c.mu.Lock()
	if c.closed || c.ride == nil || c.ride.ID != ev.RideID {
		c.mu.Unlock()
		return
	}
	holdID := c.fareHoldID
	rideID := c.ride.ID
	c.resetLocked()
	c.mu.Unlock()

	observability.RidesCancelledTotal.Inc()
	c.releaseFare(holdID, rideID)
	c.notify("info", "ride was taken by another driver")
}

func (c *Controller) handleUserLiveLocation(data json.RawMessage) {
	coord, err := models.DecodeUserLocation(data)
	if err != nil {
		observability.EventsDroppedTotal.Inc()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (c.status != models.StatusAccepted && c.status != models.StatusStarted) {
		return
	}
	c.passengerLoc = &coord
}

func (c *Controller) handleUserData(data json.RawMessage) {
	userID, coord, err := models.DecodeUserData(data)
	if err != nil {
		observability.EventsDroppedTotal.Inc()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (c.status != models.StatusAccepted && c.status != models.StatusStarted) {
		return
	}
	c.passengerLoc = &coord
	if c.passenger == nil {
		c.passenger = &models.Passenger{ID: userID}
	}
}

// onConnect re-registers the driver after every (re)connect so the backend
// can restore the session server-side.
func (c *Controller) onConnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	cur := c.current
	c.mu.Unlock()
	c.emit(models.EvRegisterDriver, models.RegisterDriverPayload{
		DriverID:    c.id.DriverID,
		DriverName:  c.id.DriverName,
		Latitude:    cur.Lat,
		Longitude:   cur.Lng,
		VehicleType: c.id.VehicleType,
	})
}

// onDisconnect downgrades availability (derived from connectivity) and
// drops passenger context; the passenger poll refreshes it after the
// channel comes back.
func (c *Controller) onDisconnect(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	active := c.status == models.StatusAccepted || c.status == models.StatusStarted
	if active {
		c.passenger = nil
		c.passengerLoc = nil
	}
	c.mu.Unlock()
	if active {
		c.notify("error", "connection lost, reconnecting")
	}
	c.log.Warn("channel down", "err", err)
}

// OnLocation ingests one position sample: the current location updates
// unconditionally, travelled distance accumulates while a ride is active,
// and every Nth sample fans out to the persistence sinks.
func (c *Controller) OnLocation(sample models.LocationSample) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.current = sample.Coord
	c.hasFix = true

	active := c.status == models.StatusAccepted || c.status == models.StatusStarted
	if active {
		if c.lastSample != nil {
			c.travelled += geo.Distance(*c.lastSample, sample.Coord)
		}
		last := sample.Coord
		c.lastSample = &last
	}

	c.sampleSeq++
	persist := c.sampleSeq%c.cfg.PersistEvery == 0

	if c.status == models.StatusStarted && len(c.progress.Full) > 0 {
		if c.debounce != nil {
			c.debounce.Stop()
		}
		c.debounce = time.AfterFunc(c.cfg.DebounceInterval, c.retruncate)
	}

	status := c.status
	var rideID *string
	if c.ride != nil {
		id := c.ride.ID
		rideID = &id
	}
	c.mu.Unlock()

	observability.LocationSamplesTotal.Inc()
	if !persist {
		return
	}
	observability.LocationPersistedTotal.Inc()

	avail := models.DeriveAvailability(status, c.ch.Connected())
	c.emit(models.EvDriverLocationUpdate, models.LocationUpdatePayload{
		DriverID:  c.id.DriverID,
		Latitude:  sample.Coord.Lat,
		Longitude: sample.Coord.Lng,
		Status:    string(avail),
		RideID:    rideID,
	})
	update := location.Update{
		Sample:      sample,
		DriverID:    c.id.DriverID,
		DriverName:  c.id.DriverName,
		VehicleType: c.id.VehicleType,
		Status:      string(avail),
		RideID:      rideID,
	}
	for _, sink := range c.dep.Sinks {
		go func(s location.Sink) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.Publish(ctx, update); err != nil {
				c.log.Warn("location sink publish failed", "err", err)
			}
		}(sink)
	}
}

// retruncate recomputes the visible route from the vertex nearest the
// current position. No-op unless a trip is underway.
func (c *Controller) retruncate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.status != models.StatusStarted || len(c.progress.Full) == 0 || !c.hasFix {
		return
	}
	c.progress.Visible, c.progress.NearestIdx = geo.VisibleFrom(c.current, c.progress.Full)
	observability.RouteRecomputesTotal.Inc()
}
