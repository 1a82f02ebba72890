package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/driver-agent/internal/channel"
	"github.com/example/driver-agent/internal/geo"
	"github.com/example/driver-agent/internal/location"
	"github.com/example/driver-agent/internal/models"
	"github.com/example/driver-agent/internal/observability"
	"github.com/example/driver-agent/internal/route"
	"github.com/example/driver-agent/internal/storage"
)

var (
	ErrNoOffer        = errors.New("no ride offer pending")
	ErrNoActiveRide   = errors.New("no active ride")
	ErrNoIdentity     = errors.New("driver identity not set")
	ErrOTPNotReceived = errors.New("otp not received yet")
	ErrOTPMismatch    = errors.New("otp does not match")
)

// Emitter is the outbound face of the messaging channel.
type Emitter interface {
	Emit(event string, payload any) error
	EmitWithAck(ctx context.Context, event string, payload any) (json.RawMessage, error)
	Connected() bool
}

// Binder is the subscription face of the messaging channel; the concrete
// channel.Client satisfies both.
type Binder interface {
	Subscribe(event string, h channel.Handler)
	OnConnect(fn func())
	OnDisconnect(fn func(err error))
}

// Notifier surfaces user-facing messages. The actual UI lives outside
// this process; tests and the default wiring just log.
type Notifier interface {
	Notify(level, message string)
}

// OfferPresenter hands a ride offer to whatever decision surface fronts
// the driver. The controller never decides for them: the answer comes
// back through AcceptRide or RejectRide.
type OfferPresenter interface {
	PresentOffer(ride models.Ride)
}

// FareService places, captures and releases fare holds. Optional.
type FareService interface {
	Hold(ctx context.Context, amountMinor int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

// Identity is the authenticated driver this controller acts for.
type Identity struct {
	DriverID    string
	DriverName  string
	VehicleType string
}

// Config carries the lifecycle timing knobs. Zero values take defaults.
type Config struct {
	AckTimeout          time.Duration // wait on the acceptRide acknowledgement
	UserDataDelay       time.Duration // settle delay before the first passenger-data request
	AcceptRetryAttempts int           // bounded wait for reconnect during accept
	AcceptRetryBackoff  time.Duration
	TruncateInterval    time.Duration // periodic visible-route re-truncation
	PollInterval        time.Duration // passenger location poll
	DebounceInterval    time.Duration // coalesce bursts of position updates
	PersistEvery        int           // persist every Nth location sample
	FareCurrency        string
}

func (c *Config) withDefaults() {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.UserDataDelay <= 0 {
		c.UserDataDelay = time.Second
	}
	if c.AcceptRetryAttempts <= 0 {
		c.AcceptRetryAttempts = 5
	}
	if c.AcceptRetryBackoff <= 0 {
		c.AcceptRetryBackoff = 2 * time.Second
	}
	if c.TruncateInterval <= 0 {
		c.TruncateInterval = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = 500 * time.Millisecond
	}
	if c.PersistEvery <= 0 {
		c.PersistEvery = 5
	}
	if c.FareCurrency == "" {
		c.FareCurrency = "inr"
	}
}

// Deps are the controller's collaborators. Channel and Planner are
// required; the rest degrade to logging when absent.
type Deps struct {
	Channel  Emitter
	Planner  route.Planner
	Notifier Notifier
	Offers   OfferPresenter
	Journal  storage.RideLog
	Fares    FareService
	Sinks    []location.Sink
	Log      *slog.Logger
}

// Controller owns the ride lifecycle state machine: it reacts to inbound
// ride events, drives accept/reject/start/complete transitions, aggregates
// location samples and keeps the visible route truncated to the stretch
// ahead of the driver. All entry points serialize on one mutex, the Go
// analogue of the single event loop the protocol assumes.
type Controller struct {
	cfg Config
	id  Identity
	ch  Emitter
	dep Deps
	log *slog.Logger

	mu           sync.Mutex
	closed       bool
	status       models.RideStatus
	ride         *models.Ride
	passenger    *models.Passenger
	passengerLoc *models.Coord
	progress     models.RouteProgress

	current    models.Coord
	hasFix     bool
	lastSample *models.Coord
	travelled  float64
	sampleSeq  int

	fareHoldID   string
	stopTruncate func()
	stopPoll     func()
	debounce     *time.Timer
}

func NewController(id Identity, deps Deps, cfg Config) *Controller {
	cfg.withDefaults()
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		id:     id,
		ch:     deps.Channel,
		dep:    deps,
		log:    log,
		status: models.StatusIdle,
	}
}

// Bind attaches the controller's event handlers and connection hooks.
func (c *Controller) Bind(b Binder) {
	b.Subscribe(models.EvNewRideRequest, c.handleRideRequest)
	b.Subscribe(models.EvRideOTP, c.handleRideOTP)
	b.Subscribe(models.EvRideCancelled, c.handleRideCancelled)
	b.Subscribe(models.EvRideAlreadyAccepted, c.handleAlreadyAccepted)
	b.Subscribe(models.EvUserLiveLocation, c.handleUserLiveLocation)
	b.Subscribe(models.EvUserDataForDriver, c.handleUserData)
	b.OnConnect(c.onConnect)
	b.OnDisconnect(c.onDisconnect)
}

// Status returns the current lifecycle state.
func (c *Controller) Status() models.RideStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Availability derives the driver's dispatchability from ride status and
// channel connectivity.
func (c *Controller) Availability() models.Availability {
	return models.DeriveAvailability(c.Status(), c.ch.Connected())
}

// Snapshot is a point-in-time view of the controller for introspection.
type Snapshot struct {
	Status       string        `json:"status"`
	Availability string        `json:"availability"`
	RideID       string        `json:"rideId,omitempty"`
	PassengerID  string        `json:"passengerId,omitempty"`
	Current      *models.Coord `json:"current,omitempty"`
	PassengerLoc *models.Coord `json:"passengerLocation,omitempty"`
	TravelledM   float64       `json:"travelledMeters"`
	NearestIdx   int           `json:"nearestIndex"`
	RoutePoints  int           `json:"routePoints"`
	VisiblePts   int           `json:"visiblePoints"`
}

func (c *Controller) Snapshot() Snapshot {
	connected := c.ch.Connected()
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Status:       c.status.String(),
		Availability: string(models.DeriveAvailability(c.status, connected)),
		TravelledM:   c.travelled,
		NearestIdx:   c.progress.NearestIdx,
		RoutePoints:  len(c.progress.Full),
		VisiblePts:   len(c.progress.Visible),
	}
	if c.ride != nil {
		s.RideID = c.ride.ID
	}
	if c.passenger != nil {
		s.PassengerID = c.passenger.ID
	}
	if c.hasFix {
		cur := c.current
		s.Current = &cur
	}
	if c.passengerLoc != nil {
		loc := *c.passengerLoc
		s.PassengerLoc = &loc
	}
	return s
}

// Ride returns a copy of the held ride, if any.
func (c *Controller) Ride() (models.Ride, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ride == nil {
		return models.Ride{}, false
	}
	return *c.ride, true
}

// Progress returns a copy of the current route progress.
func (c *Controller) Progress() models.RouteProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := models.RouteProgress{NearestIdx: c.progress.NearestIdx}
	p.Full = append(p.Full, c.progress.Full...)
	p.Visible = append(p.Visible, c.progress.Visible...)
	return p
}

// TravelledMeters returns the distance accumulated over the active ride.
func (c *Controller) TravelledMeters() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.travelled
}

// Close tears down timers and suppresses every late asynchronous
// continuation. The controller is unusable afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimersLocked()
}

// AcceptRide moves an offered ride to accepted. The transition is
// optimistic: status flips before the backend acknowledgement resolves,
// and reverts with a notification if the ack fails or never comes.
func (c *Controller) AcceptRide() error {
	if c.id.DriverID == "" {
		return ErrNoIdentity
	}
	c.mu.Lock()
	if c.closed || c.status != models.StatusOffered || c.ride == nil {
		c.mu.Unlock()
		return ErrNoOffer
	}
	ride := *c.ride
	c.status = models.StatusAccepted
	c.mu.Unlock()

	observability.RidesAcceptedTotal.Inc()
	go c.acceptFlow(ride)
	return nil
}

func (c *Controller) acceptFlow(ride models.Ride) {
	// the channel reconnects on its own; give it a bounded window before
	// failing the user's accept
	for i := 0; i < c.cfg.AcceptRetryAttempts && !c.ch.Connected(); i++ {
		time.Sleep(c.cfg.AcceptRetryBackoff)
	}
	if !c.ch.Connected() {
		c.revertAccept(ride.ID, "connection lost, could not accept ride")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckTimeout)
	defer cancel()
	raw, err := c.ch.EmitWithAck(ctx, models.EvAcceptRide, models.AcceptRidePayload{
		RideID:     ride.ID,
		DriverID:   c.id.DriverID,
		DriverName: c.id.DriverName,
	})
	if err != nil {
		c.revertAccept(ride.ID, "no acknowledgement from dispatch")
		return
	}
	var ack models.AcceptAck
	if err := json.Unmarshal(raw, &ack); err != nil || !ack.Success {
		c.revertAccept(ride.ID, "ride no longer available")
		return
	}

	pickup := ride.Pickup
	if p, ok := ack.PickupCoord(); ok {
		pickup = p
	}

	c.mu.Lock()
	if c.closed || c.ride == nil || c.ride.ID != ride.ID || c.status != models.StatusAccepted {
		c.mu.Unlock()
		return
	}
	c.passenger = &models.Passenger{ID: ack.UserID, Name: ack.UserName, Mobile: ack.UserMobile}
	loc := pickup
	c.passengerLoc = &loc
	cur := c.current
	userID := ack.UserID
	c.startPollLocked(ride.ID)
	c.mu.Unlock()

	c.emit(models.EvDriverAcceptedRide, models.RideNoticePayload{
		RideID:         ride.ID,
		DriverID:       c.id.DriverID,
		UserID:         userID,
		DriverLocation: cur,
	})

	// give the backend a moment to settle assignment before asking for
	// the passenger's live data
	time.AfterFunc(c.cfg.UserDataDelay, func() {
		if !c.sameRide(ride.ID) {
			return
		}
		c.emit(models.EvGetUserData, models.GetUserDataPayload{RideID: ride.ID})
	})

	go c.fetchPickupRoute(ride.ID, cur, pickup)
}

func (c *Controller) fetchPickupRoute(rideID string, from, to models.Coord) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckTimeout)
	defer cancel()
	line, err := c.dep.Planner.Route(ctx, from, to)
	if err != nil {
		c.log.Warn("pickup route fetch failed", "rideId", rideID, "err", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ride == nil || c.ride.ID != rideID {
		return
	}
	c.ride.PickupRoute = line
}

func (c *Controller) revertAccept(rideID, reason string) {
	c.mu.Lock()
	if c.closed || c.ride == nil || c.ride.ID != rideID || c.status != models.StatusAccepted {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	c.mu.Unlock()
	c.notify("error", reason)
	c.log.Warn("accept reverted", "rideId", rideID, "reason", reason)
}

// RejectRide declines the pending offer and clears all ride-scoped state.
// No acknowledgement is awaited.
func (c *Controller) RejectRide() error {
	c.mu.Lock()
	if c.closed || c.status != models.StatusOffered || c.ride == nil {
		c.mu.Unlock()
		return ErrNoOffer
	}
	rideID := c.ride.ID
	c.resetLocked()
	c.mu.Unlock()

	c.emit(models.EvRejectRide, models.RejectRidePayload{RideID: rideID, DriverID: c.id.DriverID})
	observability.RidesRejectedTotal.Inc()
	return nil
}

// ConfirmOTP verifies the passenger's code against the ride's OTP and, on
// an exact match, starts navigation: full pickup->drop route, periodic
// visible-route truncation, driverStartedRide emission, fare hold.
func (c *Controller) ConfirmOTP(code string) error {
	c.mu.Lock()
	if c.closed || c.status != models.StatusAccepted || c.ride == nil {
		c.mu.Unlock()
		return ErrNoActiveRide
	}
	if c.ride.OTP == "" {
		c.mu.Unlock()
		c.notify("error", "OTP not received yet")
		return ErrOTPNotReceived
	}
	if code != c.ride.OTP {
		c.mu.Unlock()
		c.notify("error", "wrong OTP, ask the passenger again")
		return ErrOTPMismatch
	}
	ride := *c.ride
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckTimeout)
	line, err := c.dep.Planner.Route(ctx, ride.Pickup, ride.Drop)
	cancel()
	if err != nil {
		// navigation still starts; the line degrades to the bare leg
		c.log.Warn("trip route fetch failed", "rideId", ride.ID, "err", err)
		line = []models.Coord{ride.Pickup, ride.Drop}
	}

	c.mu.Lock()
	if c.closed || c.ride == nil || c.ride.ID != ride.ID || c.status != models.StatusAccepted {
		c.mu.Unlock()
		return ErrNoActiveRide
	}
	c.status = models.StatusStarted
	c.progress.Full = line
	if c.hasFix {
		c.progress.Visible, c.progress.NearestIdx = geo.VisibleFrom(c.current, line)
	} else {
		c.progress.Visible = line
		c.progress.NearestIdx = 0
	}
	c.startTruncateLocked()
	cur := c.current
	userID := ""
	if c.passenger != nil {
		userID = c.passenger.ID
	}
	c.mu.Unlock()

	c.emit(models.EvDriverStartedRide, models.RideNoticePayload{
		RideID:         ride.ID,
		DriverID:       c.id.DriverID,
		UserID:         userID,
		DriverLocation: cur,
	})
	observability.RidesStartedTotal.Inc()
	c.holdFare(ride)
	return nil
}

// CompleteRide finishes the trip: emits completion with the accumulated
// travelled distance, captures the fare, journals the outcome and resets
// to the idle baseline.
func (c *Controller) CompleteRide() error {
	c.mu.Lock()
	if c.closed || c.status != models.StatusStarted || c.ride == nil {
		c.mu.Unlock()
		return ErrNoActiveRide
	}
	c.status = models.StatusCompleted
	ride := *c.ride
	distance := c.travelled
	userID := ""
	if c.passenger != nil {
		userID = c.passenger.ID
	}
	holdID := c.fareHoldID
	c.resetLocked()
	c.mu.Unlock()

	c.emit(models.EvDriverCompletedRide, models.RideCompletedPayload{
		RideID: ride.ID, DriverID: c.id.DriverID, UserID: userID, Distance: distance,
	})
	c.emit(models.EvCompleteRide, models.RideCompletedPayload{
		RideID: ride.ID, DriverID: c.id.DriverID, Distance: distance,
	})
	observability.RidesCompletedTotal.Inc()

	if c.dep.Fares != nil && holdID != "" {
		if err := c.dep.Fares.Capture(context.Background(), holdID); err != nil {
			c.log.Warn("fare capture failed", "rideId", ride.ID, "err", err)
		}
	}
	c.journal(ride, userID, distance, "completed")
	c.notify("info", "ride completed")
	return nil
}

func (c *Controller) holdFare(ride models.Ride) {
	if c.dep.Fares == nil || ride.Fare <= 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckTimeout)
		defer cancel()
		id, err := c.dep.Fares.Hold(ctx, int64(ride.Fare*100), c.cfg.FareCurrency, "")
		if err != nil {
			c.log.Warn("fare hold failed", "rideId", ride.ID, "err", err)
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.ride == nil || c.ride.ID != ride.ID {
			// ride ended while the hold was in flight; release it
			go c.releaseFare(id, ride.ID)
			return
		}
		c.fareHoldID = id
	}()
}

func (c *Controller) releaseFare(holdID, rideID string) {
	if c.dep.Fares == nil || holdID == "" {
		return
	}
	if err := c.dep.Fares.Cancel(context.Background(), holdID); err != nil {
		c.log.Warn("fare release failed", "rideId", rideID, "err", err)
	}
}

func (c *Controller) journal(ride models.Ride, userID string, distance float64, outcome string) {
	if c.dep.Journal == nil {
		return
	}
	rec := storage.RideRecord{
		ID:             uuid.NewString(),
		RideID:         ride.ID,
		DriverID:       c.id.DriverID,
		UserID:         userID,
		Fare:           ride.Fare,
		DistanceMeters: distance,
		Outcome:        outcome,
		RecordedAt:     time.Now(),
	}
	if err := c.dep.Journal.Record(context.Background(), rec); err != nil {
		c.log.Warn("ride journal write failed", "rideId", ride.ID, "err", err)
	}
}

func (c *Controller) sameRide(rideID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.ride != nil && c.ride.ID == rideID
}

func (c *Controller) emit(event string, payload any) {
	if err := c.ch.Emit(event, payload); err != nil {
		c.log.Warn("emit failed", "event", event, "err", err)
	}
}

func (c *Controller) notify(level, msg string) {
	if c.dep.Notifier != nil {
		c.dep.Notifier.Notify(level, msg)
		return
	}
	c.log.Info("notice", "level", level, "msg", msg)
}

// resetLocked returns every piece of ride-scoped state to the idle
// baseline. Callers hold c.mu.
func (c *Controller) resetLocked() {
	c.stopTimersLocked()
	c.status = models.StatusIdle
	c.ride = nil
	c.passenger = nil
	c.passengerLoc = nil
	c.travelled = 0
	c.lastSample = nil
	c.progress = models.RouteProgress{}
	c.fareHoldID = ""
}

func (c *Controller) stopTimersLocked() {
	if c.stopTruncate != nil {
		c.stopTruncate()
		c.stopTruncate = nil
	}
	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
}

func (c *Controller) startTruncateLocked() {
	if c.stopTruncate != nil {
		return
	}
	c.stopTruncate = c.spawnTicker(c.cfg.TruncateInterval, c.retruncate)
}

func (c *Controller) startPollLocked(rideID string) {
	if c.stopPoll != nil {
		return
	}
	c.stopPoll = c.spawnTicker(c.cfg.PollInterval, func() {
		if !c.sameRide(rideID) {
			return
		}
		c.emit(models.EvGetUserData, models.GetUserDataPayload{RideID: rideID})
	})
}

func (c *Controller) spawnTicker(interval time.Duration, fn func()) func() {
	t := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-t.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(done)
		})
	}
}
