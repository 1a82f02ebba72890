package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesOfferedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "rides_offered_total", Help: "Ride offers presented to the driver"})
	RidesAcceptedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "rides_accepted_total", Help: "Rides accepted"})
	RidesRejectedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "rides_rejected_total", Help: "Rides rejected by the driver"})
	RidesStartedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "rides_started_total", Help: "Rides started after OTP confirmation"})
	RidesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "rides_completed_total", Help: "Rides completed"})
	RidesCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "rides_cancelled_total", Help: "Rides cancelled or pre-empted by the backend"})

	ChannelConnectsTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "channel_connects_total", Help: "Successful channel connections"})
	ChannelDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "channel_disconnects_total", Help: "Channel connection drops"})
	ChannelBadFramesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "channel_bad_frames_total", Help: "Inbound frames discarded as malformed"})
	EventsDroppedTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "events_dropped_total", Help: "Inbound events dropped after failed normalization"})

	LocationSamplesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "location_samples_total", Help: "Location samples observed"})
	LocationPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "location_persisted_total", Help: "Location samples persisted to backend sinks"})
	RouteRecomputesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "driver_agent", Name: "route_recomputes_total", Help: "Visible-route truncation passes"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "driver_agent", Name: "http_requests_total", Help: "Total admin HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driver_agent",
			Name:      "http_request_duration_seconds",
			Help:      "Admin HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
