package location

import (
	"context"
	"fmt"
	"time"

	"github.com/example/driver-agent/internal/models"
)

// Provider yields device position readings. Implementations wrap whatever
// actually knows where the vehicle is (a GPS daemon, a telematics feed, a
// replay file in tests).
type Provider interface {
	// Current returns a one-shot position fix.
	Current(ctx context.Context) (models.LocationSample, error)
	// Watch streams fixes to fn until ctx is cancelled. Individual read
	// failures are the provider's to surface; Watch returns only the
	// terminal error.
	Watch(ctx context.Context, fn func(models.LocationSample)) error
}

// InitialFix retries Current a bounded number of times before giving up.
// The continuous watch has no such bound; each of its failures is handled
// as it happens.
func InitialFix(ctx context.Context, p Provider, attempts int, delay time.Duration) (models.LocationSample, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		s, err := p.Current(ctx)
		if err == nil {
			return s, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return models.LocationSample{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return models.LocationSample{}, fmt.Errorf("initial fix after %d attempts: %w", attempts, lastErr)
}

// Update is one persisted location sample with its ride context, handed to
// every configured Sink.
type Update struct {
	Sample      models.LocationSample
	DriverID    string
	DriverName  string
	VehicleType string
	Status      string
	RideID      *string
}

// Sink persists location updates to a backend. Failures are logged by the
// caller, never propagated into the ride lifecycle.
type Sink interface {
	Publish(ctx context.Context, u Update) error
}
