package location

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/example/driver-agent/internal/models"
)

// JSONLinesProvider reads fixes as newline-delimited JSON objects
// ({"lat":..,"lng":..,"timestamp":..}) from a stream, typically a
// telematics feed piped into the process. Malformed lines are skipped.
type JSONLinesProvider struct {
	r io.Reader

	mu    sync.Mutex
	last  models.LocationSample
	has   bool
	first chan struct{}
	once  sync.Once
}

func NewJSONLinesProvider(r io.Reader) *JSONLinesProvider {
	return &JSONLinesProvider{r: r, first: make(chan struct{})}
}

// Current returns the most recent fix, waiting for the first one if the
// feed has not produced any yet.
func (p *JSONLinesProvider) Current(ctx context.Context) (models.LocationSample, error) {
	p.mu.Lock()
	if p.has {
		s := p.last
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()
	select {
	case <-ctx.Done():
		return models.LocationSample{}, ctx.Err()
	case <-p.first:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, nil
}

// Watch pumps the feed until it ends or ctx is cancelled. Call it once.
func (p *JSONLinesProvider) Watch(ctx context.Context, fn func(models.LocationSample)) error {
	sc := bufio.NewScanner(p.r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var line struct {
			Lat       *float64 `json:"lat"`
			Lng       *float64 `json:"lng"`
			Timestamp int64    `json:"timestamp"`
		}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil || line.Lat == nil || line.Lng == nil {
			continue
		}
		ts := time.Now()
		if line.Timestamp > 0 {
			ts = time.UnixMilli(line.Timestamp)
		}
		sample := models.LocationSample{Coord: models.Coord{Lat: *line.Lat, Lng: *line.Lng}, Time: ts}

		p.mu.Lock()
		p.last = sample
		p.has = true
		p.mu.Unlock()
		p.once.Do(func() { close(p.first) })

		fn(sample)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("location feed closed")
}
