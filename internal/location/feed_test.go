package location

import (
	"context"
	"strings"
	"testing"

	"github.com/example/driver-agent/internal/models"
)

func TestJSONLinesProviderWatch(t *testing.T) {
	feed := strings.NewReader(
		`{"lat":12.90,"lng":77.60,"timestamp":1700000000000}` + "\n" +
			`not json` + "\n" +
			`{"lng":77.61}` + "\n" +
			`{"lat":12.91,"lng":77.61}` + "\n",
	)
	p := NewJSONLinesProvider(feed)

	var got []models.LocationSample
	err := p.Watch(context.Background(), func(s models.LocationSample) {
		got = append(got, s)
	})
	if err == nil {
		t.Fatal("expected feed-closed error at EOF")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 valid samples, got %d", len(got))
	}
	if got[0].Coord.Lat != 12.90 || got[1].Coord.Lng != 77.61 {
		t.Fatalf("samples wrong: %+v", got)
	}
	if got[0].Time.UnixMilli() != 1700000000000 {
		t.Fatalf("timestamp not honored: %v", got[0].Time)
	}

	cur, err := p.Current(context.Background())
	if err != nil || cur.Coord.Lat != 12.91 {
		t.Fatalf("current = %+v err=%v", cur, err)
	}
}

type flakyProvider struct {
	failures int
	calls    int
}

func (f *flakyProvider) Current(context.Context) (models.LocationSample, error) {
	f.calls++
	if f.calls <= f.failures {
		return models.LocationSample{}, context.DeadlineExceeded
	}
	return models.LocationSample{Coord: models.Coord{Lat: 1, Lng: 2}}, nil
}

func (f *flakyProvider) Watch(context.Context, func(models.LocationSample)) error { return nil }

func TestInitialFixRetries(t *testing.T) {
	p := &flakyProvider{failures: 2}
	s, err := InitialFix(context.Background(), p, 3, 0)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if s.Coord.Lat != 1 {
		t.Fatalf("wrong sample: %+v", s)
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", p.calls)
	}
}

func TestInitialFixExhausted(t *testing.T) {
	p := &flakyProvider{failures: 10}
	if _, err := InitialFix(context.Background(), p, 3, 0); err == nil {
		t.Fatal("expected error after bounded attempts")
	}
}
