package route

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/driver-agent/internal/models"
)

// Planner produces an ordered driving polyline between two coordinates.
type Planner interface {
	Route(ctx context.Context, from, to models.Coord) ([]models.Coord, error)
}

// OSRMClient fetches route polylines from an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 5 * time.Second}}
}

// Route queries /route/v1/driving with full geometry and returns the
// polyline as an ordered coordinate list.
func (o *OSRMClient) Route(ctx context.Context, from, to models.Coord) ([]models.Coord, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		o.Endpoint, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"` // [lng, lat] pairs
			} `json:"geometry"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return nil, fmt.Errorf("osrm no route: %v", out.Code)
	}
	coords := out.Routes[0].Geometry.Coordinates
	line := make([]models.Coord, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		line = append(line, models.Coord{Lat: c[1], Lng: c[0]})
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("osrm returned empty geometry")
	}
	return line, nil
}

// StraightLine is the fallback planner used when no routing endpoint is
// configured: it interpolates a fixed number of points on the segment
// between the endpoints. Good enough for a visible line; not a road.
type StraightLine struct {
	Points int
}

func (s StraightLine) Route(_ context.Context, from, to models.Coord) ([]models.Coord, error) {
	n := s.Points
	if n < 2 {
		n = 16
	}
	line := make([]models.Coord, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		line[i] = models.Coord{
			Lat: from.Lat + (to.Lat-from.Lat)*t,
			Lng: from.Lng + (to.Lng-from.Lng)*t,
		}
	}
	return line, nil
}
