package geo

import (
	"math"
	"testing"

	"github.com/example/driver-agent/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(12.9, 77.6, 12.9, 77.6)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineSymmetricNonNegative(t *testing.T) {
	pairs := [][4]float64{
		{12.9, 77.6, 12.95, 77.65},
		{0, 0, 0.1, 0.1},
		{-33.86, 151.2, 51.5, -0.12},
	}
	for _, p := range pairs {
		ab := Haversine(p[0], p[1], p[2], p[3])
		ba := Haversine(p[2], p[3], p[0], p[1])
		if ab < 0 {
			t.Fatalf("negative distance %f", ab)
		}
		if math.Abs(ab-ba) > 1e-6 {
			t.Fatalf("asymmetric: %f vs %f", ab, ba)
		}
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Bangalore city center to airport, roughly 32 km as the crow flies
	d := Haversine(12.9716, 77.5946, 13.1986, 77.7066)
	if d < 25000 || d > 40000 {
		t.Fatalf("unexpected distance: %f", d)
	}
}

func TestNearestIndex(t *testing.T) {
	route := []models.Coord{
		{Lat: 12.90, Lng: 77.60},
		{Lat: 12.91, Lng: 77.61},
		{Lat: 12.92, Lng: 77.62},
		{Lat: 12.93, Lng: 77.63},
	}
	pos := models.Coord{Lat: 12.919, Lng: 77.619}
	idx := NearestIndex(pos, route)
	if idx != 2 {
		t.Fatalf("expected index 2, got %d", idx)
	}
	if idx < 0 || idx >= len(route) {
		t.Fatalf("index out of range: %d", idx)
	}
	for i, c := range route {
		if Distance(pos, c) < Distance(pos, route[idx]) {
			t.Fatalf("vertex %d closer than selected %d", i, idx)
		}
	}
}

func TestNearestIndexTieBreaksFirst(t *testing.T) {
	same := models.Coord{Lat: 1, Lng: 1}
	route := []models.Coord{same, same, same}
	if idx := NearestIndex(models.Coord{Lat: 1, Lng: 1.001}, route); idx != 0 {
		t.Fatalf("expected first index on tie, got %d", idx)
	}
}

func TestNearestIndexSinglePoint(t *testing.T) {
	route := []models.Coord{{Lat: 5, Lng: 5}}
	if idx := NearestIndex(models.Coord{Lat: 0, Lng: 0}, route); idx != 0 {
		t.Fatalf("expected 0 for single-point route, got %d", idx)
	}
}

func TestNearestIndexEmpty(t *testing.T) {
	if idx := NearestIndex(models.Coord{}, nil); idx != -1 {
		t.Fatalf("expected -1 for empty route, got %d", idx)
	}
}

func TestVisibleFrom(t *testing.T) {
	route := []models.Coord{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 0.1},
		{Lat: 0, Lng: 0.2},
	}
	pos := models.Coord{Lat: 0.001, Lng: 0.101}
	vis, idx := VisibleFrom(pos, route)
	if idx != 1 {
		t.Fatalf("expected nearest 1, got %d", idx)
	}
	if len(vis) != 3 {
		t.Fatalf("expected 3 points, got %d", len(vis))
	}
	if vis[0] != pos {
		t.Fatalf("visible route must start at live position, got %+v", vis[0])
	}
	if vis[1] != route[1] || vis[2] != route[2] {
		t.Fatalf("tail mismatch: %+v", vis[1:])
	}
}

func TestPathLength(t *testing.T) {
	if PathLength(nil) != 0 {
		t.Fatal("empty path must be 0")
	}
	if PathLength([]models.Coord{{Lat: 1, Lng: 1}}) != 0 {
		t.Fatal("single point must be 0")
	}
	path := []models.Coord{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 0.1},
		{Lat: 0, Lng: 0.2},
	}
	want := Distance(path[0], path[1]) + Distance(path[1], path[2])
	if got := PathLength(path); math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}
