package geo

import (
	"math"

	"github.com/example/driver-agent/internal/models"
)

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Distance is Haversine over Coord values.
func Distance(a, b models.Coord) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// NearestIndex returns the index of the route vertex closest to pos.
// Ties go to the first index reached; the scan is O(n), which is fine for
// the tens-to-low-hundreds of vertices a single routing response yields.
// An empty route yields -1.
func NearestIndex(pos models.Coord, route []models.Coord) int {
	if len(route) == 0 {
		return -1
	}
	best := 0
	bestDist := Distance(pos, route[0])
	for i := 1; i < len(route); i++ {
		if d := Distance(pos, route[i]); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// VisibleFrom truncates route at the vertex nearest pos and prepends pos,
// so a rendered line always originates at the driver's true position
// instead of snapping to the nearest vertex.
func VisibleFrom(pos models.Coord, route []models.Coord) ([]models.Coord, int) {
	idx := NearestIndex(pos, route)
	if idx < 0 {
		return []models.Coord{pos}, idx
	}
	out := make([]models.Coord, 0, len(route)-idx+1)
	out = append(out, pos)
	out = append(out, route[idx:]...)
	return out, idx
}

// PathLength sums consecutive hop distances along a path. Zero or one
// point yields 0.
func PathLength(path []models.Coord) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}
