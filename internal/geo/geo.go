// Package geo holds the plane and sphere math used for delivery geofencing.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by Haversine.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Valid reports whether the point lies within latitude/longitude bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// InPolygon runs the ray-casting test: a horizontal ray from p crosses the
// boundary an odd number of times iff p is inside. The ring may be open or
// closed. Fewer than three vertices never contain anything.
func InPolygon(p Point, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := ring[i], ring[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			crossLng := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
			if p.Lng < crossLng {
				inside = !inside
			}
		}
	}
	return inside
}

// Centroid is the arithmetic mean of the vertices. It is only used to rank
// areas by proximity, so the area-weighted centroid is not needed.
func Centroid(ring []Point) (Point, bool) {
	if len(ring) == 0 {
		return Point{}, false
	}

	var lat, lng float64
	for _, v := range ring {
		lat += v.Lat
		lng += v.Lng
	}
	n := float64(len(ring))
	return Point{Lat: lat / n, Lng: lng / n}, true
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
