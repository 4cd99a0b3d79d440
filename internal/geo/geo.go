// Package geo holds the distance helpers shared by duplicate detection and
// clustering.
package geo

import "math"

const (
	EarthRadiusMeters = 6371000.0
	// MetersPerDegreeLat is the length of one degree of latitude.
	MetersPerDegreeLat = 111000.0
)

type Point struct {
	Lat float64
	Lng float64
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is HaversineMeters over points.
func Distance(a, b Point) float64 {
	return HaversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Box is an axis-aligned lat/lng rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a box that contains every point within radiusMeters of
// center. It is a prefilter only; callers still check HaversineMeters.
func BoundingBox(center Point, radiusMeters float64) Box {
	dLat := radiusMeters / MetersPerDegreeLat

	// Near the poles cos(lat) goes to zero; widen to the full range.
	dLng := 180.0
	if cosLat := math.Cos(toRadians(center.Lat)); cosLat > 1e-6 {
		dLng = math.Min(180.0, radiusMeters/(MetersPerDegreeLat*cosLat))
	}

	return Box{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLng: center.Lng - dLng,
		MaxLng: center.Lng + dLng,
	}
}

// LngScale is the length of a degree of longitude relative to a degree of
// latitude at lat.
func LngScale(lat float64) float64 {
	return math.Cos(toRadians(lat))
}

func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Centroid is the arithmetic mean of the points. It returns the zero Point
// for an empty slice.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Lat
		sumLng += p.Lng
	}
	n := float64(len(points))
	return Point{Lat: sumLat / n, Lng: sumLng / n}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
