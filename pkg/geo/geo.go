// Package geo provides the distance and extrapolation math used for
// camera proximity and next-location prediction.
package geo

import (
	"math"

	"github.com/ursa-watch/ursa/pkg/messages"
)

// EarthRadiusMiles is the mean Earth radius used for haversine distances.
const EarthRadiusMiles = 3959.0

// Distance returns the great-circle distance between two positions in
// miles.
func Distance(a, b messages.Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return EarthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Extrapolate continues the vector from -> to past its endpoint,
// returning the point one step further along the same displacement.
func Extrapolate(from, to messages.Position) messages.Position {
	return messages.Position{
		Lat: to.Lat + (to.Lat - from.Lat),
		Lng: to.Lng + (to.Lng - from.Lng),
	}
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b messages.Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
