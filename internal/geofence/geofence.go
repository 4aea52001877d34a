package geofence

import (
	"errors"
	"math"
)

const earthRadiusKm = 6371.0

var ErrInvalidPerimeter = errors.New("invalid perimeter")

// Perimeter は打刻を許可する円（中心と半径km）
type Perimeter struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius float64 `json:"radius"`
}

func (p Perimeter) Validate() error {
	if !ValidCoordinate(p.Lat, p.Lng) {
		return ErrInvalidPerimeter
	}
	if !(p.Radius > 0) {
		return ErrInvalidPerimeter
	}
	return nil
}

// Contains: 境界上は内側扱い
func (p Perimeter) Contains(lat, lng float64) bool {
	return DistanceKm(p.Lat, p.Lng, lat, lng) <= p.Radius
}

// DistanceKm returns the haversine great-circle distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func ValidCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
