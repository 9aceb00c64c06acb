// Package geo holds GeoJSON point handling shared by field coercion and geo filters.
package geo

import "fmt"

// Point is a WGS84 position in degrees.
type Point struct {
	Lng float64
	Lat float64
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// NewPoint returns a validated point.
func NewPoint(lng, lat float64) (Point, error) {
	if !ValidateCoordinates(lat, lng) {
		return Point{}, fmt.Errorf("coordinates [%v, %v] out of range", lng, lat)
	}
	return Point{Lng: lng, Lat: lat}, nil
}

// GeoJSON returns the point as a GeoJSON Point object, the shape 2dsphere indexes accept.
func (p Point) GeoJSON() map[string]any {
	return map[string]any{"type": "Point", "coordinates": []any{p.Lng, p.Lat}}
}

// FromGeoJSON reads a GeoJSON Point. Only numeric coordinates are accepted.
func FromGeoJSON(v any) (Point, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Point{}, fmt.Errorf("expected GeoJSON object, got %T", v)
	}
	if t, _ := m["type"].(string); t != "Point" {
		return Point{}, fmt.Errorf("expected GeoJSON Point, got type %v", m["type"])
	}
	coords, ok := m["coordinates"].([]any)
	if !ok || len(coords) != 2 {
		return Point{}, fmt.Errorf("GeoJSON Point needs [lng, lat]")
	}
	lng, ok1 := number(coords[0])
	lat, ok2 := number(coords[1])
	if !ok1 || !ok2 {
		return Point{}, fmt.Errorf("GeoJSON Point coordinates must be numbers")
	}
	return NewPoint(lng, lat)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
