package geo

import (
	"reflect"
	"testing"
)

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.1, 0, false},
		{0, -180.5, false},
	}
	for _, tt := range tests {
		if got := ValidateCoordinates(tt.lat, tt.lon); got != tt.want {
			t.Errorf("ValidateCoordinates(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
		}
	}
}

func TestPoint_GeoJSON(t *testing.T) {
	p, err := NewPoint(2.35, 48.85)
	if err != nil {
		t.Fatalf("NewPoint: %v", err)
	}
	want := map[string]any{"type": "Point", "coordinates": []any{2.35, 48.85}}
	if got := p.GeoJSON(); !reflect.DeepEqual(got, want) {
		t.Errorf("GeoJSON() = %v, want %v", got, want)
	}
}

func TestFromGeoJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Point
		wantErr bool
	}{
		{"float coordinates", map[string]any{"type": "Point", "coordinates": []any{2.35, 48.85}}, Point{2.35, 48.85}, false},
		{"int coordinates", map[string]any{"type": "Point", "coordinates": []any{int32(10), int64(20)}}, Point{10, 20}, false},
		{"not an object", []any{1.0, 2.0}, Point{}, true},
		{"wrong type", map[string]any{"type": "Polygon", "coordinates": []any{1.0, 2.0}}, Point{}, true},
		{"short coordinates", map[string]any{"type": "Point", "coordinates": []any{1.0}}, Point{}, true},
		{"string coordinate", map[string]any{"type": "Point", "coordinates": []any{"1", 2.0}}, Point{}, true},
		{"out of range", map[string]any{"type": "Point", "coordinates": []any{10.0, 95.0}}, Point{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGeoJSON(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
