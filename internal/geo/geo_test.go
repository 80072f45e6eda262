package geo

import (
	"errors"
	"math"
	"testing"
)

func TestNewPoint_RangeValidation(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lng     float64
		wantErr error
	}{
		{name: "valid", lat: 37.8, lng: -122.4},
		{name: "lat too high", lat: 90.0001, lng: 0, wantErr: ErrInvalidLatitude},
		{name: "lat too low", lat: -90.0001, lng: 0, wantErr: ErrInvalidLatitude},
		{name: "lng too high", lat: 0, lng: 180.0001, wantErr: ErrInvalidLongitude},
		{name: "lng too low", lat: 0, lng: -180.0001, wantErr: ErrInvalidLongitude},
		{name: "lat NaN", lat: math.NaN(), lng: 0, wantErr: ErrInvalidLatitude},
		{name: "boundary lat", lat: 90, lng: 180},
		{name: "boundary negative", lat: -90, lng: -180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPoint(tt.lat, tt.lng)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPointWKTRoundTrip(t *testing.T) {
	original := Point{Lat: 37.8, Lng: -122.4}

	parsed, err := ParsePoint(original.WKT())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(parsed.Lat-original.Lat) > 1e-9 || math.Abs(parsed.Lng-original.Lng) > 1e-9 {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, original)
	}
}

func TestParsePoint(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLng float64
		wantLat float64
		wantErr bool
	}{
		{name: "plain", input: "POINT(-122.4 37.8)", wantLng: -122.4, wantLat: 37.8},
		{name: "integers", input: "POINT(10 20)", wantLng: 10, wantLat: 20},
		{name: "extra whitespace", input: "  POINT( -0.1275   51.507222 ) ", wantLng: -0.1275, wantLat: 51.507222},
		{name: "empty", input: "", wantErr: true},
		{name: "missing paren", input: "POINT -122.4 37.8", wantErr: true},
		{name: "single coordinate", input: "POINT(-122.4)", wantErr: true},
		{name: "not a number", input: "POINT(abc def)", wantErr: true},
		{name: "out of range lat", input: "POINT(0 91)", wantErr: true},
		{name: "out of range lng", input: "POINT(181 0)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePoint(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Lng != tt.wantLng || p.Lat != tt.wantLat {
				t.Fatalf("expected (%v, %v), got (%v, %v)", tt.wantLng, tt.wantLat, p.Lng, p.Lat)
			}
		})
	}
}

func TestDistance_KnownPairs(t *testing.T) {
	// San Francisco to Oakland is roughly 13.4 km.
	sf := Point{Lat: 37.7749, Lng: -122.4194}
	oakland := Point{Lat: 37.8044, Lng: -122.2712}

	d := Distance(sf, oakland)
	if d < 12000 || d > 15000 {
		t.Fatalf("expected ~13.4km, got %vm", d)
	}

	if d := Distance(sf, sf); d != 0 {
		t.Fatalf("expected zero distance to self, got %v", d)
	}

	// Symmetry.
	if Distance(sf, oakland) != Distance(oakland, sf) {
		t.Fatal("expected distance to be symmetric")
	}
}

type located struct {
	id string
	p  Point
}

func (l located) Coordinates() Point { return l.p }

func TestRankWithinRadius_FiltersAndSorts(t *testing.T) {
	origin := Point{Lat: 37.81, Lng: -122.41}

	candidates := []located{
		{id: "far", p: Point{Lat: 38.5, Lng: -121.5}},      // ~110km away
		{id: "near", p: Point{Lat: 37.8, Lng: -122.4}},     // ~1.4km
		{id: "nearer", p: Point{Lat: 37.811, Lng: -122.41}}, // ~110m
	}

	ranked := RankWithinRadius(origin, candidates, 5000)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 results inside radius, got %d", len(ranked))
	}
	if ranked[0].Item.id != "nearer" || ranked[1].Item.id != "near" {
		t.Fatalf("expected ascending distance order, got %v then %v", ranked[0].Item.id, ranked[1].Item.id)
	}
	for _, r := range ranked {
		if r.DistanceMeters > 5000 {
			t.Fatalf("result %s outside requested radius: %v", r.Item.id, r.DistanceMeters)
		}
	}
}

func TestRankWithinRadius_Empty(t *testing.T) {
	ranked := RankWithinRadius(Point{}, []located{}, 1000)
	if len(ranked) != 0 {
		t.Fatalf("expected empty result, got %d", len(ranked))
	}
}
