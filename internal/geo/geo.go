// Package geo holds the point type and great-circle arithmetic shared by the
// profile, match and location search paths. Coordinates travel through the
// rest of the codebase as a validated Point; the textual WKT encoding only
// appears at the store boundary.
package geo

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// MaxCandidateRows caps how many location-bearing rows are fetched
	// before distance filtering happens in the application layer.
	MaxCandidateRows = 100

	earthRadiusMeters = 6371000.0
)

// DefaultRadiusMeters bounds proximity searches when the caller does not
// supply a radius. Overridden at startup from SEARCH_DEFAULT_RADIUS_METERS.
var DefaultRadiusMeters = 5000.0

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrMalformedPoint   = errors.New("malformed point encoding")
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func NewPoint(lat, lng float64) (Point, error) {
	p := Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return ErrInvalidLatitude
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// WKT renders the point in the store's `POINT(lng lat)` text encoding.
// Longitude comes first, matching the WKT axis order.
func (p Point) WKT() string {
	return fmt.Sprintf("POINT(%s %s)",
		strconv.FormatFloat(p.Lng, 'f', -1, 64),
		strconv.FormatFloat(p.Lat, 'f', -1, 64),
	)
}

var pointPattern = regexp.MustCompile(`^POINT\s*\(\s*(-?[0-9]+(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?)\s+(-?[0-9]+(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?)\s*\)$`)

// ParsePoint decodes the store's `POINT(lng lat)` encoding.
func ParsePoint(s string) (Point, error) {
	matches := pointPattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return Point{}, fmt.Errorf("%w: %q", ErrMalformedPoint, s)
	}

	lng, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrMalformedPoint, s)
	}
	lat, err := strconv.ParseFloat(matches[2], 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrMalformedPoint, s)
	}

	p := Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Distance returns the great-circle distance between two points in meters,
// using the haversine formula.
func Distance(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Locatable is anything carrying a coordinate that proximity search can rank.
type Locatable interface {
	Coordinates() Point
}

// Ranked pairs a candidate with its computed distance from the query point.
type Ranked[T Locatable] struct {
	Item           T
	DistanceMeters float64
}

// RankWithinRadius computes the distance from origin to every candidate,
// drops those beyond radiusMeters, and returns the rest sorted nearest
// first.
func RankWithinRadius[T Locatable](origin Point, candidates []T, radiusMeters float64) []Ranked[T] {
	ranked := make([]Ranked[T], 0, len(candidates))
	for _, c := range candidates {
		d := Distance(origin, c.Coordinates())
		if d > radiusMeters {
			continue
		}
		ranked = append(ranked, Ranked[T]{Item: c, DistanceMeters: d})
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].DistanceMeters < ranked[j].DistanceMeters
	})
	return ranked
}
