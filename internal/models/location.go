package models

import "github.com/openplay/sportmatch/internal/geo"

// PopularArea is one aggregate cell from the popular_match_areas SQL
// function: roughly a 1km square with the centroid of its match locations.
type PopularArea struct {
	Center     geo.Point `json:"center"`
	MatchCount int       `json:"match_count"`
}

// NearbyUsersResult echoes the query parameters alongside the ranked hits.
type NearbyUsersResult struct {
	Origin       geo.Point             `json:"origin"`
	RadiusMeters float64               `json:"radius_meters"`
	Users        []ProfileWithDistance `json:"users"`
}

// NearbyMatchesResult echoes the query parameters alongside the ranked hits.
type NearbyMatchesResult struct {
	Origin       geo.Point           `json:"origin"`
	RadiusMeters float64             `json:"radius_meters"`
	Matches      []MatchWithDistance `json:"matches"`
}
