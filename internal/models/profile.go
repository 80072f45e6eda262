package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openplay/sportmatch/internal/geo"
)

// SkillLevel values accepted on profiles, sport preferences and matches.
const (
	SkillLevelAny          = "any"
	SkillLevelBeginner     = "beginner"
	SkillLevelIntermediate = "intermediate"
	SkillLevelAdvanced     = "advanced"
)

func ValidSkillLevel(s string) bool {
	switch s {
	case SkillLevelAny, SkillLevelBeginner, SkillLevelIntermediate, SkillLevelAdvanced:
		return true
	}
	return false
}

// Profile shares its id with the users row it belongs to.
type Profile struct {
	ID           uuid.UUID   `json:"id"`
	Username     string      `json:"username"`
	FullName     *string     `json:"full_name,omitempty"`
	Bio          *string     `json:"bio,omitempty"`
	Age          *int        `json:"age,omitempty"`
	SkillLevel   *string     `json:"skill_level,omitempty"`
	Location     *geo.Point  `json:"location,omitempty"`
	LocationName *string     `json:"location_name,omitempty"`
	Sports       []UserSport `json:"sports"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// UpdateProfileParams carries a partial update; nil fields are left alone.
type UpdateProfileParams struct {
	FullName     *string
	Bio          *string
	Age          *int
	SkillLevel   *string
	Location     *geo.Point
	LocationName *string
}

// SetupProfileParams is the one-shot initial population after signup.
type SetupProfileParams struct {
	FullName        string
	Bio             string
	Age             *int
	SkillLevel      string
	Location        *geo.Point
	LocationName    string
	PreferredSports []uuid.UUID
}

// ProfileSummary is the compact projection embedded in match details and
// search results.
type ProfileSummary struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	FullName   *string   `json:"full_name,omitempty"`
	SkillLevel *string   `json:"skill_level,omitempty"`
}

// ProfileWithDistance annotates a search hit with its distance from the
// query point.
type ProfileWithDistance struct {
	Profile
	DistanceMeters float64 `json:"distance_meters"`
}

// Coordinates implements geo.Locatable; callers must only rank profiles that
// carry a location.
func (p Profile) Coordinates() geo.Point {
	if p.Location == nil {
		return geo.Point{}
	}
	return *p.Location
}
