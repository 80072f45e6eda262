package models

import (
	"time"

	"github.com/google/uuid"
)

type Sport struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSport is one row of a profile's sport preferences.
type UserSport struct {
	UserID      uuid.UUID `json:"user_id"`
	SportID     uuid.UUID `json:"sport_id"`
	SportName   string    `json:"sport_name"`
	SkillLevel  string    `json:"skill_level"`
	IsPreferred bool      `json:"is_preferred"`
	CreatedAt   time.Time `json:"created_at"`
}

// UpsertUserSportParams replaces skill level and preferred flag for an
// existing (user, sport) pair, or inserts a new one.
type UpsertUserSportParams struct {
	SportID     uuid.UUID
	SkillLevel  string
	IsPreferred bool
}
