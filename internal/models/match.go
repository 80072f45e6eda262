package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openplay/sportmatch/internal/geo"
)

type MatchStatus string

const (
	MatchStatusOpen      MatchStatus = "open"
	MatchStatusFull      MatchStatus = "full"
	MatchStatusCancelled MatchStatus = "cancelled"
)

const (
	DefaultMatchDurationMinutes = 60
	DefaultMaxParticipants      = 2

	// MinMatchParticipants mirrors the max_participants >= 2 check on the
	// matches table: a match needs room for someone besides the creator.
	MinMatchParticipants = 2
)

type Match struct {
	ID                 uuid.UUID   `json:"id"`
	CreatorID          uuid.UUID   `json:"creator_id"`
	SportID            uuid.UUID   `json:"sport_id"`
	Title              string      `json:"title"`
	Description        *string     `json:"description,omitempty"`
	Location           *geo.Point  `json:"location,omitempty"`
	LocationName       *string     `json:"location_name,omitempty"`
	ScheduledAt        time.Time   `json:"scheduled_at"`
	DurationMinutes    int         `json:"duration_minutes"`
	MaxParticipants    int         `json:"max_participants"`
	SkillLevelRequired string      `json:"skill_level_required"`
	Status             MatchStatus `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (m Match) Coordinates() geo.Point {
	if m.Location == nil {
		return geo.Point{}
	}
	return *m.Location
}

type ParticipantStatus string

const ParticipantStatusConfirmed ParticipantStatus = "confirmed"

type MatchParticipant struct {
	MatchID  uuid.UUID         `json:"match_id"`
	UserID   uuid.UUID         `json:"user_id"`
	Username string            `json:"username"`
	Status   ParticipantStatus `json:"status"`
	JoinedAt time.Time         `json:"joined_at"`
}

// MatchDetail is the full projection returned by the single-match endpoint.
type MatchDetail struct {
	Match
	Sport        Sport              `json:"sport"`
	Creator      ProfileSummary     `json:"creator"`
	Participants []MatchParticipant `json:"participants"`
}

type CreateMatchParams struct {
	SportID            uuid.UUID
	Title              string
	Description        string
	Location           geo.Point
	LocationName       string
	ScheduledAt        time.Time
	DurationMinutes    int
	MaxParticipants    int
	SkillLevelRequired string
}

// UpdateMatchParams carries a partial update; nil fields are left alone.
type UpdateMatchParams struct {
	Title              *string
	Description        *string
	Location           *geo.Point
	LocationName       *string
	ScheduledAt        *time.Time
	DurationMinutes    *int
	MaxParticipants    *int
	SkillLevelRequired *string
}

// ListMatchesParams filters the match listing.
type ListMatchesParams struct {
	Status     MatchStatus
	SportID    *uuid.UUID
	SkillLevel *string
}

type MatchWithDistance struct {
	Match
	SportName        string  `json:"sport_name"`
	ParticipantCount int     `json:"participant_count"`
	DistanceMeters   float64 `json:"distance_meters"`
}
