package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/models"
)

type NearbyMatchesParams struct {
	Origin       geo.Point
	RadiusMeters float64
	SportID      *uuid.UUID
}

type LocationServiceInterface interface {
	NearbyUsers(ctx context.Context, callerID uuid.UUID, origin geo.Point, radiusMeters float64) (*models.NearbyUsersResult, error)
	NearbyMatches(ctx context.Context, params NearbyMatchesParams) (*models.NearbyMatchesResult, error)
	PopularAreas(ctx context.Context, origin geo.Point, radiusMeters float64) ([]models.PopularArea, error)
	UpdateLocation(ctx context.Context, userID uuid.UUID, point geo.Point, locationName *string) error
}

type LocationService struct {
	db DB
}

func NewLocationService(db DB) *LocationService {
	return &LocationService{db: db}
}

// NearbyUsers ranks location-bearing profiles around the origin. Candidates
// are fetched in bulk and filtered by great-circle distance here rather than
// in the store, so the ordering is exact haversine meters.
func (s *LocationService) NearbyUsers(ctx context.Context, callerID uuid.UUID, origin geo.Point, radiusMeters float64) (*models.NearbyUsersResult, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = geo.DefaultRadiusMeters
	}

	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT id, username, full_name, bio, age, skill_level,
		        ST_AsText(location), location_name, created_at, updated_at
		 FROM profiles
		 WHERE location IS NOT NULL AND id <> $1
		 LIMIT %d`, geo.MaxCandidateRows),
		callerID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching nearby user candidates: %w", err)
	}
	defer rows.Close()

	candidates := []models.Profile{}
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearby user candidates: %w", err)
	}

	ranked := geo.RankWithinRadius(origin, candidates, radiusMeters)
	users := make([]models.ProfileWithDistance, 0, len(ranked))
	for _, r := range ranked {
		users = append(users, models.ProfileWithDistance{
			Profile:        r.Item,
			DistanceMeters: r.DistanceMeters,
		})
	}

	return &models.NearbyUsersResult{
		Origin:       origin,
		RadiusMeters: radiusMeters,
		Users:        users,
	}, nil
}

// NearbyMatches ranks upcoming open matches around the origin, optionally
// narrowed to one sport.
func (s *LocationService) NearbyMatches(ctx context.Context, params NearbyMatchesParams) (*models.NearbyMatchesResult, error) {
	if err := params.Origin.Validate(); err != nil {
		return nil, err
	}
	if params.RadiusMeters <= 0 {
		params.RadiusMeters = geo.DefaultRadiusMeters
	}

	query := `SELECT m.id, m.creator_id, m.sport_id, m.title, m.description,
	                 ST_AsText(m.location), m.location_name, m.scheduled_at,
	                 m.duration_minutes, m.max_participants, m.skill_level_required,
	                 m.status, m.created_at, m.updated_at,
	                 sp.name,
	                 (SELECT COUNT(*) FROM match_participants mp
	                  WHERE mp.match_id = m.id AND mp.status = 'confirmed')
	          FROM matches m
	          JOIN sports sp ON sp.id = m.sport_id
	          WHERE m.status = 'open' AND m.scheduled_at > NOW() AND m.location IS NOT NULL`
	args := []any{}
	if params.SportID != nil {
		args = append(args, *params.SportID)
		query += fmt.Sprintf(" AND m.sport_id = $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY m.scheduled_at ASC LIMIT %d", geo.MaxCandidateRows)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching nearby match candidates: %w", err)
	}
	defer rows.Close()

	candidates := []models.MatchWithDistance{}
	for rows.Next() {
		var m models.MatchWithDistance
		var locationWKT *string
		err := rows.Scan(&m.ID, &m.CreatorID, &m.SportID, &m.Title, &m.Description,
			&locationWKT, &m.LocationName, &m.ScheduledAt, &m.DurationMinutes,
			&m.MaxParticipants, &m.SkillLevelRequired, &m.Status, &m.CreatedAt,
			&m.UpdatedAt, &m.SportName, &m.ParticipantCount)
		if err != nil {
			return nil, fmt.Errorf("scanning nearby match candidate: %w", err)
		}
		if locationWKT != nil {
			point, err := geo.ParsePoint(*locationWKT)
			if err != nil {
				return nil, fmt.Errorf("decoding match location: %w", err)
			}
			m.Location = &point
		}
		candidates = append(candidates, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearby match candidates: %w", err)
	}

	ranked := geo.RankWithinRadius(params.Origin, candidates, params.RadiusMeters)
	matches := make([]models.MatchWithDistance, 0, len(ranked))
	for _, r := range ranked {
		m := r.Item
		m.DistanceMeters = r.DistanceMeters
		matches = append(matches, m)
	}

	return &models.NearbyMatchesResult{
		Origin:       params.Origin,
		RadiusMeters: params.RadiusMeters,
		Matches:      matches,
	}, nil
}

// PopularAreas aggregates upcoming match locations into ~1km grid cells via
// the popular_match_areas SQL function and returns cell centroids with
// counts, busiest first.
func (s *LocationService) PopularAreas(ctx context.Context, origin geo.Point, radiusMeters float64) ([]models.PopularArea, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = geo.DefaultRadiusMeters
	}

	rows, err := s.db.Query(ctx,
		`SELECT center_lat, center_lng, match_count
		 FROM popular_match_areas($1, $2, $3)`,
		origin.Lat, origin.Lng, radiusMeters,
	)
	if err != nil {
		return nil, fmt.Errorf("listing popular areas: %w", err)
	}
	defer rows.Close()

	areas := []models.PopularArea{}
	for rows.Next() {
		var area models.PopularArea
		if err := rows.Scan(&area.Center.Lat, &area.Center.Lng, &area.MatchCount); err != nil {
			return nil, fmt.Errorf("scanning popular area: %w", err)
		}
		areas = append(areas, area)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating popular areas: %w", err)
	}

	return areas, nil
}

// UpdateLocation writes the caller's profile point and optional label.
func (s *LocationService) UpdateLocation(ctx context.Context, userID uuid.UUID, point geo.Point, locationName *string) error {
	if err := point.Validate(); err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE profiles
		 SET location = ST_GeomFromText($1, 4326),
		     location_name = COALESCE($2, location_name),
		     updated_at = NOW()
		 WHERE id = $3`,
		point.WKT(), locationName, userID,
	)
	if err != nil {
		return fmt.Errorf("updating location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
