package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/logging"
	"github.com/openplay/sportmatch/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidSkill    = errors.New("invalid skill level")
)

const maxProfileSearchResults = 50

type SearchProfilesParams struct {
	Origin       *geo.Point
	RadiusMeters float64
	SportID      *uuid.UUID
}

type ProfileServiceInterface interface {
	GetWithSports(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, userID uuid.UUID, params models.UpdateProfileParams) (*models.Profile, error)
	Setup(ctx context.Context, userID uuid.UUID, params models.SetupProfileParams) (*models.Profile, error)
	AddSport(ctx context.Context, userID uuid.UUID, params models.UpsertUserSportParams) error
	ReplaceSports(ctx context.Context, userID uuid.UUID, params []models.UpsertUserSportParams) error
	RemoveSport(ctx context.Context, userID, sportID uuid.UUID) error
	Search(ctx context.Context, params SearchProfilesParams) ([]models.ProfileWithDistance, error)
}

type ProfileService struct {
	db DB
}

func NewProfileService(db DB) *ProfileService {
	return &ProfileService{db: db}
}

func (s *ProfileService) GetWithSports(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profile, err := s.getProfile(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	sports, err := s.listUserSports(ctx, id)
	if err != nil {
		return nil, err
	}
	profile.Sports = sports

	return profile, nil
}

// Update applies the non-nil fields and returns the refreshed profile.
func (s *ProfileService) Update(ctx context.Context, userID uuid.UUID, params models.UpdateProfileParams) (*models.Profile, error) {
	if params.SkillLevel != nil && !models.ValidSkillLevel(*params.SkillLevel) {
		return nil, ErrInvalidSkill
	}
	if params.Location != nil {
		if err := params.Location.Validate(); err != nil {
			return nil, err
		}
	}

	setClauses := []string{"updated_at = NOW()"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if params.FullName != nil {
		setClauses = append(setClauses, "full_name = "+arg(*params.FullName))
	}
	if params.Bio != nil {
		setClauses = append(setClauses, "bio = "+arg(*params.Bio))
	}
	if params.Age != nil {
		setClauses = append(setClauses, "age = "+arg(*params.Age))
	}
	if params.SkillLevel != nil {
		setClauses = append(setClauses, "skill_level = "+arg(*params.SkillLevel))
	}
	if params.Location != nil {
		setClauses = append(setClauses, "location = ST_GeomFromText("+arg(params.Location.WKT())+", 4326)")
	}
	if params.LocationName != nil {
		setClauses = append(setClauses, "location_name = "+arg(*params.LocationName))
	}

	query := fmt.Sprintf("UPDATE profiles SET %s WHERE id = %s",
		strings.Join(setClauses, ", "), arg(userID))

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrProfileNotFound
	}

	return s.GetWithSports(ctx, userID)
}

// Setup populates the profile in one shot after signup. The preferred sports
// insert is best effort: a failure there is logged, not surfaced, so a bad
// sport id cannot strand an otherwise complete profile.
func (s *ProfileService) Setup(ctx context.Context, userID uuid.UUID, params models.SetupProfileParams) (*models.Profile, error) {
	if !models.ValidSkillLevel(params.SkillLevel) {
		return nil, ErrInvalidSkill
	}
	if params.Location != nil {
		if err := params.Location.Validate(); err != nil {
			return nil, err
		}
	}

	var locationWKT *string
	if params.Location != nil {
		wkt := params.Location.WKT()
		locationWKT = &wkt
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE profiles
		 SET full_name = $1,
		     bio = $2,
		     age = $3,
		     skill_level = $4,
		     location = CASE WHEN $5::text IS NULL THEN location ELSE ST_GeomFromText($5, 4326) END,
		     location_name = $6,
		     updated_at = NOW()
		 WHERE id = $7`,
		params.FullName, params.Bio, params.Age, params.SkillLevel, locationWKT, params.LocationName, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("setting up profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrProfileNotFound
	}

	for _, sportID := range params.PreferredSports {
		_, err := s.db.Exec(ctx,
			`INSERT INTO user_sports (user_id, sport_id, skill_level, is_preferred)
			 VALUES ($1, $2, $3, true)
			 ON CONFLICT (user_id, sport_id)
			 DO UPDATE SET skill_level = EXCLUDED.skill_level, is_preferred = true`,
			userID, sportID, params.SkillLevel,
		)
		if err != nil {
			logging.Warn("setup: preferred sport insert failed", map[string]interface{}{
				"user_id":  userID.String(),
				"sport_id": sportID.String(),
				"error":    err.Error(),
			})
		}
	}

	return s.GetWithSports(ctx, userID)
}

func (s *ProfileService) AddSport(ctx context.Context, userID uuid.UUID, params models.UpsertUserSportParams) error {
	if !models.ValidSkillLevel(params.SkillLevel) {
		return ErrInvalidSkill
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO user_sports (user_id, sport_id, skill_level, is_preferred)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, sport_id)
		 DO UPDATE SET skill_level = EXCLUDED.skill_level, is_preferred = EXCLUDED.is_preferred`,
		userID, params.SportID, params.SkillLevel, params.IsPreferred,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrSportNotFound
		}
		return fmt.Errorf("upserting user sport: %w", err)
	}
	return nil
}

// ReplaceSports swaps the full preference set in one transaction so readers
// never observe a half-replaced list.
func (s *ProfileService) ReplaceSports(ctx context.Context, userID uuid.UUID, params []models.UpsertUserSportParams) error {
	for _, p := range params {
		if !models.ValidSkillLevel(p.SkillLevel) {
			return ErrInvalidSkill
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is a no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM user_sports WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clearing user sports: %w", err)
	}

	for _, p := range params {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_sports (user_id, sport_id, skill_level, is_preferred)
			 VALUES ($1, $2, $3, $4)`,
			userID, p.SportID, p.SkillLevel, p.IsPreferred,
		); err != nil {
			if isForeignKeyViolation(err) {
				return ErrSportNotFound
			}
			if isUniqueViolation(err) {
				return fmt.Errorf("duplicate sport %s in replacement set", p.SportID)
			}
			return fmt.Errorf("inserting user sport: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *ProfileService) RemoveSport(ctx context.Context, userID, sportID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM user_sports WHERE user_id = $1 AND sport_id = $2`,
		userID, sportID,
	)
	if err != nil {
		return fmt.Errorf("removing user sport: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSportNotFound
	}
	return nil
}

// Search lists profiles, optionally ranked by distance from an origin point
// and filtered to players of a sport. Results are capped at 50.
func (s *ProfileService) Search(ctx context.Context, params SearchProfilesParams) ([]models.ProfileWithDistance, error) {
	if params.Origin != nil {
		if err := params.Origin.Validate(); err != nil {
			return nil, err
		}
		if params.RadiusMeters <= 0 {
			params.RadiusMeters = geo.DefaultRadiusMeters
		}
	}

	query := `SELECT p.id, p.username, p.full_name, p.bio, p.age, p.skill_level,
	                 ST_AsText(p.location), p.location_name, p.created_at, p.updated_at
	          FROM profiles p`
	args := []any{}

	conditions := []string{}
	if params.SportID != nil {
		args = append(args, *params.SportID)
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS(SELECT 1 FROM user_sports us WHERE us.user_id = p.id AND us.sport_id = $%d)", len(args)))
	}
	if params.Origin != nil {
		conditions = append(conditions, "p.location IS NOT NULL")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := maxProfileSearchResults
	if params.Origin != nil {
		// Over-fetch so the distance filter still has enough candidates.
		limit = geo.MaxCandidateRows
	}
	query += fmt.Sprintf(" ORDER BY p.username ASC LIMIT %d", limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching profiles: %w", err)
	}
	defer rows.Close()

	profiles := []models.Profile{}
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}

	if params.Origin == nil {
		results := make([]models.ProfileWithDistance, 0, len(profiles))
		for _, p := range profiles {
			results = append(results, models.ProfileWithDistance{Profile: p})
		}
		return results, nil
	}

	ranked := geo.RankWithinRadius(*params.Origin, profiles, params.RadiusMeters)
	results := make([]models.ProfileWithDistance, 0, len(ranked))
	for _, r := range ranked {
		if len(results) == maxProfileSearchResults {
			break
		}
		results = append(results, models.ProfileWithDistance{
			Profile:        r.Item,
			DistanceMeters: r.DistanceMeters,
		})
	}
	return results, nil
}

func (s *ProfileService) getProfile(ctx context.Context, q DBConn, id uuid.UUID) (*models.Profile, error) {
	row := q.QueryRow(ctx,
		`SELECT id, username, full_name, bio, age, skill_level,
		        ST_AsText(location), location_name, created_at, updated_at
		 FROM profiles WHERE id = $1`,
		id,
	)

	profile, err := scanProfileRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return profile, nil
}

func (s *ProfileService) listUserSports(ctx context.Context, userID uuid.UUID) ([]models.UserSport, error) {
	rows, err := s.db.Query(ctx,
		`SELECT us.user_id, us.sport_id, sp.name, us.skill_level, us.is_preferred, us.created_at
		 FROM user_sports us
		 JOIN sports sp ON sp.id = us.sport_id
		 WHERE us.user_id = $1
		 ORDER BY sp.name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing user sports: %w", err)
	}
	defer rows.Close()

	sports := []models.UserSport{}
	for rows.Next() {
		var us models.UserSport
		if err := rows.Scan(&us.UserID, &us.SportID, &us.SportName, &us.SkillLevel, &us.IsPreferred, &us.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user sport: %w", err)
		}
		sports = append(sports, us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user sports: %w", err)
	}

	return sports, nil
}

func scanProfileRow(row Row) (*models.Profile, error) {
	profile := &models.Profile{Sports: []models.UserSport{}}
	var locationWKT *string

	err := row.Scan(&profile.ID, &profile.Username, &profile.FullName, &profile.Bio,
		&profile.Age, &profile.SkillLevel, &locationWKT, &profile.LocationName,
		&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if locationWKT != nil {
		point, err := geo.ParsePoint(*locationWKT)
		if err != nil {
			return nil, fmt.Errorf("decoding profile location: %w", err)
		}
		profile.Location = &point
	}

	return profile, nil
}

func scanProfile(rows Rows) (*models.Profile, error) {
	profile, err := scanProfileRow(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning profile: %w", err)
	}
	return profile, nil
}
