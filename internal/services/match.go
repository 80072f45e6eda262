package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/models"
)

var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrMatchNotOpen    = errors.New("match is not open")
	ErrMatchFull       = errors.New("match is full")
	ErrAlreadyJoined   = errors.New("already joined this match")
	ErrNotParticipant  = errors.New("not a participant of this match")
	ErrNotMatchCreator = errors.New("only the match creator may do this")
	ErrInvalidSchedule = errors.New("scheduled time must be in the future")

	ErrInvalidParticipants = errors.New("max_participants must be at least 2")
)

const maxMatchListResults = 50

const matchColumns = `id, creator_id, sport_id, title, description, ST_AsText(location),
	location_name, scheduled_at, duration_minutes, max_participants,
	skill_level_required, status, created_at, updated_at`

type MatchServiceInterface interface {
	List(ctx context.Context, params models.ListMatchesParams) ([]models.Match, error)
	Get(ctx context.Context, id uuid.UUID) (*models.MatchDetail, error)
	Create(ctx context.Context, creatorID uuid.UUID, params models.CreateMatchParams) (*models.Match, error)
	Update(ctx context.Context, matchID, callerID uuid.UUID, params models.UpdateMatchParams) (*models.Match, error)
	Join(ctx context.Context, matchID, userID uuid.UUID) error
	Leave(ctx context.Context, matchID, userID uuid.UUID) error
	Cancel(ctx context.Context, matchID, callerID uuid.UUID) error
}

type MatchService struct {
	db DB
}

func NewMatchService(db DB) *MatchService {
	return &MatchService{db: db}
}

// List returns upcoming matches matching the filters, soonest first. Status
// defaults to open; past matches never appear.
func (s *MatchService) List(ctx context.Context, params models.ListMatchesParams) ([]models.Match, error) {
	status := params.Status
	if status == "" {
		status = models.MatchStatusOpen
	}

	args := []any{status}
	conditions := []string{"status = $1", "scheduled_at > NOW()"}

	if params.SportID != nil {
		args = append(args, *params.SportID)
		conditions = append(conditions, fmt.Sprintf("sport_id = $%d", len(args)))
	}
	if params.SkillLevel != nil {
		args = append(args, *params.SkillLevel)
		conditions = append(conditions, fmt.Sprintf("skill_level_required = $%d", len(args)))
	}

	query := fmt.Sprintf(
		"SELECT %s FROM matches WHERE %s ORDER BY scheduled_at ASC LIMIT %d",
		matchColumns, strings.Join(conditions, " AND "), maxMatchListResults,
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	matches := []models.Match{}
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}

	return matches, nil
}

// Get returns the match with its sport, creator summary and confirmed
// participants.
func (s *MatchService) Get(ctx context.Context, id uuid.UUID) (*models.MatchDetail, error) {
	match, err := s.getMatch(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	detail := &models.MatchDetail{Match: *match, Participants: []models.MatchParticipant{}}

	err = s.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM sports WHERE id = $1`,
		match.SportID,
	).Scan(&detail.Sport.ID, &detail.Sport.Name, &detail.Sport.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting match sport: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`SELECT id, username, full_name, skill_level FROM profiles WHERE id = $1`,
		match.CreatorID,
	).Scan(&detail.Creator.ID, &detail.Creator.Username, &detail.Creator.FullName, &detail.Creator.SkillLevel)
	if err != nil {
		return nil, fmt.Errorf("getting match creator: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT mp.match_id, mp.user_id, p.username, mp.status, mp.joined_at
		 FROM match_participants mp
		 JOIN profiles p ON p.id = mp.user_id
		 WHERE mp.match_id = $1 AND mp.status = $2
		 ORDER BY mp.joined_at ASC`,
		id, models.ParticipantStatusConfirmed,
	)
	if err != nil {
		return nil, fmt.Errorf("listing match participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.MatchParticipant
		if err := rows.Scan(&p.MatchID, &p.UserID, &p.Username, &p.Status, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning match participant: %w", err)
		}
		detail.Participants = append(detail.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match participants: %w", err)
	}

	return detail, nil
}

// Create inserts the match and joins the creator as a confirmed participant
// in the same transaction; a match never exists without its creator in it.
func (s *MatchService) Create(ctx context.Context, creatorID uuid.UUID, params models.CreateMatchParams) (*models.Match, error) {
	if err := params.Location.Validate(); err != nil {
		return nil, err
	}
	if !params.ScheduledAt.After(time.Now()) {
		return nil, ErrInvalidSchedule
	}
	if params.DurationMinutes <= 0 {
		params.DurationMinutes = models.DefaultMatchDurationMinutes
	}
	if params.MaxParticipants <= 0 {
		params.MaxParticipants = models.DefaultMaxParticipants
	}
	if params.MaxParticipants < models.MinMatchParticipants {
		return nil, ErrInvalidParticipants
	}
	if params.SkillLevelRequired == "" {
		params.SkillLevelRequired = models.SkillLevelAny
	}
	if !models.ValidSkillLevel(params.SkillLevelRequired) {
		return nil, ErrInvalidSkill
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is a no-op after commit

	var description *string
	if params.Description != "" {
		description = &params.Description
	}
	var locationName *string
	if params.LocationName != "" {
		locationName = &params.LocationName
	}

	row := tx.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO matches (creator_id, sport_id, title, description, location,
		     location_name, scheduled_at, duration_minutes, max_participants,
		     skill_level_required, status)
		 VALUES ($1, $2, $3, $4, ST_GeomFromText($5, 4326), $6, $7, $8, $9, $10, 'open')
		 RETURNING %s`, matchColumns),
		creatorID, params.SportID, params.Title, description, params.Location.WKT(),
		locationName, params.ScheduledAt, params.DurationMinutes, params.MaxParticipants,
		params.SkillLevelRequired,
	)
	match, err := scanMatchRow(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrSportNotFound
		}
		return nil, fmt.Errorf("creating match: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO match_participants (match_id, user_id, status)
		 VALUES ($1, $2, $3)`,
		match.ID, creatorID, models.ParticipantStatusConfirmed,
	); err != nil {
		return nil, fmt.Errorf("joining creator to match: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return match, nil
}

// Update applies the non-nil fields; only the creator may update a match.
func (s *MatchService) Update(ctx context.Context, matchID, callerID uuid.UUID, params models.UpdateMatchParams) (*models.Match, error) {
	if params.SkillLevelRequired != nil && !models.ValidSkillLevel(*params.SkillLevelRequired) {
		return nil, ErrInvalidSkill
	}
	if params.Location != nil {
		if err := params.Location.Validate(); err != nil {
			return nil, err
		}
	}
	if params.ScheduledAt != nil && !params.ScheduledAt.After(time.Now()) {
		return nil, ErrInvalidSchedule
	}
	if params.MaxParticipants != nil && *params.MaxParticipants < models.MinMatchParticipants {
		return nil, ErrInvalidParticipants
	}

	match, err := s.getMatch(ctx, s.db, matchID)
	if err != nil {
		return nil, err
	}
	if match.CreatorID != callerID {
		return nil, ErrNotMatchCreator
	}

	setClauses := []string{"updated_at = NOW()"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if params.Title != nil {
		setClauses = append(setClauses, "title = "+arg(*params.Title))
	}
	if params.Description != nil {
		setClauses = append(setClauses, "description = "+arg(*params.Description))
	}
	if params.Location != nil {
		setClauses = append(setClauses, "location = ST_GeomFromText("+arg(params.Location.WKT())+", 4326)")
	}
	if params.LocationName != nil {
		setClauses = append(setClauses, "location_name = "+arg(*params.LocationName))
	}
	if params.ScheduledAt != nil {
		setClauses = append(setClauses, "scheduled_at = "+arg(*params.ScheduledAt))
	}
	if params.DurationMinutes != nil {
		setClauses = append(setClauses, "duration_minutes = "+arg(*params.DurationMinutes))
	}
	if params.MaxParticipants != nil {
		setClauses = append(setClauses, "max_participants = "+arg(*params.MaxParticipants))
	}
	if params.SkillLevelRequired != nil {
		setClauses = append(setClauses, "skill_level_required = "+arg(*params.SkillLevelRequired))
	}

	query := fmt.Sprintf("UPDATE matches SET %s WHERE id = %s RETURNING %s",
		strings.Join(setClauses, ", "), arg(matchID), matchColumns)

	row := s.db.QueryRow(ctx, query, args...)
	updated, err := scanMatchRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating match: %w", err)
	}

	return updated, nil
}

// Join adds the caller as a confirmed participant. The match row is locked
// for the duration of the transaction so capacity checks cannot race: the
// last slot flips the match from open to full atomically.
func (s *MatchService) Join(ctx context.Context, matchID, userID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is a no-op after commit

	match, err := s.getMatchForUpdate(ctx, tx, matchID)
	if err != nil {
		return err
	}
	if match.Status != models.MatchStatusOpen {
		return ErrMatchNotOpen
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM match_participants WHERE match_id = $1 AND status = $2`,
		matchID, models.ParticipantStatusConfirmed,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("counting match participants: %w", err)
	}
	if count >= match.MaxParticipants {
		return ErrMatchFull
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO match_participants (match_id, user_id, status)
		 VALUES ($1, $2, $3)`,
		matchID, userID, models.ParticipantStatusConfirmed,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyJoined
		}
		return fmt.Errorf("joining match: %w", err)
	}

	if count+1 >= match.MaxParticipants {
		if _, err := tx.Exec(ctx,
			`UPDATE matches SET status = $1, updated_at = NOW() WHERE id = $2`,
			models.MatchStatusFull, matchID,
		); err != nil {
			return fmt.Errorf("marking match full: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Leave removes the caller's participation; a full match reopens when a slot
// frees up.
func (s *MatchService) Leave(ctx context.Context, matchID, userID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is a no-op after commit

	match, err := s.getMatchForUpdate(ctx, tx, matchID)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM match_participants WHERE match_id = $1 AND user_id = $2`,
		matchID, userID,
	)
	if err != nil {
		return fmt.Errorf("leaving match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotParticipant
	}

	if match.Status == models.MatchStatusFull {
		if _, err := tx.Exec(ctx,
			`UPDATE matches SET status = $1, updated_at = NOW() WHERE id = $2`,
			models.MatchStatusOpen, matchID,
		); err != nil {
			return fmt.Errorf("reopening match: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Cancel marks the match cancelled; only the creator may cancel.
func (s *MatchService) Cancel(ctx context.Context, matchID, callerID uuid.UUID) error {
	match, err := s.getMatch(ctx, s.db, matchID)
	if err != nil {
		return err
	}
	if match.CreatorID != callerID {
		return ErrNotMatchCreator
	}
	if match.Status == models.MatchStatusCancelled {
		return nil
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE matches SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.MatchStatusCancelled, matchID,
	); err != nil {
		return fmt.Errorf("cancelling match: %w", err)
	}
	return nil
}

func (s *MatchService) getMatch(ctx context.Context, q DBConn, id uuid.UUID) (*models.Match, error) {
	row := q.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM matches WHERE id = $1", matchColumns), id,
	)
	match, err := scanMatchRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting match: %w", err)
	}
	return match, nil
}

func (s *MatchService) getMatchForUpdate(ctx context.Context, q DBConn, id uuid.UUID) (*models.Match, error) {
	row := q.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM matches WHERE id = $1 FOR UPDATE", matchColumns), id,
	)
	match, err := scanMatchRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking match: %w", err)
	}
	return match, nil
}

func scanMatchRow(row Row) (*models.Match, error) {
	match := &models.Match{}
	var locationWKT *string

	err := row.Scan(&match.ID, &match.CreatorID, &match.SportID, &match.Title,
		&match.Description, &locationWKT, &match.LocationName, &match.ScheduledAt,
		&match.DurationMinutes, &match.MaxParticipants, &match.SkillLevelRequired,
		&match.Status, &match.CreatedAt, &match.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if locationWKT != nil {
		point, err := geo.ParsePoint(*locationWKT)
		if err != nil {
			return nil, fmt.Errorf("decoding match location: %w", err)
		}
		match.Location = &point
	}

	return match, nil
}

func scanMatch(rows Rows) (*models.Match, error) {
	match, err := scanMatchRow(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning match: %w", err)
	}
	return match, nil
}
