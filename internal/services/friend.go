package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/models"
)

var (
	ErrCannotFriendSelf     = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends       = errors.New("already friends")
	ErrRequestAlreadyExists = errors.New("friend request already exists")
	ErrRequestNotFound      = errors.New("friend request not found")
	ErrFriendshipNotFound   = errors.New("friendship not found")
)

const maxUserSearchResults = 20

type FriendServiceInterface interface {
	SendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.Connection, error)
	AcceptRequest(ctx context.Context, connectionID, callerID uuid.UUID) (*models.Connection, error)
	RejectRequest(ctx context.Context, connectionID, callerID uuid.UUID) error
	Remove(ctx context.Context, callerID, otherUserID uuid.UUID) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error)
	ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]models.PendingRequest, error)
	SearchUsers(ctx context.Context, callerID uuid.UUID, query string) ([]models.UserSearchResult, error)
	Suggestions(ctx context.Context, userID uuid.UUID, radiusMeters float64) ([]models.FriendSuggestion, error)
}

type FriendService struct {
	db DB
}

func NewFriendService(db DB) *FriendService {
	return &FriendService{db: db}
}

// SendRequest creates a pending connection from userID to friendID. Both
// user rows are locked in a stable order so two simultaneous requests
// between the same pair cannot create duplicate rows.
func (s *FriendService) SendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.Connection, error) {
	if userID == friendID {
		return nil, ErrCannotFriendSelf
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is a no-op after commit

	if err := lockUserPairForUpdate(ctx, tx, userID, friendID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	var existingStatus models.ConnectionStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM user_connections
		 WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`,
		userID, friendID,
	).Scan(&existingStatus)
	if err == nil {
		if existingStatus == models.ConnectionStatusAccepted {
			return nil, ErrAlreadyFriends
		}
		return nil, ErrRequestAlreadyExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("checking existing connection: %w", err)
	}

	conn := &models.Connection{}
	err = tx.QueryRow(ctx,
		`INSERT INTO user_connections (user_id, friend_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, friend_id, status, created_at`,
		userID, friendID, models.ConnectionStatusPending,
	).Scan(&conn.ID, &conn.UserID, &conn.FriendID, &conn.Status, &conn.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("creating friend request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return conn, nil
}

// AcceptRequest flips a pending connection to accepted. Only the receiver
// may accept; anyone else sees not found rather than a permission hint.
func (s *FriendService) AcceptRequest(ctx context.Context, connectionID, callerID uuid.UUID) (*models.Connection, error) {
	conn := &models.Connection{}
	err := s.db.QueryRow(ctx,
		`UPDATE user_connections SET status = $1
		 WHERE id = $2 AND friend_id = $3 AND status = $4
		 RETURNING id, user_id, friend_id, status, created_at`,
		models.ConnectionStatusAccepted, connectionID, callerID, models.ConnectionStatusPending,
	).Scan(&conn.ID, &conn.UserID, &conn.FriendID, &conn.Status, &conn.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accepting friend request: %w", err)
	}

	return conn, nil
}

// RejectRequest deletes a pending request addressed to the caller. A request
// that is already gone is treated as success.
func (s *FriendService) RejectRequest(ctx context.Context, connectionID, callerID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM user_connections
		 WHERE id = $1 AND friend_id = $2 AND status = $3`,
		connectionID, callerID, models.ConnectionStatusPending,
	)
	if err != nil {
		return fmt.Errorf("rejecting friend request: %w", err)
	}
	return nil
}

// Remove deletes an accepted connection between the caller and the other
// user, whichever side sent the original request.
func (s *FriendService) Remove(ctx context.Context, callerID, otherUserID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM user_connections
		 WHERE status = $1
		   AND ((user_id = $2 AND friend_id = $3) OR (user_id = $3 AND friend_id = $2))`,
		models.ConnectionStatusAccepted, callerID, otherUserID,
	)
	if err != nil {
		return fmt.Errorf("removing friend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

// ListFriends returns every accepted connection, always projecting the
// other party regardless of who sent the request.
func (s *FriendService) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error) {
	rows, err := s.db.Query(ctx,
		`SELECT uc.id,
		        CASE WHEN uc.user_id = $1 THEN uc.friend_id ELSE uc.user_id END,
		        p.username, p.full_name, p.skill_level, uc.created_at
		 FROM user_connections uc
		 JOIN profiles p ON p.id = CASE WHEN uc.user_id = $1 THEN uc.friend_id ELSE uc.user_id END
		 WHERE (uc.user_id = $1 OR uc.friend_id = $1) AND uc.status = $2
		 ORDER BY p.username ASC`,
		userID, models.ConnectionStatusAccepted,
	)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	defer rows.Close()

	friends := []models.Friend{}
	for rows.Next() {
		var f models.Friend
		if err := rows.Scan(&f.ConnectionID, &f.UserID, &f.Username, &f.FullName, &f.SkillLevel, &f.Since); err != nil {
			return nil, fmt.Errorf("scanning friend: %w", err)
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friends: %w", err)
	}

	return friends, nil
}

// ListPendingRequests returns requests awaiting the caller's decision,
// newest first.
func (s *FriendService) ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]models.PendingRequest, error) {
	rows, err := s.db.Query(ctx,
		`SELECT uc.id, uc.user_id, uc.friend_id, uc.status, uc.created_at,
		        p.username, p.full_name
		 FROM user_connections uc
		 JOIN profiles p ON p.id = uc.user_id
		 WHERE uc.friend_id = $1 AND uc.status = $2
		 ORDER BY uc.created_at DESC`,
		userID, models.ConnectionStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending requests: %w", err)
	}
	defer rows.Close()

	requests := []models.PendingRequest{}
	for rows.Next() {
		var r models.PendingRequest
		if err := rows.Scan(&r.ID, &r.UserID, &r.FriendID, &r.Status, &r.CreatedAt,
			&r.RequesterUsername, &r.RequesterFullName); err != nil {
			return nil, fmt.Errorf("scanning pending request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending requests: %w", err)
	}

	return requests, nil
}

// SearchUsers finds users by case-insensitive username substring, excluding
// the caller, and annotates each hit with its relationship to the caller.
func (s *FriendService) SearchUsers(ctx context.Context, callerID uuid.UUID, query string) ([]models.UserSearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.UserSearchResult{}, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT p.id, p.username, p.full_name,
		        CASE
		          WHEN uc.status = 'accepted' THEN 'friends'
		          WHEN uc.status = 'pending' AND uc.user_id = $1 THEN 'pending_sent'
		          WHEN uc.status = 'pending' AND uc.friend_id = $1 THEN 'pending_received'
		          ELSE 'none'
		        END
		 FROM profiles p
		 LEFT JOIN user_connections uc
		   ON (uc.user_id = $1 AND uc.friend_id = p.id)
		   OR (uc.friend_id = $1 AND uc.user_id = p.id)
		 WHERE p.id <> $1 AND p.username ILIKE '%' || $2 || '%'
		 ORDER BY p.username ASC
		 LIMIT $3`,
		callerID, query, maxUserSearchResults,
	)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	defer rows.Close()

	results := []models.UserSearchResult{}
	for rows.Next() {
		var r models.UserSearchResult
		if err := rows.Scan(&r.ID, &r.Username, &r.FullName, &r.RelationshipStatus); err != nil {
			return nil, fmt.Errorf("scanning user search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user search results: %w", err)
	}

	return results, nil
}

// Suggestions returns nearby users sharing sports with the caller, excluding
// anyone already connected in any state. The heavy lifting lives in the
// suggest_friends SQL function next to the schema.
func (s *FriendService) Suggestions(ctx context.Context, userID uuid.UUID, radiusMeters float64) ([]models.FriendSuggestion, error) {
	if radiusMeters <= 0 {
		radiusMeters = geo.DefaultRadiusMeters
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, username, full_name, shared_sports, distance_km
		 FROM suggest_friends($1, $2)`,
		userID, radiusMeters,
	)
	if err != nil {
		return nil, fmt.Errorf("listing friend suggestions: %w", err)
	}
	defer rows.Close()

	suggestions := []models.FriendSuggestion{}
	for rows.Next() {
		var sg models.FriendSuggestion
		if err := rows.Scan(&sg.ID, &sg.Username, &sg.FullName, &sg.SharedSports, &sg.DistanceKM); err != nil {
			return nil, fmt.Errorf("scanning friend suggestion: %w", err)
		}
		suggestions = append(suggestions, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friend suggestions: %w", err)
	}

	return suggestions, nil
}
