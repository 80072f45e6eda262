package models

import (
	"time"

	"github.com/google/uuid"
)

type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusAccepted ConnectionStatus = "accepted"
)

// Connection is a friend-request row: user_id sent the request, friend_id
// received it. Once accepted it is treated as bidirectional.
type Connection struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	FriendID  uuid.UUID        `json:"friend_id"`
	Status    ConnectionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// Friend projects the other party of an accepted connection, regardless of
// which side the caller is on.
type Friend struct {
	ConnectionID uuid.UUID `json:"connection_id"`
	UserID       uuid.UUID `json:"user_id"`
	Username     string    `json:"username"`
	FullName     *string   `json:"full_name,omitempty"`
	SkillLevel   *string   `json:"skill_level,omitempty"`
	Since        time.Time `json:"since"`
}

// PendingRequest is an incoming request awaiting the caller's decision.
type PendingRequest struct {
	Connection
	RequesterUsername string  `json:"requester_username"`
	RequesterFullName *string `json:"requester_full_name,omitempty"`
}

// RelationshipStatus annotates user search results relative to the caller.
const (
	RelationshipNone            = "none"
	RelationshipFriends         = "friends"
	RelationshipPendingSent     = "pending_sent"
	RelationshipPendingReceived = "pending_received"
)

type UserSearchResult struct {
	ID                 uuid.UUID `json:"id"`
	Username           string    `json:"username"`
	FullName           *string   `json:"full_name,omitempty"`
	RelationshipStatus string    `json:"relationship_status"`
}

// FriendSuggestion is one row from the store-side suggestion function.
type FriendSuggestion struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	FullName     *string   `json:"full_name,omitempty"`
	SharedSports int       `json:"shared_sports"`
	DistanceKM   float64   `json:"distance_km"`
}
