package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/openplay/sportmatch/internal/models"
	"github.com/openplay/sportmatch/internal/services"
)

const minSearchQueryLength = 2

type FriendHandler struct {
	friendService services.FriendServiceInterface
}

func NewFriendHandler(friendService services.FriendServiceInterface) *FriendHandler {
	return &FriendHandler{friendService: friendService}
}

type SendFriendRequestRequest struct {
	FriendID uuid.UUID `json:"friend_id"`
}

type ConnectionResponse struct {
	Connection *models.Connection `json:"connection"`
}

type FriendListResponse struct {
	Friends []models.Friend `json:"friends"`
}

type PendingRequestsResponse struct {
	Requests []models.PendingRequest `json:"requests"`
}

type UserSearchResponse struct {
	Users []models.UserSearchResult `json:"users"`
}

type SuggestionsResponse struct {
	Suggestions []models.FriendSuggestion `json:"suggestions"`
}

func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	var req SendFriendRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if req.FriendID == uuid.Nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Friend id is required")
		return
	}

	conn, err := h.friendService.SendRequest(r.Context(), user.ID, req.FriendID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCannotFriendSelf):
			writeError(w, http.StatusBadRequest, CodeValidationError, "Cannot send a friend request to yourself")
		case errors.Is(err, services.ErrUserNotFound):
			writeError(w, http.StatusNotFound, CodeNotFound, "User not found")
		case errors.Is(err, services.ErrAlreadyFriends):
			writeError(w, http.StatusConflict, CodeConflict, "Already friends")
		case errors.Is(err, services.ErrRequestAlreadyExists):
			writeError(w, http.StatusConflict, CodeConflict, "Friend request already exists")
		default:
			writeInternalError(w, "sending friend request", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, ConnectionResponse{Connection: conn})
}

func (h *FriendHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	id, ok := parseUUIDPath(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request id")
		return
	}

	conn, err := h.friendService.AcceptRequest(r.Context(), id, user.ID)
	if errors.Is(err, services.ErrRequestNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Friend request not found")
		return
	}
	if err != nil {
		writeInternalError(w, "accepting friend request", err)
		return
	}

	writeJSON(w, http.StatusOK, ConnectionResponse{Connection: conn})
}

func (h *FriendHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	id, ok := parseUUIDPath(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request id")
		return
	}

	if err := h.friendService.RejectRequest(r.Context(), id, user.ID); err != nil {
		writeInternalError(w, "rejecting friend request", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Friend request rejected"})
}

func (h *FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	otherID, ok := parseUUIDPath(r, "userId")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid user id")
		return
	}

	err := h.friendService.Remove(r.Context(), user.ID, otherID)
	if errors.Is(err, services.ErrFriendshipNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Friendship not found")
		return
	}
	if err != nil {
		writeInternalError(w, "removing friend", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Friend removed"})
}

func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	friends, err := h.friendService.ListFriends(r.Context(), user.ID)
	if err != nil {
		writeInternalError(w, "listing friends", err)
		return
	}

	writeJSON(w, http.StatusOK, FriendListResponse{Friends: friends})
}

func (h *FriendHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	requests, err := h.friendService.ListPendingRequests(r.Context(), user.ID)
	if err != nil {
		writeInternalError(w, "listing friend requests", err)
		return
	}

	writeJSON(w, http.StatusOK, PendingRequestsResponse{Requests: requests})
}

func (h *FriendHandler) Search(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) < minSearchQueryLength {
		// Too-short queries return empty rather than erroring; typing in a
		// search box should not produce 400s.
		writeJSON(w, http.StatusOK, UserSearchResponse{Users: []models.UserSearchResult{}})
		return
	}

	users, err := h.friendService.SearchUsers(r.Context(), user.ID, query)
	if err != nil {
		writeInternalError(w, "searching users", err)
		return
	}

	writeJSON(w, http.StatusOK, UserSearchResponse{Users: users})
}

func (h *FriendHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	suggestions, err := h.friendService.Suggestions(r.Context(), user.ID, parseRadius(r))
	if err != nil {
		writeInternalError(w, "listing friend suggestions", err)
		return
	}

	for i := range suggestions {
		suggestions[i].DistanceKM = math.Round(suggestions[i].DistanceKM*10) / 10
	}

	writeJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: suggestions})
}
