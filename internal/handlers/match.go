package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/models"
	"github.com/openplay/sportmatch/internal/services"
)

type MatchHandler struct {
	matchService services.MatchServiceInterface
}

func NewMatchHandler(matchService services.MatchServiceInterface) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

type CreateMatchRequest struct {
	SportID            uuid.UUID `json:"sport_id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Location           []float64 `json:"location"` // [lng, lat]
	LocationName       string    `json:"location_name"`
	ScheduledAt        time.Time `json:"scheduled_at"`
	DurationMinutes    int       `json:"duration_minutes"`
	MaxParticipants    int       `json:"max_participants"`
	SkillLevelRequired string    `json:"skill_level_required"`
}

type UpdateMatchRequest struct {
	Title              *string    `json:"title"`
	Description        *string    `json:"description"`
	Location           []float64  `json:"location"` // [lng, lat]
	LocationName       *string    `json:"location_name"`
	ScheduledAt        *time.Time `json:"scheduled_at"`
	DurationMinutes    *int       `json:"duration_minutes"`
	MaxParticipants    *int       `json:"max_participants"`
	SkillLevelRequired *string    `json:"skill_level_required"`
}

type MatchListResponse struct {
	Matches []models.Match `json:"matches"`
}

type MatchResponse struct {
	Match *models.Match `json:"match"`
}

func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	params := models.ListMatchesParams{}
	query := r.URL.Query()

	if status := query.Get("status"); status != "" {
		switch models.MatchStatus(status) {
		case models.MatchStatusOpen, models.MatchStatusFull, models.MatchStatusCancelled:
			params.Status = models.MatchStatus(status)
		default:
			writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid match status")
			return
		}
	}
	if sportStr := query.Get("sport_id"); sportStr != "" {
		sportID, err := uuid.Parse(sportStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid sport id")
			return
		}
		params.SportID = &sportID
	}
	if skill := query.Get("skill_level"); skill != "" {
		if !models.ValidSkillLevel(skill) {
			writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid skill level")
			return
		}
		params.SkillLevel = &skill
	}

	matches, err := h.matchService.List(r.Context(), params)
	if err != nil {
		writeInternalError(w, "listing matches", err)
		return
	}

	writeJSON(w, http.StatusOK, MatchListResponse{Matches: matches})
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDPath(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid match id")
		return
	}

	detail, err := h.matchService.Get(r.Context(), id)
	if errors.Is(err, services.ErrMatchNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Match not found")
		return
	}
	if err != nil {
		writeInternalError(w, "getting match", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*models.MatchDetail{"match": detail})
}

func (h *MatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	var req CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if req.SportID == uuid.Nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Sport id is required")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Title is required")
		return
	}
	if req.ScheduledAt.IsZero() {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Scheduled time is required")
		return
	}

	location, err := pointFromArray(req.Location)
	if err != nil || location == nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Location [lng, lat] is required")
		return
	}

	match, err := h.matchService.Create(r.Context(), user.ID, models.CreateMatchParams{
		SportID:            req.SportID,
		Title:              req.Title,
		Description:        req.Description,
		Location:           *location,
		LocationName:       req.LocationName,
		ScheduledAt:        req.ScheduledAt,
		DurationMinutes:    req.DurationMinutes,
		MaxParticipants:    req.MaxParticipants,
		SkillLevelRequired: req.SkillLevelRequired,
	})
	if err != nil {
		h.writeMatchError(w, "creating match", err)
		return
	}

	writeJSON(w, http.StatusCreated, MatchResponse{Match: match})
}

func (h *MatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	id, ok := parseUUIDPath(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid match id")
		return
	}

	var req UpdateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}

	location, err := pointFromArray(req.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid location coordinates")
		return
	}

	match, err := h.matchService.Update(r.Context(), id, user.ID, models.UpdateMatchParams{
		Title:              req.Title,
		Description:        req.Description,
		Location:           location,
		LocationName:       req.LocationName,
		ScheduledAt:        req.ScheduledAt,
		DurationMinutes:    req.DurationMinutes,
		MaxParticipants:    req.MaxParticipants,
		SkillLevelRequired: req.SkillLevelRequired,
	})
	if err != nil {
		h.writeMatchError(w, "updating match", err)
		return
	}

	writeJSON(w, http.StatusOK, MatchResponse{Match: match})
}

func (h *MatchHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.requireAuthAndID(w, r)
	if !ok {
		return
	}

	if err := h.matchService.Join(r.Context(), id, user.ID); err != nil {
		h.writeMatchError(w, "joining match", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Joined match"})
}

func (h *MatchHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.requireAuthAndID(w, r)
	if !ok {
		return
	}

	if err := h.matchService.Leave(r.Context(), id, user.ID); err != nil {
		h.writeMatchError(w, "leaving match", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Left match"})
}

func (h *MatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.requireAuthAndID(w, r)
	if !ok {
		return
	}

	if err := h.matchService.Cancel(r.Context(), id, user.ID); err != nil {
		h.writeMatchError(w, "cancelling match", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Match cancelled"})
}

func (h *MatchHandler) requireAuthAndID(w http.ResponseWriter, r *http.Request) (*models.User, uuid.UUID, bool) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return nil, uuid.Nil, false
	}

	id, ok := parseUUIDPath(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid match id")
		return nil, uuid.Nil, false
	}

	return user, id, true
}

func (h *MatchHandler) writeMatchError(w http.ResponseWriter, context string, err error) {
	switch {
	case errors.Is(err, services.ErrMatchNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Match not found")
	case errors.Is(err, services.ErrMatchNotOpen):
		// A full or cancelled match is not joinable; callers see the same
		// 404 as a match that never existed.
		writeError(w, http.StatusNotFound, CodeNotFound, "Match is not open")
	case errors.Is(err, services.ErrSportNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Sport not found")
	case errors.Is(err, services.ErrMatchFull):
		writeError(w, http.StatusConflict, CodeConflict, "Match is full")
	case errors.Is(err, services.ErrAlreadyJoined):
		writeError(w, http.StatusConflict, CodeConflict, "Already joined this match")
	case errors.Is(err, services.ErrNotParticipant):
		writeError(w, http.StatusConflict, CodeConflict, "Not a participant of this match")
	case errors.Is(err, services.ErrNotMatchCreator):
		writeError(w, http.StatusForbidden, CodeForbidden, "Only the match creator may do this")
	case errors.Is(err, services.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, CodeValidationError, "Scheduled time must be in the future")
	case errors.Is(err, services.ErrInvalidParticipants):
		writeError(w, http.StatusBadRequest, CodeValidationError, "Max participants must be at least 2")
	case errors.Is(err, services.ErrInvalidSkill):
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid skill level")
	case errors.Is(err, geo.ErrInvalidLatitude), errors.Is(err, geo.ErrInvalidLongitude):
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid location coordinates")
	default:
		writeInternalError(w, context, err)
	}
}
