package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/models"
	"github.com/openplay/sportmatch/internal/services"
)

type ProfileHandler struct {
	profileService services.ProfileServiceInterface
}

func NewProfileHandler(profileService services.ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

type UpdateProfileRequest struct {
	FullName     *string   `json:"full_name"`
	Bio          *string   `json:"bio"`
	Age          *int      `json:"age"`
	SkillLevel   *string   `json:"skill_level"`
	Location     []float64 `json:"location"` // [lng, lat]
	LocationName *string   `json:"location_name"`
}

type SetupProfileRequest struct {
	FullName        string      `json:"full_name"`
	Bio             string      `json:"bio"`
	Age             *int        `json:"age"`
	SkillLevel      string      `json:"skill_level"`
	Location        []float64   `json:"location"` // [lng, lat]
	LocationName    string      `json:"location_name"`
	PreferredSports []uuid.UUID `json:"preferred_sports"`
}

type UpsertSportRequest struct {
	SportID     uuid.UUID `json:"sport_id"`
	SkillLevel  string    `json:"skill_level"`
	IsPreferred bool      `json:"is_preferred"`
}

type ReplaceSportsRequest struct {
	Sports []UpsertSportRequest `json:"sports"`
}

type ProfileResponse struct {
	Profile *models.Profile `json:"profile"`
}

type ProfileSearchResponse struct {
	Profiles []models.ProfileWithDistance `json:"profiles"`
}

// pointFromArray decodes the wire [lng, lat] pair.
func pointFromArray(coords []float64) (*geo.Point, error) {
	if coords == nil {
		return nil, nil
	}
	if len(coords) != 2 {
		return nil, geo.ErrMalformedPoint
	}
	point, err := geo.NewPoint(coords[1], coords[0])
	if err != nil {
		return nil, err
	}
	return &point, nil
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDPath(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid profile id")
		return
	}

	profile, err := h.profileService.GetWithSports(r.Context(), id)
	if errors.Is(err, services.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Profile not found")
		return
	}
	if err != nil {
		writeInternalError(w, "getting profile", err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profile})
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}

	location, err := pointFromArray(req.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid location coordinates")
		return
	}

	profile, err := h.profileService.Update(r.Context(), id, models.UpdateProfileParams{
		FullName:     req.FullName,
		Bio:          req.Bio,
		Age:          req.Age,
		SkillLevel:   req.SkillLevel,
		Location:     location,
		LocationName: req.LocationName,
	})
	if err != nil {
		h.writeProfileError(w, "updating profile", err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profile})
}

func (h *ProfileHandler) Setup(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req SetupProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if req.SkillLevel == "" {
		req.SkillLevel = models.SkillLevelAny
	}

	location, err := pointFromArray(req.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid location coordinates")
		return
	}

	profile, err := h.profileService.Setup(r.Context(), id, models.SetupProfileParams{
		FullName:        req.FullName,
		Bio:             req.Bio,
		Age:             req.Age,
		SkillLevel:      req.SkillLevel,
		Location:        location,
		LocationName:    req.LocationName,
		PreferredSports: req.PreferredSports,
	})
	if err != nil {
		h.writeProfileError(w, "setting up profile", err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profile})
}

func (h *ProfileHandler) AddSport(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req UpsertSportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if req.SportID == uuid.Nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Sport id is required")
		return
	}
	if req.SkillLevel == "" {
		req.SkillLevel = models.SkillLevelAny
	}

	err := h.profileService.AddSport(r.Context(), id, models.UpsertUserSportParams{
		SportID:     req.SportID,
		SkillLevel:  req.SkillLevel,
		IsPreferred: req.IsPreferred,
	})
	if err != nil {
		h.writeProfileError(w, "adding sport", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Sport preference saved"})
}

func (h *ProfileHandler) ReplaceSports(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req ReplaceSportsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}

	params := make([]models.UpsertUserSportParams, 0, len(req.Sports))
	for _, s := range req.Sports {
		if s.SportID == uuid.Nil {
			writeError(w, http.StatusBadRequest, CodeValidationError, "Sport id is required")
			return
		}
		skill := s.SkillLevel
		if skill == "" {
			skill = models.SkillLevelAny
		}
		params = append(params, models.UpsertUserSportParams{
			SportID:     s.SportID,
			SkillLevel:  skill,
			IsPreferred: s.IsPreferred,
		})
	}

	if err := h.profileService.ReplaceSports(r.Context(), id, params); err != nil {
		h.writeProfileError(w, "replacing sports", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Sport preferences replaced"})
}

func (h *ProfileHandler) RemoveSport(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	sportID, ok := parseUUIDPath(r, "sportId")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid sport id")
		return
	}

	err := h.profileService.RemoveSport(r.Context(), id, sportID)
	if errors.Is(err, services.ErrSportNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Sport preference not found")
		return
	}
	if err != nil {
		writeInternalError(w, "removing sport", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Sport preference removed"})
}

// Search is open to anonymous callers; lat/lng are optional together.
func (h *ProfileHandler) Search(w http.ResponseWriter, r *http.Request) {
	params := services.SearchProfilesParams{}

	query := r.URL.Query()
	if query.Get("lat") != "" || query.Get("lng") != "" {
		origin, ok := parseOrigin(r)
		if !ok {
			writeError(w, http.StatusBadRequest, CodeValidationError, "Both lat and lng are required")
			return
		}
		if err := origin.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationError, err.Error())
			return
		}
		params.Origin = &origin
		params.RadiusMeters = parseRadius(r)
	}

	if sportStr := query.Get("sport_id"); sportStr != "" {
		sportID, err := uuid.Parse(sportStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid sport id")
			return
		}
		params.SportID = &sportID
	}

	profiles, err := h.profileService.Search(r.Context(), params)
	if err != nil {
		writeInternalError(w, "searching profiles", err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileSearchResponse{Profiles: profiles})
}

// requireOwner authenticates the caller and checks the path id is their own
// profile.
func (h *ProfileHandler) requireOwner(w http.ResponseWriter, r *http.Request) (*models.User, uuid.UUID, bool) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return nil, uuid.Nil, false
	}

	id, ok := parseUUIDPath(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid profile id")
		return nil, uuid.Nil, false
	}
	if id != user.ID {
		writeError(w, http.StatusForbidden, CodeForbidden, "You can only modify your own profile")
		return nil, uuid.Nil, false
	}

	return user, id, true
}

func (h *ProfileHandler) writeProfileError(w http.ResponseWriter, context string, err error) {
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Profile not found")
	case errors.Is(err, services.ErrSportNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Sport not found")
	case errors.Is(err, services.ErrInvalidSkill):
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid skill level")
	case errors.Is(err, geo.ErrInvalidLatitude), errors.Is(err, geo.ErrInvalidLongitude):
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid location coordinates")
	default:
		writeInternalError(w, context, err)
	}
}
