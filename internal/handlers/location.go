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

type LocationHandler struct {
	locationService services.LocationServiceInterface
}

func NewLocationHandler(locationService services.LocationServiceInterface) *LocationHandler {
	return &LocationHandler{locationService: locationService}
}

type UpdateLocationRequest struct {
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	LocationName *string  `json:"location_name"`
}

type PopularAreasResponse struct {
	Areas []models.PopularArea `json:"areas"`
}

func (h *LocationHandler) NearbyUsers(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	origin, ok := parseOrigin(r)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Both lat and lng are required")
		return
	}

	result, err := h.locationService.NearbyUsers(r.Context(), user.ID, origin, parseRadius(r))
	if err != nil {
		h.writeLocationError(w, "searching nearby users", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *LocationHandler) NearbyMatches(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	origin, ok := parseOrigin(r)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Both lat and lng are required")
		return
	}

	params := services.NearbyMatchesParams{
		Origin:       origin,
		RadiusMeters: parseRadius(r),
	}
	if sportStr := r.URL.Query().Get("sport_id"); sportStr != "" {
		sportID, err := uuid.Parse(sportStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid sport id")
			return
		}
		params.SportID = &sportID
	}

	result, err := h.locationService.NearbyMatches(r.Context(), params)
	if err != nil {
		h.writeLocationError(w, "searching nearby matches", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *LocationHandler) PopularAreas(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	origin, ok := parseOrigin(r)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Both lat and lng are required")
		return
	}

	areas, err := h.locationService.PopularAreas(r.Context(), origin, parseRadius(r))
	if err != nil {
		h.writeLocationError(w, "listing popular areas", err)
		return
	}

	writeJSON(w, http.StatusOK, PopularAreasResponse{Areas: areas})
}

func (h *LocationHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	var req UpdateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Both lat and lng are required")
		return
	}

	err := h.locationService.UpdateLocation(r.Context(), user.ID, geo.Point{Lat: *req.Lat, Lng: *req.Lng}, req.LocationName)
	if err != nil {
		h.writeLocationError(w, "updating location", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Location updated"})
}

func (h *LocationHandler) writeLocationError(w http.ResponseWriter, context string, err error) {
	switch {
	case errors.Is(err, geo.ErrInvalidLatitude), errors.Is(err, geo.ErrInvalidLongitude):
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid location coordinates")
	case errors.Is(err, services.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Profile not found")
	default:
		writeInternalError(w, context, err)
	}
}
