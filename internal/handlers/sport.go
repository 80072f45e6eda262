package handlers

import (
	"errors"
	"net/http"

	"github.com/openplay/sportmatch/internal/models"
	"github.com/openplay/sportmatch/internal/services"
)

type SportHandler struct {
	sportService services.SportServiceInterface
}

func NewSportHandler(sportService services.SportServiceInterface) *SportHandler {
	return &SportHandler{sportService: sportService}
}

type SportListResponse struct {
	Sports []models.Sport `json:"sports"`
}

func (h *SportHandler) List(w http.ResponseWriter, r *http.Request) {
	sports, err := h.sportService.List(r.Context())
	if err != nil {
		writeInternalError(w, "listing sports", err)
		return
	}
	writeJSON(w, http.StatusOK, SportListResponse{Sports: sports})
}

func (h *SportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDPath(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid sport id")
		return
	}

	sport, err := h.sportService.GetByID(r.Context(), id)
	if errors.Is(err, services.ErrSportNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Sport not found")
		return
	}
	if err != nil {
		writeInternalError(w, "getting sport", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*models.Sport{"sport": sport})
}
