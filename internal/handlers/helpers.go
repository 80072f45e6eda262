package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

// SetUserInContext attaches the authenticated user for downstream handlers.
func SetUserInContext(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext returns the authenticated user, or nil when the request
// carried no valid credentials.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// Error codes form a closed set so clients can switch on them instead of
// matching message strings.
const (
	CodeValidationError = "validation_error"
	CodeAuthError       = "auth_error"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeRateLimited     = "rate_limited"
	CodeInternalError   = "internal_error"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

func writeInternalError(w http.ResponseWriter, context string, err error) {
	log.Printf("Error %s: %v", context, err)
	writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
}

func parseUUIDPath(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// parseOrigin reads lat/lng query parameters. Both must be present and
// numeric; range validation happens in the geo package.
func parseOrigin(r *http.Request) (geo.Point, bool) {
	latStr := r.URL.Query().Get("lat")
	lngStr := r.URL.Query().Get("lng")
	if latStr == "" || lngStr == "" {
		return geo.Point{}, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return geo.Point{}, false
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lng: lng}, true
}

// parseRadius reads the optional radius query parameter in meters; zero
// means "use the default".
func parseRadius(r *http.Request) float64 {
	radiusStr := r.URL.Query().Get("radius")
	if radiusStr == "" {
		return 0
	}
	radius, err := strconv.ParseFloat(radiusStr, 64)
	if err != nil || radius < 0 {
		return 0
	}
	return radius
}
