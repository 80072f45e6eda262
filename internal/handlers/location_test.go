package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/models"
	"github.com/openplay/sportmatch/internal/services"
)

type fakeLocationService struct {
	services.LocationServiceInterface
	nearbyUsersFn    func(ctx context.Context, callerID uuid.UUID, origin geo.Point, radiusMeters float64) (*models.NearbyUsersResult, error)
	updateLocationFn func(ctx context.Context, userID uuid.UUID, point geo.Point, locationName *string) error
}

func (f *fakeLocationService) NearbyUsers(ctx context.Context, callerID uuid.UUID, origin geo.Point, radiusMeters float64) (*models.NearbyUsersResult, error) {
	return f.nearbyUsersFn(ctx, callerID, origin, radiusMeters)
}

func (f *fakeLocationService) UpdateLocation(ctx context.Context, userID uuid.UUID, point geo.Point, locationName *string) error {
	return f.updateLocationFn(ctx, userID, point, locationName)
}

func TestLocationHandler_NearbyUsers_Unauthenticated(t *testing.T) {
	handler := NewLocationHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/location/nearby-users?lat=52.52&lng=13.405", nil)
	rr := httptest.NewRecorder()

	handler.NearbyUsers(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rr.Code)
	}
}

func TestLocationHandler_NearbyUsers_MissingCoordinates(t *testing.T) {
	handler := NewLocationHandler(nil)

	req, _ := authedRequest(http.MethodGet, "/api/location/nearby-users?lat=52.52", nil)
	rr := httptest.NewRecorder()

	handler.NearbyUsers(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestLocationHandler_NearbyUsers_PassesCallerAndOrigin(t *testing.T) {
	var gotCaller uuid.UUID
	var gotOrigin geo.Point
	handler := NewLocationHandler(&fakeLocationService{
		nearbyUsersFn: func(ctx context.Context, callerID uuid.UUID, origin geo.Point, radiusMeters float64) (*models.NearbyUsersResult, error) {
			gotCaller = callerID
			gotOrigin = origin
			return &models.NearbyUsersResult{Origin: origin, RadiusMeters: radiusMeters, Users: []models.ProfileWithDistance{}}, nil
		},
	})

	req, user := authedRequest(http.MethodGet, "/api/location/nearby-users?lat=52.52&lng=13.405", nil)
	rr := httptest.NewRecorder()

	handler.NearbyUsers(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotCaller != user.ID {
		t.Errorf("expected caller %s, got %s", user.ID, gotCaller)
	}
	if gotOrigin != (geo.Point{Lat: 52.52, Lng: 13.405}) {
		t.Errorf("unexpected origin %+v", gotOrigin)
	}
}

func TestLocationHandler_UpdateLocation_RequiresBothCoordinates(t *testing.T) {
	handler := NewLocationHandler(nil)

	req, _ := authedRequest(http.MethodPut, "/api/location", []byte(`{"lat": 52.52}`))
	rr := httptest.NewRecorder()

	handler.UpdateLocation(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestLocationHandler_UpdateLocation_InvalidCoordinatesMapped(t *testing.T) {
	handler := NewLocationHandler(&fakeLocationService{
		updateLocationFn: func(ctx context.Context, userID uuid.UUID, point geo.Point, locationName *string) error {
			return geo.ErrInvalidLatitude
		},
	})

	req, _ := authedRequest(http.MethodPut, "/api/location", []byte(`{"lat": 95, "lng": 13.405}`))
	rr := httptest.NewRecorder()

	handler.UpdateLocation(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Code != CodeValidationError {
		t.Errorf("expected code %s, got %s", CodeValidationError, resp.Error.Code)
	}
}

func TestLocationHandler_UpdateLocation_Success(t *testing.T) {
	var gotPoint geo.Point
	var gotName *string
	handler := NewLocationHandler(&fakeLocationService{
		updateLocationFn: func(ctx context.Context, userID uuid.UUID, point geo.Point, locationName *string) error {
			gotPoint = point
			gotName = locationName
			return nil
		},
	})

	req, _ := authedRequest(http.MethodPut, "/api/location", []byte(`{"lat": 52.473, "lng": 13.403, "location_name": "Tempelhofer Feld"}`))
	rr := httptest.NewRecorder()

	handler.UpdateLocation(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotPoint != (geo.Point{Lat: 52.473, Lng: 13.403}) {
		t.Errorf("unexpected point %+v", gotPoint)
	}
	if gotName == nil || *gotName != "Tempelhofer Feld" {
		t.Errorf("unexpected location name %v", gotName)
	}
}
