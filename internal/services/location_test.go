package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/models"
)

func TestLocationService_NearbyUsers_RejectsBadOrigin(t *testing.T) {
	svc := NewLocationService(&fakeDB{})

	_, err := svc.NearbyUsers(context.Background(), uuid.New(), geo.Point{Lat: 0, Lng: 181}, 1000)
	if !errors.Is(err, geo.ErrInvalidLongitude) {
		t.Fatalf("expected ErrInvalidLongitude, got %v", err)
	}
}

func TestLocationService_NearbyUsers_ExcludesCallerAndRanks(t *testing.T) {
	callerID := uuid.New()
	near := "POINT(13.405 52.52)"
	far := "POINT(14.5 53.5)"

	db := &fakeDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			if !strings.Contains(sql, "id <> $1") {
				t.Fatalf("expected caller exclusion: %q", sql)
			}
			if args[0] != callerID {
				t.Fatalf("expected caller id arg, got %v", args[0])
			}
			return &fakeRows{rows: [][]any{
				profileRowValues(uuid.New(), "near", &near),
				profileRowValues(uuid.New(), "far", &far),
			}}, nil
		},
	}
	svc := NewLocationService(db)

	result, err := svc.NearbyUsers(context.Background(), callerID, geo.Point{Lat: 52.52, Lng: 13.405}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RadiusMeters != geo.DefaultRadiusMeters {
		t.Fatalf("expected default radius echoed, got %f", result.RadiusMeters)
	}
	if len(result.Users) != 1 || result.Users[0].Username != "near" {
		t.Fatalf("unexpected users: %+v", result.Users)
	}
}

func TestLocationService_NearbyMatches_FiltersBySportAndRadius(t *testing.T) {
	sportID := uuid.New()
	scheduledAt := time.Now().Add(2 * time.Hour)
	near := "POINT(13.405 52.52)"

	db := &fakeDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			if !strings.Contains(sql, "m.status = 'open'") || !strings.Contains(sql, "m.scheduled_at > NOW()") {
				t.Fatalf("expected open future filter: %q", sql)
			}
			if !strings.Contains(sql, "m.sport_id = $1") {
				t.Fatalf("expected sport filter: %q", sql)
			}
			return &fakeRows{rows: [][]any{
				{uuid.New(), uuid.New(), sportID, "Evening 5-a-side", nil, &near, nil,
					scheduledAt, 60, 2, models.SkillLevelAny, models.MatchStatusOpen,
					scheduledAt, scheduledAt, "football", 1},
			}}, nil
		},
	}
	svc := NewLocationService(db)

	result, err := svc.NearbyMatches(context.Background(), NearbyMatchesParams{
		Origin:       geo.Point{Lat: 52.52, Lng: 13.405},
		RadiusMeters: 1000,
		SportID:      &sportID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	m := result.Matches[0]
	if m.SportName != "football" || m.ParticipantCount != 1 {
		t.Fatalf("unexpected match: %+v", m)
	}
	if m.DistanceMeters != 0 {
		t.Fatalf("expected zero distance at origin, got %f", m.DistanceMeters)
	}
}

func TestLocationService_PopularAreas_UsesStoreFunction(t *testing.T) {
	db := &fakeDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			if !strings.Contains(sql, "popular_match_areas") {
				t.Fatalf("unexpected query: %q", sql)
			}
			if args[0] != 52.52 || args[1] != 13.405 {
				t.Fatalf("unexpected origin args: %v", args)
			}
			return &fakeRows{rows: [][]any{
				{52.521, 13.406, 7},
			}}, nil
		},
	}
	svc := NewLocationService(db)

	areas, err := svc.PopularAreas(context.Background(), geo.Point{Lat: 52.52, Lng: 13.405}, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(areas) != 1 || areas[0].MatchCount != 7 {
		t.Fatalf("unexpected areas: %+v", areas)
	}
	if areas[0].Center.Lat != 52.521 {
		t.Fatalf("unexpected centroid: %+v", areas[0].Center)
	}
}

func TestLocationService_UpdateLocation_WritesWKT(t *testing.T) {
	userID := uuid.New()
	var gotArgs []any

	db := &fakeDB{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
			if !strings.Contains(sql, "ST_GeomFromText($1, 4326)") {
				t.Fatalf("expected geometry write: %q", sql)
			}
			gotArgs = args
			return fakeCommandTag{rowsAffected: 1}, nil
		},
	}
	svc := NewLocationService(db)

	name := "Tempelhofer Feld"
	if err := svc.UpdateLocation(context.Background(), userID, geo.Point{Lat: 52.473, Lng: 13.403}, &name); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotArgs[0] != "POINT(13.403 52.473)" {
		t.Fatalf("unexpected wkt: %v", gotArgs[0])
	}
	if gotArgs[2] != userID {
		t.Fatalf("expected user id arg, got %v", gotArgs[2])
	}
}

func TestLocationService_UpdateLocation_MissingProfile(t *testing.T) {
	db := &fakeDB{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
			return fakeCommandTag{rowsAffected: 0}, nil
		},
	}
	svc := NewLocationService(db)

	err := svc.UpdateLocation(context.Background(), uuid.New(), geo.Point{Lat: 1, Lng: 1}, nil)
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}
