package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/models"
)

func matchRowValues(id, creator, sport uuid.UUID, status models.MatchStatus, maxParticipants int, scheduledAt time.Time) []any {
	wkt := "POINT(13.405 52.52)"
	return []any{
		id, creator, sport, "Evening 5-a-side", nil, &wkt, nil, scheduledAt,
		60, maxParticipants, models.SkillLevelAny, status, scheduledAt, scheduledAt,
	}
}

func TestMatchService_Create_AppliesDefaultsAndJoinsCreator(t *testing.T) {
	creatorID := uuid.New()
	matchID := uuid.New()
	sportID := uuid.New()
	scheduledAt := time.Now().Add(24 * time.Hour)
	var joined, committed bool

	db := &fakeDB{
		BeginFunc: func(ctx context.Context) (Tx, error) {
			return &fakeTx{
				QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
					if !strings.Contains(sql, "INSERT INTO matches") {
						t.Fatalf("unexpected query: %q", sql)
					}
					if args[7] != models.DefaultMatchDurationMinutes {
						t.Fatalf("expected default duration, got %v", args[7])
					}
					if args[8] != models.DefaultMaxParticipants {
						t.Fatalf("expected default max participants, got %v", args[8])
					}
					if args[9] != models.SkillLevelAny {
						t.Fatalf("expected default skill, got %v", args[9])
					}
					return rowFromValues(matchRowValues(matchID, creatorID, sportID, models.MatchStatusOpen, 2, scheduledAt)...)
				},
				ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
					if !strings.Contains(sql, "INSERT INTO match_participants") {
						t.Fatalf("unexpected exec: %q", sql)
					}
					if args[0] != matchID || args[1] != creatorID {
						t.Fatalf("unexpected participant args: %v", args)
					}
					joined = true
					return fakeCommandTag{rowsAffected: 1}, nil
				},
				CommitFunc: func(ctx context.Context) error {
					committed = true
					return nil
				},
			}, nil
		},
	}
	svc := NewMatchService(db)

	match, err := svc.Create(context.Background(), creatorID, models.CreateMatchParams{
		SportID:     sportID,
		Title:       "Evening 5-a-side",
		Location:    geo.Point{Lat: 52.52, Lng: 13.405},
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.ID != matchID || match.Status != models.MatchStatusOpen {
		t.Fatalf("unexpected match: %+v", match)
	}
	if match.Location == nil || match.Location.Lat != 52.52 {
		t.Fatalf("expected decoded location, got %+v", match.Location)
	}
	if !joined {
		t.Fatal("expected creator to be joined in the same transaction")
	}
	if !committed {
		t.Fatal("expected commit")
	}
}

func TestMatchService_Create_RejectsPastSchedule(t *testing.T) {
	svc := NewMatchService(&fakeDB{})

	_, err := svc.Create(context.Background(), uuid.New(), models.CreateMatchParams{
		SportID:     uuid.New(),
		Title:       "Too late",
		Location:    geo.Point{Lat: 0, Lng: 0},
		ScheduledAt: time.Now().Add(-time.Hour),
	})
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestMatchService_Create_RejectsBadCoordinates(t *testing.T) {
	svc := NewMatchService(&fakeDB{})

	_, err := svc.Create(context.Background(), uuid.New(), models.CreateMatchParams{
		SportID:     uuid.New(),
		Title:       "Off the map",
		Location:    geo.Point{Lat: 91, Lng: 0},
		ScheduledAt: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, geo.ErrInvalidLatitude) {
		t.Fatalf("expected ErrInvalidLatitude, got %v", err)
	}
}

func TestMatchService_Create_RejectsSingleParticipant(t *testing.T) {
	svc := NewMatchService(&fakeDB{})

	_, err := svc.Create(context.Background(), uuid.New(), models.CreateMatchParams{
		SportID:         uuid.New(),
		Title:           "Party of one",
		Location:        geo.Point{Lat: 52.52, Lng: 13.405},
		ScheduledAt:     time.Now().Add(time.Hour),
		MaxParticipants: 1,
	})
	if !errors.Is(err, ErrInvalidParticipants) {
		t.Fatalf("expected ErrInvalidParticipants, got %v", err)
	}
}

func TestMatchService_Update_RejectsSingleParticipant(t *testing.T) {
	svc := NewMatchService(&fakeDB{})

	one := 1
	_, err := svc.Update(context.Background(), uuid.New(), uuid.New(), models.UpdateMatchParams{MaxParticipants: &one})
	if !errors.Is(err, ErrInvalidParticipants) {
		t.Fatalf("expected ErrInvalidParticipants, got %v", err)
	}
}

func TestMatchService_Join_LastSlotFlipsToFull(t *testing.T) {
	matchID := uuid.New()
	var flipped, committed bool

	db := &fakeDB{
		BeginFunc: func(ctx context.Context) (Tx, error) {
			return &fakeTx{
				QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
					if strings.Contains(sql, "FOR UPDATE") {
						return rowFromValues(matchRowValues(matchID, uuid.New(), uuid.New(), models.MatchStatusOpen, 2, time.Now().Add(time.Hour))...)
					}
					if strings.Contains(sql, "COUNT(*)") {
						return rowFromValues(1)
					}
					t.Fatalf("unexpected query: %q", sql)
					return nil
				},
				ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
					if strings.Contains(sql, "INSERT INTO match_participants") {
						return fakeCommandTag{rowsAffected: 1}, nil
					}
					if strings.Contains(sql, "UPDATE matches SET status") {
						if args[0] != models.MatchStatusFull {
							t.Fatalf("expected full status, got %v", args[0])
						}
						flipped = true
						return fakeCommandTag{rowsAffected: 1}, nil
					}
					t.Fatalf("unexpected exec: %q", sql)
					return nil, nil
				},
				CommitFunc: func(ctx context.Context) error {
					committed = true
					return nil
				},
			}, nil
		},
	}
	svc := NewMatchService(db)

	if err := svc.Join(context.Background(), matchID, uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !flipped {
		t.Fatal("expected match to flip to full")
	}
	if !committed {
		t.Fatal("expected commit")
	}
}

func TestMatchService_Join_FullMatch(t *testing.T) {
	db := &fakeDB{
		BeginFunc: func(ctx context.Context) (Tx, error) {
			return &fakeTx{
				QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
					if strings.Contains(sql, "FOR UPDATE") {
						return rowFromValues(matchRowValues(uuid.New(), uuid.New(), uuid.New(), models.MatchStatusOpen, 2, time.Now().Add(time.Hour))...)
					}
					return rowFromValues(2)
				},
			}, nil
		},
	}
	svc := NewMatchService(db)

	if err := svc.Join(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrMatchFull) {
		t.Fatalf("expected ErrMatchFull, got %v", err)
	}
}

func TestMatchService_Join_NotOpen(t *testing.T) {
	db := &fakeDB{
		BeginFunc: func(ctx context.Context) (Tx, error) {
			return &fakeTx{
				QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
					return rowFromValues(matchRowValues(uuid.New(), uuid.New(), uuid.New(), models.MatchStatusCancelled, 2, time.Now().Add(time.Hour))...)
				},
			}, nil
		},
	}
	svc := NewMatchService(db)

	if err := svc.Join(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrMatchNotOpen) {
		t.Fatalf("expected ErrMatchNotOpen, got %v", err)
	}
}

func TestMatchService_Join_AlreadyJoined(t *testing.T) {
	db := &fakeDB{
		BeginFunc: func(ctx context.Context) (Tx, error) {
			return &fakeTx{
				QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
					if strings.Contains(sql, "FOR UPDATE") {
						return rowFromValues(matchRowValues(uuid.New(), uuid.New(), uuid.New(), models.MatchStatusOpen, 4, time.Now().Add(time.Hour))...)
					}
					return rowFromValues(1)
				},
				ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
					return nil, uniqueViolationErr()
				},
			}, nil
		},
	}
	svc := NewMatchService(db)

	if err := svc.Join(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestMatchService_Join_MissingMatch(t *testing.T) {
	db := &fakeDB{
		BeginFunc: func(ctx context.Context) (Tx, error) {
			return &fakeTx{
				QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
					return fakeRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
				},
			}, nil
		},
	}
	svc := NewMatchService(db)

	if err := svc.Join(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestMatchService_Leave_ReopensFullMatch(t *testing.T) {
	matchID := uuid.New()
	var reopened bool

	db := &fakeDB{
		BeginFunc: func(ctx context.Context) (Tx, error) {
			return &fakeTx{
				QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
					return rowFromValues(matchRowValues(matchID, uuid.New(), uuid.New(), models.MatchStatusFull, 2, time.Now().Add(time.Hour))...)
				},
				ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
					if strings.Contains(sql, "DELETE FROM match_participants") {
						return fakeCommandTag{rowsAffected: 1}, nil
					}
					if strings.Contains(sql, "UPDATE matches SET status") {
						if args[0] != models.MatchStatusOpen {
							t.Fatalf("expected open status, got %v", args[0])
						}
						reopened = true
						return fakeCommandTag{rowsAffected: 1}, nil
					}
					t.Fatalf("unexpected exec: %q", sql)
					return nil, nil
				},
			}, nil
		},
	}
	svc := NewMatchService(db)

	if err := svc.Leave(context.Background(), matchID, uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reopened {
		t.Fatal("expected full match to reopen")
	}
}

func TestMatchService_Leave_NotParticipant(t *testing.T) {
	db := &fakeDB{
		BeginFunc: func(ctx context.Context) (Tx, error) {
			return &fakeTx{
				QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
					return rowFromValues(matchRowValues(uuid.New(), uuid.New(), uuid.New(), models.MatchStatusOpen, 2, time.Now().Add(time.Hour))...)
				},
				ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
					return fakeCommandTag{rowsAffected: 0}, nil
				},
			}, nil
		},
	}
	svc := NewMatchService(db)

	if err := svc.Leave(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestMatchService_Update_CreatorOnly(t *testing.T) {
	creatorID := uuid.New()
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return rowFromValues(matchRowValues(uuid.New(), creatorID, uuid.New(), models.MatchStatusOpen, 2, time.Now().Add(time.Hour))...)
		},
	}
	svc := NewMatchService(db)

	title := "New title"
	_, err := svc.Update(context.Background(), uuid.New(), uuid.New(), models.UpdateMatchParams{Title: &title})
	if !errors.Is(err, ErrNotMatchCreator) {
		t.Fatalf("expected ErrNotMatchCreator, got %v", err)
	}
}

func TestMatchService_Cancel_CreatorOnly(t *testing.T) {
	creatorID := uuid.New()
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return rowFromValues(matchRowValues(uuid.New(), creatorID, uuid.New(), models.MatchStatusOpen, 2, time.Now().Add(time.Hour))...)
		},
	}
	svc := NewMatchService(db)

	if err := svc.Cancel(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrNotMatchCreator) {
		t.Fatalf("expected ErrNotMatchCreator, got %v", err)
	}
}

func TestMatchService_List_DefaultsToOpenAndFuture(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	db := &fakeDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			gotSQL = sql
			gotArgs = args
			return &fakeRows{}, nil
		},
	}
	svc := NewMatchService(db)

	matches, err := svc.List(context.Background(), models.ListMatchesParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected empty list, got %d", len(matches))
	}
	if !strings.Contains(gotSQL, "scheduled_at > NOW()") {
		t.Fatalf("expected future filter: %q", gotSQL)
	}
	if len(gotArgs) != 1 || gotArgs[0] != models.MatchStatusOpen {
		t.Fatalf("expected open status default, got %v", gotArgs)
	}
}
