package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openplay/sportmatch/internal/models"
)

var ErrSportNotFound = errors.New("sport not found")

type SportServiceInterface interface {
	List(ctx context.Context) ([]models.Sport, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Sport, error)
}

type SportService struct {
	db DB
}

func NewSportService(db DB) *SportService {
	return &SportService{db: db}
}

func (s *SportService) List(ctx context.Context) ([]models.Sport, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, created_at FROM sports ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sports: %w", err)
	}
	defer rows.Close()

	sports := []models.Sport{}
	for rows.Next() {
		var sport models.Sport
		if err := rows.Scan(&sport.ID, &sport.Name, &sport.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning sport: %w", err)
		}
		sports = append(sports, sport)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sports: %w", err)
	}

	return sports, nil
}

func (s *SportService) GetByID(ctx context.Context, id uuid.UUID) (*models.Sport, error) {
	sport := &models.Sport{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM sports WHERE id = $1`,
		id,
	).Scan(&sport.ID, &sport.Name, &sport.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting sport: %w", err)
	}

	return sport, nil
}
