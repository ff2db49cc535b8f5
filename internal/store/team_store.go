package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
)

type TeamStore struct {
	db *sqlx.DB
}

const (
	createTeamQuery = `
		INSERT INTO teams (id, event_id, name, color, total_points)
		VALUES (:id, :event_id, :name, :color, :total_points)
	`
	getTeamQuery    = "SELECT * FROM teams WHERE id = ?"
	listTeamsQuery  = "SELECT * FROM teams WHERE event_id = ? ORDER BY name ASC"
	updateTeamQuery = "UPDATE teams SET name = :name, color = :color WHERE id = :id"
	deleteTeamQuery = "DELETE FROM teams WHERE id = ?"
)

func NewTeamStore(db *sqlx.DB) *TeamStore {
	return &TeamStore{db: db}
}

func (s *TeamStore) CreateTeam(ctx context.Context, team *scoreboard.Team) error {
	_, err := s.db.NamedExecContext(ctx, createTeamQuery, team)
	return err
}

func (s *TeamStore) GetTeam(ctx context.Context, id uuid.UUID) (*scoreboard.Team, error) {
	var team scoreboard.Team
	err := s.db.GetContext(ctx, &team, getTeamQuery, id)
	return &team, err
}

func (s *TeamStore) ListTeams(ctx context.Context, eventID uuid.UUID) ([]scoreboard.Team, error) {
	var teams []scoreboard.Team
	err := s.db.SelectContext(ctx, &teams, listTeamsQuery, eventID)
	return teams, err
}

func (s *TeamStore) UpdateTeam(ctx context.Context, team *scoreboard.Team) error {
	_, err := s.db.NamedExecContext(ctx, updateTeamQuery, team)
	return err
}

// DeleteTeam removes the team; its scores cascade with it.
func (s *TeamStore) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, deleteTeamQuery, id)
	return err
}
