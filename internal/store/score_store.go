package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
)

type ScoreStore struct {
	db *sqlx.DB
}

const (
	// The UNIQUE(event_id, team_id, game_number) constraint makes this a
	// single atomic statement: concurrent writers to the same slot serialize
	// in the storage layer and the last committed write wins whole. The
	// edited_at stamp doubles as the created-vs-updated signal, since inserts
	// leave it NULL and conflicts always set it.
	upsertScoreQuery = `
		INSERT INTO scores (id, event_id, team_id, game_number, points, category, submission_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id, team_id, game_number) DO UPDATE SET
			points = excluded.points,
			category = COALESCE(excluded.category, scores.category),
			submission_id = COALESCE(excluded.submission_id, scores.submission_id),
			edited_at = CURRENT_TIMESTAMP
		RETURNING id, event_id, team_id, game_number, points, category, submission_id, created_at, edited_at
	`
	getBySubmissionQuery = "SELECT * FROM scores WHERE event_id = ? AND submission_id = ?"
	getScoreQuery        = "SELECT * FROM scores WHERE id = ?"
	listScoresQuery      = "SELECT * FROM scores WHERE event_id = ? ORDER BY game_number ASC, created_at ASC"
	listTeamScoresQuery  = "SELECT * FROM scores WHERE team_id = ? ORDER BY game_number ASC"
	deleteScoreQuery     = "DELETE FROM scores WHERE id = ?"
	countGamesQuery      = "SELECT COUNT(DISTINCT game_number) FROM scores WHERE event_id = ?"
	sumPointsByTeamQuery = `
		SELECT team_id, COALESCE(SUM(points), 0) AS total
		FROM scores WHERE event_id = ? GROUP BY team_id
	`

	// The cached total is a materialized view over score rows. It is always
	// re-derived in full, in the same transaction as the write, so retried or
	// concurrent upserts cannot drift it.
	recomputeTotalQuery = `
		UPDATE teams
		SET total_points = (SELECT COALESCE(SUM(points), 0) FROM scores WHERE team_id = ?)
		WHERE id = ?
	`
	getTotalTxQuery = "SELECT total_points FROM teams WHERE id = ?"
)

func NewScoreStore(db *sqlx.DB) *ScoreStore {
	return &ScoreStore{db: db}
}

// UpsertScore inserts or overwrites the (event, team, game) slot inside tx.
// Returns the stored row and whether it was newly created.
func (s *ScoreStore) UpsertScore(ctx context.Context, tx *sqlx.Tx, score *scoreboard.Score) (*scoreboard.Score, bool, error) {
	var stored scoreboard.Score
	err := tx.QueryRowxContext(ctx, upsertScoreQuery,
		score.ID, score.EventID, score.TeamID, score.GameNumber,
		score.Points, score.Category, score.SubmissionID,
	).StructScan(&stored)
	if err != nil {
		return nil, false, err
	}
	created := stored.EditedAt == nil
	return &stored, created, nil
}

// RecomputeTeamTotal re-derives the cached total from score rows within tx
// and returns the persisted value.
func (s *ScoreStore) RecomputeTeamTotal(ctx context.Context, tx *sqlx.Tx, teamID uuid.UUID) (int, error) {
	if _, err := tx.ExecContext(ctx, recomputeTotalQuery, teamID, teamID); err != nil {
		return 0, err
	}
	var total int
	if err := tx.GetContext(ctx, &total, getTotalTxQuery, teamID); err != nil {
		return 0, err
	}
	return total, nil
}

// GetBySubmissionID looks up a prior entry carrying the idempotency key.
// Returns nil without error when none exists.
func (s *ScoreStore) GetBySubmissionID(ctx context.Context, eventID uuid.UUID, submissionID string) (*scoreboard.Score, error) {
	var score scoreboard.Score
	err := s.db.GetContext(ctx, &score, getBySubmissionQuery, eventID, submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}

func (s *ScoreStore) GetScore(ctx context.Context, id uuid.UUID) (*scoreboard.Score, error) {
	var score scoreboard.Score
	err := s.db.GetContext(ctx, &score, getScoreQuery, id)
	return &score, err
}

func (s *ScoreStore) ListScores(ctx context.Context, eventID uuid.UUID) ([]scoreboard.Score, error) {
	var scores []scoreboard.Score
	err := s.db.SelectContext(ctx, &scores, listScoresQuery, eventID)
	return scores, err
}

func (s *ScoreStore) ListTeamScores(ctx context.Context, teamID uuid.UUID) ([]scoreboard.Score, error) {
	var scores []scoreboard.Score
	err := s.db.SelectContext(ctx, &scores, listTeamScoresQuery, teamID)
	return scores, err
}

func (s *ScoreStore) DeleteScore(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, deleteScoreQuery, id)
	return err
}

// CountDistinctGames reports how many distinct game numbers have scores.
func (s *ScoreStore) CountDistinctGames(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, countGamesQuery, eventID)
	return n, err
}

// SumPointsByTeam aggregates per-team totals straight from score rows,
// bypassing the cached teams.total_points column. Teams without scores are
// absent from the map.
func (s *ScoreStore) SumPointsByTeam(ctx context.Context, eventID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		TeamID uuid.UUID `db:"team_id"`
		Total  int       `db:"total"`
	}
	if err := s.db.SelectContext(ctx, &rows, sumPointsByTeamQuery, eventID); err != nil {
		return nil, err
	}
	totals := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		totals[r.TeamID] = r.Total
	}
	return totals, nil
}
