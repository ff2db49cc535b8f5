package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
)

type SnapshotStore struct {
	db *sqlx.DB
}

const (
	createSnapshotQuery = `
		INSERT INTO snapshots (id, event_id, leaderboard, total_games, total_teams, generated_at)
		VALUES (:id, :event_id, :leaderboard, :total_games, :total_teams, :generated_at)
	`
	latestSnapshotQuery = `
		SELECT * FROM snapshots WHERE event_id = ?
		ORDER BY generated_at DESC, id DESC LIMIT 1
	`
)

func NewSnapshotStore(db *sqlx.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// CreateSnapshot persists a new immutable snapshot row. Existing snapshots
// are never updated; regeneration inserts a newer row.
func (s *SnapshotStore) CreateSnapshot(ctx context.Context, snap *scoreboard.Snapshot) error {
	_, err := s.db.NamedExecContext(ctx, createSnapshotQuery, snap)
	return err
}

// LatestSnapshot returns the most recent snapshot, or nil if none exists.
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, eventID uuid.UUID) (*scoreboard.Snapshot, error) {
	var snap scoreboard.Snapshot
	err := s.db.GetContext(ctx, &snap, latestSnapshotQuery, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
