package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
)

type EventStore struct {
	db *sqlx.DB
}

const (
	createEventQuery = `
		INSERT INTO events (id, name, status, scoring_mode, num_days, allow_negative,
			admin_token_hash, scorer_token_hash, viewer_token_hash)
		VALUES (:id, :name, :status, :scoring_mode, :num_days, :allow_negative,
			:admin_token_hash, :scorer_token_hash, :viewer_token_hash)
	`
	getEventQuery        = "SELECT * FROM events WHERE id = ?"
	getLockedDaysQuery   = "SELECT day_number FROM locked_days WHERE event_id = ? ORDER BY day_number"
	updateStatusQuery    = "UPDATE events SET status = ? WHERE id = ?"
	setFinalizedQuery    = "UPDATE events SET is_finalized = ?, finalized_at = ? WHERE id = ?"
	lockDayQuery         = "INSERT INTO locked_days (event_id, day_number) VALUES (?, ?)"
	unlockDayQuery       = "DELETE FROM locked_days WHERE event_id = ? AND day_number = ?"
	deleteEventQuery     = "DELETE FROM events WHERE id = ?"
	findEventByHashQuery = `
		SELECT * FROM events
		WHERE admin_token_hash = ? OR scorer_token_hash = ? OR viewer_token_hash = ?
	`
)

func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) CreateEvent(ctx context.Context, ev *scoreboard.Event) error {
	_, err := s.db.NamedExecContext(ctx, createEventQuery, ev)
	return err
}

// GetEvent loads an event together with its locked day set.
func (s *EventStore) GetEvent(ctx context.Context, id uuid.UUID) (*scoreboard.Event, error) {
	var ev scoreboard.Event
	if err := s.db.GetContext(ctx, &ev, getEventQuery, id); err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &ev.LockedDays, getLockedDaysQuery, id); err != nil {
		return nil, err
	}
	return &ev, nil
}

// FindEventByTokenHash resolves an event from any of its three token hashes.
// Returns nil without error when no event carries the hash.
func (s *EventStore) FindEventByTokenHash(ctx context.Context, hash string) (*scoreboard.Event, error) {
	var ev scoreboard.Event
	err := s.db.GetContext(ctx, &ev, findEventByHashQuery, hash, hash, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &ev.LockedDays, getLockedDaysQuery, ev.ID); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *EventStore) UpdateStatus(ctx context.Context, id uuid.UUID, status scoreboard.EventStatus) error {
	_, err := s.db.ExecContext(ctx, updateStatusQuery, status, id)
	return err
}

func (s *EventStore) SetFinalized(ctx context.Context, id uuid.UUID, finalized bool) error {
	var at *time.Time
	if finalized {
		now := time.Now().UTC()
		at = &now
	}
	_, err := s.db.ExecContext(ctx, setFinalizedQuery, finalized, at, id)
	return err
}

func (s *EventStore) LockDay(ctx context.Context, id uuid.UUID, day int) error {
	_, err := s.db.ExecContext(ctx, lockDayQuery, id, day)
	return err
}

func (s *EventStore) UnlockDay(ctx context.Context, id uuid.UUID, day int) error {
	_, err := s.db.ExecContext(ctx, unlockDayQuery, id, day)
	return err
}

// UpdateTokenHash overwrites one tier's stored hash. Clients holding the old
// plaintext lose access the moment this commits.
func (s *EventStore) UpdateTokenHash(ctx context.Context, id uuid.UUID, column, hash string) error {
	var query string
	switch column {
	case "admin_token_hash", "scorer_token_hash", "viewer_token_hash":
		query = "UPDATE events SET " + column + " = ? WHERE id = ?"
	default:
		return errors.New("unknown token column: " + column)
	}
	_, err := s.db.ExecContext(ctx, query, hash, id)
	return err
}

// DeleteEvent removes an event; teams and scores cascade.
func (s *EventStore) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, deleteEventQuery, id)
	return err
}
