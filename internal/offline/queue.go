// Package offline implements the client-held submission queue: a durable
// FIFO of score writes made while disconnected, drained against the score
// ledger when connectivity returns. Optimistic local totals are provisional
// and replaced by authoritative state after a clean drain.
package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type Kind string

const (
	KindSingle Kind = "single"
	KindQuick  Kind = "quick"
	KindBulk   Kind = "bulk"
)

type ItemStatus string

const (
	StatusPending ItemStatus = "pending"
	// Failed items were rejected with a terminal error. They are kept for
	// the user to inspect, never retried and never silently dropped.
	StatusFailed ItemStatus = "failed"
)

// Item is one queued score mutation. ID is client-generated and doubles as
// the submission id sent to the ledger, so a drain retried after a lost
// response cannot double-apply.
type Item struct {
	Seq        int64      `db:"seq"`
	ID         string     `db:"id"`
	EventID    uuid.UUID  `db:"event_id"`
	TeamID     uuid.UUID  `db:"team_id"`
	GameNumber int        `db:"game_number"`
	Points     int        `db:"points"`
	Category   *string    `db:"category"`
	Kind       Kind       `db:"kind"`
	Status     ItemStatus `db:"status"`
	LastError  *string    `db:"last_error"`
	CreatedAt  time.Time  `db:"created_at"`
}

// Queue is the durable client-side store. It lives in its own SQLite file on
// the scorer's device; the schema is created in place rather than through
// the server's migration set.
type Queue struct {
	db *sqlx.DB
}

const queueSchema = `
CREATE TABLE IF NOT EXISTS scorer_queue (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    event_id TEXT NOT NULL,
    team_id TEXT NOT NULL,
    game_number INTEGER NOT NULL,
    points INTEGER NOT NULL,
    category TEXT,
    kind TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    last_error TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func OpenQueue(path string) (*Queue, error) {
	conn, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	if _, err := conn.Exec(queueSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init queue schema: %w", err)
	}
	return &Queue{db: conn}, nil
}

func (q *Queue) Close() error { return q.db.Close() }

// Enqueue appends a mutation and returns it with its assigned id.
func (q *Queue) Enqueue(ctx context.Context, eventID, teamID uuid.UUID, gameNumber, points int, category *string, kind Kind) (*Item, error) {
	item := &Item{
		ID:         uuid.NewString(),
		EventID:    eventID,
		TeamID:     teamID,
		GameNumber: gameNumber,
		Points:     points,
		Category:   category,
		Kind:       kind,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := q.db.NamedExecContext(ctx, `
		INSERT INTO scorer_queue (id, event_id, team_id, game_number, points, category, kind, status, created_at)
		VALUES (:id, :event_id, :team_id, :game_number, :points, :category, :kind, :status, :created_at)
	`, item)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Pending returns undelivered items in enqueue order.
func (q *Queue) Pending(ctx context.Context) ([]Item, error) {
	var items []Item
	err := q.db.SelectContext(ctx, &items,
		"SELECT * FROM scorer_queue WHERE status = ? ORDER BY seq ASC", StatusPending)
	return items, err
}

// Failed returns items rejected with terminal errors, for user review.
func (q *Queue) Failed(ctx context.Context) ([]Item, error) {
	var items []Item
	err := q.db.SelectContext(ctx, &items,
		"SELECT * FROM scorer_queue WHERE status = ? ORDER BY seq ASC", StatusFailed)
	return items, err
}

// Remove deletes an item after the ledger acknowledged it.
func (q *Queue) Remove(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM scorer_queue WHERE id = ?", id)
	return err
}

func (q *Queue) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE scorer_queue SET status = ?, last_error = ? WHERE id = ?",
		StatusFailed, reason, id)
	return err
}

// PruneOtherEvents drops queued items targeting any event other than
// eventID, so switching the active token never replays stale cross-event
// writes against the wrong event.
func (q *Queue) PruneOtherEvents(ctx context.Context, eventID uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx, "DELETE FROM scorer_queue WHERE event_id != ?", eventID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM scorer_queue WHERE status = ?", StatusPending)
	return n, err
}
