package scoreboard

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is an immutable capture of the leaderboard at finalization time.
// Regenerating produces a new row; existing snapshots are never mutated.
type Snapshot struct {
	ID          uuid.UUID `db:"id" json:"id"`
	EventID     uuid.UUID `db:"event_id" json:"event_id"`
	Leaderboard string    `db:"leaderboard" json:"leaderboard"` // JSON-encoded []RankedTeam
	TotalGames  int       `db:"total_games" json:"total_games"`
	TotalTeams  int       `db:"total_teams" json:"total_teams"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
}
