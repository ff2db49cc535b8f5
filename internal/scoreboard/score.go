package scoreboard

import (
	"time"

	"github.com/google/uuid"
)

// Score is one (event, team, game number) slot. The triple is unique; a
// second write to the same triple updates the row in place.
type Score struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	EventID      uuid.UUID  `db:"event_id" json:"event_id"`
	TeamID       uuid.UUID  `db:"team_id" json:"team_id"`
	GameNumber   int        `db:"game_number" json:"game_number"`
	Points       int        `db:"points" json:"points"`
	Category     *string    `db:"category" json:"category,omitempty"`
	SubmissionID *string    `db:"submission_id" json:"submission_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	EditedAt     *time.Time `db:"edited_at" json:"edited_at,omitempty"`
}
