package scoreboard

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventActive    EventStatus = "active"
	EventCompleted EventStatus = "completed"
	EventArchived  EventStatus = "archived"
)

type ScoringMode string

const (
	// Continuous events keep one rolling total per team.
	Continuous ScoringMode = "continuous"
	// Daily events score per day and support per-day locking.
	Daily ScoringMode = "daily"
)

type Event struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	Name          string      `db:"name" json:"name"`
	Status        EventStatus `db:"status" json:"status"`
	ScoringMode   ScoringMode `db:"scoring_mode" json:"scoring_mode"`
	NumDays       int         `db:"num_days" json:"num_days"`
	AllowNegative bool        `db:"allow_negative" json:"allow_negative"`
	IsFinalized   bool        `db:"is_finalized" json:"is_finalized"`
	FinalizedAt   *time.Time  `db:"finalized_at" json:"finalized_at,omitempty"`

	// Token hashes never leave the server.
	AdminTokenHash  string `db:"admin_token_hash" json:"-"`
	ScorerTokenHash string `db:"scorer_token_hash" json:"-"`
	ViewerTokenHash string `db:"viewer_token_hash" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// LockedDays is loaded from the locked_days table, not a column.
	LockedDays []int `db:"-" json:"locked_days"`
}

func (e *Event) IsDayLocked(day int) bool {
	for _, d := range e.LockedDays {
		if d == day {
			return true
		}
	}
	return false
}
