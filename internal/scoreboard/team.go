package scoreboard

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type Team struct {
	ID      uuid.UUID `db:"id" json:"id"`
	EventID uuid.UUID `db:"event_id" json:"event_id"`
	Name    string    `db:"name" json:"name"`
	Color   *string   `db:"color" json:"color,omitempty"`

	// TotalPoints is a cached aggregate. It is always recomputed from the
	// team's score rows inside the writing transaction, never incremented.
	TotalPoints int       `db:"total_points" json:"total_points"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type RankedTeam struct {
	TeamID      uuid.UUID `json:"team_id"`
	TeamName    string    `json:"team_name"`
	TotalPoints int       `json:"total_points"`
	Rank        int       `json:"rank"`
}

// RankTeams orders teams by total points descending. Ties break by team name
// ascending so the leaderboard is deterministic across reloads.
func RankTeams(teams []Team) []RankedTeam {
	ranked := make([]RankedTeam, 0, len(teams))
	for _, t := range teams {
		ranked = append(ranked, RankedTeam{
			TeamID:      t.ID,
			TeamName:    t.Name,
			TotalPoints: t.TotalPoints,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalPoints != ranked[j].TotalPoints {
			return ranked[i].TotalPoints > ranked[j].TotalPoints
		}
		return ranked[i].TeamName < ranked[j].TeamName
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
