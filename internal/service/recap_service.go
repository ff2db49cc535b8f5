package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tallyboard/tallyboard/internal/apperr"
	"github.com/tallyboard/tallyboard/internal/metrics"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
	"github.com/tallyboard/tallyboard/internal/store"
	"github.com/tallyboard/tallyboard/internal/token"
	"github.com/tallyboard/tallyboard/internal/utils"
)

type RecapService struct {
	events    *store.EventStore
	teams     *store.TeamStore
	scores    *store.ScoreStore
	snapshots *store.SnapshotStore
	log       *zap.Logger
}

func NewRecapService(events *store.EventStore, teams *store.TeamStore, scores *store.ScoreStore, snapshots *store.SnapshotStore, log *zap.Logger) *RecapService {
	return &RecapService{events: events, teams: teams, scores: scores, snapshots: snapshots, log: log}
}

type MismatchKind string

const (
	MismatchMissing MismatchKind = "missing" // in snapshot, absent live
	MismatchExtra   MismatchKind = "extra"   // live, absent from snapshot
	MismatchPoints  MismatchKind = "points"
	MismatchRank    MismatchKind = "rank"
)

type LeaderboardMismatch struct {
	TeamID         uuid.UUID    `json:"team_id"`
	TeamName       string       `json:"team_name"`
	Kind           MismatchKind `json:"kind"`
	ExpectedPoints *int         `json:"expected_points,omitempty"`
	ActualPoints   *int         `json:"actual_points,omitempty"`
	ExpectedRank   *int         `json:"expected_rank,omitempty"`
	ActualRank     *int         `json:"actual_rank,omitempty"`
}

type TotalsMismatch struct {
	Field    string `json:"field"` // totalGames | totalTeams
	Expected int    `json:"expected"`
	Actual   int    `json:"actual"`
}

type ComputedState struct {
	TotalTeams  int                     `json:"total_teams"`
	TotalGames  int                     `json:"total_games"`
	Leaderboard []scoreboard.RankedTeam `json:"leaderboard"`
}

type VerifyResult struct {
	SnapshotID  uuid.UUID     `json:"snapshot_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Snapshot    ComputedState `json:"snapshot"`
	Computed    ComputedState `json:"computed"`
	SchemaValid bool          `json:"schema_valid"`
	Errors      []string      `json:"errors"`
	Mismatches  struct {
		Leaderboard []LeaderboardMismatch `json:"leaderboard"`
		Totals      []TotalsMismatch      `json:"totals"`
	} `json:"mismatches"`
}

func (r *VerifyResult) Clean() bool {
	return r.SchemaValid && len(r.Mismatches.Leaderboard) == 0 && len(r.Mismatches.Totals) == 0
}

// Generate captures the live leaderboard and aggregates as a new immutable
// snapshot. Admin capability only.
func (s *RecapService) Generate(ctx context.Context, perms token.Permissions, eventID uuid.UUID) (*scoreboard.Snapshot, error) {
	if !perms.CanFinalizeEvent {
		return nil, apperr.New(apperr.KindPermission, "this token cannot generate a recap")
	}
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, apperr.New(apperr.KindNotFound, "event not found")
	}

	state, err := s.computeLive(ctx, eventID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(state.Leaderboard)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "encode leaderboard")
	}

	snap := &scoreboard.Snapshot{
		ID:          uuid.New(),
		EventID:     eventID,
		Leaderboard: string(raw),
		TotalGames:  state.TotalGames,
		TotalTeams:  state.TotalTeams,
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.snapshots.CreateSnapshot(ctx, snap); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "store snapshot")
	}

	s.log.Info("recap snapshot generated",
		zap.String("event_id", eventID.String()),
		zap.Int("teams", state.TotalTeams),
		zap.Int("games", state.TotalGames),
	)
	return snap, nil
}

// Verify recomputes the leaderboard live and diffs it against the most
// recent snapshot. Read-only: drift is reported, never repaired.
func (s *RecapService) Verify(ctx context.Context, eventID uuid.UUID) (*VerifyResult, error) {
	snap, err := s.snapshots.LatestSnapshot(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "load snapshot")
	}
	if snap == nil {
		return nil, apperr.New(apperr.KindNotFound, "no snapshot exists for this event")
	}

	live, err := s.computeLive(ctx, eventID)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		SnapshotID:  snap.ID,
		GeneratedAt: snap.GeneratedAt,
		Computed:    *live,
		SchemaValid: true,
		Errors:      []string{},
	}
	result.Mismatches.Leaderboard = []LeaderboardMismatch{}
	result.Mismatches.Totals = []TotalsMismatch{}

	var frozen []scoreboard.RankedTeam
	if err := json.Unmarshal([]byte(snap.Leaderboard), &frozen); err != nil {
		result.SchemaValid = false
		result.Errors = append(result.Errors, "leaderboard payload is not valid JSON: "+err.Error())
		return result, nil
	}
	for i, entry := range frozen {
		if entry.TeamID == uuid.Nil || entry.Rank < 1 {
			result.SchemaValid = false
			result.Errors = append(result.Errors, fmt.Sprintf("leaderboard entry %d is malformed", i))
		}
	}
	result.Snapshot = ComputedState{
		TotalTeams:  snap.TotalTeams,
		TotalGames:  snap.TotalGames,
		Leaderboard: frozen,
	}

	result.Mismatches.Leaderboard = diffLeaderboards(frozen, live.Leaderboard)

	if snap.TotalGames != live.TotalGames {
		result.Mismatches.Totals = append(result.Mismatches.Totals,
			TotalsMismatch{Field: "totalGames", Expected: snap.TotalGames, Actual: live.TotalGames})
	}
	if snap.TotalTeams != live.TotalTeams {
		result.Mismatches.Totals = append(result.Mismatches.Totals,
			TotalsMismatch{Field: "totalTeams", Expected: snap.TotalTeams, Actual: live.TotalTeams})
	}

	if result.Clean() {
		metrics.SnapshotVerifications.WithLabelValues("clean").Inc()
	} else {
		metrics.SnapshotVerifications.WithLabelValues("drift").Inc()
		s.log.Warn("recap verification found drift",
			zap.String("event_id", eventID.String()),
			zap.Int("leaderboard_mismatches", len(result.Mismatches.Leaderboard)),
			zap.Int("totals_mismatches", len(result.Mismatches.Totals)),
		)
	}
	return result, nil
}

func (s *RecapService) computeLive(ctx context.Context, eventID uuid.UUID) (*ComputedState, error) {
	teams, err := s.teams.ListTeams(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "list teams")
	}
	totals, err := s.scores.SumPointsByTeam(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "sum score rows")
	}
	games, err := s.scores.CountDistinctGames(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "count games")
	}

	// Totals come from score rows, never from the cached team aggregate,
	// so the verifier can surface a cache that drifted from its rows.
	for i := range teams {
		teams[i].TotalPoints = totals[teams[i].ID]
	}

	return &ComputedState{
		TotalTeams:  len(teams),
		TotalGames:  games,
		Leaderboard: scoreboard.RankTeams(teams),
	}, nil
}

// diffLeaderboards tags each divergence between the frozen snapshot
// (expected) and the live recomputation (actual).
func diffLeaderboards(frozen, live []scoreboard.RankedTeam) []LeaderboardMismatch {
	mismatches := []LeaderboardMismatch{}

	liveByID := make(map[uuid.UUID]scoreboard.RankedTeam, len(live))
	for _, t := range live {
		liveByID[t.TeamID] = t
	}
	frozenIDs := make(map[uuid.UUID]struct{}, len(frozen))

	for _, exp := range frozen {
		frozenIDs[exp.TeamID] = struct{}{}
		act, ok := liveByID[exp.TeamID]
		if !ok {
			mismatches = append(mismatches, LeaderboardMismatch{
				TeamID: exp.TeamID, TeamName: exp.TeamName, Kind: MismatchMissing,
				ExpectedPoints: utils.Ptr(exp.TotalPoints), ExpectedRank: utils.Ptr(exp.Rank),
			})
			continue
		}
		if exp.TotalPoints != act.TotalPoints {
			mismatches = append(mismatches, LeaderboardMismatch{
				TeamID: exp.TeamID, TeamName: exp.TeamName, Kind: MismatchPoints,
				ExpectedPoints: utils.Ptr(exp.TotalPoints), ActualPoints: utils.Ptr(act.TotalPoints),
			})
		}
		if exp.Rank != act.Rank {
			mismatches = append(mismatches, LeaderboardMismatch{
				TeamID: exp.TeamID, TeamName: exp.TeamName, Kind: MismatchRank,
				ExpectedRank: utils.Ptr(exp.Rank), ActualRank: utils.Ptr(act.Rank),
			})
		}
	}

	for _, act := range live {
		if _, ok := frozenIDs[act.TeamID]; !ok {
			mismatches = append(mismatches, LeaderboardMismatch{
				TeamID: act.TeamID, TeamName: act.TeamName, Kind: MismatchExtra,
				ActualPoints: utils.Ptr(act.TotalPoints), ActualRank: utils.Ptr(act.Rank),
			})
		}
	}
	return mismatches
}

