package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyboard/tallyboard/internal/apperr"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
)

func TestGenerateAndVerifyClean(t *testing.T) {
	env := newTestEnv(t)
	ev := env.activeEvent(t, CreateEventInput{Name: "Field Day"})
	red := env.addTeam(t, ev.ID, "Red")
	blue := env.addTeam(t, ev.ID, "Blue")

	submit := func(teamID uuid.UUID, game, points int) {
		t.Helper()
		_, err := env.scoreSvc.SubmitScore(context.Background(), scorerPerms, SubmitInput{
			EventID: ev.ID, TeamID: teamID, GameNumber: game, Points: points,
		})
		require.NoError(t, err)
	}
	submit(red.ID, 1, 10)
	submit(red.ID, 2, 5)
	submit(blue.ID, 1, 20)

	snap, err := env.recapSvc.Generate(context.Background(), adminPerms, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalTeams)
	assert.Equal(t, 2, snap.TotalGames)

	var frozen []scoreboard.RankedTeam
	require.NoError(t, json.Unmarshal([]byte(snap.Leaderboard), &frozen))
	require.Len(t, frozen, 2)
	assert.Equal(t, blue.ID, frozen[0].TeamID)
	assert.Equal(t, 20, frozen[0].TotalPoints)
	assert.Equal(t, 1, frozen[0].Rank)

	result, err := env.recapSvc.Verify(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.True(t, result.Clean())
	assert.True(t, result.SchemaValid)
	assert.Empty(t, result.Mismatches.Leaderboard)
	assert.Empty(t, result.Mismatches.Totals)
	assert.Equal(t, snap.ID, result.SnapshotID)
}

func TestVerifyDetectsDrift(t *testing.T) {
	env := newTestEnv(t)
	ev := env.activeEvent(t, CreateEventInput{Name: "Field Day"})
	red := env.addTeam(t, ev.ID, "Red")
	blue := env.addTeam(t, ev.ID, "Blue")

	submit := func(teamID uuid.UUID, game, points int) {
		t.Helper()
		_, err := env.scoreSvc.SubmitScore(context.Background(), scorerPerms, SubmitInput{
			EventID: ev.ID, TeamID: teamID, GameNumber: game, Points: points,
		})
		require.NoError(t, err)
	}
	submit(red.ID, 1, 10)
	submit(blue.ID, 1, 20)

	_, err := env.recapSvc.Generate(context.Background(), adminPerms, ev.ID)
	require.NoError(t, err)

	// Post-snapshot submission flips the standings and adds a game.
	submit(red.ID, 2, 30)

	result, err := env.recapSvc.Verify(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.False(t, result.Clean())
	assert.True(t, result.SchemaValid, "drift is not a schema problem")

	byKind := map[MismatchKind][]LeaderboardMismatch{}
	for _, m := range result.Mismatches.Leaderboard {
		byKind[m.Kind] = append(byKind[m.Kind], m)
	}

	require.Len(t, byKind[MismatchPoints], 1)
	points := byKind[MismatchPoints][0]
	assert.Equal(t, red.ID, points.TeamID)
	assert.Equal(t, 10, *points.ExpectedPoints, "expected comes from the snapshot")
	assert.Equal(t, 40, *points.ActualPoints, "actual comes from the live recomputation")

	// Both teams swapped places, so both carry rank mismatches.
	require.Len(t, byKind[MismatchRank], 2)

	require.Len(t, result.Mismatches.Totals, 1)
	assert.Equal(t, "totalGames", result.Mismatches.Totals[0].Field)
	assert.Equal(t, 1, result.Mismatches.Totals[0].Expected)
	assert.Equal(t, 2, result.Mismatches.Totals[0].Actual)
}

func TestVerifyCatchesCacheDriftFromScoreRows(t *testing.T) {
	env := newTestEnv(t)
	ev := env.activeEvent(t, CreateEventInput{Name: "Field Day"})
	red := env.addTeam(t, ev.ID, "Red")

	_, err := env.scoreSvc.SubmitScore(context.Background(), scorerPerms, SubmitInput{
		EventID: ev.ID, TeamID: red.ID, GameNumber: 1, Points: 10,
	})
	require.NoError(t, err)

	_, err = env.recapSvc.Generate(context.Background(), adminPerms, ev.ID)
	require.NoError(t, err)

	// Tamper a score row behind the service's back. The cached
	// teams.total_points still reads 10, but the rows now sum to 999;
	// verification must trust the rows.
	_, err = env.db.Exec("UPDATE scores SET points = 999 WHERE event_id = ?", ev.ID)
	require.NoError(t, err)

	result, err := env.recapSvc.Verify(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.False(t, result.Clean())

	var points *LeaderboardMismatch
	for i, m := range result.Mismatches.Leaderboard {
		if m.Kind == MismatchPoints {
			points = &result.Mismatches.Leaderboard[i]
		}
	}
	require.NotNil(t, points, "row/cache divergence must surface as a points mismatch")
	assert.Equal(t, red.ID, points.TeamID)
	assert.Equal(t, 10, *points.ExpectedPoints)
	assert.Equal(t, 999, *points.ActualPoints)
}

func TestVerifyMissingAndExtraTeams(t *testing.T) {
	env := newTestEnv(t)
	ev := env.activeEvent(t, CreateEventInput{Name: "Field Day"})
	red := env.addTeam(t, ev.ID, "Red")

	_, err := env.scoreSvc.SubmitScore(context.Background(), scorerPerms, SubmitInput{
		EventID: ev.ID, TeamID: red.ID, GameNumber: 1, Points: 10,
	})
	require.NoError(t, err)

	_, err = env.recapSvc.Generate(context.Background(), adminPerms, ev.ID)
	require.NoError(t, err)

	// One team vanishes, another appears.
	require.NoError(t, env.eventSvc.DeleteTeam(context.Background(), adminPerms, ev.ID, red.ID))
	green := env.addTeam(t, ev.ID, "Green")

	result, err := env.recapSvc.Verify(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.False(t, result.Clean())

	kinds := map[MismatchKind]uuid.UUID{}
	for _, m := range result.Mismatches.Leaderboard {
		kinds[m.Kind] = m.TeamID
	}
	assert.Equal(t, red.ID, kinds[MismatchMissing])
	assert.Equal(t, green.ID, kinds[MismatchExtra])
}

func TestVerifyWithoutSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ev := env.activeEvent(t, CreateEventInput{Name: "Field Day"})

	_, err := env.recapSvc.Verify(context.Background(), ev.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestVerifyRejectsBrokenSnapshotPayload(t *testing.T) {
	env := newTestEnv(t)
	ev := env.activeEvent(t, CreateEventInput{Name: "Field Day"})

	// A corrupted snapshot row must fail schema validation, not crash.
	require.NoError(t, env.snaps.CreateSnapshot(context.Background(), &scoreboard.Snapshot{
		ID:          uuid.New(),
		EventID:     ev.ID,
		Leaderboard: `{"not":`,
	}))

	result, err := env.recapSvc.Verify(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.False(t, result.SchemaValid)
	assert.False(t, result.Clean())
	assert.NotEmpty(t, result.Errors)
}

func TestGenerateRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ev := env.activeEvent(t, CreateEventInput{Name: "Field Day"})

	_, err := env.recapSvc.Generate(context.Background(), scorerPerms, ev.ID)
	assert.True(t, errors.Is(err, apperr.ErrPermission))
}

func TestRegenerateSnapshotIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	ev := env.activeEvent(t, CreateEventInput{Name: "Field Day"})
	red := env.addTeam(t, ev.ID, "Red")

	first, err := env.recapSvc.Generate(context.Background(), adminPerms, ev.ID)
	require.NoError(t, err)

	_, err = env.scoreSvc.SubmitScore(context.Background(), scorerPerms, SubmitInput{
		EventID: ev.ID, TeamID: red.ID, GameNumber: 1, Points: 10,
	})
	require.NoError(t, err)

	second, err := env.recapSvc.Generate(context.Background(), adminPerms, ev.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "regeneration inserts, never rewrites")

	latest, err := env.snaps.LatestSnapshot(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, 1, latest.TotalGames)
}
