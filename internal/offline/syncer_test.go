package offline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tallyboard/tallyboard/internal/apperr"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
	"github.com/tallyboard/tallyboard/internal/service"
)

// fakeLedger records every submit and fails items whose game number has an
// error configured, mimicking the server's per-item verdicts.
type fakeLedger struct {
	mu         sync.Mutex
	calls      []service.SubmitInput
	errByGame  map[int]error
	teams      []scoreboard.Team
	fetchCount int
}

func (f *fakeLedger) SubmitScore(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if err := f.errByGame[in.GameNumber]; err != nil {
		return nil, err
	}
	return &service.SubmitResult{Action: service.ActionCreated, TeamTotal: in.Points}, nil
}

func (f *fakeLedger) FetchTeams(ctx context.Context, eventID uuid.UUID) ([]scoreboard.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCount++
	return f.teams, nil
}

func (f *fakeLedger) setError(game int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errByGame == nil {
		f.errByGame = map[int]error{}
	}
	f.errByGame[game] = err
}

func (f *fakeLedger) callsForGame(game int) []service.SubmitInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []service.SubmitInput
	for _, c := range f.calls {
		if c.GameNumber == game {
			out = append(out, c)
		}
	}
	return out
}

type fakeConn struct {
	mu     sync.Mutex
	online bool
}

func (f *fakeConn) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeConn) set(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
}

func newTestSyncer(t *testing.T, eventID uuid.UUID) (*Syncer, *fakeLedger, *fakeConn, *Projection) {
	t.Helper()

	ledger := &fakeLedger{}
	conn := &fakeConn{online: true}
	proj := NewProjection()
	s := NewSyncer(openTestQueue(t), ledger, conn, proj, eventID, time.Minute, zap.NewNop())
	return s, ledger, conn, proj
}

func TestSubmitOnlineGoesStraightToLedger(t *testing.T) {
	eventID := uuid.New()
	s, ledger, _, _ := newTestSyncer(t, eventID)
	teamID := uuid.New()

	res, err := s.Submit(context.Background(), teamID, 1, 10, nil, KindSingle)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, service.ActionCreated, res.Action)

	require.Len(t, ledger.calls, 1)
	assert.Equal(t, eventID, ledger.calls[0].EventID)

	n, err := s.queue.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing to queue when the direct call lands")
}

func TestSubmitOfflineQueuesWithOptimisticTotal(t *testing.T) {
	s, ledger, conn, proj := newTestSyncer(t, uuid.New())
	conn.set(false)
	teamID := uuid.New()

	res, err := s.Submit(context.Background(), teamID, 1, 10, nil, KindSingle)
	require.NoError(t, err)
	assert.Nil(t, res, "no authoritative result while offline")
	assert.Empty(t, ledger.calls)

	n, err := s.queue.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, proj.Total(teamID), "UI sees the provisional total immediately")
}

func TestSubmitTransientFailureFallsBackToQueue(t *testing.T) {
	s, ledger, _, proj := newTestSyncer(t, uuid.New())
	ledger.setError(1, apperr.New(apperr.KindStorage, "connection reset"))
	teamID := uuid.New()

	res, err := s.Submit(context.Background(), teamID, 1, 10, nil, KindSingle)
	require.NoError(t, err, "a queued write is not an error to the caller")
	assert.Nil(t, res)

	n, err := s.queue.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, proj.Total(teamID))
}

func TestSubmitTerminalErrorSurfacesImmediately(t *testing.T) {
	s, ledger, _, _ := newTestSyncer(t, uuid.New())
	ledger.setError(1, apperr.New(apperr.KindLifecycle, "day 1 is locked"))

	_, err := s.Submit(context.Background(), uuid.New(), 1, 10, nil, KindSingle)
	assert.True(t, apperr.Terminal(err), "locked-day rejections are not queued for retry")

	n, qerr := s.queue.PendingCount(context.Background())
	require.NoError(t, qerr)
	assert.Zero(t, n)
}

func TestDrainPreservesFIFOAcrossTransientFailure(t *testing.T) {
	eventID := uuid.New()
	s, ledger, conn, _ := newTestSyncer(t, eventID)
	teamID := uuid.New()

	conn.set(false)
	for game := 1; game <= 3; game++ {
		_, err := s.Submit(context.Background(), teamID, game, game*10, nil, KindSingle)
		require.NoError(t, err)
	}

	// B hits a transient failure: the cycle must stop at B, leaving B and C
	// pending in order, with A acknowledged exactly once.
	ledger.setError(2, apperr.New(apperr.KindStorage, "timeout"))
	conn.set(true)
	require.NoError(t, s.Drain(context.Background()))

	pending, err := s.queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 2, pending[0].GameNumber)
	assert.Equal(t, 3, pending[1].GameNumber)

	// Next cycle resumes at B without re-processing A.
	ledger.setError(2, nil)
	require.NoError(t, s.Drain(context.Background()))

	n, err := s.queue.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, ledger.callsForGame(1), 1, "A was never re-submitted")
	assert.Len(t, ledger.callsForGame(2), 2)
	assert.Len(t, ledger.callsForGame(3), 1)
}

func TestDrainTerminalRejectionContinuesPastItem(t *testing.T) {
	s, ledger, conn, _ := newTestSyncer(t, uuid.New())
	teamID := uuid.New()

	conn.set(false)
	for game := 1; game <= 3; game++ {
		_, err := s.Submit(context.Background(), teamID, game, 10, nil, KindSingle)
		require.NoError(t, err)
	}

	ledger.setError(2, apperr.New(apperr.KindLifecycle, "day 2 is locked"))
	conn.set(true)
	require.NoError(t, s.Drain(context.Background()))

	n, err := s.queue.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "terminal failure does not block the items behind it")

	failed, err := s.queue.Failed(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].GameNumber)
	require.NotNil(t, failed[0].LastError)
	assert.Contains(t, *failed[0].LastError, "locked")
}

func TestDrainSendsQueueIDAsSubmissionID(t *testing.T) {
	s, ledger, conn, _ := newTestSyncer(t, uuid.New())

	conn.set(false)
	_, err := s.Submit(context.Background(), uuid.New(), 1, 10, nil, KindSingle)
	require.NoError(t, err)

	pending, err := s.queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	conn.set(true)
	require.NoError(t, s.Drain(context.Background()))

	require.Len(t, ledger.calls, 1)
	require.NotNil(t, ledger.calls[0].SubmissionID)
	assert.Equal(t, pending[0].ID, *ledger.calls[0].SubmissionID,
		"the queue id rides along as the idempotency key")
}

func TestDrainRebasesProjectionOnAuthoritativeTotals(t *testing.T) {
	eventID := uuid.New()
	s, ledger, conn, proj := newTestSyncer(t, eventID)
	teamID := uuid.New()

	conn.set(false)
	_, err := s.Submit(context.Background(), teamID, 1, 10, nil, KindSingle)
	require.NoError(t, err)
	assert.Equal(t, 10, proj.Total(teamID))

	// The server's answer differs from the optimistic math (another scorer
	// corrected the slot meanwhile). The server wins.
	ledger.teams = []scoreboard.Team{{ID: teamID, EventID: eventID, Name: "Red", TotalPoints: 25}}

	conn.set(true)
	require.NoError(t, s.Drain(context.Background()))

	assert.Equal(t, 1, ledger.fetchCount)
	assert.Equal(t, 25, proj.Total(teamID))
	assert.False(t, proj.Dirty())
}

func TestDrainOfflineIsNoOp(t *testing.T) {
	s, ledger, conn, _ := newTestSyncer(t, uuid.New())

	conn.set(false)
	_, err := s.Submit(context.Background(), uuid.New(), 1, 10, nil, KindSingle)
	require.NoError(t, err)

	require.NoError(t, s.Drain(context.Background()))
	assert.Empty(t, ledger.calls)
	assert.Zero(t, ledger.fetchCount)
}

func TestSwitchEventPrunesStaleQueue(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	s, _, conn, proj := newTestSyncer(t, first)
	teamID := uuid.New()

	conn.set(false)
	_, err := s.Submit(context.Background(), teamID, 1, 10, nil, KindSingle)
	require.NoError(t, err)

	require.NoError(t, s.SwitchEvent(context.Background(), second))

	n, err := s.queue.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "queued writes never replay against a different event")
	assert.Equal(t, 0, proj.Total(teamID), "projection starts over with the new event")
}

func TestSubmitTargetsReboundEvent(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	s, ledger, _, _ := newTestSyncer(t, first)

	require.NoError(t, s.SwitchEvent(context.Background(), second))

	_, err := s.Submit(context.Background(), uuid.New(), 1, 10, nil, KindSingle)
	require.NoError(t, err)

	require.Len(t, ledger.calls, 1)
	assert.Equal(t, second, ledger.calls[0].EventID)
}

func TestSubmitDuringSwitchEventIsRaceFree(t *testing.T) {
	s, _, _, _ := newTestSyncer(t, uuid.New())
	teamID := uuid.New()

	// Exercised under the race detector: Submit reads the bound event while
	// SwitchEvent rebinds it from another goroutine.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = s.Submit(context.Background(), teamID, 1, 10, nil, KindSingle)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = s.SwitchEvent(context.Background(), uuid.New())
		}
	}()
	wg.Wait()
}

func TestNotifyOnlineWakesRunLoop(t *testing.T) {
	eventID := uuid.New()
	s, ledger, conn, _ := newTestSyncer(t, eventID)

	conn.set(false)
	_, err := s.Submit(context.Background(), uuid.New(), 1, 10, nil, KindSingle)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	conn.set(true)
	s.NotifyOnline()

	require.Eventually(t, func() bool {
		n, err := s.queue.PendingCount(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond, "wake signal triggers a drain without waiting for the ticker")

	cancel()
	<-done
	require.Len(t, ledger.callsForGame(1), 1)
}
