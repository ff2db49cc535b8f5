package offline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tallyboard/tallyboard/internal/apperr"
	"github.com/tallyboard/tallyboard/internal/metrics"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
	"github.com/tallyboard/tallyboard/internal/service"
)

// Ledger is the score ledger as seen from the client: submit one score,
// fetch authoritative team state. The HTTP client in this package implements
// it against the server API.
type Ledger interface {
	SubmitScore(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error)
	FetchTeams(ctx context.Context, eventID uuid.UUID) ([]scoreboard.Team, error)
}

// Connectivity answers "are we online right now".
type Connectivity interface {
	Online() bool
}

// Syncer owns the drain loop. All queue mutations funnel through it; a
// draining flag guards against a tick and an online transition overlapping.
type Syncer struct {
	queue  *Queue
	ledger Ledger
	conn   Connectivity
	proj   *Projection
	log    *zap.Logger

	eventID  uuid.UUID
	interval time.Duration
	wake     chan struct{}

	mu       sync.Mutex
	draining bool
}

func NewSyncer(queue *Queue, ledger Ledger, conn Connectivity, proj *Projection, eventID uuid.UUID, interval time.Duration, log *zap.Logger) *Syncer {
	return &Syncer{
		queue:    queue,
		ledger:   ledger,
		conn:     conn,
		proj:     proj,
		eventID:  eventID,
		interval: interval,
		wake:     make(chan struct{}, 1),
		log:      log,
	}
}

// Submit is the single entry point for score-affecting user actions. Online
// it calls the ledger directly; offline it queues the write and applies an
// optimistic delta so the UI stays responsive.
func (s *Syncer) Submit(ctx context.Context, teamID uuid.UUID, gameNumber, points int, category *string, kind Kind) (*service.SubmitResult, error) {
	// Snapshot the bound event under the lock; SwitchEvent may rebind it
	// from another goroutine mid-submit.
	s.mu.Lock()
	eventID := s.eventID
	s.mu.Unlock()

	if s.conn.Online() {
		res, err := s.ledger.SubmitScore(ctx, service.SubmitInput{
			EventID:    eventID,
			TeamID:     teamID,
			GameNumber: gameNumber,
			Points:     points,
			Category:   category,
		})
		if err == nil || apperr.Terminal(err) {
			return res, err
		}
		// Transport or storage failure: fall through to the queue so the
		// write is not lost. It presents to the user as "queued, will sync".
		s.log.Warn("direct submit failed, queueing", zap.Error(err))
	}

	item, err := s.queue.Enqueue(ctx, eventID, teamID, gameNumber, points, category, kind)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "enqueue")
	}
	s.proj.Apply(teamID, points)
	s.log.Info("score queued for sync",
		zap.String("item_id", item.ID),
		zap.String("team_id", teamID.String()),
		zap.Int("points", points),
	)
	return nil, nil
}

// SubmitBulk queues or submits one entry per team for a single game. Items
// share the bulk kind but drain as independent upserts.
func (s *Syncer) SubmitBulk(ctx context.Context, entries map[uuid.UUID]int, gameNumber int, category *string) error {
	for teamID, points := range entries {
		if _, err := s.Submit(ctx, teamID, gameNumber, points, category, KindBulk); err != nil {
			return err
		}
	}
	return nil
}

// SwitchEvent rebinds the syncer to another event. Queued items for any
// other event are pruned and the optimistic projection is discarded.
func (s *Syncer) SwitchEvent(ctx context.Context, eventID uuid.UUID) error {
	s.mu.Lock()
	s.eventID = eventID
	s.mu.Unlock()

	pruned, err := s.queue.PruneOtherEvents(ctx, eventID)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "prune queue")
	}
	if pruned > 0 {
		s.log.Info("pruned stale queued scores", zap.Int64("count", pruned))
	}
	s.proj.SetBase(map[uuid.UUID]int{})
	return nil
}

// NotifyOnline nudges the drain loop after a connectivity transition.
// Non-blocking; a pending wake coalesces with this one.
func (s *Syncer) NotifyOnline() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives periodic drains until ctx is cancelled. Failed drains are not
// retried in a tight loop; the next tick or online transition picks them up.
func (s *Syncer) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		case <-s.wake:
		}
		if err := s.Drain(ctx); err != nil {
			s.log.Warn("drain cycle aborted", zap.Error(err))
		}
	}
}

// Drain pushes pending items to the ledger in FIFO order. Exactly one drain
// cycle runs at a time; concurrent triggers are no-ops.
//
// Per-item outcomes:
//   - acknowledged (including duplicate replays): removed from the queue
//   - terminal rejection (locked day, finalized, bad token, validation):
//     marked failed and surfaced, drain continues with the next item
//   - storage/transport failure: the item stays pending and the cycle stops,
//     preserving order for the next attempt
func (s *Syncer) Drain(ctx context.Context) error {
	if !s.conn.Online() {
		return nil
	}
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil
	}
	s.draining = true
	eventID := s.eventID
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	metrics.DrainCycles.Inc()

	items, err := s.queue.Pending(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "read queue")
	}
	if len(items) == 0 {
		return nil
	}

	for _, item := range items {
		submissionID := item.ID
		_, err := s.ledger.SubmitScore(ctx, service.SubmitInput{
			EventID:      item.EventID,
			TeamID:       item.TeamID,
			GameNumber:   item.GameNumber,
			Points:       item.Points,
			Category:     item.Category,
			SubmissionID: &submissionID,
		})
		switch {
		case err == nil:
			// A duplicate outcome lands here too: the ledger reports it as
			// success, proving the mutation already applied.
			if rmErr := s.queue.Remove(ctx, item.ID); rmErr != nil {
				return apperr.Wrap(apperr.KindStorage, rmErr, "remove drained item")
			}
			metrics.DrainedItems.WithLabelValues("synced").Inc()
		case apperr.Terminal(err):
			if mfErr := s.queue.MarkFailed(ctx, item.ID, err.Error()); mfErr != nil {
				return apperr.Wrap(apperr.KindStorage, mfErr, "mark item failed")
			}
			metrics.DrainedItems.WithLabelValues("failed").Inc()
			s.log.Warn("queued score rejected",
				zap.String("item_id", item.ID),
				zap.String("reason", err.Error()),
			)
		default:
			// Transient failure: stop here so FIFO order holds next cycle.
			metrics.DrainedItems.WithLabelValues("retried").Inc()
			return nil
		}
	}

	// Queue fully drained: optimistic math is no longer trusted. Re-fetch
	// authoritative totals and rebase the projection on them.
	pending, err := s.queue.PendingCount(ctx)
	if err != nil || pending > 0 {
		return err
	}
	teams, err := s.ledger.FetchTeams(ctx, eventID)
	if err != nil {
		s.log.Warn("post-drain refresh failed", zap.Error(err))
		return nil
	}
	totals := make(map[uuid.UUID]int, len(teams))
	for _, t := range teams {
		totals[t.ID] = t.TotalPoints
	}
	s.proj.SetBase(totals)
	s.log.Info("queue drained, totals refreshed", zap.Int("teams", len(teams)))
	return nil
}
