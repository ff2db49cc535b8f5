package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tallyboard/tallyboard/internal/apperr"
	"github.com/tallyboard/tallyboard/internal/lifecycle"
	"github.com/tallyboard/tallyboard/internal/metrics"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
	"github.com/tallyboard/tallyboard/internal/store"
	"github.com/tallyboard/tallyboard/internal/token"
	"github.com/tallyboard/tallyboard/internal/utils"
)

type ScoreService struct {
	db     *sqlx.DB
	events *store.EventStore
	teams  *store.TeamStore
	scores *store.ScoreStore
	log    *zap.Logger
}

func NewScoreService(db *sqlx.DB, events *store.EventStore, teams *store.TeamStore, scores *store.ScoreStore, log *zap.Logger) *ScoreService {
	return &ScoreService{db: db, events: events, teams: teams, scores: scores, log: log}
}

type SubmitAction string

const (
	ActionCreated   SubmitAction = "created"
	ActionUpdated   SubmitAction = "updated"
	ActionDuplicate SubmitAction = "duplicate"
)

type SubmitInput struct {
	EventID      uuid.UUID `json:"event_id"`
	TeamID       uuid.UUID `json:"team_id"`
	GameNumber   int       `json:"game_number"`
	Points       int       `json:"points"`
	Category     *string   `json:"category,omitempty"`
	SubmissionID *string   `json:"submission_id,omitempty"`
}

type SubmitResult struct {
	Score     *scoreboard.Score `json:"score"`
	Action    SubmitAction      `json:"action"`
	TeamTotal int               `json:"team_total"`
}

// SubmitScore is the single authoritative write path for score entries.
// Guard order: permission, lifecycle, validation, then the idempotency check
// and the atomic upsert. The team's cached total is re-derived from score
// rows inside the same transaction.
func (s *ScoreService) SubmitScore(ctx context.Context, perms token.Permissions, in SubmitInput) (*SubmitResult, error) {
	// Every business rejection counts once; storage failures do not.
	reject := func(err error) (*SubmitResult, error) {
		metrics.ScoreSubmissions.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if !perms.CanSubmitScores {
		return reject(apperr.New(apperr.KindPermission, "this token cannot submit scores"))
	}

	ev, err := s.events.GetEvent(ctx, in.EventID)
	if errors.Is(err, sql.ErrNoRows) {
		return reject(apperr.New(apperr.KindNotFound, "event not found"))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "load event")
	}

	if err := lifecycle.CanWrite(ev, in.GameNumber); err != nil {
		return reject(err)
	}

	if in.GameNumber < 1 {
		return reject(apperr.New(apperr.KindValidation, "game number must be a positive integer"))
	}
	if in.Points < 0 && !ev.AllowNegative {
		return reject(apperr.New(apperr.KindValidation, "negative points are not allowed for this event"))
	}

	team, err := s.teams.GetTeam(ctx, in.TeamID)
	if errors.Is(err, sql.ErrNoRows) {
		return reject(apperr.New(apperr.KindNotFound, "team not found"))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "load team")
	}
	if team.EventID != in.EventID {
		return reject(apperr.New(apperr.KindValidation, "team does not belong to this event"))
	}

	// Idempotency is keyed by submission id, independent of the slot key:
	// a retried submission must never re-apply points, while a fresh
	// submission id may legitimately overwrite the same slot.
	if in.SubmissionID != nil && *in.SubmissionID != "" {
		prior, err := s.scores.GetBySubmissionID(ctx, in.EventID, *in.SubmissionID)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, err, "idempotency lookup")
		}
		if prior != nil {
			metrics.ScoreSubmissions.WithLabelValues("duplicate").Inc()
			return &SubmitResult{Score: prior, Action: ActionDuplicate, TeamTotal: team.TotalPoints}, nil
		}
	}

	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "begin tx")
	}
	defer tx.Rollback()

	entry := &scoreboard.Score{
		ID:           uuid.New(),
		EventID:      in.EventID,
		TeamID:       in.TeamID,
		GameNumber:   in.GameNumber,
		Points:       in.Points,
		Category:     utils.StringOrNil(utils.OrZero(in.Category)),
		SubmissionID: in.SubmissionID,
	}

	stored, created, err := s.scores.UpsertScore(ctx, tx, entry)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "upsert score")
	}

	total, err := s.scores.RecomputeTeamTotal(ctx, tx, in.TeamID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "recompute team total")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "commit")
	}
	metrics.ObserveDB(time.Since(start))

	action := ActionUpdated
	if created {
		action = ActionCreated
	}
	metrics.ScoreSubmissions.WithLabelValues(string(action)).Inc()
	s.log.Info("score submitted",
		zap.String("event_id", in.EventID.String()),
		zap.String("team_id", in.TeamID.String()),
		zap.Int("game_number", in.GameNumber),
		zap.Int("points", in.Points),
		zap.String("action", string(action)),
	)

	return &SubmitResult{Score: stored, Action: action, TeamTotal: total}, nil
}

type BulkItemResult struct {
	Index  int           `json:"index"`
	Result *SubmitResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// SubmitBulk runs independent upserts for each item. Partial failure is
// expected; the caller gets a per-item outcome, never an all-or-nothing.
func (s *ScoreService) SubmitBulk(ctx context.Context, perms token.Permissions, items []SubmitInput) []BulkItemResult {
	results := make([]BulkItemResult, 0, len(items))
	for i, in := range items {
		res, err := s.SubmitScore(ctx, perms, in)
		item := BulkItemResult{Index: i, Result: res}
		if err != nil {
			item.Error = err.Error()
		}
		results = append(results, item)
	}
	return results
}

// DeleteScore removes one entry and re-derives the team total in the same
// transaction. Admin capability only.
func (s *ScoreService) DeleteScore(ctx context.Context, perms token.Permissions, eventID, scoreID uuid.UUID) error {
	if !perms.CanDeleteScores {
		return apperr.New(apperr.KindPermission, "this token cannot delete scores")
	}

	score, err := s.scores.GetScore(ctx, scoreID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.KindNotFound, "score not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "load score")
	}
	if score.EventID != eventID {
		return apperr.New(apperr.KindValidation, "score does not belong to this event")
	}

	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "load event")
	}
	if err := lifecycle.CanWrite(ev, score.GameNumber); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "begin tx")
	}
	defer tx.Rollback()

	if err := s.scores.DeleteScore(ctx, tx, scoreID); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "delete score")
	}
	if _, err := s.scores.RecomputeTeamTotal(ctx, tx, score.TeamID); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "recompute team total")
	}
	return tx.Commit()
}

func (s *ScoreService) ListScores(ctx context.Context, eventID uuid.UUID) ([]scoreboard.Score, error) {
	scores, err := s.scores.ListScores(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "list scores")
	}
	return scores, nil
}

// Leaderboard ranks the event's teams from their cached totals.
func (s *ScoreService) Leaderboard(ctx context.Context, eventID uuid.UUID) ([]scoreboard.RankedTeam, error) {
	teams, err := s.teams.ListTeams(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "list teams")
	}
	return scoreboard.RankTeams(teams), nil
}
