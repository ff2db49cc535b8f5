package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tallyboard/tallyboard/internal/apperr"
	"github.com/tallyboard/tallyboard/internal/lifecycle"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
	"github.com/tallyboard/tallyboard/internal/store"
	"github.com/tallyboard/tallyboard/internal/token"
	"github.com/tallyboard/tallyboard/internal/utils"
)

type EventService struct {
	db     *sqlx.DB
	events *store.EventStore
	teams  *store.TeamStore
	log    *zap.Logger
}

func NewEventService(db *sqlx.DB, events *store.EventStore, teams *store.TeamStore, log *zap.Logger) *EventService {
	return &EventService{db: db, events: events, teams: teams, log: log}
}

type CreateEventInput struct {
	Name          string                 `json:"name"`
	ScoringMode   scoreboard.ScoringMode `json:"scoring_mode"`
	NumDays       int                    `json:"num_days"`
	AllowNegative bool                   `json:"allow_negative"`
}

type CreatedEvent struct {
	Event  *scoreboard.Event `json:"event"`
	Tokens token.Plaintext   `json:"tokens"`
}

// CreateEvent mints the three capability tokens and persists their hashes.
// The plaintext tokens in the result are returned to the caller exactly once.
func (s *EventService) CreateEvent(ctx context.Context, in CreateEventInput) (*CreatedEvent, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.New(apperr.KindValidation, "event name is required")
	}
	mode := in.ScoringMode
	if mode == "" {
		mode = scoreboard.Continuous
	}
	if mode != scoreboard.Continuous && mode != scoreboard.Daily {
		return nil, apperr.New(apperr.KindValidation, "unknown scoring mode %q", in.ScoringMode)
	}
	days := in.NumDays
	if days <= 0 {
		days = 1
	}

	plain, hashes, err := token.GenerateEventTokens()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "generate tokens")
	}

	ev := &scoreboard.Event{
		ID:              uuid.New(),
		Name:            name,
		Status:          scoreboard.EventDraft,
		ScoringMode:     mode,
		NumDays:         days,
		AllowNegative:   in.AllowNegative,
		AdminTokenHash:  hashes.Admin,
		ScorerTokenHash: hashes.Scorer,
		ViewerTokenHash: hashes.Viewer,
		LockedDays:      []int{},
	}

	if err := s.events.CreateEvent(ctx, ev); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "create event")
	}

	s.log.Info("event created", zap.String("event_id", ev.ID.String()), zap.String("mode", string(mode)))
	return &CreatedEvent{Event: ev, Tokens: plain}, nil
}

func (s *EventService) GetEvent(ctx context.Context, id uuid.UUID) (*scoreboard.Event, error) {
	ev, err := s.events.GetEvent(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "event not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "load event")
	}
	return ev, nil
}

// DeleteEvent removes the event and, through foreign keys, its teams, scores
// and snapshots. Admin capability only.
func (s *EventService) DeleteEvent(ctx context.Context, perms token.Permissions, id uuid.UUID) error {
	if !perms.CanEditEvent {
		return apperr.New(apperr.KindPermission, "this token cannot edit the event")
	}
	if _, err := s.GetEvent(ctx, id); err != nil {
		return err
	}
	if err := s.events.DeleteEvent(ctx, id); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "delete event")
	}
	s.log.Info("event deleted", zap.String("event_id", id.String()))
	return nil
}

// Transition applies a status change after the lifecycle table allows it.
func (s *EventService) Transition(ctx context.Context, perms token.Permissions, id uuid.UUID, to scoreboard.EventStatus) (*scoreboard.Event, error) {
	if !perms.CanEditEvent {
		return nil, apperr.New(apperr.KindPermission, "this token cannot edit the event")
	}
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanTransition(ev.Status, to, ev.IsFinalized); err != nil {
		return nil, err
	}
	if err := s.events.UpdateStatus(ctx, id, to); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "update status")
	}
	ev.Status = to
	s.log.Info("event status changed", zap.String("event_id", id.String()), zap.String("status", string(to)))
	return ev, nil
}

func (s *EventService) Finalize(ctx context.Context, perms token.Permissions, id uuid.UUID) (*scoreboard.Event, error) {
	if !perms.CanFinalizeEvent {
		return nil, apperr.New(apperr.KindPermission, "this token cannot finalize the event")
	}
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanFinalize(ev); err != nil {
		return nil, err
	}
	if err := s.events.SetFinalized(ctx, id, true); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "finalize")
	}
	return s.GetEvent(ctx, id)
}

func (s *EventService) Unfinalize(ctx context.Context, perms token.Permissions, id uuid.UUID) (*scoreboard.Event, error) {
	if !perms.CanFinalizeEvent {
		return nil, apperr.New(apperr.KindPermission, "this token cannot unfinalize the event")
	}
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanUnfinalize(ev); err != nil {
		return nil, err
	}
	if err := s.events.SetFinalized(ctx, id, false); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "unfinalize")
	}
	return s.GetEvent(ctx, id)
}

func (s *EventService) LockDay(ctx context.Context, perms token.Permissions, id uuid.UUID, day int) error {
	if !perms.CanEditEvent {
		return apperr.New(apperr.KindPermission, "this token cannot lock days")
	}
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if err := lifecycle.CanLockDay(ev, day); err != nil {
		return err
	}
	if err := s.events.LockDay(ctx, id, day); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "lock day")
	}
	s.log.Info("day locked", zap.String("event_id", id.String()), zap.Int("day", day))
	return nil
}

func (s *EventService) UnlockDay(ctx context.Context, perms token.Permissions, id uuid.UUID, day int) error {
	if !perms.CanEditEvent {
		return apperr.New(apperr.KindPermission, "this token cannot unlock days")
	}
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if err := lifecycle.CanUnlockDay(ev, day); err != nil {
		return err
	}
	if err := s.events.UnlockDay(ctx, id, day); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "unlock day")
	}
	return nil
}

// RegenerateToken mints a fresh token for one tier and overwrites the stored
// hash. The previous plaintext stops validating the moment this returns.
func (s *EventService) RegenerateToken(ctx context.Context, perms token.Permissions, id uuid.UUID, tier token.Tier) (string, error) {
	if !perms.CanEditEvent {
		return "", apperr.New(apperr.KindPermission, "this token cannot regenerate tokens")
	}
	if _, err := s.GetEvent(ctx, id); err != nil {
		return "", err
	}

	var column string
	size := 32
	switch tier {
	case token.TierAdmin:
		column = "admin_token_hash"
	case token.TierScorer:
		column = "scorer_token_hash"
	case token.TierViewer:
		column = "viewer_token_hash"
		size = 24
	default:
		return "", apperr.New(apperr.KindValidation, "unknown token tier %q", tier)
	}

	plain, err := token.Generate(size)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, err, "generate token")
	}
	if err := s.events.UpdateTokenHash(ctx, id, column, token.Hash(plain)); err != nil {
		return "", apperr.Wrap(apperr.KindStorage, err, "store token hash")
	}
	s.log.Info("token regenerated", zap.String("event_id", id.String()), zap.String("tier", string(tier)))
	return plain, nil
}

func (s *EventService) CreateTeam(ctx context.Context, perms token.Permissions, eventID uuid.UUID, name string, color *string) (*scoreboard.Team, error) {
	if !perms.CanManageTeams {
		return nil, apperr.New(apperr.KindPermission, "this token cannot manage teams")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.KindValidation, "team name is required")
	}
	ev, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status == scoreboard.EventArchived || ev.IsFinalized {
		return nil, apperr.New(apperr.KindLifecycle, "cannot add teams to a finalized or archived event")
	}

	team := &scoreboard.Team{
		ID:      uuid.New(),
		EventID: eventID,
		Name:    name,
		Color:   utils.StringOrNil(utils.OrZero(color)),
	}
	if err := s.teams.CreateTeam(ctx, team); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "create team")
	}
	return team, nil
}

func (s *EventService) UpdateTeam(ctx context.Context, perms token.Permissions, eventID, teamID uuid.UUID, name string, color *string) (*scoreboard.Team, error) {
	if !perms.CanManageTeams {
		return nil, apperr.New(apperr.KindPermission, "this token cannot manage teams")
	}
	team, err := s.getEventTeam(ctx, eventID, teamID)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		team.Name = name
	}
	if color != nil {
		team.Color = color
	}
	if err := s.teams.UpdateTeam(ctx, team); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "update team")
	}
	return team, nil
}

// DeleteTeam removes the team and, via cascade, all of its scores.
func (s *EventService) DeleteTeam(ctx context.Context, perms token.Permissions, eventID, teamID uuid.UUID) error {
	if !perms.CanManageTeams {
		return apperr.New(apperr.KindPermission, "this token cannot manage teams")
	}
	if _, err := s.getEventTeam(ctx, eventID, teamID); err != nil {
		return err
	}
	if err := s.teams.DeleteTeam(ctx, teamID); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "delete team")
	}
	return nil
}

func (s *EventService) ListTeams(ctx context.Context, eventID uuid.UUID) ([]scoreboard.Team, error) {
	teams, err := s.teams.ListTeams(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "list teams")
	}
	return teams, nil
}

func (s *EventService) getEventTeam(ctx context.Context, eventID, teamID uuid.UUID) (*scoreboard.Team, error) {
	team, err := s.teams.GetTeam(ctx, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "team not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "load team")
	}
	if team.EventID != eventID {
		return nil, apperr.New(apperr.KindNotFound, "team not found in this event")
	}
	return team, nil
}
