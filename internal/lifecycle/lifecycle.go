// Package lifecycle holds the event state machine and the guard predicates
// the score ledger consults before any write. All functions are pure.
package lifecycle

import (
	"github.com/tallyboard/tallyboard/internal/apperr"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
)

var transitions = map[scoreboard.EventStatus][]scoreboard.EventStatus{
	scoreboard.EventDraft:     {scoreboard.EventActive, scoreboard.EventArchived},
	scoreboard.EventActive:    {scoreboard.EventCompleted, scoreboard.EventArchived},
	scoreboard.EventCompleted: {scoreboard.EventArchived},
	scoreboard.EventArchived:  {},
}

// CanTransition validates a status change. Archived is terminal and
// completed is only reachable once the event is finalized.
func CanTransition(from, to scoreboard.EventStatus, finalized bool) error {
	if from == scoreboard.EventArchived {
		return apperr.New(apperr.KindLifecycle, "archived events cannot change status")
	}
	if from == to {
		return apperr.New(apperr.KindLifecycle, "event is already %s", to)
	}
	allowed := false
	for _, next := range transitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return apperr.New(apperr.KindLifecycle, "cannot transition from %s to %s", from, to)
	}
	if to == scoreboard.EventCompleted && !finalized {
		return apperr.New(apperr.KindLifecycle, "event must be finalized before completion")
	}
	return nil
}

// CanWrite is the guard the score ledger applies to every mutation.
func CanWrite(ev *scoreboard.Event, day int) error {
	if ev.Status == scoreboard.EventArchived {
		return apperr.New(apperr.KindLifecycle, "event is archived; no new scores can be submitted")
	}
	if ev.IsFinalized {
		return apperr.New(apperr.KindLifecycle, "event is finalized; no new scores can be submitted")
	}
	if ev.IsDayLocked(day) {
		return apperr.New(apperr.KindLifecycle, "day %d is locked; no new scores can be submitted", day)
	}
	return nil
}

func CanFinalize(ev *scoreboard.Event) error {
	if ev.Status == scoreboard.EventArchived {
		return apperr.New(apperr.KindLifecycle, "cannot finalize an archived event")
	}
	if ev.IsFinalized {
		return apperr.New(apperr.KindLifecycle, "event is already finalized")
	}
	return nil
}

// CanUnfinalize reopens editing unless the event reached its terminal state.
func CanUnfinalize(ev *scoreboard.Event) error {
	if ev.Status == scoreboard.EventArchived {
		return apperr.New(apperr.KindLifecycle, "cannot unfinalize an archived event")
	}
	if !ev.IsFinalized {
		return apperr.New(apperr.KindLifecycle, "event is not finalized")
	}
	return nil
}

func CanLockDay(ev *scoreboard.Event, day int) error {
	if err := lockableState(ev); err != nil {
		return err
	}
	if day < 1 || day > ev.NumDays {
		return apperr.New(apperr.KindValidation, "invalid day number; event has %d day(s)", ev.NumDays)
	}
	if ev.IsDayLocked(day) {
		return apperr.New(apperr.KindLifecycle, "day %d is already locked", day)
	}
	return nil
}

func CanUnlockDay(ev *scoreboard.Event, day int) error {
	if err := lockableState(ev); err != nil {
		return err
	}
	if !ev.IsDayLocked(day) {
		return apperr.New(apperr.KindLifecycle, "day %d is not locked", day)
	}
	return nil
}

func lockableState(ev *scoreboard.Event) error {
	if ev.IsFinalized {
		return apperr.New(apperr.KindLifecycle, "cannot change day locks on a finalized event")
	}
	if ev.Status == scoreboard.EventArchived {
		return apperr.New(apperr.KindLifecycle, "cannot change day locks on an archived event")
	}
	return nil
}
