// Package apperr defines the error taxonomy shared by the ledger, the HTTP
// layer, and the offline queue. Callers branch with errors.Is against the
// kind sentinels; the offline drainer decides retry-vs-surface from the kind.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindAuth: no tier resolved from the presented token.
	KindAuth Kind = iota
	// KindPermission: tier resolved but lacks the needed capability.
	KindPermission
	// KindLifecycle: event archived, finalized, or day locked.
	KindLifecycle
	// KindValidation: malformed payload or disallowed value.
	KindValidation
	// KindDuplicate: submission id already applied. Not a failure; the
	// mutation has landed and the caller should treat it as success.
	KindDuplicate
	// KindNotFound: event, team, or score does not exist.
	KindNotFound
	// KindStorage: the persistence call itself failed. The only kind the
	// offline queue retries automatically.
	KindStorage
)

var kindNames = map[Kind]string{
	KindAuth:       "auth",
	KindPermission: "permission",
	KindLifecycle:  "lifecycle",
	KindValidation: "validation",
	KindDuplicate:  "duplicate",
	KindNotFound:   "not_found",
	KindStorage:    "storage",
}

func (k Kind) String() string { return kindNames[k] }

var (
	ErrAuth       = &Error{kind: KindAuth, msg: "invalid or missing token"}
	ErrPermission = &Error{kind: KindPermission, msg: "insufficient permissions"}
	ErrLifecycle  = &Error{kind: KindLifecycle, msg: "event does not accept writes"}
	ErrValidation = &Error{kind: KindValidation, msg: "invalid input"}
	ErrDuplicate  = &Error{kind: KindDuplicate, msg: "submission already applied"}
	ErrNotFound   = &Error{kind: KindNotFound, msg: "not found"}
	ErrStorage    = &Error{kind: KindStorage, msg: "storage failure"}
)

type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.err }

// Is matches any error of the same kind, so
// errors.Is(err, apperr.ErrLifecycle) works for every lifecycle error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.kind == e.kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf("%s: %v", msg, err), err: err}
}

// KindOf reports the kind of err, or KindStorage for unclassified errors so
// unknown failures stay retryable rather than silently dropped.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.kind
	}
	return KindStorage
}

// Terminal reports whether retrying err without outside intervention is
// pointless (a locked day stays locked until someone unlocks it).
func Terminal(err error) bool {
	switch KindOf(err) {
	case KindAuth, KindPermission, KindLifecycle, KindValidation, KindNotFound:
		return true
	}
	return false
}
