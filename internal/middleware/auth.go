// Package middleware resolves capability tokens into permission tiers. There
// are no users or sessions; the presented token alone decides what the
// request may do.
package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tallyboard/tallyboard/internal/apperr"
	"github.com/tallyboard/tallyboard/internal/httputil"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
	"github.com/tallyboard/tallyboard/internal/store"
	"github.com/tallyboard/tallyboard/internal/token"
)

type contextKey string

const (
	tierKey  contextKey = "tokenTier"
	permsKey contextKey = "tokenPerms"
	eventKey contextKey = "event"
)

// ExtractToken pulls the bearer secret from Authorization or X-Event-Token.
func ExtractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Event-Token")
}

// RequireTier authenticates the {id} route param's event against the
// presented token and rejects requests whose tier fails the check function.
// A missing event is a 404; a bad token on an existing event is a 401; a
// resolved tier without the capability is a 403.
func RequireTier(events *store.EventStore, log *zap.Logger, check func(token.Permissions) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			eventID, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				httputil.Error(w, log, apperr.New(apperr.KindValidation, "invalid event id"))
				return
			}

			ev, err := events.GetEvent(r.Context(), eventID)
			if errors.Is(err, sql.ErrNoRows) {
				httputil.Error(w, log, apperr.New(apperr.KindNotFound, "event not found"))
				return
			}
			if err != nil {
				httputil.Error(w, log, apperr.Wrap(apperr.KindStorage, err, "load event"))
				return
			}

			plain := ExtractToken(r)
			if plain == "" {
				httputil.Error(w, log, apperr.New(apperr.KindAuth, "token required"))
				return
			}
			tier, perms, ok := token.Validate(plain, token.Hashes{
				Admin:  ev.AdminTokenHash,
				Scorer: ev.ScorerTokenHash,
				Viewer: ev.ViewerTokenHash,
			})
			if !ok {
				httputil.Error(w, log, apperr.New(apperr.KindAuth, "invalid token"))
				return
			}
			if !check(perms) {
				httputil.Error(w, log, apperr.New(apperr.KindPermission, "%s token lacks permission for this operation", tier))
				return
			}

			ctx := context.WithValue(r.Context(), tierKey, tier)
			ctx = context.WithValue(ctx, permsKey, perms)
			ctx = context.WithValue(ctx, eventKey, ev)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func TierFromContext(ctx context.Context) (token.Tier, bool) {
	tier, ok := ctx.Value(tierKey).(token.Tier)
	return tier, ok
}

func PermissionsFromContext(ctx context.Context) token.Permissions {
	perms, _ := ctx.Value(permsKey).(token.Permissions)
	return perms
}

func EventFromContext(ctx context.Context) *scoreboard.Event {
	ev, _ := ctx.Value(eventKey).(*scoreboard.Event)
	return ev
}
