package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tallyboard/tallyboard/internal/apperr"
	"github.com/tallyboard/tallyboard/internal/httputil"
	"github.com/tallyboard/tallyboard/internal/metrics"
	"github.com/tallyboard/tallyboard/internal/middleware"
	"github.com/tallyboard/tallyboard/internal/scoreboard"
	"github.com/tallyboard/tallyboard/internal/service"
	"github.com/tallyboard/tallyboard/internal/store"
	"github.com/tallyboard/tallyboard/internal/token"
)

type routerDeps struct {
	events   *store.EventStore
	eventSvc *service.EventService
	scoreSvc *service.ScoreService
	recapSvc *service.RecapService
	log      *zap.Logger
}

func newRouter(d *routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Post("/api/events", func(w http.ResponseWriter, r *http.Request) {
		var in service.CreateEventInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httputil.BadRequest(w, d.log, "invalid request body")
			return
		}
		created, err := d.eventSvc.CreateEvent(r.Context(), in)
		if err != nil {
			httputil.Error(w, d.log, err)
			return
		}
		httputil.JSON(w, http.StatusCreated, created)
	})

	// Clients bootstrap from nothing but a token: resolve the event and the
	// tier the token grants in one round trip.
	r.Get("/api/event", func(w http.ResponseWriter, r *http.Request) {
		plain := middleware.ExtractToken(r)
		if plain == "" {
			httputil.Error(w, d.log, apperr.ErrAuth)
			return
		}
		ev, err := d.events.FindEventByTokenHash(r.Context(), token.Hash(plain))
		if err != nil {
			httputil.Error(w, d.log, apperr.Wrap(apperr.KindStorage, err, "event lookup failed"))
			return
		}
		if ev == nil {
			httputil.Error(w, d.log, apperr.ErrAuth)
			return
		}
		if ev.Status == scoreboard.EventArchived {
			httputil.Gone(w, d.log, "event has been archived")
			return
		}
		tier, _, _ := token.Validate(plain, token.Hashes{
			Admin:  ev.AdminTokenHash,
			Scorer: ev.ScorerTokenHash,
			Viewer: ev.ViewerTokenHash,
		})
		httputil.JSON(w, http.StatusOK, map[string]any{
			"event": ev,
			"tier":  tier,
		})
	})

	r.Route("/api/events/{id}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireTier(d.events, d.log, func(p token.Permissions) bool {
				return p.CanViewBoard
			}))

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				httputil.JSON(w, http.StatusOK, middleware.EventFromContext(r.Context()))
			})

			r.Get("/teams", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				teams, err := d.eventSvc.ListTeams(r.Context(), ev.ID)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, teams)
			})

			r.Get("/scores", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				scores, err := d.scoreSvc.ListScores(r.Context(), ev.ID)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, scores)
			})

			r.Get("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				board, err := d.scoreSvc.Leaderboard(r.Context(), ev.ID)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, board)
			})

			r.Get("/recap/verify", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				result, err := d.recapSvc.Verify(r.Context(), ev.ID)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, result)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireTier(d.events, d.log, func(p token.Permissions) bool {
				return p.CanSubmitScores
			}))

			r.Post("/scores", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				var in service.SubmitInput
				if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
					httputil.BadRequest(w, d.log, "invalid request body")
					return
				}
				in.EventID = ev.ID
				res, err := d.scoreSvc.SubmitScore(r.Context(), middleware.PermissionsFromContext(r.Context()), in)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				status := http.StatusOK
				if res.Action == service.ActionCreated {
					status = http.StatusCreated
				}
				httputil.JSON(w, status, res)
			})

			r.Post("/scores/bulk", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				var items []service.SubmitInput
				if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
					httputil.BadRequest(w, d.log, "invalid request body")
					return
				}
				for i := range items {
					items[i].EventID = ev.ID
				}
				results := d.scoreSvc.SubmitBulk(r.Context(), middleware.PermissionsFromContext(r.Context()), items)
				httputil.JSON(w, http.StatusOK, results)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireTier(d.events, d.log, func(p token.Permissions) bool {
				return p.CanEditEvent
			}))

			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				if err := d.eventSvc.DeleteEvent(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID); err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, map[string]string{"deleted": ev.ID.String()})
			})

			r.Post("/status", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				var body struct {
					Status scoreboard.EventStatus `json:"status"`
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					httputil.BadRequest(w, d.log, "invalid request body")
					return
				}
				updated, err := d.eventSvc.Transition(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID, body.Status)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, updated)
			})

			r.Post("/finalize", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				updated, err := d.eventSvc.Finalize(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, updated)
			})

			r.Post("/unfinalize", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				updated, err := d.eventSvc.Unfinalize(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, updated)
			})

			r.Post("/days/{day}/lock", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				day, err := strconv.Atoi(chi.URLParam(r, "day"))
				if err != nil {
					httputil.BadRequest(w, d.log, "day must be a number")
					return
				}
				if err := d.eventSvc.LockDay(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID, day); err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, map[string]int{"locked_day": day})
			})

			r.Post("/days/{day}/unlock", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				day, err := strconv.Atoi(chi.URLParam(r, "day"))
				if err != nil {
					httputil.BadRequest(w, d.log, "day must be a number")
					return
				}
				if err := d.eventSvc.UnlockDay(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID, day); err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, map[string]int{"unlocked_day": day})
			})

			r.Post("/tokens/{tier}/regenerate", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				tier, ok := token.ParseTier(chi.URLParam(r, "tier"))
				if !ok {
					httputil.BadRequest(w, d.log, "unknown token tier")
					return
				}
				plain, err := d.eventSvc.RegenerateToken(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID, tier)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, map[string]string{
					"tier":  string(tier),
					"token": plain,
				})
			})

			r.Post("/teams", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				var body struct {
					Name  string  `json:"name"`
					Color *string `json:"color"`
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					httputil.BadRequest(w, d.log, "invalid request body")
					return
				}
				team, err := d.eventSvc.CreateTeam(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID, body.Name, body.Color)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusCreated, team)
			})

			r.Patch("/teams/{teamID}", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				teamID, err := uuid.Parse(chi.URLParam(r, "teamID"))
				if err != nil {
					httputil.BadRequest(w, d.log, "invalid team id")
					return
				}
				var body struct {
					Name  string  `json:"name"`
					Color *string `json:"color"`
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					httputil.BadRequest(w, d.log, "invalid request body")
					return
				}
				team, err := d.eventSvc.UpdateTeam(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID, teamID, body.Name, body.Color)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, team)
			})

			r.Delete("/teams/{teamID}", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				teamID, err := uuid.Parse(chi.URLParam(r, "teamID"))
				if err != nil {
					httputil.BadRequest(w, d.log, "invalid team id")
					return
				}
				if err := d.eventSvc.DeleteTeam(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID, teamID); err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, map[string]string{"deleted": teamID.String()})
			})

			r.Delete("/scores/{scoreID}", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				scoreID, err := uuid.Parse(chi.URLParam(r, "scoreID"))
				if err != nil {
					httputil.BadRequest(w, d.log, "invalid score id")
					return
				}
				if err := d.scoreSvc.DeleteScore(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID, scoreID); err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusOK, map[string]string{"deleted": scoreID.String()})
			})

			r.Post("/recap", func(w http.ResponseWriter, r *http.Request) {
				ev := middleware.EventFromContext(r.Context())
				snap, err := d.recapSvc.Generate(r.Context(), middleware.PermissionsFromContext(r.Context()), ev.ID)
				if err != nil {
					httputil.Error(w, d.log, err)
					return
				}
				httputil.JSON(w, http.StatusCreated, snap)
			})
		})
	})

	return r
}
