// Package httputil writes the JSON envelope every endpoint speaks:
// {"success": bool, "data": ..., "error": ..., "kind": ...}. The kind field
// carries the error taxonomy so clients (including the offline drainer) can
// classify failures without parsing messages.
package httputil

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tallyboard/tallyboard/internal/apperr"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// statusFor distinguishes the error classes collaborating clients key off:
// 401 no tier, 403 tier without capability, 404 missing, 422 bad payload,
// 423 locked/finalized/archived, 500 storage.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindPermission:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindLifecycle:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func Error(w http.ResponseWriter, log *zap.Logger, err error) {
	status := statusFor(err)
	kind := apperr.KindOf(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		msg = "internal server error"
	} else {
		log.Warn("request rejected", zap.String("kind", kind.String()), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: msg, Kind: kind.String()})
}

func BadRequest(w http.ResponseWriter, log *zap.Logger, msg string) {
	Error(w, log, apperr.New(apperr.KindValidation, "%s", msg))
}

// Gone reports a resource that existed but has been archived. Clients treat
// it as terminal, unlike 404 which may mean a mistyped link.
func Gone(w http.ResponseWriter, log *zap.Logger, msg string) {
	log.Warn("request rejected", zap.String("kind", apperr.KindLifecycle.String()), zap.String("error", msg))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusGone)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: msg, Kind: apperr.KindLifecycle.String()})
}
