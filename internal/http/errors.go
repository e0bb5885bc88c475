package httpapp

import (
	"errors"
	"net/http"
	"time"

	"github.com/truthtally/truthtally/internal/auth"
	"github.com/truthtally/truthtally/internal/moderation"
	"github.com/truthtally/truthtally/internal/policy"
	"github.com/truthtally/truthtally/internal/store"
	"github.com/truthtally/truthtally/internal/tally"
)

type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	body := errorBody{
		StatusCode: status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       r.URL.Path,
		Error:      err.Error(),
	}
	var denied *policy.DeniedError
	if errors.As(err, &denied) {
		body.Reason = string(denied.Reason)
	}
	writeJSON(w, status, body)
}

// fail maps a service error to its status. Anything unrecognised is logged
// and reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		err = errors.New("internal server error")
	}
	writeError(w, r, status, err)
}

func statusFor(err error) int {
	var denied *policy.DeniedError
	var invalid *requestError
	switch {
	case errors.As(err, &invalid),
		errors.Is(err, moderation.ErrEmptyPatch),
		errors.Is(err, moderation.ErrInvalidStatus),
		errors.Is(err, moderation.ErrInvalidTerm),
		errors.Is(err, moderation.ErrUnknownEntityType),
		errors.Is(err, tally.ErrInvalidVote):
		return http.StatusBadRequest
	case errors.As(err, &denied):
		if denied.Reason == policy.ReasonUnauthenticated {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, policy.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, policy.ErrInvalidState),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
