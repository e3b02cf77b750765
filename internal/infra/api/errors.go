package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"docbatch/internal/domain"
	"docbatch/internal/infra/logging"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var conflicts = []struct {
	err  error
	code string
}{
	{domain.ErrJobTerminal, "job_terminal"},
	{domain.ErrJobNotReady, "job_not_ready"},
	{domain.ErrMergeNotRequested, "merge_not_requested"},
	{domain.ErrNothingToMerge, "nothing_to_merge"},
	{domain.ErrInvalidTransition, "invalid_transition"},
	{domain.ErrStatusConflict, "status_conflict"},
	{domain.ErrAlreadyExists, "already_exists"},
}

// statusFor maps domain errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrUploadRejected):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	for _, c := range conflicts {
		if errors.Is(err, c.err) {
			return http.StatusConflict, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		l := logging.With(r.Context(), logger)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
