package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/botloft/botloft/ports"
	"github.com/botloft/botloft/redisd"
	"github.com/botloft/botloft/supervisor"
)

// respond writes resp as JSON, or err with the given status. Every handler
// funnels through here so logging and encoding stay uniform.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, resp interface{}, err error, status int) {
	if err != nil {
		s.logger.Error("request failed",
			"remote", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		http.Error(w, err.Error(), status)
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("response encoding failed",
			"remote", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// fail is respond for error-only paths, picking the HTTP status from the
// error's place in the taxonomy.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.respond(w, r, nil, err, statusFor(err))
}

// statusFor maps domain errors to HTTP statuses: unknown resources are 404,
// state and uniqueness conflicts 409, bad requests 400, everything else 500.
func statusFor(err error) int {
	var portConflict *ports.PortConflictError
	var portUnavailable *ports.PortUnavailableError
	var nameConflict *ports.NameConflictError

	switch {
	case errors.Is(err, supervisor.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrAlreadyRunning),
		errors.Is(err, supervisor.ErrNotRunning),
		errors.Is(err, redisd.ErrAlreadyRunning),
		errors.Is(err, redisd.ErrNotRunning):
		return http.StatusConflict
	case errors.As(err, &portConflict),
		errors.As(err, &portUnavailable),
		errors.As(err, &nameConflict):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrPathMissing),
		errors.Is(err, supervisor.ErrStdinUnavailable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
