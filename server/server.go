// Package server exposes the style engine over HTTP.
//
// Endpoints:
//
//	POST /v1/markup       replace the active document markup
//	POST /v1/stylesheets  append a stylesheet
//	POST /v1/computed     run a computed-style query
//	GET  /healthz         liveness, with daemon stats when active
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/styleq/engine"
	"github.com/hazyhaar/styleq/query"
)

const maxBodyBytes = 4 << 20

// Server routes HTTP requests to an engine.
type Server struct {
	eng    *engine.Engine
	logger *slog.Logger
	router chi.Router
}

// New builds the HTTP surface over eng.
func New(eng *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{eng: eng, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/markup", s.handleSetMarkup)
	r.Post("/v1/stylesheets", s.handleAddStylesheet)
	r.Post("/v1/computed", s.handleComputed)
	r.Get("/healthz", s.handleHealth)

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

type markupRequest struct {
	HTML string `json:"html"`
}

type stylesheetRequest struct {
	CSS string `json:"css"`
}

// computedRequest accepts either the engine's stored document state or a
// fully self-contained query (html + css inline).
type computedRequest struct {
	HTML          string   `json:"html,omitempty"`
	CSS           []string `json:"css,omitempty"`
	Selector      string   `json:"selector"`
	Property      string   `json:"property,omitempty"`
	PseudoElement string   `json:"pseudo_element,omitempty"`
	All           bool     `json:"all,omitempty"`
}

type computedResponse struct {
	QueryID       string            `json:"query_id"`
	ComputedValue string            `json:"computed_value,omitempty"`
	Styles        map[string]string `json:"styles,omitempty"`
	Simulated     bool              `json:"simulated,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) handleSetMarkup(w http.ResponseWriter, r *http.Request) {
	var req markupRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.eng.SetMarkup(req.HTML); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddStylesheet(w http.ResponseWriter, r *http.Request) {
	var req stylesheetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.CSS == "" {
		http.Error(w, "css required", http.StatusBadRequest)
		return
	}
	if err := s.eng.AddStylesheet(req.CSS); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComputed(w http.ResponseWriter, r *http.Request) {
	var req computedRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Selector == "" {
		http.Error(w, "selector required", http.StatusBadRequest)
		return
	}
	if req.Property == "" && !req.All {
		http.Error(w, "property required unless all is set", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var (
		res query.StyleResult
		err error
	)
	if req.HTML != "" {
		// Self-contained query: bypass the engine's stored document.
		res, err = s.eng.Query(ctx, query.StyleQuery{
			HTML:          req.HTML,
			CSS:           req.CSS,
			Selector:      req.Selector,
			Property:      req.Property,
			PseudoElement: req.PseudoElement,
		})
		if err == nil && !res.Success {
			err = &engine.ComputeError{QueryID: res.ID, Message: res.Error}
		}
	} else if req.All {
		var styles map[string]string
		styles, err = s.eng.GetAllComputedStyles(ctx, req.Selector)
		res = query.StyleResult{Success: err == nil, ComputedStyles: styles}
	} else {
		var value string
		value, err = s.eng.GetComputedStyle(ctx, req.Selector, req.Property)
		res = query.StyleResult{Success: err == nil, ComputedValue: value}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(computedResponse{
		QueryID:       res.ID,
		ComputedValue: res.ComputedValue,
		Styles:        res.ComputedStyles,
		Simulated:     res.Simulated,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.eng.DaemonStats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"mode":   s.eng.Mode(),
		"daemon": map[string]any{
			"state":          stats.State,
			"queries_served": stats.QueriesServed,
			"restarts":       stats.Restarts,
		},
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps engine failures onto HTTP statuses. Engine-side
// infrastructure failures are gateway errors; a structured compute failure
// is the client's problem.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		computeErr *engine.ComputeError
		spawnErr   *engine.SpawnError
		timeoutErr *engine.TimeoutError
		noResult   *engine.NoResultError
		decodeErr  *engine.DecodeError
	)
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.As(err, &computeErr):
		status, kind = http.StatusUnprocessableEntity, "compute"
	case errors.Is(err, engine.ErrEngineNotFound):
		status, kind = http.StatusBadGateway, "engine_not_found"
	case errors.As(err, &spawnErr):
		status, kind = http.StatusBadGateway, "spawn"
	case errors.As(err, &timeoutErr):
		status, kind = http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &noResult):
		status, kind = http.StatusBadGateway, "no_result"
	case errors.As(err, &decodeErr):
		status, kind = http.StatusBadGateway, "decode"
	}

	s.logger.Warn("server: request failed",
		"path", r.URL.Path, "status", status, "kind", kind, "error", err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), Kind: kind})
}
