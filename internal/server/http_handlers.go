package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/metridex/metridex/pkg/hoster"
	"github.com/metridex/metridex/pkg/metrics"
)

// registerHTTPHandlers sets up the routes for the REST API.
func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/", s.router)
}

// router is the main manual router. It inspects the URL and delegates to the
// correct handler.
func (s *Server) router(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// --- Debug endpoints (pprof) ---
	if strings.HasPrefix(path, "/debug/pprof") {
		// Delegate to the pprof handlers based on the suffix
		switch {
		case path == "/debug/pprof/":
			pprof.Index(w, r)
		case path == "/debug/pprof/cmdline":
			pprof.Cmdline(w, r)
		case path == "/debug/pprof/profile":
			pprof.Profile(w, r)
		case path == "/debug/pprof/symbol":
			pprof.Symbol(w, r)
		case path == "/debug/pprof/trace":
			pprof.Trace(w, r)
		default:
			s.writeHTTPError(w, http.StatusNotFound, "pprof endpoint not found")
		}
		return
	}

	// --- Admin endpoints ---
	if strings.HasPrefix(path, "/admin/") {
		if !s.authorizeAdmin(w, r) {
			return
		}
		switch {
		case strings.HasPrefix(path, "/admin/reload/"):
			s.handleReload(w, r, strings.TrimPrefix(path, "/admin/reload/"))
		case path == "/admin/tasks":
			s.handleListTasks(w, r)
		case strings.HasPrefix(path, "/admin/tasks/"):
			s.handleGetTask(w, r, strings.TrimPrefix(path, "/admin/tasks/"))
		case path == "/admin/stats":
			s.handleStats(w, r)
		default:
			s.writeHTTPError(w, http.StatusNotFound, "admin endpoint not found")
		}
		return
	}

	// --- Query listing ---
	if path == "/" {
		s.handleListQueries(w, r)
		return
	}

	// Query endpoints follow the pattern /{slug}/json and /{slug}/schema.
	if parts := strings.Split(strings.Trim(path, "/"), "/"); len(parts) == 2 {
		switch parts[1] {
		case "json":
			s.handleQueryJSON(w, r, parts[0])
			return
		case "schema":
			s.handleQuerySchema(w, r, parts[0])
			return
		}
	}

	// No pattern matched, return Not Found.
	s.writeHTTPError(w, http.StatusNotFound, "endpoint not found")
}

// handleListQueries returns the directory of all hosted queries.
func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "only GET is allowed on /")
		return
	}

	descriptions := s.Registry.List()
	entries := make([]queryEntry, 0, len(descriptions))
	for _, desc := range descriptions {
		entries = append(entries, queryEntry{
			Description: desc,
			Links: queryLinks{
				JSON:   "/" + desc.Slug + "/json",
				Schema: "/" + desc.Slug + "/schema",
			},
		})
	}
	s.writeHTTPResponse(w, http.StatusOK, entries)
}

// handleQueryJSON dispatches /{slug}/json by method.
func (s *Server) handleQueryJSON(w http.ResponseWriter, r *http.Request, slug string) {
	switch r.Method {
	case http.MethodGet:
		s.handleQueryJSONGet(w, r, slug)
	case http.MethodPost:
		s.handleQueryJSONPost(w, r, slug)
	default:
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "only GET and POST are allowed on /{slug}/json")
	}
}

// handleQueryJSONGet serves a single fetch with the parameters taken from the
// URL query string. Pagination arguments are a POST-only feature: a GET that
// carries offset or count is rejected so callers do not silently assume the
// window was applied.
func (s *Server) handleQueryJSONGet(w http.ResponseWriter, r *http.Request, slug string) {
	q, err := s.Registry.Lookup(slug)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}

	values := r.URL.Query()
	if values.Has("offset") || values.Has("count") {
		s.writeHTTPError(w, http.StatusBadRequest, "offset and count are not supported on GET; use POST")
		return
	}

	params := make(hoster.Params, len(values))
	for key := range values {
		params[key] = values.Get(key)
	}

	records, err := s.runFetch(slug, q, params, 0, 0)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, records)
}

// handleQueryJSONPost serves a batch fetch. The body is a JSON array of
// parameter objects; the same offset/count window is applied to each set and
// the records are concatenated in input order.
func (s *Server) handleQueryJSONPost(w http.ResponseWriter, r *http.Request, slug string) {
	q, err := s.Registry.Lookup(slug)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}

	offset, err := parseWindowArg(r, "offset", 0)
	if err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := parseWindowArg(r, "count", hoster.DefaultPageSize)
	if err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}

	var paramSets []hoster.Params
	if err := json.NewDecoder(r.Body).Decode(&paramSets); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "request body must be a JSON array of string-valued parameter objects")
		return
	}
	if len(paramSets) == 0 {
		s.writeHTTPError(w, http.StatusBadRequest, "request body must contain at least one parameter set")
		return
	}

	records := make([]hoster.Record, 0, hoster.DefaultPageSize)
	for i, params := range paramSets {
		recs, err := s.runFetch(slug, q, params, offset, count)
		if err != nil {
			s.writeQueryError(w, r, fmt.Errorf("parameter set %d: %w", i, err))
			return
		}
		records = append(records, recs...)
	}
	s.writeHTTPResponse(w, http.StatusOK, records)
}

// handleQuerySchema returns the JSON Schema describing the input parameters
// of a query, so clients can validate requests before sending them.
func (s *Server) handleQuerySchema(w http.ResponseWriter, r *http.Request, slug string) {
	if r.Method != http.MethodGet {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "only GET is allowed on /{slug}/schema")
		return
	}

	schema, err := s.Registry.InputSchema(slug)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, schema)
}

// --- Admin handlers ---

// handleReload rebuilds the index of a query in the background and returns
// the ID of the task tracking the rebuild.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request, slug string) {
	if r.Method != http.MethodPost {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "only POST is allowed on /admin/reload/{slug}")
		return
	}

	q, err := s.Registry.Lookup(slug)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	if _, ok := q.(hoster.Setuper); !ok {
		s.writeHTTPError(w, http.StatusBadRequest, fmt.Sprintf("query %q has no setup step and cannot be reloaded", slug))
		return
	}

	task := s.taskManager.NewTask()
	task.SetProgress("reloading " + slug)

	go func() {
		task.SetStatus(TaskStatusRunning)
		if err := s.Registry.Reload(context.Background(), slug); err != nil {
			task.SetError(err)
			return
		}
		task.SetStatus(TaskStatusCompleted)
		s.updateIndexGauges()
	}()

	s.writeHTTPResponse(w, http.StatusAccepted, taskAcceptedResponse{TaskID: task.ID})
}

// handleListTasks returns a snapshot of all known tasks.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "only GET is allowed on /admin/tasks")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, s.taskManager.Snapshot())
}

// handleGetTask returns the state of a single task.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "only GET is allowed on /admin/tasks/{id}")
		return
	}
	task, found := s.taskManager.GetTask(id)
	if !found {
		s.writeHTTPError(w, http.StatusNotFound, fmt.Sprintf("task %q not found", id))
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, task.View())
}

// handleStats returns the index statistics of every query that exposes them.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "only GET is allowed on /admin/stats")
		return
	}

	stats := make(map[string]map[string]any)
	for _, desc := range s.Registry.List() {
		q, err := s.Registry.Lookup(desc.Slug)
		if err != nil {
			continue
		}
		if provider, ok := q.(hoster.StatsProvider); ok {
			stats[desc.Slug] = provider.IndexStats()
		}
	}
	s.writeHTTPResponse(w, http.StatusOK, stats)
}

// handleHealthz reports liveness. It is mounted outside the middleware chain
// so load balancer probes do not pollute logs and metrics.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Fetch plumbing ---

// runFetch executes a single fetch and records the per-query metrics.
func (s *Server) runFetch(slug string, q hoster.Query, params hoster.Params, offset, limit int) ([]hoster.Record, error) {
	start := time.Now()
	records, err := q.Fetch(params, offset, limit)
	metrics.QueryFetchDuration.WithLabelValues(slug).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.QueryFetchesTotal.WithLabelValues(slug, status).Inc()
	return records, err
}

// parseWindowArg reads a non-negative integer query argument, falling back to
// def when the argument is absent.
func parseWindowArg(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return v, nil
}

// --- Helpers for HTTP responses ---

// writeQueryError maps the error contract of the hoster package onto HTTP
// status codes. Unexpected errors are logged and hidden behind a generic 500.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	var redirect *hoster.RedirectError
	switch {
	case errors.As(err, &redirect):
		http.Redirect(w, r, redirect.URL, http.StatusTemporaryRedirect)
	case errors.Is(err, hoster.ErrNotFound):
		s.writeHTTPError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, hoster.ErrInvalidArgument):
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, hoster.ErrPrecondition):
		s.writeHTTPError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("query fetch failed", "path", r.URL.Path, "error", err, "request_id", requestID(r))
		s.writeHTTPError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}
