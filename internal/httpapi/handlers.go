package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/calvinalkan/nexus-studio/internal/history"
	"github.com/calvinalkan/nexus-studio/internal/project"
	"github.com/calvinalkan/nexus-studio/internal/studio"
	"github.com/calvinalkan/nexus-studio/internal/task"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, studio.ErrUnknownFilter),
		errors.Is(err, studio.ErrFilterRange),
		errors.Is(err, studio.ErrNameRequired),
		errors.Is(err, studio.ErrArgRequired),
		errors.Is(err, studio.ErrInvalidArg):
		return http.StatusBadRequest
	case errors.Is(err, project.ErrNotFound),
		errors.Is(err, task.ErrNotFound),
		errors.Is(err, studio.ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, history.ErrEmptyHistory),
		errors.Is(err, studio.ErrNoMedia):
		return http.StatusConflict
	case errors.Is(err, studio.ErrNotVideo):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, studio.ErrMediaTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if err != nil {
		return fmt.Errorf("%w: invalid JSON: %w", errBadRequest, err)
	}

	return nil
}

func projectID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid project id %q", errBadRequest, raw)
	}

	return id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok", "session": s.session.ID()}

	if err := s.session.Projects().Degraded(); err != nil {
		body["status"] = "degraded"
		body["storage_error"] = err.Error()
	}

	writeJSON(w, http.StatusOK, body)
}

// Projects.

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list := s.session.Projects().List()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, fmt.Errorf("%w: invalid limit %q", errBadRequest, raw))

			return
		}

		list = list[:min(n, len(list))]
	}

	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRecentProjects(w http.ResponseWriter, _ *http.Request) {
	type recent struct {
		project.Project
		DisplayName string `json:"displayName"`
	}

	items := s.session.RecentProjects()

	out := make([]recent, 0, len(items))
	for _, p := range items {
		out = append(out, recent{Project: p, DisplayName: p.DisplayName()})
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		SourceRef string `json:"sourceRef"`
	}

	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	if req.Name == "" {
		s.writeError(w, r, fmt.Errorf("%w: project", studio.ErrNameRequired))

		return
	}

	p := s.session.Projects().AddProject(r.Context(), req.Name, req.SourceRef)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}

	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.writeError(w, r, err)

			return
		}
	}

	p, err := s.session.SaveProject(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	p, err := s.session.Projects().FindByID(id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleOpenProject(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	p, err := s.session.OpenProject(id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Media and filters.

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := s.session.Media()
	if !ok {
		s.writeError(w, r, studio.ErrNoMedia)

		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleImportMedia(w http.ResponseWriter, r *http.Request) {
	var m studio.Media

	if err := decode(w, r, &m); err != nil {
		s.writeError(w, r, err)

		return
	}

	p, err := s.session.ImportMedia(r.Context(), m)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"media": m, "project": p})
}

func (s *Server) handleGetFilters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Filters())
}

func (s *Server) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	var req map[string]float64

	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	// Validate everything before applying anything.
	for name, value := range req {
		if _, ok := history.DefaultSnapshot()[name]; !ok {
			s.writeError(w, r, fmt.Errorf("%w: %q", studio.ErrUnknownFilter, name))

			return
		}

		if value < studio.FilterMin || value > studio.FilterMax {
			s.writeError(w, r, fmt.Errorf("%w: %s=%v", studio.ErrFilterRange, name, value))

			return
		}
	}

	for name, value := range req {
		if err := s.session.SetFilter(name, value); err != nil {
			s.writeError(w, r, err)

			return
		}
	}

	writeJSON(w, http.StatusOK, s.session.Filters())
}

// History.

type historyView struct {
	Cursor  int              `json:"cursor"`
	Limit   int              `json:"limit"`
	Entries []history.Record `json:"entries"`
}

func (s *Server) historyView() historyView {
	h := s.session.History()

	return historyView{Cursor: h.Cursor(), Limit: h.Limit(), Entries: h.Entries()}
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.historyView())
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}

	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	rec, err := s.session.Record(req.Name)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Undo()
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"filters": snap, "history": s.historyView()})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.session.Reset()
	writeJSON(w, http.StatusOK, s.historyView())
}

// Tools and tasks.

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, studio.Tools())
}

func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Arg string `json:"arg"`
	}

	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.writeError(w, r, err)

			return
		}
	}

	// The tool outlives the request; Server shutdown cancels it.
	t, err := s.session.RunTool(context.WithoutCancel(r.Context()), chi.URLParam(r, "name"), req.Arg)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	w.Header().Set("Location", "/api/tasks/"+t.ID())
	writeJSON(w, http.StatusAccepted, t.Snapshot())
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := s.session.Tasks().List()

	out := make([]task.Snapshot, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Snapshot())
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.session.Tasks().Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, t.Snapshot())
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.session.Tasks().Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	t.Cancel()

	// Wait so the response reflects the terminal state.
	_ = t.Wait(r.Context())

	writeJSON(w, http.StatusOK, t.Snapshot())
}

func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	if s.notes == nil {
		writeJSON(w, http.StatusOK, []studio.Notification{})

		return
	}

	writeJSON(w, http.StatusOK, s.notes.All())
}
