package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/tree"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: message(err)})
}

// message returns the innermost text of err, which is what users see.
func message(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func (s *Server) items(nodes []tree.Node) []tree.Item {
	items := make([]tree.Item, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, s.tree.TreeItem(n))
	}
	return items
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) rootItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.items(s.tree.Children(r.Context(), nil)))
}

func (s *Server) childItems(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "nodeID"))
	if err != nil {
		s.writeError(w, r, errNodeNotFound)
		return
	}
	node, ok := s.tree.Lookup(id)
	if !ok {
		s.writeError(w, r, errNodeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.items(s.tree.Children(r.Context(), node)))
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	s.tree.Refresh(tree.Options{Force: force})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshAllAssignments(w http.ResponseWriter, r *http.Request) {
	s.tree.RefreshAssignments(nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshAssignments(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.Atoi(chi.URLParam(r, "courseID"))
	if err != nil {
		s.writeError(w, r, errBadCourseID)
		return
	}
	s.tree.RefreshAssignments(&courseID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) assignmentDetail(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.Atoi(chi.URLParam(r, "courseID"))
	if err != nil {
		s.writeError(w, r, errBadCourseID)
		return
	}
	assignmentID, err := strconv.Atoi(chi.URLParam(r, "assignmentID"))
	if err != nil {
		s.writeError(w, r, errBadAssignmentID)
		return
	}

	detail, err := s.detail.FetchAssignmentDetail(r.Context(), courseID, assignmentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
