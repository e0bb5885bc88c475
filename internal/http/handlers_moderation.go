package httpapp

import (
	"net/http"
)

func (s *Server) handleFlagged(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	limit, _ := pageParams(r)
	stmts, err := s.moderation.ListFlagged(r.Context(), ident.Actor(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statements": stmts})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	limit, _ := pageParams(r)
	pending, err := s.moderation.ListPendingDeletes(r.Context(), ident.Actor(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"politicians": pending.Politicians,
		"statements":  pending.Statements,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, entityType, id string) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	trail, err := s.moderation.AuditTrail(r.Context(), ident.Actor(), entityType, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": trail.Entries()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.moderation.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
