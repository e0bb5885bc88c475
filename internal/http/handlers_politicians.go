package httpapp

import (
	"net/http"
)

func (s *Server) handleListPoliticians(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	pols, err := s.moderation.ListPoliticians(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"politicians": pols})
}

func (s *Server) handleGetPolitician(w http.ResponseWriter, r *http.Request, id string) {
	pol, err := s.moderation.GetPolitician(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pol)
}

func (s *Server) handleCreatePolitician(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.allowActorLimit(w, r, "write", s.cfg.RateLimits.WritePerMinute, ident) {
		return
	}
	var req createPoliticianRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	pol, err := s.moderation.CreatePolitician(r.Context(), ident.Actor(), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pol)
}

func (s *Server) handleUpdatePolitician(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.allowActorLimit(w, r, "write", s.cfg.RateLimits.WritePerMinute, ident) {
		return
	}
	var req updatePoliticianRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	pol, err := s.moderation.UpdatePolitician(r.Context(), ident.Actor(), id, req.patch())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pol)
}

func (s *Server) handleDeletePolitician(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.allowActorLimit(w, r, "write", s.cfg.RateLimits.WritePerMinute, ident) {
		return
	}
	pol, err := s.moderation.DeletePolitician(r.Context(), ident.Actor(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pol)
}

func (s *Server) handleApprovePoliticianDelete(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	pol, err := s.moderation.ApprovePoliticianDelete(r.Context(), ident.Actor(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pol)
}
