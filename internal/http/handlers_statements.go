package httpapp

import (
	"net/http"

	"github.com/truthtally/truthtally/internal/model"
)

type voteResponse struct {
	Vote         model.Vote `json:"vote"`
	Upvotes      int        `json:"upvotes"`
	Downvotes    int        `json:"downvotes"`
	Flagged      bool       `json:"flagged"`
	NewlyFlagged bool       `json:"newlyFlagged"`
}

func (s *Server) handleListStatements(w http.ResponseWriter, r *http.Request, politicianID string) {
	limit, offset := pageParams(r)
	stmts, err := s.moderation.ListStatements(r.Context(), politicianID, limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statements": stmts})
}

func (s *Server) handleGetStatement(w http.ResponseWriter, r *http.Request, id string) {
	stmt, err := s.moderation.GetStatement(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stmt)
}

func (s *Server) handleCreateStatement(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.allowActorLimit(w, r, "write", s.cfg.RateLimits.WritePerMinute, ident) {
		return
	}
	var req createStatementRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	stmt, err := s.moderation.CreateStatement(r.Context(), ident.Actor(), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stmt)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	stmt, err := s.moderation.UpdateStatementStatus(r.Context(), ident.Actor(), id, req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stmt)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.allowActorLimit(w, r, "vote", s.cfg.RateLimits.VotePerMinute, ident) {
		return
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.votes.CastVote(r.Context(), ident.Actor(), id, req.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{
		Vote:         res.Vote,
		Upvotes:      res.Tally.Up(),
		Downvotes:    res.Tally.Down(),
		Flagged:      res.Flagged,
		NewlyFlagged: res.NewlyFlagged,
	})
}

func (s *Server) handleDeleteStatement(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.allowActorLimit(w, r, "write", s.cfg.RateLimits.WritePerMinute, ident) {
		return
	}
	stmt, err := s.moderation.DeleteStatement(r.Context(), ident.Actor(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stmt)
}

func (s *Server) handleApproveStatementDelete(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	stmt, err := s.moderation.ApproveStatementDelete(r.Context(), ident.Actor(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stmt)
}
