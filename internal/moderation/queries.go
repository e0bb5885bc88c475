package moderation

import (
	"context"
	"fmt"
	"strings"

	"github.com/truthtally/truthtally/internal/audit"
	"github.com/truthtally/truthtally/internal/model"
	"github.com/truthtally/truthtally/internal/policy"
	"github.com/truthtally/truthtally/internal/store"
)

// GetPolitician returns a live politician. Deleted ones are not found.
func (s *Service) GetPolitician(ctx context.Context, id string) (model.Politician, error) {
	p, err := s.store.GetPolitician(ctx, id)
	if err != nil {
		return model.Politician{}, err
	}
	if p.IsDeleted {
		return model.Politician{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Service) ListPoliticians(ctx context.Context, limit, offset int) ([]model.Politician, error) {
	return s.store.ListPoliticians(ctx, store.PoliticianListOpts{Limit: limit, Offset: offset})
}

// GetStatement returns a live statement with its vote counts.
func (s *Service) GetStatement(ctx context.Context, id string) (model.StatementView, error) {
	v, err := s.store.GetStatementView(ctx, id)
	if err != nil {
		return model.StatementView{}, err
	}
	if v.IsDeleted {
		return model.StatementView{}, store.ErrNotFound
	}
	return v, nil
}

func (s *Service) ListStatements(ctx context.Context, politicianID string, limit, offset int) ([]model.StatementView, error) {
	return s.store.ListStatements(ctx, store.StatementListOpts{
		PoliticianID: politicianID,
		Limit:        limit,
		Offset:       offset,
	})
}

func (s *Service) ListFlagged(ctx context.Context, actor policy.Actor, limit int) ([]model.StatementView, error) {
	if err := authorize(policy.Request{Action: policy.ActionReviewQueue, Actor: actor}); err != nil {
		return nil, err
	}
	return s.store.ListFlaggedStatements(ctx, limit)
}

func (s *Service) ListPendingDeletes(ctx context.Context, actor policy.Actor, limit int) (PendingDeletes, error) {
	if err := authorize(policy.Request{Action: policy.ActionReviewQueue, Actor: actor}); err != nil {
		return PendingDeletes{}, err
	}
	pols, err := s.store.ListPendingPoliticians(ctx, limit)
	if err != nil {
		return PendingDeletes{}, err
	}
	stmts, err := s.store.ListPendingStatements(ctx, limit)
	if err != nil {
		return PendingDeletes{}, err
	}
	return PendingDeletes{Politicians: pols, Statements: stmts}, nil
}

// AuditTrail returns the edit history of one entity in commit order.
func (s *Service) AuditTrail(ctx context.Context, actor policy.Actor, entityType, id string) (audit.Trail, error) {
	if err := authorize(policy.Request{Action: policy.ActionReadAudit, Actor: actor}); err != nil {
		return audit.Trail{}, err
	}
	canonical, ok := entityTypeOf(entityType)
	if !ok {
		return audit.Trail{}, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
	logs, err := s.store.ListEditLogs(ctx, canonical, id)
	if err != nil {
		return audit.Trail{}, err
	}
	if len(logs) == 0 {
		return audit.Trail{}, store.ErrNotFound
	}
	return audit.NewTrail(logs), nil
}

// entityTypeOf resolves an entity type name case-insensitively, so "statement"
// and "Statement" name the same log.
func entityTypeOf(name string) (string, bool) {
	for _, t := range []string{model.EntityPolitician, model.EntityStatement, model.EntityVote} {
		if strings.EqualFold(name, t) {
			return t, true
		}
	}
	return "", false
}

func (s *Service) Stats(ctx context.Context) (model.SiteStats, error) {
	return s.store.GetSiteStats(ctx)
}
