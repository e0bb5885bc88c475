// Package moderation owns the politician and statement lifecycle: creation,
// field edits, status adjudication and the soft-delete request/approve
// workflow. Every mutation commits together with exactly one audit entry.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/truthtally/truthtally/internal/audit"
	"github.com/truthtally/truthtally/internal/logging"
	"github.com/truthtally/truthtally/internal/metrics"
	"github.com/truthtally/truthtally/internal/model"
	"github.com/truthtally/truthtally/internal/policy"
	"github.com/truthtally/truthtally/internal/retry"
	"github.com/truthtally/truthtally/internal/store"
)

var (
	ErrEmptyPatch        = errors.New("patch has no fields")
	ErrInvalidStatus     = errors.New("invalid statement status")
	ErrInvalidTerm       = errors.New("term end precedes term start")
	ErrUnknownEntityType = errors.New("unknown entity type")
)

type PoliticianInput struct {
	Name      string
	Party     string
	Office    string
	Region    string
	TermStart time.Time
	TermEnd   time.Time
}

// PoliticianPatch changes only its non-nil fields.
type PoliticianPatch struct {
	Name      *string
	Party     *string
	Office    *string
	Region    *string
	TermStart *time.Time
	TermEnd   *time.Time
}

// Fields lists the supplied field names.
func (p PoliticianPatch) Fields() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Party != nil {
		fields = append(fields, "party")
	}
	if p.Office != nil {
		fields = append(fields, "office")
	}
	if p.Region != nil {
		fields = append(fields, "region")
	}
	if p.TermStart != nil {
		fields = append(fields, "termStart")
	}
	if p.TermEnd != nil {
		fields = append(fields, "termEnd")
	}
	return fields
}

func (p PoliticianPatch) apply(pol *model.Politician) {
	if p.Name != nil {
		pol.Name = *p.Name
	}
	if p.Party != nil {
		pol.Party = *p.Party
	}
	if p.Office != nil {
		pol.Office = *p.Office
	}
	if p.Region != nil {
		pol.Region = *p.Region
	}
	if p.TermStart != nil {
		pol.TermStart = p.TermStart.UTC()
	}
	if p.TermEnd != nil {
		pol.TermEnd = p.TermEnd.UTC()
	}
}

type StatementInput struct {
	PoliticianID string
	Text         string
	SourceURL    string
	DateMade     time.Time
}

type PendingDeletes struct {
	Politicians []model.Politician `json:"politicians"`
	Statements  []model.Statement  `json:"statements"`
}

type Options struct {
	Retry  retry.Policy
	Logger *slog.Logger
}

type Service struct {
	store    store.Store
	recorder *audit.Recorder
	retry    retry.Policy
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(st store.Store, recorder *audit.Recorder, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Service{
		store:    st,
		recorder: recorder,
		retry:    opts.Retry,
		logger:   opts.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// mutate runs fn in a transaction, retrying lost write conflicts.
func (s *Service) mutate(ctx context.Context, op, entityType string, fn func(tx store.Tx) error) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(op, start, err) }()

	p := s.retry
	p.OnRetry = func(err error, wait time.Duration) {
		metrics.ConflictRetry(op)
		s.logger.Warn("retrying after conflict", "op", op, "wait", wait, "error", err)
	}
	err = p.Do(ctx, func() error { return s.store.InTx(ctx, fn) })
	if err == nil {
		metrics.AuditEntry(entityType)
	}
	return err
}

func (s *Service) record(ctx context.Context, tx store.Tx, entityType, id, actorID string, before, after any) error {
	_, err := s.recorder.Record(ctx, tx, audit.Change{
		EntityType: entityType,
		EntityID:   id,
		ActorID:    actorID,
		Before:     before,
		After:      after,
	})
	return err
}

func authorize(req policy.Request) error {
	return policy.Evaluate(req).Err()
}

// livePolitician loads a politician that has not been deleted.
func livePolitician(ctx context.Context, tx store.Tx, id string) (model.Politician, error) {
	p, err := tx.GetPolitician(ctx, id)
	if err != nil {
		return model.Politician{}, err
	}
	if p.IsDeleted {
		return model.Politician{}, fmt.Errorf("politician %s: %w", id, store.ErrNotFound)
	}
	return p, nil
}

func liveStatement(ctx context.Context, tx store.Tx, id string) (model.Statement, error) {
	st, err := tx.GetStatement(ctx, id)
	if err != nil {
		return model.Statement{}, err
	}
	if st.IsDeleted {
		return model.Statement{}, fmt.Errorf("statement %s: %w", id, store.ErrNotFound)
	}
	return st, nil
}

func (s *Service) CreatePolitician(ctx context.Context, actor policy.Actor, in PoliticianInput) (model.Politician, error) {
	if err := authorize(policy.Request{Action: policy.ActionCreatePolitician, Actor: actor}); err != nil {
		return model.Politician{}, err
	}
	if in.TermEnd.Before(in.TermStart) {
		return model.Politician{}, ErrInvalidTerm
	}

	var out model.Politician
	err := s.mutate(ctx, "create_politician", model.EntityPolitician, func(tx store.Tx) error {
		now := s.now()
		p := model.Politician{
			ID:        s.newID(),
			Name:      in.Name,
			Party:     in.Party,
			Office:    in.Office,
			Region:    in.Region,
			TermStart: in.TermStart.UTC(),
			TermEnd:   in.TermEnd.UTC(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertPolitician(ctx, p); err != nil {
			return err
		}
		after, err := tx.GetPolitician(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, model.EntityPolitician, p.ID, actor.ID, nil, after); err != nil {
			return err
		}
		out = after
		return nil
	})
	if err != nil {
		return model.Politician{}, err
	}
	s.logger.Info("politician created", "politician_id", out.ID, "actor_id", actor.ID)
	return out, nil
}

func (s *Service) UpdatePolitician(ctx context.Context, actor policy.Actor, id string, patch PoliticianPatch) (model.Politician, error) {
	if err := authorize(policy.Request{Action: policy.ActionEditPolitician, Actor: actor}); err != nil {
		return model.Politician{}, err
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		return model.Politician{}, ErrEmptyPatch
	}

	var out model.Politician
	err := s.mutate(ctx, "update_politician", model.EntityPolitician, func(tx store.Tx) error {
		before, err := livePolitician(ctx, tx, id)
		if err != nil {
			return err
		}
		p := before
		patch.apply(&p)
		if p.TermEnd.Before(p.TermStart) {
			return ErrInvalidTerm
		}
		p.UpdatedAt = s.now()
		if err := tx.UpdatePolitician(ctx, p); err != nil {
			return err
		}
		after, err := tx.GetPolitician(ctx, id)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, model.EntityPolitician, id, actor.ID, before, after); err != nil {
			return err
		}
		out = after
		return nil
	})
	if err != nil {
		return model.Politician{}, err
	}
	s.logger.Info("politician updated", "politician_id", id, "actor_id", actor.ID, "fields", fields)
	return out, nil
}

// DeletePolitician deletes immediately for an admin and files a delete request
// for a mod.
func (s *Service) DeletePolitician(ctx context.Context, actor policy.Actor, id string) (model.Politician, error) {
	var out model.Politician
	var next State
	err := s.mutate(ctx, "delete_politician", model.EntityPolitician, func(tx store.Tx) error {
		before, err := tx.GetPolitician(ctx, id)
		if err != nil {
			return err
		}
		decision := policy.Evaluate(policy.Request{
			Action:        policy.ActionDeletePolitician,
			Actor:         actor,
			PendingDelete: before.PendingDelete,
		})
		if err := decision.Err(); err != nil {
			return err
		}
		p := before
		d := politicianDeletion(&p)
		next, err = nextDeleteState(d.state(), decision.Effect)
		if err != nil {
			return err
		}
		now := s.now()
		d.enter(next, actor.ID, now)
		p.UpdatedAt = now
		if err := tx.UpdatePolitician(ctx, p); err != nil {
			return err
		}
		after, err := tx.GetPolitician(ctx, id)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, model.EntityPolitician, id, actor.ID, before, after); err != nil {
			return err
		}
		out = after
		return nil
	})
	if err != nil {
		return model.Politician{}, err
	}
	s.logger.Info("politician delete", "politician_id", id, "actor_id", actor.ID, "state", next)
	return out, nil
}

func (s *Service) ApprovePoliticianDelete(ctx context.Context, actor policy.Actor, id string) (model.Politician, error) {
	var out model.Politician
	err := s.mutate(ctx, "approve_politician_delete", model.EntityPolitician, func(tx store.Tx) error {
		before, err := tx.GetPolitician(ctx, id)
		if err != nil {
			return err
		}
		p := before
		d := politicianDeletion(&p)
		if err := authorize(policy.Request{
			Action:        policy.ActionApproveDelete,
			Actor:         actor,
			PendingDelete: d.state() == StatePendingDeletion,
		}); err != nil {
			return err
		}
		now := s.now()
		d.enter(StateDeleted, actor.ID, now)
		p.UpdatedAt = now
		if err := tx.UpdatePolitician(ctx, p); err != nil {
			return err
		}
		after, err := tx.GetPolitician(ctx, id)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, model.EntityPolitician, id, actor.ID, before, after); err != nil {
			return err
		}
		out = after
		return nil
	})
	if err != nil {
		return model.Politician{}, err
	}
	s.logger.Info("politician delete approved", "politician_id", id, "actor_id", actor.ID)
	return out, nil
}

func (s *Service) CreateStatement(ctx context.Context, actor policy.Actor, in StatementInput) (model.Statement, error) {
	if err := authorize(policy.Request{Action: policy.ActionCreateStatement, Actor: actor}); err != nil {
		return model.Statement{}, err
	}

	var out model.Statement
	err := s.mutate(ctx, "create_statement", model.EntityStatement, func(tx store.Tx) error {
		if _, err := livePolitician(ctx, tx, in.PoliticianID); err != nil {
			return err
		}
		now := s.now()
		st := model.Statement{
			ID:            s.newID(),
			PoliticianID:  in.PoliticianID,
			Text:          in.Text,
			SourceURL:     in.SourceURL,
			DateMade:      in.DateMade.UTC(),
			SubmittedByID: actor.ID,
			Status:        model.StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertStatement(ctx, st); err != nil {
			return err
		}
		after, err := tx.GetStatement(ctx, st.ID)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, model.EntityStatement, st.ID, actor.ID, nil, after); err != nil {
			return err
		}
		out = after
		return nil
	})
	if err != nil {
		return model.Statement{}, err
	}
	s.logger.Info("statement created", "statement_id", out.ID, "politician_id", out.PoliticianID, "actor_id", actor.ID)
	return out, nil
}

func (s *Service) UpdateStatementStatus(ctx context.Context, actor policy.Actor, id string, status model.StatementStatus) (model.Statement, error) {
	if err := authorize(policy.Request{Action: policy.ActionUpdateStatus, Actor: actor}); err != nil {
		return model.Statement{}, err
	}
	if !status.Valid() {
		return model.Statement{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var out model.Statement
	err := s.mutate(ctx, "update_statement_status", model.EntityStatement, func(tx store.Tx) error {
		before, err := liveStatement(ctx, tx, id)
		if err != nil {
			return err
		}
		st := before
		st.Status = status
		st.UpdatedAt = s.now()
		if err := tx.UpdateStatement(ctx, st); err != nil {
			return err
		}
		after, err := tx.GetStatement(ctx, id)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, model.EntityStatement, id, actor.ID, before, after); err != nil {
			return err
		}
		out = after
		return nil
	})
	if err != nil {
		return model.Statement{}, err
	}
	s.logger.Info("statement status updated", "statement_id", id, "actor_id", actor.ID, "status", status)
	return out, nil
}

// DeleteStatement deletes immediately for the submitter or an admin and files
// a delete request for a mod.
func (s *Service) DeleteStatement(ctx context.Context, actor policy.Actor, id string) (model.Statement, error) {
	var out model.Statement
	var next State
	err := s.mutate(ctx, "delete_statement", model.EntityStatement, func(tx store.Tx) error {
		before, err := tx.GetStatement(ctx, id)
		if err != nil {
			return err
		}
		decision := policy.Evaluate(policy.Request{
			Action:        policy.ActionDeleteStatement,
			Actor:         actor,
			OwnerID:       before.SubmittedByID,
			PendingDelete: before.PendingDelete,
		})
		if err := decision.Err(); err != nil {
			return err
		}
		st := before
		d := statementDeletion(&st)
		next, err = nextDeleteState(d.state(), decision.Effect)
		if err != nil {
			return err
		}
		now := s.now()
		d.enter(next, actor.ID, now)
		st.UpdatedAt = now
		if err := tx.UpdateStatement(ctx, st); err != nil {
			return err
		}
		after, err := tx.GetStatement(ctx, id)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, model.EntityStatement, id, actor.ID, before, after); err != nil {
			return err
		}
		out = after
		return nil
	})
	if err != nil {
		return model.Statement{}, err
	}
	s.logger.Info("statement delete", "statement_id", id, "actor_id", actor.ID, "state", next)
	return out, nil
}

func (s *Service) ApproveStatementDelete(ctx context.Context, actor policy.Actor, id string) (model.Statement, error) {
	var out model.Statement
	err := s.mutate(ctx, "approve_statement_delete", model.EntityStatement, func(tx store.Tx) error {
		before, err := tx.GetStatement(ctx, id)
		if err != nil {
			return err
		}
		st := before
		d := statementDeletion(&st)
		if err := authorize(policy.Request{
			Action:        policy.ActionApproveDelete,
			Actor:         actor,
			PendingDelete: d.state() == StatePendingDeletion,
		}); err != nil {
			return err
		}
		now := s.now()
		d.enter(StateDeleted, actor.ID, now)
		st.UpdatedAt = now
		if err := tx.UpdateStatement(ctx, st); err != nil {
			return err
		}
		after, err := tx.GetStatement(ctx, id)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, model.EntityStatement, id, actor.ID, before, after); err != nil {
			return err
		}
		out = after
		return nil
	})
	if err != nil {
		return model.Statement{}, err
	}
	s.logger.Info("statement delete approved", "statement_id", id, "actor_id", actor.ID)
	return out, nil
}
