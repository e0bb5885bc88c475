package moderation

import (
	"fmt"
	"time"

	"github.com/truthtally/truthtally/internal/model"
	"github.com/truthtally/truthtally/internal/policy"
)

// State is the soft-delete position of a politician or statement.
type State int

const (
	StateActive State = iota
	StatePendingDeletion
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePendingDeletion:
		return "pending_deletion"
	case StateDeleted:
		return "deleted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func stateOf(isDeleted, pendingDelete bool) State {
	switch {
	case isDeleted:
		return StateDeleted
	case pendingDelete:
		return StatePendingDeletion
	default:
		return StateActive
	}
}

// nextDeleteState is the delete request transition. Deleted is terminal, and a
// request-only delete cannot be filed twice.
func nextDeleteState(s State, effect policy.Effect) (State, error) {
	if s == StateDeleted {
		return s, fmt.Errorf("already deleted: %w", policy.ErrInvalidState)
	}
	switch effect {
	case policy.EffectImmediate:
		return StateDeleted, nil
	case policy.EffectRequestOnly:
		if s == StatePendingDeletion {
			return s, fmt.Errorf("delete already requested: %w", policy.ErrInvalidState)
		}
		return StatePendingDeletion, nil
	}
	return s, fmt.Errorf("delete effect %s: %w", effect, policy.ErrInvalidState)
}

// deletion points at the soft-delete fields shared by politicians and
// statements.
type deletion struct {
	isDeleted     *bool
	pendingDelete *bool
	deletedBy     **string
	deletedAt     **time.Time
}

func politicianDeletion(p *model.Politician) deletion {
	return deletion{&p.IsDeleted, &p.PendingDelete, &p.DeletedBy, &p.DeletedAt}
}

func statementDeletion(s *model.Statement) deletion {
	return deletion{&s.IsDeleted, &s.PendingDelete, &s.DeletedBy, &s.DeletedAt}
}

func (d deletion) state() State {
	return stateOf(*d.isDeleted, *d.pendingDelete)
}

// enter moves the entity to s. Entering Deleted records who and when, and
// always clears the pending flag.
func (d deletion) enter(s State, actorID string, now time.Time) {
	switch s {
	case StatePendingDeletion:
		*d.isDeleted = false
		*d.pendingDelete = true
	case StateDeleted:
		by := actorID
		at := now
		*d.isDeleted = true
		*d.pendingDelete = false
		*d.deletedBy = &by
		*d.deletedAt = &at
	}
}
