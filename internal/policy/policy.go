// Package policy decides whether an actor may perform a mutating action.
// Evaluate is pure: it reads only the Request it is given.
package policy

import (
	"errors"
	"fmt"

	"github.com/truthtally/truthtally/internal/model"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
)

type Action string

const (
	ActionCreatePolitician Action = "create_politician"
	ActionCreateStatement  Action = "create_statement"
	ActionEditPolitician   Action = "edit_politician"
	ActionUpdateStatus     Action = "update_status"
	ActionDeletePolitician Action = "delete_politician"
	ActionDeleteStatement  Action = "delete_statement"
	ActionApproveDelete    Action = "approve_delete"
	ActionCastVote         Action = "cast_vote"
	ActionReadAudit        Action = "read_audit"
	ActionReviewQueue      Action = "review_queue"
)

// Effect qualifies a permitted delete.
type Effect int

const (
	EffectNone Effect = iota
	EffectImmediate
	EffectRequestOnly
)

func (e Effect) String() string {
	switch e {
	case EffectImmediate:
		return "immediate"
	case EffectRequestOnly:
		return "request_only"
	default:
		return "none"
	}
}

type Reason string

const (
	ReasonNone             Reason = ""
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonInsufficientRole Reason = "insufficient permissions"
	ReasonNoPendingDelete  Reason = "no pending delete to approve"
	ReasonUnknownAction    Reason = "unknown action"
)

type Actor struct {
	ID   string
	Role model.Role
}

func (a Actor) privileged() bool {
	return a.Role == model.RoleMod || a.Role == model.RoleAdmin
}

type Request struct {
	Action Action
	Actor  Actor
	// OwnerID is the submitter of the target, when it has one.
	OwnerID       string
	PendingDelete bool
}

type Decision struct {
	Allowed bool
	Effect  Effect
	Reason  Reason
	Action  Action
}

func permit(action Action, effect Effect) Decision {
	return Decision{Allowed: true, Effect: effect, Action: action}
}

func deny(action Action, reason Reason) Decision {
	return Decision{Action: action, Reason: reason}
}

// Err is nil for a permit and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Action: d.Action, Reason: d.Reason}
}

func Evaluate(req Request) Decision {
	a := req.Action
	if req.Actor.ID == "" {
		return deny(a, ReasonUnauthenticated)
	}

	switch a {
	case ActionCreatePolitician, ActionCreateStatement, ActionCastVote:
		return permit(a, EffectNone)

	case ActionEditPolitician, ActionUpdateStatus, ActionReadAudit, ActionReviewQueue:
		if req.Actor.privileged() {
			return permit(a, EffectNone)
		}
		return deny(a, ReasonInsufficientRole)

	case ActionDeleteStatement:
		// The submitter deletes immediately, even when also a mod.
		if req.OwnerID != "" && req.OwnerID == req.Actor.ID {
			return permit(a, EffectImmediate)
		}
		return evaluateDelete(req)

	case ActionDeletePolitician:
		return evaluateDelete(req)

	case ActionApproveDelete:
		if req.Actor.Role != model.RoleAdmin {
			return deny(a, ReasonInsufficientRole)
		}
		if !req.PendingDelete {
			return deny(a, ReasonNoPendingDelete)
		}
		return permit(a, EffectImmediate)
	}

	return deny(a, ReasonUnknownAction)
}

func evaluateDelete(req Request) Decision {
	switch req.Actor.Role {
	case model.RoleAdmin:
		return permit(req.Action, EffectImmediate)
	case model.RoleMod:
		return permit(req.Action, EffectRequestOnly)
	}
	return deny(req.Action, ReasonInsufficientRole)
}

type DeniedError struct {
	Action Action
	Reason Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Action, e.Reason)
}

// Is matches ErrForbidden for every denial. Approving a delete that is not
// pending is also a lifecycle violation and matches ErrInvalidState.
func (e *DeniedError) Is(target error) bool {
	switch target {
	case ErrForbidden:
		return true
	case ErrInvalidState:
		return e.Reason == ReasonNoPendingDelete
	}
	return false
}
