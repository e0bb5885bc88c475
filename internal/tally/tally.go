// Package tally records votes and keeps each statement's auto-flag current.
package tally

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

const DefaultFlagThreshold = 0.30

var ErrInvalidVote = errors.New("vote value must be 1 or -1")

// Tally is the single-pass aggregate of a statement's votes: Total is the
// number of votes and Net their sum. Because every vote is ±1 the up and down
// counts follow from these two numbers.
type Tally struct {
	Total int `json:"total"`
	Net   int `json:"net"`
}

func (t Tally) Up() int {
	up, _ := model.SplitVotes(t.Total, t.Net)
	return up
}

func (t Tally) Down() int {
	_, down := model.SplitVotes(t.Total, t.Net)
	return down
}

// DownRatio is 0 for a statement without votes.
func (t Tally) DownRatio() float64 {
	if t.Total <= 0 {
		return 0
	}
	return float64(t.Down()) / float64(t.Total)
}

func ShouldFlag(t Tally, threshold float64) bool {
	if t.Total <= 0 {
		return false
	}
	return t.DownRatio() >= threshold
}

type Result struct {
	Vote         model.Vote `json:"vote"`
	Tally        Tally      `json:"tally"`
	Flagged      bool       `json:"flagged"`
	NewlyFlagged bool       `json:"newlyFlagged"`
}

// FlagDerivedKeys are the statement fields a vote may change. The vote's own
// audit entry covers the change, so statement trails skip these keys when
// checking continuity.
var FlagDerivedKeys = []string{"flagged", "updatedAt"}

type Options struct {
	Threshold float64
	Retry     retry.Policy
	Logger    *slog.Logger
}

type Engine struct {
	store     store.Store
	recorder  *audit.Recorder
	retry     retry.Policy
	logger    *slog.Logger
	threshold float64
	now       func() time.Time
	newID     func() string
}

func NewEngine(st store.Store, recorder *audit.Recorder, opts Options) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultFlagThreshold
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Engine{
		store:     st,
		recorder:  recorder,
		retry:     opts.Retry,
		logger:    opts.Logger,
		threshold: opts.Threshold,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func (e *Engine) Threshold() float64 { return e.threshold }

// CastVote upserts the actor's vote on a statement, recomputes the tally and
// sets the statement's flag once the downvote ratio reaches the threshold.
// The vote, the flag and the audit entry commit together.
func (e *Engine) CastVote(ctx context.Context, actor policy.Actor, statementID string, value int) (res Result, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("cast_vote", start, err) }()

	if err := policy.Evaluate(policy.Request{Action: policy.ActionCastVote, Actor: actor}).Err(); err != nil {
		return Result{}, err
	}
	if value != 1 && value != -1 {
		return Result{}, ErrInvalidVote
	}

	p := e.retry
	p.OnRetry = func(err error, wait time.Duration) {
		metrics.ConflictRetry("cast_vote")
		e.logger.Warn("retrying vote after conflict", "statement_id", statementID, "wait", wait, "error", err)
	}
	err = p.Do(ctx, func() error {
		return e.store.InTx(ctx, func(tx store.Tx) error {
			var txErr error
			res, txErr = e.castInTx(ctx, tx, actor, statementID, value)
			return txErr
		})
	})
	if err != nil {
		return Result{}, err
	}

	metrics.VoteCast(value)
	metrics.AuditEntry(model.EntityVote)
	if res.NewlyFlagged {
		metrics.StatementFlagged()
		e.logger.Info("statement flagged", "statement_id", statementID,
			"total", res.Tally.Total, "downvotes", res.Tally.Down())
	}
	e.logger.Debug("vote cast", "statement_id", statementID, "user_id", actor.ID, "value", value)
	return res, nil
}

func (e *Engine) castInTx(ctx context.Context, tx store.Tx, actor policy.Actor, statementID string, value int) (Result, error) {
	st, err := tx.GetStatement(ctx, statementID)
	if err != nil {
		return Result{}, err
	}
	if st.IsDeleted {
		return Result{}, fmt.Errorf("statement %s: %w", statementID, store.ErrNotFound)
	}

	var prior *model.Vote
	existing, err := tx.GetVote(ctx, actor.ID, statementID)
	switch {
	case err == nil:
		prior = &existing
	case !errors.Is(err, store.ErrNotFound):
		return Result{}, err
	}

	now := e.now()
	v := model.Vote{
		ID:          e.newID(),
		UserID:      actor.ID,
		StatementID: statementID,
		Value:       value,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prior != nil {
		v.ID = prior.ID
		v.CreatedAt = prior.CreatedAt
	}
	committed, err := tx.UpsertVote(ctx, v)
	if err != nil {
		return Result{}, err
	}

	total, net, err := tx.VoteAggregate(ctx, statementID)
	if err != nil {
		return Result{}, err
	}
	t := Tally{Total: total, Net: net}

	newly := false
	if !st.Flagged && ShouldFlag(t, e.threshold) {
		st.Flagged = true
		st.UpdatedAt = now
		if err := tx.UpdateStatement(ctx, st); err != nil {
			return Result{}, err
		}
		newly = true
	}

	if _, err := e.recorder.Record(ctx, tx, audit.Change{
		EntityType: model.EntityVote,
		EntityID:   committed.ID,
		ActorID:    actor.ID,
		Before:     prior,
		After:      committed,
	}); err != nil {
		return Result{}, err
	}

	return Result{Vote: committed, Tally: t, Flagged: st.Flagged, NewlyFlagged: newly}, nil
}
