package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/truthtally/truthtally/internal/policy"
	"github.com/truthtally/truthtally/internal/store"
)

func TestResult(t *testing.T) {
	noPending := &policy.DeniedError{Action: policy.ActionApproveDelete, Reason: policy.ReasonNoPendingDelete}

	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "not_found", Result(fmt.Errorf("statement s1: %w", store.ErrNotFound)))
	assert.Equal(t, "forbidden", Result(noPending), "denials count as forbidden even when they are also invalid state")
	assert.Equal(t, "invalid_state", Result(fmt.Errorf("already deleted: %w", policy.ErrInvalidState)))
	assert.Equal(t, "conflict", Result(store.ErrConflict))
	assert.Equal(t, "error", Result(errors.New("boom")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(votesCast.WithLabelValues("down"))
	VoteCast(-1)
	assert.Equal(t, before+1, testutil.ToFloat64(votesCast.WithLabelValues("down")))

	before = testutil.ToFloat64(operationsTotal.WithLabelValues("cast_vote", "conflict"))
	ObserveOperation("cast_vote", time.Now(), store.ErrConflict)
	assert.Equal(t, before+1, testutil.ToFloat64(operationsTotal.WithLabelValues("cast_vote", "conflict")))

	before = testutil.ToFloat64(conflictRetries.WithLabelValues("delete_statement"))
	ConflictRetry("delete_statement")
	assert.Equal(t, before+1, testutil.ToFloat64(conflictRetries.WithLabelValues("delete_statement")))

	before = testutil.ToFloat64(statementsFlagged)
	StatementFlagged()
	assert.Equal(t, before+1, testutil.ToFloat64(statementsFlagged))
}
