package tally

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthtally/truthtally/internal/audit"
	"github.com/truthtally/truthtally/internal/model"
	"github.com/truthtally/truthtally/internal/policy"
	"github.com/truthtally/truthtally/internal/retry"
	"github.com/truthtally/truthtally/internal/store"
	"github.com/truthtally/truthtally/internal/store/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:tally_%s?mode=memory&cache=shared", uuid.NewString())
	st, err := sqlite.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newUser(t *testing.T, st *sqlite.Store, role model.Role) policy.Actor {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, st.CreateUser(context.Background(), model.User{
		ID: id, Email: id + "@example.com", PasswordHash: "x", Role: role, CreatedAt: time.Now(),
	}))
	return policy.Actor{ID: id, Role: role}
}

func newStatement(t *testing.T, st *sqlite.Store, submitter policy.Actor) model.Statement {
	t.Helper()
	now := time.Now().UTC()
	pol := model.Politician{
		ID: uuid.NewString(), Name: "Jane Roe", Party: "Independent", Office: "Senator", Region: "North",
		TermStart: now.AddDate(-2, 0, 0), TermEnd: now.AddDate(4, 0, 0), CreatedAt: now, UpdatedAt: now,
	}
	stmt := model.Statement{
		ID: uuid.NewString(), PoliticianID: pol.ID, Text: "Taxes will fall", SourceURL: "https://example.com/a",
		DateMade: now.AddDate(0, -1, 0), SubmittedByID: submitter.ID, Status: model.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		if err := tx.InsertPolitician(context.Background(), pol); err != nil {
			return err
		}
		return tx.InsertStatement(context.Background(), stmt)
	}))
	return stmt
}

func newEngine(st store.Store) *Engine {
	return NewEngine(st, audit.NewRecorder(), Options{Retry: retry.Default()})
}

func TestTallyArithmetic(t *testing.T) {
	tl := Tally{Total: 5, Net: -1}
	assert.Equal(t, 2, tl.Up())
	assert.Equal(t, 3, tl.Down())
	assert.InDelta(t, 0.6, tl.DownRatio(), 1e-9)
	assert.True(t, ShouldFlag(tl, DefaultFlagThreshold))

	assert.False(t, ShouldFlag(Tally{}, DefaultFlagThreshold))
	assert.Zero(t, Tally{}.DownRatio())

	// 3 of 10 is exactly the threshold.
	assert.True(t, ShouldFlag(Tally{Total: 10, Net: 4}, 0.30))
	assert.False(t, ShouldFlag(Tally{Total: 10, Net: 6}, 0.30))
}

func TestFiveVotesFlagStatement(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eng := newEngine(st)
	author := newUser(t, st, model.RoleUser)
	stmt := newStatement(t, st, author)

	var last Result
	for _, v := range []int{-1, -1, -1, 1, 1} {
		voter := newUser(t, st, model.RoleUser)
		res, err := eng.CastVote(ctx, voter, stmt.ID, v)
		require.NoError(t, err)
		last = res
	}

	assert.Equal(t, Tally{Total: 5, Net: -1}, last.Tally)
	assert.Equal(t, 3, last.Tally.Down())
	assert.True(t, last.Flagged)

	view, err := st.GetStatementView(ctx, stmt.ID)
	require.NoError(t, err)
	assert.True(t, view.Flagged)
	assert.Equal(t, 2, view.Upvotes)
	assert.Equal(t, 3, view.Downvotes)
}

func TestFlagIsMonotonic(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eng := newEngine(st)
	author := newUser(t, st, model.RoleUser)
	stmt := newStatement(t, st, author)

	res, err := eng.CastVote(ctx, newUser(t, st, model.RoleUser), stmt.ID, -1)
	require.NoError(t, err)
	assert.True(t, res.Flagged)
	assert.True(t, res.NewlyFlagged)

	for i := 0; i < 9; i++ {
		res, err = eng.CastVote(ctx, newUser(t, st, model.RoleUser), stmt.ID, 1)
		require.NoError(t, err)
		assert.False(t, res.NewlyFlagged)
	}
	assert.InDelta(t, 0.1, res.Tally.DownRatio(), 1e-9)
	assert.True(t, res.Flagged)

	got, err := st.GetStatement(ctx, stmt.ID)
	require.NoError(t, err)
	assert.True(t, got.Flagged)
}

func TestRevoteIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eng := newEngine(st)
	voter := newUser(t, st, model.RoleUser)
	stmt := newStatement(t, st, voter)

	first, err := eng.CastVote(ctx, voter, stmt.ID, 1)
	require.NoError(t, err)
	second, err := eng.CastVote(ctx, voter, stmt.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, first.Vote, second.Vote)
	assert.Equal(t, Tally{Total: 1, Net: 1}, second.Tally)

	// Switching overwrites the same row.
	third, err := eng.CastVote(ctx, voter, stmt.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, first.Vote.ID, third.Vote.ID)
	assert.Equal(t, -1, third.Vote.Value)
	assert.Equal(t, Tally{Total: 1, Net: -1}, third.Tally)

	logs, err := st.ListEditLogs(ctx, model.EntityVote, first.Vote.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	trail := audit.NewTrail(logs)
	assert.NoError(t, trail.Verify())

	var replayed model.Vote
	require.NoError(t, trail.Replay(&replayed))
	assert.Equal(t, third.Vote, replayed)
}

func TestCastVoteRejections(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eng := newEngine(st)
	voter := newUser(t, st, model.RoleUser)
	stmt := newStatement(t, st, voter)

	_, err := eng.CastVote(ctx, voter, stmt.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidVote)
	_, err = eng.CastVote(ctx, voter, stmt.ID, 2)
	assert.ErrorIs(t, err, ErrInvalidVote)

	_, err = eng.CastVote(ctx, policy.Actor{}, stmt.ID, 1)
	assert.ErrorIs(t, err, policy.ErrForbidden)

	_, err = eng.CastVote(ctx, voter, uuid.NewString(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deleted statements take no votes.
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		s, err := tx.GetStatement(ctx, stmt.ID)
		if err != nil {
			return err
		}
		s.IsDeleted = true
		return tx.UpdateStatement(ctx, s)
	}))
	_, err = eng.CastVote(ctx, voter, stmt.ID, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	stats, err := st.GetSiteStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Votes)
}

func TestConcurrentVotesSerialize(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eng := newEngine(st)
	author := newUser(t, st, model.RoleUser)
	stmt := newStatement(t, st, author)

	const voters = 20
	actors := make([]policy.Actor, voters)
	for i := range actors {
		actors[i] = newUser(t, st, model.RoleUser)
	}

	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i, a := range actors {
		value := 1
		if i%4 == 0 {
			value = -1
		}
		wg.Add(1)
		go func(a policy.Actor, value int) {
			defer wg.Done()
			if _, err := eng.CastVote(ctx, a, stmt.ID, value); err != nil {
				errs <- err
			}
		}(a, value)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("cast vote: %v", err)
	}

	view, err := st.GetStatementView(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, view.Upvotes)
	assert.Equal(t, 5, view.Downvotes)

	stats, err := st.GetSiteStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(voters), stats.Votes)
}

func TestFlagMovesStatementToTopOfQueue(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eng := newEngine(st)
	author := newUser(t, st, model.RoleUser)
	older := newStatement(t, st, author)
	newer := newStatement(t, st, author)

	clock := time.Now().UTC().Add(time.Hour)
	eng.now = func() time.Time { return clock }
	_, err := eng.CastVote(ctx, newUser(t, st, model.RoleUser), newer.ID, -1)
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	_, err = eng.CastVote(ctx, newUser(t, st, model.RoleUser), older.ID, -1)
	require.NoError(t, err)

	got, err := st.GetStatement(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(clock), "flagging should touch updatedAt, got %s", got.UpdatedAt)

	queue, err := st.ListFlaggedStatements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, older.ID, queue[0].ID)
	assert.Equal(t, newer.ID, queue[1].ID)
}

var errDiskFull = errors.New("disk full")

// brokenAuditStore fails every edit log append inside its transactions.
type brokenAuditStore struct {
	*sqlite.Store
}

func (s brokenAuditStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(brokenAuditTx{tx})
	})
}

type brokenAuditTx struct {
	store.Tx
}

func (brokenAuditTx) AppendEditLog(context.Context, model.EditLog) (model.EditLog, error) {
	return model.EditLog{}, errDiskFull
}

func TestFailedAuditRollsBackVote(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	author := newUser(t, st, model.RoleUser)
	voter := newUser(t, st, model.RoleUser)
	stmt := newStatement(t, st, author)

	// A single downvote would flag the statement if it committed.
	_, err := newEngine(brokenAuditStore{st}).CastVote(ctx, voter, stmt.ID, -1)
	require.ErrorIs(t, err, errDiskFull)

	view, err := st.GetStatementView(ctx, stmt.ID)
	require.NoError(t, err)
	assert.False(t, view.Flagged)
	assert.Zero(t, view.Upvotes+view.Downvotes)

	err = st.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetVote(ctx, voter.ID, stmt.ID)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
