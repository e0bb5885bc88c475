package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/truthtally/truthtally/internal/model"
	"github.com/truthtally/truthtally/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// seed creates a user, a politician and a statement.
func seed(t *testing.T, st *Store) (model.User, model.Politician, model.Statement) {
	t.Helper()
	ctx := context.Background()
	user := model.User{ID: "u1", Email: "u1@example.com", PasswordHash: "x", Role: model.RoleUser, CreatedAt: epoch}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	pol := model.Politician{
		ID: "p1", Name: "Jane Roe", Party: "Independent", Office: "Senator", Region: "North",
		TermStart: epoch, TermEnd: epoch.AddDate(4, 0, 0), CreatedAt: epoch, UpdatedAt: epoch,
	}
	stmt := model.Statement{
		ID: "s1", PoliticianID: pol.ID, Text: "More parks.", SourceURL: "https://example.com",
		DateMade: epoch, SubmittedByID: user.ID, Status: model.StatusPending, CreatedAt: epoch, UpdatedAt: epoch,
	}
	err := st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertPolitician(ctx, pol); err != nil {
			return err
		}
		return tx.InsertStatement(ctx, stmt)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return user, pol, stmt
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truthtally.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	v, err := st.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != len(migrations) {
		t.Fatalf("expected version %d, got %d", len(migrations), v)
	}
	st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if v2, _ := st.SchemaVersion(context.Background()); v2 != v {
		t.Fatalf("reopen changed version %d -> %d", v, v2)
	}
}

func TestPoliticianAndStatementRoundTrip(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	_, pol, stmt := seed(t, st)
	ctx := context.Background()

	got, err := st.GetPolitician(ctx, pol.ID)
	if err != nil {
		t.Fatalf("get politician: %v", err)
	}
	if !got.TermEnd.Equal(pol.TermEnd) || got.TermEnd.Location() != time.UTC {
		t.Fatalf("unexpected term end %s", got.TermEnd)
	}

	view, err := st.GetStatementView(ctx, stmt.ID)
	if err != nil {
		t.Fatalf("get statement view: %v", err)
	}
	if view.Upvotes != 0 || view.Downvotes != 0 || view.Status != model.StatusPending {
		t.Fatalf("unexpected view %+v", view)
	}

	if _, err := st.GetStatement(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err = st.InTx(ctx, func(tx store.Tx) error {
		return tx.UpdatePolitician(ctx, model.Politician{ID: "missing"})
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestSoftDeleteHidesFromLists(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	_, pol, stmt := seed(t, st)
	ctx := context.Background()

	now := epoch.Add(time.Hour)
	actor := "u1"
	err := st.InTx(ctx, func(tx store.Tx) error {
		s, err := tx.GetStatement(ctx, stmt.ID)
		if err != nil {
			return err
		}
		s.IsDeleted, s.DeletedBy, s.DeletedAt, s.UpdatedAt = true, &actor, &now, now
		return tx.UpdateStatement(ctx, s)
	})
	if err != nil {
		t.Fatalf("delete statement: %v", err)
	}

	list, err := st.ListStatements(ctx, store.StatementListOpts{PoliticianID: pol.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected deleted statement hidden, got %d", len(list))
	}
	all, err := st.ListStatements(ctx, store.StatementListOpts{PoliticianID: pol.ID, IncludeDeleted: true})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 || all[0].DeletedBy == nil || *all[0].DeletedBy != actor {
		t.Fatalf("expected deleted statement with deleter, got %+v", all)
	}

	// Deleted and pending at once is rejected by the schema.
	err = st.InTx(ctx, func(tx store.Tx) error {
		s, _ := tx.GetStatement(ctx, stmt.ID)
		s.PendingDelete = true
		return tx.UpdateStatement(ctx, s)
	})
	if err == nil {
		t.Fatalf("expected check constraint violation")
	}
}

func TestVoteUpsert(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	_, _, stmt := seed(t, st)
	ctx := context.Background()
	if err := st.CreateUser(ctx, model.User{ID: "u2", Email: "u2@example.com", PasswordHash: "x", Role: model.RoleUser, CreatedAt: epoch}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	var first, recast, flipped model.Vote
	err := st.InTx(ctx, func(tx store.Tx) error {
		var err error
		first, err = tx.UpsertVote(ctx, model.Vote{ID: "v1", UserID: "u1", StatementID: stmt.ID, Value: 1, CreatedAt: epoch, UpdatedAt: epoch})
		if err != nil {
			return err
		}
		recast, err = tx.UpsertVote(ctx, model.Vote{ID: "v-ignored", UserID: "u1", StatementID: stmt.ID, Value: 1, CreatedAt: epoch, UpdatedAt: epoch.Add(time.Minute)})
		if err != nil {
			return err
		}
		flipped, err = tx.UpsertVote(ctx, model.Vote{ID: "v-ignored", UserID: "u1", StatementID: stmt.ID, Value: -1, CreatedAt: epoch, UpdatedAt: epoch.Add(2 * time.Minute)})
		if err != nil {
			return err
		}
		_, err = tx.UpsertVote(ctx, model.Vote{ID: "v2", UserID: "u2", StatementID: stmt.ID, Value: -1, CreatedAt: epoch, UpdatedAt: epoch})
		return err
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if recast.ID != "v1" || !recast.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("same-value recast should leave row untouched, got %+v", recast)
	}
	if flipped.ID != "v1" || flipped.Value != -1 || !flipped.UpdatedAt.Equal(epoch.Add(2*time.Minute)) {
		t.Fatalf("unexpected flipped vote %+v", flipped)
	}

	var count, sum int
	err = st.InTx(ctx, func(tx store.Tx) error {
		var err error
		count, sum, err = tx.VoteAggregate(ctx, stmt.ID)
		return err
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if count != 2 || sum != -2 {
		t.Fatalf("expected 2 votes summing to -2, got %d/%d", count, sum)
	}

	view, err := st.GetStatementView(ctx, stmt.ID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Upvotes != 0 || view.Downvotes != 2 {
		t.Fatalf("unexpected counts %d/%d", view.Upvotes, view.Downvotes)
	}
}

func TestEditLogsAreAppendOnly(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	after, _ := json.Marshal(map[string]string{"id": "p1"})
	var entries []model.EditLog
	err := st.InTx(ctx, func(tx store.Tx) error {
		for i := 0; i < 3; i++ {
			e, err := tx.AppendEditLog(ctx, model.EditLog{
				ID: fmt.Sprintf("e%d", i), EntityType: model.EntityPolitician, EntityID: "p1", ActorID: "u1",
				Before: json.RawMessage("null"), After: after, CreatedAt: epoch,
			})
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entries[0].Seq >= entries[1].Seq || entries[1].Seq >= entries[2].Seq {
		t.Fatalf("expected increasing seq, got %d %d %d", entries[0].Seq, entries[1].Seq, entries[2].Seq)
	}

	if _, err := st.db.ExecContext(ctx, `UPDATE edit_logs SET actor_id = 'x'`); err == nil {
		t.Fatalf("expected update to be rejected")
	}
	if _, err := st.db.ExecContext(ctx, `DELETE FROM edit_logs`); err == nil {
		t.Fatalf("expected delete to be rejected")
	}

	logs, err := st.ListEditLogs(ctx, model.EntityPolitician, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 3 || logs[0].ID != "e0" || logs[2].ID != "e2" {
		t.Fatalf("unexpected logs %+v", logs)
	}
	if string(logs[0].Before) != "null" {
		t.Fatalf("unexpected before %s", logs[0].Before)
	}
}

func TestInTxRollsBack(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertPolitician(ctx, model.Politician{ID: "p9", Name: "n", CreatedAt: epoch, UpdatedAt: epoch}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := st.GetPolitician(ctx, "p9"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected rolled back insert, got %v", err)
	}
}

func TestWrapErrClassifiesBusy(t *testing.T) {
	err := wrapErr("commit", errors.New("database is locked (5) (SQLITE_BUSY)"))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if errors.Is(wrapErr("insert", errors.New("no such table")), store.ErrConflict) {
		t.Fatalf("unexpected conflict classification")
	}
}
