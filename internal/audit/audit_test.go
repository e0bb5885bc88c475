package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthtally/truthtally/internal/model"
)

type memAppender struct {
	entries []model.EditLog
	err     error
}

func (m *memAppender) AppendEditLog(_ context.Context, e model.EditLog) (model.EditLog, error) {
	if m.err != nil {
		return model.EditLog{}, m.err
	}
	e.Seq = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return e, nil
}

type thing struct {
	Name    string `json:"name"`
	Flagged bool   `json:"flagged"`
}

func TestRecordCreateHasNullBefore(t *testing.T) {
	w := &memAppender{}
	r := NewRecorder()

	entry, err := r.Record(context.Background(), w, Change{
		EntityType: "Thing", EntityID: "t1", ActorID: "u1",
		After: thing{Name: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Seq)
	assert.JSONEq(t, `null`, string(entry.Before))
	assert.JSONEq(t, `{"name":"a","flagged":false}`, string(entry.After))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestRecordTypedNilIsNull(t *testing.T) {
	w := &memAppender{}
	var prior *thing
	entry, err := NewRecorder().Record(context.Background(), w, Change{
		EntityType: "Thing", EntityID: "t1", ActorID: "u1", Before: prior, After: thing{Name: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "null", string(entry.Before))
}

func TestRecordPropagatesAppendFailure(t *testing.T) {
	boom := errors.New("disk full")
	_, err := NewRecorder().Record(context.Background(), &memAppender{err: boom}, Change{
		EntityType: "Thing", EntityID: "t1", ActorID: "u1", After: thing{},
	})
	assert.ErrorIs(t, err, boom)
}

func TestRecordRejectsIncompleteChange(t *testing.T) {
	w := &memAppender{}
	_, err := NewRecorder().Record(context.Background(), w, Change{EntityType: "Thing", EntityID: "t1"})
	assert.Error(t, err)
	assert.Empty(t, w.entries)
}

func TestTrailVerifyAndReplay(t *testing.T) {
	w := &memAppender{}
	r := NewRecorder()
	ctx := context.Background()

	steps := []Change{
		{After: thing{Name: "a"}},
		{Before: thing{Name: "a"}, After: thing{Name: "b"}},
		{Before: thing{Name: "b", Flagged: true}, After: thing{Name: "c", Flagged: true}},
	}
	for _, c := range steps {
		c.EntityType, c.EntityID, c.ActorID = "Thing", "t1", "u1"
		_, err := r.Record(ctx, w, c)
		require.NoError(t, err)
	}

	// Reverse to check that NewTrail orders by Seq.
	reversed := []model.EditLog{w.entries[2], w.entries[1], w.entries[0]}
	trail := NewTrail(reversed)
	require.Equal(t, 3, trail.Len())

	assert.ErrorIs(t, trail.Verify(), ErrBrokenChain)
	assert.NoError(t, trail.Verify("flagged"))

	var got thing
	require.NoError(t, trail.Replay(&got))
	assert.Equal(t, thing{Name: "c", Flagged: true}, got)

	latest, ok := trail.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(3), latest.Seq)
}

func TestTrailVerifyRequiresCreation(t *testing.T) {
	trail := NewTrail([]model.EditLog{{Seq: 1, Before: json.RawMessage(`{"name":"a"}`), After: json.RawMessage(`{"name":"b"}`)}})
	assert.ErrorIs(t, trail.Verify(), ErrBrokenChain)
	assert.ErrorIs(t, NewTrail(nil).Verify(), ErrEmptyTrail)
	assert.ErrorIs(t, NewTrail(nil).Replay(&thing{}), ErrEmptyTrail)
}

func TestTrailAppendIsOrdered(t *testing.T) {
	trail, err := Trail{}.Append(model.EditLog{Seq: 5})
	require.NoError(t, err)

	_, err = trail.Append(model.EditLog{Seq: 5})
	assert.ErrorIs(t, err, ErrOutOfOrder)

	next, err := trail.Append(model.EditLog{Seq: 9})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Len())
	assert.Equal(t, 1, trail.Len())
}
