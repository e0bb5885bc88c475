// Package audit records before/after snapshots of every mutation and reads
// them back as per-entity trails.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/truthtally/truthtally/internal/model"
)

var (
	ErrEmptyTrail  = errors.New("audit trail is empty")
	ErrBrokenChain = errors.New("audit trail is not contiguous")
	ErrOutOfOrder  = errors.New("audit entry out of order")
)

var null = json.RawMessage("null")

// Appender is the write side of the edit log. store.Tx satisfies it, so an
// entry can only be written inside the transaction that owns the mutation.
type Appender interface {
	AppendEditLog(ctx context.Context, entry model.EditLog) (model.EditLog, error)
}

// Change describes one mutation. Before is nil for a newly created entity.
type Change struct {
	EntityType string
	EntityID   string
	ActorID    string
	Before     any
	After      any
}

type Recorder struct {
	now   func() time.Time
	newID func() string
}

func NewRecorder() *Recorder {
	return &Recorder{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Record appends exactly one entry for c. A returned error must abort the
// surrounding transaction.
func (r *Recorder) Record(ctx context.Context, w Appender, c Change) (model.EditLog, error) {
	if c.EntityType == "" || c.EntityID == "" || c.ActorID == "" {
		return model.EditLog{}, fmt.Errorf("audit: incomplete change %+v", c)
	}
	before, err := snapshot(c.Before)
	if err != nil {
		return model.EditLog{}, fmt.Errorf("audit: marshal before-image: %w", err)
	}
	after, err := snapshot(c.After)
	if err != nil {
		return model.EditLog{}, fmt.Errorf("audit: marshal after-image: %w", err)
	}

	entry, err := w.AppendEditLog(ctx, model.EditLog{
		ID:         r.newID(),
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		ActorID:    c.ActorID,
		Before:     before,
		After:      after,
		CreatedAt:  r.now(),
	})
	if err != nil {
		return model.EditLog{}, fmt.Errorf("audit: append: %w", err)
	}
	return entry, nil
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return null, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return null, nil
	}
	return json.Marshal(v)
}

// Trail is the ordered edit history of a single entity.
type Trail struct {
	entries []model.EditLog
}

// NewTrail orders entries by commit sequence.
func NewTrail(entries []model.EditLog) Trail {
	sorted := make([]model.EditLog, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })
	return Trail{entries: sorted}
}

func (t Trail) Len() int { return len(t.entries) }

func (t Trail) Entries() []model.EditLog {
	out := make([]model.EditLog, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t Trail) Latest() (model.EditLog, bool) {
	if len(t.entries) == 0 {
		return model.EditLog{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// Append returns a new trail with e at the end. e must come after the latest
// entry in commit order.
func (t Trail) Append(e model.EditLog) (Trail, error) {
	if last, ok := t.Latest(); ok && e.Seq <= last.Seq {
		return t, fmt.Errorf("%w: seq %d after %d", ErrOutOfOrder, e.Seq, last.Seq)
	}
	next := make([]model.EditLog, len(t.entries), len(t.entries)+1)
	copy(next, t.entries)
	return Trail{entries: append(next, e)}, nil
}

// Verify checks that the trail starts at creation and that every before-image
// equals the previous after-image. Keys listed in derived are ignored when
// comparing; they may change without an entry of their own (a statement's
// flag is set by the vote that crossed the threshold).
func (t Trail) Verify(derived ...string) error {
	if len(t.entries) == 0 {
		return ErrEmptyTrail
	}
	if !isNull(t.entries[0].Before) {
		return fmt.Errorf("%w: first entry %s has a before-image", ErrBrokenChain, t.entries[0].ID)
	}
	for i := 1; i < len(t.entries); i++ {
		prev, cur := t.entries[i-1], t.entries[i]
		same, err := equalJSON(prev.After, cur.Before, derived)
		if err != nil {
			return fmt.Errorf("audit: entry %s: %w", cur.ID, err)
		}
		if !same {
			return fmt.Errorf("%w: entry %d does not continue from entry %d", ErrBrokenChain, cur.Seq, prev.Seq)
		}
	}
	return nil
}

// Replay decodes the latest after-image into v.
func (t Trail) Replay(v any) error {
	last, ok := t.Latest()
	if !ok {
		return ErrEmptyTrail
	}
	return json.Unmarshal(last.After, v)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), null)
}

func equalJSON(a, b json.RawMessage, ignore []string) (bool, error) {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false, err
	}
	for _, key := range ignore {
		if m, ok := av.(map[string]any); ok {
			delete(m, key)
		}
		if m, ok := bv.(map[string]any); ok {
			delete(m, key)
		}
	}
	return reflect.DeepEqual(av, bv), nil
}
