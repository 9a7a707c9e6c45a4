// Package vectorstore provides native top-K backends that mirror the
// fingerprint table. The SQLite table stays the source of truth; an index
// can always be rebuilt from it.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotReady is returned by Query before the index has been built.
var ErrNotReady = errors.New("vector index not ready")

// Hit is a candidate returned by a backend, best first.
type Hit struct {
	FingerprintID int64
	Score         float64
}

// Entry is one fingerprint as held by an index.
type Entry struct {
	ID          int64
	ContentID   string
	ContentType string
	Vector      []float32
}

// Loader reads the full set of entries an index should hold.
type Loader func(ctx context.Context) ([]Entry, error)

// Index is implemented by every backend.
type Index interface {
	// Probe checks that the backend can be used at all.
	Probe(ctx context.Context) error
	Ready() bool
	// Invalidate takes the index out of service until the next Rebuild.
	Invalidate()
	Upsert(ctx context.Context, e Entry) error
	Delete(ctx context.Context, ids ...int64) error
	// Query returns up to k hits of contentType ("" for any type).
	Query(ctx context.Context, vector []float32, contentType string, k int) ([]Hit, error)
	// Rebuild replaces the index contents with what load returns and marks
	// it ready. Writes made after load starts are applied on top.
	Rebuild(ctx context.Context, load Loader) error
	Len(ctx context.Context) (int, error)
	Name() string
}

// journal records the writes that arrive while a rebuild is loading so
// they can be replayed onto the rebuilt contents in order.
type journal struct {
	mu     sync.Mutex
	active bool
	ops    []journalOp
}

type journalOp struct {
	entry  *Entry
	delete []int64
}

func (j *journal) start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.active = true
	j.ops = nil
}

// stop ends recording and returns what was recorded.
func (j *journal) stop() []journalOp {
	j.mu.Lock()
	defer j.mu.Unlock()
	ops := j.ops
	j.active = false
	j.ops = nil
	return ops
}

func (j *journal) upsert(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.active {
		e.Vector = append([]float32(nil), e.Vector...)
		j.ops = append(j.ops, journalOp{entry: &e})
	}
}

func (j *journal) remove(ids []int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.active {
		j.ops = append(j.ops, journalOp{delete: append([]int64(nil), ids...)})
	}
}

func replay(ops []journalOp, upsert func(Entry) error, remove func([]int64) error) error {
	for _, op := range ops {
		var err error
		if op.entry != nil {
			err = upsert(*op.entry)
		} else {
			err = remove(op.delete)
		}
		if err != nil {
			return fmt.Errorf("replay writes: %w", err)
		}
	}
	return nil
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
