package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/philippgille/chromem-go"
)

const chromemCollection = "fingerprints"

// ChromemIndex is an embedded, in-process index backed by chromem-go.
// Zero vectors are never added since chromem normalizes on insert.
type ChromemIndex struct {
	mu      sync.RWMutex
	col     *chromem.Collection
	ready   atomic.Bool
	pending journal
}

func NewChromemIndex() (*ChromemIndex, error) {
	col, err := newChromemCollection()
	if err != nil {
		return nil, err
	}
	return &ChromemIndex{col: col}, nil
}

func newChromemCollection() (*chromem.Collection, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(chromemCollection, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create chromem collection: %w", err)
	}
	return col, nil
}

// refuseEmbedding keeps chromem from calling out to a remote embedding API;
// every document and query here carries its own vector.
func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index requires precomputed vectors")
}

func (c *ChromemIndex) Name() string { return "chromem" }

func (c *ChromemIndex) Probe(context.Context) error { return nil }

func (c *ChromemIndex) Ready() bool { return c.ready.Load() }

func (c *ChromemIndex) Invalidate() { c.ready.Store(false) }

func (c *ChromemIndex) Upsert(ctx context.Context, e Entry) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.pending.upsert(e)
	return upsertDocument(ctx, c.col, e)
}

func (c *ChromemIndex) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.pending.remove(ids)
	return deleteDocuments(ctx, c.col, ids)
}

func upsertDocument(ctx context.Context, col *chromem.Collection, e Entry) error {
	if isZero(e.Vector) {
		return deleteDocuments(ctx, col, []int64{e.ID})
	}
	if err := col.AddDocument(ctx, toDocument(e)); err != nil {
		return fmt.Errorf("chromem add %d: %w", e.ID, err)
	}
	return nil
}

func deleteDocuments(ctx context.Context, col *chromem.Collection, ids []int64) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = strconv.FormatInt(id, 10)
	}
	if err := col.Delete(ctx, nil, nil, keys...); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

func (c *ChromemIndex) Query(ctx context.Context, vector []float32, contentType string, k int) ([]Hit, error) {
	if !c.Ready() {
		return nil, ErrNotReady
	}
	c.mu.RLock()
	col := c.col
	c.mu.RUnlock()

	// chromem rejects nResults larger than the collection
	n := min(k, col.Count())
	if n <= 0 {
		return nil, nil
	}
	var where map[string]string
	if contentType != "" {
		where = map[string]string{"content_type": contentType}
	}

	results, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{FingerprintID: id, Score: float64(r.Similarity)})
	}
	return hits, nil
}

// Rebuild fills a fresh collection and swaps it in once complete, so
// queries keep using the previous contents while it runs. Writes that land
// after load starts are replayed onto the fresh collection before the swap.
func (c *ChromemIndex) Rebuild(ctx context.Context, load Loader) error {
	c.pending.start()
	defer c.pending.stop()

	entries, err := load(ctx)
	if err != nil {
		return err
	}
	col, err := newChromemCollection()
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		if isZero(e.Vector) {
			continue
		}
		docs = append(docs, toDocument(e))
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("chromem rebuild: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err = replay(c.pending.stop(),
		func(e Entry) error { return upsertDocument(ctx, col, e) },
		func(ids []int64) error { return deleteDocuments(ctx, col, ids) },
	)
	if err != nil {
		return err
	}
	c.col = col
	c.ready.Store(true)
	return nil
}

func (c *ChromemIndex) Len(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.col.Count(), nil
}

func toDocument(e Entry) chromem.Document {
	return chromem.Document{
		ID:        strconv.FormatInt(e.ID, 10),
		Content:   e.ContentType + ":" + e.ContentID,
		Embedding: append([]float32(nil), e.Vector...),
		Metadata: map[string]string{
			"content_type": e.ContentType,
			"content_id":   e.ContentID,
		},
	}
}
