package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const qdrantBatch = 256

// QdrantIndex is a remote index backed by a single Qdrant collection.
// Points carry content_type and content_id in their payload.
type QdrantIndex struct {
	client     *QdrantClient
	collMgr    *CollectionManager
	collection string
	ready      atomic.Bool
	mu         sync.RWMutex
	pending    journal
}

func NewQdrantIndex(client *QdrantClient, collection string) *QdrantIndex {
	return &QdrantIndex{
		client:     client,
		collMgr:    NewCollectionManager(client),
		collection: collection,
	}
}

func (q *QdrantIndex) Name() string { return "qdrant" }

func (q *QdrantIndex) Probe(ctx context.Context) error {
	if err := q.client.HealthCheck(ctx); err != nil {
		return err
	}
	return q.collMgr.Ensure(ctx, q.collection)
}

func (q *QdrantIndex) Ready() bool { return q.ready.Load() }

func (q *QdrantIndex) Invalidate() { q.ready.Store(false) }

func (q *QdrantIndex) Upsert(ctx context.Context, e Entry) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	q.pending.upsert(e)
	return q.upsert(ctx, e)
}

func (q *QdrantIndex) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	q.pending.remove(ids)
	return q.delete(ctx, ids)
}

func (q *QdrantIndex) upsert(ctx context.Context, e Entry) error {
	if isZero(e.Vector) {
		return q.delete(ctx, []int64{e.ID})
	}
	if err := q.collMgr.Ensure(ctx, q.collection); err != nil {
		return err
	}
	return q.client.Upsert(ctx, q.collection, []Point{toPoint(e)})
}

func (q *QdrantIndex) delete(ctx context.Context, ids []int64) error {
	points := make([]uint64, len(ids))
	for i, id := range ids {
		points[i] = uint64(id)
	}
	return q.client.DeletePoints(ctx, q.collection, points)
}

func (q *QdrantIndex) Query(ctx context.Context, vector []float32, contentType string, k int) ([]Hit, error) {
	if !q.Ready() {
		return nil, ErrNotReady
	}
	var filter *Filter
	if contentType != "" {
		filter = &Filter{Must: []FieldCondition{{Key: "content_type", Match: MatchValue{Value: contentType}}}}
	}
	results, err := q.client.Search(ctx, q.collection, vector, k, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{FingerprintID: int64(r.ID), Score: r.Score}
	}
	return hits, nil
}

// Rebuild recreates the collection and uploads what load returns in
// batches, then replays the writes that arrived meanwhile. The index is not
// ready while this runs.
func (q *QdrantIndex) Rebuild(ctx context.Context, load Loader) error {
	q.ready.Store(false)
	q.pending.start()
	defer q.pending.stop()

	if err := q.collMgr.Recreate(ctx, q.collection); err != nil {
		return err
	}
	entries, err := load(ctx)
	if err != nil {
		return err
	}

	batch := make([]Point, 0, qdrantBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := q.client.Upsert(ctx, q.collection, batch); err != nil {
			return fmt.Errorf("qdrant rebuild: %w", err)
		}
		batch = batch[:0]
		return nil
	}
	for _, e := range entries {
		if isZero(e.Vector) {
			continue
		}
		batch = append(batch, toPoint(e))
		if len(batch) == qdrantBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	err = replay(q.pending.stop(),
		func(e Entry) error { return q.upsert(ctx, e) },
		func(ids []int64) error { return q.delete(ctx, ids) },
	)
	if err != nil {
		return err
	}
	q.ready.Store(true)
	return nil
}

func (q *QdrantIndex) Len(ctx context.Context) (int, error) {
	return q.client.PointCount(ctx, q.collection)
}

func toPoint(e Entry) Point {
	return Point{
		ID:     uint64(e.ID),
		Vector: e.Vector,
		Payload: map[string]any{
			"content_type": e.ContentType,
			"content_id":   e.ContentID,
		},
	}
}
