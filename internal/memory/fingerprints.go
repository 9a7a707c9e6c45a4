package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iammorganparry/clive/apps/recall/internal/embedding"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
	"github.com/iammorganparry/clive/apps/recall/internal/search"
	"github.com/iammorganparry/clive/apps/recall/internal/store"
	"github.com/iammorganparry/clive/apps/recall/internal/vectorstore"
)

// Fingerprints writes fingerprints to the store and mirrors them into the
// native index when one is configured. The store is authoritative; a failed
// mirror takes the index out of service until the next rebuild, so searches
// fall back to the linear scan meanwhile.
type Fingerprints struct {
	store    *store.FingerprintStore
	embedder embedding.Embedder
	index    vectorstore.Index
	logger   *slog.Logger
}

func NewFingerprints(fps *store.FingerprintStore, embedder embedding.Embedder, index vectorstore.Index, logger *slog.Logger) *Fingerprints {
	return &Fingerprints{store: fps, embedder: embedder, index: index, logger: logger}
}

// Fingerprint embeds text and stores it for the given content.
func (f *Fingerprints) Fingerprint(ctx context.Context, contentType, contentID, text string) error {
	_, err := f.Put(ctx, contentID, contentType, f.embedder.Embed(ctx, text), nil)
	return err
}

// Put stores a caller-supplied vector.
func (f *Fingerprints) Put(ctx context.Context, contentID, contentType string, vector []float32, md models.Metadata) (*models.Fingerprint, error) {
	fp := &models.Fingerprint{
		ContentID:   contentID,
		ContentType: contentType,
		Vector:      search.Float32ToBytes(vector),
		Metadata:    md,
	}
	if _, err := f.store.Store(ctx, fp); err != nil {
		return nil, err
	}
	f.mirror(ctx, vectorstore.Entry{ID: fp.ID, ContentID: contentID, ContentType: contentType, Vector: vector})
	return fp, nil
}

func (f *Fingerprints) Update(ctx context.Context, id int64, vector []float32, md models.Metadata) (*models.Fingerprint, error) {
	fp, err := f.store.Update(ctx, id, search.Float32ToBytes(vector), md)
	if err != nil {
		return nil, err
	}
	f.mirror(ctx, vectorstore.Entry{ID: fp.ID, ContentID: fp.ContentID, ContentType: fp.ContentType, Vector: vector})
	return fp, nil
}

func (f *Fingerprints) Delete(ctx context.Context, id int64) error {
	if err := f.store.Delete(ctx, id); err != nil {
		return err
	}
	f.unindex(ctx, id)
	return nil
}

// Forget removes every fingerprint of the given content.
func (f *Fingerprints) Forget(ctx context.Context, contentType string, contentIDs []string) error {
	removed, err := f.store.DeleteForContent(ctx, contentType, contentIDs)
	if err != nil {
		return fmt.Errorf("forget %s fingerprints: %w", contentType, err)
	}
	f.unindex(ctx, removed...)
	return nil
}

func (f *Fingerprints) mirror(ctx context.Context, e vectorstore.Entry) {
	if f.index == nil {
		return
	}
	if err := f.index.Upsert(ctx, e); err != nil && !errors.Is(err, vectorstore.ErrNotReady) {
		f.index.Invalidate()
		f.logger.Warn("index upsert failed", "index", f.index.Name(), "fingerprint_id", e.ID, "error", err)
	}
}

func (f *Fingerprints) unindex(ctx context.Context, ids ...int64) {
	if f.index == nil || len(ids) == 0 {
		return
	}
	if err := f.index.Delete(ctx, ids...); err != nil && !errors.Is(err, vectorstore.ErrNotReady) {
		f.index.Invalidate()
		f.logger.Warn("index delete failed", "index", f.index.Name(), "count", len(ids), "error", err)
	}
}
