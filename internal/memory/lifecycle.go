package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
	"github.com/iammorganparry/clive/apps/recall/internal/search"
	"github.com/iammorganparry/clive/apps/recall/internal/store"
	"github.com/iammorganparry/clive/apps/recall/internal/vectorstore"
)

// Maintainer garbage-collects fingerprints and keeps the native index in
// step with the fingerprint table.
type Maintainer struct {
	fingerprints *store.FingerprintStore
	code         *store.CodeStore
	index        vectorstore.Index
	logger       *slog.Logger
}

func NewMaintainer(fps *store.FingerprintStore, code *store.CodeStore, index vectorstore.Index, logger *slog.Logger) *Maintainer {
	return &Maintainer{fingerprints: fps, code: code, index: index, logger: logger}
}

// Run removes code files left behind by deleted messages, then orphaned
// fingerprints, then collapses duplicates keeping the newest, and finally
// rebuilds the index if it drifted. Each step runs even if an earlier one
// failed; failures are listed in the report and joined into the error.
func (m *Maintainer) Run(ctx context.Context) (*models.MaintenanceReport, error) {
	report := &models.MaintenanceReport{}
	var errs []error
	fail := func(step string, err error) {
		err = fmt.Errorf("%s: %w", step, err)
		errs = append(errs, err)
		report.Errors = append(report.Errors, err.Error())
		m.logger.Warn("maintenance step failed", "step", step, "error", err)
	}

	// Before orphans: fingerprints of the cascaded snippets go in this pass.
	if n, err := m.code.DeleteDetachedMessageFiles(ctx); err != nil {
		fail("detached message files", err)
	} else {
		report.DetachedFilesRemoved = n
	}

	removed := false
	if ids, err := m.fingerprints.DeleteOrphans(ctx); err != nil {
		fail("orphans", err)
	} else {
		report.OrphansRemoved = int64(len(ids))
		removed = removed || len(ids) > 0
	}

	if ids, err := m.fingerprints.CollapseDuplicates(ctx); err != nil {
		fail("duplicates", err)
	} else {
		report.DuplicatesCollapsed = int64(len(ids))
		removed = removed || len(ids) > 0
	}

	if m.index != nil {
		rebuilt, n, err := m.SyncIndex(ctx, removed)
		if err != nil {
			fail("index", err)
		}
		report.IndexRebuilt = rebuilt
		report.IndexedVectors = n
	}

	report.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if report.OrphansRemoved > 0 || report.DuplicatesCollapsed > 0 || report.DetachedFilesRemoved > 0 {
		m.logger.Info("maintenance removed fingerprints",
			"orphans", report.OrphansRemoved,
			"duplicates", report.DuplicatesCollapsed,
			"detached_files", report.DetachedFilesRemoved,
		)
	}
	return report, errors.Join(errs...)
}

// SyncIndex rebuilds the index from the fingerprint table when force is
// set, when the index was never built, or when its size differs from the
// number of indexable fingerprints. It returns whether a rebuild happened
// and the number of indexable fingerprints.
func (m *Maintainer) SyncIndex(ctx context.Context, force bool) (bool, int, error) {
	if m.index == nil {
		return false, 0, nil
	}

	entries, err := m.indexable(ctx)
	if err != nil {
		return false, 0, err
	}

	if !force && m.index.Ready() {
		if n, err := m.index.Len(ctx); err == nil && n == len(entries) {
			return false, len(entries), nil
		}
	}

	if !m.index.Ready() {
		if err := m.index.Probe(ctx); err != nil {
			return false, len(entries), fmt.Errorf("probe %s: %w", m.index.Name(), err)
		}
	}
	start := time.Now()
	// Reloaded inside Rebuild so writes after this point are not lost.
	err = m.index.Rebuild(ctx, func(ctx context.Context) ([]vectorstore.Entry, error) {
		fresh, err := m.indexable(ctx)
		if err == nil {
			entries = fresh
		}
		return fresh, err
	})
	if err != nil {
		return false, len(entries), fmt.Errorf("rebuild %s: %w", m.index.Name(), err)
	}
	m.logger.Info("vector index rebuilt", "index", m.index.Name(), "vectors", len(entries),
		"duration_ms", time.Since(start).Milliseconds())
	return true, len(entries), nil
}

// indexable returns every fingerprint with a non-zero vector as an index
// entry.
func (m *Maintainer) indexable(ctx context.Context) ([]vectorstore.Entry, error) {
	fps, err := m.fingerprints.Scan(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]vectorstore.Entry, 0, len(fps))
	for _, fp := range fps {
		vec := search.BytesToFloat32(fp.Vector)
		if search.Norm(vec) == 0 {
			continue
		}
		entries = append(entries, vectorstore.Entry{
			ID:          fp.ID,
			ContentID:   fp.ContentID,
			ContentType: fp.ContentType,
			Vector:      vec,
		})
	}
	return entries, nil
}
