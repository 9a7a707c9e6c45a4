package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/iammorganparry/clive/apps/recall/internal/api"
	"github.com/iammorganparry/clive/apps/recall/internal/config"
	"github.com/iammorganparry/clive/apps/recall/internal/embedding"
	"github.com/iammorganparry/clive/apps/recall/internal/indexer"
	"github.com/iammorganparry/clive/apps/recall/internal/memory"
	"github.com/iammorganparry/clive/apps/recall/internal/search"
	"github.com/iammorganparry/clive/apps/recall/internal/store"
	"github.com/iammorganparry/clive/apps/recall/internal/vectorstore"
)

const watchDebounce = 300 * time.Millisecond

// app holds the wired service and the background workers around it.
type app struct {
	cfg     *config.Config
	db      *store.DB
	svc     *memory.Service
	queue   *indexer.Queue
	watcher *indexer.Watcher
	health  api.HealthChecker
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	sched  *indexer.Scheduler
}

func newApp(cmd *cobra.Command, logger *slog.Logger) (*app, error) {
	if err := applyConfigFlag(cmd); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.StorageMode, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{cfg: cfg, db: db, logger: logger}

	// Fingerprint generator
	var base embedding.Embedder = embedding.NewHashEmbedder(cfg.FingerprintDim)
	if cfg.EmbeddingProvider == "ollama" {
		ollama := embedding.NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.EmbeddingModel, cfg.FingerprintDim, logger)
		base = ollama
		a.health = ollama
	}
	embedder, err := embedding.NewCachedEmbedder(base, cfg.FingerprintCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Native top-K index
	var index vectorstore.Index
	switch cfg.IndexBackend {
	case "chromem":
		idx, err := vectorstore.NewChromemIndex()
		if err != nil {
			db.Close()
			return nil, err
		}
		index = idx
	case "qdrant":
		client := vectorstore.NewQdrantClient(cfg.QdrantURL, embedder.Dimensions())
		index = vectorstore.NewQdrantIndex(client, cfg.QdrantCollection)
	}

	// Stores
	fpStore := store.NewFingerprintStore(db)
	codeStore := store.NewCodeStore(db)
	stores := memory.Stores{
		Messages: store.NewMessageStore(db),
		Files:    store.NewActiveFileStore(db),
		Project:  store.NewProjectStore(db),
		Episodes: store.NewEpisodeStore(db),
		Code:     codeStore,
	}

	// Retrieval
	writer := memory.NewFingerprints(fpStore, embedder, index, logger)
	searcher := search.NewSearcher(fpStore, index, cfg.SearchLimit, logger)
	scorer := search.NewScorer(fpStore)
	assembler := memory.NewAssembler(stores, embedder, scorer, searcher, memory.AssemblerOptions{
		Mode:               cfg.StorageMode,
		RelevanceThreshold: cfg.RelevanceThreshold,
		SemanticThreshold:  cfg.SemanticThreshold,
		SemanticLimit:      cfg.SearchLimit,
	}, logger)
	maintainer := memory.NewMaintainer(fpStore, codeStore, index, logger)

	// Background indexing
	ix := indexer.New(codeStore, writer, indexer.Options{
		SampleBytes:  cfg.FileSampleBytes,
		MaxFileBytes: cfg.MaxIndexFileBytes,
	}, logger)
	a.queue = indexer.NewQueue(cfg.IndexTaskDelay, logger)

	a.svc = memory.NewService(db, stores, fpStore, writer, searcher, assembler, maintainer, ix, a.queue, index,
		memory.Options{SearchThreshold: cfg.SearchThreshold, SearchLimit: cfg.SearchLimit}, logger)

	if cfg.WatchActiveFiles {
		w, err := indexer.NewWatcher(a.svc.Reindex, watchDebounce, logger)
		if err != nil {
			logger.Warn("file watching disabled", "error", err)
		} else {
			a.watcher = w
			a.svc.SetWatcher(w)
		}
	}

	if cfg.MaintenanceSchedule != "" {
		sched, err := indexer.NewScheduler(cfg.MaintenanceSchedule, a.svc.ScheduleMaintenance, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.sched = sched
	}

	return a, nil
}

// start launches the queue worker and, when background is set, the
// watcher and the maintenance schedule.
func (a *app) start(ctx context.Context, background bool) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.queue.Run(ctx)
	}()

	if !background {
		return
	}

	a.svc.WarmIndex()

	if a.watcher != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.watcher.Run(ctx)
		}()
		if err := a.svc.ResumeWatching(ctx); err != nil {
			a.logger.Warn("resume watching", "error", err)
		}
	}
	if a.sched != nil {
		a.sched.Start()
	}
}

// close drains queued work until ctx expires, then stops every worker and
// closes the database.
func (a *app) close(ctx context.Context) {
	if a.sched != nil {
		a.sched.Stop(ctx)
	}
	if a.cancel != nil {
		if err := a.svc.Drain(ctx); err != nil {
			a.logger.Warn("queue not drained before shutdown", "error", err, "pending", a.queue.Stats().Pending)
		}
		a.cancel()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	a.wg.Wait()
	if err := a.db.Close(); err != nil {
		a.logger.Error("close database", "error", err)
	}
}
