package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/iammorganparry/clive/apps/recall/internal/indexer"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
	"github.com/iammorganparry/clive/apps/recall/internal/privacy"
	"github.com/iammorganparry/clive/apps/recall/internal/search"
	"github.com/iammorganparry/clive/apps/recall/internal/store"
	"github.com/iammorganparry/clive/apps/recall/internal/vectorstore"
)

// ErrInvalidArgument marks a request rejected before touching storage.
var ErrInvalidArgument = errors.New("invalid arguments")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

const (
	defaultRecentMessages = 10
	maxRecentMessages     = 100
)

// Options holds the defaults applied to vector searches.
type Options struct {
	SearchThreshold float64
	SearchLimit     int
}

// Service is the facade over every memory operation. Writes return as soon
// as the record is stored; fingerprinting and indexing run on the queue.
type Service struct {
	db           *store.DB
	stores       Stores
	fingerprints *store.FingerprintStore
	writer       *Fingerprints
	searcher     *search.Searcher
	assembler    *Assembler
	maintainer   *Maintainer
	indexer      *indexer.Indexer
	queue        *indexer.Queue
	index        vectorstore.Index
	watcher      *indexer.Watcher
	opts         Options
	logger       *slog.Logger
}

// NewService creates a memory service with all dependencies. index may be nil.
func NewService(
	db *store.DB,
	stores Stores,
	fingerprints *store.FingerprintStore,
	writer *Fingerprints,
	searcher *search.Searcher,
	assembler *Assembler,
	maintainer *Maintainer,
	ix *indexer.Indexer,
	queue *indexer.Queue,
	index vectorstore.Index,
	opts Options,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:           db,
		stores:       stores,
		fingerprints: fingerprints,
		writer:       writer,
		searcher:     searcher,
		assembler:    assembler,
		maintainer:   maintainer,
		indexer:      ix,
		queue:        queue,
		index:        index,
		opts:         opts,
		logger:       logger,
	}
}

// SetWatcher enables re-indexing of tracked files when they change.
func (s *Service) SetWatcher(w *indexer.Watcher) {
	s.watcher = w
}

// StoreMessage persists a conversation message. Code-related messages also
// have their fenced code blocks indexed as snippets.
func (s *Service) StoreMessage(ctx context.Context, req *models.StoreMessageRequest) (*models.Message, error) {
	if !req.Role.IsValid() {
		return nil, invalid("role must be user or assistant, got %q", req.Role)
	}
	if err := checkImportance(req.Importance); err != nil {
		return nil, err
	}
	content, err := clean(req.Content, "content")
	if err != nil {
		return nil, err
	}
	privacy.StripMetadata(req.Metadata)

	msg := &models.Message{Role: req.Role, Content: content, Importance: req.Importance, Metadata: req.Metadata}
	if err := s.stores.Messages.Insert(ctx, msg); err != nil {
		return nil, err
	}

	id := strconv.FormatInt(msg.ID, 10)
	s.enqueueFingerprint(req.Role.ContentType(), id, content)
	if indexer.IsCodeRelated(content) {
		s.queue.Enqueue("index message code", func(ctx context.Context) error {
			_, err := s.indexer.IndexText(ctx, msg.ID, content)
			return err
		})
	}
	return msg, nil
}

// RecentMessages returns up to limit messages, newest first.
func (s *Service) RecentMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = defaultRecentMessages
	}
	limit = min(limit, maxRecentMessages)
	msgs, err := s.stores.Messages.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// DeleteMessage removes a message. Its fingerprints are left for
// maintenance to collect.
func (s *Service) DeleteMessage(ctx context.Context, id int64) error {
	return s.stores.Messages.Delete(ctx, id)
}

// TrackActiveFile records file activity. Files that are not being closed
// are indexed in the background and, with a watcher, re-indexed on change.
func (s *Service) TrackActiveFile(ctx context.Context, req *models.TrackFileRequest) (*models.ActiveFile, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return nil, invalid("filename is required")
	}
	if req.Action == "" {
		req.Action = models.FileActionOpen
	}
	if !req.Action.IsValid() {
		return nil, invalid("unknown file action %q", req.Action)
	}
	if err := checkImportance(req.Importance); err != nil {
		return nil, err
	}

	f := &models.ActiveFile{
		Filename:   req.Filename,
		Action:     req.Action,
		Importance: req.Importance,
		Metadata:   req.Metadata,
	}
	if err := s.stores.Files.Upsert(ctx, f); err != nil {
		return nil, err
	}

	id := strconv.FormatInt(f.ID, 10)
	s.queue.Enqueue("fingerprint active_file", func(ctx context.Context) error {
		if err := s.writer.Forget(ctx, models.ContentTypeActiveFile, []string{id}); err != nil {
			return err
		}
		return s.writer.Fingerprint(ctx, models.ContentTypeActiveFile, id, f.Filename)
	})

	if f.Action == models.FileActionClose {
		if s.watcher != nil {
			s.watcher.Untrack(f.Filename)
		}
		return f, nil
	}
	path := f.Filename
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	s.enqueueIndex(path, f.Action)
	if s.watcher != nil {
		if err := s.watcher.Track(f.Filename); err != nil {
			s.logger.Warn("watch active file", "filename", f.Filename, "error", err)
		}
	}
	return f, nil
}

func (s *Service) AddMilestone(ctx context.Context, req *models.MilestoneRequest) (*models.Milestone, error) {
	title, err := clean(req.Title, "title")
	if err != nil {
		return nil, err
	}
	if err := checkImportance(req.Importance); err != nil {
		return nil, err
	}
	desc, _ := privacy.Strip(req.Description)
	privacy.StripMetadata(req.Metadata)

	m := &models.Milestone{Title: title, Description: desc, Importance: req.Importance, Metadata: req.Metadata}
	if err := s.stores.Project.InsertMilestone(ctx, m); err != nil {
		return nil, err
	}
	s.enqueueFingerprint(models.ContentTypeMilestone, strconv.FormatInt(m.ID, 10), joinText(title, desc))
	return m, nil
}

func (s *Service) AddDecision(ctx context.Context, req *models.DecisionRequest) (*models.Decision, error) {
	title, err := clean(req.Title, "title")
	if err != nil {
		return nil, err
	}
	content, err := clean(req.Content, "content")
	if err != nil {
		return nil, err
	}
	if err := checkImportance(req.Importance); err != nil {
		return nil, err
	}
	reasoning, _ := privacy.Strip(req.Reasoning)
	privacy.StripMetadata(req.Metadata)

	d := &models.Decision{Title: title, Content: content, Reasoning: reasoning, Importance: req.Importance, Metadata: req.Metadata}
	if err := s.stores.Project.InsertDecision(ctx, d); err != nil {
		return nil, err
	}
	s.enqueueFingerprint(models.ContentTypeDecision, strconv.FormatInt(d.ID, 10), joinText(title, content, reasoning))
	return d, nil
}

func (s *Service) AddRequirement(ctx context.Context, req *models.RequirementRequest) (*models.Requirement, error) {
	title, err := clean(req.Title, "title")
	if err != nil {
		return nil, err
	}
	content, err := clean(req.Content, "content")
	if err != nil {
		return nil, err
	}
	if err := checkImportance(req.Importance); err != nil {
		return nil, err
	}
	privacy.StripMetadata(req.Metadata)

	r := &models.Requirement{Title: title, Content: content, Importance: req.Importance, Metadata: req.Metadata}
	if err := s.stores.Project.InsertRequirement(ctx, r); err != nil {
		return nil, err
	}
	s.enqueueFingerprint(models.ContentTypeRequirement, strconv.FormatInt(r.ID, 10), joinText(title, content))
	return r, nil
}

// RecordEpisode appends to the chronological episode log.
func (s *Service) RecordEpisode(ctx context.Context, req *models.EpisodeRequest) (*models.Episode, error) {
	if strings.TrimSpace(req.Actor) == "" || strings.TrimSpace(req.Action) == "" {
		return nil, invalid("actor and action are required")
	}
	content, err := clean(req.Content, "content")
	if err != nil {
		return nil, err
	}
	if err := checkImportance(req.Importance); err != nil {
		return nil, err
	}
	epCtx, _ := privacy.Strip(req.Context)
	privacy.StripMetadata(req.Metadata)

	e := &models.Episode{
		Actor:      req.Actor,
		Action:     req.Action,
		Content:    content,
		Context:    epCtx,
		Importance: req.Importance,
		Metadata:   req.Metadata,
	}
	if err := s.stores.Episodes.Insert(ctx, e); err != nil {
		return nil, err
	}
	s.enqueueFingerprint(models.ContentTypeEpisode, strconv.FormatInt(e.ID, 10), joinText(e.Actor, e.Action, content))
	return e, nil
}

// StoreVector stores a caller-computed vector under any content type.
func (s *Service) StoreVector(ctx context.Context, req *models.StoreVectorRequest) (*models.VectorStored, error) {
	if strings.TrimSpace(req.ContentID) == "" || strings.TrimSpace(req.ContentType) == "" {
		return nil, invalid("contentId and contentType are required")
	}
	if err := checkVector(req.Vector); err != nil {
		return nil, err
	}
	fp, err := s.writer.Put(ctx, req.ContentID, req.ContentType, req.Vector, req.Metadata)
	if err != nil {
		return nil, err
	}
	return &models.VectorStored{
		ID:          fp.ID,
		ContentID:   fp.ContentID,
		ContentType: fp.ContentType,
		Dimensions:  fp.Dimensions,
		Timestamp:   fp.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// SearchVectors ranks stored fingerprints against req.Vector.
func (s *Service) SearchVectors(ctx context.Context, req *models.SearchVectorsRequest) ([]models.VectorMatch, error) {
	if err := checkVector(req.Vector); err != nil {
		return nil, err
	}
	q := search.Query{Vector: req.Vector, Limit: req.Limit, Threshold: s.opts.SearchThreshold}
	if q.Limit <= 0 {
		q.Limit = s.opts.SearchLimit
	}
	if req.Threshold != nil {
		if *req.Threshold < -1 || *req.Threshold > 1 {
			return nil, invalid("threshold must be within [-1, 1]")
		}
		q.Threshold = *req.Threshold
	}
	if req.ContentType != "" {
		q.ContentTypes = []string{req.ContentType}
	}

	matches, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.VectorMatch, len(matches))
	for i, m := range matches {
		out[i] = models.VectorMatch{
			ID:          m.Fingerprint.ID,
			ContentID:   m.Fingerprint.ContentID,
			ContentType: m.Fingerprint.ContentType,
			Similarity:  m.Similarity,
			Metadata:    m.Fingerprint.Metadata,
		}
	}
	return out, nil
}

// UpdateVector replaces a fingerprint's vector, and its metadata when given.
// It fails with store.ErrNotFound if id does not exist.
func (s *Service) UpdateVector(ctx context.Context, id int64, req *models.UpdateVectorRequest) (*models.VectorUpdated, error) {
	if err := checkVector(req.Vector); err != nil {
		return nil, err
	}
	fp, err := s.writer.Update(ctx, id, req.Vector, req.Metadata)
	if err != nil {
		return nil, err
	}
	return &models.VectorUpdated{
		ID:         fp.ID,
		Dimensions: fp.Dimensions,
		Updated:    true,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// DeleteVector fails with store.ErrNotFound if id does not exist.
func (s *Service) DeleteVector(ctx context.Context, id int64) (*models.VectorDeleted, error) {
	if err := s.writer.Delete(ctx, id); err != nil {
		return nil, err
	}
	return &models.VectorDeleted{ID: id, Deleted: true}, nil
}

// GetComprehensiveContext assembles a snapshot for query, which may be
// empty. It never fails.
func (s *Service) GetComprehensiveContext(ctx context.Context, query string) *models.ContextSnapshot {
	return s.assembler.Assemble(ctx, query)
}

// IndexFile queues path for indexing and returns immediately.
func (s *Service) IndexFile(ctx context.Context, path string) (*models.IndexFileResponse, error) {
	if strings.TrimSpace(path) == "" {
		return nil, invalid("path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, invalid("bad path %q: %v", path, err)
	}
	taskID := s.enqueueIndex(abs, models.FileActionEdit)
	return &models.IndexFileResponse{TaskID: taskID, Path: abs, Language: indexer.DetectLanguage(abs)}, nil
}

// Reindex queues a changed file. It is the watcher's callback.
func (s *Service) Reindex(path string) {
	s.enqueueIndex(path, models.FileActionEdit)
}

// RunMaintenance queues a maintenance pass behind any pending work and
// waits for its report. Step failures are reported, not returned; a pass
// that never produced a report is.
func (s *Service) RunMaintenance(ctx context.Context) (*models.MaintenanceReport, error) {
	done := make(chan *models.MaintenanceReport, 1)
	s.queue.Enqueue("maintenance", func(ctx context.Context) error {
		var report *models.MaintenanceReport
		defer func() { done <- report }()
		report, err := s.maintainer.Run(ctx)
		return err
	})

	select {
	case report := <-done:
		if report == nil {
			return nil, errors.New("maintenance pass aborted")
		}
		return report, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for maintenance: %w", ctx.Err())
	}
}

// ScheduleMaintenance queues a maintenance pass without waiting.
func (s *Service) ScheduleMaintenance() {
	s.queue.Enqueue("scheduled maintenance", func(ctx context.Context) error {
		_, err := s.maintainer.Run(ctx)
		return err
	})
}

// WarmIndex queues a full index rebuild, used at startup.
func (s *Service) WarmIndex() {
	if s.index == nil {
		return
	}
	s.queue.Enqueue("warm index", func(ctx context.Context) error {
		_, _, err := s.maintainer.SyncIndex(ctx, true)
		return err
	})
}

// ResumeWatching starts watching every tracked file that is still open.
func (s *Service) ResumeWatching(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	names, err := s.stores.Files.Open(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.watcher.Track(name); err != nil {
			s.logger.Debug("resume watching", "filename", name, "error", err)
		}
	}
	return nil
}

// Drain waits for all queued background work to finish.
func (s *Service) Drain(ctx context.Context) error {
	return s.queue.Drain(ctx)
}

// Health reports the state of the database, the index and the queue.
func (s *Service) Health(ctx context.Context) *models.HealthResponse {
	resp := &models.HealthResponse{
		Status: "ok",
		DB:     models.ServiceCheck{Status: "ok", Message: string(s.db.Mode())},
		Index:  models.ServiceCheck{Status: "disabled"},
		Queue:  s.queue.Stats(),
	}

	if err := s.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.DB = models.ServiceCheck{Status: "error", Message: err.Error()}
	} else if n, err := s.fingerprints.Count(ctx); err != nil {
		resp.Status = "degraded"
		resp.DB = models.ServiceCheck{Status: "error", Message: err.Error()}
	} else {
		resp.Fingerprints = n
	}

	if s.index != nil {
		resp.Index = models.ServiceCheck{Status: "ready", Message: s.index.Name()}
		if !s.index.Ready() {
			resp.Index.Status = "building"
		}
	}
	return resp
}

func (s *Service) enqueueFingerprint(contentType, contentID, text string) {
	s.queue.Enqueue("fingerprint "+contentType, func(ctx context.Context) error {
		return s.writer.Fingerprint(ctx, contentType, contentID, text)
	})
}

func (s *Service) enqueueIndex(path string, action models.FileAction) string {
	return s.queue.Enqueue("index file", func(ctx context.Context) error {
		_, err := s.indexer.IndexFile(ctx, path, action)
		return err
	})
}

// clean strips private spans from a required text field.
func clean(text, field string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", invalid("%s is required", field)
	}
	out, ok := privacy.Strip(text)
	if !ok {
		return "", invalid("%s is entirely private", field)
	}
	return out, nil
}

func checkImportance(imp models.Importance) error {
	if imp != "" && !imp.IsValid() {
		return invalid("importance must be low, medium, high or critical, got %q", imp)
	}
	return nil
}

func checkVector(v []float32) error {
	if len(v) == 0 {
		return invalid("vector must not be empty")
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return invalid("vector[%d] is not finite", i)
		}
	}
	return nil
}

func joinText(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}
