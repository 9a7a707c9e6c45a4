package memory_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/iammorganparry/clive/apps/recall/internal/config"
	"github.com/iammorganparry/clive/apps/recall/internal/embedding"
	"github.com/iammorganparry/clive/apps/recall/internal/indexer"
	"github.com/iammorganparry/clive/apps/recall/internal/memory"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
	"github.com/iammorganparry/clive/apps/recall/internal/search"
	"github.com/iammorganparry/clive/apps/recall/internal/store"
	"github.com/iammorganparry/clive/apps/recall/internal/vectorstore"
)

const testDims = 64

type testEnv struct {
	svc    *memory.Service
	db     *store.DB
	stores memory.Stores
	fps    *store.FingerprintStore
}

// setupService wires a full service over an in-memory database with the
// queue worker running. With withIndex a chromem index is attached and
// warmed.
func setupService(t *testing.T, withIndex bool) *testEnv {
	t.Helper()
	if !withIndex {
		return setupServiceWithIndex(t, nil)
	}
	idx, err := vectorstore.NewChromemIndex()
	if err != nil {
		t.Fatalf("chromem: %v", err)
	}
	return setupServiceWithIndex(t, idx)
}

func setupServiceWithIndex(t *testing.T, index vectorstore.Index) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	db, err := store.Open(config.StorageMemory, "")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	embedder := embedding.NewHashEmbedder(testDims)
	fps := store.NewFingerprintStore(db)
	code := store.NewCodeStore(db)
	stores := memory.Stores{
		Messages: store.NewMessageStore(db),
		Files:    store.NewActiveFileStore(db),
		Project:  store.NewProjectStore(db),
		Episodes: store.NewEpisodeStore(db),
		Code:     code,
	}

	writer := memory.NewFingerprints(fps, embedder, index, logger)
	searcher := search.NewSearcher(fps, index, config.DefaultSearchLimit, logger)
	assembler := memory.NewAssembler(stores, embedder, search.NewScorer(fps), searcher, memory.AssemblerOptions{
		Mode:               config.StorageMemory,
		RelevanceThreshold: config.DefaultRelevanceThreshold,
		SemanticThreshold:  config.DefaultSemanticThreshold,
		SemanticLimit:      config.DefaultSearchLimit,
	}, logger)
	maintainer := memory.NewMaintainer(fps, code, index, logger)
	ix := indexer.New(code, writer, indexer.Options{}, logger)
	queue := indexer.NewQueue(0, logger)

	svc := memory.NewService(db, stores, fps, writer, searcher, assembler, maintainer, ix, queue, index,
		memory.Options{SearchThreshold: config.DefaultSearchThreshold, SearchLimit: config.DefaultSearchLimit}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		queue.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	env := &testEnv{svc: svc, db: db, stores: stores, fps: fps}
	if index != nil {
		svc.WarmIndex()
		env.drain(t)
	}
	return env
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.svc.Drain(ctx); err != nil {
		t.Fatalf("drain queue: %v", err)
	}
}

func (e *testEnv) storeMessage(t *testing.T, role models.Role, content string) *models.Message {
	t.Helper()
	msg, err := e.svc.StoreMessage(context.Background(), &models.StoreMessageRequest{Role: role, Content: content})
	if err != nil {
		t.Fatalf("store message: %v", err)
	}
	return msg
}

func (e *testEnv) fingerprintsFor(t *testing.T, contentType string, id int64) []models.Fingerprint {
	t.Helper()
	fps, err := e.fps.ForContent(context.Background(), contentType, strconv.FormatInt(id, 10))
	if err != nil {
		t.Fatalf("fingerprints for %s %d: %v", contentType, id, err)
	}
	return fps
}

func TestStoreMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("fingerprints in the background", func(t *testing.T) {
		env := setupService(t, false)
		msg := env.storeMessage(t, models.RoleAssistant, "the cache is warmed at startup")
		env.drain(t)

		fps := env.fingerprintsFor(t, models.ContentTypeAssistantMessage, msg.ID)
		if len(fps) != 1 {
			t.Fatalf("expected 1 fingerprint, got %d", len(fps))
		}
		if fps[0].Dimensions != testDims {
			t.Errorf("expected %d dimensions, got %d", testDims, fps[0].Dimensions)
		}
	})

	t.Run("strips private spans", func(t *testing.T) {
		env := setupService(t, false)
		msg, err := env.svc.StoreMessage(ctx, &models.StoreMessageRequest{
			Role:     models.RoleUser,
			Content:  "deploy with <private>hunter2</private> tonight",
			Metadata: models.Metadata{"token": "<private>abc</private>", "branch": "main"},
		})
		if err != nil {
			t.Fatalf("store message: %v", err)
		}

		got, err := env.stores.Messages.Get(ctx, msg.ID)
		if err != nil {
			t.Fatalf("get message: %v", err)
		}
		if got.Content != "deploy with  tonight" {
			t.Errorf("unexpected content %q", got.Content)
		}
		if _, ok := got.Metadata["token"]; ok {
			t.Error("expected private metadata value to be dropped")
		}
		if got.Metadata["branch"] != "main" {
			t.Errorf("expected branch to survive, got %v", got.Metadata["branch"])
		}
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		env := setupService(t, false)
		cases := []struct {
			name string
			req  models.StoreMessageRequest
		}{
			{"bad role", models.StoreMessageRequest{Role: "system", Content: "hi"}},
			{"empty content", models.StoreMessageRequest{Role: models.RoleUser, Content: "  "}},
			{"only private", models.StoreMessageRequest{Role: models.RoleUser, Content: "<private>x</private>"}},
			{"bad importance", models.StoreMessageRequest{Role: models.RoleUser, Content: "hi", Importance: "urgent"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := env.svc.StoreMessage(ctx, &tc.req)
				if !errors.Is(err, memory.ErrInvalidArgument) {
					t.Fatalf("expected ErrInvalidArgument, got %v", err)
				}
			})
		}

		msgs, err := env.svc.RecentMessages(ctx, 0)
		if err != nil {
			t.Fatalf("recent messages: %v", err)
		}
		if len(msgs) != 0 {
			t.Errorf("expected nothing stored, got %d messages", len(msgs))
		}
	})
}

func TestCodeMessageIndexing(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, false)

	content := "Try this:\n```js\nfunction handleClick(event) {\n  return event;\n}\n\nclass Button {\n  render() { return 1; }\n}\n```\n"
	msg := env.storeMessage(t, models.RoleAssistant, content)
	env.drain(t)

	file, err := env.stores.Code.GetFileByPath(ctx, store.MessageFilePrefix+strconv.FormatInt(msg.ID, 10))
	if err != nil {
		t.Fatalf("get message code file: %v", err)
	}
	snippets, err := env.stores.Code.SnippetsForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("snippets: %v", err)
	}
	if len(snippets) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(snippets))
	}
	for _, sn := range snippets {
		if n := len(env.fingerprintsFor(t, models.ContentTypeCodeSnippet, sn.ID)); n != 1 {
			t.Errorf("snippet %s: expected 1 fingerprint, got %d", sn.SymbolName, n)
		}
	}
}

func TestTrackActiveFileIndexing(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, false)

	path := filepath.Join(t.TempDir(), "button.js")
	src := "function handleClick(event) {\n  return event;\n}\n\nclass Button {\n  render() { return 1; }\n}\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := env.svc.TrackActiveFile(ctx, &models.TrackFileRequest{Filename: path, Action: models.FileActionOpen}); err != nil {
		t.Fatalf("track file: %v", err)
	}
	env.drain(t)

	countSnippets := func() []models.CodeSnippet {
		t.Helper()
		file, err := env.stores.Code.GetFileByPath(ctx, path)
		if err != nil {
			t.Fatalf("get code file: %v", err)
		}
		snippets, err := env.stores.Code.SnippetsForFile(ctx, file.ID)
		if err != nil {
			t.Fatalf("snippets: %v", err)
		}
		return snippets
	}

	first := countSnippets()
	if len(first) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(first))
	}

	if _, err := env.svc.IndexFile(ctx, path); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	env.drain(t)

	second := countSnippets()
	if len(second) != 2 {
		t.Fatalf("expected 2 snippets after reindex, got %d", len(second))
	}
	for _, sn := range first {
		if n := len(env.fingerprintsFor(t, models.ContentTypeCodeSnippet, sn.ID)); n != 0 {
			t.Errorf("replaced snippet %d still has %d fingerprints", sn.ID, n)
		}
	}
	for _, sn := range second {
		if n := len(env.fingerprintsFor(t, models.ContentTypeCodeSnippet, sn.ID)); n != 1 {
			t.Errorf("snippet %d: expected 1 fingerprint, got %d", sn.ID, n)
		}
	}

	t.Run("rejects unknown action", func(t *testing.T) {
		_, err := env.svc.TrackActiveFile(ctx, &models.TrackFileRequest{Filename: path, Action: "rename"})
		if !errors.Is(err, memory.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestMaintenanceRemovesOrphans(t *testing.T) {
	for _, withIndex := range []bool{false, true} {
		t.Run(fmt.Sprintf("index=%v", withIndex), func(t *testing.T) {
			ctx := context.Background()
			env := setupService(t, withIndex)

			doomed := env.storeMessage(t, models.RoleUser, "this message will be deleted")
			kept := env.storeMessage(t, models.RoleUser, "this message stays")
			external, err := env.svc.StoreVector(ctx, &models.StoreVectorRequest{
				ContentID:   "doc-1",
				ContentType: "document",
				Vector:      []float32{1, 0, 0},
			})
			if err != nil {
				t.Fatalf("store vector: %v", err)
			}
			env.drain(t)

			if n := len(env.fingerprintsFor(t, models.ContentTypeUserMessage, doomed.ID)); n != 1 {
				t.Fatalf("expected doomed message fingerprint, got %d", n)
			}
			if err := env.svc.DeleteMessage(ctx, doomed.ID); err != nil {
				t.Fatalf("delete message: %v", err)
			}

			report, err := env.svc.RunMaintenance(ctx)
			if err != nil {
				t.Fatalf("run maintenance: %v", err)
			}
			if report.OrphansRemoved != 1 {
				t.Errorf("expected 1 orphan removed, got %d", report.OrphansRemoved)
			}
			if len(report.Errors) != 0 {
				t.Errorf("unexpected maintenance errors: %v", report.Errors)
			}
			if n := len(env.fingerprintsFor(t, models.ContentTypeUserMessage, doomed.ID)); n != 0 {
				t.Errorf("orphaned fingerprint survived: %d", n)
			}
			if n := len(env.fingerprintsFor(t, models.ContentTypeUserMessage, kept.ID)); n != 1 {
				t.Errorf("expected kept message fingerprint, got %d", n)
			}
			fp, err := env.fps.Get(ctx, external.ID)
			if err != nil {
				t.Fatalf("get external fingerprint: %v", err)
			}
			if fp == nil {
				t.Fatal("external fingerprint removed")
			}
			if got := search.BytesToFloat32(fp.Vector); len(got) != 3 || got[0] != 1 || got[1] != 0 || got[2] != 0 {
				t.Errorf("external fingerprint changed: %v", got)
			}
			if withIndex && report.IndexedVectors != 2 {
				t.Errorf("expected 2 indexed vectors, got %d", report.IndexedVectors)
			}
		})
	}
}

func TestRunMaintenanceAborted(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	db, err := store.Open(config.StorageMemory, "")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fps := store.NewFingerprintStore(db)
	queue := indexer.NewQueue(0, logger)
	// A maintainer without stores panics on its first step.
	svc := memory.NewService(db, memory.Stores{}, fps, nil, nil, nil,
		memory.NewMaintainer(nil, nil, nil, logger), nil, queue, nil, memory.Options{}, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		queue.Run(runCtx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	report, err := svc.RunMaintenance(ctx)
	if err == nil || report != nil {
		t.Fatalf("expected an aborted pass, got %+v (%v)", report, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("maintenance caller waited for its deadline")
	}
}

// brokenIndex is a chromem index whose writes fail once broken is set.
type brokenIndex struct {
	*vectorstore.ChromemIndex
	broken bool
}

func (b *brokenIndex) Upsert(ctx context.Context, e vectorstore.Entry) error {
	if b.broken {
		return errors.New("index unavailable")
	}
	return b.ChromemIndex.Upsert(ctx, e)
}

func TestFailedMirrorFallsBackToLinear(t *testing.T) {
	ctx := context.Background()
	chromemIdx, err := vectorstore.NewChromemIndex()
	if err != nil {
		t.Fatalf("chromem: %v", err)
	}
	idx := &brokenIndex{ChromemIndex: chromemIdx}
	env := setupServiceWithIndex(t, idx)
	if !idx.Ready() {
		t.Fatal("expected the index to be warmed")
	}

	idx.broken = true
	if _, err := env.svc.StoreVector(ctx, &models.StoreVectorRequest{
		ContentID: "x", ContentType: "note", Vector: []float32{1, 0, 0},
	}); err != nil {
		t.Fatalf("store vector: %v", err)
	}
	if idx.Ready() {
		t.Fatal("expected a failed mirror to take the index out of service")
	}

	threshold := 0.7
	matches, err := env.svc.SearchVectors(ctx, &models.SearchVectorsRequest{Vector: []float32{1, 0, 0}, Threshold: &threshold})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].ContentID != "x" {
		t.Fatalf("expected the stored vector from the linear scan, got %+v", matches)
	}

	idx.broken = false
	report, err := env.svc.RunMaintenance(ctx)
	if err != nil {
		t.Fatalf("run maintenance: %v", err)
	}
	if !report.IndexRebuilt || !idx.Ready() {
		t.Fatalf("expected maintenance to rebuild the index, got %+v", report)
	}
	matches, err = env.svc.SearchVectors(ctx, &models.SearchVectorsRequest{Vector: []float32{1, 0, 0}, Threshold: &threshold})
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected 1 match after rebuild, got %+v (%v)", matches, err)
	}
}

func TestDeleteMessageNotFound(t *testing.T) {
	env := setupService(t, false)
	if err := env.svc.DeleteMessage(context.Background(), 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVectorOperations(t *testing.T) {
	ctx := context.Background()
	env := setupService(t, true)

	stored, err := env.svc.StoreVector(ctx, &models.StoreVectorRequest{
		ContentID:   "a",
		ContentType: "note",
		Vector:      []float32{1, 0, 0},
		Metadata:    models.Metadata{"source": "test"},
	})
	if err != nil {
		t.Fatalf("store vector: %v", err)
	}
	if stored.Dimensions != 3 || stored.ContentID != "a" {
		t.Fatalf("unexpected stored vector %+v", stored)
	}
	if _, err := env.svc.StoreVector(ctx, &models.StoreVectorRequest{
		ContentID: "b", ContentType: "note", Vector: []float32{0, 1, 0},
	}); err != nil {
		t.Fatalf("store vector: %v", err)
	}

	t.Run("search", func(t *testing.T) {
		matches, err := env.svc.SearchVectors(ctx, &models.SearchVectorsRequest{Vector: []float32{1, 0.1, 0}})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(matches) != 1 || matches[0].ContentID != "a" {
			t.Fatalf("expected only a above the default threshold, got %+v", matches)
		}
		if matches[0].Metadata["source"] != "test" {
			t.Errorf("expected metadata on match, got %v", matches[0].Metadata)
		}
	})

	t.Run("search with explicit threshold", func(t *testing.T) {
		zero := 0.0
		matches, err := env.svc.SearchVectors(ctx, &models.SearchVectorsRequest{
			Vector: []float32{1, 0.1, 0}, Threshold: &zero, Limit: 5,
		})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(matches) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(matches))
		}
		if matches[0].Similarity < matches[1].Similarity {
			t.Errorf("results not sorted: %v then %v", matches[0].Similarity, matches[1].Similarity)
		}
	})

	t.Run("update", func(t *testing.T) {
		updated, err := env.svc.UpdateVector(ctx, stored.ID, &models.UpdateVectorRequest{Vector: []float32{0, 0, 1, 0}})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if !updated.Updated || updated.Dimensions != 4 {
			t.Fatalf("unexpected update result %+v", updated)
		}
		fp, err := env.fps.Get(ctx, stored.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if fp.Metadata["source"] != "test" {
			t.Errorf("expected metadata kept when not supplied, got %v", fp.Metadata)
		}
	})

	t.Run("delete", func(t *testing.T) {
		deleted, err := env.svc.DeleteVector(ctx, stored.ID)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if !deleted.Deleted {
			t.Errorf("expected deleted=true")
		}
		fp, err := env.fps.Get(ctx, stored.ID)
		if err != nil || fp != nil {
			t.Errorf("expected no fingerprint after delete, got %+v (%v)", fp, err)
		}
		if _, err := env.svc.DeleteVector(ctx, stored.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("second delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing ids", func(t *testing.T) {
		if _, err := env.svc.UpdateVector(ctx, 9999, &models.UpdateVectorRequest{Vector: []float32{1}}); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("update: expected ErrNotFound, got %v", err)
		}
		if _, err := env.svc.DeleteVector(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("invalid requests", func(t *testing.T) {
		tooHigh := 1.5
		nan := float32(0)
		nan = nan / nan
		cases := []struct {
			name string
			call func() error
		}{
			{"store without content id", func() error {
				_, err := env.svc.StoreVector(ctx, &models.StoreVectorRequest{ContentType: "note", Vector: []float32{1}})
				return err
			}},
			{"store empty vector", func() error {
				_, err := env.svc.StoreVector(ctx, &models.StoreVectorRequest{ContentID: "x", ContentType: "note"})
				return err
			}},
			{"store NaN", func() error {
				_, err := env.svc.StoreVector(ctx, &models.StoreVectorRequest{ContentID: "x", ContentType: "note", Vector: []float32{nan}})
				return err
			}},
			{"search threshold out of range", func() error {
				_, err := env.svc.SearchVectors(ctx, &models.SearchVectorsRequest{Vector: []float32{1}, Threshold: &tooHigh})
				return err
			}},
			{"update empty vector", func() error {
				_, err := env.svc.UpdateVector(ctx, 1, &models.UpdateVectorRequest{})
				return err
			}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if err := tc.call(); !errors.Is(err, memory.ErrInvalidArgument) {
					t.Fatalf("expected ErrInvalidArgument, got %v", err)
				}
			})
		}
	})
}

func TestHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("without index", func(t *testing.T) {
		env := setupService(t, false)
		env.storeMessage(t, models.RoleUser, "hello")
		env.drain(t)

		h := env.svc.Health(ctx)
		if h.Status != "ok" || h.DB.Status != "ok" {
			t.Fatalf("expected healthy service, got %+v", h)
		}
		if h.DB.Message != string(config.StorageMemory) {
			t.Errorf("expected memory mode, got %q", h.DB.Message)
		}
		if h.Index.Status != "disabled" {
			t.Errorf("expected disabled index, got %q", h.Index.Status)
		}
		if h.Fingerprints != 1 {
			t.Errorf("expected 1 fingerprint, got %d", h.Fingerprints)
		}
		if h.Queue.Processed < 1 {
			t.Errorf("expected processed tasks, got %+v", h.Queue)
		}
	})

	t.Run("with index", func(t *testing.T) {
		env := setupService(t, true)
		if h := env.svc.Health(ctx); h.Index.Status != "ready" || h.Index.Message != "chromem" {
			t.Errorf("expected ready chromem index, got %+v", h.Index)
		}
	})

	t.Run("closed database", func(t *testing.T) {
		env := setupService(t, false)
		env.db.Close()
		if h := env.svc.Health(ctx); h.Status != "degraded" || h.DB.Status != "error" {
			t.Errorf("expected degraded health, got %+v", h)
		}
	})
}
