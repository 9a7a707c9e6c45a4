package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/iammorganparry/clive/apps/recall/internal/config"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
	"github.com/iammorganparry/clive/apps/recall/internal/search"
	"github.com/iammorganparry/clive/apps/recall/internal/store"
)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(config.StorageSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func putFingerprint(t *testing.T, fps *store.FingerprintStore, contentType, contentID string, vec []float32) int64 {
	t.Helper()
	id, err := fps.Store(context.Background(), &models.Fingerprint{
		ContentID:   contentID,
		ContentType: contentType,
		Vector:      search.Float32ToBytes(vec),
	})
	if err != nil {
		t.Fatalf("store fingerprint: %v", err)
	}
	return id
}

func TestOpen(t *testing.T) {
	t.Run("memory mode keeps separate databases", func(t *testing.T) {
		a, err := store.Open(config.StorageMemory, "")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer a.Close()
		b, err := store.Open(config.StorageMemory, "")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer b.Close()

		if err := store.NewMessageStore(a).Insert(context.Background(), &models.Message{Role: models.RoleUser, Content: "hi"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, err := store.NewMessageStore(b).Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected isolated database, got %d messages", len(got))
		}
		if a.Mode() != config.StorageMemory {
			t.Fatalf("expected memory mode, got %s", a.Mode())
		}
	})

	t.Run("unknown mode is a configuration error", func(t *testing.T) {
		_, err := store.Open("postgres", "x")
		var cfgErr *config.Error
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected config.Error, got %v", err)
		}
	})
}

func TestMessageStore(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ms := store.NewMessageStore(db)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		m := &models.Message{Role: models.RoleUser, Content: fmt.Sprintf("message %d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := ms.Insert(ctx, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if m.Importance != models.ImportanceMedium {
			t.Fatalf("expected default importance medium, got %s", m.Importance)
		}
	}

	t.Run("Recent is newest first", func(t *testing.T) {
		got, err := ms.Recent(ctx, 5)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("expected 5, got %d", len(got))
		}
		if got[0].Content != "message 19" || got[4].Content != "message 15" {
			t.Fatalf("unexpected order: %q .. %q", got[0].Content, got[4].Content)
		}
	})

	t.Run("equal timestamps tie-break on id", func(t *testing.T) {
		same := base.Add(time.Hour)
		first := &models.Message{Role: models.RoleAssistant, Content: "first", CreatedAt: same}
		second := &models.Message{Role: models.RoleAssistant, Content: "second", CreatedAt: same}
		ms.Insert(ctx, first)
		ms.Insert(ctx, second)

		got, err := ms.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if got[0].ID != second.ID || got[1].ID != first.ID {
			t.Fatalf("expected %d then %d, got %d then %d", second.ID, first.ID, got[0].ID, got[1].ID)
		}
	})

	t.Run("Delete missing message is not found", func(t *testing.T) {
		err := ms.Delete(ctx, 99999)
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestProjectStoreImportanceFloor(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	ps := store.NewProjectStore(db)

	for _, imp := range []models.Importance{models.ImportanceLow, models.ImportanceMedium, models.ImportanceHigh, models.ImportanceCritical} {
		if err := ps.InsertDecision(ctx, &models.Decision{Title: string(imp), Content: "c", Importance: imp}); err != nil {
			t.Fatalf("insert decision: %v", err)
		}
	}

	got, err := ps.RecentDecisions(ctx, 10, models.ImportanceMedium)
	if err != nil {
		t.Fatalf("recent decisions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 decisions at or above medium, got %d", len(got))
	}
	for _, d := range got {
		if d.Importance == models.ImportanceLow {
			t.Fatal("low importance decision leaked through the floor")
		}
	}
}

func TestActiveFileStore(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fs := store.NewActiveFileStore(db)

	f := &models.ActiveFile{Filename: "/src/a.go", Action: models.FileActionOpen, Metadata: models.Metadata{"branch": "main"}}
	if err := fs.Upsert(ctx, f); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	again := &models.ActiveFile{Filename: "/src/a.go", Action: models.FileActionClose}
	if err := fs.Upsert(ctx, again); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if again.ID != f.ID {
		t.Fatalf("expected same row, got %d and %d", f.ID, again.ID)
	}

	got, err := fs.GetByFilename(ctx, "/src/a.go")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Action != models.FileActionClose {
		t.Fatalf("expected close, got %s", got.Action)
	}
	if got.Metadata["branch"] != "main" {
		t.Fatalf("expected metadata kept, got %v", got.Metadata)
	}

	open, err := fs.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open files, got %v", open)
	}
}

func TestFingerprintStore(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fps := store.NewFingerprintStore(db)

	t.Run("Store sets dimensions and round-trips the vector", func(t *testing.T) {
		id := putFingerprint(t, fps, "custom", "a", []float32{0.5, -1, 2})
		got, err := fps.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Dimensions != 3 {
			t.Fatalf("expected 3 dimensions, got %d", got.Dimensions)
		}
		vec := search.BytesToFloat32(got.Vector)
		if vec[0] != 0.5 || vec[1] != -1 || vec[2] != 2 {
			t.Fatalf("unexpected vector %v", vec)
		}
	})

	t.Run("Update keeps metadata when nil", func(t *testing.T) {
		id, err := fps.Store(ctx, &models.Fingerprint{
			ContentID: "b", ContentType: "custom",
			Vector:   search.Float32ToBytes([]float32{1, 0}),
			Metadata: models.Metadata{"k": "v"},
		})
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		got, err := fps.Update(ctx, id, search.Float32ToBytes([]float32{0, 1, 0, 0}), nil)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Dimensions != 4 || got.Metadata["k"] != "v" {
			t.Fatalf("unexpected fingerprint after update: %+v", got)
		}
	})

	t.Run("Update and Delete of missing id are not found", func(t *testing.T) {
		if _, err := fps.Update(ctx, 424242, search.Float32ToBytes([]float32{1}), nil); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from update, got %v", err)
		}
		if err := fps.Delete(ctx, 424242); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from delete, got %v", err)
		}
	})

	t.Run("Scan filters by content type", func(t *testing.T) {
		putFingerprint(t, fps, "other", "c", []float32{1})
		got, err := fps.Scan(ctx, "other")
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if len(got) != 1 || got[0].ContentID != "c" {
			t.Fatalf("unexpected scan result %+v", got)
		}
	})

	t.Run("DeleteForContent removes every copy", func(t *testing.T) {
		putFingerprint(t, fps, "dup", "x", []float32{1})
		putFingerprint(t, fps, "dup", "x", []float32{1})
		ids, err := fps.DeleteForContent(ctx, "dup", []string{"x"})
		if err != nil {
			t.Fatalf("delete for content: %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("expected 2 removed, got %d", len(ids))
		}
	})
}

func TestMaintenanceQueries(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fps := store.NewFingerprintStore(db)
	ms := store.NewMessageStore(db)
	code := store.NewCodeStore(db)

	kept := &models.Message{Role: models.RoleUser, Content: "kept"}
	gone := &models.Message{Role: models.RoleUser, Content: "gone"}
	ms.Insert(ctx, kept)
	ms.Insert(ctx, gone)

	keptFP := putFingerprint(t, fps, models.ContentTypeUserMessage, fmt.Sprint(kept.ID), []float32{1, 0})
	goneFP := putFingerprint(t, fps, models.ContentTypeUserMessage, fmt.Sprint(gone.ID), []float32{0, 1})
	external := putFingerprint(t, fps, "external", "999", []float32{1, 1})

	file, err := code.UpsertFile(ctx, store.MessageFilePrefix+fmt.Sprint(gone.ID), "go", 10)
	if err != nil {
		t.Fatalf("upsert file: %v", err)
	}
	if _, err := code.ReplaceSnippets(ctx, file.ID, []*models.CodeSnippet{{SymbolName: "f", SymbolKind: "function", StartLine: 1, EndLine: 2, Content: "func f() {}", Language: "go"}}); err != nil {
		t.Fatalf("replace snippets: %v", err)
	}

	if err := ms.Delete(ctx, gone.ID); err != nil {
		t.Fatalf("delete message: %v", err)
	}

	t.Run("detached message files are removed with their snippets", func(t *testing.T) {
		n, err := code.DeleteDetachedMessageFiles(ctx)
		if err != nil {
			t.Fatalf("delete detached: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 detached file, got %d", n)
		}
		snippets, err := code.SnippetsForFile(ctx, file.ID)
		if err != nil {
			t.Fatalf("snippets: %v", err)
		}
		if len(snippets) != 0 {
			t.Fatalf("expected snippets to cascade, got %d", len(snippets))
		}
	})

	t.Run("orphans are removed and external fingerprints kept", func(t *testing.T) {
		removed, err := fps.DeleteOrphans(ctx)
		if err != nil {
			t.Fatalf("delete orphans: %v", err)
		}
		if len(removed) != 1 || removed[0] != goneFP {
			t.Fatalf("expected only %d removed, got %v", goneFP, removed)
		}
		for _, id := range []int64{keptFP, external} {
			fp, _ := fps.Get(ctx, id)
			if fp == nil {
				t.Fatalf("fingerprint %d should survive", id)
			}
		}
	})

	t.Run("duplicates collapse to the newest", func(t *testing.T) {
		newer := putFingerprint(t, fps, models.ContentTypeUserMessage, fmt.Sprint(kept.ID), []float32{0.5, 0.5})
		stale, err := fps.CollapseDuplicates(ctx)
		if err != nil {
			t.Fatalf("collapse: %v", err)
		}
		if len(stale) != 1 || stale[0] != keptFP {
			t.Fatalf("expected %d collapsed, got %v", keptFP, stale)
		}
		left, _ := fps.ForContent(ctx, models.ContentTypeUserMessage, fmt.Sprint(kept.ID))
		if len(left) != 1 || left[0].ID != newer {
			t.Fatalf("expected newest fingerprint %d to remain, got %+v", newer, left)
		}
	})
}
