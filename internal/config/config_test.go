package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDBURL(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		raw      string
		wantMode StorageMode
		wantPath string
		wantErr  bool
	}{
		{raw: "memory:", wantMode: StorageMemory},
		{raw: ":memory:", wantMode: StorageMemory},
		{raw: "file:/tmp/recall.db", wantMode: StorageSQLite, wantPath: "/tmp/recall.db"},
		{raw: "sqlite:///var/lib/recall.db", wantMode: StorageSQLite, wantPath: "/var/lib/recall.db"},
		{raw: "./data/recall.db", wantMode: StorageSQLite, wantPath: "./data/recall.db"},
		{raw: "~/recall.db", wantMode: StorageSQLite, wantPath: filepath.Join(home, "recall.db")},
		{raw: "C:/data/recall.db", wantMode: StorageSQLite, wantPath: "C:/data/recall.db"},
		{raw: "postgres://localhost/db", wantErr: true},
		{raw: "file:", wantErr: true},
		{raw: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			mode, path, err := ParseDBURL(tt.raw)
			if tt.wantErr {
				var cfgErr *Error
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected *Error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mode != tt.wantMode || path != tt.wantPath {
				t.Fatalf("got (%s, %q), want (%s, %q)", mode, path, tt.wantMode, tt.wantPath)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("RECALL_DB_URL", "memory:")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.StorageMode != StorageMemory {
			t.Fatalf("expected memory mode, got %s", cfg.StorageMode)
		}
		if cfg.SearchThreshold != DefaultSearchThreshold || cfg.RelevanceThreshold != DefaultRelevanceThreshold {
			t.Fatalf("unexpected thresholds %f, %f", cfg.SearchThreshold, cfg.RelevanceThreshold)
		}
		if cfg.SearchLimit != DefaultSearchLimit {
			t.Fatalf("expected default limit %d, got %d", DefaultSearchLimit, cfg.SearchLimit)
		}
	})

	t.Run("file then environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "recall.yaml")
		yaml := "db_url: \"memory:\"\nsearch_threshold: 0.4\nsearch_limit: 25\nindex_task_delay: 250ms\n"
		if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		t.Setenv("RECALL_CONFIG", path)
		t.Setenv("SEARCH_LIMIT", "7")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.SearchThreshold != 0.4 {
			t.Fatalf("expected threshold from file, got %f", cfg.SearchThreshold)
		}
		if cfg.SearchLimit != 7 {
			t.Fatalf("expected env to override the file, got %d", cfg.SearchLimit)
		}
		if cfg.IndexTaskDelay != 250*time.Millisecond {
			t.Fatalf("expected 250ms delay, got %s", cfg.IndexTaskDelay)
		}
	})

	invalid := []struct {
		key, value string
	}{
		{"SEARCH_THRESHOLD", "1.5"},
		{"INDEX_BACKEND", "faiss"},
		{"EMBEDDING_PROVIDER", "openai"},
		{"MAINTENANCE_SCHEDULE", "every tuesday"},
		{"PORT", "70000"},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.key, func(t *testing.T) {
			t.Setenv("RECALL_DB_URL", "memory:")
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if cfgErr.Key != tt.key {
				t.Fatalf("expected key %s, got %s", tt.key, cfgErr.Key)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Fatalf("error should name the key: %v", err)
			}
		})
	}
}
