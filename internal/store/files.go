package store

import (
	"context"
	"fmt"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

const activeFileColumns = `id, filename, action, importance, metadata, last_accessed`

type ActiveFileStore struct {
	db *DB
}

func NewActiveFileStore(db *DB) *ActiveFileStore {
	return &ActiveFileStore{db: db}
}

// Upsert inserts f or, if the filename is already tracked, overwrites its
// action, importance and timestamp. Metadata is only replaced when given.
// f.ID is set to the row's ID either way.
func (s *ActiveFileStore) Upsert(ctx context.Context, f *models.ActiveFile) error {
	f.LastAccessed = nowIfZero(f.LastAccessed)
	if f.Importance == "" {
		f.Importance = models.ImportanceMedium
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO active_files (filename, action, importance, metadata, last_accessed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
		  action = excluded.action,
		  importance = excluded.importance,
		  metadata = COALESCE(excluded.metadata, active_files.metadata),
		  last_accessed = excluded.last_accessed`,
		f.Filename, f.Action, f.Importance, f.Metadata, f.LastAccessed,
	)
	if err != nil {
		return fmt.Errorf("upsert active file: %w", err)
	}
	if err := s.db.GetContext(ctx, &f.ID, `SELECT id FROM active_files WHERE filename = ?`, f.Filename); err != nil {
		return fmt.Errorf("active file id: %w", err)
	}
	return nil
}

// Recent returns up to limit files, most recently touched first.
func (s *ActiveFileStore) Recent(ctx context.Context, limit int) ([]models.ActiveFile, error) {
	var out []models.ActiveFile
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+activeFileColumns+` FROM active_files ORDER BY last_accessed DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent active files: %w", err)
	}
	return out, nil
}

// GetByFilename returns the tracked file, or nil if it is not tracked.
func (s *ActiveFileStore) GetByFilename(ctx context.Context, filename string) (*models.ActiveFile, error) {
	f, err := getOne[models.ActiveFile](ctx, s.db,
		`SELECT `+activeFileColumns+` FROM active_files WHERE filename = ?`, filename)
	if err != nil {
		return nil, fmt.Errorf("get active file: %w", err)
	}
	return f, nil
}

func (s *ActiveFileStore) GetMany(ctx context.Context, ids []int64) ([]models.ActiveFile, error) {
	out, err := selectIn[models.ActiveFile](ctx, s.db, `SELECT `+activeFileColumns+` FROM active_files WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get active files: %w", err)
	}
	return out, nil
}

// Open returns the filenames whose last action was not a close.
func (s *ActiveFileStore) Open(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names,
		`SELECT filename FROM active_files WHERE action != ? ORDER BY last_accessed DESC`, models.FileActionClose)
	if err != nil {
		return nil, fmt.Errorf("open active files: %w", err)
	}
	return names, nil
}
