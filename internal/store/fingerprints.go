package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

const fingerprintColumns = `id, content_id, content_type, vector, dimensions, metadata, created_at`

// FingerprintStore persists fingerprint vectors as opaque BLOBs.
// It never deduplicates on write; see CollapseDuplicates.
type FingerprintStore struct {
	db *DB
}

func NewFingerprintStore(db *DB) *FingerprintStore {
	return &FingerprintStore{db: db}
}

// Store inserts fp and sets its ID, Dimensions and CreatedAt.
func (s *FingerprintStore) Store(ctx context.Context, fp *models.Fingerprint) (int64, error) {
	if fp.CreatedAt.IsZero() {
		fp.CreatedAt = time.Now().UTC()
	}
	fp.Dimensions = len(fp.Vector) / 4

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (content_id, content_type, vector, dimensions, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fp.ContentID, fp.ContentType, fp.Vector, fp.Dimensions, fp.Metadata, fp.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert fingerprint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("fingerprint id: %w", err)
	}
	fp.ID = id
	return id, nil
}

// Update replaces the vector of an existing fingerprint. A nil metadata
// keeps the stored metadata.
func (s *FingerprintStore) Update(ctx context.Context, id int64, vector []byte, metadata models.Metadata) (*models.Fingerprint, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fingerprints SET vector = ?, dimensions = ?, metadata = COALESCE(?, metadata) WHERE id = ?`,
		vector, len(vector)/4, metadata, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update fingerprint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update fingerprint: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("fingerprint %d: %w", id, ErrNotFound)
	}
	return s.Get(ctx, id)
}

// Delete removes a fingerprint by ID.
func (s *FingerprintStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete fingerprint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete fingerprint: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("fingerprint %d: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns a fingerprint by ID, or nil if it does not exist.
func (s *FingerprintStore) Get(ctx context.Context, id int64) (*models.Fingerprint, error) {
	var fp models.Fingerprint
	err := s.db.GetContext(ctx, &fp, `SELECT `+fingerprintColumns+` FROM fingerprints WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}
	return &fp, nil
}

// GetMany returns the fingerprints with the given IDs in ID order. Missing
// IDs are skipped.
func (s *FingerprintStore) GetMany(ctx context.Context, ids []int64) ([]models.Fingerprint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+fingerprintColumns+` FROM fingerprints WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("build fingerprint query: %w", err)
	}
	var out []models.Fingerprint
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get fingerprints: %w", err)
	}
	return out, nil
}

// Scan returns every fingerprint in storage order, optionally restricted
// to the given content types.
func (s *FingerprintStore) Scan(ctx context.Context, contentTypes ...string) ([]models.Fingerprint, error) {
	query := `SELECT ` + fingerprintColumns + ` FROM fingerprints`
	var args []any
	if len(contentTypes) > 0 {
		q, a, err := sqlx.In(query+` WHERE content_type IN (?)`, contentTypes)
		if err != nil {
			return nil, fmt.Errorf("build scan query: %w", err)
		}
		query, args = s.db.Rebind(q), a
	}
	query += ` ORDER BY id`

	var out []models.Fingerprint
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("scan fingerprints: %w", err)
	}
	return out, nil
}

// ForContent returns the fingerprints attached to one piece of content,
// newest first.
func (s *FingerprintStore) ForContent(ctx context.Context, contentType, contentID string) ([]models.Fingerprint, error) {
	var out []models.Fingerprint
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+fingerprintColumns+` FROM fingerprints
		 WHERE content_type = ? AND content_id = ?
		 ORDER BY created_at DESC, id DESC`,
		contentType, contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("fingerprints for content: %w", err)
	}
	return out, nil
}

// DeleteForContent removes all fingerprints of the given content and
// returns the IDs that were removed.
func (s *FingerprintStore) DeleteForContent(ctx context.Context, contentType string, contentIDs []string) ([]int64, error) {
	if len(contentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM fingerprints WHERE content_type = ? AND content_id IN (?)`, contentType, contentIDs)
	if err != nil {
		return nil, fmt.Errorf("build delete query: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var ids []int64
	if err := tx.SelectContext(ctx, &ids, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select content fingerprints: %w", err)
	}
	if err := deleteIDs(ctx, tx, ids); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// Count returns the number of stored fingerprints.
func (s *FingerprintStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM fingerprints`); err != nil {
		return 0, fmt.Errorf("count fingerprints: %w", err)
	}
	return n, nil
}

const deleteChunk = 500

func deleteIDs(ctx context.Context, tx *sqlx.Tx, ids []int64) error {
	for start := 0; start < len(ids); start += deleteChunk {
		end := min(start+deleteChunk, len(ids))
		query, args, err := sqlx.In(`DELETE FROM fingerprints WHERE id IN (?)`, ids[start:end])
		if err != nil {
			return fmt.Errorf("build delete query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("delete fingerprints: %w", err)
		}
	}
	return nil
}
