package store

import (
	"context"
	"fmt"
	"time"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

const (
	codeFileColumns    = `id, path, language, size, last_indexed, created_at`
	codeSnippetColumns = `id, file_id, symbol_name, symbol_kind, start_line, end_line, content, language, created_at`
)

// MessageFilePrefix marks code files synthesized from code blocks in a
// stored message; the message ID follows the prefix.
const MessageFilePrefix = "message:"

// CodeStore holds indexed files and the snippets extracted from them.
type CodeStore struct {
	db *DB
}

func NewCodeStore(db *DB) *CodeStore {
	return &CodeStore{db: db}
}

// UpsertFile records path as indexed now, inserting it or refreshing its
// language and size.
func (s *CodeStore) UpsertFile(ctx context.Context, path, language string, size int64) (*models.CodeFile, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO code_files (path, language, size, last_indexed, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
		  language = excluded.language,
		  size = excluded.size,
		  last_indexed = excluded.last_indexed`,
		path, language, size, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert code file: %w", err)
	}
	f, err := s.GetFileByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("code file %s vanished after upsert", path)
	}
	return f, nil
}

// GetFileByPath returns the indexed file, or nil if the path was never indexed.
func (s *CodeStore) GetFileByPath(ctx context.Context, path string) (*models.CodeFile, error) {
	f, err := getOne[models.CodeFile](ctx, s.db, `SELECT `+codeFileColumns+` FROM code_files WHERE path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("get code file: %w", err)
	}
	return f, nil
}

func (s *CodeStore) GetFiles(ctx context.Context, ids []int64) ([]models.CodeFile, error) {
	out, err := selectIn[models.CodeFile](ctx, s.db, `SELECT `+codeFileColumns+` FROM code_files WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get code files: %w", err)
	}
	return out, nil
}

// ReplaceSnippets deletes every snippet of fileID and inserts snippets in
// one transaction. It sets the IDs of the new snippets and returns the IDs
// of the ones that were removed.
func (s *CodeStore) ReplaceSnippets(ctx context.Context, fileID int64, snippets []*models.CodeSnippet) ([]int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var old []int64
	if err := tx.SelectContext(ctx, &old, `SELECT id FROM code_snippets WHERE file_id = ?`, fileID); err != nil {
		return nil, fmt.Errorf("select old snippets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM code_snippets WHERE file_id = ?`, fileID); err != nil {
		return nil, fmt.Errorf("delete old snippets: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO code_snippets (file_id, symbol_name, symbol_kind, start_line, end_line, content, language, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare snippet insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, sn := range snippets {
		sn.FileID = fileID
		sn.CreatedAt = now
		res, err := stmt.ExecContext(ctx, fileID, sn.SymbolName, sn.SymbolKind, sn.StartLine, sn.EndLine, sn.Content, sn.Language, now)
		if err != nil {
			return nil, fmt.Errorf("insert snippet %s: %w", sn.SymbolName, err)
		}
		if sn.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("snippet id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return old, nil
}

// SnippetsForFile returns the snippets of fileID in source order.
func (s *CodeStore) SnippetsForFile(ctx context.Context, fileID int64) ([]models.CodeSnippet, error) {
	var out []models.CodeSnippet
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+codeSnippetColumns+` FROM code_snippets WHERE file_id = ? ORDER BY start_line, id`, fileID)
	if err != nil {
		return nil, fmt.Errorf("snippets for file: %w", err)
	}
	return out, nil
}

// SnippetsWithPaths returns the given snippets joined with their file path.
func (s *CodeStore) SnippetsWithPaths(ctx context.Context, ids []int64) ([]models.SnippetWithPath, error) {
	out, err := selectIn[models.SnippetWithPath](ctx, s.db, `
		SELECT s.id, s.file_id, s.symbol_name, s.symbol_kind, s.start_line, s.end_line,
		       s.content, s.language, s.created_at, f.path AS file_path
		FROM code_snippets s JOIN code_files f ON f.id = s.file_id
		WHERE s.id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("snippets with paths: %w", err)
	}
	return out, nil
}

// DeleteDetachedMessageFiles removes message-derived code files whose
// message is gone. Their snippets cascade with them.
func (s *CodeStore) DeleteDetachedMessageFiles(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM code_files
		WHERE path LIKE ? || '%'
		  AND NOT EXISTS (
		    SELECT 1 FROM messages m
		    WHERE CAST(m.id AS TEXT) = substr(code_files.path, ?)
		  )`, MessageFilePrefix, len(MessageFilePrefix)+1)
	if err != nil {
		return 0, fmt.Errorf("delete detached message files: %w", err)
	}
	return res.RowsAffected()
}
