package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

// ownerTables maps the content types this service produces to the table
// holding the owning row. Fingerprints with other content types were stored
// by callers directly and have no owner to check.
var ownerTables = map[string]string{
	models.ContentTypeUserMessage:      "messages",
	models.ContentTypeAssistantMessage: "messages",
	models.ContentTypeActiveFile:       "active_files",
	models.ContentTypeMilestone:        "milestones",
	models.ContentTypeDecision:         "decisions",
	models.ContentTypeRequirement:      "requirements",
	models.ContentTypeEpisode:          "episodes",
	models.ContentTypeCodeFile:         "code_files",
	models.ContentTypeCodeSnippet:      "code_snippets",
}

// HasOwnerTable reports whether fingerprints of contentType are subject to
// orphan cleanup.
func HasOwnerTable(contentType string) bool {
	_, ok := ownerTables[contentType]
	return ok
}

// DeleteOrphans removes fingerprints whose owning row no longer exists and
// returns the removed fingerprint IDs.
func (s *FingerprintStore) DeleteOrphans(ctx context.Context) ([]int64, error) {
	byTable := make(map[string][]string)
	for ct, table := range ownerTables {
		byTable[table] = append(byTable[table], ct)
	}
	tables := make([]string, 0, len(byTable))
	for t := range byTable {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var orphans []int64
	for _, table := range tables {
		query, args, err := sqlx.In(
			`SELECT f.id FROM fingerprints f
			 WHERE f.content_type IN (?)
			   AND NOT EXISTS (SELECT 1 FROM `+table+` o WHERE CAST(o.id AS TEXT) = f.content_id)`,
			byTable[table],
		)
		if err != nil {
			return nil, fmt.Errorf("build orphan query: %w", err)
		}
		var ids []int64
		if err := tx.SelectContext(ctx, &ids, tx.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("find orphans in %s: %w", table, err)
		}
		orphans = append(orphans, ids...)
	}

	if err := deleteIDs(ctx, tx, orphans); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return orphans, nil
}

// CollapseDuplicates keeps only the newest fingerprint per
// (content_id, content_type) and returns the IDs of the removed ones.
// Newest means latest created_at, then highest ID.
func (s *FingerprintStore) CollapseDuplicates(ctx context.Context) ([]int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var stale []int64
	err = tx.SelectContext(ctx, &stale, `
		SELECT id FROM (
		  SELECT id, ROW_NUMBER() OVER (
		    PARTITION BY content_id, content_type
		    ORDER BY created_at DESC, id DESC
		  ) AS rn
		  FROM fingerprints
		) WHERE rn > 1
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("find duplicate fingerprints: %w", err)
	}

	if err := deleteIDs(ctx, tx, stale); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stale, nil
}
