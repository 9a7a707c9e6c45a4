package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

// ProjectStore holds the long-term project records: milestones, decisions
// and requirements.
type ProjectStore struct {
	db *DB
}

func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) InsertMilestone(ctx context.Context, m *models.Milestone) error {
	m.CreatedAt = nowIfZero(m.CreatedAt)
	if m.Importance == "" {
		m.Importance = models.ImportanceMedium
	}
	id, err := insert(ctx, s.db,
		`INSERT INTO milestones (title, description, importance, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.Title, m.Description, m.Importance, m.Metadata, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert milestone: %w", err)
	}
	m.ID = id
	return nil
}

func (s *ProjectStore) InsertDecision(ctx context.Context, d *models.Decision) error {
	d.CreatedAt = nowIfZero(d.CreatedAt)
	if d.Importance == "" {
		d.Importance = models.ImportanceMedium
	}
	id, err := insert(ctx, s.db,
		`INSERT INTO decisions (title, content, reasoning, importance, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.Title, d.Content, d.Reasoning, d.Importance, d.Metadata, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	d.ID = id
	return nil
}

func (s *ProjectStore) InsertRequirement(ctx context.Context, r *models.Requirement) error {
	r.CreatedAt = nowIfZero(r.CreatedAt)
	if r.Importance == "" {
		r.Importance = models.ImportanceMedium
	}
	id, err := insert(ctx, s.db,
		`INSERT INTO requirements (title, content, importance, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.Title, r.Content, r.Importance, r.Metadata, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert requirement: %w", err)
	}
	r.ID = id
	return nil
}

// RecentMilestones returns up to limit milestones with importance at or
// above min, newest first.
func (s *ProjectStore) RecentMilestones(ctx context.Context, limit int, min models.Importance) ([]models.Milestone, error) {
	out, err := recentByImportance[models.Milestone](ctx, s.db,
		`SELECT id, title, description, importance, metadata, created_at FROM milestones`, limit, min)
	if err != nil {
		return nil, fmt.Errorf("recent milestones: %w", err)
	}
	return out, nil
}

func (s *ProjectStore) RecentDecisions(ctx context.Context, limit int, min models.Importance) ([]models.Decision, error) {
	out, err := recentByImportance[models.Decision](ctx, s.db,
		`SELECT id, title, content, reasoning, importance, metadata, created_at FROM decisions`, limit, min)
	if err != nil {
		return nil, fmt.Errorf("recent decisions: %w", err)
	}
	return out, nil
}

func (s *ProjectStore) RecentRequirements(ctx context.Context, limit int, min models.Importance) ([]models.Requirement, error) {
	out, err := recentByImportance[models.Requirement](ctx, s.db,
		`SELECT id, title, content, importance, metadata, created_at FROM requirements`, limit, min)
	if err != nil {
		return nil, fmt.Errorf("recent requirements: %w", err)
	}
	return out, nil
}

func recentByImportance[T any](ctx context.Context, db *DB, base string, limit int, min models.Importance) ([]T, error) {
	query, args, err := sqlx.In(base+` WHERE importance IN (?) ORDER BY created_at DESC, id DESC LIMIT ?`,
		models.ImportanceAtLeast(min), limit)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := db.SelectContext(ctx, &out, db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}
