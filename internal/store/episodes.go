package store

import (
	"context"
	"fmt"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

type EpisodeStore struct {
	db *DB
}

func NewEpisodeStore(db *DB) *EpisodeStore {
	return &EpisodeStore{db: db}
}

// Insert appends e to the episode log. Episodes default to low importance.
func (s *EpisodeStore) Insert(ctx context.Context, e *models.Episode) error {
	e.CreatedAt = nowIfZero(e.CreatedAt)
	if e.Importance == "" {
		e.Importance = models.ImportanceLow
	}
	id, err := insert(ctx, s.db,
		`INSERT INTO episodes (actor, action, content, context, importance, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Actor, e.Action, e.Content, e.Context, e.Importance, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	e.ID = id
	return nil
}

func (s *EpisodeStore) Recent(ctx context.Context, limit int) ([]models.Episode, error) {
	var out []models.Episode
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, actor, action, content, context, importance, metadata, created_at
		 FROM episodes ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent episodes: %w", err)
	}
	return out, nil
}
