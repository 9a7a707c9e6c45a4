package store

import (
	"context"
	"fmt"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

const messageColumns = `id, role, content, importance, metadata, created_at`

type MessageStore struct {
	db *DB
}

func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

// Insert stores m and sets its ID. A zero CreatedAt is set to now.
func (s *MessageStore) Insert(ctx context.Context, m *models.Message) error {
	m.CreatedAt = nowIfZero(m.CreatedAt)
	if m.Importance == "" {
		m.Importance = models.ImportanceMedium
	}
	id, err := insert(ctx, s.db,
		`INSERT INTO messages (role, content, importance, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.Role, m.Content, m.Importance, m.Metadata, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	m.ID = id
	return nil
}

// Recent returns up to limit messages, newest first.
func (s *MessageStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	var out []models.Message
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+messageColumns+` FROM messages ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return out, nil
}

// Get returns a message by ID, or nil if it does not exist.
func (s *MessageStore) Get(ctx context.Context, id int64) (*models.Message, error) {
	m, err := getOne[models.Message](ctx, s.db, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (s *MessageStore) GetMany(ctx context.Context, ids []int64) ([]models.Message, error) {
	out, err := selectIn[models.Message](ctx, s.db, `SELECT `+messageColumns+` FROM messages WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return out, nil
}

// Delete removes a message. Its fingerprints are left for maintenance.
func (s *MessageStore) Delete(ctx context.Context, id int64) error {
	return deleteRow(ctx, s.db, "messages", id)
}
