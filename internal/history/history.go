/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package history keeps a log of finished exports.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/clipdeck/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 50

// Store reads and writes export records.
type Store struct {
	db *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Record inserts rec, filling the id and timestamp when unset.
func (s *Store) Record(ctx context.Context, rec *models.ExportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert export record: %w", err)
	}
	return nil
}

// List returns the newest exports of subject. An empty subject lists all.
func (s *Store) List(ctx context.Context, subject string, limit int) ([]models.ExportRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = DefaultLimit
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	var records []models.ExportRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list export records: %w", err)
	}
	return records, nil
}

// Prune deletes records older than cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ExportRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune export records: %w", res.Error)
	}
	return res.RowsAffected, nil
}
