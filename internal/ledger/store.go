// Package ledger is the storage layer for the shared image ledger. All
// reads and writes the rest of the system performs go through Store, and
// every write advances updated_at so the change feed observes it.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zyetaone/z-interact-sub000/internal/models"
)

// DefaultBatchLimit caps SelectSince result size when the caller does not
// supply a limit.
const DefaultBatchLimit = 100

// Store wraps a GORM connection with ledger-specific queries.
type Store struct {
	db *gorm.DB
}

// New returns a Store over the given connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn inside a database transaction, passing a Store bound
// to the transaction connection.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Insert writes a new ledger row. Timestamps are filled by GORM in epoch
// milliseconds.
func (s *Store) Insert(img *models.Image) error {
	if err := s.db.Create(img).Error; err != nil {
		return fmt.Errorf("ledger: insert: %w", err)
	}
	return nil
}

// SelectSince returns rows with updated_at strictly greater than since,
// ascending by updated_at. The strict inequality means callers must track
// the max updated_at they have seen, not the time they last asked.
func (s *Store) SelectSince(since int64, tableID string, limit int) ([]models.Image, error) {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	q := s.db.Where("updated_at > ?", since).Order("updated_at ASC").Limit(limit)
	if tableID != "" {
		q = q.Where("table_id = ?", tableID)
	}
	var images []models.Image
	if err := q.Find(&images).Error; err != nil {
		return nil, fmt.Errorf("ledger: select since %d: %w", since, err)
	}
	return images, nil
}

// SelectAll returns every ledger row, oldest first, optionally filtered to
// one table.
func (s *Store) SelectAll(tableID string) ([]models.Image, error) {
	q := s.db.Order("created_at ASC")
	if tableID != "" {
		q = q.Where("table_id = ?", tableID)
	}
	var images []models.Image
	if err := q.Find(&images).Error; err != nil {
		return nil, fmt.Errorf("ledger: select all: %w", err)
	}
	return images, nil
}

// Get returns one row by id, or nil when it does not exist.
func (s *Store) Get(id string) (*models.Image, error) {
	var img models.Image
	err := s.db.Where("id = ?", id).First(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get %s: %w", id, err)
	}
	return &img, nil
}

// LockedFor returns the locked row for a table, or nil when none exists.
func (s *Store) LockedFor(tableID string) (*models.Image, error) {
	var img models.Image
	err := s.db.Where("table_id = ? AND status = ?", tableID, models.StatusLocked).First(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: locked for %s: %w", tableID, err)
	}
	return &img, nil
}

// LatestFor returns the most recently touched row for a table, or nil when
// the table has none.
func (s *Store) LatestFor(tableID string) (*models.Image, error) {
	var img models.Image
	err := s.db.Where("table_id = ?", tableID).Order("updated_at DESC").First(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: latest for %s: %w", tableID, err)
	}
	return &img, nil
}

// UpdateByID applies patch to one row and returns the refreshed row.
// updated_at is always advanced, even when the patch would otherwise be a
// no-op, because the change feed keys off it.
func (s *Store) UpdateByID(id string, patch map[string]any) (*models.Image, error) {
	patch = withTouch(patch)
	res := s.db.Model(&models.Image{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return nil, fmt.Errorf("ledger: update %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.Get(id)
}

// UpdateByScope applies patch to every row belonging to a table.
func (s *Store) UpdateByScope(tableID string, patch map[string]any) (int64, error) {
	patch = withTouch(patch)
	res := s.db.Model(&models.Image{}).Where("table_id = ?", tableID).Updates(patch)
	if res.Error != nil {
		return 0, fmt.Errorf("ledger: update scope %s: %w", tableID, res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAll removes rows, optionally restricted to one table. This is the
// administrative clear; nothing else deletes ledger rows.
func (s *Store) DeleteAll(tableID string) (int64, error) {
	q := s.db.Where("1 = 1")
	if tableID != "" {
		q = s.db.Where("table_id = ?", tableID)
	}
	res := q.Delete(&models.Image{})
	if res.Error != nil {
		return 0, fmt.Errorf("ledger: delete all: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SweepStale fails generating rows untouched since the cutoff, so a crashed
// provider call cannot wedge a table forever. Returns the number of rows
// transitioned.
func (s *Store) SweepStale(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	patch := withTouch(map[string]any{
		"status":        models.StatusFailed,
		"error_message": "generation timed out",
	})
	res := s.db.Model(&models.Image{}).
		Where("status = ? AND updated_at < ?", models.StatusGenerating, cutoff).
		Updates(patch)
	if res.Error != nil {
		return 0, fmt.Errorf("ledger: sweep stale: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// withTouch copies patch with updated_at set to now, unless the caller
// already pinned it.
func withTouch(patch map[string]any) map[string]any {
	out := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		out[k] = v
	}
	if _, ok := out["updated_at"]; !ok {
		out["updated_at"] = time.Now().UnixMilli()
	}
	return out
}
