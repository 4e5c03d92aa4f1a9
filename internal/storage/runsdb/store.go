// Package runsdb implements the backtest run index using BadgerHold.
package runsdb

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/fundback/internal/common"
	"github.com/bobmcallan/fundback/internal/interfaces"
	"github.com/bobmcallan/fundback/internal/models"
)

// Store implements interfaces.RunStore using BadgerHold.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

var _ interfaces.RunStore = (*Store)(nil)

// NewStore creates a new run index backed by BadgerHold.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run index path %s: %w", path, err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open run index at %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("Run index opened")
	return &Store{db: db, logger: logger}, nil
}

// SaveRun persists a run record.
func (s *Store) SaveRun(_ context.Context, run *models.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run record has no ID")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if err := s.db.Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run '%s': %w", run.ID, err)
	}
	s.logger.Debug().Str("run_id", run.ID).Msg("Run record saved")
	return nil
}

// GetRun retrieves a run record by ID.
func (s *Store) GetRun(_ context.Context, id string) (*models.RunRecord, error) {
	var run models.RunRecord
	if err := s.db.Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run '%s' not found", id)
		}
		return nil, fmt.Errorf("failed to get run '%s': %w", id, err)
	}
	return &run, nil
}

// ListRuns returns run records newest first, up to limit (0 = all).
func (s *Store) ListRuns(_ context.Context, limit int) ([]*models.RunRecord, error) {
	var runs []models.RunRecord
	if err := s.db.Find(&runs, nil); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	result := make([]*models.RunRecord, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

// DeleteRun removes a run record. Deleting a missing ID is not an error.
func (s *Store) DeleteRun(_ context.Context, id string) error {
	if err := s.db.Delete(id, models.RunRecord{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete run '%s': %w", id, err)
	}
	s.logger.Debug().Str("run_id", id).Msg("Run record deleted")
	return nil
}

// Close shuts down the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
