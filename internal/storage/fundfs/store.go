// Package fundfs implements file-based storage for fund NAV history and
// fee schedules, one JSON file per fund.
package fundfs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/fundback/internal/common"
	"github.com/bobmcallan/fundback/internal/interfaces"
	"github.com/bobmcallan/fundback/internal/models"
)

// Store provides file-based JSON storage for fund data. Writes are atomic:
// content goes to a temp file in the target directory, then renames over
// the destination.
type Store struct {
	basePath string
	fundsDir string
	feesDir  string
	logger   *common.Logger
}

var _ interfaces.FundStore = (*Store)(nil)

// NewFundStore creates a new fund file store rooted at path.
func NewFundStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create fund store path %s: %w", path, err)
	}
	fundsDir := filepath.Join(path, "nav")
	feesDir := filepath.Join(path, "fees")
	os.MkdirAll(fundsDir, 0755)
	os.MkdirAll(feesDir, 0755)

	logger.Info().Str("path", path).Msg("FundFS store opened")
	return &Store{
		basePath: path,
		fundsDir: fundsDir,
		feesDir:  feesDir,
		logger:   logger,
	}, nil
}

// DataPath returns the base data path.
func (s *Store) DataPath() string {
	return s.basePath
}

// GetFund retrieves the cached NAV history for a fund code.
func (s *Store) GetFund(_ context.Context, code string) (*models.FundData, error) {
	var data models.FundData
	if err := readJSON(s.fundsDir, code, &data); err != nil {
		return nil, fmt.Errorf("fund data for '%s' not found", code)
	}
	return &data, nil
}

// SaveFund persists a fund's NAV history.
func (s *Store) SaveFund(_ context.Context, data *models.FundData) error {
	data.LastUpdated = time.Now()
	if err := writeJSON(s.fundsDir, data.Code, data); err != nil {
		return fmt.Errorf("failed to save fund data: %w", err)
	}
	s.logger.Debug().Str("code", data.Code).Int("records", len(data.Records)).Msg("Fund data saved")
	return nil
}

// HasFund reports whether a cached history exists for the code.
func (s *Store) HasFund(_ context.Context, code string) bool {
	_, err := os.Stat(filePath(s.fundsDir, code))
	return err == nil
}

// ListFunds returns all cached fund codes.
func (s *Store) ListFunds(_ context.Context) ([]string, error) {
	return listKeys(s.fundsDir)
}

// GetFees retrieves the cached fee schedule for a fund code.
func (s *Store) GetFees(_ context.Context, code string) (*models.FundFees, error) {
	var fees models.FundFees
	if err := readJSON(s.feesDir, code, &fees); err != nil {
		return nil, fmt.Errorf("fee data for '%s' not found", code)
	}
	return &fees, nil
}

// SaveFees persists a fund's fee schedule.
func (s *Store) SaveFees(_ context.Context, fees *models.FundFees) error {
	if err := writeJSON(s.feesDir, fees.Code, fees); err != nil {
		return fmt.Errorf("failed to save fee data: %w", err)
	}
	s.logger.Debug().Str("code", fees.Code).Msg("Fee data saved")
	return nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// --- helpers ---

func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}

func filePath(dir, key string) string {
	return filepath.Join(dir, sanitizeKey(key)+".json")
}

func readJSON(dir, key string, dest interface{}) error {
	path := filePath(dir, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("'%s' not found", key)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("'%s' is empty", key)
	}
	return json.Unmarshal(data, dest)
}

func writeJSON(dir, key string, data interface{}) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	target := filePath(dir, key)
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	jsonData = append(jsonData, '\n')

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(jsonData); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func listKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".tmp-") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	return keys, nil
}
