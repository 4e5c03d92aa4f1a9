package interfaces

import (
	"context"

	"github.com/bobmcallan/fundback/internal/models"
)

// FundStore handles fund NAV history and fee persistence
type FundStore interface {
	// GetFund retrieves the cached NAV history for a fund code
	GetFund(ctx context.Context, code string) (*models.FundData, error)

	// SaveFund persists a fund's NAV history
	SaveFund(ctx context.Context, data *models.FundData) error

	// HasFund reports whether a cached history exists for the code
	HasFund(ctx context.Context, code string) bool

	// ListFunds returns all cached fund codes
	ListFunds(ctx context.Context) ([]string, error)

	// GetFees retrieves the cached fee schedule for a fund code
	GetFees(ctx context.Context, code string) (*models.FundFees, error)

	// SaveFees persists a fund's fee schedule
	SaveFees(ctx context.Context, fees *models.FundFees) error
}

// RunStore manages the persisted backtest run index
type RunStore interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)

	// ListRuns returns run records newest first, up to limit (0 = all).
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)

	DeleteRun(ctx context.Context, id string) error
	Close() error
}
