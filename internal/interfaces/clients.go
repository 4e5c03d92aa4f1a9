// Package interfaces defines service contracts for Fundback
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/fundback/internal/models"
)

// EastmoneyClient provides access to the eastmoney fund data API
type EastmoneyClient interface {
	// GetNAVHistory retrieves the full NAV history for a fund, sorted by
	// date ascending.
	GetNAVHistory(ctx context.Context, code string, opts ...NAVOption) ([]models.NAVRecord, error)

	// GetFundFees retrieves the published fee schedule for a fund.
	GetFundFees(ctx context.Context, code string) (*models.FundFees, error)
}

// NAVOption configures NAV history requests
type NAVOption func(*NAVParams)

// NAVParams holds NAV history query parameters
type NAVParams struct {
	From    time.Time
	To      time.Time
	PerPage int
}

// WithDateRange sets the date range for the NAV history query
func WithDateRange(from, to time.Time) NAVOption {
	return func(p *NAVParams) {
		p.From = from
		p.To = to
	}
}

// WithPerPage sets the page size for the NAV history query
func WithPerPage(perPage int) NAVOption {
	return func(p *NAVParams) {
		p.PerPage = perPage
	}
}
