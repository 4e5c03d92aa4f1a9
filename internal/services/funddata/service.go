// Package funddata loads fund NAV histories and serves them to the backtest
// engine as in-memory lookups.
package funddata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bobmcallan/fundback/internal/backtest"
	"github.com/bobmcallan/fundback/internal/common"
	"github.com/bobmcallan/fundback/internal/interfaces"
	"github.com/bobmcallan/fundback/internal/models"
)

var _ backtest.MarketData = (*Service)(nil)

// purchaseBlockedMarkers are status substrings that close a fund to new
// purchases. An empty status cell counts as open.
var purchaseBlockedMarkers = []string{"暂停", "封闭", "限制"}

const dateKeyFormat = "2006-01-02"

// fundIndex is one fund's history indexed for O(1) date lookups.
type fundIndex struct {
	data   *models.FundData
	byDate map[string]*models.NAVRecord
	dates  []time.Time // ascending
}

// Service loads fund data through the store-then-client chain and answers
// the engine's market data queries from memory. Loading happens up front;
// the query methods never touch the network or disk.
type Service struct {
	store  interfaces.FundStore
	client interfaces.EastmoneyClient
	logger *common.Logger

	funds map[string]*fundIndex
}

// NewService creates a fund data service.
func NewService(store interfaces.FundStore, client interfaces.EastmoneyClient, logger *common.Logger) *Service {
	return &Service{
		store:  store,
		client: client,
		logger: logger,
		funds:  make(map[string]*fundIndex),
	}
}

// LoadFunds ensures every code's history is resident in memory: already
// loaded funds are kept, cached funds are read from the store, and the rest
// are downloaded and cached. force re-downloads even when cached.
func (s *Service) LoadFunds(ctx context.Context, codes []string, force bool) error {
	for _, code := range codes {
		if !force {
			if _, ok := s.funds[code]; ok {
				continue
			}
		}
		if err := s.loadFund(ctx, code, force); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) loadFund(ctx context.Context, code string, force bool) error {
	if !force && s.store.HasFund(ctx, code) {
		data, err := s.store.GetFund(ctx, code)
		if err == nil {
			s.logger.Debug().
				Str("code", code).
				Int("records", len(data.Records)).
				Msg("Fund data loaded from cache")
			s.index(data)
			return nil
		}
		s.logger.Warn().Err(err).Str("code", code).Msg("Cached fund data unreadable, re-downloading")
	}

	records, err := s.client.GetNAVHistory(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to download fund %s: %w", code, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("fund %s has no NAV history", code)
	}

	data := &models.FundData{Code: code, Records: records}
	if err := s.store.SaveFund(ctx, data); err != nil {
		s.logger.Warn().Err(err).Str("code", code).Msg("Failed to cache fund data")
	}
	s.index(data)
	return nil
}

// index builds the per-date lookup for one fund. Records are assumed
// ascending; duplicates keep the last occurrence.
func (s *Service) index(data *models.FundData) {
	idx := &fundIndex{
		data:   data,
		byDate: make(map[string]*models.NAVRecord, len(data.Records)),
	}
	for i := range data.Records {
		record := &data.Records[i]
		key := record.Date.Format(dateKeyFormat)
		if _, seen := idx.byDate[key]; !seen {
			idx.dates = append(idx.dates, record.Date)
		}
		idx.byDate[key] = record
	}
	sort.Slice(idx.dates, func(i, j int) bool { return idx.dates[i].Before(idx.dates[j]) })
	s.funds[data.Code] = idx
}

// Fund returns the loaded history for a code, or nil if not loaded.
func (s *Service) Fund(code string) *models.FundData {
	if idx, ok := s.funds[code]; ok {
		return idx.data
	}
	return nil
}

// AlignedTradingDays returns the dates on which every given fund has a
// valuation, ascending. All codes must have been loaded.
func (s *Service) AlignedTradingDays(codes []string) ([]time.Time, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("no fund codes given")
	}

	var base *fundIndex
	for _, code := range codes {
		idx, ok := s.funds[code]
		if !ok {
			return nil, fmt.Errorf("fund %s is not loaded", code)
		}
		if base == nil || len(idx.dates) < len(base.dates) {
			base = idx
		}
	}

	var aligned []time.Time
	for _, date := range base.dates {
		key := date.Format(dateKeyFormat)
		shared := true
		for _, code := range codes {
			if _, ok := s.funds[code].byDate[key]; !ok {
				shared = false
				break
			}
		}
		if shared {
			aligned = append(aligned, date)
		}
	}
	return aligned, nil
}

// NAVOn returns the unit NAV for one fund on one date. ok is false when the
// fund has no record that day or the published NAV is non-positive.
func (s *Service) NAVOn(code string, date time.Time) (float64, bool) {
	idx, ok := s.funds[code]
	if !ok {
		return 0, false
	}
	record, ok := idx.byDate[date.Format(dateKeyFormat)]
	if !ok || record.UnitNAV <= 0 {
		return 0, false
	}
	return record.UnitNAV, true
}

// DividendOn returns the parsed distribution entry for one fund on one date.
func (s *Service) DividendOn(code string, date time.Time) (*models.Dividend, bool) {
	idx, ok := s.funds[code]
	if !ok {
		return nil, false
	}
	record, ok := idx.byDate[date.Format(dateKeyFormat)]
	if !ok {
		return nil, false
	}
	div := models.ParseDividend(record.DividendRaw)
	if div == nil {
		return nil, false
	}
	return div, true
}

// PurchaseGate reports whether every given fund accepts new purchases on
// date. A fund with no record that day counts as blocked; an empty status
// cell counts as open.
func (s *Service) PurchaseGate(codes []string, date time.Time) (bool, []string) {
	key := date.Format(dateKeyFormat)
	var blocked []string
	for _, code := range codes {
		idx, ok := s.funds[code]
		if !ok {
			blocked = append(blocked, code+": not loaded")
			continue
		}
		record, ok := idx.byDate[key]
		if !ok {
			blocked = append(blocked, code+": no valuation")
			continue
		}
		if marker := blockedMarker(record.PurchaseStatus); marker != "" {
			blocked = append(blocked, code+": "+record.PurchaseStatus)
		}
	}
	return len(blocked) == 0, blocked
}

func blockedMarker(status string) string {
	for _, marker := range purchaseBlockedMarkers {
		if strings.Contains(status, marker) {
			return marker
		}
	}
	return ""
}

// LoadFundData injects an already-built history, bypassing store and
// client. Used by tests and offline tooling.
func (s *Service) LoadFundData(data *models.FundData) {
	s.index(data)
}
