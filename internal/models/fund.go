// Package models defines data structures for Fundback
package models

import (
	"regexp"
	"strconv"
	"time"
)

// FundCodePattern matches a valid open-end fund code (6 digits).
var FundCodePattern = regexp.MustCompile(`^\d{6}$`)

// NAVRecord is one day's published valuation row for a fund, as served by
// the eastmoney F10 history table.
type NAVRecord struct {
	Date           time.Time `json:"date"`
	UnitNAV        float64   `json:"unit_nav"`
	CumulativeNAV  float64   `json:"cumulative_nav"`
	DailyGrowthPct float64   `json:"daily_growth_pct"`
	PurchaseStatus string    `json:"purchase_status,omitempty"`
	RedeemStatus   string    `json:"redeem_status,omitempty"`
	DividendRaw    string    `json:"dividend,omitempty"`
}

// FundData holds the full NAV history for one fund.
// Records are sorted by date ascending.
type FundData struct {
	Code        string      `json:"code"`
	Records     []NAVRecord `json:"records"`
	LastUpdated time.Time   `json:"last_updated"`
}

// DateRange returns the first and last record dates, or zero times if empty.
func (f *FundData) DateRange() (time.Time, time.Time) {
	if len(f.Records) == 0 {
		return time.Time{}, time.Time{}
	}
	return f.Records[0].Date, f.Records[len(f.Records)-1].Date
}

// DividendKind discriminates parsed dividend entries.
type DividendKind string

const (
	DividendCash    DividendKind = "cash"
	DividendShare   DividendKind = "share"
	DividendUnknown DividendKind = "unknown"
)

// Dividend is a parsed distribution announcement for one fund on one date.
// Only cash dividends are reinvested by the backtest; share and unknown
// kinds are carried as data.
type Dividend struct {
	Kind    DividendKind `json:"kind"`
	PerUnit float64      `json:"per_unit"`
	Raw     string       `json:"raw"`
}

var (
	cashDividendPattern  = regexp.MustCompile(`每份派现金([\d.]+)元`)
	shareDividendPattern = regexp.MustCompile(`每份派基金份额([\d.]+)份`)
)

// ParseDividend parses a raw distribution string from the NAV table.
// Recognised formats: "每份派现金0.05元" (cash per unit) and
// "每份派基金份额0.05份" (share per unit). Returns nil when the string is
// empty; any other text yields an unknown-kind entry with the raw text kept.
func ParseDividend(raw string) *Dividend {
	if raw == "" {
		return nil
	}

	if m := cashDividendPattern.FindStringSubmatch(raw); m != nil {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return &Dividend{Kind: DividendCash, PerUnit: amount, Raw: raw}
		}
	}

	if m := shareDividendPattern.FindStringSubmatch(raw); m != nil {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return &Dividend{Kind: DividendShare, PerUnit: amount, Raw: raw}
		}
	}

	return &Dividend{Kind: DividendUnknown, PerUnit: 0, Raw: raw}
}

// FeeTier is one row of a tiered fee schedule, e.g. "低于100万" → 0.15%.
type FeeTier struct {
	Condition string  `json:"condition"`
	RatePct   float64 `json:"rate_pct"`
}

// FundFees holds the published fee schedule for a fund. Fee data is
// downloaded and stored alongside NAV history but is not consumed by the
// simulation.
type FundFees struct {
	Code              string    `json:"code"`
	ManagementPct     float64   `json:"management_pct"`      // annual
	CustodyPct        float64   `json:"custody_pct"`         // annual
	SalesServicePct   float64   `json:"sales_service_pct"`   // annual, zero for most A-class funds
	SubscriptionTiers []FeeTier `json:"subscription_tiers,omitempty"`
	RedemptionTiers   []FeeTier `json:"redemption_tiers,omitempty"`
	LastUpdated       time.Time `json:"last_updated"`
}
