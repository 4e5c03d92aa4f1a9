package backtest

import "time"

// TradeKind discriminates ledger entries.
type TradeKind string

const (
	TradePurchase         TradeKind = "purchase"
	TradeDividendReinvest TradeKind = "dividend_reinvest"
)

// Trade is one immutable ledger entry. Purchase entries populate the NAV /
// PrevNAV / Amount fields; dividend reinvestments populate the Dividend*
// fields. Shares is the share delta for either kind.
type Trade struct {
	Date     time.Time `json:"date"`
	FundCode string    `json:"fund_code"`
	Kind     TradeKind `json:"kind"`

	SharesBefore float64 `json:"shares_before"`
	Shares       float64 `json:"shares"`
	SharesAfter  float64 `json:"shares_after"`

	// Purchase fields
	Amount             float64   `json:"amount,omitempty"`               // cash spent
	NAV                float64   `json:"nav,omitempty"`                  // T-day execution price
	NAVDate            time.Time `json:"nav_date,omitzero"`              //
	PrevNAV            float64   `json:"prev_nav,omitempty"`             // T-1 valuation price
	PrevNAVDate        time.Time `json:"prev_nav_date,omitzero"`         //
	HoldingValueBefore float64   `json:"holding_value_before,omitempty"` // valued at T-1 NAV

	// Dividend reinvestment fields
	DividendPerUnit float64 `json:"dividend_per_unit,omitempty"`
	DividendAmount  float64 `json:"dividend_amount,omitempty"` // shares_before × per-unit
}

// Snapshot is the end-of-day portfolio state on one trading day with
// complete valuation data.
type Snapshot struct {
	Date         time.Time          `json:"date"`
	TotalValue   float64            `json:"total_value"`
	CashInvested float64            `json:"cash_invested"`
	Holdings     map[string]float64 `json:"holdings"`
}
