package models

import "time"

// RunRecord is the persisted summary of one completed backtest run.
// The full trade log and snapshot series live in the run's output directory;
// this record is what the run index stores and lists.
type RunRecord struct {
	ID            string    `json:"id" badgerhold:"key"`
	CreatedAt     time.Time `json:"created_at"`
	PortfolioSpec string    `json:"portfolio_spec"` // e.g. "210014:0.5,110022:0.5"
	Frequency     string    `json:"frequency"`
	Amount        float64   `json:"amount"`
	StartDate     string    `json:"start_date"`
	EndDate       string    `json:"end_date"`

	TotalInvested       float64 `json:"total_invested"`
	FinalValue          float64 `json:"final_value"`
	TotalReturnPct      float64 `json:"total_return_pct"`
	AnnualizedReturnPct float64 `json:"annualized_return_pct"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	NumTrades           int     `json:"num_trades"`
	TradingDays         int     `json:"trading_days"`
	Unexecuted          int     `json:"unexecuted"`

	OutputDir string `json:"output_dir"`
}
