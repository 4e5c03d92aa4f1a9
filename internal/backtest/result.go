package backtest

import (
	"fmt"
	"math"
	"strings"
)

// Result is the read-only outcome of one engine run: the snapshot series and
// trade log by value, plus derived metrics. The engine hands ownership over
// at the end of Run, so a Result stays valid regardless of later engine use.
type Result struct {
	Snapshots   []Snapshot  `json:"snapshots"`
	Trades      []Trade     `json:"trades"`
	Allocations Allocations `json:"allocations"`
	Schedule    Schedule    `json:"schedule"`

	// Unexecuted is the scheduled-investment backlog left when the date
	// sequence ran out. Never forced through past the data horizon.
	Unexecuted int `json:"unexecuted"`
}

func newResult(snapshots []Snapshot, trades []Trade, alloc Allocations, schedule Schedule, unexecuted int) *Result {
	return &Result{
		Snapshots:   snapshots,
		Trades:      trades,
		Allocations: alloc,
		Schedule:    schedule,
		Unexecuted:  unexecuted,
	}
}

// Metrics holds the derived performance figures. Percentages are in percent
// (e.g. 12.5 for +12.5%); MaxDrawdownPct is negative or zero.
type Metrics struct {
	TotalInvested       float64 `json:"total_invested"`
	FinalValue          float64 `json:"final_value"`
	TotalReturnPct      float64 `json:"total_return_pct"`
	AnnualizedReturnPct float64 `json:"annualized_return_pct"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	NumTrades           int     `json:"num_trades"`
	TradingDays         int     `json:"trading_days"`
	Unexecuted          int     `json:"unexecuted"`
}

// TotalInvested sums the purchase amounts over the trade log.
func (r *Result) TotalInvested() float64 {
	total := 0.0
	for _, t := range r.Trades {
		if t.Kind == TradePurchase {
			total += t.Amount
		}
	}
	return total
}

// FinalValue returns the last snapshot's total value, or 0 with no snapshots.
func (r *Result) FinalValue() float64 {
	if len(r.Snapshots) == 0 {
		return 0
	}
	return r.Snapshots[len(r.Snapshots)-1].TotalValue
}

// TotalReturn returns (final − invested) / invested, or 0 when nothing was
// invested.
func (r *Result) TotalReturn() float64 {
	invested := r.TotalInvested()
	if invested <= 0 {
		return 0
	}
	return (r.FinalValue() - invested) / invested
}

// AnnualizedReturn returns (final/invested)^(365/days) − 1 over the elapsed
// snapshot span. Defined as 0 when nothing was invested or no time elapsed.
func (r *Result) AnnualizedReturn() float64 {
	invested := r.TotalInvested()
	if invested <= 0 || len(r.Snapshots) < 2 {
		return 0
	}
	days := r.Snapshots[len(r.Snapshots)-1].Date.Sub(r.Snapshots[0].Date).Hours() / 24
	if days <= 0 {
		return 0
	}
	return math.Pow(r.FinalValue()/invested, 365/days) - 1
}

// MaxDrawdown returns the minimum of (value − peak) / peak over the snapshot
// series, as a fraction ≤ 0. Snapshots before the first positive value are
// ignored.
func (r *Result) MaxDrawdown() float64 {
	peak := 0.0
	maxDD := 0.0
	for _, s := range r.Snapshots {
		if s.TotalValue > peak {
			peak = s.TotalValue
		}
		if peak <= 0 {
			continue
		}
		dd := (s.TotalValue - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Metrics computes all derived figures in one pass-friendly struct.
func (r *Result) Metrics() Metrics {
	return Metrics{
		TotalInvested:       r.TotalInvested(),
		FinalValue:          r.FinalValue(),
		TotalReturnPct:      r.TotalReturn() * 100,
		AnnualizedReturnPct: r.AnnualizedReturn() * 100,
		MaxDrawdownPct:      r.MaxDrawdown() * 100,
		NumTrades:           len(r.Trades),
		TradingDays:         len(r.Snapshots),
		Unexecuted:          r.Unexecuted,
	}
}

// Report renders a plain-text performance report.
func (r *Result) Report() string {
	m := r.Metrics()
	var b strings.Builder

	hr := strings.Repeat("=", 60)
	b.WriteString(hr + "\n")
	b.WriteString("Portfolio Backtest Report\n")
	b.WriteString(hr + "\n\n")

	b.WriteString("Target allocation:\n")
	for _, alloc := range r.Allocations {
		fmt.Fprintf(&b, "  %s: %.1f%%\n", alloc.Code, alloc.Weight*100)
	}
	b.WriteString("\n")

	b.WriteString("Investment plan:\n")
	fmt.Fprintf(&b, "  Frequency: %s\n", r.Schedule.Frequency)
	fmt.Fprintf(&b, "  Amount:    %.2f\n", r.Schedule.Amount)
	if r.Schedule.DayOfWeek > 0 {
		fmt.Fprintf(&b, "  Day:       weekday %d\n", r.Schedule.DayOfWeek)
	}
	if r.Schedule.DayOfMonth > 0 {
		fmt.Fprintf(&b, "  Day:       day %d of month\n", r.Schedule.DayOfMonth)
	}
	b.WriteString("\n")

	b.WriteString("Performance:\n")
	fmt.Fprintf(&b, "  Total invested:    %.2f\n", m.TotalInvested)
	fmt.Fprintf(&b, "  Final value:       %.2f\n", m.FinalValue)
	fmt.Fprintf(&b, "  Total return:      %.2f%%\n", m.TotalReturnPct)
	fmt.Fprintf(&b, "  Annualized return: %.2f%%\n", m.AnnualizedReturnPct)
	fmt.Fprintf(&b, "  Max drawdown:      %.2f%%\n", m.MaxDrawdownPct)
	fmt.Fprintf(&b, "  Trades:            %d\n", m.NumTrades)
	fmt.Fprintf(&b, "  Trading days:      %d\n", m.TradingDays)
	if m.Unexecuted > 0 {
		fmt.Fprintf(&b, "  Unexecuted:        %d scheduled investment(s) had no eligible trading day\n", m.Unexecuted)
	}
	b.WriteString("\n" + hr + "\n")

	return b.String()
}
