package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/fundback/internal/common"
	"github.com/bobmcallan/fundback/internal/models"
)

// MarketData is the pre-resolved market data the engine reads during a run.
// Implementations must answer from memory: the engine loop performs no I/O.
type MarketData interface {
	// AlignedTradingDays returns the dates on which every given fund has a
	// valuation, ascending, no duplicates.
	AlignedTradingDays(codes []string) ([]time.Time, error)

	// NAVOn returns the unit NAV for one fund on one date. ok is false when
	// the fund did not trade that day or the published NAV is non-positive.
	NAVOn(code string, date time.Time) (nav float64, ok bool)

	// DividendOn returns the parsed distribution entry for one fund on one
	// date, if any.
	DividendOn(code string, date time.Time) (*models.Dividend, bool)

	// PurchaseGate reports whether every given fund accepts new purchases on
	// date; blocked lists the funds that do not, with their status text.
	PurchaseGate(codes []string, date time.Time) (allOpen bool, blocked []string)
}

// Engine walks the aligned trading-day sequence and turns a schedule plus
// market data into a trade log and equity curve. A single Engine run is
// synchronous and deterministic: identical inputs produce identical output.
type Engine struct {
	alloc    Allocations
	schedule Schedule
	data     MarketData
	observer Observer
	logger   *common.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithObserver sets the trace observer.
func WithObserver(obs Observer) EngineOption {
	return func(e *Engine) {
		e.observer = obs
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *common.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a backtest engine over the given allocation, schedule,
// and pre-resolved market data.
func NewEngine(alloc Allocations, schedule Schedule, data MarketData, opts ...EngineOption) *Engine {
	e := &Engine{
		alloc:    alloc,
		schedule: schedule,
		data:     data,
		observer: NopObserver{},
		logger:   common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the backtest over [from, to]. Configuration problems are
// reported as ConfigError before any simulation step; afterwards the run
// always completes. Dates are compared at day granularity; callers should
// pass midnight timestamps in a single location.
func (e *Engine) Run(ctx context.Context, from, to time.Time) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.schedule.Validate(); err != nil {
		return nil, err
	}
	if err := e.alloc.Validate(); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, configErrorf("end date %s is before start date %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	codes := e.alloc.Codes()
	allDays, err := e.data.AlignedTradingDays(codes)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve aligned trading days: %w", err)
	}

	days := make([]time.Time, 0, len(allDays))
	for _, d := range allDays {
		if !d.Before(from) && !d.After(to) {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return nil, configErrorf("no aligned trading days between %s and %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	e.logger.Info().
		Str("from", from.Format("2006-01-02")).
		Str("to", to.Format("2006-01-02")).
		Int("trading_days", len(days)).
		Str("frequency", string(e.schedule.Frequency)).
		Float64("amount", e.schedule.Amount).
		Msg("Backtest started")

	portfolio := NewPortfolio(e.alloc)
	snapshots := make([]Snapshot, 0, len(days))

	pending := 0
	lastScanned := from.AddDate(0, 0, -1)
	var prevNAVs map[string]float64
	var prevDate time.Time

	for _, day := range days {
		// Resolve today's NAVs; a day missing any fund's valuation is skipped
		// entirely. lastScanned is not advanced, so the next executed day's
		// schedule scan still sees every calendar date in between.
		navs := make(map[string]float64, len(codes))
		var missing []string
		for _, code := range codes {
			nav, ok := e.data.NAVOn(code, day)
			if !ok {
				missing = append(missing, code)
				continue
			}
			navs[code] = nav
		}
		if len(missing) > 0 {
			e.observer.OnSkip(day, missing)
			continue
		}

		// Dividend phase: always before any purchase on the same date, so
		// dividend growth feeds the purchase's rebalancing base.
		dividends := make(map[string]*models.Dividend)
		for _, code := range codes {
			if div, ok := e.data.DividendOn(code, day); ok {
				dividends[code] = div
			}
		}
		if len(dividends) > 0 {
			for _, t := range portfolio.ReinvestDividends(day, navs, dividends) {
				e.observer.OnTrade(t)
			}
		}

		// Schedule scan: every calendar date since the last scan counts,
		// including non-trading days. A nominal date falling on a weekend or
		// holiday becomes a deferred unit, never a dropped one.
		for check := lastScanned.AddDate(0, 0, 1); !check.After(day); check = check.AddDate(0, 0, 1) {
			if e.schedule.IsInvestmentDay(check) {
				pending++
			}
		}
		lastScanned = day

		// Gate check: the backlog executes only when every fund accepts new
		// purchases. All-or-nothing, no partial execution across funds.
		if pending > 0 {
			allOpen, blocked := e.data.PurchaseGate(codes, day)
			if allOpen {
				if prevDate.IsZero() {
					// First-ever execution has no prior baseline; fall back
					// to the same-day NAVs.
					prevNAVs = cloneNAVs(navs)
					prevDate = day
				}
				for i := 0; i < pending; i++ {
					for _, t := range portfolio.Invest(e.schedule.Amount, navs, prevNAVs, day, prevDate) {
						e.observer.OnTrade(t)
					}
					// Each backlog unit is priced against the result of the
					// previous one, not the pre-backlog state.
					prevNAVs = cloneNAVs(navs)
					prevDate = day
				}
				pending = 0
			} else {
				e.observer.OnDeferral(day, pending, blocked)
			}
		}

		snapshots = append(snapshots, Snapshot{
			Date:         day,
			TotalValue:   portfolio.MarketValue(navs),
			CashInvested: portfolio.CashInvested(),
			Holdings:     portfolio.HoldingsCopy(),
		})

		prevNAVs = cloneNAVs(navs)
		prevDate = day
	}

	if pending > 0 {
		e.logger.Warn().
			Int("pending", pending).
			Msg("Backtest ended with unexecuted scheduled investments")
	}

	e.logger.Info().
		Int("snapshots", len(snapshots)).
		Int("trades", len(portfolio.Trades())).
		Msg("Backtest complete")

	return newResult(snapshots, portfolio.Trades(), e.alloc, e.schedule, pending), nil
}

func cloneNAVs(navs map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(navs))
	for code, nav := range navs {
		out[code] = nav
	}
	return out
}
