package backtest

import (
	"time"

	"github.com/bobmcallan/fundback/internal/models"
)

// amountTolerance is the permitted cash overspend per purchase, in currency units.
const amountTolerance = 0.01

// Portfolio is the mutable ledger for one backtest run: cumulative cash
// committed, per-fund share balances, the shared target allocation, and the
// append-only trade log. One Portfolio is owned exclusively by one engine
// run and is never shared.
type Portfolio struct {
	cashInvested float64
	holdings     map[string]float64
	alloc        Allocations
	trades       []Trade
}

// NewPortfolio creates an empty portfolio with the given target allocation.
func NewPortfolio(alloc Allocations) *Portfolio {
	return &Portfolio{
		holdings: make(map[string]float64, len(alloc)),
		alloc:    alloc,
	}
}

// CashInvested returns the cumulative money committed to purchases.
func (p *Portfolio) CashInvested() float64 {
	return p.cashInvested
}

// Shares returns the current share balance for a fund (0 if never bought).
func (p *Portfolio) Shares(code string) float64 {
	return p.holdings[code]
}

// HoldingsCopy returns a copy of the per-fund share balances.
func (p *Portfolio) HoldingsCopy() map[string]float64 {
	out := make(map[string]float64, len(p.holdings))
	for code, shares := range p.holdings {
		out[code] = shares
	}
	return out
}

// Trades returns the trade log. The engine hands this to the Result at the
// end of the run; callers must not mutate it.
func (p *Portfolio) Trades() []Trade {
	return p.trades
}

// MarketValue sums shares × price over held funds present in navs. Funds
// absent from navs contribute nothing, so partial price maps are fine.
func (p *Portfolio) MarketValue(navs map[string]float64) float64 {
	total := 0.0
	for _, alloc := range p.alloc {
		shares := p.holdings[alloc.Code]
		if nav, ok := navs[alloc.Code]; ok {
			total += shares * nav
		}
	}
	return total
}

// Invest executes one scheduled rebalancing purchase of amount on dateT.
// Holdings are valued at the T-1 NAVs (navsT1, dateT1) so the buy decision
// never sees the same-day price; execution itself uses the T-day NAVs.
// Per-fund amounts move the portfolio toward target weights, never selling
// down: funds already over target absorb no new cash. When the summed
// shortfalls exceed amount, every shortfall is scaled so the total spent
// equals amount. Returns the purchase trades appended to the ledger.
func (p *Portfolio) Invest(amount float64, navsT, navsT1 map[string]float64, dateT, dateT1 time.Time) []Trade {
	sharesBefore := make(map[string]float64, len(p.alloc))
	currentValues := make(map[string]float64, len(p.alloc))
	holdingValue := 0.0
	for _, alloc := range p.alloc {
		shares := p.holdings[alloc.Code]
		sharesBefore[alloc.Code] = shares
		value := shares * navsT1[alloc.Code]
		currentValues[alloc.Code] = value
		holdingValue += value
	}

	expectedTotal := holdingValue + amount
	needed := make(map[string]float64, len(p.alloc))
	totalNeeded := 0.0
	for _, alloc := range p.alloc {
		need := expectedTotal*alloc.Weight - currentValues[alloc.Code]
		if need > 0 {
			needed[alloc.Code] = need
			totalNeeded += need
		}
	}

	// Scale down when the shortfalls exceed the budget. A totalNeeded below
	// amount means some funds are over target; the remainder is simply not
	// spent.
	scale := 1.0
	if totalNeeded > amount+amountTolerance {
		scale = amount / totalNeeded
	}

	start := len(p.trades)
	for _, alloc := range p.alloc {
		need, ok := needed[alloc.Code]
		if !ok {
			continue
		}
		spend := need * scale
		nav := navsT[alloc.Code]
		shares := spend / nav

		p.holdings[alloc.Code] += shares
		p.cashInvested += spend

		p.trades = append(p.trades, Trade{
			Date:               dateT,
			FundCode:           alloc.Code,
			Kind:               TradePurchase,
			SharesBefore:       sharesBefore[alloc.Code],
			Shares:             shares,
			SharesAfter:        p.holdings[alloc.Code],
			Amount:             spend,
			NAV:                nav,
			NAVDate:            dateT,
			PrevNAV:            navsT1[alloc.Code],
			PrevNAVDate:        dateT1,
			HoldingValueBefore: currentValues[alloc.Code],
		})
	}

	return p.trades[start:]
}

// ReinvestDividends converts cash distributions into shares at the T-day
// NAV for every held fund with a cash-type entry in dividends. Share-type
// and unrecognised entries are not acted on. Returns the reinvestment
// trades appended to the ledger.
func (p *Portfolio) ReinvestDividends(date time.Time, navsT map[string]float64, dividends map[string]*models.Dividend) []Trade {
	start := len(p.trades)
	for _, alloc := range p.alloc {
		sharesBefore, held := p.holdings[alloc.Code]
		if !held {
			continue
		}
		div := dividends[alloc.Code]
		if div == nil || div.Kind != models.DividendCash {
			continue
		}

		cash := sharesBefore * div.PerUnit
		nav := navsT[alloc.Code]
		gained := cash / nav
		p.holdings[alloc.Code] = sharesBefore + gained

		p.trades = append(p.trades, Trade{
			Date:            date,
			FundCode:        alloc.Code,
			Kind:            TradeDividendReinvest,
			SharesBefore:    sharesBefore,
			Shares:          gained,
			SharesAfter:     p.holdings[alloc.Code],
			NAV:             nav,
			NAVDate:         date,
			DividendPerUnit: div.PerUnit,
			DividendAmount:  cash,
		})
	}
	return p.trades[start:]
}
