package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fundback/internal/models"
)

// fakeMarket serves canned per-fund series to the engine. Days are the
// aligned trading days; navs / dividends / blocked are keyed by fund code
// then "2006-01-02" date string.
type fakeMarket struct {
	days      []time.Time
	navs      map[string]map[string]float64
	dividends map[string]map[string]*models.Dividend
	blocked   map[string]map[string]bool
}

func (m *fakeMarket) AlignedTradingDays(codes []string) ([]time.Time, error) {
	return m.days, nil
}

func (m *fakeMarket) NAVOn(code string, date time.Time) (float64, bool) {
	nav, ok := m.navs[code][date.Format("2006-01-02")]
	if !ok || nav <= 0 {
		return 0, false
	}
	return nav, true
}

func (m *fakeMarket) DividendOn(code string, date time.Time) (*models.Dividend, bool) {
	div, ok := m.dividends[code][date.Format("2006-01-02")]
	return div, ok
}

func (m *fakeMarket) PurchaseGate(codes []string, date time.Time) (bool, []string) {
	var out []string
	for _, code := range codes {
		if m.blocked[code][date.Format("2006-01-02")] {
			out = append(out, code)
		}
	}
	return len(out) == 0, out
}

// flatMarket builds a single-fund market with a constant NAV over n
// consecutive days starting at start.
func flatMarket(code string, start time.Time, n int, nav float64) *fakeMarket {
	m := &fakeMarket{
		navs:      map[string]map[string]float64{code: {}},
		dividends: map[string]map[string]*models.Dividend{},
		blocked:   map[string]map[string]bool{code: {}},
	}
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i)
		m.days = append(m.days, d)
		m.navs[code][d.Format("2006-01-02")] = nav
	}
	return m
}

func dailySchedule(amount float64) Schedule {
	return Schedule{Frequency: FrequencyDaily, Amount: amount}
}

func TestRunDailyConstantNAV(t *testing.T) {
	start := date(2024, time.January, 1)
	market := flatMarket("210014", start, 4, 1.0)
	alloc := mustAllocs(t, "210014:1.0")

	engine := NewEngine(alloc, dailySchedule(1000), market)
	result, err := engine.Run(context.Background(), start, start.AddDate(0, 0, 3))
	require.NoError(t, err)

	require.Len(t, result.Trades, 4)
	require.Len(t, result.Snapshots, 4)
	assert.Equal(t, 0, result.Unexecuted)

	m := result.Metrics()
	assert.InDelta(t, 4000.0, m.TotalInvested, amountTolerance)
	assert.InDelta(t, 4000.0, m.FinalValue, amountTolerance)
	assert.InDelta(t, 0.0, m.TotalReturnPct, 1e-6)
	assert.InDelta(t, 0.0, m.MaxDrawdownPct, 1e-6)

	last := result.Snapshots[3]
	assert.InDelta(t, 4000.0, last.Holdings["210014"], 1e-6)
	assert.InDelta(t, 4000.0, last.CashInvested, amountTolerance)
}

func TestRunBacklogExecutesChained(t *testing.T) {
	// Single fund, daily schedule, purchases blocked on days 2 through 4.
	start := date(2024, time.June, 3)
	market := flatMarket("210014", start, 5, 1.0)
	for i := 1; i <= 3; i++ {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		market.blocked["210014"][d] = true
	}

	var deferrals []int
	var tradeDates []time.Time
	obs := funcObserver{
		onTrade:    func(tr Trade) { tradeDates = append(tradeDates, tr.Date) },
		onDeferral: func(_ time.Time, pending int, _ []string) { deferrals = append(deferrals, pending) },
	}

	alloc := mustAllocs(t, "210014:1.0")
	engine := NewEngine(alloc, dailySchedule(1000), market, WithObserver(obs))
	result, err := engine.Run(context.Background(), start, start.AddDate(0, 0, 4))
	require.NoError(t, err)

	// Day 1 executes immediately; days 2-4 defer with a growing backlog;
	// day 5 flushes all four pending units.
	assert.Equal(t, []int{1, 2, 3}, deferrals)
	require.Len(t, result.Trades, 5)

	day5 := start.AddDate(0, 0, 4)
	assert.True(t, result.Trades[0].Date.Equal(start))
	for _, tr := range result.Trades[1:] {
		assert.True(t, tr.Date.Equal(day5))
	}
	require.Len(t, tradeDates, 5)

	// Backlog units chain: each purchase values the holdings left by the
	// previous one. The first unit's baseline is the last valued day before
	// the flush; every later unit re-baselines on day 5 itself.
	for i, tr := range result.Trades[1:] {
		wantBefore := 1000.0 * float64(i+1)
		assert.InDelta(t, wantBefore, tr.HoldingValueBefore, amountTolerance)
		if i > 0 {
			assert.True(t, tr.PrevNAVDate.Equal(day5))
		}
	}

	assert.Equal(t, 0, result.Unexecuted)
	assert.InDelta(t, 5000.0, result.TotalInvested(), amountTolerance)
}

func TestRunWeeklyDeferredFromWeekend(t *testing.T) {
	// 2024-06-01 is a Saturday. Weekly schedule on Saturday (weekday 6),
	// trading days are Mon-Fri only: the weekend unit executes on Monday.
	market := &fakeMarket{
		navs:      map[string]map[string]float64{"210014": {}},
		dividends: map[string]map[string]*models.Dividend{},
		blocked:   map[string]map[string]bool{},
	}
	for _, d := range []time.Time{
		date(2024, time.May, 31), // Friday
		date(2024, time.June, 3), // Monday
		date(2024, time.June, 4),
	} {
		market.days = append(market.days, d)
		market.navs["210014"][d.Format("2006-01-02")] = 2.0
	}

	schedule := Schedule{Frequency: FrequencyWeekly, Amount: 500, DayOfWeek: 6}
	alloc := mustAllocs(t, "210014:1.0")

	engine := NewEngine(alloc, schedule, market)
	result, err := engine.Run(context.Background(), date(2024, time.May, 31), date(2024, time.June, 4))
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	tr := result.Trades[0]
	assert.True(t, tr.Date.Equal(date(2024, time.June, 3)))
	assert.InDelta(t, 500.0, tr.Amount, amountTolerance)
	assert.InDelta(t, 250.0, tr.Shares, 1e-9)
}

func TestRunDividendBeforePurchase(t *testing.T) {
	// A cash dividend and a scheduled purchase on the same day: the
	// reinvestment's shares feed the purchase's valuation base.
	start := date(2024, time.July, 1)
	market := flatMarket("210014", start, 2, 1.0)
	day2 := start.AddDate(0, 0, 1)
	market.dividends["210014"] = map[string]*models.Dividend{
		day2.Format("2006-01-02"): {Kind: models.DividendCash, PerUnit: 0.5},
	}

	alloc := mustAllocs(t, "210014:1.0")
	engine := NewEngine(alloc, dailySchedule(1000), market)
	result, err := engine.Run(context.Background(), start, day2)
	require.NoError(t, err)

	require.Len(t, result.Trades, 3)
	assert.Equal(t, TradePurchase, result.Trades[0].Kind)
	assert.Equal(t, TradeDividendReinvest, result.Trades[1].Kind)
	assert.Equal(t, TradePurchase, result.Trades[2].Kind)

	// 1000 shares × 0.5 per unit reinvested at NAV 1.0 → 500 extra shares.
	reinvest := result.Trades[1]
	assert.InDelta(t, 500.0, reinvest.DividendAmount, 1e-9)
	assert.InDelta(t, 1500.0, reinvest.SharesAfter, 1e-9)

	// Day 2's purchase sees the post-reinvestment balance.
	assert.InDelta(t, 1500.0, result.Trades[2].SharesBefore, 1e-9)

	// Reinvested cash never counts as new money.
	assert.InDelta(t, 2000.0, result.TotalInvested(), amountTolerance)
}

func TestRunSkipsDaysWithMissingNAV(t *testing.T) {
	// Two funds; the second has no valuation on the middle day. The engine
	// only sees aligned days, but a defect in upstream alignment must not
	// crash or mis-value the run.
	start := date(2024, time.August, 5)
	market := &fakeMarket{
		navs: map[string]map[string]float64{
			"210014": {},
			"110022": {},
		},
		dividends: map[string]map[string]*models.Dividend{},
		blocked:   map[string]map[string]bool{},
	}
	for i := 0; i < 3; i++ {
		d := start.AddDate(0, 0, i)
		market.days = append(market.days, d)
		market.navs["210014"][d.Format("2006-01-02")] = 1.0
		if i != 1 {
			market.navs["110022"][d.Format("2006-01-02")] = 1.0
		}
	}

	var skipped []time.Time
	obs := funcObserver{
		onSkip: func(day time.Time, missing []string) {
			skipped = append(skipped, day)
			assert.Equal(t, []string{"110022"}, missing)
		},
	}

	alloc := mustAllocs(t, "210014:0.5,110022:0.5")
	engine := NewEngine(alloc, dailySchedule(1000), market, WithObserver(obs))
	result, err := engine.Run(context.Background(), start, start.AddDate(0, 0, 2))
	require.NoError(t, err)

	require.Len(t, skipped, 1)
	assert.True(t, skipped[0].Equal(start.AddDate(0, 0, 1)))

	// The skipped date still counts in the schedule scan: day 3 executes
	// its own unit plus the one deferred past the gap.
	require.Len(t, result.Snapshots, 2)
	assert.InDelta(t, 3000.0, result.TotalInvested(), amountTolerance)
}

func TestRunEndsWithUnexecutedBacklog(t *testing.T) {
	start := date(2024, time.September, 2)
	market := flatMarket("210014", start, 3, 1.0)
	// Purchases blocked on days 2 and 3; the backlog never flushes.
	for i := 1; i <= 2; i++ {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		market.blocked["210014"][d] = true
	}

	alloc := mustAllocs(t, "210014:1.0")
	engine := NewEngine(alloc, dailySchedule(1000), market)
	result, err := engine.Run(context.Background(), start, start.AddDate(0, 0, 2))
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, 2, result.Unexecuted)
	assert.Equal(t, 2, result.Metrics().Unexecuted)
	// Snapshots still cover every valued day, executed or not.
	assert.Len(t, result.Snapshots, 3)
}

func TestRunEmptyRangeIsConfigError(t *testing.T) {
	start := date(2024, time.January, 1)
	market := flatMarket("210014", start, 3, 1.0)
	alloc := mustAllocs(t, "210014:1.0")
	engine := NewEngine(alloc, dailySchedule(1000), market)

	// Window beyond the data horizon.
	_, err := engine.Run(context.Background(), date(2025, time.January, 1), date(2025, time.February, 1))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	// Inverted window.
	_, err = engine.Run(context.Background(), start.AddDate(0, 0, 2), start)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestRunInvalidScheduleRejected(t *testing.T) {
	start := date(2024, time.January, 1)
	market := flatMarket("210014", start, 3, 1.0)
	alloc := mustAllocs(t, "210014:1.0")

	bad := Schedule{Frequency: FrequencyWeekly, Amount: 1000}
	engine := NewEngine(alloc, bad, market)
	_, err := engine.Run(context.Background(), start, start.AddDate(0, 0, 2))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestRunCancelledContext(t *testing.T) {
	start := date(2024, time.January, 1)
	market := flatMarket("210014", start, 3, 1.0)
	alloc := mustAllocs(t, "210014:1.0")
	engine := NewEngine(alloc, dailySchedule(1000), market)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Run(ctx, start, start.AddDate(0, 0, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunDeterministicAcrossRuns(t *testing.T) {
	start := date(2024, time.October, 7)
	market := &fakeMarket{
		navs: map[string]map[string]float64{
			"210014": {}, "110022": {}, "013308": {},
		},
		dividends: map[string]map[string]*models.Dividend{},
		blocked:   map[string]map[string]bool{},
	}
	navs := []float64{1.0, 1.1, 0.9, 1.2, 1.05}
	for i, nav := range navs {
		d := start.AddDate(0, 0, i)
		market.days = append(market.days, d)
		market.navs["210014"][d.Format("2006-01-02")] = nav
		market.navs["110022"][d.Format("2006-01-02")] = nav * 2
		market.navs["013308"][d.Format("2006-01-02")] = nav * 0.5
	}

	run := func() *Result {
		alloc := mustAllocs(t, "210014:0.5,110022:0.3,013308:0.2")
		engine := NewEngine(alloc, dailySchedule(1000), market)
		result, err := engine.Run(context.Background(), start, start.AddDate(0, 0, 4))
		require.NoError(t, err)
		return result
	}

	a, b := run(), run()
	require.Equal(t, len(a.Trades), len(b.Trades))
	for i := range a.Trades {
		assert.Equal(t, a.Trades[i].FundCode, b.Trades[i].FundCode)
		assert.Equal(t, a.Trades[i].Shares, b.Trades[i].Shares)
		assert.Equal(t, a.Trades[i].Amount, b.Trades[i].Amount)
	}
	for i := range a.Snapshots {
		assert.Equal(t, a.Snapshots[i].TotalValue, b.Snapshots[i].TotalValue)
	}
}

// funcObserver adapts closures to the Observer interface for tests.
type funcObserver struct {
	onTrade    func(Trade)
	onDeferral func(time.Time, int, []string)
	onSkip     func(time.Time, []string)
}

func (o funcObserver) OnTrade(t Trade) {
	if o.onTrade != nil {
		o.onTrade(t)
	}
}

func (o funcObserver) OnDeferral(date time.Time, pending int, blocked []string) {
	if o.onDeferral != nil {
		o.onDeferral(date, pending, blocked)
	}
}

func (o funcObserver) OnSkip(date time.Time, missing []string) {
	if o.onSkip != nil {
		o.onSkip(date, missing)
	}
}
