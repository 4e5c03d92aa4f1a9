package backtest

import (
	"time"

	"github.com/bobmcallan/fundback/internal/common"
)

// Observer receives trace events from the engine: one per trade, one per
// deferral, one per skipped day. Implementations must not mutate the trade.
type Observer interface {
	OnTrade(t Trade)
	OnDeferral(date time.Time, pending int, blocked []string)
	OnSkip(date time.Time, missing []string)
}

// NopObserver ignores all events. Used by tests and embedding callers that
// only care about a subset of events.
type NopObserver struct{}

func (NopObserver) OnTrade(Trade)                       {}
func (NopObserver) OnDeferral(time.Time, int, []string) {}
func (NopObserver) OnSkip(time.Time, []string)          {}

// logObserver emits one structured log event per engine trace event.
type logObserver struct {
	logger *common.Logger
}

// NewLogObserver returns an Observer that logs every event through logger.
func NewLogObserver(logger *common.Logger) Observer {
	return &logObserver{logger: logger}
}

func (o *logObserver) OnTrade(t Trade) {
	evt := o.logger.Info().
		Str("date", t.Date.Format("2006-01-02")).
		Str("fund", t.FundCode).
		Str("kind", string(t.Kind)).
		Float64("shares", t.Shares).
		Float64("shares_after", t.SharesAfter)
	if t.Kind == TradePurchase {
		evt = evt.Float64("amount", t.Amount).Float64("nav", t.NAV)
	} else {
		evt = evt.Float64("dividend_amount", t.DividendAmount).Float64("per_unit", t.DividendPerUnit)
	}
	evt.Msg("Trade executed")
}

func (o *logObserver) OnDeferral(date time.Time, pending int, blocked []string) {
	o.logger.Info().
		Str("date", date.Format("2006-01-02")).
		Int("pending", pending).
		Strs("blocked", blocked).
		Msg("Purchase deferred")
}

func (o *logObserver) OnSkip(date time.Time, missing []string) {
	o.logger.Warn().
		Str("date", date.Format("2006-01-02")).
		Strs("missing", missing).
		Msg("Trading day skipped, incomplete valuations")
}
