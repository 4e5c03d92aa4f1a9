// Package backtest implements the periodic-investment simulation engine:
// the investment schedule, the portfolio ledger, the day-by-day execution
// state machine, and the result metrics.
package backtest

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid backtest configuration: a bad schedule,
// a bad allocation set, or an empty aligned trading-day sequence. It is
// always raised before any simulation step executes and is fatal to the run.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return e.msg
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
