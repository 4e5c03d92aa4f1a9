package backtest

import (
	"strconv"
	"strings"

	"github.com/bobmcallan/fundback/internal/models"
)

// weightSumTolerance is the permitted deviation of allocation weights from 1.0.
const weightSumTolerance = 0.01

// Allocation is one fund's target weight in the portfolio.
type Allocation struct {
	Code   string  `json:"code"`
	Weight float64 `json:"weight"`
}

// Allocations is an ordered, immutable target allocation set. Order is
// preserved from construction and fixes the float accumulation order of
// every purchase, which keeps runs bit-for-bit reproducible.
type Allocations []Allocation

// ParseAllocations parses a portfolio spec of the form
// "210014:0.5,110022:0.3,013308:0.2" and validates it.
func ParseAllocations(spec string) (Allocations, error) {
	parts := strings.Split(spec, ",")
	allocs := make(Allocations, 0, len(parts))
	seen := make(map[string]bool, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		code, weightStr, found := strings.Cut(part, ":")
		if !found {
			return nil, configErrorf("invalid allocation %q, expected 'code:weight'", part)
		}
		code = strings.TrimSpace(code)
		weightStr = strings.TrimSpace(weightStr)

		if !models.FundCodePattern.MatchString(code) {
			return nil, configErrorf("invalid fund code %q, expected 6 digits", code)
		}
		if seen[code] {
			return nil, configErrorf("duplicate fund code %q", code)
		}
		seen[code] = true

		weight, err := strconv.ParseFloat(weightStr, 64)
		if err != nil {
			return nil, configErrorf("invalid weight %q for fund %s", weightStr, code)
		}

		allocs = append(allocs, Allocation{Code: code, Weight: weight})
	}

	if err := allocs.Validate(); err != nil {
		return nil, err
	}
	return allocs, nil
}

// Validate checks that every weight is in (0,1] and that weights sum to 1.0
// within tolerance.
func (a Allocations) Validate() error {
	if len(a) == 0 {
		return configErrorf("allocation set is empty")
	}

	sum := 0.0
	for _, alloc := range a {
		if !models.FundCodePattern.MatchString(alloc.Code) {
			return configErrorf("invalid fund code %q, expected 6 digits", alloc.Code)
		}
		if alloc.Weight <= 0 || alloc.Weight > 1 {
			return configErrorf("weight for fund %s must be in (0,1], got %v", alloc.Code, alloc.Weight)
		}
		sum += alloc.Weight
	}

	if sum < 1-weightSumTolerance || sum > 1+weightSumTolerance {
		return configErrorf("allocation weights must sum to 1.0 (±%.2f), got %.4f", weightSumTolerance, sum)
	}
	return nil
}

// Codes returns the fund codes in allocation order.
func (a Allocations) Codes() []string {
	codes := make([]string, len(a))
	for i, alloc := range a {
		codes[i] = alloc.Code
	}
	return codes
}

// String renders the set back to its input form, e.g. "210014:0.5,110022:0.5".
func (a Allocations) String() string {
	parts := make([]string, len(a))
	for i, alloc := range a {
		parts[i] = alloc.Code + ":" + strconv.FormatFloat(alloc.Weight, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
