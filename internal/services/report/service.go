// Package report writes backtest run artifacts: CSV exports, the text
// report, the result JSON, the value chart, and the run index record.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/fundback/internal/backtest"
	"github.com/bobmcallan/fundback/internal/common"
	"github.com/bobmcallan/fundback/internal/interfaces"
	"github.com/bobmcallan/fundback/internal/models"
)

// Service writes run outputs under a base results directory and records
// each run in the run index.
type Service struct {
	runs    interfaces.RunStore
	logger  *common.Logger
	baseDir string
}

// NewService creates a report service. runs may be nil, in which case no
// index record is written.
func NewService(runs interfaces.RunStore, logger *common.Logger, baseDir string) *Service {
	return &Service{
		runs:    runs,
		logger:  logger,
		baseDir: baseDir,
	}
}

// RunOutput describes the artifacts written for one run.
type RunOutput struct {
	RunID     string
	OutputDir string
	Files     []string
}

// WriteRun writes all artifacts for one completed run and saves its index
// record. startDate and endDate are the requested window, "2006-01-02".
func (s *Service) WriteRun(ctx context.Context, result *backtest.Result, startDate, endDate string) (*RunOutput, error) {
	runID := uuid.NewString()
	dirName := fmt.Sprintf("backtest_%s_%s", time.Now().Format("20060102_150405"), dirLabel(result.Allocations))
	outputDir := filepath.Join(s.baseDir, dirName)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	output := &RunOutput{RunID: runID, OutputDir: outputDir}

	writers := []struct {
		name  string
		write func(path string) error
	}{
		{"trades.csv", func(p string) error { return writeTradesCSV(p, result.Trades) }},
		{"portfolio_values.csv", func(p string) error { return writeValuesCSV(p, result) }},
		{"report.txt", func(p string) error { return os.WriteFile(p, []byte(result.Report()), 0644) }},
		{"result.json", func(p string) error { return writeResultJSON(p, result) }},
	}
	for _, w := range writers {
		path := filepath.Join(outputDir, w.name)
		if err := w.write(path); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", w.name, err)
		}
		output.Files = append(output.Files, path)
	}

	if len(result.Snapshots) >= 2 {
		png, err := RenderValueChart(result.Snapshots)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Chart render failed, skipping")
		} else {
			path := filepath.Join(outputDir, "portfolio_value.png")
			if err := os.WriteFile(path, png, 0644); err != nil {
				return nil, fmt.Errorf("failed to write chart: %w", err)
			}
			output.Files = append(output.Files, path)
		}
	} else {
		s.logger.Debug().Int("snapshots", len(result.Snapshots)).Msg("Too few snapshots for a chart")
	}

	if s.runs != nil {
		record := buildRunRecord(runID, result, startDate, endDate, outputDir)
		if err := s.runs.SaveRun(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to save run record")
		}
	}

	s.logger.Info().
		Str("run_id", runID).
		Str("output_dir", outputDir).
		Int("files", len(output.Files)).
		Msg("Run artifacts written")

	return output, nil
}

func buildRunRecord(runID string, result *backtest.Result, startDate, endDate, outputDir string) *models.RunRecord {
	m := result.Metrics()
	return &models.RunRecord{
		ID:                  runID,
		CreatedAt:           time.Now(),
		PortfolioSpec:       result.Allocations.String(),
		Frequency:           string(result.Schedule.Frequency),
		Amount:              result.Schedule.Amount,
		StartDate:           startDate,
		EndDate:             endDate,
		TotalInvested:       m.TotalInvested,
		FinalValue:          m.FinalValue,
		TotalReturnPct:      m.TotalReturnPct,
		AnnualizedReturnPct: m.AnnualizedReturnPct,
		MaxDrawdownPct:      m.MaxDrawdownPct,
		NumTrades:           m.NumTrades,
		TradingDays:         m.TradingDays,
		Unexecuted:          m.Unexecuted,
		OutputDir:           outputDir,
	}
}

// dirLabel compresses the allocation into a filesystem-safe suffix,
// e.g. "210014-50_110022-50".
func dirLabel(allocs backtest.Allocations) string {
	parts := make([]string, len(allocs))
	for i, a := range allocs {
		parts[i] = fmt.Sprintf("%s-%.0f", a.Code, a.Weight*100)
	}
	return strings.Join(parts, "_")
}

func writeTradesCSV(path string, trades []backtest.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"date", "fund_code", "kind", "amount", "nav", "nav_date",
		"prev_nav", "prev_nav_date", "shares_before", "shares", "shares_after",
		"holding_value_before", "dividend_per_unit", "dividend_amount",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Date.Format("2006-01-02"),
			t.FundCode,
			string(t.Kind),
			formatFloat(t.Amount),
			formatFloat(t.NAV),
			formatDate(t.NAVDate),
			formatFloat(t.PrevNAV),
			formatDate(t.PrevNAVDate),
			formatFloat(t.SharesBefore),
			formatFloat(t.Shares),
			formatFloat(t.SharesAfter),
			formatFloat(t.HoldingValueBefore),
			formatFloat(t.DividendPerUnit),
			formatFloat(t.DividendAmount),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeValuesCSV(path string, result *backtest.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Purchases per day feed the daily_investment column.
	dailyInvestment := make(map[string]float64)
	for _, t := range result.Trades {
		if t.Kind == backtest.TradePurchase {
			dailyInvestment[t.Date.Format("2006-01-02")] += t.Amount
		}
	}

	w := csv.NewWriter(f)
	header := []string{"date", "total_value", "cash_invested", "daily_investment"}
	for _, a := range result.Allocations {
		header = append(header, "shares_"+a.Code)
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, s := range result.Snapshots {
		date := s.Date.Format("2006-01-02")
		row := []string{
			date,
			formatFloat(s.TotalValue),
			formatFloat(s.CashInvested),
			formatFloat(dailyInvestment[date]),
		}
		for _, a := range result.Allocations {
			row = append(row, formatFloat(s.Holdings[a.Code]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeResultJSON(path string, result *backtest.Result) error {
	payload := struct {
		*backtest.Result
		Metrics backtest.Metrics `json:"metrics"`
	}{Result: result, Metrics: result.Metrics()}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
