package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobmcallan/fundback/internal/app"
	"github.com/bobmcallan/fundback/internal/backtest"
	"github.com/bobmcallan/fundback/internal/common"
)

func main() {
	var (
		configPath    = flag.String("config", "", "config file path (default: $FUNDBACK_CONFIG, then fundback.toml next to the binary)")
		portfolio     = flag.String("portfolio", "", "portfolio spec, e.g. 210014:0.5,110022:0.5")
		amount        = flag.Float64("amount", 0, "investment amount per scheduled purchase (default from config)")
		frequency     = flag.String("frequency", "", "investment frequency: daily, weekly, monthly (default from config)")
		dayOfWeek     = flag.Int("day-of-week", 0, "weekly schedule day, 1=Monday..7=Sunday")
		dayOfMonth    = flag.Int("day-of-month", 0, "monthly schedule day, 1..31")
		startDate     = flag.String("start", "", "start date YYYY-MM-DD (default: first aligned trading day)")
		endDate       = flag.String("end", "", "end date YYYY-MM-DD (default: last aligned trading day)")
		forceDownload = flag.Bool("force-download", false, "re-download fund histories even when cached")
		listRuns      = flag.Int("list-runs", 0, "list the N most recent runs and exit (0 = disabled)")
		noBanner      = flag.Bool("no-banner", false, "suppress the startup banner")
	)
	flag.Parse()

	a, err := app.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if !*noBanner {
		common.PrintBanner(a.Config, a.Logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listRuns > 0 {
		if err := printRuns(ctx, a, *listRuns); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to list runs")
			os.Exit(1)
		}
		return
	}

	if *portfolio == "" {
		fmt.Fprintln(os.Stderr, "Usage: fundback -portfolio 210014:0.5,110022:0.5 [options]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(ctx, a, runParams{
		portfolio:     *portfolio,
		amount:        *amount,
		frequency:     *frequency,
		dayOfWeek:     *dayOfWeek,
		dayOfMonth:    *dayOfMonth,
		startDate:     *startDate,
		endDate:       *endDate,
		forceDownload: *forceDownload,
	}); err != nil {
		if backtest.IsConfigError(err) {
			fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
			os.Exit(2)
		}
		a.Logger.Error().Err(err).Msg("Backtest failed")
		os.Exit(1)
	}
}

type runParams struct {
	portfolio     string
	amount        float64
	frequency     string
	dayOfWeek     int
	dayOfMonth    int
	startDate     string
	endDate       string
	forceDownload bool
}

func run(ctx context.Context, a *app.App, params runParams) error {
	alloc, err := backtest.ParseAllocations(params.portfolio)
	if err != nil {
		return err
	}

	schedule, err := buildSchedule(a.Config, params)
	if err != nil {
		return err
	}

	if err := a.FundDataService.LoadFunds(ctx, alloc.Codes(), params.forceDownload); err != nil {
		return err
	}

	from, to, err := resolveWindow(a, alloc.Codes(), params.startDate, params.endDate)
	if err != nil {
		return err
	}

	engine := backtest.NewEngine(alloc, schedule, a.FundDataService,
		backtest.WithLogger(a.Logger),
		backtest.WithObserver(backtest.NewLogObserver(a.Logger)),
	)
	result, err := engine.Run(ctx, from, to)
	if err != nil {
		return err
	}

	output, err := a.ReportService.WriteRun(ctx, result,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return err
	}

	fmt.Print(result.Report())
	fmt.Printf("Run %s written to %s\n", output.RunID, output.OutputDir)
	return nil
}

// buildSchedule merges CLI flags over the config defaults.
func buildSchedule(config *common.Config, params runParams) (backtest.Schedule, error) {
	amount := params.amount
	if amount == 0 {
		amount = config.Backtest.Amount
	}
	frequency := params.frequency
	if frequency == "" {
		frequency = config.Backtest.Frequency
	}

	schedule := backtest.Schedule{
		Frequency:  backtest.Frequency(frequency),
		Amount:     amount,
		DayOfWeek:  params.dayOfWeek,
		DayOfMonth: params.dayOfMonth,
	}

	// Unset day flags get a conventional default per frequency.
	if schedule.Frequency == backtest.FrequencyWeekly && schedule.DayOfWeek == 0 {
		schedule.DayOfWeek = 1
	}
	if schedule.Frequency == backtest.FrequencyMonthly && schedule.DayOfMonth == 0 {
		schedule.DayOfMonth = 1
	}

	return schedule, schedule.Validate()
}

// resolveWindow fills unset dates from the loaded funds' aligned range.
func resolveWindow(a *app.App, codes []string, startDate, endDate string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error

	if startDate != "" {
		from, err = time.Parse("2006-01-02", startDate)
		if err != nil {
			return from, to, fmt.Errorf("invalid start date %q: %w", startDate, err)
		}
	}
	if endDate != "" {
		to, err = time.Parse("2006-01-02", endDate)
		if err != nil {
			return from, to, fmt.Errorf("invalid end date %q: %w", endDate, err)
		}
	}

	if from.IsZero() || to.IsZero() {
		days, err := a.FundDataService.AlignedTradingDays(codes)
		if err != nil {
			return from, to, err
		}
		if len(days) == 0 {
			return from, to, fmt.Errorf("funds share no trading days")
		}
		if from.IsZero() {
			from = days[0]
		}
		if to.IsZero() {
			to = days[len(days)-1]
		}
	}
	return from, to, nil
}

func printRuns(ctx context.Context, a *app.App, limit int) error {
	runs, err := a.RunStore.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-20s %-28s %-9s %10s %10s %9s  %s\n",
		"CREATED", "PORTFOLIO", "FREQ", "INVESTED", "FINAL", "RETURN", "OUTPUT")
	for _, r := range runs {
		fmt.Printf("%-20s %-28s %-9s %10.2f %10.2f %8.2f%%  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.PortfolioSpec,
			r.Frequency,
			r.TotalInvested,
			r.FinalValue,
			r.TotalReturnPct,
			r.OutputDir,
		)
	}
	return nil
}
