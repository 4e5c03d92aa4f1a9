// fundback-fetch downloads fund NAV histories and fee schedules into the
// local store without running a backtest.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bobmcallan/fundback/internal/app"
	"github.com/bobmcallan/fundback/internal/common"
	"github.com/bobmcallan/fundback/internal/models"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file path")
		codes      = flag.String("codes", "", "comma-separated fund codes, e.g. 210014,110022")
		fees       = flag.Bool("fees", false, "also download fee schedules")
		force      = flag.Bool("force", false, "re-download even when cached")
		list       = flag.Bool("list", false, "list cached funds and exit")
		noBanner   = flag.Bool("no-banner", false, "suppress the startup banner")
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

	if *list {
		if err := printFunds(ctx, a); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to list funds")
			os.Exit(1)
		}
		return
	}

	if *codes == "" {
		fmt.Fprintln(os.Stderr, "Usage: fundback-fetch -codes 210014,110022 [-fees] [-force]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	var fundCodes []string
	for _, code := range strings.Split(*codes, ",") {
		code = strings.TrimSpace(code)
		if !models.FundCodePattern.MatchString(code) {
			fmt.Fprintf(os.Stderr, "Invalid fund code %q, expected 6 digits\n", code)
			os.Exit(2)
		}
		fundCodes = append(fundCodes, code)
	}

	if err := a.FundDataService.LoadFunds(ctx, fundCodes, *force); err != nil {
		a.Logger.Error().Err(err).Msg("Download failed")
		os.Exit(1)
	}

	for _, code := range fundCodes {
		data := a.FundDataService.Fund(code)
		first, last := data.DateRange()
		fmt.Printf("%s: %d records, %s to %s\n",
			code, len(data.Records),
			first.Format("2006-01-02"), last.Format("2006-01-02"))
	}

	if *fees {
		for _, code := range fundCodes {
			fundFees, err := a.EastmoneyClient.GetFundFees(ctx, code)
			if err != nil {
				a.Logger.Error().Err(err).Str("code", code).Msg("Fee download failed")
				os.Exit(1)
			}
			if err := a.FundStore.SaveFees(ctx, fundFees); err != nil {
				a.Logger.Error().Err(err).Str("code", code).Msg("Failed to save fees")
				os.Exit(1)
			}
			fmt.Printf("%s: management %.2f%%, custody %.2f%%, %d redemption tiers\n",
				code, fundFees.ManagementPct, fundFees.CustodyPct, len(fundFees.RedemptionTiers))
		}
	}
}

func printFunds(ctx context.Context, a *app.App) error {
	codes, err := a.FundStore.ListFunds(ctx)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		fmt.Println("No cached funds.")
		return nil
	}
	for _, code := range codes {
		data, err := a.FundStore.GetFund(ctx, code)
		if err != nil {
			fmt.Printf("%s: unreadable (%v)\n", code, err)
			continue
		}
		first, last := data.DateRange()
		fmt.Printf("%s: %d records, %s to %s, updated %s\n",
			code, len(data.Records),
			first.Format("2006-01-02"), last.Format("2006-01-02"),
			data.LastUpdated.Format("2006-01-02 15:04"))
	}
	return nil
}
