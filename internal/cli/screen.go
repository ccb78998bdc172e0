package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quantb/internal/screener"
	"quantb/pkg/utils"
)

func newScreenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen <request>",
		Short: "Find swing-trade opportunities",
		Long: `Screen a sector universe for swing trades described in plain language.

The request is parsed into price, market cap, volume, sector, risk and
holding-period criteria; matching stocks are analyzed and only setups with
at least 2:1 reward to risk and 60% confidence are shown.`,
		Example: `  quantb screen "conservative swing trades under $50 in Technology"
  quantb screen "large cap energy stocks, 1-2 week hold"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireMarket(); err != nil {
				return err
			}
			if n, _ := cmd.Flags().GetInt("max"); n > 0 {
				app.Screener = screener.New(app.Market, app.Provider, screener.Config{
					PacingDelay:   app.Config.MarketData.PacingDelay,
					MaxCandidates: n,
				}, app.Logger)
			}

			res, err := app.Screener.Screen(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			showScreenResult(output, res)
			return nil
		},
	}

	cmd.Flags().Int("max", 0, "maximum number of candidates to scan")
	return cmd
}

func showScreenResult(output *Output, res *screener.Result) {
	c := res.Criteria
	priceMax := "any"
	if c.PriceRange.Max > 0 {
		priceMax = utils.FormatUSD(c.PriceRange.Max)
	}
	output.Bold("Criteria")
	output.Printf("  Price:    %s - %s\n", utils.FormatUSD(c.PriceRange.Min), priceMax)
	if len(c.Sectors) > 0 {
		output.Printf("  Sectors:  %s\n", strings.Join(c.Sectors, ", "))
	}
	output.Printf("  Risk:     %s\n", c.RiskTolerance)
	output.Printf("  Holding:  %s\n", c.HoldingPeriod)
	output.Println()

	output.Dim("Scanned %d, matched %d, %d skipped in %dms", res.Scanned, res.Matched, len(res.Skipped), res.DurationMs)
	if len(res.Opportunities) == 0 {
		output.Warning("No opportunities passed validation.")
		return
	}

	table := NewTable(output, "SYMBOL", "PRICE", "ENTRY", "TARGET", "STOP", "R:R", "CONF", "HOLD")
	for _, o := range res.Opportunities {
		table.AddRow(
			o.Symbol,
			utils.FormatUSD(o.CurrentPrice),
			utils.FormatUSD(o.EntryPrice),
			utils.FormatUSD(o.TargetPrice),
			utils.FormatUSD(o.StopLoss),
			fmt.Sprintf("%.2f", o.RiskReward),
			fmt.Sprintf("%.0f%%", o.Confidence),
			string(o.HoldingPeriod),
		)
	}
	table.Render()

	for _, o := range res.Opportunities {
		if o.Reasoning != "" {
			output.Printf("\n%s: %s\n", output.Cyan(o.Symbol), o.Reasoning)
		}
	}
}
