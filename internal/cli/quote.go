package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"quantb/internal/models"
	"quantb/pkg/utils"
)

type quoteView struct {
	Quote   *models.Quote          `json:"quote"`
	Profile *models.CompanyProfile `json:"profile,omitempty"`
}

func newQuoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "quote <symbol>...",
		Short:   "Show real-time quotes",
		Example: "  quantb quote AAPL MSFT",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireMarket(); err != nil {
				return err
			}

			views := make([]quoteView, 0, len(args))
			for _, sym := range args {
				v, err := fetchQuote(cmd.Context(), app, strings.ToUpper(sym))
				if err != nil {
					return err
				}
				views = append(views, v)
			}

			if output.IsJSON() {
				return output.JSON(views)
			}
			table := NewTable(output, "SYMBOL", "NAME", "PRICE", "CHANGE", "DAY RANGE", "MKT CAP")
			for _, v := range views {
				q := v.Quote
				name, mcap := "", ""
				if v.Profile != nil {
					name = v.Profile.Name
					mcap = utils.FormatMarketCap(v.Profile.MarketCap)
				}
				table.AddRow(
					q.Symbol,
					name,
					utils.FormatUSD(q.CurrentPrice),
					output.FormatChange(q.Change, q.ChangePercent),
					utils.FormatUSD(q.DayLow)+" - "+utils.FormatUSD(q.DayHigh),
					mcap,
				)
			}
			table.Render()
			return nil
		},
	}
}

// fetchQuote loads the quote and, best effort, the company profile.
func fetchQuote(ctx context.Context, app *App, sym string) (quoteView, error) {
	q, err := app.Market.Quote(ctx, sym)
	if err != nil {
		return quoteView{}, err
	}
	v := quoteView{Quote: q}
	if p, err := app.Market.Profile(ctx, sym); err == nil {
		v.Profile = p
	} else {
		app.Logger.Debug().Err(err).Str("symbol", sym).Msg("Profile unavailable")
	}
	return v, nil
}
