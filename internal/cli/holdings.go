package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quantb/internal/models"
	"quantb/pkg/utils"
)

func newHoldingsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holdings",
		Short: "Manage the positions used for portfolio summaries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			holdings, err := app.Store.ListHoldings(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(holdings)
			}
			if len(holdings) == 0 {
				output.Dim("No holdings saved. Add one with 'quantb holdings set AAPL 10 185.50'.")
				return nil
			}
			table := NewTable(output, "SYMBOL", "SHARES", "AVG COST", "COST BASIS")
			for _, h := range holdings {
				table.AddRow(
					h.Symbol,
					strconv.FormatFloat(h.Shares, 'f', -1, 64),
					utils.FormatUSD(h.AverageCost),
					utils.FormatUSD(h.Shares*h.AverageCost),
				)
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "set <symbol> <shares> <average-cost>",
		Short:   "Add or update a position; zero shares removes it",
		Example: "  quantb holdings set AAPL 10 185.50\n  quantb holdings set AAPL 0 0",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			shares, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid shares %q: %w", args[1], err)
			}
			cost, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid average cost %q: %w", args[2], err)
			}

			h := models.Holding{
				Symbol:      strings.ToUpper(args[0]),
				Shares:      shares,
				AverageCost: cost,
				UpdatedAt:   time.Now(),
			}
			if err := app.Store.SaveHolding(cmd.Context(), h); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(h)
			}
			if shares == 0 {
				output.Success("Removed %s", h.Symbol)
			} else {
				output.Success("Saved %s: %s shares at %s", h.Symbol, args[1], utils.FormatUSD(cost))
			}
			return nil
		},
	})

	return cmd
}
