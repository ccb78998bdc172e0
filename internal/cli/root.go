// Package cli provides the command-line interface for the assistant.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quantb/internal/config"
	"quantb/internal/logging"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// NewRootCmd creates the root command for the CLI. Configuration and
// dependencies are resolved in PersistentPreRunE so --config applies.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "quantb",
		Short: "quantb - AI financial assistant",
		Long: `quantb is a conversational assistant for US equities.

Ask about quotes, news, technicals or your portfolio in plain language and
get structured answers backed by live market data. Run 'quantb serve' to
expose the HTTP API, or 'quantb chat' to talk to it from the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config")
			if err := app.Load(cmd.Context(), configDir); err != nil {
				return err
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/quantb)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newChatCmd(app))
	rootCmd.AddCommand(newScreenCmd(app))
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newHoldingsCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// No configuration is needed to print the version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("quantb v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{"path": app.ConfigDir})
			} else {
				output.Println(app.ConfigDir)
			}
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Println()

	output.Bold("Chat")
	output.Printf("  Turn timeout:    %s\n", cfg.Chat.TurnTimeout)
	output.Printf("  Tool rounds:     %d\n", cfg.Chat.MaxToolRounds)
	output.Printf("  History limit:   %d\n", cfg.Chat.HistoryLimit)
	output.Println()

	output.Bold("Market Data")
	output.Printf("  Base URL:        %s\n", cfg.MarketData.BaseURL)
	output.Printf("  Pacing delay:    %s\n", cfg.MarketData.PacingDelay)
	output.Printf("  API key:         %s\n", configured(cfg.Credentials.Finnhub.APIKey))
	output.Println()

	output.Bold("LLM")
	output.Printf("  Provider:        %s\n", cfg.LLM.Provider)
	output.Printf("  Chat model:      %s\n", cfg.LLM.ChatModel)
	output.Printf("  OpenAI key:      %s\n", configured(cfg.Credentials.OpenAI.APIKey))
	output.Printf("  Gemini key:      %s\n", configured(cfg.Credentials.Gemini.APIKey))
	output.Println()

	output.Bold("Store")
	output.Printf("  Backend:         %s\n", cfg.Store.Backend)
	if cfg.Store.Backend == "sqlite" {
		output.Printf("  Path:            %s\n", cfg.Store.Path)
	}
}

func configured(key string) string {
	if key == "" {
		return "not set"
	}
	return "set"
}
