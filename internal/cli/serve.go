package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quantb/internal/server"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the chat, history and screening API.

Endpoints:
  POST   /api/chat                 chat turn ("stream": true for an event stream)
  GET    /api/conversations        conversation summaries
  GET    /api/conversations/{id}   one conversation
  DELETE /api/conversations/{id}   delete a conversation
  POST   /api/screen               screen stocks from a free-text request
  GET    /healthz                  liveness`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireChat(); err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				app.Config.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(app.Chat, app.Screener, app.Store, app.Logger)
			return srv.Run(ctx, app.Config.Server)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return cmd
}
