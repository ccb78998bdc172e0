package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"quantb/internal/chat"
	apperrors "quantb/internal/errors"
	"quantb/internal/models"
	"quantb/internal/store"
	"quantb/internal/stream"
)

// turnFunc runs one chat turn and returns the conversation id to continue.
type turnFunc func(ctx context.Context, convID, text string, out *Output) (string, error)

func newChatCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant",
		Long: `Send a message to the assistant and stream the answer.

By default the message goes to a running 'quantb serve'. With --local the
turn runs in-process using the configured credentials. Without a message
an interactive session starts; type 'exit' to leave.`,
		Example: `  quantb chat "How is AAPL doing today?"
  quantb chat --local "Compare NVDA and AMD"
  quantb chat --conversation 3f2a... "What about the news?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			local, _ := cmd.Flags().GetBool("local")
			convID, _ := cmd.Flags().GetString("conversation")

			var turn turnFunc
			if local {
				if err := app.requireChat(); err != nil {
					return err
				}
				turn = localTurn(app)
			} else {
				serverURL, _ := cmd.Flags().GetString("server")
				if serverURL == "" {
					serverURL = defaultServerURL(app.Config.Server.Addr)
				}
				turn = remoteTurn(&http.Client{}, serverURL, app.Logger)
			}

			ctx := cmd.Context()
			if len(args) > 0 {
				_, err := turn(ctx, convID, strings.Join(args, " "), output)
				return err
			}
			return interactive(ctx, cmd.InOrStdin(), output, convID, turn)
		},
	}

	cmd.Flags().Bool("local", false, "run the turn in-process instead of calling the server")
	cmd.Flags().String("server", "", "API base URL (default: derived from server.addr)")
	cmd.Flags().String("conversation", "", "continue an existing conversation")
	return cmd
}

func interactive(ctx context.Context, in io.Reader, output *Output, convID string, turn turnFunc) error {
	sc := bufio.NewScanner(in)
	for {
		if !output.IsJSON() {
			output.Print("> ")
		}
		if !sc.Scan() {
			return sc.Err()
		}
		text := strings.TrimSpace(sc.Text())
		switch text {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		id, err := turn(ctx, convID, text, output)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			output.Error("Error: %v", err)
			continue
		}
		convID = id
	}
}

// defaultServerURL turns a listen address such as ":8080" into a URL.
func defaultServerURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// remoteTurn posts the message to the HTTP API and renders the event
// stream as it arrives.
func remoteTurn(client *http.Client, baseURL string, logger zerolog.Logger) turnFunc {
	return func(ctx context.Context, convID, text string, out *Output) (string, error) {
		body, err := json.Marshal(map[string]any{
			"conversationId": convID,
			"message":        text,
			"stream":         true,
		})
		if err != nil {
			return convID, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return convID, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := client.Do(req)
		if err != nil {
			return convID, fmt.Errorf("contacting %s (is 'quantb serve' running?): %w", baseURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return convID, decodeAPIError(resp)
		}
		if id := resp.Header.Get("X-Conversation-ID"); id != "" {
			convID = id
		}

		r := newStreamRenderer(out)
		consumer := stream.NewConsumer(r.update, logger)
		consumer.OnStatus(r.status)
		msg, err := consumer.Consume(ctx, resp.Body)
		r.finish(msg, nil)
		return convID, err
	}
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error apperrors.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Code == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	body.Error.Status = resp.StatusCode
	return &body.Error
}

// localTurn runs the orchestrator in-process. Its events travel through a
// pipe into the same consumer the remote path uses.
func localTurn(app *App) turnFunc {
	return func(ctx context.Context, convID, text string, out *Output) (string, error) {
		conv, err := loadOrCreate(ctx, app.Store, convID)
		if err != nil {
			return convID, err
		}
		conv.Append(models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Content:   text,
			Timestamp: time.Now(),
		})
		history := append([]models.Message(nil), conv.Messages...)

		pr, pw := io.Pipe()
		var (
			wg        conc.WaitGroup
			reply     *chat.Reply
			streamErr error
		)
		wg.Go(func() {
			reply, streamErr = app.Chat.Stream(ctx, history, stream.NewEncoder(pw))
			pw.CloseWithError(streamErr)
		})

		r := newStreamRenderer(out)
		consumer := stream.NewConsumer(r.update, app.Logger)
		consumer.OnStatus(r.status)
		msg, consumeErr := consumer.Consume(ctx, pr)
		// Unblocks the writer if the consumer stopped early.
		_ = pr.Close()
		wg.Wait()

		var actions []models.QuickAction
		if streamErr == nil && reply != nil {
			actions = reply.QuickActions
			conv.Append(reply.Message())
		}
		r.finish(msg, actions)

		if err := app.Store.Save(context.WithoutCancel(ctx), conv); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to save conversation")
		}
		if streamErr != nil {
			return conv.ID, streamErr
		}
		return conv.ID, consumeErr
	}
}

func loadOrCreate(ctx context.Context, repo store.ConversationRepository, id string) (*models.Conversation, error) {
	if id == "" {
		return models.NewConversation(uuid.NewString(), time.Now()), nil
	}
	conv, err := repo.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewConversation(id, time.Now()), nil
	}
	return conv, err
}
