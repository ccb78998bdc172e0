package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"quantb/internal/models"
	"quantb/pkg/utils"
)

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse saved conversations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")
			convs, err := app.Store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(convs)
			}
			if len(convs) == 0 {
				output.Dim("No conversations yet.")
				return nil
			}
			table := NewTable(output, "ID", "TITLE", "MESSAGES", "UPDATED")
			for _, c := range convs {
				table.AddRow(c.ID, utils.Truncate(c.Title, 40), strconv.Itoa(c.MessageCount), c.UpdatedAt.Local().Format(time.DateTime))
			}
			table.Render()
			return nil
		},
	}
	list.Flags().Int("limit", 20, "maximum conversations to show (0 for all)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			conv, err := app.Store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(conv)
			}
			showConversation(output, conv)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("Deleted conversation %s", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func showConversation(output *Output, conv *models.Conversation) {
	output.Bold("%s", conv.Title)
	output.Dim("%s, started %s", conv.ID, conv.CreatedAt.Local().Format(time.DateTime))
	for _, m := range conv.Messages {
		output.Println()
		who := "You"
		if m.Role == models.RoleAssistant {
			who = "Assistant"
		}
		output.Printf("%s %s\n", output.Cyan(who+":"), output.DimText(m.Timestamp.Local().Format(time.Kitchen)))
		output.Println(m.Content)
		renderComponents(output, m.Components)
		if m.Metadata != nil && m.Metadata.Error {
			output.Warning("(turn failed)")
		}
	}
	output.Println()
}
