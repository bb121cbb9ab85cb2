package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/pmnotify/internal/api"
	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/theme"
	"github.com/nhle/pmnotify/internal/ui/notiflist"
)

func newListCmd(st *state) *cobra.Command {
	var (
		unreadOnly bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the current notifications once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := st.sessions()
			if err != nil {
				return err
			}
			if sessions.Token() == "" {
				return errors.New("not logged in; run pmnotify login first")
			}

			client := api.NewClient(st.cfg.API.BaseURL, sessions.Token, st.cfg.API.Timeout())
			ctx, cancel := context.WithTimeout(cmd.Context(), st.cfg.API.Timeout())
			defer cancel()

			ns, err := client.ListNotifications(ctx)
			if err != nil {
				if api.IsAuthError(err) {
					sessions.Expire()
					return errors.New("session expired; run pmnotify login again")
				}
				return err
			}
			if unreadOnly {
				ns = filterUnread(ns)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ns)
			}
			fmt.Fprintln(out, renderTable(ns))
			return nil
		},
	}
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only show unread notifications")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func filterUnread(ns []model.Notification) []model.Notification {
	out := ns[:0:0]
	for _, n := range ns {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}

func renderTable(ns []model.Notification) string {
	if len(ns) == 0 {
		return theme.HelpStyle.Render("No notifications.")
	}

	rows := make([][]string, 0, len(ns))
	for _, n := range ns {
		state := "•"
		if n.Read {
			state = ""
		}
		rows = append(rows, []string{
			state,
			notiflist.TypeLabel(n),
			n.Message,
			n.CreatedAt.Local().Format("2006-01-02 15:04"),
			n.ID,
		})
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("", "TYPE", "MESSAGE", "CREATED", "ID").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		String()
}
