package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/pmnotify/internal/api"
	"github.com/nhle/pmnotify/internal/model"
)

func newNotifyCmd(st *state) *cobra.Command {
	var n model.NewNotification

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Create a notification for a user",
		Long: `Create a notification for a user, the way other project-management
workflows do as a side effect. Useful for exercising a running view.`,
		Example: `  pmnotify notify --user 42 --type task_assigned --message "Review the draft" \
    --related-to 7f1c --on-model Task`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateNewNotification(n); err != nil {
				return err
			}

			sessions, err := st.sessions()
			if err != nil {
				return err
			}
			client := api.NewClient(st.cfg.API.BaseURL, sessions.Token, st.cfg.API.Timeout())
			ctx, cancel := context.WithTimeout(cmd.Context(), st.cfg.API.Timeout())
			defer cancel()

			created, err := client.CreateNotification(ctx, n)
			if err != nil {
				return err
			}
			st.logger.Info().Str("id", created.ID).Str("user", n.User).Msg("notification created")
			fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&n.User, "user", "", "recipient user id (required)")
	flags.StringVar(&n.Type, "type", model.TypeMention.String(), "notification type")
	flags.StringVar(&n.Message, "message", "", "notification text (required)")
	flags.StringVar(&n.RelatedTo, "related-to", "", "id of the related entity")
	flags.StringVar(&n.OnModel, "on-model", "", "kind of the related entity: Project, Task, Comment or Document")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func validateNewNotification(n model.NewNotification) error {
	if strings.TrimSpace(n.Message) == "" {
		return errors.New("--message must not be empty")
	}
	if model.ParseNotificationType(n.Type) == model.TypeUnknown {
		names := make([]string, 0, len(model.AllTypes()))
		for _, t := range model.AllTypes() {
			names = append(names, t.String())
		}
		return fmt.Errorf("unknown type %q (want one of %s)", n.Type, strings.Join(names, ", "))
	}
	if n.OnModel != "" && model.ParseEntityKind(n.OnModel) == model.EntityNone {
		return fmt.Errorf("unknown --on-model %q", n.OnModel)
	}
	if (n.OnModel == "") != (n.RelatedTo == "") {
		return errors.New("--related-to and --on-model must be given together")
	}
	return nil
}
