package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/pmnotify/internal/session"
)

func newLoginCmd(st *state) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a session token in the system keyring",
		Long: `Store a session token in the system keyring. Running pmnotify views pick
the new session up immediately. Without --with-token the token is read
from an interactive prompt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				if err := promptToken(&token); err != nil {
					return err
				}
			}
			token = strings.TrimSpace(token)
			if !session.Valid(token, time.Now()) {
				return errors.New("token is malformed or expired")
			}

			sessions, err := st.sessions()
			if err != nil {
				return err
			}
			if err := sessions.Login(token); err != nil {
				return err
			}

			if user := session.Subject(token); user != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Logged in")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "with-token", "", "session token to store")
	return cmd
}

func promptToken(token *string) error {
	return huh.NewInput().
		Title("Session token").
		EchoMode(huh.EchoModePassword).
		Value(token).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("token is required")
			}
			return nil
		}).
		Run()
}

func newLogoutCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := st.sessions()
			if err != nil {
				return err
			}
			if err := sessions.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
