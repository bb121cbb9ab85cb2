package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/pmnotify/internal/broker"
	"github.com/nhle/pmnotify/internal/logging"
	"github.com/nhle/pmnotify/internal/server"
	"github.com/nhle/pmnotify/internal/store"
)

func newServeCmd(st *state) *cobra.Command {
	var (
		addr      string
		issueFor  string
		issueTTL  time.Duration
		issueOnly bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference notification API server",
		Long: `Run a small API server that implements the notification and entity
endpoints pmnotify talks to, backed by SQLite. When broker.url is set,
every created notification is followed by a refresh hint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := st.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}
			if cfg.JWTSecret == "" {
				return errors.New("server.jwt_secret must be set to sign session tokens")
			}
			secret := []byte(cfg.JWTSecret)

			if issueFor != "" {
				token, err := server.IssueToken(secret, issueFor, issueTTL)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				if issueOnly {
					return nil
				}
			}

			logger := logging.Component(st.logger, "server")

			db, err := store.NewSQLiteStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer db.Close()

			opts := server.Options{
				Store:  db,
				Secret: secret,
				Logger: logger,
			}
			if st.cfg.Broker.URL != "" {
				pub, err := broker.NewPublisher(st.cfg.Broker.URL, st.cfg.Broker.Exchange,
					logging.Component(st.logger, "broker"))
				if err != nil {
					logger.Warn().Err(err).Msg("refresh hints disabled")
				} else {
					defer pub.Close()
					opts.Hints = pub
				}
			}

			srv, err := server.New(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, cfg.Addr)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	flags.StringVar(&issueFor, "issue-token", "", "print a session token for this user id before serving")
	flags.DurationVar(&issueTTL, "token-ttl", 24*time.Hour, "lifetime of the issued token, 0 for none")
	flags.BoolVar(&issueOnly, "issue-only", false, "exit after printing the token")
	return cmd
}
