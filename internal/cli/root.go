// Package cli defines the pmnotify command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/pmnotify/internal/logging"
	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/session"
)

// state is shared by every command after the root pre-run has loaded the
// configuration.
type state struct {
	configPath string
	logLevel   string
	token      string

	cfg    *model.AppConfig
	logger zerolog.Logger
}

// NewRootCmd builds the command tree. Running it without a subcommand
// starts the terminal UI.
func NewRootCmd() *cobra.Command {
	st := &state{}

	rootCmd := &cobra.Command{
		Use:   "pmnotify",
		Short: "Live notifications for the project-management server",
		Long: `pmnotify keeps a local view of your project-management notifications in
step with the server, pops up newly arrived ones, and takes you to the
project they belong to.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), st)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&st.configPath, "config", model.DefaultConfigPath(), "config file")
	flags.StringVar(&st.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flags.StringVar(&st.token, "token", "", "use this session token for this run instead of the keyring")

	rootCmd.AddCommand(
		newWatchCmd(st),
		newLoginCmd(st),
		newLogoutCmd(st),
		newListCmd(st),
		newNotifyCmd(st),
		newServeCmd(st),
		newConfigCmd(st),
	)
	return rootCmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// load reads the config file and builds the logger. The terminal UI owns
// the screen, so only the other commands log to stderr.
func (st *state) load(cmd *cobra.Command) error {
	cfg, err := model.LoadConfig(st.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if st.logLevel != "" {
		cfg.Log.Level = st.logLevel
	}
	st.cfg = cfg

	interactive := cmd.Name() == "watch" || cmd == cmd.Root()
	st.logger = logging.New(cfg.Log, logging.Options{Console: !interactive})
	st.logger.Debug().Str("command", cmd.Name()).Str("config", st.configPath).Msg("starting")
	return nil
}

// sessions opens the session manager over the keyring, or over an
// in-memory store when --token was given.
func (st *state) sessions() (*session.Manager, error) {
	logger := logging.Component(st.logger, "session")

	var store session.TokenStore
	if st.token != "" {
		store = session.NewMemoryStore(st.token)
	} else {
		ring, err := session.OpenKeyring(st.cfg.Session.KeyringService, st.cfg.Session.Dir)
		if err != nil {
			return nil, err
		}
		store = ring
	}
	return session.NewManager(store, st.cfg.Session.Dir, logger)
}
