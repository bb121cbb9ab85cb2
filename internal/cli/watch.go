package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/pmnotify/internal/api"
	"github.com/nhle/pmnotify/internal/app"
	"github.com/nhle/pmnotify/internal/events"
	"github.com/nhle/pmnotify/internal/logging"
	"github.com/nhle/pmnotify/internal/resolve"
	appsync "github.com/nhle/pmnotify/internal/sync"
)

func newWatchCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open the live notification view (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), st)
		},
	}
}

func runWatch(ctx context.Context, st *state) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := st.cfg
	logger := st.logger

	sessions, err := st.sessions()
	if err != nil {
		return err
	}

	client := api.NewClient(cfg.API.BaseURL, sessions.Token, cfg.API.Timeout())
	refresh := &events.Bus[events.RefreshRequested]{}

	syncer := appsync.New(appsync.Options{
		API:               client,
		Resolver:          resolve.New(client),
		OnSessionExpired:  sessions.Expire,
		PollInterval:      cfg.Sync.PollInterval(),
		PopupTTL:          cfg.Sync.PopupTTL(),
		RollbackOnFailure: cfg.Sync.RollbackOnFailure,
		Logger:            logging.Component(logger, "sync"),
	})
	defer syncer.Stop()

	unbindRefresh := syncer.BindRefresh(refresh)
	defer unbindRefresh()
	unbindSession := syncer.BindSession(sessions)
	defer unbindSession()

	if err := sessions.Watch(ctx); err != nil {
		logger.Warn().Err(err).Msg("session changes from other processes will not be picked up")
	}

	if cfg.Broker.URL != "" {
		go runHints(ctx, cfg.Broker, sessions, refresh, logging.Component(logger, "broker"))
	}

	model := app.New(app.Options{
		Syncer:   syncer,
		Sessions: sessions,
		Refresh:  refresh,
		Logger:   logging.Component(logger, "ui"),
	})

	logger.Info().Str("api", cfg.API.BaseURL).Msg("opening notification view")
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
