package cli

import (
	"context"
	gosync "sync"

	"github.com/rs/zerolog"

	"github.com/nhle/pmnotify/internal/broker"
	"github.com/nhle/pmnotify/internal/events"
	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/session"
)

// runHints keeps one broker subscription open for the signed-in user and
// moves it whenever the session changes. It returns when ctx is done.
func runHints(
	ctx context.Context,
	cfg model.BrokerConfig,
	sessions *session.Manager,
	refresh *events.Bus[events.RefreshRequested],
	logger zerolog.Logger,
) {
	h := &hintFollower{
		connect: func(ctx context.Context, user string) {
			subscribe(ctx, cfg, user, refresh, logger)
		},
	}

	unsubscribe := sessions.Subscribe(func(ev session.Event) {
		h.follow(ctx, ev.Token)
	})
	defer unsubscribe()

	h.follow(ctx, sessions.Token())
	<-ctx.Done()
	h.stop()
}

// hintFollower runs connect for the user of the current session token.
// A subscription that ends on its own is forgotten, so the next session
// event for the same user connects again.
type hintFollower struct {
	connect func(ctx context.Context, user string)

	mu     gosync.Mutex
	user   string
	cancel context.CancelFunc
	runID  uint64
}

func (h *hintFollower) follow(ctx context.Context, token string) {
	next := session.Subject(token)

	h.mu.Lock()
	defer h.mu.Unlock()
	if next == h.user && h.cancel != nil {
		return
	}
	h.stopLocked()
	h.user = next
	if next == "" {
		return
	}

	subCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.runID++
	id := h.runID
	go func() {
		h.connect(subCtx, next)

		h.mu.Lock()
		if h.runID == id && h.cancel != nil {
			h.cancel()
			h.cancel = nil
		}
		h.mu.Unlock()
	}()
}

func (h *hintFollower) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *hintFollower) stopLocked() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func subscribe(
	ctx context.Context,
	cfg model.BrokerConfig,
	user string,
	refresh *events.Bus[events.RefreshRequested],
	logger zerolog.Logger,
) {
	sub, err := broker.NewSubscriber(cfg.URL, cfg.Exchange, user, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("refresh hints unavailable, relying on polling")
		return
	}
	defer sub.Close()

	if err := sub.Run(ctx, refresh); err != nil && ctx.Err() == nil {
		logger.Warn().Err(err).Msg("refresh hint subscription ended")
	}
}
