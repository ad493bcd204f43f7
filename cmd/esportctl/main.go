// esportctl wires the client core against a live backend: loads the
// library, match board and conversations, starts the unread poller and the
// push feed, and prints notices until interrupted. It is a smoke harness,
// not part of the core contract.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/R1Sobriquet/esportapp-client/internal/api"
	"github.com/R1Sobriquet/esportapp-client/internal/config"
	"github.com/R1Sobriquet/esportapp-client/internal/convo"
	"github.com/R1Sobriquet/esportapp-client/internal/feed"
	"github.com/R1Sobriquet/esportapp-client/internal/games"
	"github.com/R1Sobriquet/esportapp-client/internal/logger"
	"github.com/R1Sobriquet/esportapp-client/internal/matches"
	"github.com/R1Sobriquet/esportapp-client/internal/poll"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sess, err := config.SessionFromEnv()
	if err != nil {
		return err
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	caller := api.NewClient(cfg.BaseURL, sess, cfg.CallTimeout)

	lib := games.NewLibrary(ctx, caller)
	defer lib.Stop()
	lib.Load()

	board := matches.NewBoard(ctx, caller)
	defer board.Stop()
	board.Load()

	store := convo.NewStore(ctx, caller, sess.UserID)
	defer store.Stop()
	store.RefreshList()

	unread := poll.New(ctx, caller.UnreadCount, cfg.PollInterval)
	defer unread.Stop()

	if cfg.FeedURL != "" {
		fc := feed.Dial(ctx, cfg.FeedURL, sess, feed.Handlers{
			OnMessage: store.ApplyIncoming,
			OnUnread:  func(int) { /* poller owns the badge here */ },
		})
		defer fc.Stop()
	}

	logger.Log.Info("client core running",
		zap.String("base_url", cfg.BaseURL),
		zap.String("user", sess.UserID))

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("shutting down")
			return nil
		case n := <-lib.Notices():
			logger.Log.Warn("library", zap.String("kind", string(n.Kind)), zap.Error(n.Err))
		case n := <-board.Notices():
			logger.Log.Warn("matches", zap.String("kind", string(n.Kind)), zap.Error(n.Err))
		case n := <-store.Notices():
			logger.Log.Warn("messages", zap.String("kind", string(n.Kind)), zap.Error(n.Err))
		}
	}
}
