package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfeidau/leadpool/internal/client"
	"github.com/wolfeidau/leadpool/internal/notify"
)

type WatchCmd struct {
	ClientFlags `embed:""`
	MaxAttempts uint          `help:"Reconnect attempts before giving up" default:"5"`
	IdleTimeout time.Duration `help:"Reconnect when nothing, not even a heartbeat, arrives for this long" default:"75s"`
	Heartbeats  bool          `help:"Print heartbeat messages"`
}

func (w *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(globals)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := client.NewCompanyCache()
	watcher := client.NewWatcher(w.client(), cache, client.WatchConfig{
		MaxAttempts: w.MaxAttempts,
		IdleTimeout: w.IdleTimeout,
		Resync:      true,
		OnStatus: func(s client.Status) {
			fmt.Fprintf(os.Stderr, "stream %s\n", s)
		},
		OnMessage: func(msg notify.Message) {
			if msg.Type == notify.MessageHeartbeat && !w.Heartbeats {
				return
			}
			printMessage(os.Stdout, msg)
		},
	})

	err := watcher.Run(ctx)
	if errors.Is(err, client.ErrReconnectExhausted) {
		return fmt.Errorf("lost connection to %s: %w", w.Server, err)
	}
	if err != nil {
		return err
	}

	userID, username := watcher.User()
	fmt.Fprintf(os.Stderr, "%d companies available to %s\n", len(cache.Available(userID, username)), username)
	return nil
}

func printMessage(out io.Writer, msg notify.Message) {
	switch msg.Type {
	case notify.MessageConnected:
		fmt.Fprintf(out, "connected as %s (connection %s)\n", msg.Username, msg.ConnectionID)
	case notify.MessageCompanyClaimed:
		fmt.Fprintf(out, "%s %s claimed %s (company %d)\n", msg.Timestamp, msg.ClaimedByUsername, msg.CompanyName, msg.CompanyID)
	case notify.MessageCompanyUnclaimed:
		fmt.Fprintf(out, "%s %s released %s (company %d)\n", msg.Timestamp, msg.UnclaimedByUsername, msg.CompanyName, msg.CompanyID)
	case notify.MessageHeartbeat:
		fmt.Fprintf(out, "%s heartbeat\n", msg.Timestamp)
	default:
		fmt.Fprintf(out, "%s %s\n", msg.Timestamp, msg.Type)
	}
}
