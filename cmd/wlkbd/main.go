// wlkbd prints a short label for the active keyboard layout of a
// Wayland session every time it changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	wl "deedles.dev/wlkbd/client"
	"deedles.dev/wlkbd/internal/cq"
	"deedles.dev/wlkbd/internal/debug"
	"deedles.dev/wlkbd/internal/icon"
	"deedles.dev/wlkbd/internal/labelmap"
	"deedles.dev/wlkbd/internal/logging"
	"deedles.dev/wlkbd/layout"
	"deedles.dev/wlkbd/xkb"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "wlkbd",
		Short: "Report the active keyboard layout of a Wayland session",
		Long: `wlkbd connects to the Wayland compositor, follows the active keyboard
layout and prints a short label for it, such as "EN" or "DE", every time it
changes. The output is suitable for status bars such as waybar.

Config file search order (first found wins):
  $XDG_CONFIG_HOME/wlkbd/wlkbd.toml
  $XDG_CONFIG_DIRS/wlkbd/wlkbd.toml
  path supplied via --config

All flags can be set via WLKBD_<FLAG> env vars or config-file keys.`,
		Version:      Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindViper(cmd, v); err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	addFlags(cmd)
	return cmd
}

func run(ctx context.Context, cfg config, out io.Writer) error {
	log, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()
	debug.SetLogger(log.Named("wire"))

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := xkb.LoadRegistry(cfg.XKBRules)
	if err != nil {
		log.Warnw("layout names will not be resolved", "err", err)
		registry = nil
	}

	overrides, err := labelmap.Load(cfg.Labels)
	if err != nil {
		log.Warnw("ignoring label map", "err", err)
		overrides = nil
	}
	labels := layout.NewLabels(overrides)

	var icons *icon.Renderer
	if cfg.IconDir != "" {
		icons = icon.NewRenderer(cfg.IconDir, cfg.IconSize)
	}
	sink := newSink(out, cfg.Format, icons, log)

	queue := cq.New[update]()
	defer queue.Stop()
	onChange := func(label string, detail layout.Detail) {
		queue.Push(update{Label: label, Detail: detail})
	}
	tracker := layout.NewTracker(xkb.Compiler{Registry: registry}, labels, onChange, log.Named("layout"))

	monitor := wl.NewMonitor(wl.DialEnv(), tracker, log.Named("wayland"))
	monitor.BindTimeout = cfg.BindTimeout
	monitor.OnSession = func(err error, wait time.Duration) {
		notifyStatus(fmt.Sprintf("Reconnecting in %v: %v", wait.Round(time.Millisecond), err))
	}

	log.Infow("started wlkbd", "version", Version, "labels", cfg.Labels, "format", cfg.Format)
	if err := sink.Write(update{Label: layout.Placeholder}); err != nil {
		return err
	}

	errChan := make(chan error, 4)
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		defer stop()
		err := monitor.Run(ctx)
		if err != nil {
			errChan <- fmt.Errorf("monitor: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		reload := func(m map[string]string) {
			labels.SetOverrides(m)
			monitor.Refresh()
		}
		err := labelmap.Watch(ctx, cfg.Labels, reload, log.Named("labelmap"))
		if (err != nil) && !errors.Is(err, context.Canceled) {
			log.Warnw("not watching label map", "err", err)
		}
	}()

	go func() {
		defer wg.Done()
		err := present(ctx, queue, sink)
		if (err != nil) && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("write output: %w", err)
			stop()
		}
	}()

	go func() {
		defer wg.Done()
		err := systemdNotifyLoop(ctx, log)
		if (err != nil) && !errors.Is(err, context.Canceled) {
			log.Warnw("systemd notification failed", "err", err)
		}
	}()

	wg.Wait()
	close(errChan)
	err = <-errChan
	if err != nil {
		return err
	}

	log.Info("shutting down")
	return nil
}

// present writes updates until ctx is canceled. Only the most recent
// update of every batch is written.
func present(ctx context.Context, queue *cq.Queue[update], sink *sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case batch := <-queue.Get():
			u := batch[len(batch)-1]
			if err := sink.Write(u); err != nil {
				return err
			}
			notifyStatus(fmt.Sprintf("Layout: %v", u.Label))
		}
	}
}

func notifyStatus(status string) {
	_, _ = daemon.SdNotify(false, "STATUS="+status)
}

func systemdNotifyLoop(ctx context.Context, log *zap.SugaredLogger) error {
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		return fmt.Errorf("notify systemd: %w", err)
	}
	if !supported {
		return nil
	}
	log.Debug("notified systemd")

	t, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return fmt.Errorf("check watchdog: %w", err)
	}
	if t == 0 {
		return nil
	}

	ticker := time.NewTicker(t / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			_, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			if err != nil {
				return fmt.Errorf("notify watchdog: %w", err)
			}
		}
	}
}
