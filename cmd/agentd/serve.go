package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/agent"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/config"
	rtsup "github.com/DevanshuBrahmbhatt/Social-agents/internal/runtime/supervisor"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler daemon",
	Long: `Run the scheduler daemon: rehydrate per-user schedules from the
store, fire timezone-aware triggers, and execute cycles on a bounded
worker pool. Shuts down gracefully on SIGINT/SIGTERM, giving in-flight
cycles a grace period before aborting them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	log := a.log.With(logx.String("comp", "serve"))
	sup := rtsup.New(ctx, rtsup.WithLogger(log))

	// Hot reload: the watcher re-parses on change; invalid files keep the
	// last good config. Only the logging block applies live.
	sup.GoRestart("configwatch", a.cfgman.Watch)
	cfgCh := a.cfgman.Subscribe(4)
	sup.Go0("configapply", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg := <-cfgCh:
				if cfg == nil {
					continue
				}
				a.logSvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				log.Info("config reloaded")
			}
		}
	})

	// Run lifecycle events from the engine feed the daemon log; skips in
	// particular are only visible here, since skipped triggers never write a
	// run record.
	events, unsubEvents := a.bus.Subscribe(16)
	sup.Go0("runlog", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				sum, _ := ev.Data.(agent.RunSummary)
				log.Info("run event",
					logx.String("event", ev.Type),
					logx.Int64("user", sum.UserID),
					logx.String("outcome", sum.Outcome),
					logx.String("detail", sum.Error))
			}
		}
	})

	a.engine.Start(ctx)
	if err := a.service.Rehydrate(ctx); err != nil {
		return err
	}
	a.service.Start()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("agentd ready")

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("shutting down")

	// Triggers first, then the engine with grace for in-flight cycles.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	a.service.Stop(stopCtx)
	cancel()

	grace := config.DurationOr(a.cfg.Engine.GracePeriod, 30*time.Second)
	a.engine.Stop(grace)

	unsubEvents()
	a.cfgman.Unsubscribe(cfgCh)
	sup.Cancel()
	waitCtx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	_ = sup.Wait(waitCtx)

	log.Info("agentd stopped")
	return nil
}
