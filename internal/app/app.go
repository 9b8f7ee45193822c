// Package app wires configuration, storage, the messaging adapter and the
// poller into the long-lived service.
package app

import (
	"context"
	"fmt"
	"time"

	"linkwatch/internal/broadcast"
	"linkwatch/internal/config"
	"linkwatch/internal/directory"
	"linkwatch/internal/observability/pprof"
	"linkwatch/internal/poller"
	"linkwatch/internal/runtime/supervisor"
	"linkwatch/internal/storage"
	kit "linkwatch/internal/transport"
	"linkwatch/internal/transport/discord"
	logx "linkwatch/pkg/logx"
)

// session is the adapter surface the app depends on: the connection
// lifecycle plus the send/listing API.
type session interface {
	kit.Connector
	kit.Messenger
}

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	adapter session
	dir     *directory.Directory
	disp    *broadcast.Dispatcher
	pol     *poller.Poller
	svc     *poller.Service
	prof    *pprof.Service

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log := logs.Logger().With(logx.String("comp", "app"))
	log.Info("configuration loaded", cfg.Summary()...)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	connectTimeout, err := config.ParseDurationOrDefault(
		"discord.connect_timeout", cfg.Discord.ConnectTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := discord.New(discord.Config{
		Token:          cfg.Discord.Token,
		ConnectTimeout: connectTimeout,
	}, log.With(logx.String("comp", "discord")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	dir := directory.New(cfg.ChannelName(), store, log.With(logx.String("comp", "directory")))
	disp := broadcast.New(broadcast.Config{
		RatePerSec: cfg.Discord.RatePerSec,
	}, adapter, dir, log.With(logx.String("comp", "broadcast")))

	srcs, err := BuildSources(cfg, log)
	if err != nil {
		return nil, err
	}

	pol := poller.New(poller.Config{
		RetentionDays: cfg.Poll.RetentionDays,
	}, srcs, store, disp, log.With(logx.String("comp", "poller")))
	svc := poller.NewService(cfg.Interval(), pol, store, log.With(logx.String("comp", "poller")))

	var prof *pprof.Service
	if pc := cfg.Pprof; pc != nil {
		prof = pprof.New(pprof.Config{
			Enabled: pc.Enabled,
			Addr:    pc.Addr,
			Token:   pc.Token,
		}, log.With(logx.String("comp", "pprof")))
	}

	return &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log,
		logs:    logs,
		store:   store,
		adapter: adapter,
		dir:     dir,
		disp:    disp,
		pol:     pol,
		svc:     svc,
		prof:    prof,
	}, nil
}

// Start connects to Discord, waits for the gateway to be ready, builds the
// broadcast directory and starts the polling loop plus background watchers.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	if err := a.adapter.Connect(a.sup.Context()); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	// The directory must exist before the first cycle so a fresh start does
	// not broadcast into the void.
	a.dir.Refresh(a.sup.Context(), a.adapter)
	targets := len(a.dir.Targets())
	a.log.Info("connected", logx.Int("targets", targets))
	if targets == 0 {
		a.log.Warn("no guild has a usable broadcast channel",
			logx.String("channel_name", a.cfg.ChannelName()))
	}

	if a.prof != nil {
		if err := a.prof.Start(a.sup.Context()); err != nil {
			a.log.Warn("pprof start failed", logx.Err(err))
		}
	}

	a.sup.GoRestart("events", a.pumpEvents)
	a.sup.GoRestart("config-watch", func(ctx context.Context) error {
		return a.cfgm.Watch(ctx)
	})
	a.sup.Go0("config-apply", a.applyConfigUpdates)

	if err := a.svc.Start(a.sup.Context()); err != nil {
		return err
	}
	return nil
}

// pumpEvents feeds guild membership changes into the directory so joins take
// effect before the next cycle and departures stop deliveries immediately.
func (a *App) pumpEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.adapter.Events():
			if !ok {
				return nil
			}
			if ev.Kind == kit.EventReady {
				// Reconnect: re-sync the whole directory.
				a.dir.Refresh(ctx, a.adapter)
				continue
			}
			a.dir.HandleEvent(ctx, a.adapter, ev)
		}
	}
}

// applyConfigUpdates re-applies logging settings on hot reload. Other
// sections require a restart and are only reported by the config manager.
func (a *App) applyConfigUpdates(ctx context.Context) {
	ch := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging settings applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop drains the poller, stops background goroutines and closes the store
// and the gateway connection, bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	var firstErr error

	if a.svc != nil {
		if err := a.svc.Stop(ctx); err != nil {
			a.log.Warn("poller stop", logx.Err(err))
			firstErr = err
		}
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.prof != nil {
		if err := a.prof.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.adapter != nil {
		if err := a.adapter.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.logs != nil {
		a.logs.Close()
	}
	return firstErr
}
