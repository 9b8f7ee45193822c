package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkwatch/internal/blobstore"
	"linkwatch/internal/broadcast"
	"linkwatch/internal/config"
	"linkwatch/internal/directory"
	"linkwatch/internal/poller"
	"linkwatch/internal/storage"
	kit "linkwatch/internal/transport"
	"linkwatch/internal/transport/discord"
	logx "linkwatch/pkg/logx"
)

// RunOnce performs a single stateless cycle: hydrate the state file from the
// blob store, run one pass over all sources, then persist the state file
// back. The upload happens even when the cycle fails, so items that were
// marked seen before the failure are not broadcast again on the next run.
func RunOnce(ctx context.Context, cfgPath string) error {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logs := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logs.Close()
	log := logs.Logger().With(logx.String("comp", "cron"))
	log.Info("single run starting", cfg.Summary()...)

	var blob *blobstore.Client
	if cfg.Blob != nil {
		timeout, err := config.ParseDurationField("blob.timeout", cfg.Blob.Timeout)
		if err != nil {
			return err
		}
		blob = blobstore.New(blobstore.Config{
			ObjectURL: cfg.Blob.ObjectURL,
			Token:     cfg.Blob.Token,
			Timeout:   timeout,
		}, log.With(logx.String("comp", "blob")))
		if err := blob.Download(ctx, cfg.Storage.Path); err != nil {
			return err
		}
	}

	runErr := runCycle(ctx, cfg, log)

	if blob != nil {
		if err := blob.Upload(ctx, cfg.Storage.Path); err != nil {
			if runErr != nil {
				return errors.Join(runErr, err)
			}
			return err
		}
	}
	return runErr
}

func runCycle(ctx context.Context, cfg *config.Config, log logx.Logger) error {
	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	defer store.Close()

	connectTimeout, err := config.ParseDurationOrDefault(
		"discord.connect_timeout", cfg.Discord.ConnectTimeout, 30*time.Second)
	if err != nil {
		return err
	}
	adapter, err := discord.New(discord.Config{
		Token:          cfg.Discord.Token,
		ConnectTimeout: connectTimeout,
	}, log.With(logx.String("comp", "discord")))
	if err != nil {
		return err
	}
	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	defer adapter.Close(ctx)

	return runPipeline(ctx, cfg, store, adapter, log)
}

// runPipeline assembles and runs one cycle on an already connected session.
// The directory gets no store: guild membership is never persisted in
// stateless mode, the channel mapping is rediscovered on every run and
// discarded.
func runPipeline(ctx context.Context, cfg *config.Config, store storage.Store, m kit.Messenger, log logx.Logger) error {
	dir := directory.New(cfg.ChannelName(), nil, log.With(logx.String("comp", "directory")))
	dir.Refresh(ctx, m)
	if len(dir.Targets()) == 0 {
		log.Warn("no guild has a usable broadcast channel",
			logx.String("channel_name", cfg.ChannelName()))
	}

	disp := broadcast.New(broadcast.Config{
		RatePerSec: cfg.Discord.RatePerSec,
	}, m, dir, log.With(logx.String("comp", "broadcast")))

	srcs, err := BuildSources(cfg, log)
	if err != nil {
		return err
	}

	pol := poller.New(poller.Config{
		RetentionDays: cfg.Poll.RetentionDays,
	}, srcs, store, disp, log.With(logx.String("comp", "poller")))

	stats := pol.RunCycle(ctx)
	log.Info("single run finished",
		logx.Int("checked", stats.Checked),
		logx.Int("posted", stats.Posted),
		logx.Int("errors", stats.Errors))
	if stats.Errors > 0 {
		return fmt.Errorf("%d of %d sources failed", stats.Errors, stats.Checked)
	}
	return nil
}
