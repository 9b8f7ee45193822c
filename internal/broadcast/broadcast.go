// Package broadcast fans one content item out to every destination channel.
package broadcast

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"linkwatch/internal/directory"
	kit "linkwatch/internal/transport"
	logx "linkwatch/pkg/logx"
)

const (
	// Discord caps thread names at 100 characters.
	threadNameMax = 100
	// fallbackThreadName is used when the URL truncates to nothing usable.
	fallbackThreadName = "Discussion"
	// Threads auto-archive after a day of inactivity.
	threadAutoArchive = 24 * time.Hour
)

// Result summarizes one fan-out.
type Result struct {
	Sent   int
	Failed int
}

type Config struct {
	// RatePerSec bounds message sends across targets. <=0 means 5.
	RatePerSec int
}

type Dispatcher struct {
	log       logx.Logger
	messenger kit.Messenger
	dir       *directory.Directory
	limiter   *rate.Limiter
}

func New(cfg Config, messenger kit.Messenger, dir *directory.Directory, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Dispatcher{
		log:       log,
		messenger: messenger,
		dir:       dir,
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Broadcast sends url to every cached destination and best-effort opens a
// discussion thread on each delivered message. A failure at one target is
// counted and logged but never stops the remaining targets.
func (d *Dispatcher) Broadcast(ctx context.Context, url, source string) Result {
	targets := d.dir.Targets()
	if len(targets) == 0 {
		d.log.Warn("no destination channels available", logx.String("source", source))
		return Result{}
	}

	var res Result
	for _, t := range targets {
		if err := d.limiter.Wait(ctx); err != nil {
			// Context gone; report the rest as failed and stop.
			res.Failed += len(targets) - res.Sent - res.Failed
			break
		}
		if err := d.sendOne(ctx, t, url); err != nil {
			res.Failed++
			continue
		}
		res.Sent++
	}

	d.log.Info("broadcast finished",
		logx.String("source", source),
		logx.String("url", url),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed))
	return res
}

func (d *Dispatcher) sendOne(ctx context.Context, t kit.Target, url string) error {
	ref, err := d.messenger.SendText(ctx, t.ChannelID, url)
	if err != nil {
		switch {
		case errors.Is(err, kit.ErrForbidden):
			d.log.Warn("send forbidden; evicting target", logx.String("guild_id", t.GuildID), logx.Err(err))
			d.dir.Evict(t.GuildID)
		case errors.Is(err, kit.ErrNotFound):
			d.log.Warn("channel gone; evicting target", logx.String("guild_id", t.GuildID), logx.Err(err))
			d.dir.Evict(t.GuildID)
		default:
			d.log.Error("send failed", logx.String("guild_id", t.GuildID), logx.Err(err))
		}
		return err
	}

	// The message is delivered at this point; a thread is a nicety and its
	// failure never counts against the send.
	if err := d.messenger.StartThread(ctx, ref, ThreadName(url), threadAutoArchive); err != nil {
		d.log.Warn("thread creation failed",
			logx.String("guild_id", t.GuildID),
			logx.String("channel_id", t.ChannelID),
			logx.Err(err))
	}
	return nil
}

// ThreadName derives a thread title from the item URL.
func ThreadName(url string) string {
	name := url
	if len(name) > threadNameMax {
		cut := threadNameMax
		// Back off to a rune boundary so a multi-byte URL never yields an
		// invalid-UTF-8 title.
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fallbackThreadName
	}
	return name
}
