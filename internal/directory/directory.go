// Package directory maintains the community -> channel mapping broadcasts go
// to. It caches only channels matching the configured name where the bot can
// send, and keeps the cache current from gateway membership events.
package directory

import (
	"context"
	"sort"
	"sync"

	"linkwatch/internal/storage"
	kit "linkwatch/internal/transport"
	logx "linkwatch/pkg/logx"
)

type Directory struct {
	log         logx.Logger
	channelName string

	// store persists guild membership (service mode). Nil in stateless mode,
	// where the directory is rebuilt fresh every run and discarded.
	store storage.Store

	mu      sync.RWMutex
	targets map[string]string // guildID -> channelID
}

func New(channelName string, store storage.Store, log logx.Logger) *Directory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Directory{
		log:         log,
		channelName: channelName,
		store:       store,
		targets:     map[string]string{},
	}
}

// Refresh rebuilds the cache by walking every guild the session belongs to.
func (d *Directory) Refresh(ctx context.Context, m kit.Messenger) {
	guilds := m.Guilds()
	d.log.Info("discovering destination channels",
		logx.String("channel", d.channelName),
		logx.Int("guilds", len(guilds)))

	found := 0
	for _, g := range guilds {
		if d.addGuild(ctx, m, g) {
			found++
		}
	}
	d.log.Info("channel discovery complete", logx.Int("found", found))
}

// HandleEvent applies one gateway membership event to the cache.
func (d *Directory) HandleEvent(ctx context.Context, m kit.Messenger, ev kit.Event) {
	switch ev.Kind {
	case kit.EventGuildJoined:
		d.addGuild(ctx, m, ev.Guild)
	case kit.EventGuildLeft:
		d.log.Info("left guild", logx.String("guild_id", ev.Guild.ID))
		d.Evict(ev.Guild.ID)
		if d.store != nil {
			if err := d.store.MarkGuildInactive(ctx, ev.Guild.ID); err != nil {
				d.log.Error("failed to mark guild inactive", logx.String("guild_id", ev.Guild.ID), logx.Err(err))
			}
		}
	}
}

func (d *Directory) addGuild(ctx context.Context, m kit.Messenger, g kit.GuildInfo) bool {
	if d.store != nil {
		if err := d.store.UpsertGuild(ctx, g.ID, g.Name); err != nil {
			d.log.Error("failed to persist guild", logx.String("guild_id", g.ID), logx.Err(err))
		}
	}

	channels, err := m.Channels(ctx, g.ID)
	if err != nil {
		d.log.Error("channel listing failed", logx.String("guild", g.Name), logx.Err(err))
		return false
	}
	for _, ch := range channels {
		if ch.Name != d.channelName {
			continue
		}
		if !ch.CanSend {
			d.log.Warn("missing send permission",
				logx.String("guild", g.Name),
				logx.String("channel", ch.Name))
			return false
		}
		d.mu.Lock()
		d.targets[g.ID] = ch.ID
		d.mu.Unlock()
		d.log.Info("target channel cached",
			logx.String("guild", g.Name),
			logx.String("channel", ch.Name))
		return true
	}
	d.log.Debug("channel not present in guild", logx.String("guild", g.Name))
	return false
}

// Evict removes a guild's target, e.g. after a send discovered the channel no
// longer exists.
func (d *Directory) Evict(guildID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.targets, guildID)
}

// Targets returns a stable snapshot of the current destinations.
func (d *Directory) Targets() []kit.Target {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]kit.Target, 0, len(d.targets))
	for gid, cid := range d.targets {
		out = append(out, kit.Target{GuildID: gid, ChannelID: cid})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}
