// Package discord adapts the discordgo session to the transport interfaces.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	kit "linkwatch/internal/transport"
	logx "linkwatch/pkg/logx"
)

type Config struct {
	Token string

	// ConnectTimeout bounds how long Connect waits for the gateway ready
	// event after the websocket is open. 0 means 30s.
	ConnectTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	session *discordgo.Session

	events chan kit.Event
	ready  chan struct{}

	runMu     sync.Mutex
	connected bool

	// droppedEvents counts gateway events dropped because the consumer was
	// slower than the gateway. Logged on Close to avoid per-event spam.
	droppedEvents uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	a := &Adapter{
		cfg:     cfg,
		log:     log,
		session: s,
		events:  make(chan kit.Event, 64),
		ready:   make(chan struct{}),
	}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	var readyOnce sync.Once

	a.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.log.Info("gateway ready",
			logx.String("user", r.User.Username),
			logx.Int("guilds", len(r.Guilds)))
		readyOnce.Do(func() { close(a.ready) })
		a.emit(kit.Event{Kind: kit.EventReady})
	})

	a.session.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		a.emit(kit.Event{
			Kind:  kit.EventGuildJoined,
			Guild: kit.GuildInfo{ID: g.ID, Name: g.Name},
		})
	})

	a.session.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		// Unavailable means a guild outage, not a removal.
		if g.Unavailable {
			return
		}
		a.emit(kit.Event{
			Kind:  kit.EventGuildLeft,
			Guild: kit.GuildInfo{ID: g.ID},
		})
	})
}

func (a *Adapter) emit(ev kit.Event) {
	select {
	case a.events <- ev:
	default:
		atomic.AddUint64(&a.droppedEvents, 1)
	}
}

func (a *Adapter) Events() <-chan kit.Event { return a.events }

// Connect opens the gateway session and blocks until the ready event arrives.
// Readiness is a discrete step here so callers can sequence connect -> work ->
// close instead of doing work inside platform callbacks.
func (a *Adapter) Connect(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.connected {
		return nil
	}

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	timeout := a.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case <-a.ready:
		a.connected = true
		return nil
	case <-tmr.C:
		_ = a.session.Close()
		return errors.New("timed out waiting for discord ready")
	case <-ctx.Done():
		_ = a.session.Close()
		return ctx.Err()
	}
}

func (a *Adapter) Close(_ context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.connected {
		return nil
	}
	a.connected = false
	if n := atomic.LoadUint64(&a.droppedEvents); n > 0 {
		a.log.Warn("gateway events were dropped", logx.Int64("dropped", int64(n)))
	}
	return a.session.Close()
}

func (a *Adapter) SendText(ctx context.Context, channelID, text string) (kit.MessageRef, error) {
	msg, err := a.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	return kit.MessageRef{ChannelID: channelID, MessageID: msg.ID}, nil
}

func (a *Adapter) StartThread(ctx context.Context, ref kit.MessageRef, name string, autoArchive time.Duration) error {
	minutes := int(autoArchive.Minutes())
	if minutes <= 0 {
		minutes = 1440
	}
	_, err := a.session.MessageThreadStart(ref.ChannelID, ref.MessageID, name, minutes, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return nil
}

func (a *Adapter) Channels(ctx context.Context, guildID string) ([]kit.ChannelInfo, error) {
	chans, err := a.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	var out []kit.ChannelInfo
	for _, ch := range chans {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		perms, err := a.session.UserChannelPermissions(a.session.State.User.ID, ch.ID)
		if err != nil {
			a.log.Debug("permission lookup failed",
				logx.String("guild_id", guildID),
				logx.String("channel_id", ch.ID),
				logx.Err(err))
			continue
		}
		out = append(out, kit.ChannelInfo{
			ID:      ch.ID,
			Name:    ch.Name,
			CanSend: perms&discordgo.PermissionSendMessages != 0,
		})
	}
	return out, nil
}

func (a *Adapter) Guilds() []kit.GuildInfo {
	a.session.State.RLock()
	defer a.session.State.RUnlock()
	out := make([]kit.GuildInfo, 0, len(a.session.State.Guilds))
	for _, g := range a.session.State.Guilds {
		out = append(out, kit.GuildInfo{ID: g.ID, Name: g.Name})
	}
	return out
}

// classify maps discordgo REST errors onto the transport sentinels so callers
// can tell permission and stale-channel failures apart from transport faults.
func classify(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", kit.ErrForbidden, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", kit.ErrNotFound, err)
		}
	}
	return err
}
