package transport

import (
	"context"
	"errors"
	"time"
)

// Sentinel error classes for destination failures. Adapters map their
// platform's REST errors onto these so callers can branch without importing
// the platform SDK.
var (
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
)

type EventKind string

const (
	EventReady       EventKind = "ready"
	EventGuildJoined EventKind = "guild_joined"
	EventGuildLeft   EventKind = "guild_left"
)

// Event is a connection-lifecycle or membership event from the platform.
type Event struct {
	Kind  EventKind
	Guild GuildInfo
}

type GuildInfo struct {
	ID   string
	Name string
}

// ChannelInfo describes one text channel the bot can see in a guild.
type ChannelInfo struct {
	ID      string
	Name    string
	CanSend bool
}

// Target is one destination channel eligible to receive broadcasts.
type Target struct {
	GuildID   string
	ChannelID string
}

// MessageRef identifies a sent message, used to start a thread on it.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Messenger is the minimal send surface of the messaging platform.
type Messenger interface {
	SendText(ctx context.Context, channelID, text string) (MessageRef, error)

	// StartThread opens a discussion thread on a previously sent message.
	StartThread(ctx context.Context, ref MessageRef, name string, autoArchive time.Duration) error

	// Channels lists the text channels of a guild together with whether the
	// bot holds send permission in each.
	Channels(ctx context.Context, guildID string) ([]ChannelInfo, error)

	// Guilds returns the guilds the connected session currently belongs to.
	Guilds() []GuildInfo
}

// Connector owns the platform connection lifecycle. Connect blocks until the
// session is ready (or ctx is done) so callers can sequence work explicitly
// instead of burying it in platform callbacks.
type Connector interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// Events returns the membership/lifecycle event stream. Events may be
	// dropped if the consumer is slower than the platform gateway.
	Events() <-chan Event
}
