package directory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"linkwatch/internal/storage"
	kit "linkwatch/internal/transport"
	logx "linkwatch/pkg/logx"
)

type fakeMessenger struct {
	guilds   []kit.GuildInfo
	channels map[string][]kit.ChannelInfo
}

func (f *fakeMessenger) SendText(context.Context, string, string) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeMessenger) StartThread(context.Context, kit.MessageRef, string, time.Duration) error {
	return nil
}

func (f *fakeMessenger) Channels(_ context.Context, guildID string) ([]kit.ChannelInfo, error) {
	return f.channels[guildID], nil
}

func (f *fakeMessenger) Guilds() []kit.GuildInfo { return f.guilds }

func TestRefreshFiltersNameAndPermission(t *testing.T) {
	t.Parallel()
	m := &fakeMessenger{
		guilds: []kit.GuildInfo{
			{ID: "g1", Name: "Has channel"},
			{ID: "g2", Name: "No permission"},
			{ID: "g3", Name: "No channel"},
		},
		channels: map[string][]kit.ChannelInfo{
			"g1": {{ID: "c1", Name: "ucg-news", CanSend: true}},
			"g2": {{ID: "c2", Name: "ucg-news", CanSend: false}},
			"g3": {{ID: "c3", Name: "general", CanSend: true}},
		},
	}

	d := New("ucg-news", nil, logx.Nop())
	d.Refresh(context.Background(), m)

	targets := d.Targets()
	if len(targets) != 1 {
		t.Fatalf("expected 1 target, got %v", targets)
	}
	if targets[0] != (kit.Target{GuildID: "g1", ChannelID: "c1"}) {
		t.Fatalf("unexpected target %+v", targets[0])
	}
}

func TestMembershipEvents(t *testing.T) {
	t.Parallel()
	m := &fakeMessenger{
		channels: map[string][]kit.ChannelInfo{
			"g1": {{ID: "c1", Name: "ucg-news", CanSend: true}},
		},
	}
	ctx := context.Background()
	d := New("ucg-news", nil, logx.Nop())

	d.HandleEvent(ctx, m, kit.Event{Kind: kit.EventGuildJoined, Guild: kit.GuildInfo{ID: "g1", Name: "One"}})
	if len(d.Targets()) != 1 {
		t.Fatal("join did not register a target")
	}

	d.HandleEvent(ctx, m, kit.Event{Kind: kit.EventGuildLeft, Guild: kit.GuildInfo{ID: "g1"}})
	if len(d.Targets()) != 0 {
		t.Fatal("leave did not evict the target")
	}
}

func TestGuildPersistence(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "dir.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	m := &fakeMessenger{
		guilds: []kit.GuildInfo{{ID: "g1", Name: "One"}, {ID: "g2", Name: "Two"}},
		channels: map[string][]kit.ChannelInfo{
			"g1": {{ID: "c1", Name: "ucg-news", CanSend: true}},
			"g2": {{ID: "c2", Name: "ucg-news", CanSend: true}},
		},
	}
	ctx := context.Background()
	d := New("ucg-news", st, logx.Nop())
	d.Refresh(ctx, m)

	guilds, err := st.ActiveGuilds(ctx)
	if err != nil {
		t.Fatalf("ActiveGuilds: %v", err)
	}
	if len(guilds) != 2 {
		t.Fatalf("expected 2 persisted guilds, got %d", len(guilds))
	}

	d.HandleEvent(ctx, m, kit.Event{Kind: kit.EventGuildLeft, Guild: kit.GuildInfo{ID: "g2"}})
	guilds, err = st.ActiveGuilds(ctx)
	if err != nil {
		t.Fatalf("ActiveGuilds: %v", err)
	}
	if len(guilds) != 1 || guilds[0].ID != "g1" {
		t.Fatalf("unexpected active guilds after leave: %+v", guilds)
	}
}
