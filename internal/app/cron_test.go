package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"linkwatch/internal/config"
	"linkwatch/internal/storage"
	kit "linkwatch/internal/transport"
	logx "linkwatch/pkg/logx"
)

type fakeMessenger struct {
	guilds   []kit.GuildInfo
	channels map[string][]kit.ChannelInfo

	sent []string // channelIDs in send order
}

func (f *fakeMessenger) SendText(_ context.Context, channelID, _ string) (kit.MessageRef, error) {
	f.sent = append(f.sent, channelID)
	return kit.MessageRef{ChannelID: channelID, MessageID: "m1"}, nil
}

func (f *fakeMessenger) StartThread(context.Context, kit.MessageRef, string, time.Duration) error {
	return nil
}

func (f *fakeMessenger) Channels(_ context.Context, guildID string) ([]kit.ChannelInfo, error) {
	return f.channels[guildID], nil
}

func (f *fakeMessenger) Guilds() []kit.GuildInfo { return f.guilds }

func TestStatelessRunDoesNotPersistGuilds(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body><a href="https://x.com/u/status/11">post</a></body></html>`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Storage: config.StorageConfig{Path: filepath.Join(t.TempDir(), "state.db")},
		Sources: config.SourcesConfig{
			Scrapes: []config.ScrapeSourceConfig{
				{Name: "Statuses", URL: srv.URL, Kind: "status"},
			},
		},
	}
	st, err := storage.Open(storage.Config{Path: cfg.Storage.Path}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	m := &fakeMessenger{
		guilds: []kit.GuildInfo{{ID: "g1", Name: "One"}},
		channels: map[string][]kit.ChannelInfo{
			"g1": {{ID: "c1", Name: config.DefaultChannelName, CanSend: true}},
		},
	}

	if err := runPipeline(ctx, cfg, st, m, logx.Nop()); err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if len(m.sent) != 1 || m.sent[0] != "c1" {
		t.Fatalf("unexpected deliveries %v", m.sent)
	}
	if !st.Seen(ctx, "https://x.com/u/status/11") {
		t.Fatal("item not marked seen")
	}

	// Guild membership is a service-mode concern; a single-cycle run must
	// leave the guilds table untouched.
	guilds, err := st.ActiveGuilds(ctx)
	if err != nil {
		t.Fatalf("ActiveGuilds: %v", err)
	}
	if len(guilds) != 0 {
		t.Fatalf("stateless run persisted guild membership: %+v", guilds)
	}
}
