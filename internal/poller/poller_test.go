package poller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"linkwatch/internal/broadcast"
	"linkwatch/internal/directory"
	"linkwatch/internal/sources"
	"linkwatch/internal/storage"
	kit "linkwatch/internal/transport"
	logx "linkwatch/pkg/logx"
)

type fakeSource struct {
	name  string
	item  sources.Item
	ok    bool
	err   error
	panic bool

	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Latest(context.Context) (sources.Item, bool, error) {
	f.calls++
	if f.panic {
		panic("adapter blew up")
	}
	return f.item, f.ok, f.err
}

func newItemSource(name, url string) *fakeSource {
	return &fakeSource{
		name: name,
		item: sources.Item{URL: url, Source: name},
		ok:   true,
	}
}

type fakeMessenger struct {
	mu       sync.Mutex
	guilds   []kit.GuildInfo
	channels map[string][]kit.ChannelInfo
	sendErr  map[string]error

	sent []string
}

func (f *fakeMessenger) SendText(_ context.Context, channelID, _ string) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[channelID]; err != nil {
		return kit.MessageRef{}, err
	}
	f.sent = append(f.sent, channelID)
	return kit.MessageRef{ChannelID: channelID, MessageID: "m" + channelID}, nil
}

func (f *fakeMessenger) StartThread(context.Context, kit.MessageRef, string, time.Duration) error {
	return nil
}

func (f *fakeMessenger) Channels(_ context.Context, guildID string) ([]kit.ChannelInfo, error) {
	return f.channels[guildID], nil
}

func (f *fakeMessenger) Guilds() []kit.GuildInfo { return f.guilds }

func (f *fakeMessenger) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// harness wires a real sqlite store, a two-guild directory and a dispatcher
// around the given sources.
type harness struct {
	p  *Poller
	st storage.Store
	m  *fakeMessenger
}

func newHarness(t *testing.T, srcs []sources.Source, sendErr map[string]error) *harness {
	t.Helper()

	st, err := storage.Open(storage.Config{
		Path: filepath.Join(t.TempDir(), "poller.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := &fakeMessenger{
		channels: map[string][]kit.ChannelInfo{},
		sendErr:  sendErr,
	}
	for i := 1; i <= 2; i++ {
		gid := fmt.Sprintf("g%d", i)
		m.guilds = append(m.guilds, kit.GuildInfo{ID: gid, Name: "Guild " + gid})
		m.channels[gid] = []kit.ChannelInfo{
			{ID: fmt.Sprintf("c%d", i), Name: "ucg-news", CanSend: true},
		}
	}

	dir := directory.New("ucg-news", nil, logx.Nop())
	dir.Refresh(context.Background(), m)

	disp := broadcast.New(broadcast.Config{RatePerSec: 1000}, m, dir, logx.Nop())
	p := New(Config{}, srcs, st, disp, logx.Nop())
	return &harness{p: p, st: st, m: m}
}

func TestRunCycleBroadcastsNewItemOnce(t *testing.T) {
	t.Parallel()

	src := newItemSource("X", "https://ex/1")
	h := newHarness(t, []sources.Source{src}, nil)
	ctx := context.Background()

	stats := h.p.RunCycle(ctx)
	if stats.Checked != 1 || stats.Posted != 1 || stats.Errors != 0 {
		t.Fatalf("first cycle stats = %+v", stats)
	}
	if got := h.m.sentTo(); len(got) != 2 {
		t.Fatalf("delivered to %v, want both channels", got)
	}
	if !h.st.Seen(ctx, "https://ex/1") {
		t.Fatal("item not recorded as seen")
	}

	// Second cycle sees the same item and must not re-broadcast it.
	stats = h.p.RunCycle(ctx)
	if stats.Posted != 0 {
		t.Fatalf("second cycle posted %d, want 0", stats.Posted)
	}
	if got := h.m.sentTo(); len(got) != 2 {
		t.Fatalf("after second cycle delivered to %v, want no new sends", got)
	}
}

func TestRunCycleIsolatesSourceFailure(t *testing.T) {
	t.Parallel()

	broken := &fakeSource{name: "Broken", err: errors.New("boom")}
	good := newItemSource("Good", "https://ex/2")
	h := newHarness(t, []sources.Source{broken, good}, nil)

	stats := h.p.RunCycle(context.Background())
	if stats.Errors != 1 {
		t.Fatalf("errors = %d, want 1", stats.Errors)
	}
	if stats.Posted != 1 {
		t.Fatalf("posted = %d, want 1 despite earlier source failure", stats.Posted)
	}
	if !h.st.Seen(context.Background(), "https://ex/2") {
		t.Fatal("surviving source's item not recorded")
	}
}

func TestRunCycleContainsPanic(t *testing.T) {
	t.Parallel()

	wild := &fakeSource{name: "Wild", panic: true}
	good := newItemSource("Good", "https://ex/3")
	h := newHarness(t, []sources.Source{wild, good}, nil)

	stats := h.p.RunCycle(context.Background())
	if stats.Errors != 1 || stats.Posted != 1 {
		t.Fatalf("stats = %+v, want panic counted as error and good source posted", stats)
	}
}

func TestRunCycleMarksSeenDespitePartialFailure(t *testing.T) {
	t.Parallel()

	src := newItemSource("X", "https://ex/4")
	h := newHarness(t, []sources.Source{src},
		map[string]error{"c2": kit.ErrForbidden})
	ctx := context.Background()

	h.p.RunCycle(ctx)
	if got := h.m.sentTo(); len(got) != 1 || got[0] != "c1" {
		t.Fatalf("delivered to %v, want only c1", got)
	}
	if !h.st.Seen(ctx, "https://ex/4") {
		t.Fatal("item must be marked seen even when a target fails")
	}

	h.p.RunCycle(ctx)
	if got := h.m.sentTo(); len(got) != 1 {
		t.Fatalf("partially failed item was replayed: %v", got)
	}
}

func TestRunCycleDrainHaltsBeforeNextSource(t *testing.T) {
	t.Parallel()

	first := newItemSource("First", "https://ex/5")
	second := newItemSource("Second", "https://ex/6")
	h := newHarness(t, []sources.Source{first, second}, nil)

	h.p.RequestDrain()
	stats := h.p.RunCycle(context.Background())
	if !stats.Drained || stats.Checked != 0 {
		t.Fatalf("stats = %+v, want drained with no sources checked", stats)
	}
	if first.calls != 0 || second.calls != 0 {
		t.Fatal("drained cycle must not touch sources")
	}
}

func TestServiceRecordsCycleTimestamp(t *testing.T) {
	t.Parallel()

	src := newItemSource("X", "https://ex/7")
	h := newHarness(t, []sources.Source{src}, nil)

	svc := NewService(time.Minute, h.p, h.st, logx.Nop())
	svc.runOnce(context.Background())

	v, ok, err := h.st.GetState(context.Background(), stateLastCycle)
	if err != nil || !ok {
		t.Fatalf("get state = (%q, %v, %v), want recorded value", v, ok, err)
	}
	if _, err := time.Parse(time.RFC3339, v); err != nil {
		t.Fatalf("last cycle timestamp %q not RFC3339: %v", v, err)
	}
}
