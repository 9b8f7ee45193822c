package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	logx "linkwatch/pkg/logx"
)

// Defaults follow the card-game portal the bot was written for; both remain
// configurable so tests and forks can point elsewhere.
const (
	defaultFeedAPIBase  = "https://api.ultraman-cardgame.com/api/v1/us"
	defaultFeedLinkBase = "https://ultraman-cardgame.com/page/us"
)

type feedEntry struct {
	ID     json.Number `json:"id"`
	Title  string      `json:"title"`
	Pinned bool        `json:"pined"` // origin's own spelling
}

type feedPayload struct {
	Data []feedEntry `json:"data"`
}

type FeedConfig struct {
	APIBase  string
	LinkBase string
}

func (c FeedConfig) withDefaults() FeedConfig {
	if c.APIBase == "" {
		c.APIBase = defaultFeedAPIBase
	}
	if c.LinkBase == "" {
		c.LinkBase = defaultFeedLinkBase
	}
	return c
}

// ColumnFeed polls the column listing endpoint and surfaces the newest entry.
type ColumnFeed struct {
	client *Client
	log    logx.Logger
	cfg    FeedConfig
}

func NewColumnFeed(client *Client, cfg FeedConfig, log logx.Logger) *ColumnFeed {
	return &ColumnFeed{
		client: client,
		log:    log.With(logx.String("source", "column")),
		cfg:    cfg.withDefaults(),
	}
}

func (f *ColumnFeed) Name() string { return "Columns" }

func (f *ColumnFeed) Latest(ctx context.Context) (Item, bool, error) {
	return latestWithRetry(ctx, f.log, "column.latest", func(ctx context.Context) (Item, bool, error) {
		entries, err := fetchFeed(ctx, f.client, f.log, f.cfg.APIBase+"/column", 20)
		if err != nil || entries == nil {
			return Item{}, false, err
		}
		if len(entries) == 0 {
			f.log.Warn("no columns in response")
			return Item{}, false, nil
		}
		e := entries[0]
		link := fmt.Sprintf("%s/column/column-detail/%s", f.cfg.LinkBase, e.ID.String())
		f.log.Info("found latest column", logx.String("title", e.Title), logx.String("url", link))
		return Item{URL: link, Source: f.Name()}, true, nil
	})
}

// NewsFeed polls the news listing endpoint. The origin always surfaces pinned
// announcements first, so those are skipped; only the newest unpinned entry
// qualifies.
type NewsFeed struct {
	client *Client
	log    logx.Logger
	cfg    FeedConfig
}

func NewNewsFeed(client *Client, cfg FeedConfig, log logx.Logger) *NewsFeed {
	return &NewsFeed{
		client: client,
		log:    log.With(logx.String("source", "news")),
		cfg:    cfg.withDefaults(),
	}
}

func (f *NewsFeed) Name() string { return "News" }

func (f *NewsFeed) Latest(ctx context.Context) (Item, bool, error) {
	return latestWithRetry(ctx, f.log, "news.latest", func(ctx context.Context) (Item, bool, error) {
		entries, err := fetchFeed(ctx, f.client, f.log, f.cfg.APIBase+"/news", 18)
		if err != nil || entries == nil {
			return Item{}, false, err
		}
		for _, e := range entries {
			if e.Pinned {
				continue
			}
			link := fmt.Sprintf("%s/news/news-detail/%s", f.cfg.LinkBase, e.ID.String())
			f.log.Info("found latest news", logx.String("title", e.Title), logx.String("url", link))
			return Item{URL: link, Source: f.Name()}, true, nil
		}
		f.log.Warn("no unpinned news in response")
		return Item{}, false, nil
	})
}

// fetchFeed issues one listing GET and decodes the shared payload shape.
// A nil, nil return means the origin rejected the request (already logged).
func fetchFeed(ctx context.Context, client *Client, log logx.Logger, endpoint string, perPage int) ([]feedEntry, error) {
	q := url.Values{}
	q.Set("page", "1")
	q.Set("per_page", strconv.Itoa(perPage))

	resp, err := client.get(ctx, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		drainBody(resp)
		log.Warn("rate limited by origin", logx.String("retry_after", resp.Header.Get("Retry-After")))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body := drainBody(resp)
		log.Error("request rejected", logx.Int("status", resp.StatusCode), logx.String("body", body))
		return nil, nil
	}

	var payload feedPayload
	err = json.NewDecoder(resp.Body).Decode(&payload)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("decode feed payload: %w", err)
	}
	if payload.Data == nil {
		return []feedEntry{}, nil
	}
	return payload.Data, nil
}
