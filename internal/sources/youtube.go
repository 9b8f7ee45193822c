package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	logx "linkwatch/pkg/logx"
)

const defaultYouTubeBaseURL = "https://www.googleapis.com/youtube/v3"

// YouTube fetches the newest video of one channel through the Data API v3
// search endpoint.
type YouTube struct {
	client *Client
	log    logx.Logger

	baseURL   string
	apiKey    string
	channelID string
	titleTag  string
}

type YouTubeConfig struct {
	BaseURL   string
	APIKey    string
	ChannelID string
	// TitleTag keeps only videos whose title contains this tag (the channel
	// uploads several locales; e.g. "[EN]"). Empty disables the filter.
	TitleTag string
}

func NewYouTube(client *Client, cfg YouTubeConfig, log logx.Logger) *YouTube {
	base := cfg.BaseURL
	if base == "" {
		base = defaultYouTubeBaseURL
	}
	return &YouTube{
		client:    client,
		log:       log.With(logx.String("source", "youtube")),
		baseURL:   base,
		apiKey:    cfg.APIKey,
		channelID: cfg.ChannelID,
		titleTag:  cfg.TitleTag,
	}
}

func (y *YouTube) Name() string { return "YouTube" }

func (y *YouTube) Latest(ctx context.Context) (Item, bool, error) {
	return latestWithRetry(ctx, y.log, "youtube.latest", y.fetch)
}

func (y *YouTube) fetch(ctx context.Context) (Item, bool, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("channelId", y.channelID)
	q.Set("order", "date")
	q.Set("type", "video")
	q.Set("maxResults", "3")
	q.Set("key", y.apiKey)

	resp, err := y.client.get(ctx, y.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return Item{}, false, err
	}

	// The Data API signals quota exhaustion as 403 with a quotaExceeded
	// reason; treat it like a rate limit, not a fatal error.
	if resp.StatusCode == http.StatusForbidden {
		body := drainBody(resp)
		if strings.Contains(body, "quotaExceeded") {
			y.log.Warn("api quota exceeded; consider a longer poll interval")
		} else {
			y.log.Error("request forbidden", logx.String("body", body))
		}
		return Item{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body := drainBody(resp)
		y.log.Error("request rejected", logx.Int("status", resp.StatusCode), logx.String("body", body))
		return Item{}, false, nil
	}

	var payload struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
		} `json:"items"`
	}
	err = json.NewDecoder(resp.Body).Decode(&payload)
	resp.Body.Close()
	if err != nil {
		return Item{}, false, fmt.Errorf("decode search payload: %w", err)
	}

	for _, it := range payload.Items {
		if y.titleTag != "" && !strings.Contains(it.Snippet.Title, y.titleTag) {
			continue
		}
		videoURL := "https://www.youtube.com/watch?v=" + it.ID.VideoID
		y.log.Info("found latest video",
			logx.String("title", it.Snippet.Title),
			logx.String("url", videoURL))
		return Item{URL: videoURL, Source: y.Name()}, true, nil
	}

	y.log.Warn("no qualifying videos", logx.String("channel_id", y.channelID))
	return Item{}, false, nil
}
