package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	logx "linkwatch/pkg/logx"
)

const defaultXBaseURL = "https://api.x.com/2"

// XAPI fetches the newest tweet of one account through the X API v2.
type XAPI struct {
	client *Client
	log    logx.Logger

	baseURL  string
	bearer   string
	userID   string
	username string
}

type XAPIConfig struct {
	BaseURL     string // defaults to the public X API v2 endpoint
	BearerToken string
	UserID      string
	Username    string // optional, used for nicer URLs
}

func NewXAPI(client *Client, cfg XAPIConfig, log logx.Logger) *XAPI {
	base := cfg.BaseURL
	if base == "" {
		base = defaultXBaseURL
	}
	return &XAPI{
		client:   client,
		log:      log.With(logx.String("source", "x")),
		baseURL:  base,
		bearer:   cfg.BearerToken,
		userID:   cfg.UserID,
		username: cfg.Username,
	}
}

func (x *XAPI) Name() string { return "X/Twitter" }

func (x *XAPI) Latest(ctx context.Context) (Item, bool, error) {
	return latestWithRetry(ctx, x.log, "x.latest", x.fetch)
}

func (x *XAPI) fetch(ctx context.Context) (Item, bool, error) {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+x.bearer)

	resp, err := x.client.get(ctx, fmt.Sprintf("%s/users/%s/tweets", x.baseURL, x.userID), hdr)
	if err != nil {
		return Item{}, false, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		drainBody(resp)
		x.log.Warn("rate limited by origin", logx.String("retry_after", resp.Header.Get("Retry-After")))
		return Item{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body := drainBody(resp)
		x.log.Error("request rejected", logx.Int("status", resp.StatusCode), logx.String("body", body))
		return Item{}, false, nil
	}

	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err = json.NewDecoder(resp.Body).Decode(&payload)
	resp.Body.Close()
	if err != nil {
		return Item{}, false, fmt.Errorf("decode tweets payload: %w", err)
	}

	if len(payload.Data) == 0 {
		x.log.Warn("no tweets in response", logx.String("user_id", x.userID))
		return Item{}, false, nil
	}

	tweetURL := fmt.Sprintf("https://x.com/i/web/status/%s", payload.Data[0].ID)
	if x.username != "" {
		tweetURL = fmt.Sprintf("https://x.com/%s/status/%s", x.username, payload.Data[0].ID)
	}
	x.log.Info("found latest tweet", logx.String("url", tweetURL))
	return Item{URL: tweetURL, Source: x.Name()}, true, nil
}
