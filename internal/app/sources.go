package app

import (
	"fmt"

	"linkwatch/internal/config"
	"linkwatch/internal/sources"
	logx "linkwatch/pkg/logx"
)

// BuildSources maps the sources section of the config onto adapters. The
// returned order is the cycle order.
func BuildSources(cfg *config.Config, log logx.Logger) ([]sources.Source, error) {
	client := sources.NewClient(log.With(logx.String("comp", "http")))

	var out []sources.Source
	if x := cfg.Sources.X; x != nil {
		out = append(out, sources.NewXAPI(client, sources.XAPIConfig{
			BaseURL:     x.BaseURL,
			BearerToken: x.BearerToken,
			UserID:      x.UserID,
			Username:    x.Username,
		}, log))
	}
	if yt := cfg.Sources.YouTube; yt != nil {
		out = append(out, sources.NewYouTube(client, sources.YouTubeConfig{
			BaseURL:   yt.BaseURL,
			APIKey:    yt.APIKey,
			ChannelID: yt.ChannelID,
			TitleTag:  yt.TitleTag,
		}, log))
	}
	if c := cfg.Sources.Column; c != nil {
		out = append(out, sources.NewColumnFeed(client, sources.FeedConfig{
			APIBase:  c.APIBase,
			LinkBase: c.LinkBase,
		}, log))
	}
	if n := cfg.Sources.News; n != nil {
		out = append(out, sources.NewNewsFeed(client, sources.FeedConfig{
			APIBase:  n.APIBase,
			LinkBase: n.LinkBase,
		}, log))
	}
	for _, sc := range cfg.Sources.Scrapes {
		extract, err := extractorFor(sc.Kind)
		if err != nil {
			return nil, err
		}
		out = append(out, sources.NewScraper(client, sources.ScraperConfig{
			Name:       sc.Name,
			PageURL:    sc.URL,
			Extract:    extract,
			SkipPinned: sc.SkipPinned,
		}, log))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	return out, nil
}

func extractorFor(kind string) (sources.Extract, error) {
	switch kind {
	case "facebook":
		return sources.ExtractFacebookPosts, nil
	case "status":
		return sources.ExtractStatusLinks, nil
	case "column":
		return sources.ExtractColumnLinks, nil
	case "news":
		return sources.ExtractNewsLinks, nil
	default:
		return nil, fmt.Errorf("unknown scrape kind %q", kind)
	}
}
