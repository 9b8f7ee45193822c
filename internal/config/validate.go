package config

import (
	"fmt"
	"strings"
	"time"

	logx "linkwatch/pkg/logx"
)

const (
	DefaultChannelName = "ucg-news-bot"

	defaultInterval = 5 * time.Minute
	minInterval     = time.Minute
)

var scrapeKinds = map[string]bool{
	"facebook": true,
	"status":   true,
	"column":   true,
	"news":     true,
}

// Validate rejects configs the bot cannot run with. It is called once at
// startup and again before a hot reload is committed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required")
	}
	if _, err := ParseDurationField("discord.connect_timeout", c.Discord.ConnectTimeout); err != nil {
		return err
	}

	iv, err := ParseDurationOrDefault("poll.interval", c.Poll.Interval, defaultInterval)
	if err != nil {
		return err
	}
	if iv < minInterval {
		return fmt.Errorf("poll.interval %s is below the minimum %s", iv, minInterval)
	}
	if c.Poll.RetentionDays < 0 {
		return fmt.Errorf("poll.retention_days must be >= 0")
	}

	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	if c.Blob != nil {
		if strings.TrimSpace(c.Blob.ObjectURL) == "" {
			return fmt.Errorf("blob.object_url is required when blob sync is configured")
		}
		if _, err := ParseDurationField("blob.timeout", c.Blob.Timeout); err != nil {
			return err
		}
	}

	if c.Sources.Enabled() == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	if x := c.Sources.X; x != nil {
		if strings.TrimSpace(x.BearerToken) == "" || strings.TrimSpace(x.UserID) == "" {
			return fmt.Errorf("sources.x requires bearer_token and user_id")
		}
	}
	if yt := c.Sources.YouTube; yt != nil {
		if strings.TrimSpace(yt.APIKey) == "" || strings.TrimSpace(yt.ChannelID) == "" {
			return fmt.Errorf("sources.youtube requires api_key and channel_id")
		}
	}
	for i, sc := range c.Sources.Scrapes {
		if strings.TrimSpace(sc.Name) == "" || strings.TrimSpace(sc.URL) == "" {
			return fmt.Errorf("sources.scrapes[%d] requires name and url", i)
		}
		if !scrapeKinds[sc.Kind] {
			return fmt.Errorf("sources.scrapes[%d]: unknown kind %q", i, sc.Kind)
		}
	}
	return nil
}

// ChannelName returns the configured broadcast channel name or the default.
func (c *Config) ChannelName() string {
	if name := strings.TrimSpace(c.Discord.ChannelName); name != "" {
		return name
	}
	return DefaultChannelName
}

// Interval returns the validated cycle interval.
func (c *Config) Interval() time.Duration {
	iv, err := ParseDurationOrDefault("poll.interval", c.Poll.Interval, defaultInterval)
	if err != nil {
		return defaultInterval
	}
	return iv
}

// Summary returns structured fields describing the effective configuration
// with secrets reduced to set/unset flags. Safe to log at startup.
func (c *Config) Summary() []logx.Field {
	fields := []logx.Field{
		logx.Bool("discord.token_set", strings.TrimSpace(c.Discord.Token) != ""),
		logx.String("discord.channel_name", c.ChannelName()),
		logx.Duration("poll.interval", c.Interval()),
		logx.Int("poll.retention_days", c.Poll.RetentionDays),
		logx.String("storage.path", c.Storage.Path),
		logx.String("logging.level", c.Logging.Level),
		logx.Int("sources.enabled", c.Sources.Enabled()),
		logx.Bool("sources.x", c.Sources.X != nil),
		logx.Bool("sources.youtube", c.Sources.YouTube != nil),
		logx.Bool("sources.column", c.Sources.Column != nil),
		logx.Bool("sources.news", c.Sources.News != nil),
		logx.Int("sources.scrapes", len(c.Sources.Scrapes)),
	}
	if c.Blob != nil {
		fields = append(fields,
			logx.String("blob.object_url", c.Blob.ObjectURL),
			logx.Bool("blob.token_set", strings.TrimSpace(c.Blob.Token) != ""),
		)
	}
	return fields
}
