package config

type Config struct {
	Discord DiscordConfig `json:"discord"`
	Logging LoggingConfig `json:"logging"`
	Poll    PollConfig    `json:"poll"`
	Storage StorageConfig `json:"storage"`

	// Blob enables state-file sync with a remote object store. Only used
	// by the stateless (cron) entrypoint; the long-lived service keeps its
	// store on local disk.
	Blob *BlobConfig `json:"blob,omitempty"`

	Pprof *PprofConfig `json:"pprof,omitempty"`

	Sources SourcesConfig `json:"sources"`
}

type DiscordConfig struct {
	Token string `json:"token"`
	// ChannelName is the text channel the bot posts to in every guild.
	// Guilds without a channel by this name are skipped.
	ChannelName string `json:"channel_name"`
	// ConnectTimeout is a Go duration string (e.g. "30s").
	ConnectTimeout string `json:"connect_timeout,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PollConfig controls the cycle cadence in service mode.
//
// All durations are Go duration strings (e.g. "90s", "5m").
type PollConfig struct {
	// Interval between cycles. Must be at least 1m; defaults to 5m.
	Interval string `json:"interval"`
	// RetentionDays bounds how long dedup records are kept. Defaults to 30.
	RetentionDays int `json:"retention_days,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./linkwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// PprofConfig controls the optional profiling endpoint. Bind to localhost
// unless a token is set.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"` // bearer token (do not log)
}

type BlobConfig struct {
	ObjectURL string `json:"object_url"`
	Token     string `json:"token,omitempty"` // bearer token (do not log)
	Timeout   string `json:"timeout,omitempty"`
}

// SourcesConfig lists the content sources to poll. Omitted sections are
// disabled; at least one must be present.
type SourcesConfig struct {
	X       *XSourceConfig       `json:"x,omitempty"`
	YouTube *YouTubeSourceConfig `json:"youtube,omitempty"`
	Column  *FeedSourceConfig    `json:"column,omitempty"`
	News    *FeedSourceConfig    `json:"news,omitempty"`
	Scrapes []ScrapeSourceConfig `json:"scrapes,omitempty"`
}

type XSourceConfig struct {
	BearerToken string `json:"bearer_token"`
	UserID      string `json:"user_id"`
	Username    string `json:"username,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
}

type YouTubeSourceConfig struct {
	APIKey    string `json:"api_key"`
	ChannelID string `json:"channel_id"`
	// TitleTag restricts results to videos whose title contains the tag,
	// e.g. "[EN]". Empty means no filtering.
	TitleTag string `json:"title_tag,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

type FeedSourceConfig struct {
	APIBase  string `json:"api_base,omitempty"`
	LinkBase string `json:"link_base,omitempty"`
}

// ScrapeSourceConfig describes one HTML page scrape.
//
// Kind selects the link extractor: "facebook", "status", "column" or "news".
type ScrapeSourceConfig struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Kind       string `json:"kind"`
	SkipPinned bool   `json:"skip_pinned,omitempty"`
}

// Enabled counts configured sources.
func (s SourcesConfig) Enabled() int {
	n := 0
	if s.X != nil {
		n++
	}
	if s.YouTube != nil {
		n++
	}
	if s.Column != nil {
		n++
	}
	if s.News != nil {
		n++
	}
	return n + len(s.Scrapes)
}
