package config

import (
	"reflect"
	"strings"

	logx "linkwatch/pkg/logx"
)

// SummarizeChange returns the list of changed sections plus structured attrs
// safe for logging (secrets are reduced to set/unset flags). Only logging
// changes take effect without a restart; everything else is reported so the
// operator knows a restart is needed.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Never log the token itself.
	if oldCfg.Discord != newCfg.Discord {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.String("discord.channel_name", newCfg.ChannelName()),
			logx.Bool("discord.token_changed", oldCfg.Discord.Token != newCfg.Discord.Token),
		)
	}

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.Duration("poll.interval", newCfg.Interval()),
			logx.Int("poll.retention_days", newCfg.Poll.RetentionDays),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.path", newCfg.Storage.Path))
	}

	if !blobEqual(oldCfg.Blob, newCfg.Blob) {
		changed = append(changed, "blob")
		attrs = append(attrs, logx.Bool("blob.enabled", newCfg.Blob != nil))
	}

	if !pprofEqual(oldCfg.Pprof, newCfg.Pprof) {
		changed = append(changed, "pprof")
		attrs = append(attrs, logx.Bool("pprof.enabled",
			newCfg.Pprof != nil && newCfg.Pprof.Enabled))
	}

	if !reflect.DeepEqual(oldCfg.Sources, newCfg.Sources) {
		changed = append(changed, "sources")
		attrs = append(attrs, logx.Int("sources.enabled", newCfg.Sources.Enabled()))
	}

	if len(changed) == 0 {
		changed = append(changed, "none")
	}
	attrs = append(attrs, logx.String("changed", strings.Join(changed, ",")))
	return changed, attrs
}

// RequiresRestart reports whether any changed section other than logging is
// present.
func RequiresRestart(changed []string) bool {
	for _, c := range changed {
		if c != "logging" && c != "none" {
			return true
		}
	}
	return false
}

func blobEqual(a, b *BlobConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func pprofEqual(a, b *PprofConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
