package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "linkwatch/pkg/logx"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (the default and only backend)
//
// The store file is assumed to have a single active writer per process; no
// cross-process locking is provided here.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Guild is one row of the destination directory persistence.
type Guild struct {
	ID       string
	Name     string
	JoinedAt time.Time
	Active   bool
}

// Store is the persistence API used by the poller, directory and dispatcher.
type Store interface {
	// Seen reports whether url was already broadcast. On a storage read
	// failure it logs the error and returns false: a possible duplicate post
	// is preferred over silently dropping every future post from a source.
	Seen(ctx context.Context, url string) bool

	// MarkSeen records url as broadcast. It is idempotent: a second call for
	// the same url is a no-op and never updates the original posted_at.
	MarkSeen(ctx context.Context, url, source string) error

	// PruneOlderThan deletes records whose posted_at is before now-days.
	// It returns the number of rows deleted; zero matches is not an error.
	PruneOlderThan(ctx context.Context, days int) (int64, error)

	// GetState / SetState are generic key-value rows with upsert semantics,
	// used by the long-lived mode for cursors and bookkeeping.
	GetState(ctx context.Context, key string) (string, bool, error)
	SetState(ctx context.Context, key, value string) error

	UpsertGuild(ctx context.Context, id, name string) error
	MarkGuildInactive(ctx context.Context, id string) error
	ActiveGuilds(ctx context.Context) ([]Guild, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
