package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "linkwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Timestamps are stored as UTC RFC3339Nano text so that string comparison in
// SQL matches chronological order.
const timeLayout = time.RFC3339Nano

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Seen(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM posted_content WHERE url = ?`, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		// Fail open: treat unreadable state as "not yet seen".
		s.log.Error("dedup read failed", logx.String("url", url), logx.Err(err))
		return false
	}
	return true
}

func (s *sqliteStore) MarkSeen(ctx context.Context, url, source string) error {
	if url == "" {
		return nil
	}
	if source == "" {
		source = "unknown"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO posted_content(url, source, posted_at) VALUES(?,?,?)`,
		url, source, time.Now().UTC().Format(timeLayout),
	)
	return err
}

func (s *sqliteStore) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM posted_content WHERE posted_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *sqliteStore) GetState(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM bot_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.String, true, nil
}

func (s *sqliteStore) SetState(ctx context.Context, key, value string) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_state(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC().Format(timeLayout),
	)
	return err
}

func (s *sqliteStore) UpsertGuild(ctx context.Context, id, name string) error {
	if id == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guilds(guild_id, guild_name, joined_at, active) VALUES(?,?,?,1)
		 ON CONFLICT(guild_id) DO UPDATE SET guild_name=excluded.guild_name, active=1`,
		id, name, time.Now().UTC().Format(timeLayout),
	)
	return err
}

func (s *sqliteStore) MarkGuildInactive(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE guilds SET active = 0 WHERE guild_id = ?`, id)
	return err
}

func (s *sqliteStore) ActiveGuilds(ctx context.Context) ([]Guild, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guild_id, guild_name, joined_at FROM guilds WHERE active = 1 ORDER BY guild_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Guild
	for rows.Next() {
		var g Guild
		var name sql.NullString
		var joined sql.NullString
		if err := rows.Scan(&g.ID, &name, &joined); err != nil {
			return nil, err
		}
		g.Name = name.String
		g.Active = true
		if joined.Valid {
			if t, err := time.Parse(timeLayout, joined.String); err == nil {
				g.JoinedAt = t
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
