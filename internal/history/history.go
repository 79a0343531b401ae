package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Play struct {
	ID       int64
	Map      string
	GameType string
	Players  int
	Exit     string
	Winner   string
	PlayedAt time.Time
}

// DB records finished matches in sqlite.
type DB struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history database ping failed: %w", err)
	}

	h := &DB{db: db, path: path, logger: logger}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	logger.Info("history database opened", "path", path)
	return h, nil
}

func (h *DB) migrate() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			map TEXT NOT NULL,
			gametype TEXT NOT NULL DEFAULT '',
			players INTEGER NOT NULL DEFAULT 0,
			exit TEXT NOT NULL DEFAULT '',
			winner TEXT NOT NULL DEFAULT '',
			played_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_plays_map ON plays(map);
	`)
	return err
}

func (h *DB) Close() error {
	return h.db.Close()
}

// Record stores p. A zero PlayedAt is stamped with the current time.
func (h *DB) Record(p Play) error {
	if p.Map == "" {
		return fmt.Errorf("failed to record play: empty map name")
	}
	if p.PlayedAt.IsZero() {
		p.PlayedAt = time.Now()
	}
	_, err := h.db.Exec(
		`INSERT INTO plays (map, gametype, players, exit, winner, played_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.Map, p.GameType, p.Players, p.Exit, p.Winner, p.PlayedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

// Recent returns up to n plays, newest first.
func (h *DB) Recent(n int) ([]Play, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := h.db.Query(
		`SELECT id, map, gametype, players, exit, winner, played_at FROM plays ORDER BY played_at DESC, id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent plays: %w", err)
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var p Play
		var at int64
		if err := rows.Scan(&p.ID, &p.Map, &p.GameType, &p.Players, &p.Exit, &p.Winner, &at); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		p.PlayedAt = time.Unix(0, at)
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// RecentMaps returns the distinct maps of the last n plays, newest first.
func (h *DB) RecentMaps(n int) ([]string, error) {
	plays, err := h.Recent(n)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(plays))
	var maps []string
	for _, p := range plays {
		if !seen[p.Map] {
			seen[p.Map] = true
			maps = append(maps, p.Map)
		}
	}
	return maps, nil
}

func (h *DB) PlayCount(mapName string) (int, error) {
	var n int
	err := h.db.QueryRow(`SELECT COUNT(*) FROM plays WHERE map = ? COLLATE NOCASE`, mapName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return n, nil
}
