package monitor

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/evford/tickerwatch/internal/model"
)

const tickSchema = `
CREATE TABLE IF NOT EXISTS ticks (
	topic       TEXT    NOT NULL,
	id          TEXT    NOT NULL,
	author      TEXT    NOT NULL,
	text        TEXT    NOT NULL,
	timestamp   INTEGER NOT NULL,
	likes       INTEGER NOT NULL DEFAULT 0,
	retweets    INTEGER NOT NULL DEFAULT 0,
	replies     INTEGER NOT NULL DEFAULT 0,
	quotes      INTEGER NOT NULL DEFAULT 0,
	impressions INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (topic, id)
);
CREATE INDEX IF NOT EXISTS idx_ticks_topic_ts ON ticks(topic, timestamp);
`

// TickStore is the durable per-topic tick container. Dedup is exact on
// (topic, id) via the primary key; retention prunes oldest by timestamp once
// a topic exceeds maxPerTopic.
type TickStore struct {
	db          *sql.DB
	maxPerTopic int
}

// OpenTickStore opens or creates a SQLite database at path with WAL mode.
// A single connection serializes all access, which makes every operation
// linearizable.
func OpenTickStore(path string, maxPerTopic int) (*TickStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	// Limit SQLite page cache to ~2MB (negative = KB).
	if _, err := db.Exec("PRAGMA cache_size = -2000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set cache_size: %w", err)
	}

	if _, err := db.Exec(tickSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	// Restrict database file permissions to owner-only.
	if err := os.Chmod(path, 0o600); err != nil {
		slog.Warn("failed to set database file permissions", "error", err)
	}

	return &TickStore{db: db, maxPerTopic: maxPerTopic}, nil
}

// Close closes the database connection.
func (s *TickStore) Close() error {
	return s.db.Close()
}

// Add inserts ticks not already present under topic and returns the count of
// newly accepted ticks. All-or-nothing: a concurrent Get sees either none or
// all of the batch. Oldest ticks are pruned when the topic exceeds its cap.
func (s *TickStore) Add(topic string, ticks []model.Tick) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO ticks
			(topic, id, author, text, timestamp, likes, retweets, replies, quotes, impressions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range ticks {
		res, err := stmt.Exec(topic, t.ID, t.Author, t.Text, t.Timestamp.Unix(),
			t.Metric(model.MetricLikes), t.Metric(model.MetricRetweets),
			t.Metric(model.MetricReplies), t.Metric(model.MetricQuotes),
			t.Metric(model.MetricImpressions))
		if err != nil {
			return 0, fmt.Errorf("insert tick %s: %w", t.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := pruneTopic(tx, topic, s.maxPerTopic); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// pruneTopic deletes oldest ticks so the topic holds at most max rows.
func pruneTopic(tx *sql.Tx, topic string, max int) error {
	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM ticks WHERE topic = ?`, topic).Scan(&count); err != nil {
		return fmt.Errorf("count ticks: %w", err)
	}
	if count <= max {
		return nil
	}
	_, err := tx.Exec(`
		DELETE FROM ticks WHERE topic = ? AND rowid IN (
			SELECT rowid FROM ticks WHERE topic = ?
			ORDER BY timestamp ASC, id ASC LIMIT ?
		)`, topic, topic, count-max)
	if err != nil {
		return fmt.Errorf("prune ticks: %w", err)
	}
	slog.Debug("pruned ticks", "topic", topic, "removed", count-max)
	return nil
}

// Get returns ticks whose timestamp falls in the half-open interval
// [start, end), sorted ascending by timestamp with ties broken by id. A nil
// bound leaves that side open.
func (s *TickStore) Get(topic string, start, end *time.Time) ([]model.Tick, error) {
	query := `SELECT id, author, text, timestamp, likes, retweets, replies, quotes, impressions
		FROM ticks WHERE topic = ?`
	args := []any{topic}
	if start != nil {
		query += ` AND timestamp >= ?`
		args = append(args, start.Unix())
	}
	if end != nil {
		query += ` AND timestamp < ?`
		args = append(args, end.Unix())
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		var ts int64
		var likes, retweets, replies, quotes, impressions int
		if err := rows.Scan(&t.ID, &t.Author, &t.Text, &ts,
			&likes, &retweets, &replies, &quotes, &impressions); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.Timestamp = time.Unix(ts, 0).UTC()
		t.Topic = topic
		t.Metrics = map[string]int{
			model.MetricLikes:       likes,
			model.MetricRetweets:    retweets,
			model.MetricReplies:     replies,
			model.MetricQuotes:      quotes,
			model.MetricImpressions: impressions,
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}

// Count returns the number of ticks stored under topic.
func (s *TickStore) Count(topic string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE topic = ?`, topic).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ticks: %w", err)
	}
	return n, nil
}

// TimeRange returns the oldest and newest tick timestamps for topic. ok is
// false when the topic holds no ticks.
func (s *TickStore) TimeRange(topic string) (oldest, newest time.Time, ok bool, err error) {
	var lo, hi sql.NullInt64
	err = s.db.QueryRow(`SELECT MIN(timestamp), MAX(timestamp) FROM ticks WHERE topic = ?`, topic).Scan(&lo, &hi)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("query time range: %w", err)
	}
	if !lo.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return time.Unix(lo.Int64, 0).UTC(), time.Unix(hi.Int64, 0).UTC(), true, nil
}

// Clear removes every tick stored under topic.
func (s *TickStore) Clear(topic string) error {
	if _, err := s.db.Exec(`DELETE FROM ticks WHERE topic = ?`, topic); err != nil {
		return fmt.Errorf("clear ticks: %w", err)
	}
	return nil
}
