package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/zuckdorsey/inputtrace/internal/models"
)

// InsertEvents stores a batch of events in one transaction. Duplicate batches
// from an at-least-once sender are stored as-is; the receiver does not
// deduplicate.
func InsertEvents(d *sql.DB, events []models.Event) error {
	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO events
		(ts_utc, ts_iso, kind, window, key, button, x, y, dx, dy, redacted, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, json(?))`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal event: %w", err)
		}
		redacted := 0
		if e.Redacted {
			redacted = 1
		}
		if _, err := stmt.Exec(e.TSUTC, e.TSISO, string(e.Kind), e.Window, e.Key, e.Button,
			e.X, e.Y, e.DeltaX, e.DeltaY, redacted, string(raw)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListRecentEvents returns up to limit events, newest first.
func ListRecentEvents(d *sql.DB, limit int) ([]models.Event, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := d.Query(
		"SELECT raw_json FROM events ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e models.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("unmarshal stored event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// KindCount is one row of the per-kind event totals.
type KindCount struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

// CountEvents returns the total number of stored events.
func CountEvents(d *sql.DB) (int64, error) {
	var n int64
	err := d.QueryRow("SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// CountEventsByKind returns event totals grouped by kind, largest first.
func CountEventsByKind(d *sql.DB) ([]KindCount, error) {
	rows, err := d.Query(
		"SELECT kind, COUNT(*) FROM events GROUP BY kind ORDER BY COUNT(*) DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []KindCount
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, kc)
	}
	return counts, rows.Err()
}
