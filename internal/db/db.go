package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zsprackett/chargewatch/internal/events"
)

const schemaVersion = "1"

// MaxNotifications bounds the notification history.
const MaxNotifications = 500

type DB struct {
	sql *sql.DB
	now func() time.Time
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &DB{sql: conn, now: time.Now}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) Migrate() error {
	stmts := []struct{ name, sql string }{
		{"metadata", `
			CREATE TABLE IF NOT EXISTS metadata (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`},
		{"credentials", `
			CREATE TABLE IF NOT EXISTS credentials (
				id        INTEGER PRIMARY KEY CHECK (id = 1),
				email     TEXT NOT NULL,
				token     TEXT NOT NULL,
				full_name TEXT NOT NULL DEFAULT '',
				is_admin  INTEGER NOT NULL DEFAULT 0,
				saved_at  INTEGER NOT NULL
			)`},
		{"notifications", `
			CREATE TABLE IF NOT EXISTS notifications (
				id         TEXT PRIMARY KEY,
				kind       TEXT NOT NULL,
				event_type TEXT NOT NULL,
				station_id TEXT NOT NULL DEFAULT '',
				session_id TEXT NOT NULL DEFAULT '',
				actor      TEXT NOT NULL DEFAULT '',
				ts         INTEGER NOT NULL,
				read       INTEGER NOT NULL DEFAULT 0
			)`},
		{"notifications index", `CREATE INDEX IF NOT EXISTS idx_notifications_ts ON notifications(ts DESC)`},
	}
	for _, s := range stmts {
		if _, err := d.sql.Exec(s.sql); err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return d.SetMeta("schema_version", schemaVersion)
}

// SaveCredential replaces the stored credential.
func (d *DB) SaveCredential(c *Credential) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = d.now()
	}
	_, err := d.sql.Exec(`
		INSERT OR REPLACE INTO credentials (id, email, token, full_name, is_admin, saved_at)
		VALUES (1, ?, ?, ?, ?, ?)`,
		c.Email, c.Token, c.FullName, boolToInt(c.IsAdmin), c.SavedAt.UnixMilli(),
	)
	return err
}

// GetCredential returns the stored credential, or nil when signed out.
func (d *DB) GetCredential() (*Credential, error) {
	var c Credential
	var admin int
	var savedAt int64
	err := d.sql.QueryRow(`SELECT email, token, full_name, is_admin, saved_at FROM credentials WHERE id = 1`).
		Scan(&c.Email, &c.Token, &c.FullName, &admin, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.IsAdmin = admin == 1
	c.SavedAt = time.UnixMilli(savedAt)
	return &c, nil
}

func (d *DB) DeleteCredential() error {
	_, err := d.sql.Exec("DELETE FROM credentials")
	return err
}

// InsertNotification stores n, assigning an ID when it has none, and trims
// the history to MaxNotifications.
func (d *DB) InsertNotification(n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Ts.IsZero() {
		n.Ts = d.now()
	}
	_, err := d.sql.Exec(`
		INSERT INTO notifications (id, kind, event_type, station_id, session_id, actor, ts, read)
		VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.Kind, n.Type, n.StationID, n.SessionID, n.Actor, n.Ts.UnixMilli(), boolToInt(n.Read),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	_, err = d.sql.Exec(`
		DELETE FROM notifications WHERE id NOT IN (
			SELECT id FROM notifications ORDER BY ts DESC, rowid DESC LIMIT ?
		)`, MaxNotifications)
	return err
}

// RecordEvent stores a domain event as an unread notification.
func (d *DB) RecordEvent(ev events.DomainEvent) error {
	err := d.InsertNotification(&Notification{
		Kind:      string(ev.Kind),
		Type:      ev.Type,
		StationID: ev.SubjectID,
		SessionID: ev.SessionID,
		Actor:     ev.ActorLabel,
		Ts:        ev.Timestamp,
	})
	if err != nil {
		return err
	}
	return d.Touch()
}

// RecentNotifications returns up to limit notifications, newest first.
func (d *DB) RecentNotifications(limit int) ([]Notification, error) {
	rows, err := d.sql.Query(`
		SELECT id, kind, event_type, station_id, session_id, actor, ts, read
		FROM notifications
		ORDER BY ts DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var ts int64
		var read int
		if err := rows.Scan(&n.ID, &n.Kind, &n.Type, &n.StationID, &n.SessionID, &n.Actor, &ts, &read); err != nil {
			return nil, err
		}
		n.Ts = time.UnixMilli(ts)
		n.Read = read == 1
		out = append(out, n)
	}
	return out, rows.Err()
}

func (d *DB) UnreadCount() (int, error) {
	var n int
	err := d.sql.QueryRow("SELECT COUNT(*) FROM notifications WHERE read = 0").Scan(&n)
	return n, err
}

func (d *DB) MarkAllRead() error {
	_, err := d.sql.Exec("UPDATE notifications SET read = 1 WHERE read = 0")
	return err
}

func (d *DB) SetMeta(key, value string) error {
	_, err := d.sql.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?,?)", key, value)
	return err
}

func (d *DB) GetMeta(key string) (string, error) {
	var value string
	err := d.sql.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Touch records the time of the last stored event.
func (d *DB) Touch() error {
	return d.SetMeta("last_event", strconv.FormatInt(d.now().UnixMilli(), 10))
}

// LastEvent returns the time Touch last ran, or the zero time.
func (d *DB) LastEvent() time.Time {
	v, _ := d.GetMeta("last_event")
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
