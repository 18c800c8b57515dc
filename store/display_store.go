// Package store is the persistence collaborator: display upserts, set-based
// content assignment, schedule rows and append-only status records over
// SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"signagecontrol/models"
)

var ErrNotFound = errors.New("not found")

type DisplayStore struct {
	db *sql.DB
}

func NewDisplayStore(db *sql.DB) *DisplayStore {
	return &DisplayStore{db: db}
}

// UpsertDisplay creates the display on first registration or refreshes it on
// reconnect. Idempotent, keyed by deviceID.
func (s *DisplayStore) UpsertDisplay(deviceID string, info models.DeviceInfo) (*models.Display, error) {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO displays (device_id, name, status, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE displays.name END,
			status = ?,
			last_seen = excluded.last_seen`,
		deviceID, info.Name, models.StatusActive, now.Unix(), now.Unix(),
		models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("upsert display %s: %w", deviceID, err)
	}
	return s.FindDisplay(deviceID)
}

// FindDisplay loads a display with its content assignments and schedule
func (s *DisplayStore) FindDisplay(deviceID string) (*models.Display, error) {
	row := s.db.QueryRow(`
		SELECT device_id, name, status, last_seen, is_paired, owner_id, pairing_code, metrics, created_at
		FROM displays WHERE device_id = ?`, deviceID)

	var d models.Display
	var lastSeen, createdAt int64
	var ownerID sql.NullString
	var metrics sql.NullString
	err := row.Scan(&d.DeviceID, &d.Name, &d.Status, &lastSeen, &d.IsPaired,
		&ownerID, &d.PairingCode, &metrics, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find display %s: %w", deviceID, err)
	}

	d.LastSeen = time.Unix(lastSeen, 0)
	d.CreatedAt = time.Unix(createdAt, 0)
	if ownerID.Valid {
		d.OwnerID = &ownerID.String
	}
	if metrics.Valid && metrics.String != "" {
		d.Metrics = json.RawMessage(metrics.String)
	}

	if d.ContentIDs, err = s.contentIDs(deviceID); err != nil {
		return nil, err
	}
	if d.ScheduledContent, err = s.scheduleEntries(deviceID); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DisplayStore) ListDisplays() ([]*models.Display, error) {
	rows, err := s.db.Query(`SELECT device_id FROM displays ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list displays: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	displays := make([]*models.Display, 0, len(ids))
	for _, id := range ids {
		d, err := s.FindDisplay(id)
		if err != nil {
			return nil, err
		}
		displays = append(displays, d)
	}
	return displays, nil
}

// UpdateStatus sets status and lastSeen without touching anything else
func (s *DisplayStore) UpdateStatus(deviceID string, status models.DisplayStatus, lastSeen time.Time) error {
	_, err := s.db.Exec(`UPDATE displays SET status = ?, last_seen = ? WHERE device_id = ?`,
		status, lastSeen.Unix(), deviceID)
	if err != nil {
		return fmt.Errorf("update status %s: %w", deviceID, err)
	}
	return nil
}

func (s *DisplayStore) SetMetrics(deviceID string, metrics json.RawMessage) error {
	_, err := s.db.Exec(`UPDATE displays SET metrics = ? WHERE device_id = ?`,
		string(metrics), deviceID)
	if err != nil {
		return fmt.Errorf("set metrics %s: %w", deviceID, err)
	}
	return nil
}

// SetPairingCode stores a one-time pairing code and the account it was
// issued for. Pairing completes when the device echoes the code back.
func (s *DisplayStore) SetPairingCode(deviceID, code, ownerID string) error {
	res, err := s.db.Exec(`UPDATE displays SET pairing_code = ?, owner_id = ? WHERE device_id = ?`,
		code, ownerID, deviceID)
	if err != nil {
		return fmt.Errorf("set pairing code %s: %w", deviceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPaired marks the display paired to the owner recorded at code issuance
// and clears the one-time code
func (s *DisplayStore) SetPaired(deviceID string) error {
	_, err := s.db.Exec(`
		UPDATE displays SET is_paired = 1, pairing_code = '', status = ?
		WHERE device_id = ?`,
		models.StatusPaired, deviceID)
	if err != nil {
		return fmt.Errorf("set paired %s: %w", deviceID, err)
	}
	return nil
}

// AddContent assigns a content item to the display's unconditional list.
// Idempotent: re-adding an assigned item is a no-op that keeps its position.
func (s *DisplayStore) AddContent(deviceID, contentID string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO display_content (device_id, content_id, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM display_content WHERE device_id = ?))`,
		deviceID, contentID, deviceID)
	if err != nil {
		return fmt.Errorf("add content %s -> %s: %w", contentID, deviceID, err)
	}
	return nil
}

func (s *DisplayStore) RemoveContent(deviceID, contentID string) error {
	_, err := s.db.Exec(`DELETE FROM display_content WHERE device_id = ? AND content_id = ?`,
		deviceID, contentID)
	if err != nil {
		return fmt.Errorf("remove content %s from %s: %w", contentID, deviceID, err)
	}
	return nil
}

// ReplaceSchedule swaps the display's schedule for the given entries in one
// transaction, preserving slice order
func (s *DisplayStore) ReplaceSchedule(deviceID string, entries []models.ScheduleEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace schedule %s: %w", deviceID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM schedule_entries WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("replace schedule %s: %w", deviceID, err)
	}
	for _, e := range entries {
		if err := insertScheduleEntry(tx, deviceID, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *DisplayStore) AddScheduleEntry(deviceID string, entry models.ScheduleEntry) error {
	return insertScheduleEntry(s.db, deviceID, entry)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertScheduleEntry(db execer, deviceID string, e models.ScheduleEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	repeat := e.Repeat
	if repeat == "" {
		repeat = "none"
	}
	_, err := db.Exec(`
		INSERT INTO schedule_entries (device_id, content_id, start_time, end_time, repeat, priority, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		deviceID, e.ContentID, nullUnix(e.StartTime), nullUnix(e.EndTime),
		repeat, e.Priority, e.Active, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("insert schedule entry for %s: %w", deviceID, err)
	}
	return nil
}

func (s *DisplayStore) UpsertContent(c models.Content) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO contents (id, type, title, url, thumbnail, mime_type, size, duration, display_settings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type, title = excluded.title, url = excluded.url,
			thumbnail = excluded.thumbnail, mime_type = excluded.mime_type,
			size = excluded.size, duration = excluded.duration,
			display_settings = excluded.display_settings`,
		c.ID, c.Type, c.Title, c.URL, c.Thumbnail, c.MimeType, c.Size, c.Duration,
		string(c.DisplaySettings), createdAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert content %s: %w", c.ID, err)
	}
	return nil
}

func (s *DisplayStore) FindContent(id string) (*models.Content, error) {
	row := s.db.QueryRow(`
		SELECT id, type, title, url, thumbnail, mime_type, size, duration, display_settings, created_at
		FROM contents WHERE id = ?`, id)

	var c models.Content
	var settings sql.NullString
	var createdAt int64
	err := row.Scan(&c.ID, &c.Type, &c.Title, &c.URL, &c.Thumbnail, &c.MimeType,
		&c.Size, &c.Duration, &settings, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find content %s: %w", id, err)
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	if settings.Valid && settings.String != "" {
		c.DisplaySettings = json.RawMessage(settings.String)
	}
	return &c, nil
}

// AppendStatusRecord appends one delivery or playback report. Records are
// never mutated or deleted here; retention is an external concern.
func (s *DisplayStore) AppendStatusRecord(rec models.ContentStatusRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO content_status_records (content_id, device_id, kind, status, position, duration, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ContentID, rec.DeviceID, rec.Kind, rec.Status,
		nullFloat(rec.Position), nullFloat(rec.Duration), ts.Unix())
	if err != nil {
		return fmt.Errorf("append status record %s/%s: %w", rec.ContentID, rec.DeviceID, err)
	}
	return nil
}

func (s *DisplayStore) StatusRecords(contentID string) ([]models.ContentStatusRecord, error) {
	rows, err := s.db.Query(`
		SELECT content_id, device_id, kind, status, position, duration, timestamp
		FROM content_status_records WHERE content_id = ? ORDER BY id`, contentID)
	if err != nil {
		return nil, fmt.Errorf("status records %s: %w", contentID, err)
	}
	defer rows.Close()

	var records []models.ContentStatusRecord
	for rows.Next() {
		var rec models.ContentStatusRecord
		var pos, dur sql.NullFloat64
		var ts int64
		if err := rows.Scan(&rec.ContentID, &rec.DeviceID, &rec.Kind, &rec.Status, &pos, &dur, &ts); err != nil {
			return nil, err
		}
		if pos.Valid {
			rec.Position = &pos.Float64
		}
		if dur.Valid {
			rec.Duration = &dur.Float64
		}
		rec.Timestamp = time.Unix(ts, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteDisplay hard-deletes a display and its assignments (admin action)
func (s *DisplayStore) DeleteDisplay(deviceID string) error {
	res, err := s.db.Exec(`DELETE FROM displays WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("delete display %s: %w", deviceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DisplayStore) contentIDs(deviceID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT content_id FROM display_content WHERE device_id = ? ORDER BY position`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("content ids %s: %w", deviceID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *DisplayStore) scheduleEntries(deviceID string) ([]models.ScheduleEntry, error) {
	rows, err := s.db.Query(`
		SELECT content_id, start_time, end_time, repeat, priority, active, created_at
		FROM schedule_entries WHERE device_id = ? ORDER BY id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("schedule entries %s: %w", deviceID, err)
	}
	defer rows.Close()

	entries := []models.ScheduleEntry{}
	for rows.Next() {
		var e models.ScheduleEntry
		var start, end sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&e.ContentID, &start, &end, &e.Repeat, &e.Priority, &e.Active, &createdAt); err != nil {
			return nil, err
		}
		if start.Valid {
			t := time.Unix(start.Int64, 0)
			e.StartTime = &t
		}
		if end.Valid {
			t := time.Unix(end.Int64, 0)
			e.EndTime = &t
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
