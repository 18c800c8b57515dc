package models

import (
	"encoding/json"
	"time"
)

// DisplayStatus represents the lifecycle state of a display
type DisplayStatus string

const (
	StatusUnregistered DisplayStatus = "unregistered"
	StatusActive       DisplayStatus = "active"
	StatusPaired       DisplayStatus = "paired"
	StatusMaintenance  DisplayStatus = "maintenance"
	StatusOffline      DisplayStatus = "offline"
)

// Display is a registered playback device identified by DeviceID.
// ConnectionID is ephemeral and only set while the device holds a live
// connection; it is never persisted.
type Display struct {
	DeviceID         string          `json:"device_id"`
	ConnectionID     string          `json:"connection_id,omitempty"`
	Name             string          `json:"name"`
	Status           DisplayStatus   `json:"status"`
	LastSeen         time.Time       `json:"last_seen"`
	IsPaired         bool            `json:"is_paired"`
	OwnerID          *string         `json:"owner_id,omitempty"`
	PairingCode      string          `json:"-"`
	ContentIDs       []string        `json:"content_ids"`
	ScheduledContent []ScheduleEntry `json:"scheduled_content"`
	Metrics          json.RawMessage `json:"metrics,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ScheduleEntry is a time-windowed, prioritized assignment of one content
// item to a display. Nil StartTime/EndTime means unbounded on that side.
// Repeat is stored as metadata; the active-window check uses the literal
// timestamps only.
type ScheduleEntry struct {
	ContentID string     `json:"content_id"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Repeat    string     `json:"repeat"` // none, daily, weekly
	Priority  int        `json:"priority"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

// Content is a playable content item referenced by displays
type Content struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"` // image, video, webpage
	Title           string          `json:"title"`
	URL             string          `json:"url"`
	Thumbnail       string          `json:"thumbnail,omitempty"`
	MimeType        string          `json:"mime_type,omitempty"`
	Size            int64           `json:"size,omitempty"`
	Duration        float64         `json:"duration,omitempty"`
	DisplaySettings json.RawMessage `json:"display_settings,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Status record kinds
const (
	RecordDelivery = "delivery"
	RecordPlayback = "playback"
)

// ContentStatusRecord is an append-only delivery or playback status entry
// reported by a device for one content item
type ContentStatusRecord struct {
	ContentID string    `json:"content_id"`
	DeviceID  string    `json:"device_id"`
	Kind      string    `json:"kind"` // delivery, playback
	Status    string    `json:"status"`
	Position  *float64  `json:"position,omitempty"`
	Duration  *float64  `json:"duration,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
