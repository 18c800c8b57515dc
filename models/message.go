package models

import (
	"encoding/json"
	"time"
)

// Inbound message types (device/admin -> server)
const (
	MsgRegisterDisplay = "register:display"
	MsgConfirmPairing  = "confirm-pairing"
	MsgMaintenance     = "maintenance"
	MsgHeartbeat       = "heartbeat"
	MsgContentReceived = "content:received"
	MsgContentPlayback = "content:playback"
	MsgDisplayStatus   = "display:status"
	MsgSubscribe       = "subscribe"
	MsgUnsubscribe     = "unsubscribe"
)

// Outbound message types (server -> device/admin)
const (
	MsgDisplayRegistered = "display:registered"
	MsgRegisterError     = "register:error"
	MsgDeviceState       = "device:state"
	MsgContentUpdate     = "content:update"
	MsgContentUpdated    = "content:updated"
	MsgPairingConfirmed  = "pairing:confirmed"
	MsgHeartbeatAck      = "heartbeat:ack"
	MsgStatusReceived    = "status:received"
)

// Envelope carries the discriminator for inbound messages; payload fields
// live at the top level of the same JSON object
type Envelope struct {
	Type string `json:"type"`
}

type DeviceInfo struct {
	Name       string `json:"name,omitempty"`
	Model      string `json:"model,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
}

type RegisterDisplayMessage struct {
	DeviceID   string     `json:"deviceId"`
	DeviceInfo DeviceInfo `json:"deviceInfo"`
}

type ConfirmPairingMessage struct {
	DeviceID string `json:"deviceId"`
	Code     string `json:"code"`
}

type MaintenanceMessage struct {
	DeviceID string `json:"deviceId"`
	Enabled  bool   `json:"enabled"`
}

type ContentReceivedMessage struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

type ContentPlaybackMessage struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"` // playing, paused, ended, error
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

type DisplayStatusMessage struct {
	Metrics json.RawMessage `json:"metrics"`
}

type SubscribeMessage struct {
	Topic string `json:"topic"`
}

// ScheduleInfo is the schedule window attached to a scheduled content payload
type ScheduleInfo struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Repeat    string     `json:"repeat"`
	Priority  int        `json:"priority"`
}

// ContentPayload is the normalized content description pushed to devices
type ContentPayload struct {
	ContentID       string          `json:"content_id"`
	Type            string          `json:"type"`
	Title           string          `json:"title"`
	URL             string          `json:"url"`
	Thumbnail       string          `json:"thumbnail,omitempty"`
	MimeType        string          `json:"mime_type,omitempty"`
	Size            int64           `json:"size,omitempty"`
	Duration        float64         `json:"duration,omitempty"`
	DisplaySettings json.RawMessage `json:"display_settings,omitempty"`
	Scheduled       bool            `json:"scheduled"`
	ScheduleInfo    *ScheduleInfo   `json:"schedule_info,omitempty"`
}

// DisplayContent is one resolved item of a display's effective content list,
// carrying the resolver's verdict for that item
type DisplayContent struct {
	ContentPayload
	IsActive          bool `json:"is_active"`
	IsHighestPriority bool `json:"is_highest_priority"`
	IsNext            bool `json:"is_next"`
}

type RegisteredAck struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	DeviceID string `json:"deviceId"`
}

type RegisterError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type DeviceState struct {
	Type     string        `json:"type"`
	DeviceID string        `json:"deviceId"`
	Name     string        `json:"name"`
	Status   DisplayStatus `json:"status"`
	IsPaired bool          `json:"isPaired"`
}

type ContentUpdate struct {
	Type      string         `json:"type"`
	Content   ContentPayload `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
}

// ContentUpdated is the minimal refetch signal; the device pulls fresh state
// from the content-listing API instead of receiving the payload itself
type ContentUpdated struct {
	Type       string    `json:"type"`
	DeviceID   string    `json:"deviceId"`
	UpdateType string    `json:"updateType"`
	Timestamp  time.Time `json:"timestamp"`
}

// AdminContentUpdated is the batched summary mirrored to the admin topic
type AdminContentUpdated struct {
	Type       string    `json:"type"`
	DeviceIDs  []string  `json:"deviceIds"`
	UpdateType string    `json:"updateType"`
	Timestamp  time.Time `json:"timestamp"`
}

type PairingConfirmed struct {
	Type      string    `json:"type"`
	DisplayID string    `json:"displayId"`
	UserID    string    `json:"userId"`
	PairedAt  time.Time `json:"pairedAt"`
}

type HeartbeatAck struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusReceived struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}
