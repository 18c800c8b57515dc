// Package service holds the dispatch engine core: the connection registry,
// the schedule resolver, the content dispatcher and the lifecycle and
// telemetry handlers.
package service

import (
	"encoding/json"
	"errors"
	"time"

	"signagecontrol/models"
)

var (
	// ErrCapacityExceeded is returned when the registry is full. Fatal to
	// the connection attempt, not to the service.
	ErrCapacityExceeded = errors.New("connection capacity exceeded")

	// ErrMalformedMessage marks input the handlers acknowledge with an
	// error message while keeping the connection open
	ErrMalformedMessage = errors.New("malformed message")
)

// AdminTopic receives batched update summaries and pairing notifications
// for dashboard live-sync
const AdminTopic = "admin"

// DeviceTopic is the per-device topic a reconnecting client can listen on
// while it has no direct registry entry
func DeviceTopic(deviceID string) string {
	return "display:" + deviceID
}

// Conn is the transport side of a registered connection. Send is
// non-blocking and reports whether the message was accepted for delivery.
type Conn interface {
	Send(v any) bool
	Close() error
	Closed() bool
}

// Broadcaster fans a message out to topic subscribers and reports how many
// received it. Interface defined here to avoid an import cycle with the
// websocket hub.
type Broadcaster interface {
	BroadcastToTopic(topic string, message any) int
}

// Store is the slice of the persistence collaborator the core needs
type Store interface {
	UpsertDisplay(deviceID string, info models.DeviceInfo) (*models.Display, error)
	FindDisplay(deviceID string) (*models.Display, error)
	UpdateStatus(deviceID string, status models.DisplayStatus, lastSeen time.Time) error
	SetMetrics(deviceID string, metrics json.RawMessage) error
	SetPaired(deviceID string) error
	FindContent(id string) (*models.Content, error)
	AppendStatusRecord(rec models.ContentStatusRecord) error
}
