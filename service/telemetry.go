package service

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"signagecontrol/models"
)

// TelemetryIngestor processes heartbeat, delivery-ack and playback-status
// messages. Everything here is best-effort: a persistence failure is logged
// and never closes the connection or reaches the device.
type TelemetryIngestor struct {
	registry *ConnectionRegistry
	store    Store
	log      zerolog.Logger
}

func NewTelemetryIngestor(registry *ConnectionRegistry, store Store, log zerolog.Logger) *TelemetryIngestor {
	return &TelemetryIngestor{registry: registry, store: store, log: log}
}

// HandleHeartbeat refreshes presence and acknowledges with the server time
func (t *TelemetryIngestor) HandleHeartbeat(conn Conn, connectionID, deviceID string) {
	t.registry.Touch(connectionID)
	if deviceID != "" {
		if err := t.store.UpdateStatus(deviceID, models.StatusActive, time.Now()); err != nil {
			t.log.Warn().Err(err).Str("device_id", deviceID).Msg("heartbeat persistence failed")
		}
	}
	conn.Send(models.HeartbeatAck{Type: models.MsgHeartbeatAck, Timestamp: time.Now()})
}

// HandleContentReceived appends a delivery record for the content item
func (t *TelemetryIngestor) HandleContentReceived(deviceID string, msg models.ContentReceivedMessage) {
	status := "delivered"
	if !msg.Success {
		status = "failed"
	}
	rec := models.ContentStatusRecord{
		ContentID: msg.ID,
		DeviceID:  deviceID,
		Kind:      models.RecordDelivery,
		Status:    status,
		Timestamp: time.Now(),
	}
	if err := t.store.AppendStatusRecord(rec); err != nil {
		t.log.Warn().Err(err).Str("device_id", deviceID).Str("content_id", msg.ID).
			Msg("delivery record persistence failed")
	}
}

// HandleContentPlayback appends a playback record for the content item
func (t *TelemetryIngestor) HandleContentPlayback(deviceID string, msg models.ContentPlaybackMessage) {
	position, duration := msg.Position, msg.Duration
	rec := models.ContentStatusRecord{
		ContentID: msg.ID,
		DeviceID:  deviceID,
		Kind:      models.RecordPlayback,
		Status:    msg.Status,
		Position:  &position,
		Duration:  &duration,
		Timestamp: time.Now(),
	}
	if err := t.store.AppendStatusRecord(rec); err != nil {
		t.log.Warn().Err(err).Str("device_id", deviceID).Str("content_id", msg.ID).
			Msg("playback record persistence failed")
	}
}

// HandleDisplayStatus persists an opaque health snapshot and acks it
func (t *TelemetryIngestor) HandleDisplayStatus(conn Conn, deviceID string, metrics json.RawMessage) {
	err := t.store.SetMetrics(deviceID, metrics)
	if err != nil {
		t.log.Warn().Err(err).Str("device_id", deviceID).Msg("metrics persistence failed")
	}
	conn.Send(models.StatusReceived{Type: models.MsgStatusReceived, Success: err == nil})
}
