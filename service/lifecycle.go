package service

import (
	"time"

	"github.com/rs/zerolog"

	"signagecontrol/models"
)

// LifecycleHandler drives the display state machine:
// Unregistered -> Active -> {Paired, Maintenance} -> Offline, with
// Offline -> Active on reconnect.
type LifecycleHandler struct {
	registry *ConnectionRegistry
	store    Store
	hub      Broadcaster
	log      zerolog.Logger
}

func NewLifecycleHandler(registry *ConnectionRegistry, store Store, hub Broadcaster, log zerolog.Logger) *LifecycleHandler {
	return &LifecycleHandler{registry: registry, store: store, hub: hub, log: log}
}

// HandleRegister processes register:display. Idempotent upsert keyed by
// deviceId. Malformed input is acknowledged with register:error and the
// connection stays open; a full registry is fatal to the attempt.
func (h *LifecycleHandler) HandleRegister(conn Conn, connectionID string, msg models.RegisterDisplayMessage) {
	if msg.DeviceID == "" {
		conn.Send(models.RegisterError{Type: models.MsgRegisterError, Message: "deviceId is required"})
		return
	}

	display, err := h.store.UpsertDisplay(msg.DeviceID, msg.DeviceInfo)
	if err != nil {
		h.log.Error().Err(err).Str("device_id", msg.DeviceID).Msg("register upsert failed")
		conn.Send(models.RegisteredAck{Type: models.MsgDisplayRegistered, Success: false, DeviceID: msg.DeviceID})
		return
	}

	if err := h.registry.Register(connectionID, msg.DeviceID, KindDisplay, conn); err != nil {
		conn.Send(models.RegisterError{Type: models.MsgRegisterError, Message: err.Error()})
		conn.Close()
		return
	}

	conn.Send(models.RegisteredAck{Type: models.MsgDisplayRegistered, Success: true, DeviceID: msg.DeviceID})
	conn.Send(models.DeviceState{
		Type:     models.MsgDeviceState,
		DeviceID: display.DeviceID,
		Name:     display.Name,
		Status:   display.Status,
		IsPaired: display.IsPaired,
	})
	h.log.Info().Str("device_id", msg.DeviceID).Str("connection_id", connectionID).Msg("display registered")
}

// HandleConfirmPairing validates the one-time code issued for the display.
// On match the display becomes paired and both the device topic and the
// admin topic are notified.
func (h *LifecycleHandler) HandleConfirmPairing(conn Conn, deviceID, code string) {
	display, err := h.store.FindDisplay(deviceID)
	if err != nil {
		h.log.Warn().Err(err).Str("device_id", deviceID).Msg("pairing for unknown display")
		conn.Send(models.RegisterError{Type: models.MsgRegisterError, Message: "unknown display"})
		return
	}
	if display.PairingCode == "" || display.PairingCode != code {
		conn.Send(models.RegisterError{Type: models.MsgRegisterError, Message: "invalid pairing code"})
		return
	}

	if err := h.store.SetPaired(deviceID); err != nil {
		h.log.Error().Err(err).Str("device_id", deviceID).Msg("persisting pairing failed")
		return
	}

	ownerID := ""
	if display.OwnerID != nil {
		ownerID = *display.OwnerID
	}
	confirmed := models.PairingConfirmed{
		Type:      models.MsgPairingConfirmed,
		DisplayID: deviceID,
		UserID:    ownerID,
		PairedAt:  time.Now(),
	}
	conn.Send(confirmed)
	h.hub.BroadcastToTopic(DeviceTopic(deviceID), confirmed)
	h.hub.BroadcastToTopic(AdminTopic, confirmed)
	h.log.Info().Str("device_id", deviceID).Str("owner_id", ownerID).Msg("pairing confirmed")
}

// HandleMaintenance toggles maintenance mode and notifies the device
func (h *LifecycleHandler) HandleMaintenance(deviceID string, enabled bool) error {
	status := models.StatusActive
	if enabled {
		status = models.StatusMaintenance
	}
	if err := h.store.UpdateStatus(deviceID, status, time.Now()); err != nil {
		return err
	}

	display, err := h.store.FindDisplay(deviceID)
	if err != nil {
		return err
	}
	state := models.DeviceState{
		Type:     models.MsgDeviceState,
		DeviceID: display.DeviceID,
		Name:     display.Name,
		Status:   display.Status,
		IsPaired: display.IsPaired,
	}
	if !h.registry.SendToDevice(deviceID, state) {
		h.hub.BroadcastToTopic(DeviceTopic(deviceID), state)
	}
	return nil
}

// HandleDisconnect runs on every transport-level close, regardless of
// cause. Idempotent; persistence failures are logged and never propagate.
func (h *LifecycleHandler) HandleDisconnect(connectionID string) {
	entry, ok := h.registry.Get(connectionID)
	h.registry.Unregister(connectionID)
	if !ok || entry.DeviceID == "" {
		return
	}
	h.markOffline(entry.DeviceID)
	h.log.Info().Str("device_id", entry.DeviceID).Str("connection_id", connectionID).Msg("display disconnected")
}

// HandleEviction is the registry's forced-timeout callback; the entry is
// already gone by the time it runs
func (h *LifecycleHandler) HandleEviction(deviceID, connectionID string) {
	if deviceID == "" {
		return
	}
	h.markOffline(deviceID)
}

func (h *LifecycleHandler) markOffline(deviceID string) {
	if err := h.store.UpdateStatus(deviceID, models.StatusOffline, time.Now()); err != nil {
		h.log.Error().Err(err).Str("device_id", deviceID).Msg("marking display offline failed")
	}
}
