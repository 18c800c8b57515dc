package service

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"signagecontrol/models"
)

// Dispatcher delivers content to devices, either as a direct payload push
// or as a minimal refetch signal. Pushes are fire-and-forget with a
// delivery outcome, not a blocking round trip.
type Dispatcher struct {
	registry *ConnectionRegistry
	hub      Broadcaster
	store    Store
	resolver ScheduleResolver
	log      zerolog.Logger

	now func() time.Time
}

func NewDispatcher(registry *ConnectionRegistry, hub Broadcaster, store Store, resolver ScheduleResolver, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		hub:      hub,
		store:    store,
		resolver: resolver,
		log:      log,
		now:      time.Now,
	}
}

// PushContent sends a full content payload to one device. When the device
// has no registry entry the payload falls back to the device's topic so a
// reconnect-in-flight client can still pick it up. No recipient at all is
// a normal outcome, reported as delivered=false, never an error.
func (d *Dispatcher) PushContent(deviceID string, payload models.ContentPayload) bool {
	msg := models.ContentUpdate{
		Type:      models.MsgContentUpdate,
		Content:   payload,
		Timestamp: d.now(),
	}

	delivered := d.registry.SendToDevice(deviceID, msg)
	if !delivered {
		delivered = d.hub.BroadcastToTopic(DeviceTopic(deviceID), msg) > 0
	}

	d.log.Debug().Str("device_id", deviceID).Str("content_id", payload.ContentID).
		Bool("delivered", delivered).Msg("content push")
	return delivered
}

// NotifyContentUpdate signals devices to refetch their state instead of
// carrying payloads, and mirrors a batched summary to the admin topic.
// Fire-and-forget: misses are logged, never surfaced to the caller.
func (d *Dispatcher) NotifyContentUpdate(deviceIDs []string, updateType string) {
	now := d.now()
	for _, deviceID := range deviceIDs {
		msg := models.ContentUpdated{
			Type:       models.MsgContentUpdated,
			DeviceID:   deviceID,
			UpdateType: updateType,
			Timestamp:  now,
		}
		if !d.registry.SendToDevice(deviceID, msg) {
			if d.hub.BroadcastToTopic(DeviceTopic(deviceID), msg) == 0 {
				d.log.Debug().Str("device_id", deviceID).Str("update_type", updateType).
					Msg("refetch signal had no recipient")
			}
		}
	}

	d.hub.BroadcastToTopic(AdminTopic, models.AdminContentUpdated{
		Type:       models.MsgContentUpdated,
		DeviceIDs:  deviceIDs,
		UpdateType: updateType,
		Timestamp:  now,
	})
}

// BuildPayload normalizes a stored content item into a push payload; entry
// is non-nil for scheduled items
func (d *Dispatcher) BuildPayload(contentID string, entry *models.ScheduleEntry) (models.ContentPayload, error) {
	content, err := d.store.FindContent(contentID)
	if err != nil {
		return models.ContentPayload{}, fmt.Errorf("build payload: %w", err)
	}

	payload := models.ContentPayload{
		ContentID:       content.ID,
		Type:            content.Type,
		Title:           content.Title,
		URL:             content.URL,
		Thumbnail:       content.Thumbnail,
		MimeType:        content.MimeType,
		Size:            content.Size,
		Duration:        content.Duration,
		DisplaySettings: content.DisplaySettings,
	}
	if entry != nil {
		payload.Scheduled = true
		payload.ScheduleInfo = &models.ScheduleInfo{
			StartTime: entry.StartTime,
			EndTime:   entry.EndTime,
			Repeat:    entry.Repeat,
			Priority:  entry.Priority,
		}
	}
	return payload, nil
}

// GetContentForDisplay merges the display's unconditional content list with
// its schedule resolved at now. Scheduled items carry the resolver's
// verdict so clients can verify it end to end.
func (d *Dispatcher) GetContentForDisplay(deviceID string, now time.Time) ([]models.DisplayContent, error) {
	display, err := d.store.FindDisplay(deviceID)
	if err != nil {
		return nil, err
	}

	items := make([]models.DisplayContent, 0, len(display.ContentIDs)+len(display.ScheduledContent))

	for _, contentID := range display.ContentIDs {
		payload, err := d.BuildPayload(contentID, nil)
		if err != nil {
			// A dangling reference must not hide the rest of the list.
			d.log.Warn().Err(err).Str("device_id", deviceID).Str("content_id", contentID).
				Msg("skipping unresolvable content assignment")
			continue
		}
		items = append(items, models.DisplayContent{ContentPayload: payload})
	}

	entries := display.ScheduledContent
	highest, hasHighest := d.resolver.HighestPriority(entries, now)
	next, hasNext := d.resolver.NextEntry(entries, now)
	highestMarked, nextMarked := false, false

	for _, entry := range entries {
		payload, err := d.BuildPayload(entry.ContentID, &entry)
		if err != nil {
			d.log.Warn().Err(err).Str("device_id", deviceID).Str("content_id", entry.ContentID).
				Msg("skipping unresolvable schedule entry")
			continue
		}
		item := models.DisplayContent{
			ContentPayload: payload,
			IsActive:       d.resolver.IsActive(entry, now),
		}
		if hasHighest && !highestMarked && sameEntry(entry, highest) {
			item.IsHighestPriority = true
			highestMarked = true
		}
		if hasNext && !nextMarked && sameEntry(entry, next) {
			item.IsNext = true
			nextMarked = true
		}
		items = append(items, item)
	}
	return items, nil
}

// sameEntry matches a resolved entry back to its source row; first match
// wins, which preserves the resolver's input-order tie-break
func sameEntry(a, b models.ScheduleEntry) bool {
	return a.ContentID == b.ContentID &&
		a.Priority == b.Priority &&
		timePtrEqual(a.StartTime, b.StartTime) &&
		timePtrEqual(a.EndTime, b.EndTime) &&
		a.CreatedAt.Equal(b.CreatedAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
