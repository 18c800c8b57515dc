package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signagecontrol/models"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *ConnectionRegistry, *fakeHub, *fakeStore) {
	t.Helper()
	registry := newTestRegistry(100, time.Minute)
	hub := newFakeHub()
	st := newFakeStore()
	d := NewDispatcher(registry, hub, st, NewWindowResolver(), zerolog.Nop())
	return d, registry, hub, st
}

func TestPushContentDirect(t *testing.T) {
	t.Parallel()

	d, registry, hub, _ := newTestDispatcher(t)
	conn := &fakeConn{}
	require.NoError(t, registry.Register("conn-1", "dev-1", KindDisplay, conn))

	delivered := d.PushContent("dev-1", models.ContentPayload{ContentID: "c1", Title: "Promo"})
	assert.True(t, delivered)

	msgs := conn.messages()
	require.Len(t, msgs, 1)
	update, ok := msgs[0].(models.ContentUpdate)
	require.True(t, ok)
	assert.Equal(t, models.MsgContentUpdate, update.Type)
	assert.Equal(t, "c1", update.Content.ContentID)
	assert.False(t, update.Timestamp.IsZero())
	assert.Empty(t, hub.sent(DeviceTopic("dev-1")), "direct delivery must not also hit the topic")
}

func TestPushContentTopicFallback(t *testing.T) {
	t.Parallel()

	d, _, hub, _ := newTestDispatcher(t)
	hub.subscribers[DeviceTopic("dev-1")] = 1

	delivered := d.PushContent("dev-1", models.ContentPayload{ContentID: "c1"})
	assert.True(t, delivered)
	assert.Len(t, hub.sent(DeviceTopic("dev-1")), 1)
}

func TestPushContentNoRecipient(t *testing.T) {
	t.Parallel()

	d, _, _, _ := newTestDispatcher(t)

	// No registry entry, no topic subscribers: a normal miss, not an error.
	delivered := d.PushContent("dev-ghost", models.ContentPayload{ContentID: "c1"})
	assert.False(t, delivered)
}

func TestNotifyContentUpdate(t *testing.T) {
	t.Parallel()

	d, registry, hub, _ := newTestDispatcher(t)
	conn1 := &fakeConn{}
	require.NoError(t, registry.Register("conn-1", "d1", KindDisplay, conn1))

	d.NotifyContentUpdate([]string{"d1", "d2"}, "schedule")

	// d1 got its envelope directly.
	msgs := conn1.messages()
	require.Len(t, msgs, 1)
	notice := msgs[0].(models.ContentUpdated)
	assert.Equal(t, "d1", notice.DeviceID)
	assert.Equal(t, "schedule", notice.UpdateType)

	// d2 had no connection; its envelope went to the device topic.
	topicMsgs := hub.sent(DeviceTopic("d2"))
	require.Len(t, topicMsgs, 1)
	assert.Equal(t, "d2", topicMsgs[0].(models.ContentUpdated).DeviceID)

	// One aggregate summary on the admin topic listing both ids.
	adminMsgs := hub.sent(AdminTopic)
	require.Len(t, adminMsgs, 1)
	summary := adminMsgs[0].(models.AdminContentUpdated)
	assert.Equal(t, []string{"d1", "d2"}, summary.DeviceIDs)
	assert.Equal(t, "schedule", summary.UpdateType)
}

func TestGetContentForDisplayResolverFlags(t *testing.T) {
	t.Parallel()

	d, _, _, st := newTestDispatcher(t)
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	dayStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	dayEnd := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)

	st.contents["x"] = &models.Content{ID: "x", Title: "X"}
	st.contents["y"] = &models.Content{ID: "y", Title: "Y"}
	st.contents["z"] = &models.Content{ID: "z", Title: "Z"}
	st.displays["dev-1"] = &models.Display{
		DeviceID:   "dev-1",
		ContentIDs: []string{"z"},
		ScheduledContent: []models.ScheduleEntry{
			{ContentID: "x", Priority: 1, StartTime: tp(dayStart), EndTime: tp(dayEnd), Active: true},
			{ContentID: "y", Priority: 5, StartTime: tp(dayStart), EndTime: tp(dayEnd), Active: true},
		},
	}

	items, err := d.GetContentForDisplay("dev-1", noon)
	require.NoError(t, err)
	require.Len(t, items, 3)

	byID := map[string]models.DisplayContent{}
	for _, item := range items {
		byID[item.ContentID] = item
	}

	z := byID["z"]
	assert.False(t, z.Scheduled)
	assert.False(t, z.IsActive)

	x := byID["x"]
	assert.True(t, x.Scheduled)
	assert.True(t, x.IsActive)
	assert.False(t, x.IsHighestPriority)

	y := byID["y"]
	assert.True(t, y.Scheduled)
	assert.True(t, y.IsActive)
	assert.True(t, y.IsHighestPriority)
	require.NotNil(t, y.ScheduleInfo)
	assert.Equal(t, 5, y.ScheduleInfo.Priority)
}

func TestGetContentForDisplayNextFlag(t *testing.T) {
	t.Parallel()

	d, _, _, st := newTestDispatcher(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	st.contents["current"] = &models.Content{ID: "current"}
	st.contents["upcoming"] = &models.Content{ID: "upcoming"}
	st.displays["dev-1"] = &models.Display{
		DeviceID: "dev-1",
		ScheduledContent: []models.ScheduleEntry{
			{ContentID: "current", Priority: 1, Active: true},
			{ContentID: "upcoming", Priority: 1, Active: true, StartTime: tp(now.Add(time.Hour))},
		},
	}

	items, err := d.GetContentForDisplay("dev-1", now)
	require.NoError(t, err)
	require.Len(t, items, 2)

	for _, item := range items {
		switch item.ContentID {
		case "current":
			assert.True(t, item.IsActive)
			assert.False(t, item.IsNext)
		case "upcoming":
			assert.False(t, item.IsActive)
			assert.True(t, item.IsNext)
		}
	}
}

func TestGetContentForDisplaySkipsDanglingReference(t *testing.T) {
	t.Parallel()

	d, _, _, st := newTestDispatcher(t)
	st.contents["known"] = &models.Content{ID: "known"}
	st.displays["dev-1"] = &models.Display{
		DeviceID:   "dev-1",
		ContentIDs: []string{"missing", "known"},
	}

	items, err := d.GetContentForDisplay("dev-1", time.Now())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "known", items[0].ContentID)
}
