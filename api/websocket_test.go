package api

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signagecontrol/models"
	"signagecontrol/service"
)

// stubStore is a minimal in-memory service.Store for routing tests
type stubStore struct {
	mu       sync.Mutex
	displays map[string]*models.Display
	records  []models.ContentStatusRecord
}

func newStubStore() *stubStore {
	return &stubStore{displays: make(map[string]*models.Display)}
}

func (s *stubStore) UpsertDisplay(deviceID string, info models.DeviceInfo) (*models.Display, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.displays[deviceID]
	if !ok {
		d = &models.Display{DeviceID: deviceID}
		s.displays[deviceID] = d
	}
	d.Status = models.StatusActive
	copied := *d
	return &copied, nil
}

func (s *stubStore) FindDisplay(deviceID string) (*models.Display, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.displays[deviceID]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *d
	return &copied, nil
}

func (s *stubStore) UpdateStatus(deviceID string, status models.DisplayStatus, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.displays[deviceID]
	if !ok {
		return errors.New("not found")
	}
	d.Status = status
	d.LastSeen = lastSeen
	return nil
}

func (s *stubStore) SetMetrics(deviceID string, metrics json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.displays[deviceID]; ok {
		d.Metrics = metrics
	}
	return nil
}

func (s *stubStore) SetPaired(deviceID string) error { return nil }

func (s *stubStore) FindContent(id string) (*models.Content, error) {
	return nil, errors.New("not found")
}

func (s *stubStore) AppendStatusRecord(rec models.ContentStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *stubStore) statusOf(deviceID string) models.DisplayStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.displays[deviceID]; ok {
		return d.Status
	}
	return ""
}

type stubHub struct{}

func (stubHub) BroadcastToTopic(topic string, message any) int { return 0 }

func newTestDispatchSetup(t *testing.T) (*Client, WebSocketHandlers, *stubStore) {
	t.Helper()
	st := newStubStore()
	registry := service.NewConnectionRegistry(service.RegistryConfig{
		MaxConnections:  10,
		InactiveTimeout: time.Minute,
	}, zerolog.Nop())
	h := WebSocketHandlers{
		Registry:  registry,
		Lifecycle: service.NewLifecycleHandler(registry, st, stubHub{}, zerolog.Nop()),
		Telemetry: service.NewTelemetryIngestor(registry, st, zerolog.Nop()),
	}
	client := &Client{
		log:        zerolog.Nop(),
		id:         "conn-test",
		kind:       service.KindDisplay,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		subscribed: make(map[string]bool),
	}
	return client, h, st
}

// drainSent decodes everything queued on the client's send channel
func drainSent(t *testing.T, c *Client) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case data := <-c.send:
			var msg map[string]any
			require.NoError(t, json.Unmarshal(data, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestDispatchMaintenanceFrame(t *testing.T) {
	t.Parallel()

	client, h, st := newTestDispatchSetup(t)
	st.displays["dev-1"] = &models.Display{DeviceID: "dev-1", Status: models.StatusActive}
	require.NoError(t, h.Registry.Register(client.id, "dev-1", service.KindDisplay, client))
	client.bindDevice("dev-1")

	client.dispatch(h, []byte(`{"type":"maintenance","deviceId":"dev-1","enabled":true}`))

	assert.Equal(t, models.StatusMaintenance, st.statusOf("dev-1"))
	msgs := drainSent(t, client)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MsgDeviceState, msgs[0]["type"])
	assert.Equal(t, string(models.StatusMaintenance), msgs[0]["status"])

	client.dispatch(h, []byte(`{"type":"maintenance","enabled":false}`))
	assert.Equal(t, models.StatusActive, st.statusOf("dev-1"))
}

func TestDispatchMaintenanceUnknownDisplay(t *testing.T) {
	t.Parallel()

	client, h, _ := newTestDispatchSetup(t)

	client.dispatch(h, []byte(`{"type":"maintenance","deviceId":"ghost","enabled":true}`))

	msgs := drainSent(t, client)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MsgRegisterError, msgs[0]["type"])
	assert.False(t, client.Closed(), "handler failure must not close the connection")
}

func TestDispatchMalformedTelemetryFrames(t *testing.T) {
	t.Parallel()

	client, h, st := newTestDispatchSetup(t)
	client.bindDevice("dev-1")

	frames := [][]byte{
		[]byte(`{"type":"content:received","id":7}`),
		[]byte(`{"type":"content:playback","id":"c1","position":"twelve"}`),
		[]byte(`{"type":"maintenance","enabled":"yes"}`),
	}
	for _, frame := range frames {
		client.dispatch(h, frame)
	}

	// Each malformed frame gets an error ack; the connection stays open.
	msgs := drainSent(t, client)
	require.Len(t, msgs, len(frames))
	for _, msg := range msgs {
		assert.Equal(t, models.MsgRegisterError, msg["type"])
	}
	assert.False(t, client.Closed())
	assert.Empty(t, st.records, "malformed reports must not be persisted")
}
