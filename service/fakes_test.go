package service

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"signagecontrol/models"
)

// fakeConn records everything sent through it
type fakeConn struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

func (c *fakeConn) Send(v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.sent = append(c.sent, v)
	return true
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

// topicMessage is one fan-out captured by fakeHub
type topicMessage struct {
	topic   string
	message any
}

// fakeHub counts subscribers per topic and records every broadcast
type fakeHub struct {
	mu          sync.Mutex
	subscribers map[string]int
	broadcasts  []topicMessage
}

func newFakeHub() *fakeHub {
	return &fakeHub{subscribers: make(map[string]int)}
}

func (h *fakeHub) BroadcastToTopic(topic string, message any) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcasts = append(h.broadcasts, topicMessage{topic: topic, message: message})
	return h.subscribers[topic]
}

func (h *fakeHub) sent(topic string) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []any
	for _, b := range h.broadcasts {
		if b.topic == topic {
			out = append(out, b.message)
		}
	}
	return out
}

// fakeStore is an in-memory Store with switchable failure modes
type fakeStore struct {
	mu       sync.Mutex
	displays map[string]*models.Display
	contents map[string]*models.Content
	records  []models.ContentStatusRecord

	failUpdates bool
	failRecords bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		displays: make(map[string]*models.Display),
		contents: make(map[string]*models.Content),
	}
}

var errStoreDown = errors.New("store down")

func (s *fakeStore) UpsertDisplay(deviceID string, info models.DeviceInfo) (*models.Display, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates {
		return nil, errStoreDown
	}
	d, ok := s.displays[deviceID]
	if !ok {
		d = &models.Display{DeviceID: deviceID, CreatedAt: time.Now()}
		s.displays[deviceID] = d
	}
	if info.Name != "" {
		d.Name = info.Name
	}
	d.Status = models.StatusActive
	d.LastSeen = time.Now()
	copied := *d
	return &copied, nil
}

func (s *fakeStore) FindDisplay(deviceID string) (*models.Display, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.displays[deviceID]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *d
	return &copied, nil
}

func (s *fakeStore) UpdateStatus(deviceID string, status models.DisplayStatus, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates {
		return errStoreDown
	}
	if d, ok := s.displays[deviceID]; ok {
		d.Status = status
		d.LastSeen = lastSeen
	}
	return nil
}

func (s *fakeStore) SetMetrics(deviceID string, metrics json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates {
		return errStoreDown
	}
	if d, ok := s.displays[deviceID]; ok {
		d.Metrics = metrics
	}
	return nil
}

func (s *fakeStore) SetPaired(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates {
		return errStoreDown
	}
	if d, ok := s.displays[deviceID]; ok {
		d.IsPaired = true
		d.PairingCode = ""
		d.Status = models.StatusPaired
	}
	return nil
}

func (s *fakeStore) FindContent(id string) (*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *c
	return &copied, nil
}

func (s *fakeStore) AppendStatusRecord(rec models.ContentStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRecords {
		return errStoreDown
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) statusOf(deviceID string) models.DisplayStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.displays[deviceID]; ok {
		return d.Status
	}
	return ""
}

func (s *fakeStore) allRecords() []models.ContentStatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ContentStatusRecord(nil), s.records...)
}
