package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnectionKind distinguishes playback devices from dashboard clients
type ConnectionKind string

const (
	KindDisplay     ConnectionKind = "display"
	KindAdminClient ConnectionKind = "admin-client"
)

// ConnectionEntry is the registry's view of one live transport connection.
// DeviceID stays empty until the registration message arrives.
type ConnectionEntry struct {
	ConnectionID   string
	DeviceID       string
	Kind           ConnectionKind
	ConnectedAt    time.Time
	LastActivityAt time.Time

	conn  Conn
	timer *time.Timer
}

type RegistryConfig struct {
	MaxConnections  int
	InactiveTimeout time.Duration
}

// ConnectionRegistry is the in-process table of live connections. One
// instance per server process, handed to handlers by reference. At most one
// entry is live per deviceID: a new registration for the same id supersedes
// and evicts the previous one.
type ConnectionRegistry struct {
	mu       sync.Mutex
	entries  map[string]*ConnectionEntry // by connectionID
	byDevice map[string]string           // deviceID -> connectionID
	cfg      RegistryConfig
	log      zerolog.Logger

	// onEvict runs after a forced-timeout eviction, outside the lock
	onEvict func(deviceID, connectionID string)

	stopSweep chan struct{}
	sweepOnce sync.Once
}

func NewConnectionRegistry(cfg RegistryConfig, log zerolog.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		entries:   make(map[string]*ConnectionEntry),
		byDevice:  make(map[string]string),
		cfg:       cfg,
		log:       log,
		stopSweep: make(chan struct{}),
	}
}

// SetEvictionHandler installs the callback invoked when an inactivity timer
// forcibly evicts a connection. Must be called before traffic starts.
func (r *ConnectionRegistry) SetEvictionHandler(fn func(deviceID, connectionID string)) {
	r.onEvict = fn
}

// Register adds a connection, or rebinds an existing connection to a
// deviceID once the registration message arrives. Binding a deviceID that
// already has a live connection evicts the old one (last writer wins).
func (r *ConnectionRegistry) Register(connectionID, deviceID string, kind ConnectionKind, conn Conn) error {
	var evicted *ConnectionEntry

	r.mu.Lock()
	entry, exists := r.entries[connectionID]

	if deviceID != "" {
		if oldID, ok := r.byDevice[deviceID]; ok && oldID != connectionID {
			evicted = r.removeLocked(oldID)
		}
	}

	if exists {
		// Rebind: same transport, now carrying a device identity.
		if entry.DeviceID != "" && entry.DeviceID != deviceID {
			delete(r.byDevice, entry.DeviceID)
		}
		entry.DeviceID = deviceID
		entry.LastActivityAt = time.Now()
	} else {
		if len(r.entries) >= r.cfg.MaxConnections {
			r.mu.Unlock()
			r.log.Warn().Str("connection_id", connectionID).
				Int("max", r.cfg.MaxConnections).Msg("registry full, connection refused")
			return ErrCapacityExceeded
		}
		now := time.Now()
		entry = &ConnectionEntry{
			ConnectionID:   connectionID,
			DeviceID:       deviceID,
			Kind:           kind,
			ConnectedAt:    now,
			LastActivityAt: now,
			conn:           conn,
		}
		id := connectionID
		entry.timer = time.AfterFunc(r.cfg.InactiveTimeout, func() { r.expire(id) })
		r.entries[connectionID] = entry
	}
	if deviceID != "" {
		r.byDevice[deviceID] = connectionID
	}
	r.mu.Unlock()

	if evicted != nil {
		r.log.Info().Str("device_id", deviceID).
			Str("old_connection_id", evicted.ConnectionID).
			Str("new_connection_id", connectionID).
			Msg("superseding previous connection for device")
		evicted.conn.Close()
	}
	return nil
}

// Touch resets the connection's inactivity clock
func (r *ConnectionRegistry) Touch(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[connectionID]
	if !ok {
		return
	}
	entry.LastActivityAt = time.Now()
	entry.timer.Reset(r.cfg.InactiveTimeout)
}

// Unregister removes a connection and stops its inactivity timer.
// Idempotent; safe on any termination path.
func (r *ConnectionRegistry) Unregister(connectionID string) {
	r.mu.Lock()
	r.removeLocked(connectionID)
	r.mu.Unlock()
}

// Lookup returns the live entry for a device, if any
func (r *ConnectionRegistry) Lookup(deviceID string) (ConnectionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	connID, ok := r.byDevice[deviceID]
	if !ok {
		return ConnectionEntry{}, false
	}
	entry, ok := r.entries[connID]
	if !ok {
		return ConnectionEntry{}, false
	}
	return *entry, true
}

// Get returns the entry for a connection id
func (r *ConnectionRegistry) Get(connectionID string) (ConnectionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[connectionID]
	if !ok {
		return ConnectionEntry{}, false
	}
	return *entry, true
}

func (r *ConnectionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// SendToDevice delivers a message over the device's live connection.
// Returns false when the device has no entry or the send was not accepted.
func (r *ConnectionRegistry) SendToDevice(deviceID string, message any) bool {
	r.mu.Lock()
	connID, ok := r.byDevice[deviceID]
	var conn Conn
	if ok {
		if entry, found := r.entries[connID]; found {
			conn = entry.conn
		}
	}
	r.mu.Unlock()

	if conn == nil {
		return false
	}
	return conn.Send(message)
}

// StartSweeper runs the periodic reconciliation sweep until Stop is called.
// The sweep removes entries whose transport reports closed; it is defense
// in depth behind the inactivity timers, not the primary eviction path.
func (r *ConnectionRegistry) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.SweepClosed(); n > 0 {
					r.log.Info().Int("removed", n).Msg("sweep removed stale connections")
				}
			case <-r.stopSweep:
				return
			}
		}
	}()
}

func (r *ConnectionRegistry) Stop() {
	r.sweepOnce.Do(func() { close(r.stopSweep) })
}

// SweepClosed removes entries whose underlying transport is closed and
// returns how many were removed
func (r *ConnectionRegistry) SweepClosed() int {
	r.mu.Lock()
	var stale []string
	for id, entry := range r.entries {
		if entry.conn.Closed() {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		r.removeLocked(id)
	}
	r.mu.Unlock()
	return len(stale)
}

// expire runs when a connection's inactivity timer fires: force-close the
// transport and drop the entry
func (r *ConnectionRegistry) expire(connectionID string) {
	r.mu.Lock()
	entry, ok := r.entries[connectionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	// Touch may have raced the timer firing; reschedule instead of evicting.
	if remaining := r.cfg.InactiveTimeout - time.Since(entry.LastActivityAt); remaining > 0 {
		entry.timer.Reset(remaining)
		r.mu.Unlock()
		return
	}
	r.removeLocked(connectionID)
	deviceID := entry.DeviceID
	conn := entry.conn
	r.mu.Unlock()

	r.log.Info().Str("connection_id", connectionID).Str("device_id", deviceID).
		Msg("evicting inactive connection")
	conn.Close()
	if r.onEvict != nil {
		r.onEvict(deviceID, connectionID)
	}
}

// removeLocked deletes the entry and stops its timer. Caller holds the lock.
func (r *ConnectionRegistry) removeLocked(connectionID string) *ConnectionEntry {
	entry, ok := r.entries[connectionID]
	if !ok {
		return nil
	}
	entry.timer.Stop()
	delete(r.entries, connectionID)
	if entry.DeviceID != "" && r.byDevice[entry.DeviceID] == connectionID {
		delete(r.byDevice, entry.DeviceID)
	}
	return entry
}
