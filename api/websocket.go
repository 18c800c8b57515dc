package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"signagecontrol/auth"
	"signagecontrol/models"
	"signagecontrol/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 64
	maxMessageSize = 1 << 20 // 1MB
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // token auth, not origin-based
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Client is one live websocket connection: a display device or an admin
// dashboard client. It implements service.Conn.
type Client struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	log  zerolog.Logger

	id   string
	kind service.ConnectionKind

	send   chan []byte
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once

	mu         sync.Mutex
	deviceID   string
	subscribed map[string]bool
}

// Send marshals and queues a message without blocking. When the buffer is
// full the oldest queued message is dropped first (backpressure); false
// means the message was not accepted.
func (c *Client) Send(v any) bool {
	if c.closed.Load() {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal outbound message")
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) Close() error {
	c.shutdown()
	return c.conn.Close()
}

func (c *Client) Closed() bool {
	return c.closed.Load()
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

func (c *Client) subscribe(topic string) {
	c.mu.Lock()
	c.subscribed[topic] = true
	c.mu.Unlock()
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	delete(c.subscribed, topic)
	c.mu.Unlock()
}

func (c *Client) isSubscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[topic]
}

func (c *Client) boundDevice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

func (c *Client) bindDevice(deviceID string) {
	c.mu.Lock()
	c.deviceID = deviceID
	c.subscribed[service.DeviceTopic(deviceID)] = true
	c.mu.Unlock()
}

// WebSocketHub tracks connected clients and fans messages out by topic
type WebSocketHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        zerolog.Logger
}

func NewWebSocketHub(log zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Str("connection_id", client.id).Int("total", total).Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Str("connection_id", client.id).Int("total", total).Msg("client disconnected")
		}
	}
}

// BroadcastToTopic sends a message to every client subscribed to the topic
// and returns how many accepted it
func (h *WebSocketHub) BroadcastToTopic(topic string, message any) int {
	h.mu.RLock()
	var targets []*Client
	for client := range h.clients {
		if client.isSubscribed(topic) {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range targets {
		if client.Send(message) {
			delivered++
		}
	}
	return delivered
}

// WebSocketHandlers bundles what the connection loop dispatches into
type WebSocketHandlers struct {
	Registry  *service.ConnectionRegistry
	Lifecycle *service.LifecycleHandler
	Telemetry *service.TelemetryIngestor
	Gate      auth.Gate
}

// HandleWebSocket admits a connection through the auth gate, registers it
// and starts the read/write pumps
func HandleWebSocket(hub *WebSocketHub, h WebSocketHandlers, log zerolog.Logger, c *gin.Context) {
	identity, err := h.Gate.Authorize(bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	kind := service.KindDisplay
	if identity.Kind == auth.KindAdmin {
		kind = service.KindAdminClient
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		log:        log,
		id:         uuid.NewString(),
		kind:       kind,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		subscribed: make(map[string]bool),
	}

	if err := h.Registry.Register(client.id, "", kind, client); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server at capacity"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	if kind == service.KindAdminClient {
		client.subscribe(service.AdminTopic)
	}

	hub.register <- client
	go client.writePump()
	go client.readPump(h)
}

func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// readPump drives the per-connection dispatch loop. Every inbound frame
// counts as activity for the inactivity clock.
func (c *Client) readPump(h WebSocketHandlers) {
	defer func() {
		c.shutdown()
		c.hub.unregister <- c
		h.Lifecycle.HandleDisconnect(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Str("connection_id", c.id).Msg("websocket read error")
			}
			return
		}

		h.Registry.Touch(c.id)
		c.dispatch(h, message)
	}
}

// dispatch routes one inbound frame. Handler failures never unwind through
// the connection loop; a bad frame gets an error ack and the connection
// stays open.
func (c *Client) dispatch(h WebSocketHandlers, message []byte) {
	var envelope models.Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		c.Send(models.RegisterError{Type: models.MsgRegisterError, Message: "invalid message"})
		return
	}

	switch envelope.Type {
	case models.MsgRegisterDisplay:
		var msg models.RegisterDisplayMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Send(models.RegisterError{Type: models.MsgRegisterError, Message: "invalid register payload"})
			return
		}
		h.Lifecycle.HandleRegister(c, c.id, msg)
		if entry, ok := h.Registry.Get(c.id); ok && entry.DeviceID != "" {
			c.bindDevice(entry.DeviceID)
		}

	case models.MsgConfirmPairing:
		var msg models.ConfirmPairingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Send(models.RegisterError{Type: models.MsgRegisterError, Message: "invalid pairing payload"})
			return
		}
		deviceID := c.boundDevice()
		if deviceID == "" {
			deviceID = msg.DeviceID
		}
		h.Lifecycle.HandleConfirmPairing(c, deviceID, msg.Code)

	case models.MsgMaintenance:
		var msg models.MaintenanceMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Send(models.RegisterError{Type: models.MsgRegisterError, Message: "invalid maintenance payload"})
			return
		}
		deviceID := c.boundDevice()
		if deviceID == "" {
			deviceID = msg.DeviceID
		}
		if err := h.Lifecycle.HandleMaintenance(deviceID, msg.Enabled); err != nil {
			c.Send(models.RegisterError{Type: models.MsgRegisterError, Message: "maintenance update failed"})
		}

	case models.MsgHeartbeat:
		h.Telemetry.HandleHeartbeat(c, c.id, c.boundDevice())

	case models.MsgContentReceived:
		var msg models.ContentReceivedMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Send(models.RegisterError{Type: models.MsgRegisterError, Message: "invalid delivery report"})
			return
		}
		h.Telemetry.HandleContentReceived(c.boundDevice(), msg)

	case models.MsgContentPlayback:
		var msg models.ContentPlaybackMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Send(models.RegisterError{Type: models.MsgRegisterError, Message: "invalid playback report"})
			return
		}
		h.Telemetry.HandleContentPlayback(c.boundDevice(), msg)

	case models.MsgDisplayStatus:
		var msg models.DisplayStatusMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Send(models.StatusReceived{Type: models.MsgStatusReceived, Success: false})
			return
		}
		h.Telemetry.HandleDisplayStatus(c, c.boundDevice(), msg.Metrics)

	case models.MsgSubscribe, models.MsgUnsubscribe:
		if c.kind != service.KindAdminClient {
			return
		}
		var msg models.SubscribeMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Topic == "" {
			return
		}
		if envelope.Type == models.MsgSubscribe {
			c.subscribe(msg.Topic)
		} else {
			c.unsubscribe(msg.Topic)
		}

	default:
		c.log.Debug().Str("type", envelope.Type).Str("connection_id", c.id).Msg("unknown message type")
		c.Send(models.RegisterError{Type: models.MsgRegisterError, Message: service.ErrMalformedMessage.Error()})
	}
}

// writePump flushes queued messages and keeps the connection alive with
// pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
